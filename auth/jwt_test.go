package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"stg-database/internal/config"
)

func TestGenerateAndVerify(t *testing.T) {
	config.AppConfig.JWTSecret = "test-secret"

	token, err := GenerateJWT("alice")
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	parsed, err := VerifyJWT(token)
	assert.NoError(t, err)

	username, err := UsernameFromToken(parsed)
	assert.NoError(t, err)
	assert.Equal(t, "alice", username)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	config.AppConfig.JWTSecret = "test-secret"
	token, err := GenerateJWT("alice")
	assert.NoError(t, err)

	config.AppConfig.JWTSecret = "different-secret"
	_, err = VerifyJWT(token)
	assert.Error(t, err)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	config.AppConfig.JWTSecret = "test-secret"
	_, err := VerifyJWT("not.a.token")
	assert.Error(t, err)
}
