package user

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidUsername(t *testing.T) {
	assert.True(t, ValidUsername("alice"))
	assert.True(t, ValidUsername("a"))
	assert.True(t, ValidUsername("lab_member_01"))
	assert.False(t, ValidUsername(""))
	assert.False(t, ValidUsername("has space"))
	assert.False(t, ValidUsername("dot.ted"))
	assert.False(t, ValidUsername("this_username_is_too_long"))
}

func TestProfileRecordWireFormat(t *testing.T) {
	rec := profileRecord{Email: "a@lab.edu", Surname: "Smith", Lab: "Marder", UploadsEnabled: true}

	data, err := json.Marshal(rec)
	assert.NoError(t, err)
	assert.JSONEq(t, `["a@lab.edu","Smith","Marder",1]`, string(data))

	var back profileRecord
	assert.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, rec, back)
}

func TestProfileRecordLegacyThreeSlots(t *testing.T) {
	var rec profileRecord
	assert.NoError(t, json.Unmarshal([]byte(`["a@lab.edu","Smith","Marder"]`), &rec))
	assert.Equal(t, "a@lab.edu", rec.Email)
	assert.False(t, rec.UploadsEnabled)
}

func TestProfileRecordBadSlotCount(t *testing.T) {
	var rec profileRecord
	assert.Error(t, json.Unmarshal([]byte(`["a@lab.edu"]`), &rec))
}
