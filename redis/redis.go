package redis

import (
	"context"
	"errors"
	"log"
	"time"

	"stg-database/internal/config"

	"github.com/redis/go-redis/v9"
)

var Ctx = context.Background()
var RedisClient *redis.Client

var ErrNotConnected = errors.New("redis not connected")

func InitRedis() {
	RedisClient = redis.NewClient(&redis.Options{
		Addr: config.AppConfig.RedisAddress,
	})
	_, err := RedisClient.Ping(Ctx).Result()
	if err != nil {
		log.Println("Redis not available. Running without Redis.")
		RedisClient = nil
		return
	}

	log.Println("Redis connected successfully.")
}

// StoreToken adds an access token to the allow-list checked by the auth
// middleware. The entry expires with the session.
func StoreToken(token string, ttl time.Duration) error {
	if RedisClient == nil {
		return ErrNotConnected
	}
	return RedisClient.Set(Ctx, "token:"+token, "1", ttl).Err()
}

// RevokeToken removes an access token from the allow-list (logout).
func RevokeToken(token string) error {
	if RedisClient == nil {
		return ErrNotConnected
	}
	return RedisClient.Del(Ctx, "token:"+token).Err()
}
