// Package session tracks each user's current selection (experiment, then
// condition) across the multi-step editing flow. Selections live in Redis
// with the session TTL and are always validated on read: an unset
// selection is an error, never a silent default.
package session

import (
	"context"
	"strconv"
	"time"

	apiError "stg-database/internal/errors"

	"github.com/redis/go-redis/v9"
)

// Selection is the current editing target for one user.
type Selection struct {
	ExperimentKey  string
	ConditionIndex int
	ConditionName  string
}

// Store defines the session-context operations handlers depend on.
type Store interface {
	SetExperiment(ctx context.Context, username, key string) error
	SetCondition(ctx context.Context, username string, index int, name string) error
	Experiment(ctx context.Context, username string) (string, error)
	Condition(ctx context.Context, username string) (int, string, error)
	Clear(ctx context.Context, username string) error
}

// RedisStore implements Store on a Redis hash per user.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func sessionKey(username string) string {
	return "session:" + username
}

// SetExperiment records the current experiment and drops any stale
// condition selection from a previous flow.
func (s *RedisStore) SetExperiment(ctx context.Context, username, key string) error {
	if s.client == nil {
		return apiError.Internal(nil)
	}
	k := sessionKey(username)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, k, "experiment", key)
	pipe.HDel(ctx, k, "cond_index", "cond_name")
	pipe.Expire(ctx, k, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) SetCondition(ctx context.Context, username string, index int, name string) error {
	if s.client == nil {
		return apiError.Internal(nil)
	}
	k := sessionKey(username)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, k, "cond_index", strconv.Itoa(index), "cond_name", name)
	pipe.Expire(ctx, k, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Experiment returns the currently selected experiment key, failing with
// NoActiveSelection when nothing has been selected this session.
func (s *RedisStore) Experiment(ctx context.Context, username string) (string, error) {
	if s.client == nil {
		return "", apiError.Internal(nil)
	}
	key, err := s.client.HGet(ctx, sessionKey(username), "experiment").Result()
	if err != nil && err != redis.Nil {
		return "", err
	}
	if err == redis.Nil || key == "" {
		return "", apiError.NoActiveSelection("No experiment selected")
	}
	return key, nil
}

// Condition returns the currently selected condition index and name.
func (s *RedisStore) Condition(ctx context.Context, username string) (int, string, error) {
	if s.client == nil {
		return 0, "", apiError.Internal(nil)
	}
	vals, err := s.client.HMGet(ctx, sessionKey(username), "cond_index", "cond_name").Result()
	if err != nil {
		return 0, "", err
	}
	idxStr, ok := vals[0].(string)
	if !ok || idxStr == "" {
		return 0, "", apiError.NoActiveSelection("No condition selected")
	}
	index, err := strconv.Atoi(idxStr)
	if err != nil {
		return 0, "", apiError.NoActiveSelection("No condition selected")
	}
	name, _ := vals[1].(string)
	return index, name, nil
}

// Clear wipes the user's selection, typically on logout.
func (s *RedisStore) Clear(ctx context.Context, username string) error {
	if s.client == nil {
		return nil
	}
	return s.client.Del(ctx, sessionKey(username)).Err()
}
