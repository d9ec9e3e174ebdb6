package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	rd "github.com/redis/go-redis/v9"

	"github.com/Rutuja-07-code/pharma-agent-ai/pkg"
)

// RedisStore persists session state as a JSON value per conversation key so
// pending slots survive process restarts. Each write refreshes the TTL; an
// abandoned conversation expires back to the idle state.
type RedisStore struct {
	rdb    *rd.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed session store. A non-positive ttl
// disables expiry.
func NewRedisStore(rdb *rd.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "pharmacy:session:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*pkg.SessionState, error) {
	raw, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return &pkg.SessionState{}, nil
		}
		return nil, err
	}
	var state pkg.SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, state *pkg.SessionState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.prefix+key, raw, s.ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.prefix+key).Err()
}
