package scene

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "scene:"

// RedisStore keeps each project's state as a JSON document.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{
		rdb: rdb,
	}
}

func RedisKey(projectId string) string {
	return redisKeyPrefix + projectId
}

func (s *RedisStore) Load(ctx context.Context, projectId string) (*State, error) {
	bytes, err := s.rdb.Get(ctx, RedisKey(projectId)).Bytes()
	if errors.Is(err, redis.Nil) {
		return NewState(projectId), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load scene %s: %w", projectId, err)
	}

	state := NewState(projectId)
	if err := json.Unmarshal(bytes, state); err != nil {
		return nil, fmt.Errorf("decode scene %s: %w", projectId, err)
	}
	state.ProjectId = projectId
	return state, nil
}

func (s *RedisStore) Save(ctx context.Context, state *State) error {
	bytes, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode scene %s: %w", state.ProjectId, err)
	}
	if err := s.rdb.Set(ctx, RedisKey(state.ProjectId), bytes, 0).Err(); err != nil {
		return fmt.Errorf("save scene %s: %w", state.ProjectId, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, projectId string) error {
	if err := s.rdb.Del(ctx, RedisKey(projectId)).Err(); err != nil {
		return fmt.Errorf("delete scene %s: %w", projectId, err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
