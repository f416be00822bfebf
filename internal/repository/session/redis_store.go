package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image-board-backend/internal/domain"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "session:"

// RedisStore keeps sessions as JSON with a sliding TTL: every read and
// write pushes expiry out by ttl.
type RedisStore struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewRedisStore(client *goredis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*domain.Session, error) {
	if key == "" {
		return nil, domain.ErrSessionAbsent
	}
	raw, err := s.client.GetEx(ctx, keyPrefix+key, s.ttl).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrSessionAbsent
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		// Corrupt entry, treat as signed out
		_ = s.client.Del(ctx, keyPrefix+key).Err()
		return nil, domain.ErrSessionAbsent
	}
	return &sess, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, sess *domain.Session) error {
	if key == "" || sess == nil {
		return errors.New("session key and value are required")
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, keyPrefix+key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	return s.client.Del(ctx, keyPrefix+key).Err()
}
