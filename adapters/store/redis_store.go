package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/portal/core"
	"github.com/layer-3/portal/ports"
	"github.com/redis/go-redis/v9"
)

// RedisCredentialStore keeps the token under a single redis key so that
// several processes on the same profile share one session.
type RedisCredentialStore struct {
	client redis.UniversalClient
	key    string
}

// NewRedisCredentialStore creates a credential store backed by redis
func NewRedisCredentialStore(client redis.UniversalClient, key string) *RedisCredentialStore {
	return &RedisCredentialStore{
		client: client,
		key:    "portal:credential:" + key,
	}
}

// Get retrieves the stored token
func (s *RedisCredentialStore) Get(ctx context.Context) (string, error) {
	value, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", core.ErrNoCredential
		}
		return "", fmt.Errorf("failed to read credential: %w", err)
	}
	return value, nil
}

// Set stores the token without expiry
func (s *RedisCredentialStore) Set(ctx context.Context, token string) error {
	if err := s.client.Set(ctx, s.key, token, 0).Err(); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

// Clear deletes the key; deleting a missing key is not an error
func (s *RedisCredentialStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return nil
}

// RedisRevocationStore is a Redis implementation of ports.RevocationStore
type RedisRevocationStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisRevocationStore creates a new Redis revocation store
func NewRedisRevocationStore(client redis.UniversalClient) ports.RevocationStore {
	return &RedisRevocationStore{
		client: client,
		prefix: "portal:invalidated:",
	}
}

// InvalidateToken marks a token as invalidated in Redis
func (s *RedisRevocationStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	key := s.prefix + tokenID

	if err := s.client.Set(ctx, key, "1", expiry).Err(); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}

	return nil
}

// IsTokenInvalidated checks if a token is invalidated in Redis
func (s *RedisRevocationStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	key := s.prefix + tokenID

	val, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token invalidation: %w", err)
	}

	return val > 0, nil
}
