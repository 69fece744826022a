// Package repository implements data persistence adapters
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"intake-chat/internal/core/ports"
)

// Ensure RedisTokenStore implements TokenStore
var _ ports.TokenStore = (*RedisTokenStore)(nil)

// RedisTokenStore keeps the dashboard bearer token in Redis
// so it survives restarts of the chat server
type RedisTokenStore struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// NewRedisTokenStore creates a token store; ttl 0 keeps the token until cleared
func NewRedisTokenStore(client *redis.Client, namespace string, ttl time.Duration) *RedisTokenStore {
	if namespace == "" {
		namespace = "default"
	}
	return &RedisTokenStore{
		client:    client,
		namespace: namespace,
		ttl:       ttl,
	}
}

// Token returns the stored token, empty when none is stored
func (r *RedisTokenStore) Token(ctx context.Context) (string, error) {
	token, err := r.client.Get(ctx, r.key()).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		slog.Error("Failed to read auth token", "error", err, "namespace", r.namespace)
		return "", fmt.Errorf("get token: %w", err)
	}
	return token, nil
}

// SetToken stores the token with the configured TTL
func (r *RedisTokenStore) SetToken(ctx context.Context, token string) error {
	if err := r.client.Set(ctx, r.key(), token, r.ttl).Err(); err != nil {
		slog.Error("Failed to store auth token", "error", err, "namespace", r.namespace)
		return fmt.Errorf("set token: %w", err)
	}

	slog.Debug("Auth token stored", "namespace", r.namespace, "ttl", r.ttl)
	return nil
}

// ClearToken deletes the token
func (r *RedisTokenStore) ClearToken(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key()).Err(); err != nil {
		slog.Error("Failed to clear auth token", "error", err, "namespace", r.namespace)
		return fmt.Errorf("clear token: %w", err)
	}

	slog.Info("Auth token cleared", "namespace", r.namespace)
	return nil
}

// key builds the Redis key, format auth:token:{namespace}
func (r *RedisTokenStore) key() string {
	return fmt.Sprintf("auth:token:%s", r.namespace)
}

// Ping checks Redis connectivity
func (r *RedisTokenStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
