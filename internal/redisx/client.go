package redisx

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// KV is a small expiring key-value contract. A zero ttl means no expiry.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX stores value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

// Store is the redis-backed KV.
type Store struct{ R *redis.Client }

func (s Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.R.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.R.Set(ctx, key, value, ttl).Err()
}

func (s Store) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return s.R.SetNX(ctx, key, value, ttl).Result()
}

func (s Store) Delete(ctx context.Context, key string) error {
	return s.R.Del(ctx, key).Err()
}
