package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "storefront"

// RedisStore keeps collections under storefront:<namespace>:<collection>
type RedisStore struct {
	client *redis.Client
	// ttl of each record, refreshed on save; zero keeps records forever
	ttl time.Duration
}

// NewRedisStore wraps an existing client
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// ConnectRedisStore dials addr and pings it before returning the store
func ConnectRedisStore(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	slog.Info("Redis store connected", "addr", addr, "db", db)
	return NewRedisStore(client, ttl), nil
}

func redisKey(namespace, collection string) string {
	return fmt.Sprintf("%s:%s:%s", redisKeyPrefix, namespace, collection)
}

// Load reads a collection
func (r *RedisStore) Load(ctx context.Context, namespace, collection string) ([]byte, error) {
	if err := checkKey(namespace, collection); err != nil {
		return nil, err
	}
	data, err := r.client.Get(ctx, redisKey(namespace, collection)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

// Save writes a collection
func (r *RedisStore) Save(ctx context.Context, namespace, collection string, data []byte) error {
	if err := checkKey(namespace, collection); err != nil {
		return err
	}
	if err := r.client.Set(ctx, redisKey(namespace, collection), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete removes a collection
func (r *RedisStore) Delete(ctx context.Context, namespace, collection string) error {
	if err := checkKey(namespace, collection); err != nil {
		return err
	}
	if err := r.client.Del(ctx, redisKey(namespace, collection)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// Close closes the redis client
func (r *RedisStore) Close() error {
	return r.client.Close()
}
