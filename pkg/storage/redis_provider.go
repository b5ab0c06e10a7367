package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-redis/redis/v8"
)

// RedisConfig contains settings for the Redis provider
type RedisConfig struct {
	// Addr is the host:port of the Redis server
	Addr string `json:"addr"`

	// Password authenticates the connection, if set
	Password string `json:"password,omitempty"`

	// DB selects the Redis database number
	DB int `json:"db,omitempty"`
}

// RedisProvider implements the Provider interface backed by Redis
type RedisProvider struct {
	client *redis.Client
}

// NewRedisProvider creates a Redis provider and verifies the connection
func NewRedisProvider(config RedisConfig) (*RedisProvider, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", config.Addr, err)
	}

	return &RedisProvider{client: client}, nil
}

// Get returns the value stored under key
func (p *RedisProvider) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := p.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return value, nil
}

// Put stores a value under key
func (p *RedisProvider) Put(ctx context.Context, key string, value []byte) error {
	if err := p.client.Set(ctx, key, value, 0).Err(); err != nil {
		if isRedisQuotaError(err) {
			return fmt.Errorf("redis refused write for key %s: %w", key, ErrQuotaExceeded)
		}
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// Delete removes a key
func (p *RedisProvider) Delete(ctx context.Context, key string) error {
	if err := p.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Keys returns all keys beginning with prefix, sorted
func (p *RedisProvider) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys := make([]string, 0)

	// SCAN rather than KEYS so large keyspaces don't block the server
	iter := p.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan keys: %w", err)
	}

	sort.Strings(keys)
	return keys, nil
}

// Close releases the provider's resources
func (p *RedisProvider) Close() error {
	return p.client.Close()
}

// isRedisQuotaError reports whether the server refused a write because
// it is out of memory (maxmemory reached)
func isRedisQuotaError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "OOM") || strings.Contains(strings.ToLower(msg), "maxmemory")
}
