package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCache implements Cache using Redis. It backs the semantic memory
// embedding cache and, optionally, the budget ledger's durable store.
type RedisCache struct {
	client     *redis.Client
	namespace  string
	defaultTTL time.Duration
	mu         sync.RWMutex
}

// NewRedisCache creates a new Redis-backed cache.
func NewRedisCache(redisURL, namespace string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if namespace == "" {
		namespace = "aec"
	}

	return &RedisCache{
		client:     client,
		namespace:  namespace,
		defaultTTL: time.Hour,
	}, nil
}

// Set stores a key-value pair with TTL.
func (r *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	finalKey := r.buildKey(key)

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to serialize value: %w", err)
	}

	if ttl == 0 {
		ttl = r.defaultTTL
	}

	if err := r.client.Set(ctx, finalKey, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}

	return nil
}

// Get retrieves a value by key.
func (r *RedisCache) Get(ctx context.Context, key string) (interface{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	finalKey := r.buildKey(key)

	data, err := r.client.Get(ctx, finalKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("key not found: %s", key)
		}
		return nil, fmt.Errorf("failed to get key: %w", err)
	}

	var value interface{}
	if err := json.Unmarshal([]byte(data), &value); err != nil {
		return data, nil
	}

	return value, nil
}

// Delete removes a key.
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	finalKey := r.buildKey(key)

	if err := r.client.Del(ctx, finalKey).Err(); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}

	return nil
}

func (r *RedisCache) buildKey(key string) string {
	return fmt.Sprintf("%s:%s", r.namespace, key)
}

// Close closes the Redis connection.
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// InProcessCache is an in-memory Cache implementation used when no Redis
// endpoint is configured, and in tests.
type InProcessCache struct {
	data       map[string]valueWithExpiry
	defaultTTL time.Duration
	mu         sync.RWMutex
}

type valueWithExpiry struct {
	value  interface{}
	expiry time.Time
}

// NewInProcessCache creates a new in-memory cache.
func NewInProcessCache() *InProcessCache {
	return &InProcessCache{
		data:       make(map[string]valueWithExpiry),
		defaultTTL: time.Hour,
	}
}

// Set stores a key-value pair with TTL.
func (m *InProcessCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ttl == 0 {
		ttl = m.defaultTTL
	}

	m.data[key] = valueWithExpiry{
		value:  value,
		expiry: time.Now().Add(ttl),
	}

	return nil
}

// Get retrieves a value by key.
func (m *InProcessCache) Get(ctx context.Context, key string) (interface{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, exists := m.data[key]
	if !exists {
		return nil, fmt.Errorf("key not found: %s", key)
	}

	if time.Now().After(entry.expiry) {
		delete(m.data, key)
		return nil, fmt.Errorf("key expired: %s", key)
	}

	return entry.value, nil
}

// Delete removes a key.
func (m *InProcessCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

