package kv

import (
	"context"
	"time"
)

// Cache is a namespaced key/value store used as the embedding cache for
// semantic memory and as the durable backing store for the budget ledger.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string) (interface{}, error)
	Delete(ctx context.Context, key string) error
}
