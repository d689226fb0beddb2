package store

import (
	"context"
)

type Entry struct {
	Key   string
	Value string
}

// Store is a durable string key-value store. Set writes all entries or none;
// Delete ignores keys that do not exist.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, entries ...Entry) error
	Delete(ctx context.Context, keys ...string) error
}
