package store

import (
	"context"
	"strings"
)

const scopeSeparator = "/"

type scoped struct {
	base   Store
	prefix string
}

// Scoped returns a view of base where every key lives under scope. Each
// dashboard client gets its own scope, so the same "token" and "user" keys
// never collide between clients.
func Scoped(base Store, scope string) Store {
	scope = strings.Trim(scope, scopeSeparator)
	return &scoped{base: base, prefix: scope + scopeSeparator}
}

func (s *scoped) Get(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}
	return s.base.Get(ctx, s.prefix+key)
}

func (s *scoped) Set(ctx context.Context, entries ...Entry) error {
	prefixed := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if entry.Key == "" {
			return ErrInvalidKey
		}
		prefixed = append(prefixed, Entry{Key: s.prefix + entry.Key, Value: entry.Value})
	}
	return s.base.Set(ctx, prefixed...)
}

func (s *scoped) Delete(ctx context.Context, keys ...string) error {
	prefixed := make([]string, 0, len(keys))
	for _, key := range keys {
		prefixed = append(prefixed, s.prefix+key)
	}
	return s.base.Delete(ctx, prefixed...)
}
