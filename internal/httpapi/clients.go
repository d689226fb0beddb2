package httpapi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"microsight/dashboard-service/internal/auth"
	"microsight/dashboard-service/internal/guard"
	"microsight/dashboard-service/internal/session"
	"microsight/dashboard-service/internal/store"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

const (
	clientScope = "clients"

	DefaultMaxClients    = 10000
	DefaultClientIdleTTL = 30 * time.Minute
)

// Client is everything the server keeps for one browser: its slice of the
// key-value store, the session living there, the auth operations acting
// on that session and the guard for the view it is looking at.
type Client struct {
	ID       string
	Sessions *session.Persistent
	Auth     *auth.Service
	Guard    *guard.Guard
}

type RegistryOptions struct {
	Auth        auth.Options
	GracePeriod time.Duration
	// MaxClients caps how many clients stay loaded. The least recently
	// used one is dropped first.
	MaxClients int
	// IdleTTL drops a client that has not been used for this long. Its
	// session stays in the store and is loaded again on the next request.
	IdleTTL time.Duration
	Logger  *zap.Logger
}

type loadingClient struct {
	done   chan struct{}
	client *Client
	err    error
}

// Registry holds the loaded clients. Loading a client reads its stored
// session, so it happens outside the registry lock and at most once per id.
type Registry struct {
	kv     store.Store
	opts   RegistryOptions
	logger *zap.Logger
	cache  *expirable.LRU[string, *Client]

	mu      sync.Mutex
	loading map[string]*loadingClient
}

func NewRegistry(kv store.Store, opts RegistryOptions) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Auth.Logger == nil {
		opts.Auth.Logger = logger
	}
	if opts.MaxClients <= 0 {
		opts.MaxClients = DefaultMaxClients
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultClientIdleTTL
	}
	r := &Registry{kv: kv, opts: opts, logger: logger, loading: make(map[string]*loadingClient)}
	r.cache = expirable.NewLRU[string, *Client](opts.MaxClients, r.evicted, opts.IdleTTL)
	return r
}

// Get returns the client for id, loading its persisted session the first
// time the id is seen or after the client was dropped.
func (r *Registry) Get(ctx context.Context, id string) (*Client, error) {
	r.mu.Lock()
	if client, ok := r.cache.Get(id); ok {
		// Add again to restart the idle timer.
		r.cache.Add(id, client)
		r.mu.Unlock()
		return client, nil
	}
	if l, ok := r.loading[id]; ok {
		r.mu.Unlock()
		select {
		case <-l.done:
			return l.client, l.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	l := &loadingClient{done: make(chan struct{})}
	r.loading[id] = l
	r.mu.Unlock()

	l.client, l.err = r.load(ctx, id)

	r.mu.Lock()
	delete(r.loading, id)
	if l.err == nil {
		// An expired entry may still sit in the cache; Remove closes it.
		r.cache.Remove(id)
		r.cache.Add(id, l.client)
	}
	r.mu.Unlock()
	close(l.done)
	return l.client, l.err
}

func (r *Registry) load(ctx context.Context, id string) (*Client, error) {
	logger := r.logger.With(zap.String("client_id", id))
	sessions := session.NewPersistent(store.Scoped(r.kv, clientScope+"/"+id), logger)
	if err := sessions.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize session for client %s: %w", id, err)
	}
	opts := r.opts.Auth
	opts.Logger = logger
	return &Client{
		ID:       id,
		Sessions: sessions,
		Auth:     auth.New(sessions, opts),
		Guard:    guard.New(sessions, r.opts.GracePeriod),
	}, nil
}

func (r *Registry) evicted(id string, client *Client) {
	client.Guard.Close()
	r.logger.Debug("client unloaded", zap.String("client_id", id))
}

func (r *Registry) Len() int {
	return r.cache.Len()
}

// Close unloads every client and drops their pending guard redirects.
func (r *Registry) Close() {
	r.cache.Purge()
}
