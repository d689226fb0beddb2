package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"microsight/dashboard-service/internal/auth"
	"microsight/dashboard-service/internal/guard"
	"microsight/dashboard-service/internal/nav"
	"microsight/dashboard-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowStore blocks reads until release is closed and counts them.
type slowStore struct {
	store.Store
	reads   atomic.Int32
	release chan struct{}
}

func (s *slowStore) Get(ctx context.Context, key string) (string, error) {
	s.reads.Add(1)
	select {
	case <-s.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return s.Store.Get(ctx, key)
}

func clientIDFor(i int) string {
	return fmt.Sprintf("00000000-0000-0000-0000-%012d", i)
}

func TestRegistryIsBounded(t *testing.T) {
	registry := NewRegistry(store.NewMemory(), RegistryOptions{MaxClients: 3})
	defer registry.Close()
	ctx := context.Background()

	first, err := registry.Get(ctx, clientIDFor(0))
	require.NoError(t, err)
	for i := 1; i < 5; i++ {
		_, err := registry.Get(ctx, clientIDFor(i))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, registry.Len())

	again, err := registry.Get(ctx, clientIDFor(0))
	require.NoError(t, err)
	assert.NotSame(t, first, again)
	assert.Equal(t, 3, registry.Len())
}

func TestRegistryEvictionDropsPendingRedirect(t *testing.T) {
	kv := store.NewMemory()
	registry := NewRegistry(kv, RegistryOptions{MaxClients: 1, GracePeriod: 20 * time.Millisecond})
	defer registry.Close()
	ctx := context.Background()

	client, err := registry.Get(ctx, clientIDFor(0))
	require.NoError(t, err)
	_, err = client.Auth.Login(ctx, auth.LoginInput{Identifier: "u@example.com", Secret: "secret-pass"})
	require.NoError(t, err)

	fired := make(chan struct{}, 1)
	router := guard.NewRouter(0)
	route, ok := router.Match("/dashboard/admin")
	require.True(t, ok)
	client.Guard.Evaluate("/dashboard/admin", route.Allowed, func(nav.Navigation) { fired <- struct{}{} })
	task := client.Guard.Pending()
	require.NotNil(t, task)

	_, err = registry.Get(ctx, clientIDFor(1))
	require.NoError(t, err)
	<-task.Done()
	assert.False(t, task.Fired())

	reloaded, err := registry.Get(ctx, clientIDFor(0))
	require.NoError(t, err)
	_, ok = reloaded.Sessions.Get()
	assert.True(t, ok, "the stored session survives unloading")
}

func TestRegistryDropsIdleClients(t *testing.T) {
	registry := NewRegistry(store.NewMemory(), RegistryOptions{IdleTTL: 30 * time.Millisecond})
	defer registry.Close()

	_, err := registry.Get(context.Background(), clientIDFor(0))
	require.NoError(t, err)
	assert.Equal(t, 1, registry.Len())
	require.Eventually(t, func() bool { return registry.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestRegistryLoadsEachClientOnce(t *testing.T) {
	kv := &slowStore{Store: store.NewMemory(), release: make(chan struct{})}
	registry := NewRegistry(kv, RegistryOptions{})
	defer registry.Close()

	const callers = 8
	results := make([]*Client, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			client, err := registry.Get(context.Background(), testClient)
			assert.NoError(t, err)
			results[i] = client
		}(i)
	}

	// A load in progress must not block other ids.
	require.Eventually(t, func() bool { return kv.reads.Load() >= 1 }, time.Second, time.Millisecond)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := registry.Get(ctx, clientIDFor(7))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loading one client blocked another")
	}

	close(kv.release)
	wg.Wait()
	for _, client := range results {
		assert.Same(t, results[0], client)
	}
}

func TestManyAnonymousRequestsStayBounded(t *testing.T) {
	kv := store.NewMemory()
	registry := NewRegistry(kv, RegistryOptions{MaxClients: 50})
	t.Cleanup(registry.Close)
	handler := NewHandler(registry, Options{}).Routes()

	for i := 0; i < 500; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	}
	assert.Equal(t, 50, registry.Len())
}

func TestRateLimiterIgnoresForwardedForByDefault(t *testing.T) {
	send := func(limiter *RateLimiter, forwarded string) int {
		h := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "203.0.113.7:5000"
		req.Header.Set("X-Forwarded-For", forwarded)
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, req)
		return resp.Code
	}

	direct := NewRateLimiter(RateLimitConfig{IPPerMinute: 1, IPBurst: 1})
	assert.Equal(t, http.StatusNoContent, send(direct, "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, send(direct, "10.0.0.2"), "spoofed header must not reset the limit")

	proxied := NewRateLimiter(RateLimitConfig{IPPerMinute: 1, IPBurst: 1, TrustForwardedFor: true})
	assert.Equal(t, http.StatusNoContent, send(proxied, "10.0.0.1"))
	assert.Equal(t, http.StatusNoContent, send(proxied, "10.0.0.2"))
	assert.Equal(t, http.StatusTooManyRequests, send(proxied, "10.0.0.1, 198.51.100.1"))
}
