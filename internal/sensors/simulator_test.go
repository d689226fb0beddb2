package sensors

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedHasFullHistory(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewSimulator(time.Second, WithSeed(7), WithClock(func() time.Time { return now }))

	snap := s.Snapshot()
	require.Len(t, snap.History, historySize)
	assert.Equal(t, now, snap.LastUpdated)
	assert.Equal(t, now.Add(-23*time.Hour), snap.History[0].Time)
	for _, r := range snap.History {
		assert.InDelta(t, 21, r.Temperature, 6)
		assert.InDelta(t, 62.5, r.Humidity, 12.5)
	}
}

func TestTickRollsHistory(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	s := NewSimulator(time.Second, WithSeed(1), WithClock(func() time.Time { return clock }))
	before := s.Snapshot()

	clock = now.Add(5 * time.Second)
	after := s.Tick()
	require.Len(t, after.History, historySize)
	assert.Equal(t, before.History[1], after.History[0])
	assert.Equal(t, clock, after.LastUpdated)
	assert.Equal(t, after.History[historySize-1].Temperature, after.Temperature)
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewSimulator(time.Second, WithSeed(3))
	snap := s.Snapshot()
	snap.History[0].Temperature = -100
	assert.NotEqual(t, -100.0, s.Snapshot().History[0].Temperature)
}

type capture struct {
	mu    sync.Mutex
	count int
}

func (c *capture) PublishSnapshot(Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
}

func (c *capture) published() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func TestRunPublishesUntilCancelled(t *testing.T) {
	pub := &capture{}
	s := NewSimulator(5*time.Millisecond, WithSeed(2), WithPublisher(pub))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return pub.published() >= 2 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}
