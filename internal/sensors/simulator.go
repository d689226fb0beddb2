package sensors

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	historySize     = 24
	DefaultInterval = 5 * time.Second
)

type Reading struct {
	Time         time.Time `json:"time"`
	Temperature  float64   `json:"temperature"`
	Humidity     float64   `json:"humidity"`
	Microplastic float64   `json:"microplastics"`
}

type Snapshot struct {
	Temperature  float64   `json:"temperature"`
	Humidity     float64   `json:"humidity"`
	Microplastic float64   `json:"microplastics"`
	AirQuality   string    `json:"air_quality"`
	LastUpdated  time.Time `json:"last_updated"`
	History      []Reading `json:"history"`
}

type Publisher interface {
	PublishSnapshot(s Snapshot)
}

// Simulator produces synthetic readings; there is no real sensor behind it.
type Simulator struct {
	interval  time.Duration
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
	rng       *rand.Rand

	mu       sync.RWMutex
	snapshot Snapshot
}

type Option func(*Simulator)

func WithPublisher(p Publisher) Option {
	return func(s *Simulator) { s.publisher = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Simulator) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Simulator) { s.now = now }
}

func WithSeed(seed uint64) Option {
	return func(s *Simulator) { s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

func NewSimulator(interval time.Duration, opts ...Option) *Simulator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Simulator{
		interval: interval,
		logger:   zap.NewNop(),
		now:      time.Now,
		rng:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 1)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.snapshot = s.seed()
	return s
}

func (s *Simulator) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.snapshot
	out.History = append([]Reading(nil), s.snapshot.History...)
	return out
}

// Run refreshes the snapshot every interval until ctx is done.
func (s *Simulator) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			snap := s.Tick()
			if s.publisher != nil {
				s.publisher.PublishSnapshot(snap)
			}
			s.logger.Debug("sensor snapshot refreshed", zap.Float64("microplastics", snap.Microplastic))
		}
	}
}

// Tick appends one reading, drops the oldest and returns the new snapshot.
func (s *Simulator) Tick() Snapshot {
	s.mu.Lock()
	reading := s.reading(s.now())
	history := append(s.snapshot.History[1:len(s.snapshot.History):len(s.snapshot.History)], reading)
	s.snapshot = snapshotFrom(reading, history)
	s.mu.Unlock()
	return s.Snapshot()
}

func (s *Simulator) seed() Snapshot {
	now := s.now()
	history := make([]Reading, historySize)
	for i := range history {
		at := now.Add(-time.Duration(historySize-1-i) * time.Hour)
		history[i] = Reading{
			Time:         at.UTC(),
			Temperature:  20 + math.Sin(float64(i)/2)*5 + s.rng.Float64()*2,
			Humidity:     60 + math.Sin(float64(i)/3)*10 + s.rng.Float64()*5,
			Microplastic: 40 + math.Sin(float64(i)/4)*15 + s.rng.Float64()*10,
		}
	}
	return snapshotFrom(history[len(history)-1], history)
}

func (s *Simulator) reading(at time.Time) Reading {
	ms := float64(at.UnixMilli())
	return Reading{
		Time:         at.UTC(),
		Temperature:  20 + math.Sin(ms/1_000_000)*5 + s.rng.Float64()*2,
		Humidity:     60 + math.Sin(ms/1_500_000)*10 + s.rng.Float64()*5,
		Microplastic: 40 + math.Sin(ms/2_000_000)*15 + s.rng.Float64()*10,
	}
}

func snapshotFrom(latest Reading, history []Reading) Snapshot {
	return Snapshot{
		Temperature:  latest.Temperature,
		Humidity:     latest.Humidity,
		Microplastic: latest.Microplastic,
		AirQuality:   airQuality(latest.Humidity),
		LastUpdated:  latest.Time,
		History:      history,
	}
}

func airQuality(humidity float64) string {
	switch {
	case humidity > 72:
		return "Moderate"
	default:
		return "Good"
	}
}
