// Package pricefeed simulates the random-walk quote shown on the trading screen.
package pricefeed

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

const (
	InitialPrice  = 100.0
	SeedPoints    = 20
	SeedInterval  = 30 * time.Second
	MaxHistory    = 50
	maxChangeRate = 0.05
)

// Point is one quote.
type Point struct {
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// Quote is the response to a tick: the new price plus the retained history.
type Quote struct {
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
	History   []Point   `json:"history"`
}

// Option configures a Feed.
type Option func(*Feed)

// WithRand sets the random source used for price moves.
func WithRand(r *rand.Rand) Option {
	return func(f *Feed) { f.rnd = r }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(f *Feed) { f.now = now }
}

// Feed owns the last price and a bounded history. Safe for concurrent use.
type Feed struct {
	mu      sync.Mutex
	rnd     *rand.Rand
	now     func() time.Time
	last    float64
	history []Point
}

// New creates a Feed seeded with SeedPoints quotes ending now.
func New(opts ...Option) *Feed {
	f := &Feed{
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.seed()
	return f
}

func (f *Feed) seed() {
	now := f.now()
	f.last = InitialPrice
	f.history = make([]Point, 0, MaxHistory)
	f.history = append(f.history, Point{Price: f.last, Timestamp: now.Add(-(SeedPoints - 1) * SeedInterval)})
	for i := 1; i < SeedPoints; i++ {
		f.last = f.step(f.last)
		f.history = append(f.history, Point{
			Price:     f.last,
			Timestamp: now.Add(-time.Duration(SeedPoints-1-i) * SeedInterval),
		})
	}
}

// step moves price by up to ±5% and rounds to cents.
func (f *Feed) step(price float64) float64 {
	change := (f.rnd.Float64() - 0.5) * 2 * maxChangeRate
	return math.Round(price*(1+change)*100) / 100
}

// Tick advances the price and returns it with a copy of the history.
func (f *Feed) Tick() Quote {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.last = f.step(f.last)
	now := f.now()
	f.history = append(f.history, Point{Price: f.last, Timestamp: now})
	if n := len(f.history); n > MaxHistory {
		f.history = append(f.history[:0], f.history[n-MaxHistory:]...)
	}

	history := make([]Point, len(f.history))
	copy(history, f.history)
	return Quote{Price: f.last, Timestamp: now, History: history}
}
