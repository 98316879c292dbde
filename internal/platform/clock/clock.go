// Package clock supplies the logical clock (block height) stamped on
// recipient records.
package clock

import (
	"context"
	"sync/atomic"
	"time"
)

// Clock reports the current logical height.
type Clock interface {
	Height(ctx context.Context) uint64
}

// Func adapts a plain function to Clock.
type Func func(ctx context.Context) uint64

func (f Func) Height(ctx context.Context) uint64 { return f(ctx) }

// Fixed always reports the same height.
type Fixed uint64

func (f Fixed) Height(context.Context) uint64 { return uint64(f) }

// Manual is a test clock advanced explicitly. Safe for concurrent use.
type Manual struct {
	height atomic.Uint64
}

func NewManual(start uint64) *Manual {
	m := &Manual{}
	m.height.Store(start)
	return m
}

func (m *Manual) Height(context.Context) uint64 { return m.height.Load() }

// Advance moves the clock forward by n blocks and returns the new height.
func (m *Manual) Advance(n uint64) uint64 { return m.height.Add(n) }

// Set moves the clock to h, which may be lower than the current height.
func (m *Manual) Set(h uint64) { m.height.Store(h) }

// Chain derives height from wall time: start + elapsed/interval since genesis.
// Before genesis it reports start.
type Chain struct {
	start    uint64
	genesis  time.Time
	interval time.Duration
	now      func() time.Time
}

type ChainOption func(*Chain)

// WithNow overrides the wall clock, for tests.
func WithNow(now func() time.Time) ChainOption {
	return func(c *Chain) { c.now = now }
}

func NewChain(start uint64, genesis time.Time, interval time.Duration, opts ...ChainOption) *Chain {
	c := &Chain{start: start, genesis: genesis, interval: interval, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Chain) Height(context.Context) uint64 {
	if c.interval <= 0 {
		return c.start
	}
	elapsed := c.now().Sub(c.genesis)
	if elapsed <= 0 {
		return c.start
	}
	return c.start + uint64(elapsed/c.interval) //nolint:gosec // elapsed is positive
}

var (
	_ Clock = Fixed(0)
	_ Clock = (*Manual)(nil)
	_ Clock = (*Chain)(nil)
	_ Clock = Func(nil)
)
