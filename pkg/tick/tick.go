// Package tick provides the millisecond tick counter every timer in the
// regulator is measured against.
//
// The counter is a single word with exactly one writer (the periodic source)
// and any number of readers. It wraps at 2^32; Elapsed handles the wrap.
package tick

import (
	"context"
	"sync/atomic"
	"time"
)

// Clock returns the current tick in milliseconds.
type Clock interface {
	NowMs() uint32
}

// Counter is a monotonically increasing, wrapping millisecond counter.
type Counter struct {
	v atomic.Uint32
}

var _ Clock = &Counter{}

// NowMs returns the current tick.
func (c *Counter) NowMs() uint32 {
	return c.v.Load()
}

// Inc advances the counter by one millisecond.
func (c *Counter) Inc() {
	c.v.Add(1)
}

// Advance advances the counter by n milliseconds.
func (c *Counter) Advance(n uint32) {
	c.v.Add(n)
}

// Set forces the counter to v. Only meant for tests exercising the wrap.
func (c *Counter) Set(v uint32) {
	c.v.Store(v)
}

// Elapsed reports whether at least d milliseconds passed between since and now.
func Elapsed(now, since, d uint32) bool {
	return now-since >= d
}

// Since returns the number of milliseconds between since and now.
func Since(now, since uint32) uint32 {
	return now - since
}

// Source drives a Counter from a 1 ms ticker, standing in for the timer
// interrupt on a host.
type Source struct {
	*Counter
	period time.Duration
}

// NewSource returns a Source ticking every millisecond.
func NewSource() *Source {
	return &Source{
		Counter: &Counter{},
		period:  time.Millisecond,
	}
}

// Run increments the counter until ctx is done. The ticker may drop ticks
// under load; missed ticks are credited from the wall clock so the counter
// keeps pace with real time.
func (s *Source) Run(ctx context.Context) {
	t := time.NewTicker(s.period)
	defer t.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n := now.Sub(last) / s.period
			if n <= 0 {
				continue
			}
			s.Advance(uint32(n))
			last = last.Add(n * s.period)
		}
	}
}
