// Package clock provides ports.Clock implementations.
package clock

import (
	"sync"
	"time"

	"github.com/artpar/nodecfg/ports"
)

// UTC reads the system clock in UTC, truncated to microseconds so that
// stored timestamps compare equal after a round trip through the store.
type UTC struct{}

// Now returns the current time.
func (UTC) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

var _ ports.Clock = UTC{}

// Fake is a controllable clock for tests. With a step set, every Now call
// advances the clock after reading it.
type Fake struct {
	mu      sync.Mutex
	current time.Time
	step    time.Duration
}

// NewFake creates a fake clock set to t.
func NewFake(t time.Time) *Fake {
	return &Fake{current: t}
}

// NewStepping creates a fake clock that advances by step on every read.
func NewStepping(t time.Time, step time.Duration) *Fake {
	return &Fake{current: t, step: step}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.current
	f.current = f.current.Add(f.step)
	return now
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}

var _ ports.Clock = (*Fake)(nil)
