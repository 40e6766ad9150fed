// ABOUTME: Clock abstraction for arrival timing
// ABOUTME: Lets tests drive jitter and timer logic deterministically
package layered

import (
	"sync"
	"time"
)

// Clock provides the current time
type Clock interface {
	Now() time.Time
}

// MonotonicClock uses the system clock
type MonotonicClock struct{}

func (MonotonicClock) Now() time.Time { return time.Now() }

// MockClock is a manually advanced clock for tests
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockClock starts a mock clock at t
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
