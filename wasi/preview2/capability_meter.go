package preview2

import (
	"sync"
	"time"

	"github.com/wippyai/wasm-runtime/errors"
)

// CapabilityLimit bounds how many times a capability may be gated within a
// sliding window. A zero Max means "count only, never deny."
type CapabilityLimit struct {
	Window time.Duration
	Max    uint64
}

type capabilityCounter struct {
	windowStart time.Time
	windowCount uint64
	total       uint64
}

// CapabilityMeter counts per-capability host-call invocations and optionally
// enforces a rate limit on any of them. Host implementations call Gate
// before performing the underlying syscall-backed operation; with no limit
// configured for a capability, Gate only counts and never denies, so
// attaching a meter to a resource table is safe even when no policy has
// been set yet.
type CapabilityMeter struct {
	mu     sync.Mutex
	limits map[string]CapabilityLimit
	counts map[string]*capabilityCounter
}

// NewCapabilityMeter creates an empty meter with no configured limits.
func NewCapabilityMeter() *CapabilityMeter {
	return &CapabilityMeter{
		limits: make(map[string]CapabilityLimit),
		counts: make(map[string]*capabilityCounter),
	}
}

// SetLimit installs or replaces the rate limit for a named capability.
func (m *CapabilityMeter) SetLimit(capability string, limit CapabilityLimit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limits[capability] = limit
}

// Gate records one invocation of capability, returning a CapabilityDenied
// error if it pushes the current window past the configured limit.
func (m *CapabilityMeter) Gate(capability string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.counts[capability]
	if !ok {
		c = &capabilityCounter{}
		m.counts[capability] = c
	}
	c.total++

	limit, hasLimit := m.limits[capability]
	if !hasLimit || limit.Max == 0 {
		return nil
	}

	now := time.Now()
	if c.windowStart.IsZero() || now.Sub(c.windowStart) >= limit.Window {
		c.windowStart = now
		c.windowCount = 0
	}
	c.windowCount++
	if c.windowCount > limit.Max {
		return errors.CapabilityDenied("capability " + capability + " exceeded its rate limit")
	}
	return nil
}

// Count returns the total number of times capability has been gated,
// including denied invocations.
func (m *CapabilityMeter) Count(capability string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.counts[capability]; ok {
		return c.total
	}
	return 0
}
