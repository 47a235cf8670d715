package bounded

import (
	"github.com/wippyai/wasm-runtime/errors"
	"github.com/wippyai/wasm-runtime/platform"
)

// Provider is the allocation policy every bounded container is
// parameterized over. A Provider hands out a fixed byte budget; it never
// grows past what Acquire reserved.
type Provider interface {
	// Acquire reserves size bytes, attributed to CrateID for budget
	// accounting. Returns OutOfBudget if the provider's pool is exhausted.
	Acquire(size int) ([]byte, error)
	// Release returns a previously acquired slice to the provider's pool.
	Release([]byte)
	// CrateID identifies the logical budget this provider draws from.
	CrateID() string
	// Dynamic reports whether this provider is backed by the host
	// allocator (true) or a compile-time-sized static pool (false).
	Dynamic() bool
}

// DynamicProvider draws directly from the Go heap through a
// platform.Platform. Only admissible at safety.LevelQM/LevelA — higher
// integrity levels must use StaticProvider.
type DynamicProvider struct {
	plat    platform.Platform
	crateID string
}

// NewDynamicProvider creates a host-allocator-backed provider.
func NewDynamicProvider(plat platform.Platform, crateID string) *DynamicProvider {
	return &DynamicProvider{plat: plat, crateID: crateID}
}

func (p *DynamicProvider) Acquire(size int) ([]byte, error) {
	b, err := p.plat.AcquireMemory(size, p.crateID)
	if err != nil {
		return nil, err
	}
	return b.Data(), nil
}

func (p *DynamicProvider) Release([]byte)        {}
func (p *DynamicProvider) CrateID() string       { return p.crateID }
func (p *DynamicProvider) Dynamic() bool         { return true }

// StaticProvider is backed by one compile-time-sized byte region reserved
// once at construction; Acquire sub-allocates from that region with a
// simple bump allocator and never touches the host allocator again. This
// is the only admissible provider kind at safety.LevelD.
type StaticProvider struct {
	crateID string
	pool    []byte
	offset  int
}

// NewStaticProvider reserves poolSize bytes up front from plat, attributed
// to crateID. Must be called only during initialization, before any
// higher integrity level forbids further host allocation.
func NewStaticProvider(plat platform.Platform, crateID string, poolSize int) (*StaticProvider, error) {
	b, err := plat.AcquireMemory(poolSize, crateID)
	if err != nil {
		return nil, err
	}
	return &StaticProvider{crateID: crateID, pool: b.Data()}, nil
}

func (p *StaticProvider) Acquire(size int) ([]byte, error) {
	if p.offset+size > len(p.pool) {
		return nil, errors.OutOfBudget(errors.PhaseRuntime, p.crateID, size)
	}
	b := p.pool[p.offset : p.offset+size : p.offset+size]
	p.offset += size
	return b, nil
}

// Release is a scoped no-op for the bump allocator: the static pool
// reclaims nothing until the provider itself goes out of scope, a
// whole-provider granularity reclaim rather than per-slice.
func (p *StaticProvider) Release([]byte)  {}
func (p *StaticProvider) CrateID() string { return p.crateID }
func (p *StaticProvider) Dynamic() bool   { return false }

// Remaining reports unused bytes in the static pool; useful for budget
// accounting diagnostics and tests.
func (p *StaticProvider) Remaining() int { return len(p.pool) - p.offset }
