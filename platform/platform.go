package platform

import (
	"time"

	"github.com/wippyai/wasm-runtime/errors"
)

// IntegrityLevel mirrors safety.Level without importing the safety package,
// keeping platform a true leaf (L0) with no upward dependency.
type IntegrityLevel uint8

const (
	LevelQM IntegrityLevel = iota
	LevelA
	LevelB
	LevelC
	LevelD
)

// Feature names a capability a platform may or may not provide.
type Feature string

const (
	FeatureNativeAtomics  Feature = "native-atomics"
	FeatureGuardPages     Feature = "guard-pages"
	FeatureVirtualMemory  Feature = "virtual-memory"
	FeatureHighResTimer   Feature = "high-res-timer"
	FeatureMemoryProtect  Feature = "memory-protection"
	FeatureDynamicAllocOK Feature = "dynamic-alloc"
	FeatureAtomicFallback Feature = "atomic-fallback"
	FeatureMonotonicOnly  Feature = "monotonic-time-only"
)

// FeatureSet is the enabled subset of Feature for a given platform.
type FeatureSet map[Feature]bool

// Has reports whether f is enabled.
func (s FeatureSet) Has(f Feature) bool { return s[f] }

// Bytes is a fixed-capacity byte region handed out by AcquireMemory.
type Bytes struct {
	data    []byte
	crateID string
}

// Data returns the underlying byte slice. Callers must not grow it.
func (b *Bytes) Data() []byte { return b.data }

// CrateID returns the logical budget this region is attributed to.
func (b *Bytes) CrateID() string { return b.crateID }

// Platform is the host-facing interface the rest of the runtime consumes
// for memory, time and atomics, kept narrow enough to implement over a
// bare-metal or WASI host alike.
type Platform interface {
	// AcquireMemory reserves size bytes attributed to crateID. Only
	// admissible during initialization at IntegrityLevel >= LevelC; callers
	// above that boundary belong to the bounded package, not here.
	AcquireMemory(size int, crateID string) (*Bytes, error)
	// ReleaseMemory returns a previously acquired region to the platform.
	ReleaseMemory(*Bytes)
	// CurrentTimeMillis returns the platform's notion of elapsed time in
	// milliseconds. On a no-OS profile this is a monotonic counter, not
	// wall-clock time.
	CurrentTimeMillis() int64
	// Features reports the capability set this platform provides.
	Features() FeatureSet
	// IntegrityLevel reports the level this platform was configured for.
	IntegrityLevel() IntegrityLevel
	// NewAtomicU32 / NewAtomicU64 return fresh atomic cells. On platforms
	// lacking FeatureNativeAtomics these fall back to a spinlock-protected
	// cell.
	NewAtomicU32(initial uint32) AtomicU32
	NewAtomicU64(initial uint64) AtomicU64
}

// AtomicU32 is a platform atomic cell over a 32-bit value.
type AtomicU32 interface {
	Load() uint32
	Store(uint32)
	CompareAndSwap(old, new uint32) bool
	Add(delta uint32) uint32
}

// AtomicU64 is a platform atomic cell over a 64-bit value.
type AtomicU64 interface {
	Load() uint64
	Store(uint64)
	CompareAndSwap(old, new uint64) bool
	Add(delta uint64) uint64
}

// hostPlatform implements Platform with an invariant that the sum of all
// live AcquireMemory calls never exceeds totalBudget.
type hostPlatform struct {
	level       IntegrityLevel
	features    FeatureSet
	totalBudget int64
	used        int64
	nativeAtoms bool
}

// Default returns the host-allocator-backed platform, admissible only at
// QM/A where dynamic allocation is unrestricted.
func Default() Platform {
	return &hostPlatform{
		level: LevelQM,
		features: FeatureSet{
			FeatureNativeAtomics:  true,
			FeatureGuardPages:     true,
			FeatureVirtualMemory:  true,
			FeatureHighResTimer:   true,
			FeatureMemoryProtect:  true,
			FeatureDynamicAllocOK: true,
		},
		totalBudget: 1 << 34, // 16 GiB notional ceiling; hosts may override.
		nativeAtoms: true,
	}
}

// NoOS returns the minimal profile for no-OS targets: no dynamic
// allocation, atomics emulated with a spinlock-protected cell, and a
// monotonic counter standing in for wall-clock time.
func NoOS(level IntegrityLevel, totalMemory int) Platform {
	return &hostPlatform{
		level: level,
		features: FeatureSet{
			FeatureAtomicFallback: true,
			FeatureMonotonicOnly:  true,
		},
		totalBudget: int64(totalMemory),
		nativeAtoms: false,
	}
}

func (p *hostPlatform) AcquireMemory(size int, crateID string) (*Bytes, error) {
	if size < 0 {
		return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
			Detail("negative size %d", size).Build()
	}
	if p.used+int64(size) > p.totalBudget {
		return nil, errors.OutOfBudget(errors.PhaseRuntime, crateID, size)
	}
	p.used += int64(size)
	return &Bytes{data: make([]byte, size), crateID: crateID}, nil
}

func (p *hostPlatform) ReleaseMemory(b *Bytes) {
	if b == nil {
		return
	}
	p.used -= int64(len(b.data))
	if p.used < 0 {
		p.used = 0
	}
}

func (p *hostPlatform) CurrentTimeMillis() int64 {
	if p.features.Has(FeatureMonotonicOnly) {
		return monotonicCounter.Add(1)
	}
	return time.Now().UnixMilli()
}

func (p *hostPlatform) Features() FeatureSet         { return p.features }
func (p *hostPlatform) IntegrityLevel() IntegrityLevel { return p.level }

func (p *hostPlatform) NewAtomicU32(initial uint32) AtomicU32 {
	if p.nativeAtoms {
		return newNativeU32(initial)
	}
	return newFallbackU32(initial)
}

func (p *hostPlatform) NewAtomicU64(initial uint64) AtomicU64 {
	if p.nativeAtoms {
		return newNativeU64(initial)
	}
	return newFallbackU64(initial)
}
