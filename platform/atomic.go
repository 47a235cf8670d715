package platform

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// monotonicCounter backs CurrentTimeMillis on no-OS profiles where no
// wall-clock source exists; it is itself a native atomic since the host
// running this Go binary always has them, even when emulating a target
// that claims not to.
var monotonicCounter = newNativeU64(0)

// --- native implementation, backed by sync/atomic ---

type nativeU32 struct{ v atomic.Uint32 }

func newNativeU32(initial uint32) *nativeU32 {
	n := &nativeU32{}
	n.v.Store(initial)
	return n
}

func (n *nativeU32) Load() uint32                                  { return n.v.Load() }
func (n *nativeU32) Store(val uint32)                               { n.v.Store(val) }
func (n *nativeU32) CompareAndSwap(old, new uint32) bool            { return n.v.CompareAndSwap(old, new) }
func (n *nativeU32) Add(delta uint32) uint32                        { return n.v.Add(delta) }

type nativeU64 struct{ v atomic.Uint64 }

func newNativeU64(initial uint64) *nativeU64 {
	n := &nativeU64{}
	n.v.Store(initial)
	return n
}

func (n *nativeU64) Load() uint64                        { return n.v.Load() }
func (n *nativeU64) Store(val uint64)                     { n.v.Store(val) }
func (n *nativeU64) CompareAndSwap(old, new uint64) bool  { return n.v.CompareAndSwap(old, new) }
func (n *nativeU64) Add(delta uint64) uint64              { return n.v.Add(delta) }

// --- fallback implementation: a single-permit semaphore guards the cell,
// standing in for a spinlock-protected cell on platforms lacking native
// atomics. Acquire never blocks for long since every critical section
// below is a handful of instructions. ---

type fallbackU32 struct {
	sem *semaphore.Weighted
	v   uint32
}

func newFallbackU32(initial uint32) *fallbackU32 {
	return &fallbackU32{sem: semaphore.NewWeighted(1), v: initial}
}

func (f *fallbackU32) lock()   { _ = f.sem.Acquire(context.Background(), 1) }
func (f *fallbackU32) unlock() { f.sem.Release(1) }

func (f *fallbackU32) Load() uint32 {
	f.lock()
	defer f.unlock()
	return f.v
}

func (f *fallbackU32) Store(val uint32) {
	f.lock()
	defer f.unlock()
	f.v = val
}

func (f *fallbackU32) CompareAndSwap(old, new uint32) bool {
	f.lock()
	defer f.unlock()
	if f.v != old {
		return false
	}
	f.v = new
	return true
}

func (f *fallbackU32) Add(delta uint32) uint32 {
	f.lock()
	defer f.unlock()
	f.v += delta
	return f.v
}

type fallbackU64 struct {
	sem *semaphore.Weighted
	v   uint64
}

func newFallbackU64(initial uint64) *fallbackU64 {
	return &fallbackU64{sem: semaphore.NewWeighted(1), v: initial}
}

func (f *fallbackU64) lock()   { _ = f.sem.Acquire(context.Background(), 1) }
func (f *fallbackU64) unlock() { f.sem.Release(1) }

func (f *fallbackU64) Load() uint64 {
	f.lock()
	defer f.unlock()
	return f.v
}

func (f *fallbackU64) Store(val uint64) {
	f.lock()
	defer f.unlock()
	f.v = val
}

func (f *fallbackU64) CompareAndSwap(old, new uint64) bool {
	f.lock()
	defer f.unlock()
	if f.v != old {
		return false
	}
	f.v = new
	return true
}

func (f *fallbackU64) Add(delta uint64) uint64 {
	f.lock()
	defer f.unlock()
	f.v += delta
	return f.v
}
