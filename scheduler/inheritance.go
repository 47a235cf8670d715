package scheduler

import "github.com/wippyai/wasm-runtime/async"

// ResourceID identifies a resource whose ownership can create a
// priority-inheritance dependency (a task blocked on a handle table entry,
// a lock, or any other serialized resource).
type ResourceID uint32

// Boost records that Task's effective priority should rise to Priority.
type Boost struct {
	Task     async.TaskID
	Priority Priority
}

// InheritanceChain tracks, per resource, who holds it and who is waiting,
// so a high-priority task blocked behind a low-priority holder can lend
// its priority up the chain rather than starve behind medium-priority
// tasks that preempt the holder first (classic priority inversion).
//
// The walk is capped at maxDepth hops: resources form a small, bounded
// graph in this runtime (handle tables, not arbitrary user locks), so an
// unbounded chain indicates a cycle or misuse rather than a legitimate
// dependency, and the cap keeps Wait's cost predictable under fuel
// metering.
type InheritanceChain struct {
	holders  map[ResourceID]async.TaskID
	waitsOn  map[async.TaskID]ResourceID // task -> resource it is blocked on, if any
	maxDepth int
}

// NewInheritanceChain creates a chain that inherits priority across at
// most maxDepth resource hops.
func NewInheritanceChain(maxDepth int) *InheritanceChain {
	if maxDepth <= 0 {
		maxDepth = 8
	}
	return &InheritanceChain{
		holders:  make(map[ResourceID]async.TaskID),
		waitsOn:  make(map[async.TaskID]ResourceID),
		maxDepth: maxDepth,
	}
}

// Acquire records that holder now owns res.
func (c *InheritanceChain) Acquire(res ResourceID, holder async.TaskID) {
	c.holders[res] = holder
}

// Wait records that waiter (at waiterPriority) is blocked on res and walks
// the chain of holders, returning the boosts the scheduler should apply:
// res's holder first, then whatever resource that holder is itself
// waiting on, up to maxDepth hops or until a holder already at or above
// waiterPriority is reached.
func (c *InheritanceChain) Wait(res ResourceID, waiter async.TaskID, waiterPriority Priority) []Boost {
	c.waitsOn[waiter] = res

	var boosts []Boost
	cur := res
	seen := make(map[ResourceID]bool, c.maxDepth)
	for depth := 0; depth < c.maxDepth; depth++ {
		if seen[cur] {
			break // cycle in the wait graph; stop rather than loop forever
		}
		seen[cur] = true

		holder, ok := c.holders[cur]
		if !ok {
			break
		}

		boosts = append(boosts, Boost{Task: holder, Priority: waiterPriority})

		next, blocked := c.waitsOn[holder]
		if !blocked {
			break
		}
		cur = next
	}
	return boosts
}

// Release clears res's holder and returns the set of tasks whose boosted
// priority should revert to their base priority because nothing depends
// on res anymore.
//
// This chain does not track per-resource boost attribution beyond the
// holder itself: Scheduler.Release restores the releasing resource's
// immediate holder to its recorded base priority. A holder still blocking
// a different waiter through another resource will be re-boosted on the
// next Wait call for that resource.
func (c *InheritanceChain) Release(res ResourceID) []Boost {
	holder, ok := c.holders[res]
	delete(c.holders, res)
	if !ok {
		return nil
	}
	for waiter, r := range c.waitsOn {
		if r == res {
			delete(c.waitsOn, waiter)
		}
	}
	return []Boost{{Task: holder}}
}
