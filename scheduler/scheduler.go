package scheduler

import (
	"container/heap"
	"sync"

	"github.com/wippyai/wasm-runtime/async"
	"github.com/wippyai/wasm-runtime/errors"
	"github.com/wippyai/wasm-runtime/fuel"
	"github.com/wippyai/wasm-runtime/resource"
)

// Priority is a task's scheduling priority. Four bands partition the
// range: Low/Normal/High/Critical, matching the boost ladder
// boostPriority walks during aging.
type Priority uint8

const (
	PriorityLow      Priority = 64
	PriorityNormal   Priority = 128
	PriorityHigh     Priority = 192
	PriorityCritical Priority = 255
)

func band(p Priority) int {
	switch {
	case p >= PriorityCritical:
		return 3
	case p >= PriorityHigh:
		return 2
	case p >= PriorityNormal:
		return 1
	default:
		return 0
	}
}

// Config tunes the scheduler's quantum sizing and starvation handling.
type Config struct {
	DefaultQuantum         fuel.Amount
	MinQuantum             fuel.Amount
	MaxQuantum             fuel.Amount
	EnablePriorityAging    bool
	AgingThreshold         int64 // fuel-time units a ready task may wait before a boost
	MaxPriorityBoost       int
	EnableDeadlineSchedule bool
	// HardDeadlineMode transitions a task straight to Failed on a deadline
	// miss instead of merely preempting it; a deadline miss is otherwise a
	// warning event; the task simply loses the processor and stays ready.
	HardDeadlineMode bool
	// MaxInheritanceChain bounds how many resource-holder hops a priority
	// boost propagates through; must be >= 4.
	MaxInheritanceChain int
}

// DefaultConfig mirrors the cost ranges used elsewhere in the runtime:
// a normal quantum of 1000 fuel units, boosted 2x for high priority and
// halved for low, bounded to [100, 10000].
func DefaultConfig() Config {
	return Config{
		DefaultQuantum:         1000,
		MinQuantum:             100,
		MaxQuantum:             10000,
		EnablePriorityAging:    true,
		AgingThreshold:         5000,
		MaxPriorityBoost:       3,
		EnableDeadlineSchedule: true,
		MaxInheritanceChain:    4,
	}
}

// TaskInfo is the scheduler's bookkeeping record for one task, distinct
// from async.Task's own state/cancellation bookkeeping: the scheduler
// tracks priority, quantum and timing, the async.Task tracks lifecycle
// and parent/child cancellation.
type TaskInfo struct {
	ID                async.TaskID
	Component         resource.ComponentInstanceID
	BasePriority      Priority
	EffectivePriority Priority
	Budget            fuel.Amount
	Consumed          fuel.Amount
	Quantum           fuel.Amount
	State             async.TaskState
	LastRunFuelTime   int64
	TotalRunFuelTime  int64
	PreemptionCount   int
	PriorityBoost     int
	DeadlineFuelTime  int64 // -1 means no deadline
	Preemptible       bool
}

// running is the task currently occupying the processor, if any.
type running struct {
	id               async.TaskID
	startFuelTime    int64
	allocatedQuantum fuel.Amount
	consumedQuantum  fuel.Amount
	priority         Priority
	preemptible      bool
}

// Stats collects scheduler activity for diagnostics and the run command's
// live introspection view.
type Stats struct {
	TotalPreemptions     int
	TotalContextSwitches int
	TotalPriorityBoosts  int
	DeadlineMisses       int
	TotalTasksScheduled  int
	ActiveTasks          int
}

// readyItem is one entry in the ready heap: ordered by priority
// descending, then by enqueue sequence ascending so tasks at the same
// priority are served round-robin (re-enqueueing a preempted task gives
// it a fresh, later sequence number).
type readyItem struct {
	id       async.TaskID
	priority Priority
	seq      uint64
}

type readyHeap []readyItem

func (h readyHeap) Len() int { return len(h) }
func (h readyHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h readyHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *readyHeap) Push(x any)   { *h = append(*h, x.(readyItem)) }
func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Scheduler is a fuel-metered, priority-preemptive scheduler over
// async.Task instances.
type Scheduler struct {
	mu          sync.Mutex
	ready       readyHeap
	tasks       map[async.TaskID]*TaskInfo
	current     *running
	config      Config
	seq         uint64
	fuelTime    int64
	preemptable bool
	stats       Stats
	inherit     *InheritanceChain
}

// NewScheduler creates a scheduler with the given config; its
// priority-inheritance chain is bounded to config.MaxInheritanceChain hops
// (at least 4, per the runtime's bounded-blocking requirement).
func NewScheduler(config Config) *Scheduler {
	maxChain := config.MaxInheritanceChain
	if maxChain < 4 {
		maxChain = 4
	}
	return &Scheduler{
		tasks:       make(map[async.TaskID]*TaskInfo),
		config:      config,
		preemptable: true,
		inherit:     NewInheritanceChain(maxChain),
	}
}

// AddTask registers a task at basePriority with the given fuel budget and
// optional deadline (deadlineFuelTime < 0 means no deadline), and enqueues
// it as ready.
func (s *Scheduler) AddTask(id async.TaskID, component resource.ComponentInstanceID, basePriority Priority, budget fuel.Amount, deadlineFuelTime int64, preemptible bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[id]; exists {
		return errors.CapacityExceeded(errors.PhaseSchedule, nil, len(s.tasks))
	}

	info := &TaskInfo{
		ID:                id,
		Component:         component,
		BasePriority:      basePriority,
		EffectivePriority: basePriority,
		Budget:            budget,
		Quantum:           s.calculateQuantum(basePriority, budget),
		State:             async.TaskReady,
		DeadlineFuelTime:  deadlineFuelTime,
		Preemptible:       preemptible,
	}
	s.tasks[id] = info
	s.enqueueReady(info)

	s.stats.TotalTasksScheduled++
	s.stats.ActiveTasks++
	return nil
}

func (s *Scheduler) calculateQuantum(p Priority, budget fuel.Amount) fuel.Amount {
	var base fuel.Amount
	switch band(p) {
	case 3:
		base = s.config.MaxQuantum
	case 2:
		base = s.config.DefaultQuantum * 2
	case 1:
		base = s.config.DefaultQuantum
	default:
		base = s.config.DefaultQuantum / 2
	}
	if base < s.config.MinQuantum {
		base = s.config.MinQuantum
	}
	if base > s.config.MaxQuantum {
		base = s.config.MaxQuantum
	}
	if base > budget {
		base = budget
	}
	return base
}

func (s *Scheduler) enqueueReady(info *TaskInfo) {
	s.seq++
	heap.Push(&s.ready, readyItem{id: info.ID, priority: info.EffectivePriority, seq: s.seq})
}

// ScheduleNext selects the task to run next, preempting the current task
// first if any of the three preemption conditions hold: quantum
// exhaustion, a higher-priority ready task, or a deadline violation. A
// deadline miss is a warning event (the task is merely preempted) unless
// Config.HardDeadlineMode is set, in which case the task fails outright.
// Returns ok=false if nothing is ready.
func (s *Scheduler) ScheduleNext() (async.TaskID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		action := s.preemptionActionLocked(s.current)
		switch action {
		case actionFail:
			s.failCurrentLocked()
		case actionPreempt:
			s.preemptCurrentLocked()
		case actionNone:
			return s.current.id, true, nil
		}
	}

	id, ok := s.selectHighestPriorityLocked()
	if !ok {
		return 0, false, nil
	}
	s.startTaskLocked(id)
	return id, true, nil
}

type preemptionAction int

const (
	actionNone preemptionAction = iota
	actionPreempt
	actionFail
)

// preemptionActionLocked implements the three preemption conditions.
func (s *Scheduler) preemptionActionLocked(cur *running) preemptionAction {
	if !s.preemptable || !cur.preemptible {
		return actionNone
	}
	if cur.consumedQuantum >= cur.allocatedQuantum {
		return actionPreempt
	}

	info := s.tasks[cur.id]
	if info == nil {
		return actionNone
	}

	for _, item := range s.ready {
		if item.priority > info.EffectivePriority {
			if t := s.tasks[item.id]; t != nil && t.State == async.TaskReady {
				return actionPreempt
			}
		}
	}

	if s.config.EnableDeadlineSchedule && info.DeadlineFuelTime >= 0 {
		elapsed := s.fuelTime - info.LastRunFuelTime
		if elapsed > info.DeadlineFuelTime {
			s.stats.DeadlineMisses++
			if s.config.HardDeadlineMode {
				return actionFail
			}
			return actionPreempt
		}
	}

	return actionNone
}

// failCurrentLocked removes the current task from the scheduler entirely,
// used for a hard-deadline-mode deadline miss.
func (s *Scheduler) failCurrentLocked() {
	cur := s.current
	s.current = nil
	if _, ok := s.tasks[cur.id]; ok {
		delete(s.tasks, cur.id)
		s.stats.ActiveTasks--
	}
}

func (s *Scheduler) preemptCurrentLocked() {
	cur := s.current
	s.current = nil

	info := s.tasks[cur.id]
	if info == nil {
		return
	}
	info.PreemptionCount++
	info.TotalRunFuelTime += s.fuelTime - cur.startFuelTime

	if info.State == async.TaskReady {
		s.enqueueReady(info)
	}
	s.stats.TotalPreemptions++
}

func (s *Scheduler) selectHighestPriorityLocked() (async.TaskID, bool) {
	for s.ready.Len() > 0 {
		item := heap.Pop(&s.ready).(readyItem)
		info := s.tasks[item.id]
		if info == nil || info.State != async.TaskReady {
			continue // stale entry: task removed or transitioned since enqueue
		}
		return item.id, true
	}
	return 0, false
}

func (s *Scheduler) startTaskLocked(id async.TaskID) {
	info := s.tasks[id]
	if info == nil {
		return
	}
	info.LastRunFuelTime = s.fuelTime
	s.current = &running{
		id:               id,
		startFuelTime:    s.fuelTime,
		allocatedQuantum: info.Quantum,
		priority:         info.EffectivePriority,
		preemptible:      info.Preemptible,
	}
	s.stats.TotalContextSwitches++
}

// UpdateTaskState advances fuel time by consumed, records the charge
// against the current run if id is running, and transitions the task's
// recorded state. Completed/Failed/Cancelled tasks are removed from the
// scheduler entirely; Waiting tasks drop out of the ready set until
// re-admitted with SetReady.
func (s *Scheduler) UpdateTaskState(id async.TaskID, state async.TaskState, consumed fuel.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fuelTime += int64(consumed)

	info, ok := s.tasks[id]
	if !ok {
		return errors.NotFound(errors.PhaseSchedule, "task", "")
	}
	info.Consumed += consumed
	info.State = state

	if s.current != nil && s.current.id == id {
		s.current.consumedQuantum += consumed
		info.TotalRunFuelTime += int64(consumed)
	}

	switch state {
	case async.TaskCompleted, async.TaskFailed, async.TaskCancelled:
		delete(s.tasks, id)
		if s.current != nil && s.current.id == id {
			s.current = nil
		}
		s.stats.ActiveTasks--
	case async.TaskWaiting:
		if s.current != nil && s.current.id == id {
			s.current = nil
		}
	case async.TaskReady:
		// If id is the task currently running, treat this as it
		// voluntarily yielding: clear current so preemptCurrentLocked
		// does not also enqueue it and create a duplicate ready entry.
		if s.current != nil && s.current.id == id {
			s.current = nil
		}
		s.enqueueReady(info)
	}

	if s.config.EnablePriorityAging {
		s.checkAgingLocked()
	}
	return nil
}

// checkAgingLocked boosts the effective priority of tasks that have been
// ready longer than AgingThreshold fuel-time units, up to MaxPriorityBoost
// boosts, so a starved low-priority task eventually outranks a steady
// stream of higher-priority arrivals.
func (s *Scheduler) checkAgingLocked() {
	for _, info := range s.tasks {
		if info.State != async.TaskReady {
			continue
		}
		waited := s.fuelTime - info.LastRunFuelTime
		if waited <= s.config.AgingThreshold || info.PriorityBoost >= s.config.MaxPriorityBoost {
			continue
		}
		newPriority := boostPriority(info.BasePriority, info.PriorityBoost+1)
		if newPriority == info.EffectivePriority {
			continue
		}
		info.PriorityBoost++
		info.EffectivePriority = newPriority
		s.enqueueReady(info)
		s.stats.TotalPriorityBoosts++
	}
}

// boostPriority walks a task's base priority up one band per boost
// level, saturating at Critical.
func boostPriority(base Priority, level int) Priority {
	p := base
	for i := 0; i < level; i++ {
		switch band(p) {
		case 0:
			p = PriorityNormal
		case 1:
			p = PriorityHigh
		case 2:
			p = PriorityCritical
		default:
			return PriorityCritical
		}
	}
	return p
}

// SetPreemptionEnabled toggles preemption globally; disabled, the current
// task always continues until it blocks or terminates.
func (s *Scheduler) SetPreemptionEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preemptable = enabled
}

// TaskInfo returns a copy of the bookkeeping record for id.
func (s *Scheduler) TaskInfo(id async.TaskID) (TaskInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.tasks[id]
	if !ok {
		return TaskInfo{}, false
	}
	return *info, true
}

// Statistics returns a snapshot of scheduler activity counters.
func (s *Scheduler) Statistics() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Inherit registers that waiter (at waiterPriority) is blocked on
// resource, boosting resource's current holder and, transitively, any
// task that holder itself is blocked on, up to the chain's configured
// depth. Call Uninherit when the wait resolves.
func (s *Scheduler) Inherit(res ResourceID, waiter async.TaskID, waiterPriority Priority) {
	s.mu.Lock()
	defer s.mu.Unlock()

	boosts := s.inherit.Wait(res, waiter, waiterPriority)
	for _, b := range boosts {
		if info := s.tasks[b.Task]; info != nil && b.Priority > info.EffectivePriority {
			info.EffectivePriority = b.Priority
			if info.State == async.TaskReady {
				s.enqueueReady(info)
			}
		}
	}
}

// Acquire records that holder now owns resource, the precondition for
// Inherit to find a holder to boost.
func (s *Scheduler) Acquire(res ResourceID, holder async.TaskID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inherit.Acquire(res, holder)
}

// Release clears resource's holder and restores any boosted task's
// priority once nothing depends on it anymore.
func (s *Scheduler) Release(res ResourceID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reverts := s.inherit.Release(res)
	for _, r := range reverts {
		if info := s.tasks[r.Task]; info != nil {
			info.EffectivePriority = info.BasePriority
		}
	}
}
