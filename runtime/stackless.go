package runtime

import (
	"sync"

	"github.com/wippyai/wasm-runtime/bounded"
	"github.com/wippyai/wasm-runtime/errors"
	"github.com/wippyai/wasm-runtime/fuel"
	"github.com/wippyai/wasm-runtime/platform"
	"github.com/wippyai/wasm-runtime/resource"
	"github.com/wippyai/wasm-runtime/scheduler"
	"github.com/wippyai/wasm-runtime/vm"
	"github.com/wippyai/wasm-runtime/wasm"

	"github.com/wippyai/wasm-runtime/async"
)

// RawHostFunc is a core-module import resolved directly against operand
// stack values, the stackless counterpart of the canonical-ABI-typed
// HostFunc the wazero path binds: no lifting/lowering, just i32/i64/f32/f64
// in and out. Registered per (import module, import name) pair.
type RawHostFunc func(args []vm.Value) ([]vm.Value, error)

// StacklessModule is a core module decoded for execution on vm.Engine
// rather than compiled by the wazero engine.
type StacklessModule struct {
	decoded *wasm.Module
}

// LoadStacklessModule decodes and validates a core WebAssembly binary for
// direct interpretation. Unlike LoadWASM/LoadComponent, it never touches
// the wazero engine: decoding and validation are this package's own
// wasm.ParseModuleValidate.
func (r *Runtime) LoadStacklessModule(data []byte) (*StacklessModule, error) {
	mod, err := wasm.ParseModuleValidate(data)
	if err != nil {
		return nil, errors.Load("decode stackless module", err)
	}
	return &StacklessModule{decoded: mod}, nil
}

// RegisterRawHostFunc binds a raw core-wasm host function under
// (module, name), consulted when a stackless instance's import of that
// name resolves to a PendingHostCall.
func (r *Runtime) RegisterRawHostFunc(module, name string, fn RawHostFunc) {
	r.rawHostMu.Lock()
	defer r.rawHostMu.Unlock()
	if r.rawHosts == nil {
		r.rawHosts = make(map[string]map[string]RawHostFunc)
	}
	if r.rawHosts[module] == nil {
		r.rawHosts[module] = make(map[string]RawHostFunc)
	}
	r.rawHosts[module][name] = fn
}

func (r *Runtime) lookupRawHostFunc(module, name string) (RawHostFunc, bool) {
	r.rawHostMu.RLock()
	defer r.rawHostMu.RUnlock()
	fn, ok := r.rawHosts[module][name]
	return fn, ok
}

// StacklessInstance is a module instantiated onto vm.Instance, driven one
// task at a time by the scheduler rather than called straight through.
type StacklessInstance struct {
	module *StacklessModule
	inst   *vm.Instance
}

// InstantiateStackless allocates memory/table/globals and applies active
// segments, matching core-module instantiation semantics; it carries no
// imported globals since the tasks this runtime schedules do not import
// mutable host state.
func (r *Runtime) InstantiateStackless(mod *StacklessModule) (*StacklessInstance, error) {
	inst, err := vm.Instantiate(mod.decoded, nil)
	if err != nil {
		return nil, errors.Instantiation(err)
	}
	return &StacklessInstance{module: mod, inst: inst}, nil
}

// ExportedFuncIdx resolves an exported function's index by name.
func (si *StacklessInstance) ExportedFuncIdx(name string) (uint32, error) {
	for _, exp := range si.module.decoded.Exports {
		if exp.Kind == wasm.KindFunc && exp.Name == name {
			return exp.Idx, nil
		}
	}
	return 0, errors.NotFound(errors.PhaseRuntime, "export", name)
}

// task is one scheduled unit of stackless execution: its own fuel ledger
// and vm.Engine, stepped a quantum at a time by PollExecutor.
type task struct {
	id     async.TaskID
	inst   *StacklessInstance
	ledger *fuel.Ledger
	engine *vm.Engine
}

// TaskResult is what PollExecutor reports once a task leaves the ready/
// running cycle: exactly one of Results or Err is set once Done is true.
type TaskResult struct {
	ID      async.TaskID
	Done    bool
	Results []vm.Value
	Err     error
}

// SpawnOptions configures a spawned task's scheduling and fuel budget.
type SpawnOptions struct {
	Component    resource.ComponentInstanceID
	Priority     scheduler.Priority
	Budget       fuel.Amount
	DeadlineFuel int64 // -1 for no deadline
	Preemptible  bool
}

// DefaultSpawnOptions mirrors scheduler.DefaultConfig's quantum range: a
// normal-priority, preemptible task with no deadline and a budget large
// enough for a handful of quanta.
func DefaultSpawnOptions() SpawnOptions {
	return SpawnOptions{
		Priority:     scheduler.PriorityNormal,
		Budget:       4000,
		DeadlineFuel: -1,
		Preemptible:  true,
	}
}

func (r *Runtime) ensureScheduler() {
	r.schedOnce.Do(func() {
		r.scheduler = scheduler.NewScheduler(scheduler.DefaultConfig())
		r.tasks = make(map[async.TaskID]*task)
	})
}

// SpawnTask admits funcName on inst as a new scheduled task and returns
// its TaskID; the call returns immediately, the task's own vm.Engine does
// not run a single instruction until PollExecutor selects it.
func (r *Runtime) SpawnTask(inst *StacklessInstance, funcName string, args []vm.Value, opts SpawnOptions) (async.TaskID, error) {
	r.ensureScheduler()

	funcIdx, err := inst.ExportedFuncIdx(funcName)
	if err != nil {
		return 0, err
	}

	ledger := fuel.NewLedger(opts.Budget, fuel.DefaultCosts)
	provider := bounded.NewDynamicProvider(platform.Default(), "stackless-task")
	eng := vm.NewEngine(ledger, vm.DefaultLimits(), provider)
	if err := eng.Call(inst.inst, funcIdx, args); err != nil {
		return 0, errors.Wrap(errors.PhaseSchedule, errors.KindInvalidData, err, "starting task call")
	}

	r.taskMu.Lock()
	id := async.TaskID(r.nextTaskID + 1)
	r.nextTaskID = uint64(id)
	r.taskMu.Unlock()

	if err := r.scheduler.AddTask(id, opts.Component, opts.Priority, opts.Budget, opts.DeadlineFuel, opts.Preemptible); err != nil {
		return 0, err
	}

	t := &task{id: id, inst: inst, ledger: ledger, engine: eng}
	r.taskMu.Lock()
	r.tasks[id] = t
	r.taskMu.Unlock()
	return id, nil
}

// PollExecutor asks the scheduler for the next task to run and drives its
// vm.Engine for one quantum (or until it blocks on a host call, completes,
// or traps). A host call is resolved synchronously against the raw host
// function registry — the stackless path has no async host calls of its
// own yet, so ResumeHostCall always fires before control returns to the
// scheduler. Returns ok=false when no task is ready.
func (r *Runtime) PollExecutor() (TaskResult, bool, error) {
	r.ensureScheduler()

	id, ok, err := r.scheduler.ScheduleNext()
	if err != nil || !ok {
		return TaskResult{}, false, err
	}

	r.taskMu.Lock()
	t := r.tasks[id]
	r.taskMu.Unlock()
	if t == nil {
		return TaskResult{}, false, errors.NotFound(errors.PhaseSchedule, "task", "")
	}

	info, _ := r.scheduler.TaskInfo(id)
	consumedBefore := t.ledger.Budget() - t.ledger.Remaining()

	for t.engine.Step() {
		if t.engine.State() == vm.HostCall {
			pending := t.engine.PendingHostCall()
			if err := r.resolveHostCall(t, pending); err != nil {
				t.engine.FailHostCall(err)
				break
			}
			continue
		}
		if sofar := t.ledger.Budget() - t.ledger.Remaining() - consumedBefore; sofar >= info.Quantum {
			break // quantum exhausted: hand back to the scheduler mid-flight
		}
	}
	quantumConsumed := t.ledger.Budget() - t.ledger.Remaining() - consumedBefore

	switch t.engine.State() {
	case vm.Completed:
		res := TaskResult{ID: id, Done: true, Results: t.engine.Results()}
		_ = r.scheduler.UpdateTaskState(id, async.TaskCompleted, quantumConsumed)
		r.removeTask(id)
		return res, true, nil
	case vm.Error:
		res := TaskResult{ID: id, Done: true, Err: t.engine.Err()}
		_ = r.scheduler.UpdateTaskState(id, async.TaskFailed, quantumConsumed)
		r.removeTask(id)
		return res, true, nil
	default:
		// Quantum exhausted or preempted mid-flight; stays Running/Paused
		// internally, goes back to TaskReady in the scheduler's view.
		_ = r.scheduler.UpdateTaskState(id, async.TaskReady, quantumConsumed)
		return TaskResult{ID: id, Done: false}, true, nil
	}
}

func (r *Runtime) removeTask(id async.TaskID) {
	r.taskMu.Lock()
	delete(r.tasks, id)
	r.taskMu.Unlock()
}

// resolveHostCall looks up the imported function's (module, name) pair
// from the instance's declared imports and dispatches to a registered
// RawHostFunc.
func (r *Runtime) resolveHostCall(t *task, pending *vm.PendingHostCall) error {
	mod := pending.Instance.Module
	if int(pending.FuncIdx) >= len(mod.Imports) {
		return errors.Trap(errors.KindFunctionNotFound, "host call references a non-import function index")
	}
	imp := mod.Imports[pending.FuncIdx]
	fn, ok := r.lookupRawHostFunc(imp.Module, imp.Name)
	if !ok {
		return errors.NotFound(errors.PhaseSchedule, "raw host function", imp.Module+"."+imp.Name)
	}
	results, err := fn(pending.Args)
	if err != nil {
		return err
	}
	return t.engine.ResumeHostCall(results)
}

// stacklessState groups the fields Runtime carries for the stackless
// spawn/poll facade, embedded into Runtime in runtime.go so the wazero
// path's fields stay undisturbed.
type stacklessState struct {
	schedOnce  sync.Once
	scheduler  *scheduler.Scheduler
	taskMu     sync.Mutex
	tasks      map[async.TaskID]*task
	nextTaskID uint64

	rawHostMu sync.RWMutex
	rawHosts  map[string]map[string]RawHostFunc
}
