package scheduler

import (
	"math"
	"sort"
	"sync"

	"github.com/wippyai/wasm-runtime/async"
	"github.com/wippyai/wasm-runtime/errors"
	"github.com/wippyai/wasm-runtime/fuel"
)

// WcetMethod selects how a task's worst-case execution time (in fuel
// units) is derived from its recorded samples.
type WcetMethod uint8

const (
	// WcetStatic derives the estimate from the longest registered
	// control-flow path's declared cost, scaled by the safety margin;
	// falls back to the configured budget when no path cost is known, or
	// when no samples exist yet.
	WcetStatic WcetMethod = iota
	// WcetMeasurementBased reports mean plus a confidence-level z-score
	// multiple of the standard deviation across collected samples, scaled
	// by the safety margin.
	WcetMeasurementBased
	// WcetHybrid takes the larger of the static estimate and the
	// measurement-based estimate, so a measured regression is never
	// masked by an optimistic static figure.
	WcetHybrid
	// WcetProbabilistic reports a high percentile of the sample
	// distribution (by default the 99.9th) with the safety margin
	// applied on top, following the original analyzer's default method.
	WcetProbabilistic
)

// ControlFlowPath accumulates fuel samples for one distinguishable
// execution path through a task's body (e.g. one branch taken at a
// fuel-metered if), so per-path statistics can separate a cheap common
// case from an expensive rare one instead of blending both into a single
// average.
type ControlFlowPath struct {
	ID          uint32
	BasicBlocks []uint32
	// StaticCost is the summed declared fuel cost of every instruction on
	// this path, independent of any measured sample; the static method
	// uses the highest StaticCost among a task's registered paths.
	StaticCost     fuel.Amount
	Samples        []fuel.Amount
	ExecutionCount int
}

// ExecutionSample is one observed run's fuel cost.
type ExecutionSample struct {
	PathID       uint32
	FuelConsumed fuel.Amount
	FuelTime     int64
}

// WcetResult is the outcome of analyzing one task.
type WcetResult struct {
	TaskID       async.TaskID
	Method       WcetMethod
	WcetFuel     fuel.Amount
	BcetFuel     fuel.Amount
	AverageFuel  float64
	StdDeviation float64
	Confidence   float64
	CriticalPath uint32
	SampleCount  int
}

// WcetConfig tunes the analyzer's default method, sample retention and
// safety margin.
type WcetConfig struct {
	DefaultMethod      WcetMethod
	SafetyMarginFactor float64 // multiplied onto the raw estimate, e.g. 1.2 = +20%
	MaxSamplesPerTask  int
	MinSamplesForStats int
	Percentile         float64 // e.g. 0.999 for the 99.9th percentile, used by WcetProbabilistic
	ConfidenceLevel    float64 // e.g. 0.999 for 99.9% confidence, used by WcetMeasurementBased's z-score multiplier
}

// DefaultWcetConfig mirrors the original analyzer's defaults: hybrid
// method, a 20% safety margin, 500 retained samples per task, at least
// 50 samples before stats are trusted, 99.9th percentile and confidence.
func DefaultWcetConfig() WcetConfig {
	return WcetConfig{
		DefaultMethod:      WcetHybrid,
		SafetyMarginFactor: 1.2,
		MaxSamplesPerTask:  500,
		MinSamplesForStats: 50,
		Percentile:         0.999,
		ConfidenceLevel:    0.999,
	}
}

// WcetStats summarizes analyzer activity.
type WcetStats struct {
	TotalAnalyses     int
	TotalSamples      int
	TotalPaths        int
	Underestimations  int
	Overestimations   int
	// AverageAccuracy is a rolling mean of actual/estimated fuel ratios
	// recorded via Record; 1.0 means estimates track actual cost exactly.
	AverageAccuracy float64
	recordedRuns    int
}

// Analyzer estimates per-task worst-case fuel consumption from recorded
// execution samples, optionally broken down by control-flow path.
type Analyzer struct {
	mu       sync.Mutex
	config   WcetConfig
	samples  map[async.TaskID][]ExecutionSample
	paths    map[async.TaskID]map[uint32]*ControlFlowPath
	budgets  map[async.TaskID]fuel.Amount
	lastWcet map[async.TaskID]fuel.Amount
	stats    WcetStats
}

// NewAnalyzer creates an analyzer with the given config.
func NewAnalyzer(config WcetConfig) *Analyzer {
	return &Analyzer{
		config:   config,
		samples:  make(map[async.TaskID][]ExecutionSample),
		paths:    make(map[async.TaskID]map[uint32]*ControlFlowPath),
		budgets:  make(map[async.TaskID]fuel.Amount),
		lastWcet: make(map[async.TaskID]fuel.Amount),
	}
}

// SetBudget records task's static fuel budget, used as the WcetStatic
// estimate and as the floor for WcetHybrid.
func (a *Analyzer) SetBudget(task async.TaskID, budget fuel.Amount) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.budgets[task] = budget
}

// RecordSample appends one observed run to task's sample history,
// attributing it to a control-flow path if pathID is nonzero, and
// evicting the oldest sample once MaxSamplesPerTask is reached so memory
// stays bounded regardless of how long the task runs.
func (a *Analyzer) RecordSample(task async.TaskID, sample ExecutionSample) {
	a.mu.Lock()
	defer a.mu.Unlock()

	list := a.samples[task]
	list = append(list, sample)
	if len(list) > a.config.MaxSamplesPerTask {
		list = list[len(list)-a.config.MaxSamplesPerTask:]
	}
	a.samples[task] = list
	a.stats.TotalSamples++

	if sample.PathID != 0 {
		tp := a.paths[task]
		if tp == nil {
			tp = make(map[uint32]*ControlFlowPath)
			a.paths[task] = tp
		}
		p := tp[sample.PathID]
		if p == nil {
			p = &ControlFlowPath{ID: sample.PathID}
			tp[sample.PathID] = p
			a.stats.TotalPaths++
		}
		p.Samples = append(p.Samples, sample.FuelConsumed)
		p.ExecutionCount++
	}
}

// RegisterPath declares a control-flow path's basic-block sequence ahead
// of any samples referencing it, so Analyze can report which path is
// critical even if it has not yet been observed. staticCost is the
// summed declared fuel cost of the path's instructions, used by
// WcetStatic; pass 0 if not statically known.
func (a *Analyzer) RegisterPath(task async.TaskID, pathID uint32, basicBlocks []uint32, staticCost fuel.Amount) {
	a.mu.Lock()
	defer a.mu.Unlock()
	tp := a.paths[task]
	if tp == nil {
		tp = make(map[uint32]*ControlFlowPath)
		a.paths[task] = tp
	}
	p := tp[pathID]
	if p == nil {
		p = &ControlFlowPath{ID: pathID, BasicBlocks: basicBlocks, StaticCost: staticCost}
		tp[pathID] = p
		a.stats.TotalPaths++
		return
	}
	if staticCost > 0 {
		p.StaticCost = staticCost
	}
}

// staticEstimateLocked derives the static WCET as the highest StaticCost
// among task's registered paths, scaled by the configured safety margin.
// Falls back to the configured budget if no path declares a static cost.
func (a *Analyzer) staticEstimateLocked(task async.TaskID, budget fuel.Amount) fuel.Amount {
	var longest fuel.Amount
	for _, p := range a.paths[task] {
		if p.StaticCost > longest {
			longest = p.StaticCost
		}
	}
	if longest == 0 {
		return budget
	}
	return applyMargin(longest, a.config.SafetyMarginFactor)
}

// zScore returns the normal-distribution confidence multiplier for the
// nearest of the three standard confidence levels. z-score multipliers
// assume the underlying execution-time samples are approximately
// normally distributed; for strongly skewed distributions (e.g. a task
// with a rare, much more expensive branch) this understates the true
// tail and a distribution-specific or percentile-based method such as
// WcetProbabilistic is preferable.
func zScore(confidence float64) float64 {
	switch {
	case confidence >= 0.999:
		return 3.29
	case confidence >= 0.99:
		return 2.58
	default:
		return 1.96
	}
}

// Analyze estimates task's worst-case fuel consumption using method. If
// method is WcetStatic, or no samples have been recorded yet, the result
// falls back to the registered static budget.
func (a *Analyzer) Analyze(task async.TaskID, method WcetMethod) (WcetResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stats.TotalAnalyses++
	budget := a.budgets[task]
	samples := a.samples[task]

	staticEstimate := a.staticEstimateLocked(task, budget)
	result := WcetResult{TaskID: task, Method: method, WcetFuel: staticEstimate, SampleCount: len(samples)}

	if method == WcetStatic || len(samples) == 0 {
		result.Method = WcetStatic
		a.lastWcet[task] = result.WcetFuel
		return result, nil
	}
	if len(samples) < a.config.MinSamplesForStats && method != WcetMeasurementBased {
		return WcetResult{}, errors.InvalidInput(errors.PhaseSchedule, "insufficient samples for statistical WCET analysis")
	}

	values := make([]fuel.Amount, len(samples))
	for i, s := range samples {
		values[i] = s.FuelConsumed
	}
	mean, stddev := meanStdDev(values)
	sorted := append([]fuel.Amount(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	result.AverageFuel = mean
	result.StdDeviation = stddev
	result.BcetFuel = sorted[0]
	result.CriticalPath = a.criticalPathLocked(task)

	switch method {
	case WcetMeasurementBased:
		result.Confidence = a.config.ConfidenceLevel
		measured := mean + zScore(a.config.ConfidenceLevel)*stddev
		result.WcetFuel = applyMargin(fuel.Amount(math.Ceil(measured)), a.config.SafetyMarginFactor)
	case WcetProbabilistic:
		result.Confidence = a.config.Percentile
		result.WcetFuel = applyMargin(percentile(sorted, a.config.Percentile), a.config.SafetyMarginFactor)
	case WcetHybrid:
		result.Confidence = a.config.ConfidenceLevel
		measured := mean + zScore(a.config.ConfidenceLevel)*stddev
		refined := applyMargin(fuel.Amount(math.Ceil(measured)), a.config.SafetyMarginFactor)
		if refined > staticEstimate {
			result.WcetFuel = refined
		} else {
			result.WcetFuel = staticEstimate
		}
	default:
		result.WcetFuel = staticEstimate
	}
	a.lastWcet[task] = result.WcetFuel
	return result, nil
}

// Record validates a completed run's actual fuel cost against the most
// recent estimate produced by Analyze for task, incrementing the
// under- or over-estimation counters and folding the run into a rolling
// accuracy metric. A no-op if task has never been analyzed.
func (a *Analyzer) Record(task async.TaskID, actual fuel.Amount) {
	a.mu.Lock()
	defer a.mu.Unlock()

	estimate, ok := a.lastWcet[task]
	if !ok || estimate == 0 {
		return
	}
	if actual > estimate {
		a.stats.Underestimations++
	} else if actual < estimate {
		a.stats.Overestimations++
	}

	ratio := float64(actual) / float64(estimate)
	n := a.stats.recordedRuns
	a.stats.AverageAccuracy = (a.stats.AverageAccuracy*float64(n) + ratio) / float64(n+1)
	a.stats.recordedRuns++
}

// criticalPathLocked returns the path ID with the highest observed
// average fuel cost, the one most likely to dominate worst-case latency.
func (a *Analyzer) criticalPathLocked(task async.TaskID) uint32 {
	var best uint32
	var bestAvg float64
	for id, p := range a.paths[task] {
		if len(p.Samples) == 0 {
			continue
		}
		avg, _ := meanStdDev(p.Samples)
		if avg > bestAvg {
			bestAvg = avg
			best = id
		}
	}
	return best
}

// Statistics returns a snapshot of analyzer activity.
func (a *Analyzer) Statistics() WcetStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

func meanStdDev(values []fuel.Amount) (mean, stddev float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += float64(v)
	}
	mean = sum / float64(len(values))

	var variance float64
	for _, v := range values {
		d := float64(v) - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

// percentile returns the value at fraction p (0..1) of a slice already
// sorted ascending, using nearest-rank interpolation.
func percentile(sorted []fuel.Amount, p float64) fuel.Amount {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func applyMargin(v fuel.Amount, factor float64) fuel.Amount {
	return fuel.Amount(math.Ceil(float64(v) * factor))
}
