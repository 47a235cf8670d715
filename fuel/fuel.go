package fuel

import (
	"sync/atomic"

	"github.com/wippyai/wasm-runtime/errors"
)

// Amount is a quantity of fuel. Always non-negative in practice; signed so
// intermediate arithmetic (budget - consumed) can be checked for
// underflow without a separate comparison.
type Amount int64

// Kind classifies an operation for fuel-cost lookup. The exact numeric
// values are tunable per build — only their constancy within a build
// matters.
type Kind uint8

const (
	KindFunctionCall Kind = iota
	KindControlTransfer
	KindCollectionInsert
	KindCollectionIterate
	KindCollectionMutate
	KindMemoryLoad8
	KindMemoryLoad16
	KindMemoryLoad32
	KindMemoryLoad64
	KindMemoryStore8
	KindMemoryStore16
	KindMemoryStore32
	KindMemoryStore64
	// KindArithmetic covers plain numeric instructions (add/sub/mul/div,
	// comparisons, conversions) that touch only the operand stack.
	KindArithmetic
	KindTaskTick
)

// DefaultCosts is the default cost table: metadata-ish operations sit in
// the 5-30 range, a full task tick costs 100+.
var DefaultCosts = Table{
	KindFunctionCall:      10,
	KindControlTransfer:   5,
	KindCollectionInsert:  8,
	KindCollectionIterate: 2,
	KindCollectionMutate:  6,
	KindMemoryLoad8:       3,
	KindMemoryLoad16:      3,
	KindMemoryLoad32:      4,
	KindMemoryLoad64:      6,
	KindMemoryStore8:      3,
	KindMemoryStore16:     3,
	KindMemoryStore32:     4,
	KindMemoryStore64:     6,
	KindArithmetic:        1,
	KindTaskTick:          100,
}

// Table maps operation Kind to its fuel cost, represented as a fixed-size
// array indexed by Kind so lookups are O(1) and the table itself cannot
// grow.
type Table [KindTaskTick + 1]Amount

// Cost returns the configured cost for kind.
func (t Table) Cost(kind Kind) Amount { return t[kind] }

// Ledger is the monotonically decreasing 64-bit fuel counter for an
// executor. Charge is safe for concurrent use; the executor itself
// remains single-threaded but the ledger may be read from a supervising
// goroutine (e.g. a TUI showing live fuel remaining).
type Ledger struct {
	costs     Table
	remaining atomic.Int64
	budget    atomic.Int64
}

// NewLedger creates a Ledger with the given starting budget and cost table.
func NewLedger(budget Amount, costs Table) *Ledger {
	l := &Ledger{costs: costs}
	l.budget.Store(int64(budget))
	l.remaining.Store(int64(budget))
	return l
}

// Remaining returns the fuel left before exhaustion.
func (l *Ledger) Remaining() Amount { return Amount(l.remaining.Load()) }

// Budget returns the total budget this ledger was created with.
func (l *Ledger) Budget() Amount { return Amount(l.budget.Load()) }

// Add increases the remaining budget, e.g. when a scheduler re-admits a
// task with additional fuel.
func (l *Ledger) Add(amount Amount) {
	l.remaining.Add(int64(amount))
	l.budget.Add(int64(amount))
}

// Charge deducts the cost of kind from the ledger. The operation that
// exhausts fuel is allowed to complete: this call still succeeds even if
// it drives remaining to exactly zero or below, but returns
// FuelExhausted whenever it observes a below-or-at-zero post-charge
// balance so the caller suspends before its *next* operation rather than
// retrying this one.
func (l *Ledger) Charge(kind Kind) error {
	cost := l.costs.Cost(kind)
	remaining := l.remaining.Add(-int64(cost))
	if remaining <= 0 {
		return errors.FuelExhaustedErr(remaining)
	}
	return nil
}

// Exhausted reports whether the ledger has no fuel left.
func (l *Ledger) Exhausted() bool { return l.remaining.Load() <= 0 }

// Reset restores the ledger to a fresh budget, used when a scheduler
// grants a new quantum.
func (l *Ledger) Reset(budget Amount) {
	l.budget.Store(int64(budget))
	l.remaining.Store(int64(budget))
}
