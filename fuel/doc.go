// Package fuel implements deterministic execution-cost metering: a
// per-executor ledger decremented by fixed, per-operation-kind costs.
// Exhaustion is a recoverable condition reported to the scheduler, never
// a panic and never retried implicitly.
package fuel
