// Package safety implements the integrity-level policy surface: a Context
// carries the active integrity level, the standard under which it is
// interpreted, and a verification level, and enforces operation-boundary
// policies (allocation ceilings, debug-op rejection,
// dynamic-allocation-after-init rejection, filesystem/network gating).
package safety
