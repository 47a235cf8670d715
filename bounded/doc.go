// Package bounded implements the fixed-capacity container family:
// Sequence, Mapping, Set, and String, each generic over an element type
// and a Provider that encapsulates the allocation policy.
//
// Every container enforces len <= N for its declared capacity N. Mutations
// that would exceed capacity fail with a CapacityExceeded error rather than
// growing, silently truncating, or panicking — this is the only allocation
// primitive the rest of the safety-critical core may use.
package bounded
