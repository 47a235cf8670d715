// Package platform implements the small host-abstraction surface the
// safety-critical core consumes: atomics, monotonic time, page
// allocation, feature discovery, and integrity-level discovery.
//
// The core never touches an OS primitive directly. Every other package
// that needs wall-clock time, an atomic counter, or a byte region obtains
// one through a Platform value, so the whole core can run unmodified on a
// target with no operating system, no native atomics, and no dynamic
// allocator: the default no-OS profile emulates atomics with a
// spinlock-protected cell and reports a memory profile of zero dynamic
// capacity.
package platform
