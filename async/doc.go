// Package async implements the component-model async primitives: futures,
// streams, waitable sets, cancellation tokens and the happens-before
// ordering rules between them.
//
// Tasks move through a Ready/Running/Waiting/Completed/Failed/Cancelled
// state machine with a cancel-children-before-self rule, rendered here
// with Go channels and mutexes: a Future[T] or Stream[T] blocks its
// reader on a channel close rather than on a caller-driven poll step.
package async
