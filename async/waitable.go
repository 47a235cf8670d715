package async

import (
	"sync"

	"github.com/wippyai/wasm-runtime/errors"
)

// Waitable is anything a WaitableSet can wait on: a Future's Get or a
// Stream's Read both ultimately reduce to "a channel closes when the next
// result is available."
type Waitable interface {
	// Ready returns a channel that becomes readable once this waitable has
	// a result pending (a resolved future, or a stream chunk/close).
	Ready() <-chan struct{}
}

// futureWaitable adapts a Future to the Waitable interface without
// exposing the future's result type to WaitableSet, which must hold
// heterogeneous waitables together.
type futureWaitable[T any] struct{ f *Future[T] }

func (w futureWaitable[T]) Ready() <-chan struct{} { return w.f.done }

// AsWaitable wraps a Future so it can be added to a WaitableSet.
func AsWaitable[T any](f *Future[T]) Waitable { return futureWaitable[T]{f} }

// streamWaitable adapts a Stream to Waitable without consuming any chunk:
// it reports ready the instant the stream's internal buffer is non-empty
// or the stream has closed, by consulting the stream's readySignal and
// re-checking actual buffer length rather than receiving from the data
// channel itself.
type streamWaitable[T any] struct{ s *Stream[T] }

// AsStreamWaitable wraps a Stream so it can be added to a WaitableSet.
func AsStreamWaitable[T any](s *Stream[T]) Waitable { return streamWaitable[T]{s} }

func (w streamWaitable[T]) Ready() <-chan struct{} {
	out := make(chan struct{})
	go func() {
		defer close(out)
		for {
			if len(w.s.ch) > 0 || w.s.State() != StreamOpen {
				return
			}
			select {
			case <-w.s.readySignal():
			case <-w.s.doneChan():
				return
			}
		}
	}()
	return out
}

// WaitableSet waits on the first of several Waitables to become ready,
// the primitive a host import blocking on multiple pending operations
// needs (e.g. select over several in-flight calls).
type WaitableSet struct {
	mu      sync.Mutex
	entries []Waitable
	token   *CancellationToken
}

// NewWaitableSet creates an empty set observing token for cancellation.
func NewWaitableSet(token *CancellationToken) *WaitableSet {
	return &WaitableSet{token: token}
}

// Add registers w in the set and returns its index, stable until Remove.
func (ws *WaitableSet) Add(w Waitable) int {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.entries = append(ws.entries, w)
	return len(ws.entries) - 1
}

// Remove drops the waitable at index from consideration by future Select
// calls.
func (ws *WaitableSet) Remove(index int) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if index < 0 || index >= len(ws.entries) {
		return
	}
	ws.entries[index] = nil
}

// Select blocks until any registered waitable becomes ready and returns
// its index, or until the set's token is cancelled.
func (ws *WaitableSet) Select() (int, error) {
	ws.mu.Lock()
	entries := make([]Waitable, len(ws.entries))
	copy(entries, ws.entries)
	ws.mu.Unlock()

	if len(entries) == 0 {
		return -1, errors.AsyncTimeoutErr("select on an empty waitable set")
	}

	result := make(chan int, len(entries))
	for i, e := range entries {
		if e == nil {
			continue
		}
		i, e := i, e
		go func() {
			select {
			case <-e.Ready():
				select {
				case result <- i:
				default:
				}
			case <-ws.doneChan():
			}
		}()
	}

	select {
	case i := <-result:
		return i, nil
	case <-ws.doneChan():
		return -1, errors.CancelledErr(0)
	}
}

func (ws *WaitableSet) doneChan() <-chan struct{} {
	if ws.token == nil {
		return nil
	}
	return ws.token.Done()
}
