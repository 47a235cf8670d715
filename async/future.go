package async

import "github.com/wippyai/wasm-runtime/errors"

// FutureState mirrors async_types.FutureState: a future starts Pending,
// resolves exactly once into Ready (with a value) or Error, or is
// abandoned into Cancelled.
type FutureState uint8

const (
	FuturePending FutureState = iota
	FutureReady
	FutureError
	FutureCancelled
)

// Future is a single-value, set-once async result. The zero value is not
// usable; construct with NewFuture.
type Future[T any] struct {
	done chan struct{}
	token *CancellationToken
	state FutureState
	value T
	err error
}

// NewFuture creates a pending future observing token for cancellation. A
// nil token means the future can never be externally cancelled.
func NewFuture[T any](token *CancellationToken) *Future[T] {
	return &Future[T]{done: make(chan struct{}), token: token}
}

// Set resolves the future with value, unblocking every current and future
// Get call. Setting an already-resolved future is a programmer error and
// returns an error rather than panicking.
func (f *Future[T]) Set(value T) error {
	select {
	case <-f.done:
		return errors.AsyncTimeoutErr("future already resolved")
	default:
	}
	f.value = value
	f.state = FutureReady
	close(f.done)
	return nil
}

// SetError resolves the future into the Error state.
func (f *Future[T]) SetError(err error) error {
	select {
	case <-f.done:
		return errors.AsyncTimeoutErr("future already resolved")
	default:
	}
	f.err = err
	f.state = FutureError
	close(f.done)
	return nil
}

// Get blocks until the future resolves or its token is cancelled,
// whichever happens first — the channel close in either case establishes
// the happens-before edge between the resolving goroutine's write to
// f.value/f.err and this read.
func (f *Future[T]) Get() (T, error) {
	if f.token != nil {
		select {
		case <-f.done:
		case <-f.token.Done():
			var zero T
			f.state = FutureCancelled
			return zero, errors.CancelledErr(0)
		}
	} else {
		<-f.done
	}

	if f.state == FutureError {
		var zero T
		return zero, f.err
	}
	return f.value, nil
}

// State reports the future's current resolution state without blocking.
func (f *Future[T]) State() FutureState {
	select {
	case <-f.done:
		return f.state
	default:
		return FuturePending
	}
}
