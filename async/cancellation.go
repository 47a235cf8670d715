package async

import "sync"

// CancellationToken forms a tree: cancelling a token cancels every
// descendant first, then itself, and the whole operation is idempotent
// (cancelling an already-cancelled token is a no-op).
type CancellationToken struct {
	mu        sync.Mutex
	cancelled bool
	done      chan struct{}
	children  []*CancellationToken
}

// NewCancellationToken creates a root token with no parent.
func NewCancellationToken() *CancellationToken {
	return &CancellationToken{done: make(chan struct{})}
}

// Child creates a new token linked to this one: cancelling the parent
// cancels the child, but cancelling a child never propagates upward.
func (t *CancellationToken) Child() *CancellationToken {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := NewCancellationToken()
	if t.cancelled {
		c.cancelLocked()
		return c
	}
	t.children = append(t.children, c)
	return c
}

// Cancel cancels this token and, recursively, every child spawned from
// it, children first so every subtask observes cancellation before its
// parent does. Calling Cancel more than once is safe and has no further
// effect.
func (t *CancellationToken) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
}

func (t *CancellationToken) cancelLocked() {
	if t.cancelled {
		return
	}
	for _, c := range t.children {
		c.Cancel()
	}
	t.cancelled = true
	close(t.done)
}

// Cancelled reports whether Cancel has been called on this token (or an
// ancestor it was created from).
func (t *CancellationToken) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Done returns a channel that is closed exactly once, the moment this
// token becomes cancelled — the happens-before edge downstream waiters
// (Future.Get, Stream.Read, WaitableSet.Select) rely on to observe
// cancellation without a data race.
func (t *CancellationToken) Done() <-chan struct{} {
	return t.done
}
