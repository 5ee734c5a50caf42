package client

import "sync"

// Throttle is a trailing-edge sampler. It holds only the latest pushed value
// and emits it on each Flush. The owner's event loop calls Flush once per
// window. Values pushed between flushes are replaced, never queued, so a
// burst costs at most one emit per window and the last value of the burst
// is always the one emitted.
type Throttle[T any] struct {
	mutex      sync.Mutex
	pending    T
	hasPending bool
	emit       func(T)
}

func NewThrottle[T any](emit func(T)) *Throttle[T] {
	return &Throttle[T]{
		emit: emit,
	}
}

func (t *Throttle[T]) Push(value T) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.pending = value
	t.hasPending = true
}

// Flush emits the pending value, if any, and reports whether it did.
func (t *Throttle[T]) Flush() bool {
	t.mutex.Lock()
	value, ok := t.pending, t.hasPending
	var zero T
	t.pending = zero
	t.hasPending = false
	t.mutex.Unlock()

	if ok {
		t.emit(value)
	}
	return ok
}

// Pending reports whether a value is waiting for the next flush.
func (t *Throttle[T]) Pending() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return t.hasPending
}
