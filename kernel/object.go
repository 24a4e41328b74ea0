package kernel

import "sync/atomic"

// refcounted is embedded by every kernel object to provide the atomic
// reference count and teardown dispatch described in spec §4.1. destroy
// is supplied by the embedding type via a closure set at construction
// time, since Go has no virtual-destructor dispatch through an embedded
// struct.
type refcounted struct {
	count   int64
	onZero  func()
}

func newRefcounted(onZero func()) refcounted {
	return refcounted{count: 1, onZero: onZero}
}

// IncRef atomically increments the reference count.
func (r *refcounted) IncRef() {
	atomic.AddInt64(&r.count, 1)
}

// DecRef atomically decrements the reference count, running the
// destructor and returning true exactly when this call drove it to zero.
func (r *refcounted) DecRef() bool {
	n := atomic.AddInt64(&r.count, -1)
	if n < 0 {
		panic("kernel: refcount went negative")
	}
	if n == 0 {
		if r.onZero != nil {
			r.onZero()
		}
		return true
	}
	return false
}

// RefCount returns the current reference count (for tests/invariant
// checks only).
func (r *refcounted) RefCount() int64 {
	return atomic.LoadInt64(&r.count)
}
