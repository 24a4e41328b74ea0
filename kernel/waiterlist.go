package kernel

import (
	"sync"

	"github.com/XorTroll/pegasus/domain"
)

// waiterList is the reusable "list of threads waiting on me" that every
// sync object embeds (spec §3: "A sub-kind synchronization object
// additionally owns a list of threads waiting on it"). It is always
// mutated under the kernel's critical section, but carries its own mutex
// so object teardown can clear it independently of that invariant.
type waiterList struct {
	mu      sync.Mutex
	waiters []domain.Waiter
}

// AddWaiter implements domain.SyncObject for every kernel object that
// embeds waiterList.
func (l *waiterList) AddWaiter(w domain.Waiter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.waiters = append(l.waiters, w)
}

// RemoveWaiter implements domain.SyncObject.
func (l *waiterList) RemoveWaiter(w domain.Waiter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, cur := range l.waiters {
		if cur == w {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			return
		}
	}
}

// signal delivers obj to every registered waiter, per spec §4.6
// "signal(obj)". Each waiter decides for itself (via TrySignal's CAS)
// whether it actually wakes; a waiter already woken by something else
// (or not currently waiting) simply declines.
func (l *waiterList) signal(obj domain.SyncObject) {
	l.mu.Lock()
	waiters := make([]domain.Waiter, len(l.waiters))
	copy(waiters, l.waiters)
	l.mu.Unlock()

	for _, w := range waiters {
		w.TrySignal(obj)
	}
}

func (l *waiterList) clear() {
	l.mu.Lock()
	l.waiters = nil
	l.mu.Unlock()
}
