package kernel

import (
	"time"

	"github.com/XorTroll/pegasus/domain"
)

// autoClearer is implemented by sync objects that reset themselves the
// instant a wait on them is satisfied (currently only *KEvent).
type autoClearer interface {
	ConsumeIfAutoClear()
}

// WaitForSyncObjects implements svcWaitSynchronization (spec §4.6): poll
// objects in order for an already-signaled one; if none and timeoutNanos
// permits blocking, park self until a signal, a timeout, or a
// cancellation resolves the wait. timeoutNanos follows the SVC
// convention: 0 means non-blocking, a negative value means wait
// indefinitely, and a positive value is a relative deadline in
// nanoseconds.
//
// Exactly one of a direct signal and the timer can "win" a given wait
// (spec §9 "Timer races"): a signal records its object through
// self.TrySignal, whose compare-and-swap honors only the first taker;
// the timer (KThread.TimeUp) does not call TrySignal, it only
// reschedules self while no object has been recorded, and a wait woken
// that way with none recorded reports ResultTimedOut.
func (k *Kernel) WaitForSyncObjects(self *KThread, objects []domain.SyncObject, timeoutNanos int64) (int, domain.Result) {
	k.EnterCriticalSection(self)

	if idx, ok := firstSignaled(objects); ok {
		consumeAutoClear(objects[idx])
		k.LeaveCriticalSection(self)
		self.setLastSyncResult(domain.Success)
		return idx, domain.Success
	}

	if timeoutNanos == 0 {
		k.LeaveCriticalSection(self)
		self.setLastSyncResult(domain.ResultTimedOut)
		return -1, domain.ResultTimedOut
	}

	if self.takeCancelled() {
		k.LeaveCriticalSection(self)
		self.setLastSyncResult(domain.ResultCancelled)
		return -1, domain.ResultCancelled
	}

	for _, obj := range objects {
		obj.AddWaiter(self)
	}

	self.mu.Lock()
	self.state = (self.state &^ threadLowNibbleMask) | ThreadWaiting
	self.waitingSync = true
	core, priority := self.activeCore, self.priority
	self.mu.Unlock()

	k.removeFromAllQueues(self, priority, core)
	k.requestReselection()

	var timer *ScheduleEntry
	if timeoutNanos > 0 {
		timer = k.times.Schedule(time.Duration(timeoutNanos), self)
	}

	k.LeaveCriticalSection(self)

	self.waitForGrant()

	k.EnterCriticalSection(self)
	if timer != nil {
		k.times.Cancel(timer)
	}
	for _, obj := range objects {
		obj.RemoveWaiter(self)
	}
	self.mu.Lock()
	self.waitingSync = false
	self.mu.Unlock()

	index := -1
	var result domain.Result
	if signaled := self.takeSignaledObject(); signaled != nil {
		for i, obj := range objects {
			if obj == signaled {
				index = i
				break
			}
		}
		consumeAutoClear(signaled)
		result = domain.Success
	} else if self.takeCancelled() {
		result = domain.ResultCancelled
	} else {
		result = domain.ResultTimedOut
	}

	self.setLastSyncResult(result)
	k.LeaveCriticalSection(self)
	return index, result
}

func firstSignaled(objects []domain.SyncObject) (int, bool) {
	for i, obj := range objects {
		if obj.IsSignaled() {
			return i, true
		}
	}
	return -1, false
}

func consumeAutoClear(obj domain.SyncObject) {
	if ac, ok := obj.(autoClearer); ok {
		ac.ConsumeIfAutoClear()
	}
}

// CancelSynchronization implements svcCancelSynchronization: marks t's
// in-flight (or next) wait as cancelled.
func (k *Kernel) CancelSynchronization(t *KThread) {
	t.MarkCancelled()
}
