package kernel

import (
	"sync"

	"github.com/XorTroll/pegasus/domain"
)

// KEvent is a refcounted, waitable, manually- or auto-clearing signal
// (spec §3 "Event (KEvent)"). Writable and readable sides share the
// same object; handles for each are produced by the caller (svcCreateEvent
// hands back a writable handle, svcCreateEvent's readable side is wrapped
// separately by higher layers when needed).
type KEvent struct {
	refcounted
	waiterList

	mu        sync.Mutex
	signaled  bool
	autoClear bool
}

func (k *Kernel) NewEvent(autoClear bool) *KEvent {
	e := &KEvent{autoClear: autoClear}
	e.refcounted = newRefcounted(func() { e.waiterList.clear() })
	return e
}

func (e *KEvent) Kind() domain.ObjectKind { return domain.KindEvent }

// IsSignaled implements domain.SyncObject.
func (e *KEvent) IsSignaled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.signaled
}

// Signal sets the event and wakes every waiter (spec §4.6 "signal(obj)").
func (e *KEvent) Signal() {
	e.mu.Lock()
	e.signaled = true
	e.mu.Unlock()
	e.waiterList.signal(e)
}

// Clear manually resets the event (svcClearEvent).
func (e *KEvent) Clear() {
	e.mu.Lock()
	e.signaled = false
	e.mu.Unlock()
}

// ConsumeIfAutoClear is called by wait_for_sync_objects immediately
// after a wait on this event is satisfied: auto-clear events reset
// themselves the instant one waiter observes the signal (spec §4.6).
func (e *KEvent) ConsumeIfAutoClear() {
	if !e.autoClear {
		return
	}
	e.mu.Lock()
	e.signaled = false
	e.mu.Unlock()
}
