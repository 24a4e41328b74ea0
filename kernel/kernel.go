// Package kernel implements the Horizon OS kernel emulation core: the
// multi-core scheduler, reference-counted kernel objects, handle tables,
// ports, sessions, and the supporting time and resource-limit machinery
// described in the system's kernel specification. Everything here runs
// on the host as ordinary goroutines; CPU execution itself is left to a
// domain.CPUContext collaborator (see package cpu).
package kernel

import (
	"sync"
	"sync/atomic"
)

// Kernel is the emulator's single kernel instance: one critical section,
// one priority queue, one scheduler per core, and the registries every
// kernel object and syscall handler is built against.
type Kernel struct {
	cs *criticalSection
	pq *PriorityQueue

	cores [NumCores]*CoreScheduler

	named *NamedObjectRegistry
	times *TimeManager

	processesMu sync.Mutex
	processes   map[uint64]*KProcess

	nextThreadID    uint64
	nextProcessID   uint64
	reselectPending int32
}

// NewKernel constructs a kernel with its idle threads and per-core
// schedulers wired up, ready to start accepting processes.
func NewKernel() *Kernel {
	k := &Kernel{
		cs:        newCriticalSection(),
		pq:        NewPriorityQueue(),
		named:     newNamedObjectRegistry(),
		processes: make(map[uint64]*KProcess),
	}
	k.times = newTimeManager(k)
	for c := 0; c < NumCores; c++ {
		idle := k.newThread(nil, NumPriorities, c, 1<<uint(c), nil, true, "idle")
		idle.state = ThreadRunnable
		k.cores[c] = newCoreScheduler(k, c, idle)
	}
	return k
}

// NewHostThread returns a synthetic KThread identity for a non-guest
// caller (loader, admin surface, background worker) that needs to enter
// the critical section but never runs guest code (spec's reentrant
// critical-section contract requires every caller present some KThread).
func (k *Kernel) NewHostThread(name string) *KThread {
	t := k.newThread(nil, NumPriorities, -1, 0, nil, true, name)
	t.state = ThreadRunnable
	return t
}

// Named exposes the kernel's process-global named-object registry (ports
// and other objects published by name for sm-style lookup).
func (k *Kernel) Named() *NamedObjectRegistry { return k.named }

// ProcessByID looks up a live process by its kernel-assigned id, for
// collaborators (sm's RegisterService/GetServiceHandle) that only learn
// a caller's identity via the HIPC special header's process id.
func (k *Kernel) ProcessByID(id uint64) (*KProcess, bool) {
	k.processesMu.Lock()
	defer k.processesMu.Unlock()
	p, ok := k.processes[id]
	return p, ok
}

// AllProcesses returns a point-in-time snapshot of every live process,
// for introspection surfaces (package admin) only.
func (k *Kernel) AllProcesses() []*KProcess {
	k.processesMu.Lock()
	defer k.processesMu.Unlock()
	out := make([]*KProcess, 0, len(k.processes))
	for _, p := range k.processes {
		out = append(out, p)
	}
	return out
}

func (k *Kernel) registerProcess(p *KProcess) {
	k.processesMu.Lock()
	k.processes[p.id] = p
	k.processesMu.Unlock()
}

func (k *Kernel) unregisterProcess(p *KProcess) {
	k.processesMu.Lock()
	delete(k.processes, p.id)
	k.processesMu.Unlock()
}

// Times exposes the kernel's time manager.
func (k *Kernel) Times() *TimeManager { return k.times }

// EnterCriticalSection acquires the kernel's single serialization point
// on behalf of self, reentrantly (spec §4.5).
func (k *Kernel) EnterCriticalSection(self *KThread) {
	k.cs.enter(self)
}

// LeaveCriticalSection releases one level of the critical section. On
// the outermost release it runs the global reselection pass exactly
// once, then lets every core's scheduler install its new pick before
// finally releasing the lock — this ordering is what lets
// select_threads()'s decisions take effect atomically with respect to
// any other thread trying to re-enter (spec §4.5).
func (k *Kernel) LeaveCriticalSection(self *KThread) {
	outermost := k.cs.leaveInner(self)
	if !outermost {
		return
	}

	if atomic.SwapInt32(&k.reselectPending, 0) != 0 {
		k.selectThreads()
	}
	k.cs.releaseOutermost()

	for _, core := range k.cores {
		core.schedule()
	}
}

// requestReselection marks that select_threads() must run before the
// critical section's next outermost release. Safe to call from inside
// or outside the critical section.
func (k *Kernel) requestReselection() {
	atomic.StoreInt32(&k.reselectPending, 1)
}

// Reschedule moves t to newState (almost always ThreadRunnable) and
// re-adjusts its queue membership accordingly, requesting a reselection.
// It manages its own critical-section entry using a synthetic host
// thread, since callers such as TrySignal and TimeUp run outside any
// guest thread's own call stack.
func (k *Kernel) Reschedule(t *KThread, newState ThreadState) {
	self := k.NewHostThread("reschedule")
	k.EnterCriticalSection(self)
	defer k.LeaveCriticalSection(self)

	t.mu.Lock()
	was := t.state&threadLowNibbleMask == ThreadRunnable && t.state&threadPauseMask == 0
	t.state = (t.state &^ threadLowNibbleMask) | (newState & threadLowNibbleMask)
	now := t.state&threadLowNibbleMask == ThreadRunnable && t.state&threadPauseMask == 0
	priority, core := t.priority, t.activeCore
	t.mu.Unlock()

	if was != now {
		k.adjustQueueMembership(t, priority, core, now)
	}
	k.requestReselection()
}

// adjustQueueMembership adds or removes t from its active core's
// scheduled FIFO (and every affine core's suggested FIFO) to match
// nowRunnable, preserving spec §8's "at most one scheduled-queue
// membership" invariant.
func (k *Kernel) adjustQueueMembership(t *KThread, priority, core int, nowRunnable bool) {
	if nowRunnable {
		if core >= 0 {
			k.pq.Schedule(priority, core, t)
		}
		for c := 0; c < NumCores; c++ {
			if c != core && t.AffinityMask()&(1<<uint(c)) != 0 {
				k.pq.Suggest(priority, c, t)
			}
		}
		return
	}
	k.removeFromAllQueues(t, priority, core)
}

// removeFromAllQueues strips t out of every scheduled and suggested FIFO
// it might be sitting in, across all cores — used on termination, pause,
// and when a thread stops being effectively runnable.
func (k *Kernel) removeFromAllQueues(t *KThread, priority, core int) {
	if core >= 0 {
		k.pq.Unschedule(priority, core, t)
	}
	for c := 0; c < NumCores; c++ {
		k.pq.Unsuggest(priority, c, t)
	}
}

// selectThreads is the global re-selection pass (spec §4.4, steps 1-3):
// first take each core's highest scheduled thread as its candidate
// selection; then, for cores left without one, try to pull in a thread
// from the suggested queue — either by direct migration, or, if the
// first suggested candidate turns out to already be its home core's own
// selection, by stealing that home core's second-place scheduled thread
// instead so the home core's pick is undisturbed.
func (k *Kernel) selectThreads() {
	var selected [NumCores]*KThread
	for c := 0; c < NumCores; c++ {
		selected[c] = k.pq.ScheduledHighest(c)
	}

	for c := 0; c < NumCores; c++ {
		if selected[c] != nil {
			continue
		}
		cand, ok := k.pq.FirstSuggested(c)
		if !ok {
			continue
		}

		candCore := cand.ActiveCore()
		ownSelection := candCore >= 0 && selected[candCore] == cand
		if !ownSelection {
			if cand.Priority() >= 2 {
				k.pq.TransferThreadToCore(cand.Priority(), c, cand)
				selected[c] = cand
			}
			continue
		}

		second := k.pq.ScheduledSecond(candCore)
		if second != nil && second.Priority() >= 2 {
			k.pq.TransferThreadToCore(second.Priority(), c, second)
			selected[c] = second
		}
	}

	for c := 0; c < NumCores; c++ {
		k.cores[c].setSelected(selected[c])
	}
}

func (k *Kernel) wakeAllIdleInterrupts() {
	for _, core := range k.cores {
		core.interrupt()
	}
}

// RunGuestThread parks the calling host goroutine, representing t's
// guest execution, until the scheduler grants t its core; it returns
// once t is selected to run. CPU dispatch itself is the caller's (and
// domain.CPUContext's) responsibility — the kernel only governs when a
// thread is allowed to advance.
func (k *Kernel) RunGuestThread(t *KThread) {
	t.waitForGrant()
}
