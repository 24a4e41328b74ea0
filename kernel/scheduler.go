package kernel

import "sync"

// CoreScheduler owns one emulated core's dispatch state (spec §4.4
// "Per-core scheduler"): the idle thread that runs when nothing else is
// selected, the pending-reselection flag, and the thread currently
// holding this core's context lock.
type CoreScheduler struct {
	core   int
	kernel *Kernel

	idleThread *KThread

	mu              sync.Mutex
	needsScheduling bool
	selectedThread  *KThread
	currentThread   *KThread

	// idleInterrupt is the auto-reset event that wakes this core's
	// idle thread (or any waiting scheduler loop) whenever some other
	// core's reselection pass might have changed this core's pick.
	idleInterrupt chan struct{}
}

func newCoreScheduler(k *Kernel, core int, idle *KThread) *CoreScheduler {
	return &CoreScheduler{
		core:          core,
		kernel:        k,
		idleThread:    idle,
		currentThread: idle,
		idleInterrupt: make(chan struct{}, 1),
	}
}

func (cs *CoreScheduler) getSelected() *KThread {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.selectedThread
}

func (cs *CoreScheduler) setSelected(t *KThread) {
	cs.mu.Lock()
	changed := cs.selectedThread != t
	cs.selectedThread = t
	if changed {
		cs.needsScheduling = true
	}
	cs.mu.Unlock()
}

func (cs *CoreScheduler) interrupt() {
	select {
	case cs.idleInterrupt <- struct{}{}:
	default:
	}
}

// schedule installs the currently-selected thread as this core's running
// thread, per spec §4.4's pick_next_thread contract: acquire the
// candidate's context lock; if a fresher selection arrived while doing
// so, release and retry against the new candidate instead.
func (cs *CoreScheduler) schedule() {
	cs.mu.Lock()
	cs.needsScheduling = false
	already := cs.selectedThread == cs.currentThread
	prevCurrent := cs.currentThread
	cs.mu.Unlock()
	if already {
		return
	}

	if prevCurrent != nil {
		prevCurrent.unlockContext()
	}
	cs.kernel.wakeAllIdleInterrupts()

	next := cs.pickNextThread()

	cs.mu.Lock()
	cs.currentThread = next
	cs.mu.Unlock()

	next.grantExecution()
}

func (cs *CoreScheduler) pickNextThread() *KThread {
	for {
		cs.mu.Lock()
		sel := cs.selectedThread
		cs.mu.Unlock()
		if sel == nil {
			sel = cs.idleThread
		}

		if sel.tryLockContext() {
			cs.mu.Lock()
			stillFresh := cs.selectedThread == sel || (cs.selectedThread == nil && sel == cs.idleThread)
			needsResched := cs.needsScheduling
			cs.mu.Unlock()
			if stillFresh && !needsResched {
				return sel
			}
			sel.unlockContext()
			continue
		}
		// Candidate's context lock is held elsewhere (e.g. by another
		// core briefly during a migration); spin until the next
		// reselection settles it.
	}
}
