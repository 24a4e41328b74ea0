package kernel

import (
	"sync"
	"sync/atomic"

	"github.com/XorTroll/pegasus/domain"
)

// Thread low-nibble states (spec §4.3).
type ThreadState uint32

const (
	ThreadInitialized ThreadState = 1
	ThreadRunnable    ThreadState = 2
	ThreadWaiting     ThreadState = 3
	ThreadTerminated  ThreadState = 4

	threadLowNibbleMask ThreadState = 0xF
)

// Orthogonal force-pause bits, high bits of the combined state word.
const (
	ThreadPauseProcessSuspended   ThreadState = 1 << 4
	ThreadPauseThreadSuspended    ThreadState = 1 << 5
	ThreadPauseDebugSuspended     ThreadState = 1 << 6
	ThreadPauseBacktraceSuspended ThreadState = 1 << 7
	ThreadPauseInitSuspended      ThreadState = 1 << 8

	threadPauseMask = ThreadPauseProcessSuspended | ThreadPauseThreadSuspended |
		ThreadPauseDebugSuspended | ThreadPauseBacktraceSuspended | ThreadPauseInitSuspended
)

// TLRSize is the Thread-Local Region size (spec §3, GLOSSARY "TLR").
const TLRSize = 0x200

// YieldType distinguishes SleepThread's three yield encodings (spec §9
// Open Questions, resolved in SPEC_FULL.md).
type YieldType int

const (
	YieldNormal YieldType = iota
	YieldWithLoadBalancing
	YieldToAnyThread
)

// KThread is a guest (or pure host) thread: spec §3 "Thread (KThread)".
// Every goroutine that calls into the kernel — guest thread or kernel
// housekeeping worker alike — does so as some KThread, so the critical
// section (spec §4.5) always has a concrete, comparable owner identity;
// see Kernel.NewHostThread for the synthetic case.
type KThread struct {
	refcounted
	waiterList

	kernel  *Kernel
	process *KProcess // nil for a pure host thread

	id uint64

	isHostOnly    bool
	priority      int
	activeCore    int // -1 if not currently scheduled on any core
	preferredCore int
	affinityMask  uint64

	mu    sync.Mutex
	state ThreadState

	lastSyncResult domain.Result

	sigMu       sync.Mutex
	signaledObj domain.SyncObject

	waitingSync   bool
	syncCancelled bool

	cpu domain.CPUContext // nil for a pure host thread

	tlr [TLRSize]byte

	// schedulerWait is the auto-reset event the scheduler signals to
	// grant this thread's host goroutine the right to run (spec §5
	// "Scheduling model").
	schedulerWait chan struct{}

	// ctxLocked models the per-thread "context lock" a CoreScheduler must
	// hold before letting this thread's host goroutine run; it is the Go
	// stand-in for the real kernel's per-core current-thread latch.
	ctxLocked int32

	name string
}

func (k *Kernel) newThread(process *KProcess, priority, preferredCore int, affinity uint64, cpu domain.CPUContext, hostOnly bool, name string) *KThread {
	id := atomic.AddUint64(&k.nextThreadID, 1)
	t := &KThread{
		kernel:        k,
		process:       process,
		id:            id,
		isHostOnly:    hostOnly,
		priority:      priority,
		activeCore:    -1,
		preferredCore: preferredCore,
		affinityMask:  affinity,
		state:         ThreadInitialized,
		cpu:           cpu,
		schedulerWait: make(chan struct{}, 1),
		name:          name,
	}
	t.refcounted = newRefcounted(func() { k.onThreadDestroyed(t) })
	return t
}

func (k *Kernel) onThreadDestroyed(t *KThread) {
	t.waiterList.clear()
}

func (t *KThread) Kind() domain.ObjectKind  { return domain.KindThread }
func (t *KThread) ID() uint64               { return t.id }
func (t *KThread) Name() string             { return t.name }
func (t *KThread) Process() *KProcess       { return t.process }
func (t *KThread) CPU() domain.CPUContext   { return t.cpu }
func (t *KThread) TLR() []byte              { return t.tlr[:] }
func (t *KThread) IsHostOnly() bool         { return t.isHostOnly }
func (t *KThread) PreferredCore() int       { return t.preferredCore }

func (t *KThread) SetPreferredCore(c int) {
	t.mu.Lock()
	t.preferredCore = c
	t.mu.Unlock()
}

func (t *KThread) Priority() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.priority
}

func (t *KThread) ActiveCore() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activeCore
}

func (t *KThread) setActiveCore(c int) {
	t.mu.Lock()
	t.activeCore = c
	t.mu.Unlock()
}

func (t *KThread) AffinityMask() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.affinityMask
}

func (t *KThread) SetAffinityMask(mask uint64) {
	t.mu.Lock()
	t.affinityMask = mask
	t.mu.Unlock()
}

func (t *KThread) SetPriority(p int) {
	t.mu.Lock()
	t.priority = p
	t.mu.Unlock()
}

// State returns the full combined state word.
func (t *KThread) State() ThreadState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *KThread) lowNibble() ThreadState {
	return t.state & threadLowNibbleMask
}

// IsEffectivelyRunnable reports whether the thread's low nibble is
// Runnable and no force-pause bit is set (spec §4.3).
func (t *KThread) IsEffectivelyRunnable() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state&threadLowNibbleMask == ThreadRunnable && t.state&threadPauseMask == 0
}

// SetPauseFlag sets or clears one of the orthogonal force-pause bits,
// re-adjusting this thread's queue membership if that flips its
// effective runnability.
func (t *KThread) SetPauseFlag(self *KThread, flag ThreadState, set bool) {
	t.kernel.EnterCriticalSection(self)
	defer t.kernel.LeaveCriticalSection(self)

	t.mu.Lock()
	was := t.state&threadLowNibbleMask == ThreadRunnable && t.state&threadPauseMask == 0
	if set {
		t.state |= flag
	} else {
		t.state &^= flag
	}
	now := t.state&threadLowNibbleMask == ThreadRunnable && t.state&threadPauseMask == 0
	priority, core := t.priority, t.activeCore
	t.mu.Unlock()

	if was != now {
		t.kernel.adjustQueueMembership(t, priority, core, now)
		t.kernel.requestReselection()
	}
}

// LastSyncResult / setLastSyncResult carry the outcome of the most
// recent wait_for_sync_objects back to the guest (W0 on SVC return).
func (t *KThread) LastSyncResult() domain.Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSyncResult
}

func (t *KThread) setLastSyncResult(r domain.Result) {
	t.mu.Lock()
	t.lastSyncResult = r
	t.mu.Unlock()
}

// TrySignal implements domain.Waiter: CAS signaledObj from nil to obj,
// and if this call wins, reschedule the thread Runnable (spec §4.6,
// §9 "Timer races").
func (t *KThread) TrySignal(obj domain.SyncObject) bool {
	t.sigMu.Lock()
	if t.signaledObj != nil {
		t.sigMu.Unlock()
		return false
	}
	if t.lowNibble() != ThreadWaiting {
		t.sigMu.Unlock()
		return false
	}
	t.signaledObj = obj
	t.sigMu.Unlock()

	t.kernel.Reschedule(t, ThreadRunnable)
	return true
}

func (t *KThread) takeSignaledObject() domain.SyncObject {
	t.sigMu.Lock()
	defer t.sigMu.Unlock()
	obj := t.signaledObj
	t.signaledObj = nil
	return obj
}

// MarkCancelled sets sync_cancelled; the next wait observes it and fails
// ResultCancelled (spec §5 "Cancellation & timeouts").
func (t *KThread) MarkCancelled() {
	t.mu.Lock()
	t.syncCancelled = true
	waiting := t.state&threadLowNibbleMask == ThreadWaiting && t.waitingSync
	t.mu.Unlock()

	if waiting {
		t.kernel.Reschedule(t, ThreadRunnable)
	}
}

func (t *KThread) takeCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.syncCancelled
	t.syncCancelled = false
	return c
}

// Start transitions Initialized -> Runnable under the critical section
// and enters the thread into its core's scheduled queue (spec §4.3).
// self is the thread requesting the start (often t itself, for a thread
// that bootstraps and immediately starts, or its creator).
func (t *KThread) Start(self *KThread) domain.Result {
	t.kernel.EnterCriticalSection(self)
	defer t.kernel.LeaveCriticalSection(self)

	t.mu.Lock()
	if t.state&threadLowNibbleMask != ThreadInitialized {
		t.mu.Unlock()
		return domain.ResultInvalidState
	}
	t.state = (t.state &^ threadLowNibbleMask) | ThreadRunnable
	core := t.preferredCore
	t.activeCore = core
	priority := t.priority
	t.mu.Unlock()

	t.kernel.pq.Schedule(priority, core, t)
	t.kernel.requestReselection()
	return domain.Success
}

// Exit transitions the thread to Terminated, signalling any waiters
// (spec §4.3 "* -> Terminated"). self identifies the calling context
// for critical-section ownership (usually t itself).
func (t *KThread) Exit(self *KThread) {
	t.kernel.EnterCriticalSection(self)

	t.mu.Lock()
	already := t.state&threadLowNibbleMask == ThreadTerminated
	t.state = (t.state &^ threadLowNibbleMask) | ThreadTerminated
	core, priority := t.activeCore, t.priority
	t.mu.Unlock()

	if !already {
		t.kernel.removeFromAllQueues(t, priority, core)
		t.kernel.requestReselection()
	}

	t.kernel.LeaveCriticalSection(self)

	if !already {
		t.waiterList.signal(t)
	}
}

func (t *KThread) IsSignaled() bool {
	return t.lowNibble() == ThreadTerminated
}

// TimeUp implements the future-scheduler contract: the time manager
// calls this when this thread's scheduled deadline passes while it is
// still waiting (spec §4.9).
func (t *KThread) TimeUp() {
	t.mu.Lock()
	isWaiting := t.state&threadLowNibbleMask == ThreadWaiting
	t.mu.Unlock()
	if !isWaiting {
		return
	}

	t.sigMu.Lock()
	alreadySignaled := t.signaledObj != nil
	t.sigMu.Unlock()
	if alreadySignaled {
		return
	}

	// Leave signaledObj nil: wait() distinguishes "timer fired" from
	// "signaled" by the absence of a signaled object (spec §4.6).
	t.kernel.Reschedule(t, ThreadRunnable)
}

// grantExecution is called by the scheduler when this thread becomes the
// selected thread on its core; it wakes the host goroutine blocked in
// waitForGrant.
func (t *KThread) grantExecution() {
	select {
	case t.schedulerWait <- struct{}{}:
	default:
	}
}

// waitForGrant blocks the calling host goroutine until the scheduler
// selects this thread to run (spec §5 "Scheduling model").
func (t *KThread) waitForGrant() {
	<-t.schedulerWait
}

// tryLockContext attempts to acquire this thread's context lock — the
// CoreScheduler holds it on a thread's behalf for as long as that thread
// is the selected/current thread on some core.
func (t *KThread) tryLockContext() bool {
	return atomic.CompareAndSwapInt32(&t.ctxLocked, 0, 1)
}

func (t *KThread) unlockContext() {
	atomic.StoreInt32(&t.ctxLocked, 0)
}
