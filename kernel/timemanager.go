package kernel

import (
	"container/heap"
	"sync"
	"time"
)

// timeWaiter is anything the time manager can wake when its deadline
// passes; KThread (via TimeUp) is the only implementation.
type timeWaiter interface {
	TimeUp()
}

type timerEntry struct {
	deadline time.Time
	seq      uint64
	waiter   timeWaiter
	cancelled bool
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x interface{}) { *h = append(*h, x.(*timerEntry)) }
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// TimeManager schedules future wakeups for timed waits (spec §4.9): a
// min-heap of deadlines serviced by a single background goroutine, so
// svcWaitSynchronization's timeout argument and svcSleepThread share one
// mechanism.
type TimeManager struct {
	kernel *Kernel

	mu      sync.Mutex
	heap    timerHeap
	nextSeq uint64
	wake    chan struct{}
	closed  chan struct{}
}

func newTimeManager(k *Kernel) *TimeManager {
	tm := &TimeManager{
		kernel: k,
		wake:   make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
	go tm.run()
	return tm
}

// ScheduleEntry is an opaque cancellation handle returned by Schedule.
type ScheduleEntry struct {
	entry *timerEntry
}

// Schedule arranges for w.TimeUp() to be called no earlier than d from
// now, unless cancelled first. A duration <= 0 fires as soon as the
// background loop next runs.
func (tm *TimeManager) Schedule(d time.Duration, w timeWaiter) *ScheduleEntry {
	tm.mu.Lock()
	tm.nextSeq++
	e := &timerEntry{deadline: time.Now().Add(d), seq: tm.nextSeq, waiter: w}
	heap.Push(&tm.heap, e)
	tm.mu.Unlock()

	select {
	case tm.wake <- struct{}{}:
	default:
	}
	return &ScheduleEntry{entry: e}
}

// Cancel prevents a previously scheduled entry from firing, if it
// hasn't already.
func (tm *TimeManager) Cancel(se *ScheduleEntry) {
	if se == nil {
		return
	}
	tm.mu.Lock()
	se.entry.cancelled = true
	tm.mu.Unlock()
}

func (tm *TimeManager) run() {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		tm.mu.Lock()
		var wait time.Duration
		if len(tm.heap) == 0 {
			wait = time.Hour
		} else {
			wait = time.Until(tm.heap[0].deadline)
			if wait < 0 {
				wait = 0
			}
		}
		tm.mu.Unlock()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-tm.closed:
			return
		case <-tm.wake:
			continue
		case <-timer.C:
			tm.fireDue()
		}
	}
}

func (tm *TimeManager) fireDue() {
	now := time.Now()
	var due []*timerEntry
	tm.mu.Lock()
	for len(tm.heap) > 0 && !tm.heap[0].deadline.After(now) {
		e := heap.Pop(&tm.heap).(*timerEntry)
		if !e.cancelled {
			due = append(due, e)
		}
	}
	tm.mu.Unlock()

	for _, e := range due {
		e.waiter.TimeUp()
	}
}

// Close stops the background goroutine; used at kernel shutdown in
// tests.
func (tm *TimeManager) Close() {
	close(tm.closed)
}
