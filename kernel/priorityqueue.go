package kernel

// NumCores is the emulated machine's core count (spec §4.4: "four cores
// (configurable constant)").
const NumCores = 4

// NumPriorities is the guest-visible priority range 0..63; priority 64 is
// reserved for the idle thread and never appears in a priorityFIFO.
const NumPriorities = 64

// priorityFIFO is one core's set of per-priority FIFOs plus the bitmask
// that makes "find highest non-empty priority" O(1) (spec §4.4
// "Priority queue").
type priorityFIFO struct {
	queues [NumPriorities][]*KThread
	mask   uint64
}

func (f *priorityFIFO) pushBack(priority int, t *KThread) {
	f.queues[priority] = append(f.queues[priority], t)
	f.mask |= 1 << uint(priority)
}

func (f *priorityFIFO) pushFront(priority int, t *KThread) {
	f.queues[priority] = append([]*KThread{t}, f.queues[priority]...)
	f.mask |= 1 << uint(priority)
}

// remove deletes t from priority's queue, returning whether it was
// found. The queue is kept in FIFO order for the remaining threads.
func (f *priorityFIFO) remove(priority int, t *KThread) bool {
	q := f.queues[priority]
	for i, cur := range q {
		if cur == t {
			f.queues[priority] = append(q[:i:i], q[i+1:]...)
			if len(f.queues[priority]) == 0 {
				f.mask &^= 1 << uint(priority)
			}
			return true
		}
	}
	return false
}

func (f *priorityFIFO) highest() (int, bool) {
	if f.mask == 0 {
		return 0, false
	}
	return trailingZeros64(f.mask), true
}

func (f *priorityFIFO) front(priority int) *KThread {
	q := f.queues[priority]
	if len(q) == 0 {
		return nil
	}
	return q[0]
}

func (f *priorityFIFO) isEmpty() bool {
	return f.mask == 0
}

// nth returns the n-th thread (0-indexed) across the whole queue, walking
// priorities lowest-number-first and each priority's FIFO in arrival
// order — i.e. the overall schedule order for this core.
func (f *priorityFIFO) nth(n int) *KThread {
	idx := 0
	for p := 0; p < NumPriorities; p++ {
		if f.mask&(1<<uint(p)) == 0 {
			continue
		}
		for _, t := range f.queues[p] {
			if idx == n {
				return t
			}
			idx++
		}
	}
	return nil
}

// forEach walks every queued thread in overall schedule order, lowest
// priority number first, calling fn(priority, thread). Stops early if fn
// returns false.
func (f *priorityFIFO) forEach(fn func(priority int, t *KThread) bool) {
	for p := 0; p < NumPriorities; p++ {
		if f.mask&(1<<uint(p)) == 0 {
			continue
		}
		for _, t := range f.queues[p] {
			if !fn(p, t) {
				return
			}
		}
	}
}

func trailingZeros64(x uint64) int {
	if x == 0 {
		return 64
	}
	n := 0
	for x&1 == 0 {
		x >>= 1
		n++
	}
	return n
}

// PriorityQueue is the shared-across-cores structure described in spec
// §4.4: per-core scheduled FIFOs (threads actually dispatched there) and
// suggested FIFOs (threads whose affinity includes this core but are
// currently scheduled elsewhere). All mutation happens under the
// kernel's critical section; PriorityQueue itself holds no lock.
type PriorityQueue struct {
	scheduled [NumCores]priorityFIFO
	suggested [NumCores]priorityFIFO
}

func NewPriorityQueue() *PriorityQueue {
	return &PriorityQueue{}
}

func (pq *PriorityQueue) Schedule(priority, core int, t *KThread) {
	pq.scheduled[core].pushBack(priority, t)
}

func (pq *PriorityQueue) SchedulePrepend(priority, core int, t *KThread) {
	pq.scheduled[core].pushFront(priority, t)
}

func (pq *PriorityQueue) Unschedule(priority, core int, t *KThread) {
	pq.scheduled[core].remove(priority, t)
}

func (pq *PriorityQueue) Suggest(priority, core int, t *KThread) {
	pq.suggested[core].pushBack(priority, t)
}

func (pq *PriorityQueue) Unsuggest(priority, core int, t *KThread) {
	pq.suggested[core].remove(priority, t)
}

// Reschedule moves t to the tail of its current priority's scheduled
// FIFO on core (spec §4.4 "reschedule (move-to-tail)").
func (pq *PriorityQueue) Reschedule(priority, core int, t *KThread) {
	if pq.scheduled[core].remove(priority, t) {
		pq.scheduled[core].pushBack(priority, t)
	}
}

// TransferThreadToCore atomically migrates t into dstCore's scheduled
// FIFO at priority, leaving a suggestion behind on its previous active
// core if affinity still includes it (spec §4.4
// "transfer_thread_to_core").
func (pq *PriorityQueue) TransferThreadToCore(priority, dstCore int, t *KThread) {
	srcCore := t.ActiveCore()
	if srcCore >= 0 && srcCore != dstCore {
		pq.scheduled[srcCore].remove(priority, t)
		if t.AffinityMask()&(1<<uint(srcCore)) != 0 {
			pq.suggested[srcCore].pushBack(priority, t)
		}
	} else if srcCore == dstCore {
		pq.scheduled[srcCore].remove(priority, t)
	}
	pq.suggested[dstCore].remove(priority, t)
	pq.scheduled[dstCore].pushBack(priority, t)
	t.setActiveCore(dstCore)
}

func (pq *PriorityQueue) ScheduledHighest(core int) *KThread {
	p, ok := pq.scheduled[core].highest()
	if !ok {
		return nil
	}
	return pq.scheduled[core].front(p)
}

func (pq *PriorityQueue) ScheduledIsEmpty(core int) bool {
	return pq.scheduled[core].isEmpty()
}

func (pq *PriorityQueue) ScheduledSecond(core int) *KThread {
	return pq.scheduled[core].nth(1)
}

// FirstSuggested returns the highest-priority (then earliest-arrived)
// thread in core's suggested queue, if any.
func (pq *PriorityQueue) FirstSuggested(core int) (*KThread, bool) {
	t := pq.suggested[core].nth(0)
	return t, t != nil
}

// FindSuggested returns the first thread in core's suggested queue
// (overall schedule order) satisfying pred, along with its priority.
func (pq *PriorityQueue) FindSuggested(core int, pred func(t *KThread) bool) (*KThread, int, bool) {
	var found *KThread
	var foundPrio int
	pq.suggested[core].forEach(func(priority int, t *KThread) bool {
		if pred(t) {
			found = t
			foundPrio = priority
			return false
		}
		return true
	})
	return found, foundPrio, found != nil
}

// BitmaskInvariantHolds is a test/debug helper asserting spec §8's
// "Priority-queue bitmask bit p set iff scheduled FIFO at priority p is
// non-empty" for every core.
func (pq *PriorityQueue) BitmaskInvariantHolds() bool {
	for c := 0; c < NumCores; c++ {
		for p := 0; p < NumPriorities; p++ {
			bitSet := pq.scheduled[c].mask&(1<<uint(p)) != 0
			nonEmpty := len(pq.scheduled[c].queues[p]) != 0
			if bitSet != nonEmpty {
				return false
			}
		}
	}
	return true
}
