package kernel

import (
	"sync"
	"time"

	"github.com/XorTroll/pegasus/domain"
)

// DefaultReserveTimeout is how long Reserve blocks waiting for headroom
// before failing, when the caller doesn't specify one (spec §4.10,
// "up to a configurable default timeout (~10s)").
const DefaultReserveTimeout = 10 * time.Second

// ResourceType enumerates the countable resource categories a
// KResourceLimit tracks (spec §3 "Resource limits").
type ResourceType int

const (
	ResourceMemory ResourceType = iota
	ResourceThreads
	ResourceEvents
	ResourceTransferMemory
	ResourceSessions
	numResourceTypes
)

// KResourceLimit is a refcounted kernel object gating how much of each
// resource category a process tree may consume at once.
type KResourceLimit struct {
	refcounted

	mu      sync.Mutex
	cond    *sync.Cond
	limit   [numResourceTypes]int64
	current [numResourceTypes]int64
	hint    [numResourceTypes]int64 // pending reservations; see Reserve
	peak    [numResourceTypes]int64
}

func (k *Kernel) NewResourceLimit() *KResourceLimit {
	rl := &KResourceLimit{}
	rl.refcounted = newRefcounted(nil)
	rl.cond = sync.NewCond(&rl.mu)
	return rl
}

func (rl *KResourceLimit) Kind() domain.ObjectKind { return domain.KindResourceLimit }

// SetLimit sets the ceiling for a resource category. Returns
// domain.ResultInvalidState if current usage already exceeds value.
func (rl *KResourceLimit) SetLimit(res ResourceType, value int64) domain.Result {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.current[res] > value {
		return domain.ResultInvalidState
	}
	rl.limit[res] = value
	return domain.Success
}

// Reserve attempts to account for amount additional units of res, blocking
// up to DefaultReserveTimeout if the limit is currently exceeded but a
// reservation in flight (tracked via hint) is expected to free enough room.
func (rl *KResourceLimit) Reserve(res ResourceType, amount int64) domain.Result {
	return rl.ReserveTimeout(res, amount, DefaultReserveTimeout)
}

// ReserveTimeout is Reserve with an explicit timeout (spec §4.10
// "reserve(kind, n, timeout?)"). While current+amount exceeds the limit but
// hint+amount would still fit, the caller blocks on rl.cond — woken either
// by a matching Release or by the timeout elapsing. On success it raises
// both current and hint; on timeout, or if even hint+amount overflows the
// limit, it fails with domain.ResultLimitReached without side effects.
func (rl *KResourceLimit) ReserveTimeout(res ResourceType, amount int64, timeout time.Duration) domain.Result {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	deadline := time.Now().Add(timeout)
	for rl.current[res]+amount > rl.limit[res] {
		if rl.hint[res]+amount > rl.limit[res] {
			return domain.ResultLimitReached
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return domain.ResultLimitReached
		}
		timer := time.AfterFunc(remaining, rl.cond.Broadcast)
		rl.cond.Wait()
		timer.Stop()
	}

	rl.current[res] += amount
	rl.hint[res] += amount
	if rl.current[res] > rl.peak[res] {
		rl.peak[res] = rl.current[res]
	}
	return domain.Success
}

// Release gives back amount units of res previously reserved, lowering
// both current and hint by hintAmount (normally equal to amount; a smaller
// hintAmount lets a caller release a completed reservation's current usage
// while keeping part of its pending hint alive for a still-in-flight
// sibling reservation) and waking any blocked Reserve callers.
func (rl *KResourceLimit) Release(res ResourceType, amount, hintAmount int64) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.current[res] -= amount
	if rl.current[res] < 0 {
		rl.current[res] = 0
	}
	rl.hint[res] -= hintAmount
	if rl.hint[res] < 0 {
		rl.hint[res] = 0
	}
	rl.cond.Broadcast()
}

func (rl *KResourceLimit) GetLimit(res ResourceType) int64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.limit[res]
}

func (rl *KResourceLimit) GetCurrent(res ResourceType) int64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.current[res]
}

func (rl *KResourceLimit) GetPeak(res ResourceType) int64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.peak[res]
}
