package kernel

import (
	"sync"

	"github.com/XorTroll/pegasus/domain"
)

// AddressArbiter is the per-process userspace mutex/condition-variable
// primitive svcArbitrateLock/svcArbitrateUnlock arbitrate over (spec §1
// lists "condition variables" among the core's synchronization
// primitives). Guest libraries build mutexes and condvars out of a single
// arbitrated word; the kernel is only ever asked to resolve contention on
// it. This emulator has no byte-addressable guest memory to inspect
// (cpu/stub is a deterministic register-level stand-in, spec §1), so the
// arbitrated "address" is an opaque per-process key rather than a real
// memory location the kernel peeks at, and ownership is tracked by
// calling-thread id rather than a guest-supplied tag word.
type AddressArbiter struct {
	mu     sync.Mutex
	cond   *sync.Cond
	owners map[uint64]uint64 // key -> owning thread id, absent = unlocked
}

func newAddressArbiter() *AddressArbiter {
	a := &AddressArbiter{owners: make(map[uint64]uint64)}
	a.cond = sync.NewCond(&a.mu)
	return a
}

// Lock blocks the calling thread until key is unowned, then claims it for
// threadID (spec svcArbitrateLock). Re-locking a key threadID already
// holds returns immediately rather than self-deadlocking.
func (a *AddressArbiter) Lock(key, threadID uint64) domain.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	for {
		owner, held := a.owners[key]
		if !held || owner == threadID {
			break
		}
		a.cond.Wait()
	}
	a.owners[key] = threadID
	return domain.Success
}

// Unlock releases key, waking anyone blocked in Lock on it (spec
// svcArbitrateUnlock). Returns domain.ResultInvalidState if threadID
// doesn't currently hold key.
func (a *AddressArbiter) Unlock(key, threadID uint64) domain.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	if owner, held := a.owners[key]; !held || owner != threadID {
		return domain.ResultInvalidState
	}
	delete(a.owners, key)
	a.cond.Broadcast()
	return domain.Success
}
