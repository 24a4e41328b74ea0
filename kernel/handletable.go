package kernel

import (
	"sync"

	"github.com/XorTroll/pegasus/domain"
)

type handleSlot struct {
	obj        domain.KObject
	generation uint32
	reserved   bool // true between AllocateEmpty and the matching Set
}

// HandleTable is a process's 32-bit-handle -> KObject mapping (spec §3
// "Handle table", GLOSSARY "Handle"). Slots are recycled: the index
// portion of a freed handle is reused, but its generation advances so a
// stale handle value from before the free is caught rather than silently
// resolving to whatever now occupies that index.
type HandleTable struct {
	mu        sync.Mutex
	slots     []handleSlot
	freeStack []uint32 // indices
}

func NewHandleTable(capacity int) *HandleTable {
	return &HandleTable{
		slots: make([]handleSlot, capacity),
	}
}

// Add installs obj (taking a reference) into a free slot and returns its
// handle, or domain.ResultOutOfHandles if the table is full.
func (t *HandleTable) Add(obj domain.KObject) (domain.Handle, domain.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()

	index, res := t.allocateIndex()
	if !res.IsSuccess() {
		return 0, res
	}
	gen := t.slots[index].generation
	if gen == 0 {
		gen = 1
	}
	obj.IncRef()
	t.slots[index] = handleSlot{obj: obj, generation: gen}
	return domain.EncodeHandle(index, gen), domain.Success
}

// allocateIndex reserves a free slot index, preferring the free stack's
// most-recently-freed entry (fresher generation, better cache behavior)
// and falling back to a linear scan. Callers hold t.mu.
func (t *HandleTable) allocateIndex() (uint32, domain.Result) {
	if n := len(t.freeStack); n > 0 {
		index := t.freeStack[n-1]
		t.freeStack = t.freeStack[:n-1]
		return index, domain.Success
	}
	for i := range t.slots {
		if t.slots[i].obj == nil && !t.slots[i].reserved {
			return uint32(i), domain.Success
		}
	}
	return 0, domain.ResultOutOfHandles
}

// AllocateEmpty reserves a slot without binding an object to it yet,
// returning a handle that only resolves once Set is called with the same
// handle (spec §4.2 "allocate_empty"). Used by HIPC domain-clone handling,
// where the client handle must exist before the cloned session object does.
func (t *HandleTable) AllocateEmpty() (domain.Handle, domain.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()

	index, res := t.allocateIndex()
	if !res.IsSuccess() {
		return 0, res
	}
	gen := t.slots[index].generation
	if gen == 0 {
		gen = 1
	}
	t.slots[index] = handleSlot{generation: gen, reserved: true}
	return domain.EncodeHandle(index, gen), domain.Success
}

// Set binds obj (taking a reference) into the slot h reserved via
// AllocateEmpty. Returns domain.ResultInvalidHandle if h's generation no
// longer matches the reservation — it was never reserved, already bound,
// or the slot was freed and recycled since (spec §4.2 "set").
func (t *HandleTable) Set(h domain.Handle, obj domain.KObject) domain.Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := h.Index()
	if int(idx) >= len(t.slots) {
		return domain.ResultInvalidHandle
	}
	slot := t.slots[idx]
	if !slot.reserved || slot.obj != nil || slot.generation != h.Generation() {
		return domain.ResultInvalidHandle
	}
	obj.IncRef()
	t.slots[idx] = handleSlot{obj: obj, generation: slot.generation}
	return domain.Success
}

// Get resolves h to its object without transferring a new reference.
func (t *HandleTable) Get(h domain.Handle) (domain.KObject, domain.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lookup(h)
}

func (t *HandleTable) lookup(h domain.Handle) (domain.KObject, domain.Result) {
	idx := h.Index()
	if int(idx) >= len(t.slots) {
		return nil, domain.ResultInvalidHandle
	}
	slot := t.slots[idx]
	if slot.obj == nil || slot.generation != h.Generation() {
		return nil, domain.ResultInvalidHandle
	}
	return slot.obj, domain.Success
}

// Close removes h from the table, releasing the table's reference and
// advancing the slot's generation so the freed handle value can never
// resolve again.
func (t *HandleTable) Close(h domain.Handle) domain.Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	obj, res := t.lookup(h)
	if !res.IsSuccess() {
		return res
	}
	idx := h.Index()
	t.slots[idx] = handleSlot{generation: domain.NextGeneration(t.slots[idx].generation)}
	t.freeStack = append(t.freeStack, idx)
	obj.DecRef()
	return domain.Success
}

// Duplicate installs a second handle for the same object h already
// refers to, incrementing its reference count again.
func (t *HandleTable) Duplicate(h domain.Handle) (domain.Handle, domain.Result) {
	t.mu.Lock()
	obj, res := t.lookup(h)
	t.mu.Unlock()
	if !res.IsSuccess() {
		return 0, res
	}
	return t.Add(obj)
}

// Count reports how many live handles are currently installed, for
// resource-limit accounting and tests.
func (t *HandleTable) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, s := range t.slots {
		if s.obj != nil {
			n++
		}
	}
	return n
}

// identifiable is satisfied by every concrete KObject this kernel defines
// (KProcess, KThread, KPort halves, KSession halves, ...); Snapshot uses
// it to surface a stable id without widening the core domain.KObject
// contract just for introspection's sake.
type identifiable interface {
	ID() uint64
}

// HandleInfo is a read-only snapshot of one live handle-table slot, for
// introspection surfaces (package admin) that shouldn't hold a reference
// to the underlying object.
type HandleInfo struct {
	Handle domain.Handle
	Kind   domain.ObjectKind
	ID     uint64
}

// Snapshot returns a point-in-time copy of every live handle in the
// table.
func (t *HandleTable) Snapshot() []HandleInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []HandleInfo
	for i, s := range t.slots {
		if s.obj == nil {
			continue
		}
		var id uint64
		if ider, ok := s.obj.(identifiable); ok {
			id = ider.ID()
		}
		out = append(out, HandleInfo{
			Handle: domain.EncodeHandle(uint32(i), s.generation),
			Kind:   s.obj.Kind(),
			ID:     id,
		})
	}
	return out
}
