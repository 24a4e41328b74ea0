package kernel

import "github.com/XorTroll/pegasus/domain"

// KTransferMemory is the handle-table object behind svcCreateTransferMemory
// (spec §3 resource categories: ResourceTransferMemory). This emulator has
// no byte-addressable guest memory (cpu/stub is a register-level
// stand-in, spec §1), so the region is tracked as an opaque
// (addr, size, permission) triple for bookkeeping and capability
// accounting rather than backed by real guest bytes.
type KTransferMemory struct {
	refcounted

	addr uint64
	size uint64
	perm uint32
}

// NewTransferMemory creates a transfer-memory object describing a guest
// region, without validating addr/size against any real address space.
func (k *Kernel) NewTransferMemory(addr, size uint64, perm uint32) *KTransferMemory {
	tm := &KTransferMemory{addr: addr, size: size, perm: perm}
	tm.refcounted = newRefcounted(nil)
	return tm
}

func (tm *KTransferMemory) Kind() domain.ObjectKind { return domain.KindTransferMemory }
func (tm *KTransferMemory) Addr() uint64            { return tm.addr }
func (tm *KTransferMemory) Size() uint64            { return tm.size }
func (tm *KTransferMemory) Perm() uint32            { return tm.perm }
