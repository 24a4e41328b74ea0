package svc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XorTroll/pegasus/cpu/stub"
	"github.com/XorTroll/pegasus/domain"
	"github.com/XorTroll/pegasus/kernel"
)

func newTestProcess(t *testing.T) (*kernel.Kernel, *kernel.KProcess, *kernel.KThread) {
	t.Helper()
	k := kernel.NewKernel()
	limit := k.NewResourceLimit()
	require.True(t, limit.SetLimit(kernel.ResourceTransferMemory, 1).IsSuccess())
	p := k.NewProcess("test", domain.DefaultCapabilities(), limit)
	self := k.NewHostThread("svc-test")
	return k, p, self
}

func TestCreateTransferMemoryReservesAndBinds(t *testing.T) {
	k, p, self := newTestProcess(t)
	cpu := stub.New(nil, 0, 0, 0)
	cpu.SetGPR(0, 0x1000) // addr
	cpu.SetGPR(1, 0x2000) // size
	cpu.SetGPR(2, 3)      // perm

	res := hCreateTransferMemory(k, p, self, cpu)
	require.True(t, res.IsSuccess())
	assert.Equal(t, int64(1), p.ResourceLimit().GetCurrent(kernel.ResourceTransferMemory))

	h := domain.Handle(cpu.GPR(1))
	obj, res := p.Handles().Get(h)
	require.True(t, res.IsSuccess())
	tm, ok := obj.(*kernel.KTransferMemory)
	require.True(t, ok)
	assert.Equal(t, uint64(0x1000), tm.Addr())
	assert.Equal(t, uint64(0x2000), tm.Size())
	assert.Equal(t, uint32(3), tm.Perm())
}

func TestCreateTransferMemoryFailsWhenLimitReached(t *testing.T) {
	k, p, self := newTestProcess(t)
	cpu := stub.New(nil, 0, 0, 0)

	require.True(t, hCreateTransferMemory(k, p, self, cpu).IsSuccess())

	second := stub.New(nil, 0, 0, 0)
	res := hCreateTransferMemory(k, p, self, second)
	assert.False(t, res.IsSuccess())
}

func TestArbitrateLockUnlockRoundTrip(t *testing.T) {
	k, p, self := newTestProcess(t)

	lockCPU := stub.New(nil, 0, 0, 0)
	lockCPU.SetGPR(1, 0x42)
	require.True(t, hArbitrateLock(k, p, self, lockCPU).IsSuccess())

	unlockCPU := stub.New(nil, 0, 0, 0)
	unlockCPU.SetGPR(0, 0x42)
	require.True(t, hArbitrateUnlock(k, p, self, unlockCPU).IsSuccess())
}

func TestArbitrateUnlockByNonOwnerFails(t *testing.T) {
	k, p, self := newTestProcess(t)
	other := k.NewHostThread("other")

	lockCPU := stub.New(nil, 0, 0, 0)
	lockCPU.SetGPR(1, 7)
	require.True(t, hArbitrateLock(k, p, self, lockCPU).IsSuccess())

	unlockCPU := stub.New(nil, 0, 0, 0)
	unlockCPU.SetGPR(0, 7)
	res := hArbitrateUnlock(k, p, other, unlockCPU)
	assert.False(t, res.IsSuccess())
}
