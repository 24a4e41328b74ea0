package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/XorTroll/pegasus/domain"
)

func TestNewTransferMemoryFields(t *testing.T) {
	k := NewKernel()
	tm := k.NewTransferMemory(0x1000, 0x2000, 7)

	assert.Equal(t, uint64(0x1000), tm.Addr())
	assert.Equal(t, uint64(0x2000), tm.Size())
	assert.Equal(t, uint32(7), tm.Perm())
	assert.Equal(t, domain.KindTransferMemory, tm.Kind())
}

func TestTransferMemoryHandleTableRoundTrip(t *testing.T) {
	k := NewKernel()
	tbl := NewHandleTable(4)
	tm := k.NewTransferMemory(1, 2, 3)

	h, res := tbl.Add(tm)
	assert.True(t, res.IsSuccess())

	obj, res := tbl.Get(h)
	assert.True(t, res.IsSuccess())
	assert.Same(t, tm, obj)
}
