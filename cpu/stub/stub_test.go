package stub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XorTroll/pegasus/domain"
)

func TestRunStopsAtSVC(t *testing.T) {
	prog := Program{
		{Op: OpMovImm, Rd: 0, Imm: 7},
		{Op: OpSVC, Imm: 0x26},
	}
	c := New(prog, 0, 0, 0)

	trap, err := c.Run()
	require.NoError(t, err)
	assert.Equal(t, domain.TrapSVC, trap)
	assert.Equal(t, uint32(0x26), c.SVCNumber())
	assert.Equal(t, uint64(7), c.GPR(0))
}

func TestBranchThenSVCTraps(t *testing.T) {
	prog := Program{
		{Op: OpMovImm, Rd: 0, Imm: 1},
		{Op: OpB, Target: 2},
		{Op: OpNop},
		{Op: OpSVC, Imm: 1},
	}
	c := New(prog, 0, 0, 0)

	trap, err := c.Run()
	require.NoError(t, err)
	assert.Equal(t, domain.TrapSVC, trap)
}

func TestOutOfRangePCIsFatal(t *testing.T) {
	c := New(Program{}, 5, 0, 0)
	trap, err := c.Run()
	assert.Equal(t, domain.TrapFatal, trap)
	assert.Error(t, err)
}

func TestRetWithNoCallerIsFatal(t *testing.T) {
	c := New(Program{{Op: OpRet}}, 0, 0, 0)
	trap, err := c.Run()
	assert.Equal(t, domain.TrapFatal, trap)
	assert.Error(t, err)
}

func TestRequestInterruptStopsRun(t *testing.T) {
	prog := Program{{Op: OpNop}, {Op: OpB, Target: 0}}
	c := New(prog, 0, 0, 0)
	c.RequestInterrupt()

	trap, err := c.Run()
	require.NoError(t, err)
	assert.Equal(t, domain.TrapInterrupt, trap)
}

func TestSetGPRAndPC(t *testing.T) {
	c := New(nil, 0, 0, 0)
	c.SetGPR(3, 99)
	assert.Equal(t, uint64(99), c.GPR(3))

	c.SetPC(4)
	assert.Equal(t, uint64(4), c.PC())
}
