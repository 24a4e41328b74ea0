// Package stub is a deterministic reference CPUContext good enough to
// drive the kernel's test suite end to end without a real ARM64
// JIT/interpreter (spec §1 scopes CPU execution itself out of this
// repo). It is not cycle-accurate ARM64: rather than decoding compiled
// machine code, a Program is a small slice of pre-decoded Instruction
// values — enough to express "do some work, then SVC" test fixtures and
// the odd branch/loop, which is all the kernel side of this emulator
// needs to exercise.
package stub

import (
	"fmt"
	"sync/atomic"

	"github.com/XorTroll/pegasus/domain"
)

// Op is one of the handful of opcodes this stub understands.
type Op int

const (
	OpNop Op = iota
	OpMovImm
	OpSVC
	OpB
	OpRet
)

// Instruction is one decoded instruction: Rd/Imm are used by OpMovImm,
// Imm by OpSVC (the SVC id), Target by OpB (an absolute index into the
// owning Program).
type Instruction struct {
	Op     Op
	Rd     int
	Imm    uint64
	Target int
}

// Program is a thread's guest code: a flat instruction stream with no
// separate data segment, addressed by instruction index rather than a
// byte address.
type Program []Instruction

// Context implements domain.CPUContext over a Program.
type Context struct {
	regs    [31]uint64
	pc      uint64
	program Program
	svcNum  uint32

	interruptRequested int32
}

// New builds a Context ready to execute program starting at entry (an
// instruction index), with arg in X0 and stackTop recorded for programs
// that care to read it back out of a register themselves.
func New(program Program, entry, arg, stackTop uint64) *Context {
	c := &Context{program: program, pc: entry}
	c.regs[0] = arg
	if len(c.regs) > 1 {
		c.regs[1] = stackTop
	}
	return c
}

// Run executes instructions until an SVC, a requested interrupt, or a
// fatal condition (out-of-range PC, RET with no caller, unknown
// opcode).
func (c *Context) Run() (domain.TrapReason, error) {
	for {
		if atomic.SwapInt32(&c.interruptRequested, 0) != 0 {
			return domain.TrapInterrupt, nil
		}
		if c.pc >= uint64(len(c.program)) {
			return domain.TrapFatal, fmt.Errorf("cpu/stub: pc %d out of range (program length %d)", c.pc, len(c.program))
		}

		instr := c.program[c.pc]
		switch instr.Op {
		case OpNop:
			c.pc++
		case OpMovImm:
			if instr.Rd < 0 || instr.Rd >= len(c.regs) {
				return domain.TrapFatal, fmt.Errorf("cpu/stub: MOV to out-of-range register %d", instr.Rd)
			}
			c.regs[instr.Rd] = instr.Imm
			c.pc++
		case OpB:
			c.pc = uint64(instr.Target)
		case OpRet:
			return domain.TrapFatal, fmt.Errorf("cpu/stub: RET with no caller at pc %d", c.pc)
		case OpSVC:
			c.svcNum = uint32(instr.Imm)
			c.pc++
			return domain.TrapSVC, nil
		default:
			return domain.TrapFatal, fmt.Errorf("cpu/stub: unknown opcode %d at pc %d", instr.Op, c.pc)
		}
	}
}

func (c *Context) SVCNumber() uint32 { return c.svcNum }

func (c *Context) GPR(n int) uint64 {
	if n < 0 || n >= len(c.regs) {
		return 0
	}
	return c.regs[n]
}

func (c *Context) SetGPR(n int, v uint64) {
	if n < 0 || n >= len(c.regs) {
		return
	}
	c.regs[n] = v
}

func (c *Context) PC() uint64 { return c.pc }

func (c *Context) SetPC(pc uint64) { c.pc = pc }

// RequestInterrupt asks the next Run loop iteration to return
// TrapInterrupt instead of executing further instructions — the
// scheduler's way of preempting a thread that doesn't SVC on its own.
func (c *Context) RequestInterrupt() {
	atomic.StoreInt32(&c.interruptRequested, 1)
}

var _ domain.CPUContext = (*Context)(nil)
