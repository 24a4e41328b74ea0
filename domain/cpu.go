package domain

// TrapReason classifies why CPUContext.Run returned control to the
// kernel (spec §1 "CPU binding ... out of scope except where they form
// the kernel's collaborator contracts": the kernel only needs to know
// *that* and *why* control came back, never how the guest code executed).
type TrapReason int

const (
	// TrapSVC is raised when the guest executed an SVC instruction; the
	// kernel reads the decoded id via CPUContext.SVCNumber.
	TrapSVC TrapReason = iota
	// TrapInterrupt is raised at the end of an emulated basic block when
	// the scheduler has requested this core reschedule.
	TrapInterrupt
	// TrapFatal is raised on an unrecoverable guest fault (e.g. an
	// out-of-range PC or an unknown instruction). Every SVC, including an
	// unknown or disabled id, traps as TrapSVC; Dispatch then returns a
	// failure result for it.
	TrapFatal
)

// CPUContext is the collaborator contract between the kernel and
// whatever ARM64 execution engine backs a guest thread (JIT or
// interpreter — deliberately out of this repo's scope). A thread without
// one is a pure host thread (spec §3 "Thread": "optional CPU execution
// context").
type CPUContext interface {
	// Run executes guest code until a trap point and reports why it
	// stopped.
	Run() (TrapReason, error)
	// SVCNumber returns the decoded id of the SVC instruction that
	// caused the most recent TrapSVC.
	SVCNumber() uint32
	// GPR reads general-purpose register n (0..30).
	GPR(n int) uint64
	// SetGPR writes general-purpose register n (0..30), per Horizon's
	// ABI register convention (W0 carries the result code on SVC
	// return, outputs flow through W1..W7/X1..X7).
	SetGPR(n int, v uint64)
	// PC reads the program counter; SetPC sets it, e.g. to retry or skip
	// an instruction.
	PC() uint64
	SetPC(pc uint64)
	// RequestInterrupt asks the execution engine to trap back to the
	// kernel at the next basic-block boundary (used by the scheduler to
	// preempt a running guest thread from another core).
	RequestInterrupt()
}

// DecodeSVC reports whether the given little-endian 32-bit instruction
// word is an SVC trampoline (`SVC #imm16`, encoding
// `0xD4000001 | (id << 5)`, spec §6 "Guest ABI"), and if so its id.
func DecodeSVC(instruction uint32) (id uint32, ok bool) {
	const svcMask = 0xFFE0001F
	const svcFixed = 0xD4000001
	if instruction&svcMask != svcFixed {
		return 0, false
	}
	return (instruction >> 5) & 0xFFFF, true
}

// EncodeSVC returns the 32-bit instruction word for `SVC #id`.
func EncodeSVC(id uint32) uint32 {
	return 0xD4000001 | ((id & 0xFFFF) << 5)
}

// CPUContextFactory builds a fresh CPUContext for a newly created guest
// thread, seeded with its entry point, argument register and stack top
// (spec §6 "Guest ABI" thread-start convention). svcCreateThread uses
// this to give each KThread its own execution context without the
// kernel package needing to know anything about how one is implemented.
type CPUContextFactory func(entry, arg, stackTop uint64) CPUContext
