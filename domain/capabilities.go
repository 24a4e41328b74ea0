package domain

// ProgramType enumerates the NPDM "misc params" program type (spec §6,
// kernel-capability descriptor with lowest-clear-bit 13).
type ProgramType int

const (
	ProgramTypeSystem ProgramType = iota
	ProgramTypeApplication
	ProgramTypeApplet
)

// MemoryRegionMap is a single (address, permission, size, type) entry
// decoded from a kernel-capability "memory-map" descriptor pair
// (lowest-clear-bit 6).
type MemoryRegionMap struct {
	Address    uint64
	Size       uint64
	Permission uint32
	IsIO       bool
}

// Capabilities is the NPDM-derived access-control policy a KProcess
// carries: which SVCs it may invoke, its handle-table capacity, and its
// main thread's scheduling parameters (spec §3 "Process (KProcess)").
type Capabilities struct {
	ProcessName string
	ProductCode string

	MainThreadPriority int
	MainThreadCore     int
	MainThreadStackSize uint64

	// EnabledSVCs is indexed by SVC id (0..0x7F); true means the
	// process's NPDM grants it.
	EnabledSVCs [128]bool

	ThreadPriorityLow  int
	ThreadPriorityHigh int
	ThreadCoreLow      int
	ThreadCoreHigh     int

	HandleTableSize int

	MemoryMaps []MemoryRegionMap

	KernelVersionMajor int
	KernelVersionMinor int

	ProgramType ProgramType

	EnableDebug bool
	ForceDebug  bool
}

// SVCEnabled reports whether SVC id is permitted by these capabilities.
func (c *Capabilities) SVCEnabled(id uint32) bool {
	if int(id) >= len(c.EnabledSVCs) {
		return false
	}
	return c.EnabledSVCs[id]
}

// DefaultCapabilities returns a permissive policy suitable for a process
// whose NPDM grants every SVC this emulator implements — used by tests
// and by the loader when no META section restricts further.
func DefaultCapabilities() Capabilities {
	c := Capabilities{
		ProcessName:         "unknown",
		MainThreadPriority:  44,
		MainThreadCore:      0,
		MainThreadStackSize: 0x8000,
		ThreadPriorityLow:   0,
		ThreadPriorityHigh:  63,
		ThreadCoreLow:       0,
		ThreadCoreHigh:      3,
		HandleTableSize:     1024,
		KernelVersionMajor:  12,
		KernelVersionMinor:  1,
		ProgramType:         ProgramTypeApplication,
	}
	for i := range c.EnabledSVCs {
		c.EnabledSVCs[i] = true
	}
	return c
}
