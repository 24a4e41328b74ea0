package kernel

import (
	"sync"
	"sync/atomic"

	"github.com/XorTroll/pegasus/domain"
)

// ProcessState mirrors the guest-visible svcGetProcessInfo state machine
// (spec §3 "Process (KProcess)").
type ProcessState int

const (
	ProcessCreated ProcessState = iota
	ProcessRunning
	ProcessCrashed
	ProcessTerminating
	ProcessTerminated
)

func (s ProcessState) String() string {
	switch s {
	case ProcessCreated:
		return "Created"
	case ProcessRunning:
		return "Running"
	case ProcessCrashed:
		return "Crashed"
	case ProcessTerminating:
		return "Terminating"
	case ProcessTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// KProcess owns a guest address space, a handle table, its threads, and
// the capability set loaded from an NPDM (spec §3, §6 "Capability
// descriptors").
type KProcess struct {
	refcounted
	waiterList

	kernel *Kernel

	id   uint64
	name string

	mu       sync.Mutex
	state    ProcessState
	exitCode int

	caps  domain.Capabilities
	limit *KResourceLimit

	handles *HandleTable
	threads []*KThread

	mainThread *KThread

	arbiter *AddressArbiter
}

// NewProcess creates a process shell ready to have its main thread
// created via Kernel.NewThread. caps is normally produced by the loader
// package from an NPDM's capability descriptors.
func (k *Kernel) NewProcess(name string, caps domain.Capabilities, limit *KResourceLimit) *KProcess {
	id := atomic.AddUint64(&k.nextProcessID, 1)
	p := &KProcess{
		kernel:  k,
		id:      id,
		name:    name,
		state:   ProcessCreated,
		caps:    caps,
		limit:   limit,
		handles: NewHandleTable(1024),
		arbiter: newAddressArbiter(),
	}
	p.refcounted = newRefcounted(func() { k.onProcessDestroyed(p) })
	k.registerProcess(p)
	return p
}

func (k *Kernel) onProcessDestroyed(p *KProcess) {
	k.unregisterProcess(p)
	p.waiterList.clear()
	if p.limit != nil {
		p.limit.DecRef()
	}
}

func (p *KProcess) Kind() domain.ObjectKind { return domain.KindProcess }
func (p *KProcess) ID() uint64              { return p.id }
func (p *KProcess) Name() string            { return p.name }
func (p *KProcess) Handles() *HandleTable   { return p.handles }
func (p *KProcess) Capabilities() domain.Capabilities { return p.caps }
func (p *KProcess) ResourceLimit() *KResourceLimit    { return p.limit }
func (p *KProcess) Arbiter() *AddressArbiter           { return p.arbiter }

func (p *KProcess) State() ProcessState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// IsSignaled implements domain.SyncObject: a process becomes (and stays)
// signaled once it has exited, in either Crashed or Terminated state.
func (p *KProcess) IsSignaled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == ProcessCrashed || p.state == ProcessTerminated
}

// NewThread creates a new KThread owned by this process, reserving a
// slot against the process's resource limit.
func (p *KProcess) NewThread(priority, preferredCore int, affinity uint64, cpu domain.CPUContext, name string) (*KThread, domain.Result) {
	if p.limit != nil {
		if res := p.limit.Reserve(ResourceThreads, 1); !res.IsSuccess() {
			return nil, res
		}
	}
	t := p.kernel.newThread(p, priority, preferredCore, affinity, cpu, false, name)

	p.mu.Lock()
	p.threads = append(p.threads, t)
	if p.mainThread == nil {
		p.mainThread = t
	}
	p.mu.Unlock()
	return t, domain.Success
}

func (p *KProcess) MainThread() *KThread {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mainThread
}

// Threads returns a point-in-time snapshot of this process's threads,
// for introspection surfaces (package admin) only.
func (p *KProcess) Threads() []*KThread {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*KThread(nil), p.threads...)
}

// Start moves the process to Running and starts its main thread (spec
// §3 "Process" lifecycle, driven by the loader after NSO segments are
// mapped).
func (p *KProcess) Start(self *KThread) domain.Result {
	p.mu.Lock()
	if p.state != ProcessCreated {
		p.mu.Unlock()
		return domain.ResultInvalidState
	}
	p.state = ProcessRunning
	main := p.mainThread
	p.mu.Unlock()

	if main == nil {
		return domain.ResultInvalidState
	}
	return main.Start(self)
}

// Terminate transitions the process to Terminated, tearing down every
// thread and signalling any waiters (spec §3, joinable via
// wait_for_sync_objects on the process handle).
func (p *KProcess) Terminate(self *KThread, crashed bool) {
	p.mu.Lock()
	if p.state == ProcessTerminated || p.state == ProcessCrashed {
		p.mu.Unlock()
		return
	}
	p.state = ProcessTerminating
	threads := append([]*KThread(nil), p.threads...)
	p.mu.Unlock()

	for _, t := range threads {
		t.Exit(self)
	}

	p.mu.Lock()
	if crashed {
		p.state = ProcessCrashed
	} else {
		p.state = ProcessTerminated
	}
	p.mu.Unlock()

	p.waiterList.signal(p)
}
