// Package sm implements the one system process the kernel core has a
// real collaborator contract with (spec §1): the service manager that
// brokers every named-port connection a guest process makes. It is
// wired through the same hipc pipeline any user service uses, so a
// RegisterService/GetServiceHandle round trip exercises client encode,
// kernel-IPC transport, and server demux end to end.
package sm

import (
	"sync"

	"github.com/XorTroll/pegasus/domain"
	"github.com/XorTroll/pegasus/hipc"
	"github.com/XorTroll/pegasus/kernel"
)

// PortName is the well-known named port every process connects to in
// order to reach sm (spec GLOSSARY "sm").
const PortName = "sm:"

const (
	cmdRegisterClient   = 0
	cmdDeleteSession     = 1
	cmdRegisterService   = 2
	cmdUnregisterService = 3
	cmdGetServiceHandle  = 4
)

// Manager is the sm service itself: a name -> KPort registry plus the
// kernel-level named port ("sm:") guests connect to in order to reach
// it.
type Manager struct {
	kernel *kernel.Kernel

	mu       sync.Mutex
	services map[string]*kernel.KPort

	port   *kernel.KPort
	server *hipc.Server
}

// NewManager publishes the "sm:" named port on k and returns a Manager
// ready to have its Serve loop driven by a dedicated host thread.
func NewManager(k *kernel.Kernel) (*Manager, domain.Result) {
	m := &Manager{kernel: k, services: make(map[string]*kernel.KPort)}
	m.port = k.NewPort(64)
	if res := k.Named().Publish(PortName, m.port.Server()); !res.IsSuccess() {
		return nil, res
	}
	return m, domain.Success
}

func portNameKey(packed uint64) string {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(packed >> (8 * uint(i)))
	}
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

func (m *Manager) rootObject() *hipc.ServerObject {
	return hipc.NewServerObject(map[uint32]hipc.HandlerFunc{
		cmdRegisterClient:   m.handleRegisterClient,
		cmdRegisterService:  m.handleRegisterService,
		cmdUnregisterService: m.handleUnregisterService,
		cmdGetServiceHandle: m.handleGetServiceHandle,
	})
}

func (m *Manager) handleRegisterClient(in *hipc.CommandContext) (*hipc.CommandContext, domain.Result) {
	return &hipc.CommandContext{}, domain.Success
}

// handleRegisterService creates a fresh KPort for the named service and
// installs its server endpoint directly into the calling process's
// handle table (identified via the HIPC special header's process id).
// The handle is delivered by a direct insert into that table, not by
// generic HIPC handle translation.
func (m *Manager) handleRegisterService(in *hipc.CommandContext) (*hipc.CommandContext, domain.Result) {
	if len(in.RawData) < 4 {
		return &hipc.CommandContext{}, domain.ResultSmInvalidName
	}
	name := portNameKey(uint64(in.RawData[0]) | uint64(in.RawData[1])<<32)
	maxSessions := int(in.RawData[3])
	if maxSessions <= 0 {
		maxSessions = 1
	}

	m.mu.Lock()
	if _, exists := m.services[name]; exists {
		m.mu.Unlock()
		return &hipc.CommandContext{}, domain.ResultSmAlreadyRegistered
	}
	port := m.kernel.NewPort(maxSessions)
	m.services[name] = port
	m.mu.Unlock()

	caller, ok := m.kernel.ProcessByID(in.ProcessID)
	if !ok {
		return &hipc.CommandContext{}, domain.ResultNotFound
	}
	h, res := caller.Handles().Add(port.Server())
	if !res.IsSuccess() {
		return &hipc.CommandContext{}, res
	}
	return &hipc.CommandContext{MoveHandles: []domain.Handle{h}}, domain.Success
}

func (m *Manager) handleUnregisterService(in *hipc.CommandContext) (*hipc.CommandContext, domain.Result) {
	if len(in.RawData) < 2 {
		return &hipc.CommandContext{}, domain.ResultSmInvalidName
	}
	name := portNameKey(uint64(in.RawData[0]) | uint64(in.RawData[1])<<32)

	m.mu.Lock()
	_, exists := m.services[name]
	delete(m.services, name)
	m.mu.Unlock()

	if !exists {
		return &hipc.CommandContext{}, domain.ResultSmNotRegistered
	}
	return &hipc.CommandContext{}, domain.Success
}

func (m *Manager) handleGetServiceHandle(in *hipc.CommandContext) (*hipc.CommandContext, domain.Result) {
	if len(in.RawData) < 2 {
		return &hipc.CommandContext{}, domain.ResultSmInvalidName
	}
	name := portNameKey(uint64(in.RawData[0]) | uint64(in.RawData[1])<<32)

	m.mu.Lock()
	port, exists := m.services[name]
	m.mu.Unlock()
	if !exists {
		return &hipc.CommandContext{}, domain.ResultSmNotRegistered
	}

	client, res := port.Client().Connect(m.kernel)
	if !res.IsSuccess() {
		return &hipc.CommandContext{}, res
	}

	caller, ok := m.kernel.ProcessByID(in.ProcessID)
	if !ok {
		return &hipc.CommandContext{}, domain.ResultNotFound
	}
	h, res := caller.Handles().Add(client)
	if !res.IsSuccess() {
		return &hipc.CommandContext{}, res
	}
	return &hipc.CommandContext{MoveHandles: []domain.Handle{h}}, domain.Success
}

// Serve runs sm's accept/dispatch loop on the calling goroutine; the
// loop never returns. Callers run it on a dedicated host thread (see
// Kernel.NewHostThread).
func (m *Manager) Serve(self *kernel.KThread) {
	root := m.rootObject()
	for {
		sess, res := m.acceptOrWait(self)
		if !res.IsSuccess() {
			continue
		}
		srv := hipc.NewServer(sess, root, false)
		go m.driveSession(srv, self)
	}
}

func (m *Manager) acceptOrWait(self *kernel.KThread) (*kernel.KServerSession, domain.Result) {
	server := m.port.Server()
	if !server.IsSignaled() {
		m.kernel.WaitForSyncObjects(self, []domain.SyncObject{server}, -1)
	}
	return server.AcceptSession()
}

func (m *Manager) driveSession(srv *hipc.Server, ownerThread *kernel.KThread) {
	self := m.kernel.NewHostThread("sm-session")
	for {
		if res := srv.ServeOne(m.kernel, self); !res.IsSuccess() {
			return
		}
	}
}
