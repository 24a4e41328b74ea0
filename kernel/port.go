package kernel

import (
	"sync"

	"github.com/XorTroll/pegasus/domain"
)

// KPort is the composite owner of a client/server port pair (spec §3
// "Port (KPort)"): KClientPort and KServerPort each hold a non-owning
// back-reference to it so the cycle they'd otherwise form never keeps
// either of them (or the KPort itself) alive past its real last external
// reference.
type KPort struct {
	refcounted

	client *KClientPort
	server *KServerPort

	mu       sync.Mutex
	maxSessions int
}

// NewPort creates a connected client/server port pair sharing a pending-
// connection queue of maxSessions capacity (spec §3 "Port").
func (k *Kernel) NewPort(maxSessions int) *KPort {
	p := &KPort{maxSessions: maxSessions}
	p.client = &KClientPort{owner: p}
	p.server = &KServerPort{owner: p, kernel: k}
	p.refcounted = newRefcounted(nil) // the pair itself has no external owner until handed out
	return p
}

func (p *KPort) Client() *KClientPort { return p.client }
func (p *KPort) Server() *KServerPort { return p.server }

// KClientPort is the connect-only endpoint handed to clients.
type KClientPort struct {
	owner *KPort
}

func (c *KClientPort) Kind() domain.ObjectKind { return domain.KindClientPort }

// IncRef/DecRef delegate to the owning KPort: the pair lives as long as
// either endpoint has outstanding references (spec §3 composite-owner
// pattern).
func (c *KClientPort) IncRef()       { c.owner.IncRef() }
func (c *KClientPort) DecRef() bool  { return c.owner.DecRef() }

// Connect enqueues a new session request on the server side and blocks
// (via wait on the server port's waiterList, handled by callers through
// wait_for_sync_objects) until accepted; here it directly hands back a
// connected KClientSession, modelling svcConnectToPort's synchronous
// contract once the server accepts.
func (c *KClientPort) Connect(k *Kernel) (*KClientSession, domain.Result) {
	return k.connectToPort(c.owner)
}

// KServerPort is the accept-only endpoint a service process holds and
// waits on (signaled whenever a pending connection is queued). It
// forwards IncRef/DecRef to the owning KPort rather than embedding
// refcounted itself — same composite-owner pattern as KClientPort — but
// keeps its own waiterList since it, not the KPort, is what gets waited
// on.
type KServerPort struct {
	waiterList

	owner  *KPort
	kernel *Kernel

	mu      sync.Mutex
	pending []*KServerSession
}

func (s *KServerPort) Kind() domain.ObjectKind { return domain.KindServerPort }
func (s *KServerPort) IncRef()                 { s.owner.IncRef() }
func (s *KServerPort) DecRef() bool             { return s.owner.DecRef() }

// Client returns the connect-only endpoint paired with this server port.
func (s *KServerPort) Client() *KClientPort { return s.owner.client }

// IsSignaled reports whether a client connection is pending (spec §3:
// server ports are sync objects signaled while pending.len() > 0).
func (s *KServerPort) IsSignaled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) > 0
}

// AcceptSession dequeues the oldest pending connection, if any (spec's
// svcAcceptSession).
func (s *KServerPort) AcceptSession() (*KServerSession, domain.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil, domain.ResultNotFound
	}
	sess := s.pending[0]
	s.pending = s.pending[1:]
	return sess, domain.Success
}

func (s *KServerPort) enqueue(sess *KServerSession) {
	s.mu.Lock()
	s.pending = append(s.pending, sess)
	s.mu.Unlock()
	s.waiterList.signal(s)
}

// connectToPort creates a connected client/server session pair and
// queues the server half on port's server endpoint, per spec §3
// "Session" creation via svcConnectToPort.
func (k *Kernel) connectToPort(port *KPort) (*KClientSession, domain.Result) {
	port.mu.Lock()
	full := len(port.server.pending) >= port.maxSessions
	port.mu.Unlock()
	if full {
		return nil, domain.ResultOutOfSessions
	}

	client, server := k.newSessionPair()
	port.server.enqueue(server)
	return client, domain.Success
}
