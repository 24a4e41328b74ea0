package kernel

import (
	"sync"

	"github.com/XorTroll/pegasus/domain"
)

// ChannelState is a session's half-close state (spec §3 "Session
// (KSession)": NotInitialized/Open/ClientDisconnected/ServerDisconnected).
// A freshly connected pair starts Open; it moves to one of the disconnected
// states permanently once either side closes.
type ChannelState int

const (
	ChannelNotInitialized ChannelState = iota
	ChannelOpen
	ChannelClientDisconnected
	ChannelServerDisconnected
)

// KSession is the composite owner of a connected client/server session
// pair, mirroring KPort's pattern: both endpoints hold a non-owning
// back-reference and forward IncRef/DecRef to it (spec §3 "Session
// (KSession)").
type KSession struct {
	refcounted

	client *KClientSession
	server *KServerSession

	mu    sync.Mutex
	state ChannelState
}

func (s *KSession) setState(v ChannelState) {
	s.mu.Lock()
	s.state = v
	s.mu.Unlock()
}

// State reports the session's current channel state.
func (s *KSession) State() ChannelState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// NewSessionPair creates a connected client/server session pair not
// attached to any port, for svcCreateSession's direct-handle-pair
// contract.
func (k *Kernel) NewSessionPair() (*KClientSession, *KServerSession) {
	return k.newSessionPair()
}

func (k *Kernel) newSessionPair() (*KClientSession, *KServerSession) {
	s := &KSession{state: ChannelOpen}
	s.client = &KClientSession{owner: s}
	s.server = &KServerSession{owner: s, kernel: k}
	s.refcounted = newRefcounted(nil)
	return s.client, s.server
}

// SessionRequest is one in-flight HIPC request: the raw request buffer
// the client marshalled and a channel the server's reply is delivered
// back through (spec §4.7's synchronous client/server handoff modelled
// as a single-slot rendezvous rather than shared memory).
type SessionRequest struct {
	Data  []byte
	reply chan sessionReply
}

type sessionReply struct {
	data []byte
	err  domain.Result
}

// KClientSession is the caller-facing half of a session: SendSyncRequest
// marshals into Data and blocks for the server's reply.
type KClientSession struct {
	owner *KSession

	mu     sync.Mutex
	closed bool
}

func (c *KClientSession) Kind() domain.ObjectKind { return domain.KindClientSession }
func (c *KClientSession) IncRef()                 { c.owner.IncRef() }
func (c *KClientSession) DecRef() bool            { return c.owner.DecRef() }

// SendSyncRequest delivers data to the server side and blocks until it
// replies, implementing svcSendSyncRequest's synchronous contract (spec
// §4.7 "HIPC request/response pipeline").
func (c *KClientSession) SendSyncRequest(data []byte) ([]byte, domain.Result) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, domain.ResultSessionClosed
	}

	req := &SessionRequest{Data: data, reply: make(chan sessionReply, 1)}
	if res := c.owner.server.deliver(req); !res.IsSuccess() {
		return nil, res
	}

	rep := <-req.reply
	return rep.data, rep.err
}

// Close marks the client side closed; any in-flight or future
// SendSyncRequest fails with ResultSessionClosed. It also implements spec
// §3's cancel_all_requests_due_to_client_disconnect: every request this
// client already handed to the server but that hasn't been received yet is
// pulled out of the server's pending queue and failed with
// ResultSessionClosed, waking whichever thread is still blocked in
// SendSyncRequest for it instead of leaving it parked forever.
func (c *KClientSession) Close() {
	c.mu.Lock()
	already := c.closed
	c.closed = true
	c.mu.Unlock()
	if already {
		return
	}
	c.owner.setState(ChannelClientDisconnected)
	c.owner.server.cancelPending(domain.ResultSessionClosed)
}

// KServerSession is the service-facing half: ReceiveRequest pulls the
// next queued request and Reply completes it. It is itself a sync
// object, signaled while a request is pending (spec §3 "a server
// session ... signaled while a request is queued").
type KServerSession struct {
	waiterList

	owner  *KSession
	kernel *Kernel

	mu      sync.Mutex
	pending []*SessionRequest
	closed  bool

	// domain, if non-nil, is this session's object table for HIPC
	// domain subcommands (spec §4.8 "Domains"); hipc.Server populates it
	// lazily on the first ConvertToDomain control request.
	domain interface{}
}

func (s *KServerSession) Kind() domain.ObjectKind { return domain.KindServerSession }
func (s *KServerSession) IncRef()                 { s.owner.IncRef() }
func (s *KServerSession) DecRef() bool            { return s.owner.DecRef() }

func (s *KServerSession) IsSignaled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) > 0
}

func (s *KServerSession) deliver(req *SessionRequest) domain.Result {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ResultSessionClosed
	}
	s.pending = append(s.pending, req)
	s.mu.Unlock()
	s.waiterList.signal(s)
	return domain.Success
}

// ReceiveRequest dequeues the oldest pending request, if any.
func (s *KServerSession) ReceiveRequest() (*SessionRequest, domain.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil, domain.ResultNotFound
	}
	req := s.pending[0]
	s.pending = s.pending[1:]
	return req, domain.Success
}

// Reply completes req with data (or err), waking the client blocked in
// SendSyncRequest.
func (s *KServerSession) Reply(req *SessionRequest, data []byte, err domain.Result) {
	req.reply <- sessionReply{data: data, err: err}
}

// SetDomainTable / DomainTable let the hipc package attach (and later
// retrieve) the per-session domain object table without this package
// needing to import hipc.
func (s *KServerSession) SetDomainTable(d interface{}) {
	s.mu.Lock()
	s.domain = d
	s.mu.Unlock()
}

func (s *KServerSession) DomainTable() interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.domain
}

// Close marks the server side closed and sets the pair's channel state to
// ChannelServerDisconnected. It wakes no waiter, and ReceiveRequest does
// not consult the closed flag: it still returns any queued request, or
// ResultNotFound when none is queued.
func (s *KServerSession) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.owner.setState(ChannelServerDisconnected)
}

// ChannelState reports this session pair's shared half-close state, so a
// server-side receive loop can observe ClientDisconnected after the peer
// goes away instead of just seeing an empty pending queue forever.
func (s *KServerSession) ChannelState() ChannelState {
	return s.owner.State()
}

// cancelPending drains every request still sitting in the queue and fails
// each one with res, waking its caller. Used by KClientSession.Close's
// cancel_all_requests_due_to_client_disconnect and available to a future
// server-side teardown path for the symmetric case.
func (s *KServerSession) cancelPending(res domain.Result) {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, req := range pending {
		req.reply <- sessionReply{err: res}
	}
}
