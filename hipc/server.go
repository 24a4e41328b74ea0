package hipc

import (
	"github.com/XorTroll/pegasus/domain"
	"github.com/XorTroll/pegasus/kernel"
)

// Server drives one KServerSession's receive -> demux -> reply loop
// (spec §4.8 "Server receive → demux → reply"). Root is the interface
// this session answers before (and if never) converted to a domain;
// once converted, requests carrying a domain object id are routed
// through domainTable instead.
type Server struct {
	Session *kernel.KServerSession
	Root    *ServerObject
	Tipc    bool

	domainTable *DomainTable
}

func NewServer(session *kernel.KServerSession, root *ServerObject, tipc bool) *Server {
	return &Server{Session: session, Root: root, Tipc: tipc}
}

// ServeOne waits for and answers exactly one request on this session,
// per spec §4.8's numbered steps. self is the calling host thread's own
// KThread identity (a service process's dispatch-loop thread, or a
// synthetic host thread).
func (s *Server) ServeOne(k *kernel.Kernel, self *kernel.KThread) domain.Result {
	if !s.Session.IsSignaled() {
		_, res := k.WaitForSyncObjects(self, []domain.SyncObject{s.Session}, -1)
		if !res.IsSuccess() {
			return res
		}
	}

	req, res := s.Session.ReceiveRequest()
	if !res.IsSuccess() {
		return res
	}

	ctx, err := DecodeRequest(req.Data)
	if err != nil {
		s.Session.Reply(req, nil, domain.ResultUnsupportedOperation)
		return domain.ResultUnsupportedOperation
	}

	if res := ctx.Translate(); !res.IsSuccess() {
		s.Session.Reply(req, nil, res)
		return res
	}

	var out *CommandContext
	var handlerRes domain.Result
	switch {
	case ctx.Header.Type == TypeControl || ctx.Header.Type == TypeLegacyControl:
		out, handlerRes = s.handleControl(k, ctx)
	case s.domainTable != nil && len(ctx.RawData) > 0:
		out, handlerRes = s.dispatchDomain(ctx)
	default:
		out, handlerRes = s.Root.Dispatch(ctx)
	}
	if out == nil {
		out = &CommandContext{}
	}
	out.Header.Type = ctx.Header.Type

	if res := out.TranslateReply(ctx); !res.IsSuccess() {
		handlerRes = res
	}

	respBuf, err := out.EncodeResponse(s.Tipc, handlerRes)
	if err != nil {
		s.Session.Reply(req, nil, domain.ResultUnsupportedOperation)
		return domain.ResultUnsupportedOperation
	}
	s.Session.Reply(req, respBuf, domain.Success)
	return domain.Success
}

// handleControl answers the fixed IHipcManager commands (spec §4.8
// "Domains").
func (s *Server) handleControl(k *kernel.Kernel, ctx *CommandContext) (*CommandContext, domain.Result) {
	switch ctx.CommandID {
	case ControlConvertToDomain:
		if s.domainTable == nil {
			s.domainTable = NewDomainTable()
		}
		id := s.domainTable.Add(s.Root)
		return &CommandContext{RawData: []uint32{id}}, domain.Success

	case ControlQueryPointerSize:
		return &CommandContext{RawData: []uint32{0x400}}, domain.Success

	case ControlCloneObject, ControlCloneObjectEx:
		return s.spawnSession(k, ctx, s.Root)

	case ControlCopyFromDomain:
		return s.copyFromDomain(k, ctx)

	default:
		return &CommandContext{}, domain.ResultUnknownCommandId
	}
}

// spawnSession implements the shared half of CloneCurrentObject(Ex) and
// CopyFromCurrentDomain (spec §4.8 step 5, "Domains": cloning "may
// produce a cloned session"): it creates a fresh kernel session pair
// answering root, starts serving the new server half on its own goroutine
// — the server's wait set gaining a member — and installs the new client
// handle into the requesting process's handle table, identified the same
// way package sm resolves its callers (via the special header's process
// id).
func (s *Server) spawnSession(k *kernel.Kernel, ctx *CommandContext, root *ServerObject) (*CommandContext, domain.Result) {
	caller, ok := k.ProcessByID(ctx.ProcessID)
	if !ok {
		return &CommandContext{}, domain.ResultNotFound
	}

	client, server := k.NewSessionPair()
	clone := NewServer(server, root, s.Tipc)
	self := k.NewHostThread("hipc-clone")
	go clone.serveForever(k, self)

	h, res := caller.Handles().Add(client)
	if !res.IsSuccess() {
		return &CommandContext{}, res
	}
	return &CommandContext{MoveHandles: []domain.Handle{h}}, domain.Success
}

// copyFromDomain hands the caller a standalone session for a domain
// sub-object, leaving the sub-object's entry in this session's domain
// table untouched (spec §4.8 "Domains": Close is the only operation that
// deallocates a domain id — copying one out is not a close).
func (s *Server) copyFromDomain(k *kernel.Kernel, ctx *CommandContext) (*CommandContext, domain.Result) {
	if s.domainTable == nil || len(ctx.RawData) < 1 {
		return &CommandContext{}, domain.ResultDomainObjectNotFound
	}
	obj, res := s.domainTable.Get(ctx.RawData[0])
	if !res.IsSuccess() {
		return &CommandContext{}, res
	}
	so, ok := obj.(*ServerObject)
	if !ok {
		return &CommandContext{}, domain.ResultInvalidCast
	}
	return s.spawnSession(k, ctx, so)
}

// serveForever runs ServeOne in a loop until the session closes, the same
// per-session dispatch shape package sm uses for each accepted session.
func (s *Server) serveForever(k *kernel.Kernel, self *kernel.KThread) {
	for {
		if res := s.ServeOne(k, self); !res.IsSuccess() {
			return
		}
	}
}

// dispatchDomain routes a request addressed to a domain sub-object
// (spec §4.8: request carries a DomainCommandType plus sub-handle).
func (s *Server) dispatchDomain(ctx *CommandContext) (*CommandContext, domain.Result) {
	if len(ctx.RawData) < 1 {
		return &CommandContext{}, domain.ResultDomainObjectNotFound
	}
	objID := ctx.RawData[0]

	if ctx.Domain == DomainClose {
		return &CommandContext{}, s.domainTable.Close(objID)
	}

	obj, res := s.domainTable.Get(objID)
	if !res.IsSuccess() {
		return &CommandContext{}, res
	}
	so, ok := obj.(*ServerObject)
	if !ok {
		return &CommandContext{}, domain.ResultInvalidCast
	}
	inner := *ctx
	inner.RawData = ctx.RawData[1:]
	return so.Dispatch(&inner)
}
