package hipc

import (
	"sync/atomic"

	"github.com/XorTroll/pegasus/domain"
)

// HandlerFunc answers one (protocol, cmd_id) request on a ServerObject
// (spec §4.8 step 5: "The server object's dispatch table ... is
// searched").
type HandlerFunc func(in *CommandContext) (*CommandContext, domain.Result)

// ServerObject is one dispatchable interface: a command-id -> handler
// table. Both a session's root object and every domain sub-object
// created by ConvertCurrentObjectToDomain are ServerObjects.
type ServerObject struct {
	Handlers map[uint32]HandlerFunc

	refs int64
}

// NewServerObject builds a ServerObject from a command-id -> handler
// map, ready to be installed as a Server's root object or added to a
// DomainTable.
func NewServerObject(handlers map[uint32]HandlerFunc) *ServerObject {
	return &ServerObject{Handlers: handlers, refs: 1}
}

func (o *ServerObject) Kind() domain.ObjectKind { return domain.KindDomain }
func (o *ServerObject) IncRef()                 { atomic.AddInt64(&o.refs, 1) }
func (o *ServerObject) DecRef() bool            { return atomic.AddInt64(&o.refs, -1) == 0 }

// Dispatch looks up cmdID and runs it, or reports ResultUnknownCommandId
// (spec §4.8 step 5).
func (o *ServerObject) Dispatch(ctx *CommandContext) (*CommandContext, domain.Result) {
	h, ok := o.Handlers[ctx.CommandID]
	if !ok {
		return &CommandContext{}, domain.ResultUnknownCommandId
	}
	return h(ctx)
}
