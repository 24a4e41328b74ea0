package hipc

import (
	"github.com/XorTroll/pegasus/domain"
	"github.com/XorTroll/pegasus/kernel"
)

// Client is the caller-facing HIPC stub wrapping a connected
// KClientSession (spec §4.8 "Client encode"). Tipc selects the wire
// dialect this session's interface was negotiated with.
type Client struct {
	Session *kernel.KClientSession
	Tipc    bool
}

func NewClient(session *kernel.KClientSession, tipc bool) *Client {
	return &Client{Session: session, Tipc: tipc}
}

// Call marshals ctx as a request, traps through the session's
// SendSyncRequest (the kernel's svcSendSyncRequest surface), and decodes
// the reply.
func (c *Client) Call(ctx *CommandContext) (*CommandContext, domain.Result) {
	reqBuf, err := ctx.EncodeRequest(c.Tipc)
	if err != nil {
		return nil, domain.ResultUnsupportedOperation
	}

	respBuf, res := c.Session.SendSyncRequest(reqBuf)
	if !res.IsSuccess() {
		return nil, res
	}

	resp, err := DecodeResponse(respBuf, c.Tipc)
	if err != nil {
		return nil, domain.ResultUnsupportedOperation
	}
	return resp, resp.Result
}

// ConvertToDomain issues the IHipcManager ConvertCurrentObjectToDomain
// control request and returns the domain object id this session's root
// object now answers to (spec §4.8 "Domains").
func (c *Client) ConvertToDomain() (uint32, domain.Result) {
	ctx := &CommandContext{IsControl: true, CommandID: ControlConvertToDomain}
	resp, res := c.callControl(ctx)
	if !res.IsSuccess() {
		return 0, res
	}
	if len(resp.RawData) < 1 {
		return 0, domain.ResultUnsupportedOperation
	}
	return resp.RawData[0], domain.Success
}

func (c *Client) callControl(ctx *CommandContext) (*CommandContext, domain.Result) {
	reqBuf, err := ctx.EncodeRequest(c.Tipc)
	if err != nil {
		return nil, domain.ResultUnsupportedOperation
	}
	respBuf, res := c.Session.SendSyncRequest(reqBuf)
	if !res.IsSuccess() {
		return nil, res
	}
	resp, err := DecodeResponse(respBuf, c.Tipc)
	if err != nil {
		return nil, domain.ResultUnsupportedOperation
	}
	return resp, resp.Result
}
