package hipc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XorTroll/pegasus/domain"
	"github.com/XorTroll/pegasus/kernel"
)

func controlRequest(callerID uint64, cmd uint32, raw []uint32) *CommandContext {
	return &CommandContext{
		IsControl: true,
		CommandID: cmd,
		Special:   SpecialHeader{SendProcessID: true},
		ProcessID: callerID,
		RawData:   raw,
	}
}

func sendControl(t *testing.T, client *kernel.KClientSession, ctx *CommandContext) *CommandContext {
	t.Helper()
	buf, err := ctx.EncodeRequest(false)
	require.NoError(t, err)

	respBuf, res := client.SendSyncRequest(buf)
	require.True(t, res.IsSuccess())

	resp, err := DecodeResponse(respBuf, false)
	require.NoError(t, err)
	return resp
}

func startServer(k *kernel.Kernel, srv *Server) {
	self := k.NewHostThread("hipc-server")
	go srv.serveForever(k, self)
}

func TestControlCloneObjectInstallsHandleInCallerTable(t *testing.T) {
	k := kernel.NewKernel()
	caller := k.NewProcess("caller", domain.DefaultCapabilities(), k.NewResourceLimit())

	client, server := k.NewSessionPair()
	root := NewServerObject(map[uint32]HandlerFunc{})
	srv := NewServer(server, root, false)
	startServer(k, srv)

	resp := sendControl(t, client, controlRequest(caller.ID(), ControlCloneObject, nil))
	require.Equal(t, domain.Success, resp.Result)
	require.Len(t, resp.MoveHandles, 1)

	obj, res := caller.Handles().Get(resp.MoveHandles[0])
	require.True(t, res.IsSuccess())
	_, ok := obj.(*kernel.KClientSession)
	assert.True(t, ok)
}

func TestControlCloneObjectUnknownCallerFails(t *testing.T) {
	k := kernel.NewKernel()
	client, server := k.NewSessionPair()
	root := NewServerObject(map[uint32]HandlerFunc{})
	srv := NewServer(server, root, false)
	startServer(k, srv)

	resp := sendControl(t, client, controlRequest(999999, ControlCloneObject, nil))
	assert.Equal(t, domain.ResultNotFound, resp.Result)
}

func TestControlConvertToDomainThenCopyFromDomain(t *testing.T) {
	k := kernel.NewKernel()
	caller := k.NewProcess("caller", domain.DefaultCapabilities(), k.NewResourceLimit())

	client, server := k.NewSessionPair()
	root := NewServerObject(map[uint32]HandlerFunc{})
	srv := NewServer(server, root, false)
	startServer(k, srv)

	convertResp := sendControl(t, client, controlRequest(caller.ID(), ControlConvertToDomain, nil))
	require.Equal(t, domain.Success, convertResp.Result)
	require.Len(t, convertResp.RawData, 1)
	domainID := convertResp.RawData[0]

	copyResp := sendControl(t, client, controlRequest(caller.ID(), ControlCopyFromDomain, []uint32{domainID}))
	require.Equal(t, domain.Success, copyResp.Result)
	require.Len(t, copyResp.MoveHandles, 1)

	obj, res := caller.Handles().Get(copyResp.MoveHandles[0])
	require.True(t, res.IsSuccess())
	_, ok := obj.(*kernel.KClientSession)
	assert.True(t, ok)
}

func TestControlCopyFromDomainUnknownIDFails(t *testing.T) {
	k := kernel.NewKernel()
	caller := k.NewProcess("caller", domain.DefaultCapabilities(), k.NewResourceLimit())

	client, server := k.NewSessionPair()
	root := NewServerObject(map[uint32]HandlerFunc{})
	srv := NewServer(server, root, false)
	startServer(k, srv)

	_ = sendControl(t, client, controlRequest(caller.ID(), ControlConvertToDomain, nil))

	resp := sendControl(t, client, controlRequest(caller.ID(), ControlCopyFromDomain, []uint32{99}))
	assert.Equal(t, domain.ResultDomainObjectNotFound, resp.Result)
}

func TestQueryPointerSize(t *testing.T) {
	k := kernel.NewKernel()
	caller := k.NewProcess("caller", domain.DefaultCapabilities(), k.NewResourceLimit())

	client, server := k.NewSessionPair()
	root := NewServerObject(map[uint32]HandlerFunc{})
	srv := NewServer(server, root, false)
	startServer(k, srv)

	resp := sendControl(t, client, controlRequest(caller.ID(), ControlQueryPointerSize, nil))
	require.Equal(t, domain.Success, resp.Result)
	require.Len(t, resp.RawData, 1)
	assert.Equal(t, uint32(0x400), resp.RawData[0])

	// give the server loop a moment to settle between requests run in
	// series against the same session.
	time.Sleep(time.Millisecond)
}
