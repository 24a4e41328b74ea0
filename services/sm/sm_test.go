package sm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XorTroll/pegasus/domain"
	"github.com/XorTroll/pegasus/hipc"
	"github.com/XorTroll/pegasus/kernel"
)

func packName(name string) (uint32, uint32) {
	var b [8]byte
	copy(b[:], name)
	lo := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	hi := uint32(b[4]) | uint32(b[5])<<8 | uint32(b[6])<<16 | uint32(b[7])<<24
	return lo, hi
}

func newManagerWithClient(t *testing.T) (*kernel.Kernel, *Manager, *kernel.KProcess, *kernel.KClientSession) {
	t.Helper()
	k := kernel.NewKernel()
	m, res := NewManager(k)
	require.True(t, res.IsSuccess())

	self := k.NewHostThread("sm-drive")
	go m.Serve(self)

	caller := k.NewProcess("caller", domain.DefaultCapabilities(), k.NewResourceLimit())

	portObj, res := k.Named().Lookup(PortName)
	require.True(t, res.IsSuccess())
	serverPort, ok := portObj.(*kernel.KServerPort)
	require.True(t, ok)

	client, res := serverPort.Client().Connect(k)
	require.True(t, res.IsSuccess())
	return k, m, caller, client
}

func sendSM(t *testing.T, caller *kernel.KProcess, client *kernel.KClientSession, cmd uint32, raw []uint32) *hipc.CommandContext {
	t.Helper()
	req := &hipc.CommandContext{
		CommandID: cmd,
		Special:   hipc.SpecialHeader{SendProcessID: true},
		ProcessID: caller.ID(),
		RawData:   raw,
	}
	buf, err := req.EncodeRequest(false)
	require.NoError(t, err)

	respBuf, res := client.SendSyncRequest(buf)
	require.True(t, res.IsSuccess())

	resp, err := hipc.DecodeResponse(respBuf, false)
	require.NoError(t, err)
	return resp
}

func TestRegisterAndGetServiceHandleRoundTrip(t *testing.T) {
	_, _, caller, client := newManagerWithClient(t)

	lo, hi := packName("test-svc")
	regResp := sendSM(t, caller, client, cmdRegisterService, []uint32{lo, hi, 0, 1})
	require.Equal(t, domain.Success, regResp.Result)
	require.Len(t, regResp.MoveHandles, 1)

	_, res := caller.Handles().Get(regResp.MoveHandles[0])
	require.True(t, res.IsSuccess())

	getResp := sendSM(t, caller, client, cmdGetServiceHandle, []uint32{lo, hi})
	require.Equal(t, domain.Success, getResp.Result)
	require.Len(t, getResp.MoveHandles, 1)

	obj, res := caller.Handles().Get(getResp.MoveHandles[0])
	require.True(t, res.IsSuccess())
	_, ok := obj.(*kernel.KClientSession)
	assert.True(t, ok)
}

func TestRegisterServiceTwiceFails(t *testing.T) {
	_, _, caller, client := newManagerWithClient(t)

	lo, hi := packName("dup-svc")
	first := sendSM(t, caller, client, cmdRegisterService, []uint32{lo, hi, 0, 1})
	require.Equal(t, domain.Success, first.Result)

	second := sendSM(t, caller, client, cmdRegisterService, []uint32{lo, hi, 0, 1})
	assert.Equal(t, domain.ResultSmAlreadyRegistered, second.Result)
}

func TestGetServiceHandleUnregisteredFails(t *testing.T) {
	_, _, caller, client := newManagerWithClient(t)

	lo, hi := packName("missing")
	resp := sendSM(t, caller, client, cmdGetServiceHandle, []uint32{lo, hi})
	assert.Equal(t, domain.ResultSmNotRegistered, resp.Result)
}

func TestUnregisterService(t *testing.T) {
	_, _, caller, client := newManagerWithClient(t)

	lo, hi := packName("gone-svc")
	require.Equal(t, domain.Success, sendSM(t, caller, client, cmdRegisterService, []uint32{lo, hi, 0, 1}).Result)
	require.Equal(t, domain.Success, sendSM(t, caller, client, cmdUnregisterService, []uint32{lo, hi}).Result)

	resp := sendSM(t, caller, client, cmdGetServiceHandle, []uint32{lo, hi})
	assert.Equal(t, domain.ResultSmNotRegistered, resp.Result)
}
