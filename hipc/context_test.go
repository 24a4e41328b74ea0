package hipc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/XorTroll/pegasus/domain"
)

func TestTranslateCopiesSendAndExchangeBuffers(t *testing.T) {
	sendDest := make([]byte, 4)
	exchangeDest := make([]byte, 4)
	ctx := &CommandContext{
		SendBuffers:     []BufferDescriptor{{Data: []byte("ab"), Dest: sendDest}},
		ExchangeBuffers: []BufferDescriptor{{Data: []byte("cd"), Dest: exchangeDest}},
	}

	require := assert.New(t)
	require.True(ctx.Translate().IsSuccess())
	require.Equal([]byte("ab\x00\x00"), sendDest)
	require.Equal([]byte("cd\x00\x00"), exchangeDest)
}

func TestTranslateBoundsCopyToShorterSide(t *testing.T) {
	dest := make([]byte, 2)
	ctx := &CommandContext{SendBuffers: []BufferDescriptor{{Data: []byte("abcd"), Dest: dest}}}

	assert.True(t, ctx.Translate().IsSuccess())
	assert.Equal(t, []byte("ab"), dest)
}

func TestTranslateFailsWhenDestMissing(t *testing.T) {
	ctx := &CommandContext{SendBuffers: []BufferDescriptor{{Data: []byte("abcd")}}}

	res := ctx.Translate()
	assert.Equal(t, domain.ResultInvalidState, res)
}

func TestTranslateAllowsEmptyDataWithNoDest(t *testing.T) {
	ctx := &CommandContext{SendBuffers: []BufferDescriptor{{}}}
	assert.True(t, ctx.Translate().IsSuccess())
}

func TestTranslateReplyPropagatesDestFromRequest(t *testing.T) {
	recvDest := make([]byte, 4)
	req := &CommandContext{ReceiveBuffers: []BufferDescriptor{{Dest: recvDest}}}
	resp := &CommandContext{ReceiveBuffers: []BufferDescriptor{{Data: []byte("hi")}}}

	require := assert.New(t)
	require.True(resp.TranslateReply(req).IsSuccess())
	require.Equal([]byte("hi\x00\x00"), recvDest)
}

func TestTranslateReplyFailsWhenRequestNeverRegisteredDest(t *testing.T) {
	req := &CommandContext{ReceiveBuffers: []BufferDescriptor{{}}}
	resp := &CommandContext{ReceiveBuffers: []BufferDescriptor{{Data: []byte("hi")}}}

	res := resp.TranslateReply(req)
	assert.Equal(t, domain.ResultInvalidState, res)
}
