package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeHandleRoundTrip(t *testing.T) {
	h := EncodeHandle(42, 7)
	assert.Equal(t, uint32(42), h.Index())
	assert.Equal(t, uint32(7), h.Generation())
}

func TestNextGenerationAdvancesAndWraps(t *testing.T) {
	assert.Equal(t, uint32(2), NextGeneration(1))
	assert.Equal(t, uint32(1), NextGeneration(HandleGenerationMax-1))
}

func TestSentinelHandlesAreRecognized(t *testing.T) {
	assert.True(t, HandleCurrentProcess.IsSentinel())
	assert.True(t, HandleCurrentThread.IsSentinel())
	assert.False(t, EncodeHandle(0, 1).IsSentinel())
}
