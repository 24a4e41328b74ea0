package loader

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// threadInfoWord packs a ThreadInfo kernel-capability descriptor
// (lowest-clear-bit 3) granting priority range [lo,hi] and core range
// [clo,chi].
func threadInfoWord(lo, hi, clo, chi int) uint32 {
	return uint32(0x7) | uint32(lo)<<4 | uint32(hi)<<10 | uint32(clo)<<16 | uint32(chi)<<22
}

// syscallMaskWord packs an EnableSyscalls descriptor (lowest-clear-bit 4)
// for the 24-id group starting at index*24, enabling the bits in mask.
func syscallMaskWord(index int, mask uint32) uint32 {
	return uint32(0xF) | (mask&0xFFFFFF)<<5 | uint32(index)<<29
}

func buildMETA(aci0 []byte) []byte {
	meta := make([]byte, 0x80+len(aci0))
	binary.LittleEndian.PutUint32(meta[0:4], metaMagic)
	meta[0xC] = 44  // main thread priority
	meta[0xD] = 0   // main thread core
	binary.LittleEndian.PutUint32(meta[0x1C:0x20], 0x8000)
	copy(meta[0x20:0x30], "test-process")
	copy(meta[0x30:0x40], "0000")

	binary.LittleEndian.PutUint32(meta[0x70:0x74], 0x80)
	binary.LittleEndian.PutUint32(meta[0x74:0x78], uint32(len(aci0)))
	copy(meta[0x80:], aci0)
	return meta
}

func buildACI0(capWords []uint32) []byte {
	kcOff := 0x20
	kc := make([]byte, len(capWords)*4)
	for i, w := range capWords {
		binary.LittleEndian.PutUint32(kc[i*4:i*4+4], w)
	}
	aci0 := make([]byte, kcOff+len(kc))
	binary.LittleEndian.PutUint32(aci0[0:4], aci0Magic)
	binary.LittleEndian.PutUint32(aci0[0x18:0x1C], uint32(kcOff))
	binary.LittleEndian.PutUint32(aci0[0x1C:0x20], uint32(len(kc)))
	copy(aci0[kcOff:], kc)
	return aci0
}

func TestParseNPDMDecodesCapabilities(t *testing.T) {
	caps := []uint32{
		threadInfoWord(0, 63, 0, 3),
		syscallMaskWord(0, 1<<2 | 1<<5), // enable SVC ids 2 and 5
	}
	aci0 := buildACI0(caps)
	raw := buildMETA(aci0)

	npdm, err := ParseNPDM(raw)
	require.NoError(t, err)

	assert.Equal(t, "test-process", npdm.ProcessName)
	assert.Equal(t, 44, npdm.MainThreadPriority)
	assert.True(t, npdm.Capabilities.SVCEnabled(2))
	assert.True(t, npdm.Capabilities.SVCEnabled(5))
	assert.False(t, npdm.Capabilities.SVCEnabled(3))
	assert.Equal(t, 0, npdm.Capabilities.ThreadCoreLow)
	assert.Equal(t, 3, npdm.Capabilities.ThreadCoreHigh)
}

func TestParseNPDMRejectsBadMagic(t *testing.T) {
	raw := buildMETA(buildACI0(nil))
	raw[0] = 0
	_, err := ParseNPDM(raw)
	assert.Error(t, err)
}

func TestClassifyCapabilitiesRejectsUnknownDescriptor(t *testing.T) {
	_, err := ClassifyCapabilities([]uint32{0xFFFFFFFF})
	assert.Error(t, err)
}
