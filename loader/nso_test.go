package loader

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildNSO(text, rodata, data []byte) []byte {
	hdrLen := 0x100
	buf := make([]byte, hdrLen+len(text)+len(rodata)+len(data))
	binary.LittleEndian.PutUint32(buf[0:4], nsoMagic)

	off := hdrLen
	putSeg := func(hdrOff int, memOff uint32, b []byte) {
		binary.LittleEndian.PutUint32(buf[hdrOff:hdrOff+4], uint32(off))
		binary.LittleEndian.PutUint32(buf[hdrOff+4:hdrOff+8], memOff)
		binary.LittleEndian.PutUint32(buf[hdrOff+8:hdrOff+12], uint32(len(b)))
		copy(buf[off:], b)
		off += len(b)
	}
	putSeg(0x10, 0x0, text)
	putSeg(0x20, 0x1000, rodata)
	putSeg(0x30, 0x2000, data)
	binary.LittleEndian.PutUint32(buf[0x3C:0x40], 0x100) // bss size
	return buf
}

func TestParseNSORoundTrip(t *testing.T) {
	text := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	rodata := []byte{0x01, 0x02}
	data := []byte{0xAA, 0xBB, 0xCC}

	raw := buildNSO(text, rodata, data)
	nso, err := ParseNSO(raw)
	require.NoError(t, err)

	assert.Equal(t, text, nso.Text)
	assert.Equal(t, rodata, nso.RoData)
	assert.Equal(t, data, nso.Data)
	assert.EqualValues(t, 0x1000, nso.RoDataMemoryOffset)
	assert.EqualValues(t, 0x2000, nso.DataMemoryOffset)
	assert.EqualValues(t, 0x100, nso.BssSize)
}

func TestParseNSORejectsBadMagic(t *testing.T) {
	raw := buildNSO(nil, nil, nil)
	raw[0] = 0xFF
	_, err := ParseNSO(raw)
	assert.Error(t, err)
}

func TestParseNSORejectsCompressedSegment(t *testing.T) {
	raw := buildNSO([]byte{1, 2, 3}, nil, nil)
	binary.LittleEndian.PutUint32(raw[0xC:0x10], segmentFlagCompressed)
	_, err := ParseNSO(raw)
	assert.Error(t, err)
}

func TestTotalImageSizePageAligns(t *testing.T) {
	nso := &NSO{
		DataMemoryOffset: 0x2000,
		Data:             make([]byte, 0x10),
		BssSize:          0x10,
	}
	assert.EqualValues(t, 0x3000, nso.TotalImageSize(0x1000))
}
