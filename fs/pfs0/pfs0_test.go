package pfs0

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildPFS0(files map[string][]byte) []byte {
	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}

	var stringTable []byte
	nameOffsets := make(map[string]uint32, len(names))
	for _, n := range names {
		nameOffsets[n] = uint32(len(stringTable))
		stringTable = append(stringTable, append([]byte(n), 0)...)
	}

	entrySize := 0x18
	entryTableOff := 0x10
	stringTableOff := entryTableOff + len(names)*entrySize
	dataOff := stringTableOff + len(stringTable)

	var data []byte
	dataOffsets := make(map[string]uint64, len(names))
	for _, n := range names {
		dataOffsets[n] = uint64(len(data))
		data = append(data, files[n]...)
	}

	buf := make([]byte, dataOff+len(data))
	binary.LittleEndian.PutUint32(buf[0:4], magic)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(names)))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(stringTable)))

	for i, n := range names {
		off := entryTableOff + i*entrySize
		binary.LittleEndian.PutUint64(buf[off:off+8], dataOffsets[n])
		binary.LittleEndian.PutUint64(buf[off+8:off+16], uint64(len(files[n])))
		binary.LittleEndian.PutUint32(buf[off+16:off+20], nameOffsets[n])
	}
	copy(buf[stringTableOff:], stringTable)
	copy(buf[dataOff:], data)
	return buf
}

func TestParsePFS0RoundTrip(t *testing.T) {
	raw := buildPFS0(map[string][]byte{
		"main.npdm": {0x1, 0x2, 0x3},
		"main":      {0xAA, 0xBB},
	})

	p, err := Parse(raw)
	require.NoError(t, err)
	assert.Len(t, p.Entries(), 2)

	got, err := p.Open("main.npdm")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1, 0x2, 0x3}, got)
}

func TestOpenMissingEntryFails(t *testing.T) {
	raw := buildPFS0(map[string][]byte{"main": {1}})
	p, err := Parse(raw)
	require.NoError(t, err)

	_, err = p.Open("missing")
	assert.Error(t, err)
}

func TestParseRejectsBadMagic(t *testing.T) {
	raw := buildPFS0(map[string][]byte{"main": {1}})
	raw[0] = 0
	_, err := Parse(raw)
	assert.Error(t, err)
}
