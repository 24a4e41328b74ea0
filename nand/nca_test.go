package nand

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildNCAHeader(programID uint64, ct ContentType, size uint64) []byte {
	raw := make([]byte, headerOffset+0x18)
	binary.LittleEndian.PutUint32(raw[offMagic:offMagic+4], ncaMagic)
	raw[offContentType] = byte(ct)
	binary.LittleEndian.PutUint64(raw[offContentSize:offContentSize+8], size)
	binary.LittleEndian.PutUint64(raw[offProgramID:offProgramID+8], programID)
	return raw
}

func TestParseNCAHeaderRoundTrip(t *testing.T) {
	raw := buildNCAHeader(0x0100000000001000, ContentProgram, 0x2000)
	hdr, err := ParseNCAHeader(raw)
	require.NoError(t, err)
	assert.EqualValues(t, 0x0100000000001000, hdr.ProgramID)
	assert.Equal(t, ContentProgram, hdr.ContentType)
	assert.EqualValues(t, 0x2000, hdr.ContentSize)
}

func TestParseNCAHeaderRejectsBadMagic(t *testing.T) {
	raw := buildNCAHeader(1, ContentMeta, 1)
	raw[offMagic] = 0
	_, err := ParseNCAHeader(raw)
	assert.Error(t, err)
}

func TestContentIndexLookupAndAllForProgram(t *testing.T) {
	idx := NewContentIndex()
	idx.Insert(ContentEntry{ProgramID: 0x10, ContentType: ContentProgram, Path: "a.nca"})
	idx.Insert(ContentEntry{ProgramID: 0x10, ContentType: ContentControl, Path: "b.nca"})
	idx.Insert(ContentEntry{ProgramID: 0x20, ContentType: ContentProgram, Path: "c.nca"})

	entry, ok := idx.Lookup(0x10, ContentProgram)
	require.True(t, ok)
	assert.Equal(t, "a.nca", entry.Path)

	all := idx.AllForProgram(0x10)
	assert.Len(t, all, 2)

	assert.Equal(t, 3, idx.Len())

	_, ok = idx.Lookup(0x99, ContentProgram)
	assert.False(t, ok)
}
