package romfs

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildRomFS assembles a minimal RomFS section with a root directory
// containing one file and one subdirectory that itself contains one
// file, matching the real on-disk layout this package parses.
func buildRomFS(t *testing.T) ([]byte, []byte) {
	t.Helper()

	// Directory table: root (offset 0), then "sub" (offset 0x18).
	rootName := ""
	subName := "sub"

	rootEntrySize := 24 + align4(len(rootName))
	subEntrySize := 24 + align4(len(subName))

	dirTable := make([]byte, rootEntrySize+subEntrySize)
	subOffset := uint32(rootEntrySize)

	// root entry
	binary.LittleEndian.PutUint32(dirTable[0:4], invalidOffset)  // parent
	binary.LittleEndian.PutUint32(dirTable[4:8], invalidOffset)  // next sibling
	binary.LittleEndian.PutUint32(dirTable[8:12], subOffset)     // first child
	binary.LittleEndian.PutUint32(dirTable[12:16], 0)            // first file (root.txt at file-table offset 0)
	binary.LittleEndian.PutUint32(dirTable[16:20], invalidOffset)
	binary.LittleEndian.PutUint32(dirTable[20:24], uint32(len(rootName)))

	// File table layout is computed up front so the directory table's
	// "first file" offsets can point at the right entries.
	rootFileName := "root.txt"
	nestedFileName := "nested.txt"
	rootFileEntrySize := 32 + align4(len(rootFileName))
	fileInSubOffset := uint32(rootFileEntrySize)

	// sub entry
	binary.LittleEndian.PutUint32(dirTable[subOffset:subOffset+4], 0)
	binary.LittleEndian.PutUint32(dirTable[subOffset+4:subOffset+8], invalidOffset)
	binary.LittleEndian.PutUint32(dirTable[subOffset+8:subOffset+12], invalidOffset)
	binary.LittleEndian.PutUint32(dirTable[subOffset+12:subOffset+16], fileInSubOffset)
	binary.LittleEndian.PutUint32(dirTable[subOffset+16:subOffset+20], invalidOffset)
	binary.LittleEndian.PutUint32(dirTable[subOffset+20:subOffset+24], uint32(len(subName)))
	copy(dirTable[subOffset+24:], subName)

	fileTable := make([]byte, rootFileEntrySize+32+align4(len(nestedFileName)))

	rootData := []byte("hello root")
	nestedData := []byte("hello nested")
	fileData := append(append([]byte{}, rootData...), nestedData...)

	binary.LittleEndian.PutUint32(fileTable[0:4], 0)             // parent
	binary.LittleEndian.PutUint32(fileTable[4:8], invalidOffset)  // next sibling
	binary.LittleEndian.PutUint64(fileTable[8:16], 0)             // data offset
	binary.LittleEndian.PutUint64(fileTable[16:24], uint64(len(rootData)))
	binary.LittleEndian.PutUint32(fileTable[24:28], invalidOffset)
	binary.LittleEndian.PutUint32(fileTable[28:32], uint32(len(rootFileName)))
	copy(fileTable[32:], rootFileName)

	nestedOff := rootFileEntrySize
	binary.LittleEndian.PutUint32(fileTable[nestedOff:nestedOff+4], subOffset)
	binary.LittleEndian.PutUint32(fileTable[nestedOff+4:nestedOff+8], invalidOffset)
	binary.LittleEndian.PutUint64(fileTable[nestedOff+8:nestedOff+16], uint64(len(rootData)))
	binary.LittleEndian.PutUint64(fileTable[nestedOff+16:nestedOff+24], uint64(len(nestedData)))
	binary.LittleEndian.PutUint32(fileTable[nestedOff+24:nestedOff+28], invalidOffset)
	binary.LittleEndian.PutUint32(fileTable[nestedOff+28:nestedOff+32], uint32(len(nestedFileName)))
	copy(fileTable[nestedOff+32:], nestedFileName)

	const headerSize = 0x50
	fileDataOffset := uint64(headerSize + len(dirTable) + len(fileTable))
	raw := make([]byte, int(fileDataOffset)+len(fileData))

	binary.LittleEndian.PutUint64(raw[0x18:0x20], uint64(headerSize))
	binary.LittleEndian.PutUint64(raw[0x20:0x28], uint64(len(dirTable)))
	binary.LittleEndian.PutUint64(raw[0x38:0x40], uint64(headerSize+len(dirTable)))
	binary.LittleEndian.PutUint64(raw[0x40:0x48], uint64(len(fileTable)))
	binary.LittleEndian.PutUint64(raw[0x48:0x50], fileDataOffset)

	copy(raw[headerSize:], dirTable)
	copy(raw[headerSize+len(dirTable):], fileTable)
	copy(raw[fileDataOffset:], fileData)

	return raw, rootData
}

func align4(n int) int {
	if n%4 == 0 {
		return n
	}
	return n + (4 - n%4)
}

func TestParseRomFSWalksTree(t *testing.T) {
	raw, rootData := buildRomFS(t)

	r, err := Parse(raw)
	require.NoError(t, err)

	got, err := r.Open("root.txt")
	require.NoError(t, err)
	assert.Equal(t, rootData, got)

	got, err = r.Open("sub/nested.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello nested"), got)
}

func TestOpenMissingPathFails(t *testing.T) {
	raw, _ := buildRomFS(t)
	r, err := Parse(raw)
	require.NoError(t, err)

	_, err = r.Open("does/not/exist")
	assert.Error(t, err)
}
