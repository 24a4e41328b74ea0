package nand

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScannerCataloguesRegisteredNCAs(t *testing.T) {
	root := t.TempDir()
	contentPath := filepath.Join(root, contentDir)
	require.NoError(t, os.MkdirAll(contentPath, 0755))

	raw := buildNCAHeader(0x0100000000002000, ContentProgram, 0x4000)
	require.NoError(t, os.WriteFile(filepath.Join(contentPath, "a.nca"), raw, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(contentPath, "notes.txt"), []byte("ignore me"), 0644))

	s, err := NewScanner(StorageUser, root, t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Scan())

	entry, ok := s.Index().Lookup(0x0100000000002000, ContentProgram)
	require.True(t, ok)
	assert.Equal(t, StorageUser, entry.Storage)
	assert.EqualValues(t, 0x4000, entry.Size)
	assert.Equal(t, 1, s.Index().Len())
}

func TestScannerSkipsCorruptNCA(t *testing.T) {
	root := t.TempDir()
	contentPath := filepath.Join(root, contentDir)
	require.NoError(t, os.MkdirAll(contentPath, 0755))

	bad := buildNCAHeader(1, ContentProgram, 1)
	binary.LittleEndian.PutUint32(bad[offMagic:offMagic+4], 0)
	require.NoError(t, os.WriteFile(filepath.Join(contentPath, "bad.nca"), bad, 0644))

	s, err := NewScanner(StorageSystem, root, t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Scan())
	assert.Equal(t, 0, s.Index().Len())
}
