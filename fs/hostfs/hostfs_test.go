package hostfs

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRejectsTraversal(t *testing.T) {
	fs := NewMemFs("/nand")
	_, err := fs.Resolve("../../etc/passwd")
	assert.Error(t, err)
}

func TestResolveJoinsUnderRoot(t *testing.T) {
	fs := NewMemFs("/nand")
	p, err := fs.Resolve("Contents/registered/test.nca")
	require.NoError(t, err)
	assert.Equal(t, "/nand/Contents/registered/test.nca", p)
}

func TestOpenReadsWrittenFile(t *testing.T) {
	fs := NewMemFs("/nand")
	require.NoError(t, afero.WriteFile(fs.backing, "/nand/a.txt", []byte("hello"), 0644))

	f, err := fs.Open("a.txt")
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, 5)
	n, err := f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestReadDirListsEntries(t *testing.T) {
	fs := NewMemFs("/nand")
	require.NoError(t, fs.MkdirAll("Contents/registered", 0755))
	require.NoError(t, afero.WriteFile(fs.backing, "/nand/Contents/registered/a.nca", []byte{1}, 0644))

	entries, err := fs.ReadDir("Contents/registered")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "a.nca", entries[0].Name())
}
