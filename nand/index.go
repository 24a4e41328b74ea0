package nand

import (
	"encoding/binary"

	iradix "github.com/hashicorp/go-immutable-radix"
)

// StorageId distinguishes which physical NAND partition (or SD card) a
// content entry was found under (spec "Persisted state").
type StorageId int

const (
	StorageSystem StorageId = iota
	StorageUser
	StorageSdCard
)

// ContentEntry is one catalogued NCA: its header fields plus the host
// path it was read from.
type ContentEntry struct {
	Storage     StorageId
	ProgramID   uint64
	ContentType ContentType
	Path        string
	Size        uint64
}

// ContentIndex is a program_id+content_type keyed catalogue of every NCA
// a scan has found, backed by an immutable radix tree (grounded on
// handler/handlerDB.go's handlerTree) so lookups and ordered scans over
// a program's content share one data structure.
type ContentIndex struct {
	tree *iradix.Tree
}

// NewContentIndex returns an empty index.
func NewContentIndex() *ContentIndex {
	return &ContentIndex{tree: iradix.New()}
}

func indexKey(programID uint64, ct ContentType) []byte {
	key := make([]byte, 9)
	binary.BigEndian.PutUint64(key[:8], programID)
	key[8] = byte(ct)
	return key
}

// Insert catalogues entry, replacing any prior entry for the same
// (program_id, content_type).
func (ci *ContentIndex) Insert(entry ContentEntry) {
	tree, _, _ := ci.tree.Insert(indexKey(entry.ProgramID, entry.ContentType), entry)
	ci.tree = tree
}

// Lookup returns the catalogued entry for (programID, contentType), if
// any.
func (ci *ContentIndex) Lookup(programID uint64, contentType ContentType) (ContentEntry, bool) {
	v, ok := ci.tree.Get(indexKey(programID, contentType))
	if !ok {
		return ContentEntry{}, false
	}
	return v.(ContentEntry), true
}

// AllForProgram returns every catalogued content entry for programID,
// across content types, in content-type order.
func (ci *ContentIndex) AllForProgram(programID uint64) []ContentEntry {
	var out []ContentEntry
	prefix := make([]byte, 8)
	binary.BigEndian.PutUint64(prefix, programID)
	ci.tree.Root().WalkPrefix(prefix, func(k []byte, v interface{}) bool {
		out = append(out, v.(ContentEntry))
		return false
	})
	return out
}

// Len returns the number of catalogued entries.
func (ci *ContentIndex) Len() int {
	return ci.tree.Len()
}
