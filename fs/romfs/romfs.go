// Package romfs reads the read-only filesystem format packed into an
// NCA's RomFS section (spec §1, "layered filesystem stack").
package romfs

import (
	"encoding/binary"
	"fmt"
	"path"

	"github.com/XorTroll/pegasus/domain"
)

const invalidOffset = 0xFFFFFFFF

type header struct {
	DirTableOffset  uint64
	DirTableSize    uint64
	FileTableOffset uint64
	FileTableSize   uint64
	FileDataOffset  uint64
}

// RomFS is a parsed read-only filesystem: every file's full guest path
// mapped to its byte range within the section.
type RomFS struct {
	files map[string][]byte
}

// Parse walks a RomFS section's directory tree and returns every file it
// contains, keyed by its full slash-separated path from the section
// root.
func Parse(raw []byte) (*RomFS, error) {
	if len(raw) < 0x50 {
		return nil, fmt.Errorf("romfs: too short: %w", domain.ResultInvalidNpdm)
	}
	h := header{
		DirTableOffset:  binary.LittleEndian.Uint64(raw[0x18:0x20]),
		DirTableSize:    binary.LittleEndian.Uint64(raw[0x20:0x28]),
		FileTableOffset: binary.LittleEndian.Uint64(raw[0x38:0x40]),
		FileTableSize:   binary.LittleEndian.Uint64(raw[0x40:0x48]),
		FileDataOffset:  binary.LittleEndian.Uint64(raw[0x48:0x50]),
	}

	dirTable := raw[h.DirTableOffset : h.DirTableOffset+h.DirTableSize]
	fileTable := raw[h.FileTableOffset : h.FileTableOffset+h.FileTableSize]

	r := &RomFS{files: make(map[string][]byte)}
	if err := r.walkDir(raw, dirTable, fileTable, h.FileDataOffset, 0, ""); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RomFS) walkDir(raw, dirTable, fileTable []byte, fileDataOffset uint64, dirOffset uint32, parentPath string) error {
	if dirOffset == invalidOffset || int(dirOffset)+0x18 > len(dirTable) {
		return nil
	}
	firstChild := binary.LittleEndian.Uint32(dirTable[dirOffset+8 : dirOffset+12])
	firstFile := binary.LittleEndian.Uint32(dirTable[dirOffset+12 : dirOffset+16])
	nameLen := binary.LittleEndian.Uint32(dirTable[dirOffset+20 : dirOffset+24])
	name := string(dirTable[dirOffset+24 : dirOffset+24+nameLen])
	dirPath := parentPath
	if name != "" {
		dirPath = path.Join(parentPath, name)
	}

	if err := r.walkFiles(fileTable, raw, fileDataOffset, firstFile, dirPath); err != nil {
		return err
	}

	for child := firstChild; child != invalidOffset; {
		nextSibling := binary.LittleEndian.Uint32(dirTable[child+4 : child+8])
		if err := r.walkDir(raw, dirTable, fileTable, fileDataOffset, child, dirPath); err != nil {
			return err
		}
		child = nextSibling
	}
	return nil
}

func (r *RomFS) walkFiles(fileTable, raw []byte, fileDataOffset uint64, fileOffset uint32, dirPath string) error {
	for fileOffset != invalidOffset {
		if int(fileOffset)+0x20 > len(fileTable) {
			return fmt.Errorf("romfs: file entry out of bounds: %w", domain.ResultInvalidNpdm)
		}
		dataOffset := binary.LittleEndian.Uint64(fileTable[fileOffset+8 : fileOffset+16])
		dataSize := binary.LittleEndian.Uint64(fileTable[fileOffset+16 : fileOffset+24])
		nameLen := binary.LittleEndian.Uint32(fileTable[fileOffset+28 : fileOffset+32])
		name := string(fileTable[fileOffset+32 : fileOffset+32+nameLen])

		start := fileDataOffset + dataOffset
		end := start + dataSize
		if end > uint64(len(raw)) {
			return fmt.Errorf("romfs: file %q data out of bounds: %w", name, domain.ResultInvalidNpdm)
		}
		r.files[path.Join(dirPath, name)] = raw[start:end]

		fileOffset = binary.LittleEndian.Uint32(fileTable[fileOffset+4 : fileOffset+8])
	}
	return nil
}

// Open returns a file's contents by its full path from the RomFS root.
func (r *RomFS) Open(p string) ([]byte, error) {
	data, ok := r.files[path.Clean("/"+p)[1:]]
	if !ok {
		return nil, domain.ResultNotFound
	}
	return data, nil
}

// Paths returns every file path the RomFS contains.
func (r *RomFS) Paths() []string {
	out := make([]string, 0, len(r.files))
	for p := range r.files {
		out = append(out, p)
	}
	return out
}
