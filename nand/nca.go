// Package nand emulates the console's persisted content storage: a
// scanner over `<nand>/Contents/registered/*.nca` that decodes NCA
// headers and indexes them by (program_id, content_type), the
// collaborator contract §1 scopes the filesystem stack down to (spec
// "Persisted state").
package nand

import (
	"encoding/binary"
	"fmt"

	"github.com/XorTroll/pegasus/domain"
)

// ContentType mirrors an NCA's content_type header byte.
type ContentType byte

const (
	ContentProgram ContentType = iota
	ContentMeta
	ContentControl
	ContentManual
	ContentData
	ContentPublicData
)

// ncaMagic is the little-endian reading of the ASCII header tag "NCA3",
// the header format version this scanner reads. Real NCAs are AES-XTS
// encrypted from this point on; this emulator only operates on the
// plaintext header fields needed for cataloguing, which matches spec
// §1's NAND collaborator contract (header decode, not full content
// decryption).
var ncaMagic = binary.LittleEndian.Uint32([]byte("NCA3"))

const (
	headerOffset      = 0x200
	offMagic          = headerOffset + 0x00
	offContentType    = headerOffset + 0x05
	offContentSize    = headerOffset + 0x08
	offProgramID      = headerOffset + 0x10
)

// NCAHeader is the subset of an NCA's plaintext header this emulator
// needs to catalogue and route content.
type NCAHeader struct {
	ContentType ContentType
	ContentSize uint64
	ProgramID   uint64
}

// ParseNCAHeader decodes the fixed-offset fields of an NCA header.
func ParseNCAHeader(raw []byte) (*NCAHeader, error) {
	if len(raw) < headerOffset+0x18 {
		return nil, fmt.Errorf("nand: NCA too short for header: %w", domain.ResultInvalidNca)
	}
	if binary.LittleEndian.Uint32(raw[offMagic:offMagic+4]) != ncaMagic {
		return nil, fmt.Errorf("nand: bad NCA magic: %w", domain.ResultInvalidNca)
	}
	return &NCAHeader{
		ContentType: ContentType(raw[offContentType]),
		ContentSize: binary.LittleEndian.Uint64(raw[offContentSize : offContentSize+8]),
		ProgramID:   binary.LittleEndian.Uint64(raw[offProgramID : offProgramID+8]),
	}, nil
}
