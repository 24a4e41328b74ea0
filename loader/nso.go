// Package loader implements the NSO segment loader and the NPDM/META
// policy loader that together turn a guest executable and its metadata
// into a ready-to-start kernel.KProcess (spec §1 "NPDM loader", §6
// "Capability descriptors").
package loader

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/XorTroll/pegasus/domain"
)

const nsoMagic = 0x304F534E // "NSO0"

// segmentFlagCompressed marks an NSO segment as LZ4-compressed on disk.
// This loader only supports uncompressed segments (flag clear); no LZ4
// implementation appears anywhere in this project's dependency corpus,
// so rather than hand-roll one we surface ResultInvalidNso for a
// compressed segment (see DESIGN.md).
const segmentFlagCompressed = 1

// NSOSegmentHeader is one of the three fixed segment descriptors
// (.text, .rodata, .data) in an NSO's header.
type NSOSegmentHeader struct {
	FileOffset   uint32
	MemoryOffset uint32
	DecompressedSize uint32
}

// NSO is a parsed (but not yet mapped) NSO module.
type NSO struct {
	Text   []byte
	RoData []byte
	Data   []byte

	TextMemoryOffset   uint32
	RoDataMemoryOffset uint32
	DataMemoryOffset   uint32

	BssSize uint32

	ModuleID [0x20]byte
}

// ParseNSO validates an NSO0 header and extracts its three segments.
func ParseNSO(raw []byte) (*NSO, error) {
	if len(raw) < 0x100 {
		return nil, errors.New("loader: NSO too short for header")
	}
	if binary.LittleEndian.Uint32(raw[0:4]) != nsoMagic {
		return nil, fmt.Errorf("loader: bad NSO magic: %w", domain.ResultInvalidNso)
	}

	flags := binary.LittleEndian.Uint32(raw[0xC:0x10])

	text, err := readSegment(raw, flags, 0, 0x10)
	if err != nil {
		return nil, err
	}
	rodata, err := readSegment(raw, flags, 1, 0x20)
	if err != nil {
		return nil, err
	}
	data, err := readSegment(raw, flags, 2, 0x30)
	if err != nil {
		return nil, err
	}

	nso := &NSO{
		Text:               text,
		RoData:             rodata,
		Data:               data,
		TextMemoryOffset:   binary.LittleEndian.Uint32(raw[0x14:0x18]),
		RoDataMemoryOffset: binary.LittleEndian.Uint32(raw[0x24:0x28]),
		DataMemoryOffset:   binary.LittleEndian.Uint32(raw[0x34:0x38]),
		BssSize:            binary.LittleEndian.Uint32(raw[0x3C:0x40]),
	}
	copy(nso.ModuleID[:], raw[0x40:0x60])
	return nso, nil
}

// readSegment pulls segment index's bytes out of raw; hdrOff is the
// byte offset of that segment's NSOSegmentHeader within the fixed NSO
// header.
func readSegment(raw []byte, flags uint32, index int, hdrOff int) ([]byte, error) {
	if flags&(segmentFlagCompressed<<uint(index)) != 0 {
		return nil, fmt.Errorf("loader: segment %d is LZ4-compressed, unsupported: %w", index, domain.ResultInvalidNso)
	}
	fileOffset := binary.LittleEndian.Uint32(raw[hdrOff : hdrOff+4])
	size := binary.LittleEndian.Uint32(raw[hdrOff+8 : hdrOff+12])
	end := uint64(fileOffset) + uint64(size)
	if end > uint64(len(raw)) {
		return nil, fmt.Errorf("loader: segment %d out of bounds: %w", index, domain.ResultInvalidNso)
	}
	out := make([]byte, size)
	copy(out, raw[fileOffset:end])
	return out, nil
}

// TotalImageSize is the page-aligned size of the combined
// text+rodata+data+bss image, used by cmd/pegasus to size the guest
// address-space buffer it hands to the CPU context factory.
func (n *NSO) TotalImageSize(pageSize uint64) uint64 {
	end := uint64(n.DataMemoryOffset) + uint64(len(n.Data)) + uint64(n.BssSize)
	if end%pageSize != 0 {
		end += pageSize - end%pageSize
	}
	return end
}
