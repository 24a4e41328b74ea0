// Package pfs0 reads the partition filesystem format NCA sections use to
// pack an NSO/NPDM/manual bundle (spec §1, "layered filesystem stack").
package pfs0

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/XorTroll/pegasus/domain"
)

const magic = 0x30534650 // "PFS0"

// Entry is one file packed into a PFS0 partition.
type Entry struct {
	Name string
	Data []byte
}

// PFS0 is a parsed partition: an ordered list of named byte slices, plus
// a name index for random access.
type PFS0 struct {
	entries []Entry
	byName  map[string]int
}

type rawFileEntry struct {
	DataOffset uint64
	Size       uint64
	NameOffset uint32
	_          uint32
}

// Parse decodes a PFS0 partition from raw.
func Parse(raw []byte) (*PFS0, error) {
	if len(raw) < 0x10 {
		return nil, fmt.Errorf("pfs0: too short: %w", domain.ResultInvalidNpdm)
	}
	if binary.LittleEndian.Uint32(raw[0:4]) != magic {
		return nil, fmt.Errorf("pfs0: bad magic: %w", domain.ResultInvalidNpdm)
	}
	numFiles := binary.LittleEndian.Uint32(raw[4:8])
	stringTableSize := binary.LittleEndian.Uint32(raw[8:12])

	entryTableOff := 0x10
	entrySize := 0x18
	stringTableOff := entryTableOff + int(numFiles)*entrySize
	dataOff := stringTableOff + int(stringTableSize)

	if dataOff > len(raw) {
		return nil, fmt.Errorf("pfs0: header overruns buffer: %w", domain.ResultInvalidNpdm)
	}
	stringTable := raw[stringTableOff:dataOff]

	p := &PFS0{byName: make(map[string]int, numFiles)}
	for i := 0; i < int(numFiles); i++ {
		off := entryTableOff + i*entrySize
		var fe rawFileEntry
		fe.DataOffset = binary.LittleEndian.Uint64(raw[off : off+8])
		fe.Size = binary.LittleEndian.Uint64(raw[off+8 : off+16])
		fe.NameOffset = binary.LittleEndian.Uint32(raw[off+16 : off+20])

		name := cStringFrom(stringTable, int(fe.NameOffset))
		start := uint64(dataOff) + fe.DataOffset
		end := start + fe.Size
		if end > uint64(len(raw)) {
			return nil, fmt.Errorf("pfs0: entry %q out of bounds: %w", name, domain.ResultInvalidNpdm)
		}
		p.entries = append(p.entries, Entry{Name: name, Data: raw[start:end]})
		p.byName[name] = i
	}
	return p, nil
}

func cStringFrom(table []byte, off int) string {
	if off >= len(table) {
		return ""
	}
	end := bytes.IndexByte(table[off:], 0)
	if end < 0 {
		return string(table[off:])
	}
	return string(table[off : off+end])
}

// Entries returns every file packed into the partition, in on-disk order.
func (p *PFS0) Entries() []Entry { return p.entries }

// Paths returns every file name packed into the partition, for callers
// (fsview) that want a flat listing shaped like romfs.RomFS.Paths.
func (p *PFS0) Paths() []string {
	out := make([]string, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e.Name)
	}
	return out
}

// Open returns the named file's contents.
func (p *PFS0) Open(name string) ([]byte, error) {
	i, ok := p.byName[name]
	if !ok {
		return nil, domain.ResultNotFound
	}
	return p.entries[i].Data, nil
}
