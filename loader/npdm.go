package loader

import (
	"encoding/binary"
	"fmt"

	"github.com/XorTroll/pegasus/domain"
)

const (
	metaMagic = 0x4154454D // "META"
	aci0Magic = 0x30494341 // "ACI0"
	acidMagic = 0x44494341 // "ACID"
)

// NPDM is a parsed META file: the main-thread scheduling parameters
// every Horizon executable ships alongside its NSO(s), plus the
// capability set decoded from its ACI0 section (spec §1 "NPDM loader").
type NPDM struct {
	ProcessName string
	ProductCode string

	MainThreadPriority  int
	MainThreadCore      int
	MainThreadStackSize uint64

	Capabilities domain.Capabilities
}

// ParseNPDM decodes a META file, including its embedded ACI0 kernel
// capability descriptors, into an NPDM ready to seed KProcess creation.
// The ACID section (present alongside ACI0 in a signed NPDM) carries the
// same descriptor shape but represents the certified upper bound rather
// than the process's actual grant; this loader checks only its magic,
// and only when the section is at least 0x104 bytes and lies inside raw
// (an ACID outside raw is ignored, not rejected); it does not parse its
// descriptors or perform signature verification, which
// is out of scope for an emulator that always runs unsigned homebrew-style
// images.
func ParseNPDM(raw []byte) (*NPDM, error) {
	if len(raw) < 0x80 {
		return nil, fmt.Errorf("loader: META too short: %w", domain.ResultInvalidNpdm)
	}
	if binary.LittleEndian.Uint32(raw[0:4]) != metaMagic {
		return nil, fmt.Errorf("loader: bad META magic: %w", domain.ResultInvalidNpdm)
	}

	mainThreadPriority := int(raw[0xC])
	mainThreadCore := int(raw[0xD])
	mainThreadStackSize := uint64(binary.LittleEndian.Uint32(raw[0x1C:0x20]))

	processName := cString(raw[0x20:0x30])
	productCode := cString(raw[0x30:0x40])

	aci0Offset := binary.LittleEndian.Uint32(raw[0x70:0x74])
	aci0Size := binary.LittleEndian.Uint32(raw[0x74:0x78])
	acidOffset := binary.LittleEndian.Uint32(raw[0x78:0x7C])
	acidSize := binary.LittleEndian.Uint32(raw[0x7C:0x80])

	if acidSize >= 0x104 {
		if acid, err := sliceSection(raw, acidOffset, acidSize); err == nil {
			if binary.LittleEndian.Uint32(acid[0x100:0x104]) != acidMagic {
				return nil, fmt.Errorf("loader: bad ACID magic: %w", domain.ResultInvalidNpdm)
			}
		}
	}

	aci0, err := sliceSection(raw, aci0Offset, aci0Size)
	if err != nil {
		return nil, err
	}
	if binary.LittleEndian.Uint32(aci0[0:4]) != aci0Magic {
		return nil, fmt.Errorf("loader: bad ACI0 magic: %w", domain.ResultInvalidNpdm)
	}

	kcOffset := binary.LittleEndian.Uint32(aci0[0x18:0x1C])
	kcSize := binary.LittleEndian.Uint32(aci0[0x1C:0x20])
	kc, err := sliceSection(aci0, kcOffset, kcSize)
	if err != nil {
		return nil, err
	}
	words := make([]uint32, len(kc)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(kc[i*4 : i*4+4])
	}

	caps, err := ClassifyCapabilities(words)
	if err != nil {
		return nil, err
	}
	caps.ProcessName = processName
	caps.ProductCode = productCode
	caps.MainThreadPriority = mainThreadPriority
	caps.MainThreadCore = mainThreadCore
	caps.MainThreadStackSize = mainThreadStackSize

	return &NPDM{
		ProcessName:         processName,
		ProductCode:         productCode,
		MainThreadPriority:  mainThreadPriority,
		MainThreadCore:      mainThreadCore,
		MainThreadStackSize: mainThreadStackSize,
		Capabilities:        caps,
	}, nil
}

func sliceSection(raw []byte, offset, size uint32) ([]byte, error) {
	end := uint64(offset) + uint64(size)
	if end > uint64(len(raw)) {
		return nil, fmt.Errorf("loader: section out of bounds: %w", domain.ResultInvalidNpdm)
	}
	return raw[offset:end], nil
}

func cString(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}
