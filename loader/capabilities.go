package loader

import "github.com/XorTroll/pegasus/domain"

// Kernel-capability descriptor entries are tagged by the position of
// their lowest clear bit (spec §6 "Capability descriptors" table): count
// the trailing 1 bits of the 32-bit entry before the first 0, and that
// count selects the entry's shape (3 thread-info, 4 SVC-mask, 6
// memory-map pair, 7 IO-memory-map page, 10 memory-region map, 11
// enable-interrupts, 13 misc params/program type, 14 kernel version, 15
// handle-table size, 16 misc flags). Unrecognized counts report
// domain.ResultUnknownCapability, matching the edge case spec §7 calls
// out ("trusted-NPDM decode producing an unknown capability bit").
const (
	capThreadInfo      = 3
	capSyscallMask     = 4
	capMemoryMap       = 6
	capMapIoPage       = 7
	capMapRegion       = 10
	capInterruptPair   = 11
	capProgramType     = 13
	capKernelVersion   = 14
	capHandleTableSize = 15
	capDebugFlags      = 16
)

func lowestClearBit(v uint32) int {
	for i := 0; i < 32; i++ {
		if v&(1<<uint(i)) == 0 {
			return i
		}
	}
	return 32
}

// ClassifyCapabilities decodes a flat array of kernel-capability words
// (as stored in an ACI0's kernel_capability section) into a
// domain.Capabilities value, applying each entry on top of a permissive
// base so entries the NPDM doesn't mention keep their defaults.
func ClassifyCapabilities(words []uint32) (domain.Capabilities, error) {
	caps := domain.DefaultCapabilities()
	caps.EnabledSVCs = [128]bool{} // start closed; EnableSyscalls entries open specific ids

	i := 0
	for i < len(words) {
		v := words[i]
		switch lowestClearBit(v) {
		case capThreadInfo:
			caps.MainThreadPriority = int(v>>4) & 0x3F
			caps.ThreadPriorityLow = int(v>>4) & 0x3F
			caps.ThreadPriorityHigh = int(v>>10) & 0x3F
			caps.ThreadCoreLow = int(v>>16) & 0x3F
			caps.ThreadCoreHigh = int(v>>22) & 0x3F
			caps.MainThreadCore = caps.ThreadCoreLow
			i++

		case capSyscallMask:
			mask := (v >> 5) & 0xFFFFFF
			index := int(v>>29) & 0x7
			for bit := 0; bit < 24; bit++ {
				if mask&(1<<uint(bit)) != 0 {
					id := index*24 + bit
					if id < len(caps.EnabledSVCs) {
						caps.EnabledSVCs[id] = true
					}
				}
			}
			i++

		case capMemoryMap:
			if i+1 >= len(words) {
				return caps, domain.ResultInvalidNpdm
			}
			addr := uint64(v>>7) & 0xFFFFFF
			attr := words[i+1]
			size := uint64(attr>>7) & 0xFFFFFF
			perm := (v >> 31) & 0x1
			isIO := (attr>>24)&0x1 != 0
			caps.MemoryMaps = append(caps.MemoryMaps, domain.MemoryRegionMap{
				Address:    addr << 12,
				Size:       size << 12,
				Permission: perm,
				IsIO:       isIO,
			})
			i += 2

		case capMapIoPage:
			i++ // single-page IO mapping accepted but not modelled further

		case capMapRegion:
			i++ // three region slots accepted but not modelled further

		case capInterruptPair:
			i++ // interrupt numbers accepted but not modelled further

		case capProgramType:
			caps.ProgramType = domain.ProgramType((v >> 14) & 0x7)
			i++

		case capKernelVersion:
			caps.KernelVersionMajor = int(v>>19) & 0x1FFF
			caps.KernelVersionMinor = int(v>>15) & 0xF
			i++

		case capHandleTableSize:
			caps.HandleTableSize = int(v>>17) & 0x3FF
			i++

		case capDebugFlags:
			caps.EnableDebug = (v>>18)&0x1 != 0
			caps.ForceDebug = (v>>19)&0x1 != 0
			i++

		default:
			return caps, domain.ResultUnknownCapability
		}
	}
	return caps, nil
}
