package hipc

// IHipcManager control command ids, per libnx's hipc control interface
// — every session answers these even before ConvertCurrentObjectToDomain
// gives it a real domain table (spec §4.8 "Domains").
const (
	ControlConvertToDomain  = 0
	ControlCopyFromDomain   = 1
	ControlCloneObject      = 2
	ControlQueryPointerSize = 3
	ControlCloneObjectEx    = 4
)
