// Package domain defines the collaborator contracts shared by every other
// package in pegasus: kernel object identities, handles, result codes, the
// CPU execution-context contract, and the HIPC wire types. Nothing in this
// package depends on another pegasus package.
package domain

import "fmt"

// Result is Horizon's 22-bit packed result code: module in the low 9 bits,
// description in the remaining bits. The all-zero code is success.
type Result uint32

const (
	resultModuleBits = 9
	resultModuleMask = (1 << resultModuleBits) - 1
)

// Module identifiers, per spec §6 "Result codes".
const (
	ModuleKernel    = 1
	ModuleNcm       = 5
	ModuleLdr       = 9
	ModuleCmif      = 10
	ModuleIpc       = 11
	ModuleSm        = 21
	ModuleFramework = 503
	ModuleEmu       = 505
)

// NewResult packs a module and description into a Result.
func NewResult(module, description uint32) Result {
	return Result((module & resultModuleMask) | (description << resultModuleBits))
}

// Success is the all-zero result code.
const Success Result = 0

// Module returns the result's module field.
func (r Result) Module() uint32 { return uint32(r) & resultModuleMask }

// Description returns the result's description field.
func (r Result) Description() uint32 { return uint32(r) >> resultModuleBits }

// IsSuccess reports whether r is the all-zero success code.
func (r Result) IsSuccess() bool { return r == Success }

// Error implements the error interface so Result can be returned/wrapped
// anywhere a Go error is expected.
func (r Result) Error() string {
	if r.IsSuccess() {
		return "success"
	}
	return r.String()
}

// String renders the result as "2XXX-YYYY", Horizon's canonical display
// form: 2000 + module, then the description zero-padded to 4 digits.
func (r Result) String() string {
	if r.IsSuccess() {
		return "0000-0000"
	}
	return fmt.Sprintf("2%03d-%04d", r.Module(), r.Description())
}

// Kernel module result codes (spec §7 error taxonomy).
var (
	ResultOutOfHandles          = NewResult(ModuleKernel, 7)
	ResultInvalidHandle         = NewResult(ModuleKernel, 9)
	ResultInvalidCast           = NewResult(ModuleKernel, 12)
	ResultOutOfSessions         = NewResult(ModuleKernel, 13)
	ResultOutOfMemory           = NewResult(ModuleKernel, 101)
	ResultTimedOut              = NewResult(ModuleKernel, 117)
	ResultCancelled              = NewResult(ModuleKernel, 118)
	ResultTerminationRequested  = NewResult(ModuleKernel, 59)
	ResultLimitReached          = NewResult(ModuleKernel, 132)
	ResultNotFound              = NewResult(ModuleKernel, 112)
	ResultSessionClosed         = NewResult(ModuleKernel, 131)
	ResultInvalidState          = NewResult(ModuleKernel, 125)
	ResultInvalidCombination    = NewResult(ModuleKernel, 14)
	ResultInvalidEnumValue      = NewResult(ModuleKernel, 22)
	ResultNotImplemented        = NewResult(ModuleKernel, 33)
	ResultReceiveListBroken     = NewResult(ModuleKernel, 258)
	ResultOutOfResource         = NewResult(ModuleKernel, 9)
	ResultAlreadyExists         = NewResult(ModuleKernel, 99)
)

// IPC/CMIF module result codes.
var (
	ResultUnknownCommandType = NewResult(ModuleIpc, 403)
	ResultUnknownCommandId   = NewResult(ModuleCmif, 202)
	ResultUnsupportedOperation = NewResult(ModuleCmif, 221)
	ResultDomainObjectNotFound = NewResult(ModuleCmif, 301)
)

// Content-meta (NCM) module result codes.
var (
	ResultInvalidNca     = NewResult(ModuleNcm, 1)
	ResultContentNotFound = NewResult(ModuleNcm, 2)
)

// Loader (LDR) module result codes.
var (
	ResultUnknownCapability    = NewResult(ModuleLdr, 1)
	ResultInvalidNso           = NewResult(ModuleLdr, 2)
	ResultInvalidNpdm          = NewResult(ModuleLdr, 3)
	ResultInvalidAddressSpace  = NewResult(ModuleLdr, 4)
)

// Service-manager (SM) module result codes.
var (
	ResultSmAlreadyRegistered = NewResult(ModuleSm, 4)
	ResultSmNotRegistered     = NewResult(ModuleSm, 7)
	ResultSmInvalidName       = NewResult(ModuleSm, 6)
)
