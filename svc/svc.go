// Package svc is the SVC trampoline table: it decodes the guest's `SVC
// #imm16` trap, checks the owning process's NPDM-derived capability
// bitmap, and dispatches to the kernel operation each id names.
package svc

import (
	"github.com/XorTroll/pegasus/domain"
	"github.com/XorTroll/pegasus/kernel"
)

// IDs, per the well-known Horizon SVC numbering (spec §6 "Guest ABI").
const (
	IDSetHeapSize              = 0x01
	IDExitProcess              = 0x07
	IDCreateThread             = 0x08
	IDStartThread              = 0x09
	IDExitThread               = 0x0A
	IDSleepThread              = 0x0B
	IDGetThreadPriority        = 0x0C
	IDSetThreadPriority        = 0x0D
	IDGetThreadCoreMask        = 0x0E
	IDSetThreadCoreMask        = 0x0F
	IDGetCurrentProcessorNumber = 0x10
	IDSignalEvent              = 0x11
	IDClearEvent               = 0x12
	IDCreateTransferMemory     = 0x15
	IDCloseHandle              = 0x16
	IDResetSignal              = 0x17
	IDWaitSynchronization      = 0x18
	IDCancelSynchronization    = 0x19
	IDArbitrateLock            = 0x1A
	IDArbitrateUnlock          = 0x1B
	IDConnectToNamedPort       = 0x1F
	IDSendSyncRequest          = 0x21
	IDGetProcessId             = 0x24
	IDGetThreadId              = 0x25
	IDBreak                    = 0x26
	IDOutputDebugString        = 0x27
	IDGetInfo                  = 0x29
	IDCreateSession            = 0x40
	IDAcceptSession            = 0x41
	IDReplyAndReceive          = 0x43
	IDCreateEvent              = 0x45
	IDManageNamedPort          = 0x71
	IDConnectToPort            = 0x72
	IDSetResourceLimitLimitValue = 0x7E
	IDGetResourceLimitLimitValue = 0x30
	IDGetResourceLimitCurrentValue = 0x31
)

// Handler services one SVC id: k/p/t are the calling process/thread's
// own kernel identities, cpu is that thread's execution context — a0..a7
// and the return are read/written through cpu's GPR accessors per
// Horizon's W0../X0.. ABI convention (spec §6).
type Handler func(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, cpu domain.CPUContext) domain.Result

// Table maps SVC id to its Handler. NewTable returns the full set this
// emulator implements. Dispatch checks the capability grant first, so an
// unlisted id yields domain.ResultUnknownCapability when the process is
// not granted it and domain.ResultNotImplemented when it is.
type Table struct {
	handlers map[uint32]Handler
}

func NewTable() *Table {
	return &Table{handlers: map[uint32]Handler{
		IDCreateThread:          hCreateThread,
		IDStartThread:           hStartThread,
		IDExitThread:            hExitThread,
		IDExitProcess:           hExitProcess,
		IDSleepThread:           hSleepThread,
		IDGetThreadPriority:     hGetThreadPriority,
		IDSetThreadPriority:     hSetThreadPriority,
		IDGetThreadCoreMask:     hGetThreadCoreMask,
		IDSetThreadCoreMask:     hSetThreadCoreMask,
		IDGetCurrentProcessorNumber: hGetCurrentProcessorNumber,
		IDSignalEvent:           hSignalEvent,
		IDClearEvent:            hClearEvent,
		IDCreateEvent:           hCreateEvent,
		IDCloseHandle:           hCloseHandle,
		IDResetSignal:           hResetSignal,
		IDWaitSynchronization:   hWaitSynchronization,
		IDCancelSynchronization: hCancelSynchronization,
		IDConnectToNamedPort:    hConnectToNamedPort,
		IDConnectToPort:         hConnectToPort,
		IDSendSyncRequest:       hSendSyncRequest,
		IDGetProcessId:          hGetProcessId,
		IDGetThreadId:           hGetThreadId,
		IDBreak:                 hBreak,
		IDOutputDebugString:     hOutputDebugString,
		IDCreateSession:         hCreateSession,
		IDAcceptSession:         hAcceptSession,
		IDReplyAndReceive:       hReplyAndReceive,
		IDManageNamedPort:       hManageNamedPort,
		IDCreateTransferMemory:  hCreateTransferMemory,
		IDArbitrateLock:         hArbitrateLock,
		IDArbitrateUnlock:       hArbitrateUnlock,
		IDSetResourceLimitLimitValue:   hSetResourceLimitLimitValue,
		IDGetResourceLimitLimitValue:   hGetResourceLimitLimitValue,
		IDGetResourceLimitCurrentValue: hGetResourceLimitCurrentValue,
	}}
}

// Dispatch services a TrapSVC: it checks p's capability grant for id
// before looking the handler up, matching the real kernel's ordering
// (spec §6 "enabled_svcs bitmap" is consulted before the syscall even
// begins executing).
func (tbl *Table) Dispatch(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, cpu domain.CPUContext, id uint32) domain.Result {
	caps := p.Capabilities()
	if !caps.SVCEnabled(id) {
		return domain.ResultUnknownCapability
	}
	h, ok := tbl.handlers[id]
	if !ok {
		return domain.ResultNotImplemented
	}
	return h(k, p, t, cpu)
}
