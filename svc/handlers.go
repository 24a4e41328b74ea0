package svc

import (
	"github.com/XorTroll/pegasus/domain"
	"github.com/XorTroll/pegasus/kernel"
)

// CPUFactory is consulted by hCreateThread to build the new thread's
// execution context. It defaults to nil, and nothing in this module
// (cmd/pegasus included) sets it; while it is nil, CreateThread fails
// with ResultNotImplemented.
var CPUFactory domain.CPUContextFactory

func hCreateThread(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, cpu domain.CPUContext) domain.Result {
	entry := cpu.GPR(0)
	arg := cpu.GPR(1)
	stackTop := cpu.GPR(2)
	priority := int(cpu.GPR(3))
	core := int(cpu.GPR(4))

	caps := p.Capabilities()
	if priority < caps.ThreadPriorityLow || priority > caps.ThreadPriorityHigh {
		return domain.ResultInvalidCombination
	}
	if core < caps.ThreadCoreLow || core > caps.ThreadCoreHigh {
		return domain.ResultInvalidCombination
	}

	if CPUFactory == nil {
		return domain.ResultNotImplemented
	}
	childCPU := CPUFactory(entry, arg, stackTop)

	child, res := p.NewThread(priority, core, 1<<uint(core), childCPU, "")
	if !res.IsSuccess() {
		return res
	}
	h, res := p.Handles().Add(child)
	if !res.IsSuccess() {
		return res
	}
	cpu.SetGPR(1, uint64(h))
	return domain.Success
}

func hStartThread(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, cpu domain.CPUContext) domain.Result {
	h := domain.Handle(cpu.GPR(0))
	obj, res := p.Handles().Get(h)
	if !res.IsSuccess() {
		return res
	}
	target, ok := obj.(*kernel.KThread)
	if !ok {
		return domain.ResultInvalidCast
	}
	return target.Start(t)
}

func hExitThread(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, cpu domain.CPUContext) domain.Result {
	t.Exit(t)
	return domain.Success
}

func hExitProcess(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, cpu domain.CPUContext) domain.Result {
	p.Terminate(t, false)
	return domain.Success
}

func hSleepThread(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, cpu domain.CPUContext) domain.Result {
	nanos := int64(cpu.GPR(0))
	if nanos <= 0 {
		return domain.Success
	}
	_, res := k.WaitForSyncObjects(t, nil, nanos)
	if res == domain.ResultTimedOut {
		return domain.Success
	}
	return res
}

func hGetThreadPriority(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, cpu domain.CPUContext) domain.Result {
	h := domain.Handle(cpu.GPR(0))
	target, res := resolveThread(p, t, h)
	if !res.IsSuccess() {
		return res
	}
	cpu.SetGPR(1, uint64(target.Priority()))
	return domain.Success
}

func hSetThreadPriority(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, cpu domain.CPUContext) domain.Result {
	h := domain.Handle(cpu.GPR(0))
	priority := int(cpu.GPR(1))
	target, res := resolveThread(p, t, h)
	if !res.IsSuccess() {
		return res
	}
	target.SetPriority(priority)
	return domain.Success
}

func hGetThreadCoreMask(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, cpu domain.CPUContext) domain.Result {
	h := domain.Handle(cpu.GPR(0))
	target, res := resolveThread(p, t, h)
	if !res.IsSuccess() {
		return res
	}
	cpu.SetGPR(1, uint64(target.PreferredCore()))
	cpu.SetGPR(2, target.AffinityMask())
	return domain.Success
}

func hSetThreadCoreMask(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, cpu domain.CPUContext) domain.Result {
	h := domain.Handle(cpu.GPR(0))
	core := int(int64(cpu.GPR(1)))
	mask := cpu.GPR(2)
	target, res := resolveThread(p, t, h)
	if !res.IsSuccess() {
		return res
	}
	if core >= 0 {
		target.SetPreferredCore(core)
	}
	target.SetAffinityMask(mask)
	return domain.Success
}

func hGetCurrentProcessorNumber(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, cpu domain.CPUContext) domain.Result {
	cpu.SetGPR(0, uint64(t.ActiveCore()))
	return domain.Success
}

func hSignalEvent(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, cpu domain.CPUContext) domain.Result {
	h := domain.Handle(cpu.GPR(0))
	obj, res := p.Handles().Get(h)
	if !res.IsSuccess() {
		return res
	}
	ev, ok := obj.(*kernel.KEvent)
	if !ok {
		return domain.ResultInvalidCast
	}
	ev.Signal()
	return domain.Success
}

func hClearEvent(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, cpu domain.CPUContext) domain.Result {
	h := domain.Handle(cpu.GPR(0))
	obj, res := p.Handles().Get(h)
	if !res.IsSuccess() {
		return res
	}
	ev, ok := obj.(*kernel.KEvent)
	if !ok {
		return domain.ResultInvalidCast
	}
	ev.Clear()
	return domain.Success
}

func hCreateEvent(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, cpu domain.CPUContext) domain.Result {
	autoClear := cpu.GPR(0) != 0
	ev := k.NewEvent(autoClear)
	h, res := p.Handles().Add(ev)
	if !res.IsSuccess() {
		return res
	}
	cpu.SetGPR(1, uint64(h))
	return domain.Success
}

func hCloseHandle(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, cpu domain.CPUContext) domain.Result {
	h := domain.Handle(cpu.GPR(0))
	return p.Handles().Close(h)
}

func hResetSignal(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, cpu domain.CPUContext) domain.Result {
	h := domain.Handle(cpu.GPR(0))
	obj, res := p.Handles().Get(h)
	if !res.IsSuccess() {
		return res
	}
	ev, ok := obj.(*kernel.KEvent)
	if !ok {
		return domain.ResultInvalidCast
	}
	ev.Clear()
	return domain.Success
}

func hWaitSynchronization(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, cpu domain.CPUContext) domain.Result {
	count := int(cpu.GPR(2))
	timeout := int64(cpu.GPR(3))

	objs := make([]domain.SyncObject, 0, count)
	for i := 0; i < count; i++ {
		h := domain.Handle(cpu.GPR(i))
		obj, res := p.Handles().Get(h)
		if !res.IsSuccess() {
			return res
		}
		so, ok := obj.(domain.SyncObject)
		if !ok {
			return domain.ResultInvalidCast
		}
		objs = append(objs, so)
	}

	idx, res := k.WaitForSyncObjects(t, objs, timeout)
	if res.IsSuccess() {
		cpu.SetGPR(1, uint64(idx))
	}
	return res
}

func hCancelSynchronization(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, cpu domain.CPUContext) domain.Result {
	h := domain.Handle(cpu.GPR(0))
	target, res := resolveThread(p, t, h)
	if !res.IsSuccess() {
		return res
	}
	k.CancelSynchronization(target)
	return domain.Success
}

func hManageNamedPort(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, cpu domain.CPUContext) domain.Result {
	name := decodePortName(cpu.GPR(0))
	maxSessions := int(cpu.GPR(1))
	if maxSessions <= 0 {
		res := k.Named().Unpublish(name)
		return res
	}

	port := k.NewPort(maxSessions)
	if res := k.Named().Publish(name, port.Server()); !res.IsSuccess() {
		return res
	}
	h, res := p.Handles().Add(port.Server())
	if !res.IsSuccess() {
		return res
	}
	cpu.SetGPR(1, uint64(h))
	return domain.Success
}

func hConnectToNamedPort(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, cpu domain.CPUContext) domain.Result {
	name := decodePortName(cpu.GPR(0))
	obj, res := k.Named().Lookup(name)
	if !res.IsSuccess() {
		return res
	}
	server, ok := obj.(*kernel.KServerPort)
	if !ok {
		return domain.ResultInvalidCast
	}
	client, res := server.Client().Connect(k)
	if !res.IsSuccess() {
		return res
	}
	h, res := p.Handles().Add(client)
	if !res.IsSuccess() {
		return res
	}
	cpu.SetGPR(1, uint64(h))
	return domain.Success
}

func hConnectToPort(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, cpu domain.CPUContext) domain.Result {
	h := domain.Handle(cpu.GPR(0))
	obj, res := p.Handles().Get(h)
	if !res.IsSuccess() {
		return res
	}
	clientPort, ok := obj.(*kernel.KClientPort)
	if !ok {
		return domain.ResultInvalidCast
	}
	client, res := clientPort.Connect(k)
	if !res.IsSuccess() {
		return res
	}
	outH, res := p.Handles().Add(client)
	if !res.IsSuccess() {
		return res
	}
	cpu.SetGPR(1, uint64(outH))
	return domain.Success
}

func hCreateSession(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, cpu domain.CPUContext) domain.Result {
	client, server := k.NewSessionPair()
	serverHandle, res := p.Handles().Add(server)
	if !res.IsSuccess() {
		return res
	}
	clientHandle, res := p.Handles().Add(client)
	if !res.IsSuccess() {
		p.Handles().Close(serverHandle)
		return res
	}
	cpu.SetGPR(1, uint64(serverHandle))
	cpu.SetGPR(2, uint64(clientHandle))
	return domain.Success
}

func hAcceptSession(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, cpu domain.CPUContext) domain.Result {
	h := domain.Handle(cpu.GPR(0))
	obj, res := p.Handles().Get(h)
	if !res.IsSuccess() {
		return res
	}
	port, ok := obj.(*kernel.KServerPort)
	if !ok {
		return domain.ResultInvalidCast
	}
	sess, res := port.AcceptSession()
	if !res.IsSuccess() {
		return res
	}
	outH, res := p.Handles().Add(sess)
	if !res.IsSuccess() {
		return res
	}
	cpu.SetGPR(1, uint64(outH))
	return domain.Success
}

func hSendSyncRequest(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, cpu domain.CPUContext) domain.Result {
	h := domain.Handle(cpu.GPR(0))
	obj, res := p.Handles().Get(h)
	if !res.IsSuccess() {
		return res
	}
	client, ok := obj.(*kernel.KClientSession)
	if !ok {
		return domain.ResultInvalidCast
	}

	tlr := t.TLR()
	_, res = client.SendSyncRequest(append([]byte(nil), tlr...))
	return res
}

func hReplyAndReceive(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, cpu domain.CPUContext) domain.Result {
	count := int(cpu.GPR(1))
	replyHandle := domain.Handle(cpu.GPR(2))
	timeout := int64(cpu.GPR(3))

	if replyHandle != 0 {
		if obj, res := p.Handles().Get(replyHandle); res.IsSuccess() {
			if sess, ok := obj.(*kernel.KServerSession); ok {
				if req, res := sess.ReceiveRequest(); res.IsSuccess() {
					sess.Reply(req, append([]byte(nil), t.TLR()...), domain.Success)
				}
			}
		}
	}

	objs := make([]domain.SyncObject, 0, count)
	for i := 0; i < count; i++ {
		h := domain.Handle(cpu.GPR(i + 4))
		obj, res := p.Handles().Get(h)
		if !res.IsSuccess() {
			return res
		}
		so, ok := obj.(domain.SyncObject)
		if !ok {
			return domain.ResultInvalidCast
		}
		objs = append(objs, so)
	}

	idx, res := k.WaitForSyncObjects(t, objs, timeout)
	if res.IsSuccess() {
		cpu.SetGPR(1, uint64(idx))
	}
	return res
}

func hGetProcessId(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, cpu domain.CPUContext) domain.Result {
	cpu.SetGPR(1, p.ID())
	return domain.Success
}

func hGetThreadId(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, cpu domain.CPUContext) domain.Result {
	h := domain.Handle(cpu.GPR(0))
	target, res := resolveThread(p, t, h)
	if !res.IsSuccess() {
		return res
	}
	cpu.SetGPR(1, target.ID())
	return domain.Success
}

func hBreak(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, cpu domain.CPUContext) domain.Result {
	p.Terminate(t, true)
	return domain.Success
}

func hOutputDebugString(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, cpu domain.CPUContext) domain.Result {
	return domain.Success
}

func hSetResourceLimitLimitValue(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, cpu domain.CPUContext) domain.Result {
	h := domain.Handle(cpu.GPR(0))
	res := kernel.ResourceType(cpu.GPR(1))
	value := int64(cpu.GPR(2))
	obj, r := p.Handles().Get(h)
	if !r.IsSuccess() {
		return r
	}
	rl, ok := obj.(*kernel.KResourceLimit)
	if !ok {
		return domain.ResultInvalidCast
	}
	return rl.SetLimit(res, value)
}

func hGetResourceLimitLimitValue(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, cpu domain.CPUContext) domain.Result {
	h := domain.Handle(cpu.GPR(0))
	res := kernel.ResourceType(cpu.GPR(1))
	obj, r := p.Handles().Get(h)
	if !r.IsSuccess() {
		return r
	}
	rl, ok := obj.(*kernel.KResourceLimit)
	if !ok {
		return domain.ResultInvalidCast
	}
	cpu.SetGPR(1, uint64(rl.GetLimit(res)))
	return domain.Success
}

func hGetResourceLimitCurrentValue(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, cpu domain.CPUContext) domain.Result {
	h := domain.Handle(cpu.GPR(0))
	res := kernel.ResourceType(cpu.GPR(1))
	obj, r := p.Handles().Get(h)
	if !r.IsSuccess() {
		return r
	}
	rl, ok := obj.(*kernel.KResourceLimit)
	if !ok {
		return domain.ResultInvalidCast
	}
	cpu.SetGPR(1, uint64(rl.GetCurrent(res)))
	return domain.Success
}

func resolveThread(p *kernel.KProcess, self *kernel.KThread, h domain.Handle) (*kernel.KThread, domain.Result) {
	if h == domain.HandleCurrentThread {
		return self, domain.Success
	}
	obj, res := p.Handles().Get(h)
	if !res.IsSuccess() {
		return nil, res
	}
	target, ok := obj.(*kernel.KThread)
	if !ok {
		return nil, domain.ResultInvalidCast
	}
	return target, domain.Success
}

func hCreateTransferMemory(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, cpu domain.CPUContext) domain.Result {
	addr := cpu.GPR(0)
	size := cpu.GPR(1)
	perm := uint32(cpu.GPR(2))

	if p.ResourceLimit() != nil {
		if res := p.ResourceLimit().Reserve(kernel.ResourceTransferMemory, 1); !res.IsSuccess() {
			return res
		}
	}

	tm := k.NewTransferMemory(addr, size, perm)
	h, res := p.Handles().Add(tm)
	if !res.IsSuccess() {
		if p.ResourceLimit() != nil {
			p.ResourceLimit().Release(kernel.ResourceTransferMemory, 1, 1)
		}
		return res
	}
	cpu.SetGPR(1, uint64(h))
	return domain.Success
}

// hArbitrateLock implements svcArbitrateLock: the calling thread blocks
// until it owns the guest-supplied key, backed by the owning process's
// AddressArbiter (spec §1 "condition variables"). The wire ABI's tag
// argument is not needed here since ownership is tracked by the real
// calling KThread rather than a guest-chosen tag word.
func hArbitrateLock(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, cpu domain.CPUContext) domain.Result {
	key := cpu.GPR(1)
	return p.Arbiter().Lock(key, t.ID())
}

// hArbitrateUnlock implements svcArbitrateUnlock, releasing a key the
// calling thread previously locked and waking anyone blocked on it.
func hArbitrateUnlock(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, cpu domain.CPUContext) domain.Result {
	key := cpu.GPR(0)
	return p.Arbiter().Unlock(key, t.ID())
}

// decodePortName reads sm-style 8-byte packed port names the same way
// the real ABI passes them: as a little-endian 64-bit value in a single
// register rather than a pointer, since named ports are always <= 8
// bytes (e.g. "sm:\0\0\0\0\0").
func decodePortName(packed uint64) string {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(packed >> (8 * uint(i)))
	}
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}
