package kernel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XorTroll/pegasus/domain"
)

func TestWaitForSyncObjectsReturnsImmediatelyWhenAlreadySignaled(t *testing.T) {
	k := NewKernel()
	self := k.NewHostThread("waiter")

	e1 := k.NewEvent(false)
	e2 := k.NewEvent(false)
	e2.Signal()

	idx, res := k.WaitForSyncObjects(self, []domain.SyncObject{e1, e2}, -1)
	assert.Equal(t, domain.Success, res)
	assert.Equal(t, 1, idx)
	assert.Equal(t, domain.Success, self.LastSyncResult())
}

func TestWaitForSyncObjectsZeroTimeoutIsNonBlocking(t *testing.T) {
	k := NewKernel()
	self := k.NewHostThread("waiter")
	e := k.NewEvent(false)

	idx, res := k.WaitForSyncObjects(self, []domain.SyncObject{e}, 0)
	assert.Equal(t, -1, idx)
	assert.Equal(t, domain.ResultTimedOut, res)
}

// startScheduledThread builds a real guest thread, starts it (putting it
// on its core's scheduled queue), and blocks until the scheduler grants
// it the core — mirroring cmd/pegasus's driveThread loop, but without a
// CPU context, since these tests exercise WaitForSyncObjects directly.
func startScheduledThread(t *testing.T, k *Kernel) *KThread {
	t.Helper()
	limit := k.NewResourceLimit()
	require.True(t, limit.SetLimit(ResourceThreads, 1).IsSuccess())
	p := k.NewProcess("waiter-proc", domain.DefaultCapabilities(), limit)
	th, res := p.NewThread(10, 0, 1, nil, "waiter-thread")
	require.True(t, res.IsSuccess())

	loader := k.NewHostThread("loader")
	require.True(t, th.Start(loader).IsSuccess())

	k.RunGuestThread(th)
	return th
}

func TestWaitForSyncObjectsBlocksThenSucceedsOnSignal(t *testing.T) {
	k := NewKernel()
	th := startScheduledThread(t, k)
	e := k.NewEvent(false)

	done := make(chan struct {
		idx int
		res domain.Result
	}, 1)
	go func() {
		idx, res := k.WaitForSyncObjects(th, []domain.SyncObject{e}, -1)
		done <- struct {
			idx int
			res domain.Result
		}{idx, res}
	}()

	select {
	case <-done:
		t.Fatal("wait resolved before the event was signaled")
	case <-time.After(20 * time.Millisecond):
	}

	e.Signal()

	select {
	case got := <-done:
		assert.Equal(t, 0, got.idx)
		assert.Equal(t, domain.Success, got.res)
	case <-time.After(time.Second):
		t.Fatal("wait never resolved after Signal")
	}
}

func TestWaitForSyncObjectsTimesOut(t *testing.T) {
	k := NewKernel()
	th := startScheduledThread(t, k)
	e := k.NewEvent(false)

	start := time.Now()
	idx, res := k.WaitForSyncObjects(th, []domain.SyncObject{e}, int64(20*time.Millisecond))
	elapsed := time.Since(start)

	assert.Equal(t, -1, idx)
	assert.Equal(t, domain.ResultTimedOut, res)
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
}

func TestCancelSynchronizationWakesBlockedWaitWithCancelled(t *testing.T) {
	k := NewKernel()
	th := startScheduledThread(t, k)
	e := k.NewEvent(false)

	done := make(chan domain.Result, 1)
	go func() {
		_, res := k.WaitForSyncObjects(th, []domain.SyncObject{e}, -1)
		done <- res
	}()

	time.Sleep(20 * time.Millisecond)
	k.CancelSynchronization(th)

	select {
	case res := <-done:
		assert.Equal(t, domain.ResultCancelled, res)
	case <-time.After(time.Second):
		t.Fatal("wait never resolved after CancelSynchronization")
	}
}
