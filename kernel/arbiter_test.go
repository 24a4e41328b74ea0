package kernel

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/XorTroll/pegasus/domain"
)

func TestAddressArbiterLockUnlock(t *testing.T) {
	a := newAddressArbiter()
	assert.True(t, a.Lock(1, 100).IsSuccess())
	assert.True(t, a.Unlock(1, 100).IsSuccess())
}

func TestAddressArbiterUnlockByWrongOwnerFails(t *testing.T) {
	a := newAddressArbiter()
	require := assert.New(t)
	require.True(a.Lock(1, 100).IsSuccess())

	res := a.Unlock(1, 200)
	require.Equal(domain.ResultInvalidState, res)
}

func TestAddressArbiterReentrantForSameThread(t *testing.T) {
	a := newAddressArbiter()
	assert.True(t, a.Lock(1, 100).IsSuccess())

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.True(t, a.Lock(1, 100).IsSuccess())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("same-thread re-lock deadlocked")
	}
}

func TestAddressArbiterContentionBlocksUntilUnlock(t *testing.T) {
	a := newAddressArbiter()
	require := assert.New(t)
	require.True(a.Lock(1, 100).IsSuccess())

	var wg sync.WaitGroup
	wg.Add(1)
	locked := make(chan struct{})
	go func() {
		defer wg.Done()
		a.Lock(1, 200)
		close(locked)
	}()

	select {
	case <-locked:
		t.Fatal("second thread acquired the key while the first still held it")
	case <-time.After(30 * time.Millisecond):
	}

	require.True(a.Unlock(1, 100).IsSuccess())

	select {
	case <-locked:
	case <-time.After(time.Second):
		t.Fatal("second thread never acquired the key after unlock")
	}
	wg.Wait()
}
