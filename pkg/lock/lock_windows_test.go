//go:build windows

package lock

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/windows"
)

func TestAbandonedMutex(t *testing.T) {
	l, logs := newTestLocker(t)
	key := "tenant_client_" + t.Name()
	namePtr, err := windows.UTF16PtrFromString(Name(key, VisibilityLocal))
	require.NoError(t, err)

	// a holder whose thread exits while owning the mutex abandons it
	created := make(chan windows.Handle, 1)
	go func() {
		runtime.LockOSThread()
		h, err := windows.CreateMutex(nil, true, namePtr)
		if err != nil {
			created <- 0
			return
		}
		created <- h
		// returning without UnlockOSThread terminates the thread
	}()
	h := <-created
	require.NotZero(t, h)
	t.Cleanup(func() { _ = windows.CloseHandle(h) })

	g, err := l.Acquire(context.Background(), key, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StateAbandoned, g.State())
	assert.Equal(t, 1, logs.FilterMessage(AbandonedMessage).Len())
	require.NoError(t, g.Release())

	g, err = l.Acquire(context.Background(), key, time.Second)
	require.NoError(t, err)
	assert.Equal(t, StateAcquired, g.State(), "clean release is not reported as abandoned")
	require.NoError(t, g.Release())
}

func TestMutexTimeout(t *testing.T) {
	l, _ := newTestLocker(t)
	key := "tenant_client_" + t.Name()

	held, err := l.Acquire(context.Background(), key, time.Second)
	require.NoError(t, err)
	defer func() { require.NoError(t, held.Release()) }()

	_, err = l.Acquire(context.Background(), key, 50*time.Millisecond)
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, Name(key, VisibilityLocal), te.Name)
}
