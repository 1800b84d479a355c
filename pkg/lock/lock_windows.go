//go:build windows

package lock

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sys/windows"
)

const waitTimeout = 0x00000102

type mutexOutcome struct {
	state State
	err   error
}

// acquire waits on a named mutex. A mutex is owned by the thread that
// acquired it, so a dedicated goroutine pinned to its OS thread acquires,
// holds and releases it.
func (l *Locker) acquire(ctx context.Context, name string, maxWait time.Duration) (func() error, State, error) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid lock name %q: %w", name, err)
	}

	acquired := make(chan mutexOutcome, 1)
	release := make(chan struct{})
	released := make(chan error, 1)

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		h, err := windows.CreateMutex(nil, false, namePtr)
		if err != nil && !errors.Is(err, windows.ERROR_ALREADY_EXISTS) {
			acquired <- mutexOutcome{err: fmt.Errorf("create mutex %s: %w", name, err)}
			return
		}
		defer windows.CloseHandle(h) //nolint:errcheck

		deadline := time.Now().Add(maxWait)
		state := State(0)
		for state == 0 {
			step := min(l.pollInterval(), time.Until(deadline))
			if step < 0 {
				step = 0
			}
			ev, err := windows.WaitForSingleObject(h, uint32(step.Milliseconds()))
			switch ev {
			case windows.WAIT_OBJECT_0:
				state = StateAcquired
			case windows.WAIT_ABANDONED:
				state = StateAbandoned
			case waitTimeout:
				if ctxErr := ctx.Err(); ctxErr != nil {
					acquired <- mutexOutcome{err: ctxErr}
					return
				}
				if !time.Now().Before(deadline) {
					acquired <- mutexOutcome{err: &TimeoutError{Name: name, Wait: maxWait}}
					return
				}
			default:
				acquired <- mutexOutcome{err: fmt.Errorf("wait for mutex %s: %w", name, err)}
				return
			}
		}

		acquired <- mutexOutcome{state: state}
		<-release
		released <- windows.ReleaseMutex(h)
	}()

	out := <-acquired
	if out.err != nil {
		return nil, 0, out.err
	}
	return func() error {
		close(release)
		return <-released
	}, out.state, nil
}
