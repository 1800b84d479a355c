// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

// Package lock provides a named, cross-process mutual exclusion primitive
// keyed by an arbitrary string. Two processes asking for the same key are
// serialized; different keys never block each other.
package lock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultMaxWait is how long Acquire waits when called with a zero maxWait.
	DefaultMaxWait = 15 * time.Minute
	// DefaultPollInterval is how often a busy lock is retried.
	DefaultPollInterval = 50 * time.Millisecond

	// AbandonedMessage is logged when the previous holder exited without
	// releasing the lock.
	AbandonedMessage = "Another thread or process may have exited unexpectedly, while holding azauth resources."
)

// Visibility scopes a lock to the current user session or the whole machine.
type Visibility int

const (
	VisibilityLocal Visibility = iota
	VisibilityGlobal
)

func (v Visibility) String() string {
	if v == VisibilityGlobal {
		return "Global"
	}
	return "Local"
}

// State is the outcome of a successful acquisition.
type State int

const (
	// StateAcquired is a normal acquisition.
	StateAcquired State = iota + 1
	// StateAbandoned means the lock was obtained after its previous holder
	// died while holding it.
	StateAbandoned
)

func (s State) String() string {
	switch s {
	case StateAcquired:
		return "acquired"
	case StateAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Name returns the OS object name for key: the visibility prefix followed by
// the hex SHA-256 of key, so any key is a valid object name.
func Name(key string, v Visibility) string {
	return v.String() + `\` + digest(key)
}

func digest(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// TimeoutError is returned when a lock could not be obtained within maxWait.
type TimeoutError struct {
	Name string
	Wait time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Authentication failed. The application did not gain access to lock %s in the expected time (%s), "+
		"possibly because the resource handler was occupied by another process for a long time.", e.Name, e.Wait)
}

// Locker acquires named locks. The zero value is usable.
type Locker struct {
	Log *zap.SugaredLogger
	// Dir holds lock files on platforms that implement locks with files.
	// Defaults to a per-user cache directory for local locks and the
	// system temp directory for global ones.
	Dir          string
	PollInterval time.Duration
	Visibility   Visibility
	// OnAcquire, if set, is called after every acquisition attempt.
	OnAcquire func(state State, waited time.Duration, err error)
}

// New returns a Locker for session-local locks under dir.
func New(log *zap.SugaredLogger, dir string) *Locker {
	return &Locker{Log: log, Dir: dir}
}

func (l *Locker) log() *zap.SugaredLogger {
	if l.Log == nil {
		return zap.NewNop().Sugar()
	}
	return l.Log
}

func (l *Locker) pollInterval() time.Duration {
	if l.PollInterval > 0 {
		return l.PollInterval
	}
	return DefaultPollInterval
}

// Directory returns the directory lock files are created in.
func (l *Locker) Directory() (string, error) {
	return l.dir()
}

func (l *Locker) dir() (string, error) {
	if l.Dir != "" {
		return l.Dir, nil
	}
	if l.Visibility == VisibilityGlobal {
		return filepath.Join(os.TempDir(), "azauth-locks"), nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolve lock directory: %w", err)
	}
	return filepath.Join(base, "azauth", "locks"), nil
}

// Guard is a held lock. Release must be called exactly once; further calls
// are no-ops.
type Guard struct {
	name    string
	state   State
	release func() error
	once    sync.Once
	err     error
}

// Name returns the lock's OS object name.
func (g *Guard) Name() string { return g.name }

// State reports how the lock was obtained.
func (g *Guard) State() State { return g.state }

// Release gives the lock up.
func (g *Guard) Release() error {
	g.once.Do(func() {
		if g.release != nil {
			g.err = g.release()
		}
	})
	return g.err
}

// Acquire blocks until the lock for key is held, maxWait elapses or ctx is
// done. A *TimeoutError is returned on expiry.
func (l *Locker) Acquire(ctx context.Context, key string, maxWait time.Duration) (*Guard, error) {
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	name := Name(key, l.Visibility)
	log := l.log().With("lock", name)
	log.Debugw("Acquiring lock", "maxWait", maxWait)

	start := time.Now()
	release, state, err := l.acquire(ctx, name, maxWait)
	waited := time.Since(start)
	if l.OnAcquire != nil {
		l.OnAcquire(state, waited, err)
	}
	if err != nil {
		log.Debugw("Failed to acquire lock", "waited", waited, "error", err)
		return nil, err
	}
	if state == StateAbandoned {
		log.Warn(AbandonedMessage)
	}
	log.Debugw("Lock acquired", "state", state.String(), "waited", waited)
	return &Guard{name: name, state: state, release: release}, nil
}

// WithLock runs fn while holding the lock for key. The lock is released on
// every exit path, including a panic in fn.
func (l *Locker) WithLock(ctx context.Context, key string, maxWait time.Duration, fn func(context.Context) error) (err error) {
	g, err := l.Acquire(ctx, key, maxWait)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := g.Release(); rerr != nil {
			l.log().Warnw("Failed to release lock", "lock", g.Name(), "error", rerr)
			if err == nil {
				err = rerr
			}
		}
	}()
	return fn(ctx)
}
