//go:build unix

package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
	"k8s.io/apimachinery/pkg/util/wait"
)

// fileName maps a lock name to its lock file, e.g. "local-<hex>.lock".
func fileName(name string) string {
	prefix, hash, _ := strings.Cut(name, `\`)
	return strings.ToLower(prefix) + "-" + hash + ".lock"
}

// modes returns the lock directory and file permissions. Global locks are
// shared by every user of the host: a sticky world-writable directory holding
// world-writable lock files.
func (l *Locker) modes() (os.FileMode, os.FileMode) {
	if l.Visibility == VisibilityGlobal {
		return os.ModeSticky | 0o777, 0o666
	}
	return 0o700, 0o600
}

// acquire takes an exclusive flock on the lock file. The holder records its
// pid in the file and truncates it on release, so a non-empty file found on
// acquisition was left behind by a holder that died.
func (l *Locker) acquire(ctx context.Context, name string, maxWait time.Duration) (func() error, State, error) {
	dir, err := l.dir()
	if err != nil {
		return nil, 0, err
	}
	dirMode, fileMode := l.modes()
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, 0, fmt.Errorf("create lock directory: %w", err)
	}
	if l.Visibility == VisibilityGlobal {
		// only the owner may chmod; later users find it already shared
		_ = os.Chmod(dir, dirMode)
	}
	path := filepath.Join(dir, fileName(name))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, fileMode)
	if err != nil {
		return nil, 0, fmt.Errorf("open lock file: %w", err)
	}
	if l.Visibility == VisibilityGlobal {
		_ = f.Chmod(fileMode)
	}
	fd := int(f.Fd())

	err = wait.PollUntilContextTimeout(ctx, l.pollInterval(), maxWait, true, func(context.Context) (bool, error) {
		err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, unix.EWOULDBLOCK), errors.Is(err, unix.EINTR):
			return false, nil
		default:
			return false, fmt.Errorf("flock %s: %w", path, err)
		}
	})
	if err != nil {
		_ = f.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, 0, ctxErr
		}
		if wait.Interrupted(err) {
			return nil, 0, &TimeoutError{Name: name, Wait: maxWait}
		}
		return nil, 0, err
	}

	state := StateAcquired
	if info, err := f.Stat(); err == nil && info.Size() > 0 {
		state = StateAbandoned
	}
	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0)
	}

	release := func() error {
		return errors.Join(
			f.Truncate(0),
			unix.Flock(fd, unix.LOCK_UN),
			f.Close(),
		)
	}
	return release, state, nil
}
