//go:build unix

package lock

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileName(t *testing.T) {
	name := Name("tenant_client", VisibilityGlobal)
	got := fileName(name)
	assert.True(t, strings.HasPrefix(got, "global-"))
	assert.True(t, strings.HasSuffix(got, ".lock"))
	assert.NotContains(t, got, `\`)
}

func TestAbandonedLock(t *testing.T) {
	l, logs := newTestLocker(t)

	// a holder that died leaves its pid behind
	path := filepath.Join(l.Dir, fileName(Name("tenant_client", VisibilityLocal)))
	require.NoError(t, os.WriteFile(path, []byte("999999"), 0o600))

	g, err := l.Acquire(context.Background(), "tenant_client", time.Second)
	require.NoError(t, err)
	assert.Equal(t, StateAbandoned, g.State())
	assert.Equal(t, 1, logs.FilterMessage(AbandonedMessage).Len())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(content))

	require.NoError(t, g.Release())
	content, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, content)

	g, err = l.Acquire(context.Background(), "tenant_client", time.Second)
	require.NoError(t, err)
	assert.Equal(t, StateAcquired, g.State(), "clean release is not reported as abandoned")
	require.NoError(t, g.Release())
}

func TestLockFileModes(t *testing.T) {
	t.Run("local locks are private", func(t *testing.T) {
		l := &Locker{Dir: filepath.Join(t.TempDir(), "locks"), PollInterval: 5 * time.Millisecond}
		g, err := l.Acquire(context.Background(), "tenant_client", time.Second)
		require.NoError(t, err)
		defer func() { require.NoError(t, g.Release()) }()

		info, err := os.Stat(l.Dir)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())

		info, err = os.Stat(filepath.Join(l.Dir, fileName(g.Name())))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})

	t.Run("global locks are shared between users", func(t *testing.T) {
		l := &Locker{Dir: filepath.Join(t.TempDir(), "azauth-locks"), Visibility: VisibilityGlobal, PollInterval: 5 * time.Millisecond}
		g, err := l.Acquire(context.Background(), "tenant_client", time.Second)
		require.NoError(t, err)
		defer func() { require.NoError(t, g.Release()) }()

		info, err := os.Stat(l.Dir)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o777), info.Mode().Perm())
		assert.NotZero(t, info.Mode()&os.ModeSticky)

		info, err = os.Stat(filepath.Join(l.Dir, fileName(g.Name())))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o666), info.Mode().Perm())
	})
}
