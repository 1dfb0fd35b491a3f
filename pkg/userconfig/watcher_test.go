package userconfig

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatchConfigSignalsWrites(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Dir(Path()), 0o755))

	var changes atomic.Int32
	watcher, err := WatchConfig(func() {
		changes.Add(1)
	})
	require.NoError(t, err)
	defer watcher.Close()

	config := &Config{Account: "valerian@parley.im"}
	require.NoError(t, config.Save())

	require.Eventually(t, func() bool {
		return changes.Load() > 0
	}, 3*time.Second, 10*time.Millisecond)
}

func TestWatchConfigIgnoresOtherFiles(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Dir(Path()), 0o755))

	var changes atomic.Int32
	watcher, err := WatchConfig(func() {
		changes.Add(1)
	})
	require.NoError(t, err)
	defer watcher.Close()

	other := filepath.Join(filepath.Dir(Path()), "unrelated.yaml")
	require.NoError(t, os.WriteFile(other, []byte("x: 1"), 0o644))

	time.Sleep(200 * time.Millisecond)
	require.Zero(t, changes.Load())
}

func TestWatcherCloseIsIdempotent(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Dir(Path()), 0o755))

	watcher, err := WatchConfig(func() {})
	require.NoError(t, err)

	watcher.Close()
	watcher.Close()
}
