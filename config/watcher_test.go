package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string, content string, mod time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func newFastWatcher(t *testing.T, path string) (*FileWatcher, chan FileEvent) {
	t.Helper()
	w, err := NewFileWatcher(path, WithPollInterval(5*time.Millisecond), WithDebounceDelay(10*time.Millisecond))
	require.NoError(t, err)
	events := make(chan FileEvent, 10)
	w.OnChange(func(e FileEvent) { events <- e })
	return w, events
}

func nextEvent(t *testing.T, events chan FileEvent) FileEvent {
	t.Helper()
	select {
	case e := <-events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no file event")
		return FileEvent{}
	}
}

func TestFileWatcher_DetectsWriteCreateRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nifimcp.yaml")
	base := time.Now().Add(-time.Hour)
	touch(t, path, "a", base)

	w, events := newFastWatcher(t, path)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	assert.True(t, w.IsRunning())

	touch(t, path, "b", base.Add(time.Minute))
	assert.Equal(t, FileOpWrite, nextEvent(t, events).Op)

	require.NoError(t, os.Remove(path))
	assert.Equal(t, FileOpRemove, nextEvent(t, events).Op)

	touch(t, path, "c", base.Add(2*time.Minute))
	e := nextEvent(t, events)
	assert.Equal(t, FileOpCreate, e.Op)
	assert.Equal(t, path, e.Path)
}

func TestFileWatcher_StartTwiceAndStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")
	w, _ := newFastWatcher(t, path)

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
	assert.False(t, w.IsRunning())
}

func TestFileWatcher_ContextCancelStopsLoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nifimcp.yaml")
	touch(t, path, "a", time.Now().Add(-time.Hour))
	w, events := newFastWatcher(t, path)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	cancel()
	// Stop 等待后台协程退出
	w.Stop()

	touch(t, path, "b", time.Now())
	select {
	case e := <-events:
		t.Fatalf("unexpected event after stop: %v", e.Op)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFileOp_String(t *testing.T) {
	assert.Equal(t, "CREATE", FileOpCreate.String())
	assert.Equal(t, "WRITE", FileOpWrite.String())
	assert.Equal(t, "REMOVE", FileOpRemove.String())
	assert.Equal(t, "UNKNOWN", FileOp(42).String())
}
