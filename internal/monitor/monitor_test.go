package monitor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForEvent(t *testing.T, events chan FileEvent, want Kind) FileEvent {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case e := <-events:
			if e.Kind == want {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for a %s event", want)
		}
	}
}

func TestMonitorReportsLifecycleEvents(t *testing.T) {
	root := t.TempDir()
	events := make(chan FileEvent, 64)

	var m Monitor
	require.NoError(t, m.Start(root, func(e FileEvent) { events <- e }))
	defer m.Stop()
	require.True(t, m.IsActive())

	target := filepath.Join(root, "f.txt")
	require.NoError(t, os.WriteFile(target, []byte("one"), 0o644))
	created := waitForEvent(t, events, Created)
	assert.Equal(t, "f.txt", created.RelativePath)

	require.NoError(t, os.WriteFile(target, []byte("two-longer"), 0o644))
	touched := waitForEvent(t, events, Touched)
	assert.Equal(t, "f.txt", touched.RelativePath)

	require.NoError(t, os.Remove(target))
	deleted := waitForEvent(t, events, Deleted)
	assert.Equal(t, "f.txt", deleted.RelativePath)
}

func TestMonitorReportsRenameAsSingleEvent(t *testing.T) {
	root := t.TempDir()
	events := make(chan FileEvent, 64)

	var m Monitor
	require.NoError(t, m.Start(root, func(e FileEvent) { events <- e }))
	defer m.Stop()

	oldPath := filepath.Join(root, "old.txt")
	newPath := filepath.Join(root, "new.txt")
	require.NoError(t, os.WriteFile(oldPath, []byte("x"), 0o644))
	waitForEvent(t, events, Created)

	require.NoError(t, os.Rename(oldPath, newPath))
	renamed := waitForEvent(t, events, Renamed)
	assert.Equal(t, "new.txt", renamed.RelativePath)
	assert.Equal(t, "old.txt", renamed.OldRelativePath)
}

func TestMonitorStartTwiceFails(t *testing.T) {
	root := t.TempDir()
	var m Monitor
	require.NoError(t, m.Start(root, func(FileEvent) {}))
	defer m.Stop()

	assert.ErrorIs(t, m.Start(root, func(FileEvent) {}), ErrAlreadyActive)
}

func TestMonitorStopIsIdempotentAndJoins(t *testing.T) {
	root := t.TempDir()
	var m Monitor
	require.NoError(t, m.Start(root, func(FileEvent) {}))

	m.Stop()
	assert.False(t, m.IsActive())
	m.Stop() // must not block or panic
}
