package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/diskviz/treemap/internal/monitor"
	"github.com/diskviz/treemap/internal/nodetree"
)

func newTestReconciler(t *testing.T) (*Reconciler, string, *nodetree.Node) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "dir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "dir", "a.txt"), make([]byte, 10), 0o644))

	tree := nodetree.New(nodetree.Payload{File: nodetree.FileInfo{Name: filepath.Base(root), Kind: nodetree.Directory}})
	dir := tree.Root().AppendChild(nodetree.Payload{File: nodetree.FileInfo{Name: "dir", Kind: nodetree.Directory, Size: 10}})
	dir.AppendChild(nodetree.Payload{File: nodetree.FileInfo{Name: "a.txt", Size: 10}})
	tree.Root().Payload.File.Size = 10

	opts := DefaultOptions()
	opts.RateLimit = rate.Inf // no debounce delay in tests
	r := New(tree.Root(), root, opts)
	return r, root, tree.Root()
}

func waitForUpdate(t *testing.T, r *Reconciler) ResolvedEvent {
	t.Helper()
	select {
	case e := <-r.Updates():
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a resolved update")
		return ResolvedEvent{}
	}
}

func TestReconcilerAppliesCreated(t *testing.T) {
	r, fsRoot, root := newTestReconciler(t)
	require.NoError(t, os.WriteFile(filepath.Join(fsRoot, "dir", "b.txt"), make([]byte, 20), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	r.Submit(monitor.FileEvent{RelativePath: "dir/b.txt", Kind: monitor.Created})
	resolved := waitForUpdate(t, r)

	require.NotNil(t, resolved.Node)
	assert.Equal(t, "b.txt", resolved.Node.Payload.File.Name)
	assert.Equal(t, int64(20), resolved.Node.Payload.File.Size)

	dir := root.FirstChild()
	assert.Eventually(t, func() bool { return dir.Payload.File.Size == 30 }, time.Second, 5*time.Millisecond)
}

func TestReconcilerAppliesDeleted(t *testing.T) {
	r, fsRoot, root := newTestReconciler(t)
	require.NoError(t, os.Remove(filepath.Join(fsRoot, "dir", "a.txt")))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	r.Submit(monitor.FileEvent{RelativePath: "dir/a.txt", Kind: monitor.Deleted})
	resolved := waitForUpdate(t, r)

	require.NotNil(t, resolved.Node)
	assert.Nil(t, resolved.Node.Parent())

	dir := root.FirstChild()
	assert.Eventually(t, func() bool { return dir.Payload.File.Size == 0 }, time.Second, 5*time.Millisecond)
}

func TestReconcilerAppliesTouched(t *testing.T) {
	r, fsRoot, root := newTestReconciler(t)
	require.NoError(t, os.WriteFile(filepath.Join(fsRoot, "dir", "a.txt"), make([]byte, 50), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	r.Submit(monitor.FileEvent{RelativePath: "dir/a.txt", Kind: monitor.Touched})
	resolved := waitForUpdate(t, r)

	require.NotNil(t, resolved.Node)
	assert.Equal(t, int64(50), resolved.Node.Payload.File.Size)

	dir := root.FirstChild()
	assert.Eventually(t, func() bool { return dir.Payload.File.Size == 50 }, time.Second, 5*time.Millisecond)
}

func TestReconcilerIgnoresTouchedOnDirectory(t *testing.T) {
	r, _, root := newTestReconciler(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	r.Submit(monitor.FileEvent{RelativePath: "dir", Kind: monitor.Touched})
	resolved := waitForUpdate(t, r)

	require.NotNil(t, resolved.Node)
	assert.Equal(t, nodetree.Directory, resolved.Node.Payload.File.Kind)
	assert.Equal(t, int64(10), root.FirstChild().Payload.File.Size, "a directory Touch is a no-op")
}

func TestReconcilerDropsUnresolvableEvents(t *testing.T) {
	r, _, _ := newTestReconciler(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	r.Submit(monitor.FileEvent{RelativePath: "nosuch/dir/file.txt", Kind: monitor.Deleted})
	resolved := waitForUpdate(t, r)
	assert.Nil(t, resolved.Node)
}

func TestDrainUpdatesRespectsBudget(t *testing.T) {
	r, _, _ := newTestReconciler(t)
	for i := 0; i < 5; i++ {
		r.updates <- ResolvedEvent{FileEvent: monitor.FileEvent{RelativePath: "x"}}
	}

	drained := r.DrainUpdates(time.Second)
	assert.Len(t, drained, 5)
	assert.Empty(t, r.DrainUpdates(time.Millisecond))
}
