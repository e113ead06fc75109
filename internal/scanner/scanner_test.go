package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}

func TestScanRejectsNonDirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	writeFile(t, file, 10)

	_, err := Scan(context.Background(), file, &Progress{}, Options{})
	assert.ErrorIs(t, err, ErrNotADirectory)
}

func TestScanRejectsMissingPath(t *testing.T) {
	_, err := Scan(context.Background(), filepath.Join(t.TempDir(), "missing"), &Progress{}, Options{})
	assert.ErrorIs(t, err, ErrNotADirectory)
}

func TestScanBuildsRolledUpPrunedSortedTree(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "big"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(root, "small"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(root, "empty"), 0o755))
	writeFile(t, filepath.Join(root, "big", "a.bin"), 900)
	writeFile(t, filepath.Join(root, "small", "b.bin"), 100)
	writeFile(t, filepath.Join(root, "zero.bin"), 0)

	progress := &Progress{}
	tree, err := Scan(context.Background(), root, progress, Options{Concurrency: 2})
	require.NoError(t, err)

	r := tree.Root()
	require.Equal(t, 2, r.ChildCount(), "empty dir and the zero-byte file must be pruned/skipped")

	first := r.FirstChild()
	second := first.NextSibling()
	assert.Equal(t, "big", first.Payload.File.Name)
	assert.Equal(t, int64(900), first.Payload.File.Size)
	assert.Equal(t, "small", second.Payload.File.Name)
	assert.Equal(t, int64(100), second.Payload.File.Size)

	snap := progress.Snapshot()
	assert.Equal(t, int64(2), snap.FilesScanned)
	assert.Equal(t, int64(1000), snap.BytesProcessed)
	assert.GreaterOrEqual(t, snap.DirectoriesScanned, int64(2))
}

func TestScanSkipsSymlinks(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "real")
	require.NoError(t, os.Mkdir(target, 0o755))
	writeFile(t, filepath.Join(target, "f.bin"), 50)

	link := filepath.Join(root, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported in this environment: %v", err)
	}

	tree, err := Scan(context.Background(), root, &Progress{}, Options{})
	require.NoError(t, err)

	require.Equal(t, 1, tree.Root().ChildCount())
	assert.Equal(t, "real", tree.Root().FirstChild().Payload.File.Name)
}

func TestScanCancellation(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 50; i++ {
		dir := filepath.Join(root, "d", fmt.Sprintf("sub%02d", i))
		require.NoError(t, os.MkdirAll(dir, 0o755))
		writeFile(t, filepath.Join(dir, "f.bin"), 10)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // already cancelled before the scan even starts

	_, err := Scan(ctx, root, &Progress{}, Options{Concurrency: 1})
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestScanHonorsConcurrencyDefault(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.bin"), 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tree, err := Scan(ctx, root, &Progress{}, Options{}) // Concurrency unset
	require.NoError(t, err)
	assert.Equal(t, 1, tree.Root().ChildCount())
}
