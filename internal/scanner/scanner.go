// Package scanner implements C2: a concurrent filesystem walk that
// builds a nodetree.Tree, then rolls up directory sizes, prunes
// zero-size nodes, and sorts every directory's children largest-first
// so the layout engine can consume the tree directly.
package scanner

import (
	"context"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/diskviz/treemap/internal/nodetree"
)

// Options tunes a single Scan call.
type Options struct {
	// Concurrency bounds how many filesystem entries are classified at
	// once. Zero or negative means the spec's default of 4.
	Concurrency int
}

// Scan walks root and returns the resulting tree. The worker pool is a
// golang.org/x/sync/errgroup with a concurrency limit acting as the
// bounded pool spec.md §4.2 calls for; tasks post further tasks with
// errgroup.Group.TryGo, and a task posted while every slot is taken
// runs inline in the posting goroutine instead, so a worker never
// blocks waiting for a slot while it holds one itself.
func Scan(ctx context.Context, root string, progress *Progress, opts Options) (*nodetree.Tree, error) {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	rootInfo, err := os.Stat(root)
	if err != nil || !rootInfo.IsDir() {
		return nil, ErrNotADirectory
	}

	tree := nodetree.New(nodetree.Payload{File: nodetree.FileInfo{
		Name: filepath.Base(filepath.Clean(root)),
		Kind: nodetree.Directory,
	}})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var walk func(path string, parent *nodetree.Node)
	walk = func(path string, parent *nodetree.Node) {
		task := func() error {
			select {
			case <-gctx.Done():
				return nil
			default:
			}

			info, err := os.Lstat(path)
			if err != nil {
				return nil // transient I/O error for this entry: swallow
			}

			switch {
			case info.Mode()&os.ModeSymlink != 0:
				// Not scannable: a symlink, whether to a file or a
				// directory. On Windows, Go's Lstat reports junctions
				// and most reparse points through the same bit, so this
				// one check also rejects reparse points (spec.md §4.2
				// step 4).
				return nil

			case info.IsDir():
				progress.directoriesScanned.Add(1)
				dirNode := parent.AppendChild(nodetree.Payload{File: nodetree.FileInfo{
					Name: info.Name(),
					Kind: nodetree.Directory,
				}})
				entries, err := os.ReadDir(path)
				if err != nil {
					return nil // permission denied: subtree stays empty
				}
				for _, e := range entries {
					walk(filepath.Join(path, e.Name()), dirNode)
				}
				return nil

			default:
				if info.Size() > 0 {
					progress.filesScanned.Add(1)
					progress.bytesProcessed.Add(info.Size())
					parent.AppendChild(nodetree.Payload{File: nodetree.FileInfo{
						Name:      info.Name(),
						Extension: filepath.Ext(info.Name()),
						Size:      info.Size(),
						Kind:      nodetree.Regular,
					}})
				}
				return nil
			}
		}
		if !g.TryGo(task) {
			_ = task() // every slot taken: run inline rather than block holding one
		}
	}

	if entries, err := os.ReadDir(root); err == nil {
		for _, e := range entries {
			walk(filepath.Join(root, e.Name()), tree.Root())
		}
	}

	g.Wait() // task funcs above never return a non-nil error

	select {
	case <-ctx.Done():
		return nil, ErrCancelled
	default:
	}

	rollup(tree.Root())
	prune(tree.Root())
	sortBySize(tree.Root())

	return tree, nil
}

// rollup adds every node's size into its parent's, post-order, so a
// directory's size ends up as the sum of its whole subtree.
func rollup(root *nodetree.Node) {
	for n := range root.PostOrder() {
		parent := n.Parent()
		if parent == nil {
			continue
		}
		if n.Payload.File.Size > 0 {
			parent.Payload.File.Size += n.Payload.File.Size
		}
	}
}

// prune detaches every zero-size node, looping to a fixpoint (rather
// than stopping after one pass) so that a directory which only becomes
// empty as a side effect of its own children being pruned is itself
// removed in the same call.
func prune(root *nodetree.Node) {
	for {
		var dead []*nodetree.Node
		for n := range root.PostOrder() {
			if n.Parent() == nil {
				continue // the tree root is never detached
			}
			if n.Payload.File.Size == 0 {
				dead = append(dead, n)
			}
		}
		if len(dead) == 0 {
			return
		}
		for _, n := range dead {
			n.DetachFromTree()
		}
	}
}

func sortBySize(root *nodetree.Node) {
	for n := range root.PreOrder() {
		if n.HasChildren() {
			n.SortChildren(nodetree.BySizeDescending)
		}
	}
}
