package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diskviz/treemap/internal/nodetree"
)

func TestTreeAssignsFixedRootBlock(t *testing.T) {
	tree := nodetree.New(nodetree.Payload{File: nodetree.FileInfo{Name: "root", Kind: nodetree.Directory, Size: 100}})
	root := tree.Root()
	root.AppendChild(nodetree.Payload{File: nodetree.FileInfo{Name: "a", Size: 100}})

	opts := NewOptions()
	Tree(root, opts)

	assert.Equal(t, opts.RootWidth, root.Payload.Block.Width)
	assert.Equal(t, opts.RootDepth, root.Payload.Block.Depth)
	assert.Equal(t, opts.BlockHeight, root.Payload.Block.Height)
	assert.Equal(t, 0.0, root.Payload.Block.Origin.X)
	assert.Equal(t, 0.0, root.Payload.Block.Origin.Y)
	assert.Equal(t, 0.0, root.Payload.Block.Origin.Z)
}

func TestSingleChildFillsParentMinusPadding(t *testing.T) {
	tree := nodetree.New(nodetree.Payload{File: nodetree.FileInfo{Name: "root", Kind: nodetree.Directory, Size: 10}})
	root := tree.Root()
	child := root.AppendChild(nodetree.Payload{File: nodetree.FileInfo{Name: "only", Size: 10}})

	opts := NewOptions()
	Tree(root, opts)

	b := child.Payload.Block
	require.True(t, b.IsDefined())
	assert.InDelta(t, opts.RootWidth-2*opts.MaxPadding, b.Width, 1e-9)
	assert.InDelta(t, opts.RootDepth-2*opts.MaxPadding, b.Depth, 1e-9)
	assert.Equal(t, opts.BlockHeight, b.Height)
	assert.Equal(t, opts.BlockHeight, b.Origin.Y) // sits atop the root's top face
}

func TestChildrenAreContainedAndDoNotOverlap(t *testing.T) {
	tree := nodetree.New(nodetree.Payload{File: nodetree.FileInfo{Name: "root", Kind: nodetree.Directory}})
	root := tree.Root()
	sizes := []int64{900, 500, 300, 150, 90, 40, 10}
	var kids []*nodetree.Node
	for i, sz := range sizes {
		kids = append(kids, root.AppendChild(nodetree.Payload{File: nodetree.FileInfo{Name: string(rune('a' + i)), Size: sz}}))
	}

	opts := NewOptions()
	Tree(root, opts)

	for _, k := range kids {
		require.True(t, k.Payload.Block.IsDefined(), "child %s must receive a defined block", k.Payload.File.Name)
		assert.True(t, root.Payload.Block.ContainsXZ(k.Payload.Block, 1e-6), "child %s footprint must lie within parent", k.Payload.File.Name)
	}

	for i := 0; i < len(kids); i++ {
		for j := i + 1; j < len(kids); j++ {
			assert.False(t, kids[i].Payload.Block.OverlapsXZ(kids[j].Payload.Block, 1e-6),
				"%s and %s must not overlap", kids[i].Payload.File.Name, kids[j].Payload.File.Name)
		}
	}
}

func TestLayoutRecursesIntoSubdirectories(t *testing.T) {
	tree := nodetree.New(nodetree.Payload{File: nodetree.FileInfo{Name: "root", Kind: nodetree.Directory}})
	root := tree.Root()
	dir := root.AppendChild(nodetree.Payload{File: nodetree.FileInfo{Name: "sub", Kind: nodetree.Directory, Size: 500}})
	dir.AppendChild(nodetree.Payload{File: nodetree.FileInfo{Name: "leaf", Size: 500}})
	root.AppendChild(nodetree.Payload{File: nodetree.FileInfo{Name: "other", Size: 500}})

	Tree(root, NewOptions())

	require.True(t, dir.Payload.Block.IsDefined())
	leaf := dir.FirstChild()
	require.True(t, leaf.Payload.Block.IsDefined())
	assert.True(t, dir.Payload.Block.ContainsXZ(leaf.Payload.Block, 1e-6))
}
