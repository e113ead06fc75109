package bounds

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/diskviz/treemap/internal/nodetree"
	"github.com/diskviz/treemap/pkg/geom"
)

func block(h float64) geom.Block {
	return geom.Block{Width: 10, Depth: 10, Height: h}
}

func TestLeafBoundingBoxEqualsOwnBlock(t *testing.T) {
	tree := nodetree.New(nodetree.Payload{File: nodetree.FileInfo{Name: "root"}, Block: block(2)})
	root := tree.Root()

	Assign(root)

	assert.Equal(t, root.Payload.Block, root.Payload.BoundingBox)
}

func TestInternalBoundingBoxUsesTallestChild(t *testing.T) {
	tree := nodetree.New(nodetree.Payload{File: nodetree.FileInfo{Name: "root", Kind: nodetree.Directory}, Block: block(2)})
	root := tree.Root()
	a := root.AppendChild(nodetree.Payload{File: nodetree.FileInfo{Name: "a"}, Block: block(2)})
	b := root.AppendChild(nodetree.Payload{File: nodetree.FileInfo{Name: "b", Kind: nodetree.Directory}, Block: block(2)})
	b.AppendChild(nodetree.Payload{File: nodetree.FileInfo{Name: "b1"}, Block: block(2)})

	Assign(root)

	// b's bounding box is its own block's height (2) plus its tallest
	// child's bounding-box height (2) = 4.
	assert.InDelta(t, 4.0, b.Payload.BoundingBox.Height, 1e-9)
	assert.Equal(t, b.Payload.Block.Width, b.Payload.BoundingBox.Width)
	assert.Equal(t, b.Payload.Block.Depth, b.Payload.BoundingBox.Depth)

	// root's bounding box accounts for the deepest chain: its own 2 +
	// b's bounding-box height of 4 = 6.
	assert.InDelta(t, 6.0, root.Payload.BoundingBox.Height, 1e-9)
	assert.Equal(t, block(2).Height, a.Payload.BoundingBox.Height)
}
