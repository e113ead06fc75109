// Package bounds implements C4: a post-order pass that gives every
// node a bounding box enclosing its own block and every descendant's
// bounding box, so the ray-picker (C5) can reject whole subtrees with
// a single test.
package bounds

import (
	"github.com/diskviz/treemap/internal/nodetree"
	"github.com/diskviz/treemap/pkg/geom"
)

// Assign walks root post-order and sets Payload.BoundingBox on every
// node. Call this once layout.Tree has assigned every node's Block.
func Assign(root *nodetree.Node) {
	for n := range root.PostOrder() {
		if !n.HasChildren() {
			n.Payload.BoundingBox = n.Payload.Block
			continue
		}

		heights := make([]float64, 0, n.ChildCount())
		for c := range n.Children() {
			heights = append(heights, c.Payload.BoundingBox.Height)
		}
		n.Payload.BoundingBox = geom.UnionHeight(n.Payload.Block, heights)
	}
}
