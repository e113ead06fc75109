// Package picker implements C5: picking the node under a ray cast from
// screen space, using each node's bounding box to prune whole subtrees
// before testing its own block.
package picker

import (
	"github.com/diskviz/treemap/internal/nodetree"
	"github.com/diskviz/treemap/pkg/geom"
)

// Camera is the only thing the picker needs from the camera: whether a
// world-space point lies in front of its near plane.
type Camera interface {
	InFrontOfNearPlane(p geom.Vector3) bool
}

// Filter is the visibility filter a caller applies before a node (and
// its subtree) is eligible to be picked.
type Filter struct {
	MinSize         int64
	OnlyDirectories bool
}

func (f Filter) visible(n *nodetree.Node) bool {
	if n.Payload.File.Size < f.MinSize {
		return false
	}
	if f.OnlyDirectories && n.Payload.File.Kind != nodetree.Directory {
		return false
	}
	return true
}

type candidate struct {
	node     *nodetree.Node
	point    geom.Vector3
	distance float64
}

// Pick walks root with a custom pre-order advance and returns the
// visible node whose block is struck by ray nearest to its origin, or
// ok=false if nothing qualifies. This work is meant to be timed and
// logged by the caller (C8's session façade does the logging).
func Pick(root *nodetree.Node, ray geom.Ray, cam Camera, filter Filter) (node *nodetree.Node, point geom.Vector3, ok bool) {
	var best *candidate

	var walk func(n *nodetree.Node)
	walk = func(n *nodetree.Node) {
		if !filter.visible(n) {
			return // skip this node and its whole subtree
		}

		if _, _, hitBox := geom.Intersect(ray, n.Payload.BoundingBox); !hitBox {
			return // bounding box miss: no descendant can be hit either
		}

		if p, dist, hitBlock := geom.Intersect(ray, n.Payload.Block); hitBlock && cam.InFrontOfNearPlane(p) {
			if best == nil || dist < best.distance {
				best = &candidate{node: n, point: p, distance: dist}
			}
		}

		// Descend regardless of whether this node's own block was hit:
		// a descendant may still qualify even when its ancestor's block
		// does not.
		for c := range n.Children() {
			walk(c)
		}
	}
	walk(root)

	if best == nil {
		return nil, geom.Vector3{}, false
	}
	return best.node, best.point, true
}
