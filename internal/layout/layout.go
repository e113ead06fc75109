// Package layout implements C3: the squarified treemap algorithm that
// turns a scanned nodetree.Tree into a world of geom.Block footprints,
// one strip at a time, largest children first.
package layout

import (
	"github.com/diskviz/treemap/internal/nodetree"
	"github.com/diskviz/treemap/pkg/geom"
)

// Defaults match spec.md §6's world constants.
const (
	DefaultRootWidth    = 1000.0
	DefaultRootDepth    = 1000.0
	DefaultBlockHeight  = 2.0
	DefaultPaddingRatio = 0.9
	DefaultMaxPadding   = 0.75
)

// Options tunes the layout pass. A zero Options is not usable directly;
// call NewOptions to get one seeded with the spec's defaults.
type Options struct {
	RootWidth    float64
	RootDepth    float64
	BlockHeight  float64
	PaddingRatio float64
	MaxPadding   float64
}

func NewOptions() Options {
	return Options{
		RootWidth:    DefaultRootWidth,
		RootDepth:    DefaultRootDepth,
		BlockHeight:  DefaultBlockHeight,
		PaddingRatio: DefaultPaddingRatio,
		MaxPadding:   DefaultMaxPadding,
	}
}

// Tree assigns root a fixed horizontal slab at the world origin, then
// squarifies every directory's children onto its parent's top face,
// recursively.
func Tree(root *nodetree.Node, opts Options) {
	root.Payload.Block = geom.Block{
		Origin: geom.Vector3{},
		Width:  opts.RootWidth,
		Depth:  opts.RootDepth,
		Height: opts.BlockHeight,
	}
	layoutChildren(root, opts)
}

func layoutChildren(parent *nodetree.Node, opts Options) {
	var children []*nodetree.Node
	total := 0.0
	for c := range parent.Children() {
		children = append(children, c)
		total += float64(c.Payload.File.Size)
	}
	if len(children) == 0 || total <= 0 {
		return
	}

	p := parent.Payload.Block
	totalArea := p.Width * p.Depth
	shortSide := p.Width
	horizontal := true
	if p.Depth < p.Width {
		shortSide = p.Depth
		horizontal = false
	}

	parent.Payload.Block.PercentCovered = 0

	i := 0
	for i < len(children) {
		strip := []*nodetree.Node{children[i]}
		i++
		for i < len(children) {
			candidate := append(append([]*nodetree.Node{}, strip...), children[i])
			if worstRatio(candidate, shortSide, totalArea, total) > worstRatio(strip, shortSide, totalArea, total) {
				break
			}
			strip = candidate
			i++
		}
		flushStrip(parent, strip, shortSide, totalArea, total, horizontal, opts)
	}

	for _, c := range children {
		if c.HasChildren() {
			layoutChildren(c, opts)
		}
	}
}

// worstRatio computes the worst (largest) width/depth aspect ratio
// among the rectangles the members of strip would receive if it were
// flushed right now, per spec.md §4.3 step 3.
func worstRatio(strip []*nodetree.Node, stripFixedLength, totalArea, total float64) float64 {
	if stripFixedLength <= 0 {
		return 0
	}
	s := 0.0
	for _, n := range strip {
		s += float64(n.Payload.File.Size)
	}
	if s <= 0 {
		return 0
	}
	stripArea := (s / total) * totalArea
	thickness := stripArea / stripFixedLength

	worst := 0.0
	for _, n := range strip {
		segLen := (float64(n.Payload.File.Size) / s) * stripFixedLength
		if segLen <= 0 {
			continue
		}
		ratio := thickness / segLen
		if segLen > thickness {
			ratio = segLen / thickness
		}
		if ratio > worst {
			worst = ratio
		}
	}
	return worst
}

// flushStrip assigns each member of strip a block proportional to its
// size fraction of the strip and advances parent's PercentCovered by
// the strip's area fraction. It does not recurse: layoutChildren lays
// out directory members' own children after every strip is flushed.
func flushStrip(parent *nodetree.Node, strip []*nodetree.Node, shortSide, totalArea, total float64, horizontal bool, opts Options) {
	s := 0.0
	for _, n := range strip {
		s += float64(n.Payload.File.Size)
	}
	stripArea := (s / total) * totalArea
	thickness := stripArea / shortSide

	p := parent.Payload.Block
	longLen := p.Depth // horizontal strips stack along depth
	if !horizontal {
		longLen = p.Width
	}
	offset := p.PercentCovered * longLen

	cursor := 0.0
	for _, child := range strip {
		segLen := (float64(child.Payload.File.Size) / s) * shortSide

		var raw geom.Block
		if horizontal {
			// Strips span the full width; successive strips stack
			// along depth, which grows toward -Z.
			raw = geom.Block{
				Origin: geom.Vector3{X: p.Origin.X + cursor, Y: p.Origin.Y + p.Height, Z: p.Origin.Z - offset},
				Width:  segLen,
				Depth:  thickness,
				Height: opts.BlockHeight,
			}
		} else {
			// Strips span the full depth; successive strips stack
			// along width, growing toward +X.
			raw = geom.Block{
				Origin: geom.Vector3{X: p.Origin.X + offset, Y: p.Origin.Y + p.Height, Z: p.Origin.Z - cursor},
				Width:  thickness,
				Depth:  segLen,
				Height: opts.BlockHeight,
			}
		}
		cursor += segLen
		child.Payload.Block = applyPadding(raw, opts)
	}

	parent.Payload.Block.PercentCovered += stripArea / totalArea
}

// applyPadding shrinks b by opts.PaddingRatio on each side (linearly,
// so area shrinks by PaddingRatio^2), capping the absolute inset per
// side at opts.MaxPadding so large blocks don't get swallowed by gaps.
func applyPadding(b geom.Block, opts Options) geom.Block {
	insetW := b.Width * (1 - opts.PaddingRatio) / 2
	if insetW > opts.MaxPadding {
		insetW = opts.MaxPadding
	}
	insetD := b.Depth * (1 - opts.PaddingRatio) / 2
	if insetD > opts.MaxPadding {
		insetD = opts.MaxPadding
	}

	return geom.Block{
		Origin: geom.Vector3{X: b.Origin.X + insetW, Y: b.Origin.Y, Z: b.Origin.Z - insetD},
		Width:  b.Width - 2*insetW,
		Depth:  b.Depth - 2*insetD,
		Height: b.Height,
	}
}
