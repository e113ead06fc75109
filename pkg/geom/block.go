package geom

// Block is a right rectangular prism: width along +X, height along +Y,
// depth along -Z, anchored at Origin (its bottom-front-left corner).
// PercentCovered is mutated by the layout engine while it places a
// parent's children and is never read again once layout for that
// parent is complete.
type Block struct {
	Origin         Vector3
	Width          float64
	Height         float64
	Depth          float64
	PercentCovered float64
}

// IsDefined reports whether all three dimensions are strictly positive.
func (b Block) IsDefined() bool {
	return b.Width > 0 && b.Height > 0 && b.Depth > 0
}

// OriginPlusHeight returns the origin offset by this block's height —
// the point at which a child block sitting on top of this one begins.
func (b Block) OriginPlusHeight() Vector3 {
	return b.Origin.Add(Vector3{Y: b.Height})
}

// XZBounds returns the minimum and maximum X and Z coordinates of this
// block's footprint. Depth grows along -Z, so MinZ = Origin.Z - Depth.
func (b Block) XZBounds() (minX, maxX, minZ, maxZ float64) {
	minX = b.Origin.X
	maxX = b.Origin.X + b.Width
	minZ = b.Origin.Z - b.Depth
	maxZ = b.Origin.Z
	return
}

// ContainsXZ reports whether other's footprint lies within b's
// footprint, in X and Z, to within eps (P4: layout containment).
func (b Block) ContainsXZ(other Block, eps float64) bool {
	bMinX, bMaxX, bMinZ, bMaxZ := b.XZBounds()
	oMinX, oMaxX, oMinZ, oMaxZ := other.XZBounds()
	return oMinX >= bMinX-eps && oMaxX <= bMaxX+eps &&
		oMinZ >= bMinZ-eps && oMaxZ <= bMaxZ+eps
}

// OverlapsXZ reports whether two blocks' footprints intersect with a
// positive area, beyond eps of slack (used to assert P5: no sibling
// overlap).
func (b Block) OverlapsXZ(other Block, eps float64) bool {
	bMinX, bMaxX, bMinZ, bMaxZ := b.XZBounds()
	oMinX, oMaxX, oMinZ, oMaxZ := other.XZBounds()

	overlapX := min(bMaxX, oMaxX) - max(bMinX, oMinX)
	overlapZ := min(bMaxZ, oMaxZ) - max(bMinZ, oMinZ)
	return overlapX > eps && overlapZ > eps
}

// UnionHeight returns a Block sharing b's origin, width, and depth (a
// bounding volume's footprint always matches its node's own block,
// since descendants are laid out within the parent's footprint), with
// height equal to b.Height plus the tallest of the given child
// bounding-box heights. Grounds C4 (bounding volumes).
func UnionHeight(b Block, childBoundingHeights []float64) Block {
	tallest := 0.0
	for _, h := range childBoundingHeights {
		if h > tallest {
			tallest = h
		}
	}
	return Block{
		Origin: b.Origin,
		Width:  b.Width,
		Height: b.Height + tallest,
		Depth:  b.Depth,
	}
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
