package geom

// Epsilon is the world-constant ray/plane intersection tolerance fixed
// by the spec: denominators and distances with magnitude at or below
// this are rejected as near-parallel or behind-the-origin hits.
const Epsilon = 1e-4

// Ray is a half-line in world space.
type Ray struct {
	Origin    Vector3
	Direction Vector3 // expected to be normalized
}

type face struct {
	point  Vector3 // a point on the plane
	normal Vector3
	// bounds of the rectangular face, expressed as the two in-plane axes
	minA, maxA float64 // X for top/front/back faces, Z for left/right
	minB, maxB float64 // Z for top faces, Y for front/back/left/right
	axisA      func(Vector3) float64
	axisB      func(Vector3) float64
}

func axisX(v Vector3) float64 { return v.X }
func axisY(v Vector3) float64 { return v.Y }
func axisZ(v Vector3) float64 { return v.Z }

// upwardFaces returns the five faces of b that can ever be struck by a
// ray from above or from the sides: top, front, back, left, right. The
// bottom face is deliberately omitted — it is never visible.
func upwardFaces(b Block) []face {
	minX, maxX, minZ, maxZ := b.XZBounds()
	minY, maxY := b.Origin.Y, b.Origin.Y+b.Height

	return []face{
		{ // top
			point: Vector3{X: b.Origin.X, Y: maxY, Z: b.Origin.Z}, normal: Vector3{Y: 1},
			minA: minX, maxA: maxX, minB: minZ, maxB: maxZ, axisA: axisX, axisB: axisZ,
		},
		{ // front (z = Origin.Z)
			point: b.Origin, normal: Vector3{Z: 1},
			minA: minX, maxA: maxX, minB: minY, maxB: maxY, axisA: axisX, axisB: axisY,
		},
		{ // back (z = Origin.Z - Depth)
			point: Vector3{X: b.Origin.X, Y: b.Origin.Y, Z: minZ}, normal: Vector3{Z: -1},
			minA: minX, maxA: maxX, minB: minY, maxB: maxY, axisA: axisX, axisB: axisY,
		},
		{ // left (x = Origin.X)
			point: b.Origin, normal: Vector3{X: -1},
			minA: minZ, maxA: maxZ, minB: minY, maxB: maxY, axisA: axisZ, axisB: axisY,
		},
		{ // right (x = Origin.X + Width)
			point: Vector3{X: maxX, Y: b.Origin.Y, Z: b.Origin.Z}, normal: Vector3{X: 1},
			minA: minZ, maxA: maxZ, minB: minY, maxB: maxY, axisA: axisZ, axisB: axisY,
		},
	}
}

// Intersect tests r against b's five upward-facing faces and returns
// the closest qualifying hit. ok is false if no face is struck within
// its rectangular bounds at a distance greater than Epsilon.
func Intersect(r Ray, b Block) (point Vector3, distance float64, ok bool) {
	if !b.IsDefined() {
		return Vector3{}, 0, false
	}

	bestT := 0.0
	found := false

	for _, f := range upwardFaces(b) {
		denom := r.Direction.Dot(f.normal)
		if denom > -Epsilon && denom < Epsilon {
			continue // ray parallel (or near-parallel) to the plane
		}

		t := f.point.Sub(r.Origin).Dot(f.normal) / denom
		if t <= Epsilon {
			continue // behind the ray origin, or too close to it
		}

		hit := r.Origin.Add(r.Direction.Scale(t))
		a, bb := f.axisA(hit), f.axisB(hit)
		if a < f.minA || a > f.maxA || bb < f.minB || bb > f.maxB {
			continue // outside the face's rectangular bounds
		}

		if !found || t < bestT {
			bestT = t
			point = hit
			found = true
		}
	}

	return point, bestT, found
}
