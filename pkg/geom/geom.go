// Package geom provides the small set of vector, plane and line helpers the
// joinery and tool-path code needs, on top of gonum's r3.
package geom

import (
	"math"
	"sort"

	"github.com/chazu/wafel/pkg/fault"
	"gonum.org/v1/gonum/spatial/r3"
)

// Eps is the threshold below which lengths and denominators count as zero.
const Eps = 1e-12

// Up is the world Z axis.
var Up = r3.Vec{Z: 1}

// Bounds returns the axis-aligned bounding box of pts. An empty slice
// yields the zero box.
func Bounds(pts []r3.Vec) r3.Box {
	if len(pts) == 0 {
		return r3.Box{}
	}
	b := r3.Box{Min: pts[0], Max: pts[0]}
	for _, p := range pts[1:] {
		b.Min = r3.Vec{X: math.Min(b.Min.X, p.X), Y: math.Min(b.Min.Y, p.Y), Z: math.Min(b.Min.Z, p.Z)}
		b.Max = r3.Vec{X: math.Max(b.Max.X, p.X), Y: math.Max(b.Max.Y, p.Y), Z: math.Max(b.Max.Z, p.Z)}
	}
	return b
}

// Centroid returns the arithmetic mean of pts.
func Centroid(pts []r3.Vec) r3.Vec {
	var sum r3.Vec
	for _, p := range pts {
		sum = r3.Add(sum, p)
	}
	if len(pts) == 0 {
		return sum
	}
	return r3.Scale(1/float64(len(pts)), sum)
}

// InsideFootprint reports whether p lies strictly inside b in X and Y and
// within b (inclusive) in Z.
func InsideFootprint(p r3.Vec, b r3.Box) bool {
	return p.X < b.Max.X && p.X > b.Min.X &&
		p.Y < b.Max.Y && p.Y > b.Min.Y &&
		p.Z <= b.Max.Z && p.Z >= b.Min.Z
}

// InsideXY reports whether p lies strictly inside b in X and Y.
func InsideXY(p r3.Vec, b r3.Box) bool {
	return p.X < b.Max.X && p.X > b.Min.X && p.Y < b.Max.Y && p.Y > b.Min.Y
}

// TriangleNormal returns the unit normal of the triangle a, b, c.
func TriangleNormal(a, b, c r3.Vec) (r3.Vec, error) {
	n := r3.Cross(r3.Sub(a, b), r3.Sub(b, c))
	l := r3.Norm(n)
	if l < Eps {
		return r3.Vec{}, fault.Degenerate("triangle normal", "points are collinear or coincident")
	}
	return r3.Scale(1/l, n), nil
}

// PanelNormal estimates the plane normal of a panel from its first, middle
// and last vertex. The samples are ordered by coordinate sum so the result
// does not depend on winding, and the normal is flipped into the X >= 0
// half-space.
func PanelNormal(pts []r3.Vec) (r3.Vec, error) {
	if len(pts) < 3 {
		return r3.Vec{}, fault.Degenerate("panel normal", "fewer than three vertices")
	}
	sel := []r3.Vec{pts[0], pts[len(pts)/2], pts[len(pts)-1]}
	sort.SliceStable(sel, func(i, j int) bool {
		return sel[i].X+sel[i].Y+sel[i].Z < sel[j].X+sel[j].Y+sel[j].Z
	})
	n, err := TriangleNormal(sel[0], sel[1], sel[2])
	if err != nil {
		return r3.Vec{}, err
	}
	if n.X < 0 {
		n = r3.Scale(-1, n)
	}
	return n, nil
}

// PlaneDistance returns the signed distance of p from the plane through
// origin with unit normal n.
func PlaneDistance(p, origin, n r3.Vec) float64 {
	return r3.Dot(r3.Sub(p, origin), n)
}

// RotateAbout rotates p by angle radians about the unit axis through the
// origin.
func RotateAbout(p, axis r3.Vec, angle float64) r3.Vec {
	return r3.NewRotation(angle, axis).Rotate(p)
}

// AlignZ returns the rotation that carries the world Z axis onto the unit
// vector n. Shapes built in the XY plane are moved into the plane with
// normal n by it.
func AlignZ(n r3.Vec) r3.Rotation {
	axis := r3.Cross(Up, n)
	s := r3.Norm(axis)
	c := r3.Dot(Up, n)
	if s < Eps {
		if c >= 0 {
			return r3.NewRotation(0, Up)
		}
		return r3.NewRotation(math.Pi, r3.Vec{X: 1})
	}
	return r3.NewRotation(math.Atan2(s, c), r3.Scale(1/s, axis))
}

// ClosestPoints returns the closest points between the infinite line
// through a0, a1 and the infinite line through b0, b1: first the point on
// line a, then the point on line b. Parallel or zero-length lines are
// degenerate.
func ClosestPoints(a0, a1, b0, b1 r3.Vec) (pa, pb r3.Vec, err error) {
	d1 := r3.Sub(a1, a0)
	d2 := r3.Sub(b1, b0)
	r := r3.Sub(a0, b0)
	a := r3.Dot(d1, d1)
	e := r3.Dot(d2, d2)
	if a < Eps || e < Eps {
		return r3.Vec{}, r3.Vec{}, fault.Degenerate("line-line", "zero-length line")
	}
	b := r3.Dot(d1, d2)
	c := r3.Dot(d1, r)
	f := r3.Dot(d2, r)
	denom := a*e - b*b
	if math.Abs(denom) < Eps*a*e {
		return r3.Vec{}, r3.Vec{}, fault.Degenerate("line-line", "lines are parallel")
	}
	s := (b*f - c*e) / denom
	t := (a*f - b*c) / denom
	return r3.Add(a0, r3.Scale(s, d1)), r3.Add(b0, r3.Scale(t, d2)), nil
}

// LinePlane intersects the infinite line through p0, p1 with the plane
// through origin with normal n.
func LinePlane(p0, p1, origin, n r3.Vec) (r3.Vec, error) {
	d := r3.Sub(p1, p0)
	denom := r3.Dot(n, d)
	if math.Abs(denom) < Eps {
		return r3.Vec{}, fault.Degenerate("line-plane", "line is parallel to plane")
	}
	t := r3.Dot(n, r3.Sub(origin, p0)) / denom
	return r3.Add(p0, r3.Scale(t, d)), nil
}

// RingXY returns steps points on a circle of the given radius in the XY
// plane, starting on +Y and advancing clockwise when seen from +Z.
func RingXY(steps int, radius float64) []r3.Vec {
	pts := make([]r3.Vec, steps)
	for i := range pts {
		a := 2 * math.Pi * float64(i) / float64(steps)
		pts[i] = r3.Vec{X: math.Sin(a) * radius, Y: math.Cos(a) * radius}
	}
	return pts
}
