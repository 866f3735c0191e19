// Package spatial provides a nearest-neighbour index over 3D points that
// reports the position of the hit in the input slice.
package spatial

import (
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	_ kdtree.Interface  = kdPoints{}
	_ kdtree.Comparable = kdPoint{}
)

// Index answers nearest-point queries over a fixed point set.
type Index struct {
	tree *kdtree.Tree
	n    int
}

// New builds an index over pts. The slice is copied.
func New(pts []r3.Vec) *Index {
	kp := make(kdPoints, len(pts))
	for i, p := range pts {
		kp[i] = kdPoint{v: p, idx: i}
	}
	idx := &Index{n: len(pts)}
	if len(kp) > 0 {
		idx.tree = kdtree.New(kp, false)
	}
	return idx
}

// Len returns the number of indexed points.
func (x *Index) Len() int { return x.n }

// Nearest returns the indexed point closest to q, its position in the
// slice given to New and the Euclidean distance. ok is false for an empty
// index.
func (x *Index) Nearest(q r3.Vec) (p r3.Vec, index int, dist float64, ok bool) {
	if x.tree == nil {
		return r3.Vec{}, -1, 0, false
	}
	got, d2 := x.tree.Nearest(kdPoint{v: q, idx: -1})
	kp := got.(kdPoint)
	return kp.v, kp.idx, math.Sqrt(d2), true
}

type kdPoint struct {
	v   r3.Vec
	idx int
}

// Compare returns the signed distance of a from the plane through b
// perpendicular to dimension d.
func (a kdPoint) Compare(b kdtree.Comparable, d kdtree.Dim) float64 {
	return coord(a.v, int(d)) - coord(b.(kdPoint).v, int(d))
}

func (kdPoint) Dims() int { return 3 }

// Distance returns the squared Euclidean distance.
func (a kdPoint) Distance(b kdtree.Comparable) float64 {
	return r3.Norm2(r3.Sub(a.v, b.(kdPoint).v))
}

type kdPoints []kdPoint

func (k kdPoints) Index(i int) kdtree.Comparable { return k[i] }
func (k kdPoints) Len() int                      { return len(k) }

func (k kdPoints) Pivot(d kdtree.Dim) int {
	p := kdPlane{dim: int(d), points: k}
	return kdtree.Partition(p, kdtree.MedianOfMedians(p))
}

func (k kdPoints) Slice(start, end int) kdtree.Interface { return k[start:end] }

type kdPlane struct {
	dim    int
	points kdPoints
}

func (p kdPlane) Less(i, j int) bool {
	return coord(p.points[i].v, p.dim) < coord(p.points[j].v, p.dim)
}
func (p kdPlane) Swap(i, j int) { p.points[i], p.points[j] = p.points[j], p.points[i] }
func (p kdPlane) Len() int      { return len(p.points) }
func (p kdPlane) Slice(start, end int) kdtree.SortSlicer {
	p.points = p.points[start:end]
	return p
}

func coord(v r3.Vec, d int) float64 {
	switch d {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}
