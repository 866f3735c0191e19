package toolpath

import (
	"sort"

	"github.com/chazu/wafel/pkg/fault"
	"github.com/chazu/wafel/pkg/spatial"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"
)

// Curve is one printed stroke with a layer height and flow multiplier per
// point. The three slices always have the same length.
type Curve struct {
	Points []r3.Vec
	Layers []float64
	Flows  []float64
}

// Len returns the number of points.
func (c Curve) Len() int { return len(c.Points) }

// MatchLongest pairs curves with their layer and flow streams. Shorter
// lists are extended by repeating their last element, first across curves
// and then point by point within each curve. An empty layer or flow list
// falls back to p.LayerHeight or p.FlowMultiplier.
func MatchLongest(curves [][]r3.Vec, layers, flows [][]float64, p Params) ([]Curve, error) {
	if len(curves) == 0 {
		return nil, fault.Shape("curves", "no curves given")
	}
	n := lo.Max([]int{len(curves), len(layers), len(flows)})
	curves = repeatLast(curves, n)
	layers = repeatLast(layers, n)
	flows = repeatLast(flows, n)

	out := make([]Curve, n)
	for i := range out {
		if len(curves[i]) == 0 {
			return nil, fault.ShapeAt("curves", i, "curve has no points")
		}
		l := orDefault(layers, i, p.LayerHeight)
		f := orDefault(flows, i, p.FlowMultiplier)
		m := lo.Max([]int{len(curves[i]), len(l), len(f)})
		out[i] = Curve{
			Points: repeatLast(append([]r3.Vec(nil), curves[i]...), m),
			Layers: repeatLast(l, m),
			Flows:  repeatLast(f, m),
		}
	}
	return out, nil
}

func orDefault(lists [][]float64, i int, def float64) []float64 {
	if i < len(lists) && len(lists[i]) > 0 {
		return append([]float64(nil), lists[i]...)
	}
	return []float64{def}
}

// repeatLast returns s extended to length n with copies of its last
// element. An empty s stays empty.
func repeatLast[T any](s []T, n int) []T {
	if len(s) == 0 || len(s) >= n {
		return s
	}
	out := append(make([]T, 0, n), s...)
	last := s[len(s)-1]
	for len(out) < n {
		out = append(out, last)
	}
	return out
}

// SortLayers orders curves by ascending mean Z. Curves with equal means
// keep their relative order.
func SortLayers(curves []Curve) {
	mean := lo.Map(curves, func(c Curve, _ int) float64 {
		return stat.Mean(lo.Map(c.Points, func(v r3.Vec, _ int) float64 { return v.Z }), nil)
	})
	idx := make([]int, len(curves))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return mean[idx[a]] < mean[idx[b]] })
	sorted := lo.Map(idx, func(i int, _ int) Curve { return curves[i] })
	copy(curves, sorted)
}

// SortPoints rotates every curve so it starts at the point nearest to the
// centroids of its neighbouring curves: the next two for the first curve,
// the previous two for the last, and the one on either side otherwise.
func SortPoints(curves []Curve) {
	n := len(curves)
	if n < 2 {
		return
	}
	centers := lo.Map(curves, func(c Curve, _ int) r3.Vec { return meanPoint(c.Points) })
	for j := range curves {
		var anchor r3.Vec
		switch {
		case j == 0:
			anchor = meanPoint(centers[1:min(3, n)])
		case j < n-1:
			anchor = meanPoint([]r3.Vec{centers[j-1], centers[j+1]})
		default:
			anchor = meanPoint(centers[max(0, j-2):j])
		}
		_, k, _, ok := spatial.New(curves[j].Points).Nearest(anchor)
		if !ok || k == 0 {
			continue
		}
		curves[j] = Curve{
			Points: rotate(curves[j].Points, k),
			Layers: rotate(curves[j].Layers, k),
			Flows:  rotate(curves[j].Flows, k),
		}
	}
}

// CloseShapes appends each curve's first point, layer and flow to its end.
func CloseShapes(curves []Curve) {
	for i, c := range curves {
		curves[i] = Curve{
			Points: append(c.Points[:len(c.Points):len(c.Points)], c.Points[0]),
			Layers: append(c.Layers[:len(c.Layers):len(c.Layers)], c.Layers[0]),
			Flows:  append(c.Flows[:len(c.Flows):len(c.Flows)], c.Flows[0]),
		}
	}
}

func rotate[T any](s []T, k int) []T {
	out := make([]T, 0, len(s))
	out = append(out, s[k:]...)
	return append(out, s[:k]...)
}

func meanPoint(pts []r3.Vec) r3.Vec {
	return r3.Vec{
		X: stat.Mean(lo.Map(pts, func(v r3.Vec, _ int) float64 { return v.X }), nil),
		Y: stat.Mean(lo.Map(pts, func(v r3.Vec, _ int) float64 { return v.Y }), nil),
		Z: stat.Mean(lo.Map(pts, func(v r3.Vec, _ int) float64 { return v.Z }), nil),
	}
}
