package joinery

import "gonum.org/v1/gonum/spatial/r3"

// Outline is a growable vertex buffer with edges into it. New points are
// appended and addressed by the index Append hands back, so edges never
// need offset arithmetic.
type Outline struct {
	Vertices []r3.Vec `json:"vertices"`
	Edges    []Edge   `json:"edges"`
}

func newOutline(p Panel) Outline {
	return Outline{
		Vertices: append([]r3.Vec(nil), p.Vertices...),
		Edges:    append([]Edge(nil), p.Edges...),
	}
}

// Append adds pts and returns the index of the first one.
func (o *Outline) Append(pts ...r3.Vec) int {
	base := len(o.Vertices)
	o.Vertices = append(o.Vertices, pts...)
	return base
}

// Link adds an edge between two vertex indices.
func (o *Outline) Link(a, b int) {
	o.Edges = append(o.Edges, Edge{a, b})
}

// Chain links base, base+1, ..., base+n-1 in order.
func (o *Outline) Chain(base, n int) {
	for i := 0; i < n-1; i++ {
		o.Link(base+i, base+i+1)
	}
}

// Ring chains n vertices from base and closes the loop.
func (o *Outline) Ring(base, n int) {
	o.Chain(base, n)
	o.Link(base, base+n-1)
}

// IsEmpty reports whether the outline has no vertices.
func (o *Outline) IsEmpty() bool { return len(o.Vertices) == 0 }

// RemoveEdge returns edges without e. The input slice is not modified.
// Removal is idempotent: removing an edge that is not present returns an
// equal copy.
func RemoveEdge(edges []Edge, e Edge) []Edge {
	out := make([]Edge, 0, len(edges))
	for _, x := range edges {
		if x != e {
			out = append(out, x)
		}
	}
	return out
}

// RemoveEdges removes every edge listed in del.
func RemoveEdges(edges, del []Edge) []Edge {
	out := append([]Edge(nil), edges...)
	for _, e := range del {
		out = RemoveEdge(out, e)
	}
	return out
}
