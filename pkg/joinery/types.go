package joinery

import (
	"fmt"
	"strings"

	"github.com/chazu/wafel/pkg/fault"
	"gonum.org/v1/gonum/spatial/r3"
)

// Edge is a pair of vertex indices.
type Edge [2]int

// Segment is a straight line piece between two points.
type Segment [2]r3.Vec

// Panel is a flat outline: vertices and the boundary edges joining them.
// The vertices are assumed to be coplanar.
type Panel struct {
	Vertices []r3.Vec `json:"vertices"`
	Edges    []Edge   `json:"edges"`
}

// Polygon returns a panel whose edges join pts in order and close the loop.
func Polygon(pts ...r3.Vec) Panel {
	p := Panel{Vertices: append([]r3.Vec(nil), pts...)}
	for i := range pts {
		p.Edges = append(p.Edges, Edge{i, (i + 1) % len(pts)})
	}
	return p
}

// check verifies that every edge references a vertex of the panel.
func (p Panel) check(field string, index int) error {
	for j, e := range p.Edges {
		for _, v := range e {
			if v < 0 || v >= len(p.Vertices) {
				return fault.ShapeAt(field, index, "edge %d references vertex %d of %d", j, v, len(p.Vertices))
			}
		}
	}
	return nil
}

// Placement selects where the locating circles sit along a joint.
type Placement int

const (
	PlaceUp Placement = iota
	PlaceMid
	PlaceDown
)

func (pl Placement) String() string {
	switch pl {
	case PlaceUp:
		return "up"
	case PlaceMid:
		return "mid"
	case PlaceDown:
		return "down"
	default:
		return fmt.Sprintf("Placement(%d)", int(pl))
	}
}

// ParsePlacement accepts "up", "mid" (or "midl", "middle") and "down".
func ParsePlacement(s string) (Placement, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up":
		return PlaceUp, nil
	case "mid", "midl", "middle":
		return PlaceMid, nil
	case "down":
		return PlaceDown, nil
	}
	return 0, fmt.Errorf("joinery: invalid circle placement %q, expected up, mid or down", s)
}

func (pl Placement) MarshalText() ([]byte, error) { return []byte(pl.String()), nil }

func (pl *Placement) UnmarshalText(b []byte) error {
	v, err := ParsePlacement(string(b))
	if err != nil {
		return err
	}
	*pl = v
	return nil
}

// Params controls the generated joints.
type Params struct {
	Thickness    float64   `json:"thickness" toml:"thickness" yaml:"thickness"`             // material thickness
	CircleRadius float64   `json:"circle_radius" toml:"circle_radius" yaml:"circle_radius"` // locating circle size
	TubeRadius   float64   `json:"tube_radius" toml:"tube_radius" yaml:"tube_radius"`       // bore radius
	Threshold    float64   `json:"threshold" toml:"threshold" yaml:"threshold"`             // long-edge factor on thickness
	Rounded      bool      `json:"rounded" toml:"rounded" yaml:"rounded"`
	Circle       bool      `json:"circle" toml:"circle" yaml:"circle"`
	Placement    Placement `json:"placement" toml:"placement" yaml:"placement"`
}

// DefaultParams returns the stock joint settings.
func DefaultParams() Params {
	return Params{
		Thickness:    0.01,
		CircleRadius: 0.01,
		TubeRadius:   0.05,
		Threshold:    16,
		Placement:    PlaceUp,
	}
}

// Validate rejects parameter sets no joint can be built from.
func (p Params) Validate() error {
	switch {
	case p.Thickness <= 0:
		return fault.Shape("thickness", "must be positive, got %g", p.Thickness)
	case p.Threshold < 0:
		return fault.Shape("threshold", "must not be negative, got %g", p.Threshold)
	case p.Circle && p.CircleRadius <= 0:
		return fault.Shape("circle_radius", "must be positive when circles are enabled, got %g", p.CircleRadius)
	case p.TubeRadius < 0:
		return fault.Shape("tube_radius", "must not be negative, got %g", p.TubeRadius)
	}
	return nil
}

// Input is one batch of panels with the segments that cut them.
// Obstacles and Tubes are optional; leaving them empty disables the
// feature.
type Input struct {
	Panels        []Panel
	VerticalEdges []Segment
	Obstacles     []Panel
	Tubes         []Segment
}

// PanelResult is the cut outline pair for one input panel.
type PanelResult struct {
	Index   int     `json:"index"` // position in Input.Panels
	Upper   Outline `json:"upper"`
	Lower   Outline `json:"lower"`
	Center  r3.Vec  `json:"center"`
	Normal  r3.Vec  `json:"normal"`
	Notches int     `json:"notches"`
	Seams   int     `json:"seams"`
	Bored   bool    `json:"bored"`
}

// Result holds one entry per surviving panel, in input order.
type Result struct {
	Panels []PanelResult `json:"panels"`
}

// UpperVertices returns the upper vertex list of every panel.
func (r *Result) UpperVertices() [][]r3.Vec {
	out := make([][]r3.Vec, len(r.Panels))
	for i, p := range r.Panels {
		out[i] = p.Upper.Vertices
	}
	return out
}

// UpperEdges returns the upper edge list of every panel.
func (r *Result) UpperEdges() [][]Edge {
	out := make([][]Edge, len(r.Panels))
	for i, p := range r.Panels {
		out[i] = p.Upper.Edges
	}
	return out
}

// LowerVertices returns the lower vertex list of every panel.
func (r *Result) LowerVertices() [][]r3.Vec {
	out := make([][]r3.Vec, len(r.Panels))
	for i, p := range r.Panels {
		out[i] = p.Lower.Vertices
	}
	return out
}

// LowerEdges returns the lower edge list of every panel.
func (r *Result) LowerEdges() [][]Edge {
	out := make([][]Edge, len(r.Panels))
	for i, p := range r.Panels {
		out[i] = p.Lower.Edges
	}
	return out
}

// Centers returns the vertex centroid of every panel.
func (r *Result) Centers() []r3.Vec {
	out := make([]r3.Vec, len(r.Panels))
	for i, p := range r.Panels {
		out[i] = p.Center
	}
	return out
}
