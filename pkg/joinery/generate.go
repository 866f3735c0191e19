package joinery

import (
	"math"

	"github.com/chazu/wafel/pkg/geom"
	"github.com/chazu/wafel/pkg/logx"
	"github.com/chazu/wafel/pkg/spatial"
	"gonum.org/v1/gonum/spatial/r3"
)

// CoplanarTolerance is the largest point-to-plane distance at which a
// vertical edge still counts as lying on a panel or obstacle plane.
const CoplanarTolerance = 0.001

// Generate cuts the joints for every panel of in. Panels with neither
// vertices nor edges are dropped from the result. Generate is a pure
// function of its arguments.
func Generate(in Input, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	for i, pn := range in.Panels {
		if err := pn.check("panels", i); err != nil {
			return nil, err
		}
	}

	obs := newObstacles(in.Obstacles)
	res := &Result{Panels: make([]PanelResult, 0, len(in.Panels))}
	for i, pn := range in.Panels {
		if len(pn.Vertices) == 0 && len(pn.Edges) == 0 {
			logx.Logger().Debug("joinery: dropping empty panel", "panel", i)
			continue
		}
		c := newCutter(i, pn, p, in.Tubes)
		if c.normalErr != nil {
			logx.Logger().Warn("joinery: panel normal undefined, passing outline through",
				"panel", i, "err", c.normalErr)
		} else {
			for _, v := range in.VerticalEdges {
				c.cut(v, obs.flips(v[0]))
			}
		}
		res.Panels = append(res.Panels, c.finish())
	}
	return res, nil
}

// obstacle is a panel that reverses the cutting direction of edges lying
// in its plane.
type obstacle struct {
	box    r3.Box
	origin r3.Vec
	n      r3.Vec
}

type obstacles []obstacle

func newObstacles(panels []Panel) obstacles {
	var out obstacles
	for i, pn := range panels {
		if len(pn.Vertices) < 3 {
			continue
		}
		v := pn.Vertices
		n, err := geom.TriangleNormal(v[0], v[len(v)/2], v[len(v)-1])
		if err != nil {
			logx.Logger().Warn("joinery: ignoring obstacle without a plane", "obstacle", i, "err", err)
			continue
		}
		out = append(out, obstacle{box: geom.Bounds(v), origin: v[0], n: n})
	}
	return out
}

// flips reports whether p lies inside the footprint of an obstacle and on
// its plane. The footprint is the obstacle's bounding box, not its polygon.
func (obs obstacles) flips(p r3.Vec) bool {
	for _, o := range obs {
		if geom.InsideXY(p, o.box) && math.Abs(geom.PlaneDistance(p, o.origin, o.n)) < CoplanarTolerance {
			return true
		}
	}
	return false
}

// cutter accumulates the outputs for a single panel.
type cutter struct {
	index  int
	src    Panel
	p      Params
	tubes  []Segment
	box    r3.Box
	center r3.Vec
	n      r3.Vec
	near   *spatial.Index

	normalErr error

	upper, lower       Outline
	delUpper, delLower []Edge
	notches, seams     int
	bored              bool
}

func newCutter(index int, pn Panel, p Params, tubes []Segment) *cutter {
	c := &cutter{
		index:  index,
		src:    pn,
		p:      p,
		tubes:  tubes,
		box:    geom.Bounds(pn.Vertices),
		center: geom.Centroid(pn.Vertices),
		upper:  newOutline(pn),
		lower:  newOutline(pn),
	}
	c.n, c.normalErr = geom.PanelNormal(pn.Vertices)
	if c.normalErr == nil {
		c.near = spatial.New(pn.Vertices)
	}
	return c
}

// cut applies one vertical edge to the panel.
func (c *cutter) cut(v Segment, flipped bool) {
	one, two := v[0], v[1]
	if two.Z < one.Z {
		one, two = two, one
	}
	if flipped {
		one, two = two, one
	}
	if math.Abs(geom.PlaneDistance(one, c.center, c.n)) >= CoplanarTolerance {
		return
	}
	if !geom.InsideFootprint(one, c.box) {
		return
	}

	length := r3.Norm(r3.Sub(two, one))
	if length > c.p.Thickness*c.p.Threshold {
		c.notch(one, two, length, flipped)
		return
	}

	// Short edges pass through as a plain seam.
	for _, o := range []*Outline{&c.upper, &c.lower} {
		base := o.Append(one, two)
		o.Link(base, base+1)
	}
	c.seams++
}

func (c *cutter) finish() PanelResult {
	c.upper.Edges = RemoveEdges(c.upper.Edges, c.delUpper)
	c.lower.Edges = RemoveEdges(c.lower.Edges, c.delLower)
	logx.Logger().Debug("joinery: panel done", "panel", c.index,
		"notches", c.notches, "seams", c.seams, "bored", c.bored)
	return PanelResult{
		Index:   c.index,
		Upper:   c.upper,
		Lower:   c.lower,
		Center:  c.center,
		Normal:  c.n,
		Notches: c.notches,
		Seams:   c.seams,
		Bored:   c.bored,
	}
}
