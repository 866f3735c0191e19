package joinery

import (
	"math"

	"github.com/chazu/wafel/pkg/geom"
	"github.com/chazu/wafel/pkg/logx"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	sin60 = 0.8660254037844386
	sin30 = 0.5

	circleSteps = 12
	boreSteps   = 24
)

// joint is where a notch meets the panel boundary near one edge end.
type joint struct {
	l, r   int    // boundary vertices kept on the +dirx and -dirx side
	lz, rz r3.Vec // height-compensated points towards r and l
	cut    []Edge // boundary edges replaced by the notch
}

// notch cuts a slot for a long vertical edge from one (bottom of the cut)
// to two.
func (c *cutter) notch(one, two r3.Vec, length float64, flipped bool) {
	diry := r3.Scale(1/length, r3.Sub(two, one))
	unitx := geom.RotateAbout(diry, c.n, math.Pi/2)
	dirx := r3.Scale(c.p.Thickness/2, unitx)

	lo, ok := c.joint(one, dirx, diry)
	if !ok {
		return
	}
	hi, ok := c.joint(two, dirx, diry)
	if !ok {
		return
	}
	c.delLower = append(c.delLower, lo.cut...)
	c.delUpper = append(c.delUpper, hi.cut...)

	mid := r3.Add(two, r3.Scale(0.5, r3.Sub(one, two)))
	if c.p.Rounded {
		c.roundedSlot(mid, dirx, diry, lo, hi)
	} else {
		c.squareSlot(mid, dirx, lo, hi)
	}
	c.notches++

	if c.p.Circle {
		c.circles(one, two, diry, unitx, flipped)
	}
	if len(c.tubes) > 0 && !c.bored {
		c.bore()
	}
}

// joint finds the boundary vertex nearest to at, its two neighbours and
// the edges joining them. ok is false when the nearest vertex does not sit
// between two boundary edges.
func (c *cutter) joint(at, dirx, diry r3.Vec) (j joint, ok bool) {
	_, near, _, found := c.near.Nearest(at)
	if !found {
		return joint{}, false
	}
	var nb []int
	for _, e := range c.src.Edges {
		if e[0] != near && e[1] != near {
			continue
		}
		for _, t := range e {
			if t != near {
				nb = append(nb, t)
			}
		}
		j.cut = append(j.cut, e)
	}
	if len(nb) < 2 {
		logx.Logger().Warn("joinery: no boundary pair at joint, skipping notch",
			"panel", c.index, "vertex", near, "neighbours", len(nb))
		return joint{}, false
	}

	v := c.src.Vertices
	a := r3.Norm(r3.Add(r3.Sub(v[nb[0]], at), dirx))
	b := r3.Norm(r3.Sub(r3.Sub(v[nb[0]], at), dirx))
	if a > b {
		j.l, j.r = nb[0], nb[1]
	} else {
		j.l, j.r = nb[1], nb[0]
	}
	j.rz = c.interpolate(at, j.l, dirx, diry)
	j.lz = c.interpolate(at, j.r, r3.Scale(-1, dirx), diry)
	return j, true
}

// interpolate slides the slot wall at offset off from at along diry until
// it meets the boundary line from at towards vertex k.
func (c *cutter) interpolate(at r3.Vec, k int, off, diry r3.Vec) r3.Vec {
	wall := r3.Add(at, off)
	p, _, err := geom.ClosestPoints(at, c.src.Vertices[k], wall, r3.Sub(wall, diry))
	if err != nil {
		return c.src.Vertices[k]
	}
	return p
}

func (c *cutter) squareSlot(mid, dirx r3.Vec, lo, hi joint) {
	left, right := r3.Sub(mid, dirx), r3.Add(mid, dirx)

	base := c.lower.Append(lo.rz, right, left, lo.lz)
	c.lower.Link(lo.l, base)
	c.lower.Link(base+3, lo.r)
	c.lower.Chain(base, 4)

	base = c.upper.Append(hi.lz, left, right, hi.rz)
	c.upper.Link(hi.l, base+3)
	c.upper.Link(base, hi.r)
	c.upper.Chain(base, 4)
}

// roundedSlot cuts a slot whose end at mid is rounded over a third of the
// material thickness.
func (c *cutter) roundedSlot(mid, dirx, diry r3.Vec, lo, hi joint) {
	t3 := c.p.Thickness / 3
	y1 := r3.Scale(t3, diry)
	y2 := r3.Scale(t3*sin30, diry)
	y3 := r3.Scale(t3*(1-sin60), diry)
	x1 := dirx
	x2 := r3.Add(r3.Scale(1.0/3, dirx), r3.Scale(2*sin60/3, dirx))
	x3 := r3.Add(r3.Scale(1.0/3, dirx), r3.Scale(2*sin30/3, dirx))
	x4 := r3.Scale(1.0/3, dirx)

	// profile returns the rounded end, walking from -dirx to +dirx, pushed
	// back from mid along sign*diry.
	profile := func(sign float64) []r3.Vec {
		at := func(y, x r3.Vec, xs float64) r3.Vec {
			return r3.Add(mid, r3.Add(r3.Scale(sign, y), r3.Scale(xs, x)))
		}
		return []r3.Vec{
			at(y1, x1, -1), at(y2, x2, -1), at(y3, x3, -1),
			at(r3.Vec{}, x4, -1), at(r3.Vec{}, x4, 1),
			at(y3, x3, 1), at(y2, x2, 1), at(y1, x1, 1),
		}
	}

	base := c.lower.Append(lo.rz)
	c.lower.Append(profile(-1)...)
	c.lower.Append(lo.lz)
	c.lower.Link(lo.l, base)
	c.lower.Link(base+9, lo.r)
	c.lower.Link(base+8, base)
	c.lower.Chain(base+1, 8)
	c.lower.Link(base+9, base+1)

	base = c.upper.Append(hi.lz)
	c.upper.Append(profile(1)...)
	c.upper.Append(hi.rz)
	c.upper.Link(hi.l, base+9)
	c.upper.Link(base, hi.r)
	c.upper.Chain(base, 10)
}

// circles adds two small locating circles beside the joint to both
// outputs.
func (c *cutter) circles(one, two, diry, unitx r3.Vec, flipped bool) {
	r := c.p.CircleRadius
	var anchor r3.Vec
	switch {
	case c.p.Placement == PlaceMid:
		p, err := geom.LinePlane(one, two, r3.Vec{}, r3.Vec{Z: -1})
		if err != nil {
			logx.Logger().Warn("joinery: joint parallel to ground, skipping circles", "panel", c.index)
			return
		}
		anchor = p
	case (c.p.Placement == PlaceUp) != flipped:
		anchor = r3.Sub(two, r3.Scale(2*r, diry))
	default:
		anchor = r3.Add(one, r3.Scale(2*r, diry))
	}

	rot := geom.AlignZ(c.n)
	ring := geom.RingXY(circleSteps, r/4)
	pts := make([]r3.Vec, 0, 2*circleSteps)
	for _, side := range []float64{1, -1} {
		center := r3.Add(anchor, r3.Scale(side*r, unitx))
		for _, q := range ring {
			pts = append(pts, r3.Add(rot.Rotate(q), center))
		}
	}
	for _, o := range []*Outline{&c.upper, &c.lower} {
		base := o.Append(pts...)
		o.Ring(base, circleSteps)
		o.Ring(base+circleSteps, circleSteps)
	}
}

// bore adds one circular hole where the first tube crossing the panel
// footprint meets the panel plane.
func (c *cutter) bore() {
	for _, t := range c.tubes {
		at, err := geom.LinePlane(t[0], t[1], c.center, c.n)
		if err != nil || !geom.InsideFootprint(at, c.box) {
			continue
		}
		rot := geom.AlignZ(c.n)
		ring := geom.RingXY(boreSteps, c.p.TubeRadius)
		pts := make([]r3.Vec, len(ring))
		for i, q := range ring {
			pts[i] = r3.Add(rot.Rotate(q), at)
		}
		for _, o := range []*Outline{&c.upper, &c.lower} {
			base := o.Append(pts...)
			o.Ring(base, boreSteps)
		}
		c.bored = true
		return
	}
}
