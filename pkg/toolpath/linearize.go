package toolpath

import (
	"fmt"
	"math"

	"github.com/chazu/wafel/pkg/geom"
	"github.com/chazu/wafel/pkg/logx"
	"gonum.org/v1/gonum/spatial/r3"
)

// Edge is a pair of indices into Program.Vertices.
type Edge [2]int

// MoveKind identifies one line of the motion program.
type MoveKind int

const (
	MoveStart     MoveKind = iota // first positioning move, G1 with feed
	MoveExtrude                   // G1 with cumulative E
	MoveTravel                    // G1 with feed, no extrusion
	MoveUnretract                 // G1 E or G11
	MoveRetract                   // G0 E or G10
)

var moveKindNames = [...]string{"start", "extrude", "travel", "unretract", "retract"}

func (k MoveKind) String() string {
	if int(k) < len(moveKindNames) {
		return moveKindNames[k]
	}
	return fmt.Sprintf("MoveKind(%d)", int(k))
}

// Move is a single motion command. Pos is unused by retract moves; Feed
// only applies to start and travel moves; E is the cumulative extruder
// position after the move.
type Move struct {
	Kind MoveKind
	Pos  r3.Vec
	Feed float64
	E    float64
}

// Stats summarizes a program.
type Stats struct {
	Extruded     float64 `json:"extruded"` // filament length
	Volume       float64 `json:"volume"`
	PathLength   float64 `json:"path_length"`
	TravelLength float64 `json:"travel_length"`
	Min          r3.Vec  `json:"min"`
	Max          r3.Vec  `json:"max"`
}

// Info renders the stats as a human-readable block.
func (s Stats) Info() string {
	return fmt.Sprintf("Bounding Box:\n"+
		"\tmin\tX: %.1f\tY: %.1f\tZ: %.1f\n"+
		"\tmax\tX: %.1f\tY: %.1f\tZ: %.1f\n"+
		"Extruded Filament: %.2f\n"+
		"Extruded Volume: %.2f\n"+
		"Printed Path Length: %.2f\n"+
		"Travel Length: %.2f",
		s.Min.X, s.Min.Y, s.Min.Z, s.Max.X, s.Max.Y, s.Max.Z,
		s.Extruded, s.Volume, s.PathLength, s.TravelLength)
}

// Program is a linearized tool path. Printed and travel edges index the
// same vertex list; TravelEdges is empty in continuous mode.
type Program struct {
	Params       Params // effective parameters, Mode included
	Curves       []Curve
	Moves        []Move
	Vertices     []r3.Vec
	PrintedEdges []Edge
	TravelEdges  []Edge
	Stats        Stats
}

// Linearize turns curves into a motion program. layers and flows hold a
// layer height and flow multiplier per curve point and are broadcast with
// MatchLongest. A single curve is always printed in continuous mode.
func Linearize(curves [][]r3.Vec, layers, flows [][]float64, p Params) (*Program, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	cs, err := MatchLongest(curves, layers, flows, p)
	if err != nil {
		return nil, err
	}
	if len(cs) == 1 && p.Mode != Continuous {
		logx.Logger().Debug("toolpath: single curve, using continuous mode")
		p.Mode = Continuous
	}
	if p.Mode == Retract {
		if p.SortLayers {
			SortLayers(cs)
		}
		if p.SortPoints {
			SortPoints(cs)
		}
		if p.CloseShapes {
			CloseShapes(cs)
		}
	}

	l := &linearizer{p: p, fil: math.Pi * (p.Filament / 2) * (p.Filament / 2)}
	l.prog = &Program{Params: p, Curves: cs}
	for i, c := range cs {
		l.curve(c, i == 0)
		if p.Mode == Retract && i < len(cs)-1 {
			l.lift(c.Points[len(c.Points)-1])
		}
	}

	var all []r3.Vec
	for _, c := range cs {
		all = append(all, c.Points...)
	}
	box := geom.Bounds(all)
	l.stats.Min, l.stats.Max = box.Min, box.Max
	l.stats.Extruded = l.e
	l.stats.Volume = l.e * l.fil
	l.prog.Stats = l.stats

	logx.Logger().Debug("toolpath: linearized", "curves", len(cs), "mode", p.Mode,
		"moves", len(l.prog.Moves), "extruded", l.e)
	return l.prog, nil
}

type linearizer struct {
	p     Params
	fil   float64 // filament cross-section
	prog  *Program
	stats Stats
	e     float64
	maxz  float64
}

func (l *linearizer) emit(m Move) { l.prog.Moves = append(l.prog.Moves, m) }

// vertex appends v and returns its index.
func (l *linearizer) vertex(v r3.Vec) int {
	l.prog.Vertices = append(l.prog.Vertices, v)
	return len(l.prog.Vertices) - 1
}

func (l *linearizer) travelEdge(i int) {
	l.prog.TravelEdges = append(l.prog.TravelEdges, Edge{i, i - 1})
}

func (l *linearizer) curve(c Curve, first bool) {
	for j, v := range c.Points {
		l.maxz = math.Max(l.maxz, v.Z)
		switch {
		case first && j == 0:
			l.vertex(v)
			l.emit(Move{Kind: MoveStart, Pos: v, Feed: l.p.Feed})
		case j == 0 && l.p.Mode == Retract:
			l.descend(v)
		default:
			l.extrude(v, c.Layers[j], c.Flows[j])
		}
	}
}

// extrude prints from the previous vertex to v.
func (l *linearizer) extrude(v r3.Vec, layer, flow float64) {
	prev := l.prog.Vertices[len(l.prog.Vertices)-1]
	dist := r3.Norm(r3.Sub(v, prev))
	area := layer*l.p.Nozzle + math.Pi*(layer/2)*(layer/2)
	l.e += dist * flow * area / l.fil
	l.stats.PathLength += dist

	i := l.vertex(v)
	l.prog.PrintedEdges = append(l.prog.PrintedEdges, Edge{i, i - 1})
	l.emit(Move{Kind: MoveExtrude, Pos: v, E: l.e})
}

// descend travels above v at the safe height, drops onto it and primes
// the nozzle.
func (l *linearizer) descend(v r3.Vec) {
	safe := l.maxz + l.p.Retraction.ZHop
	above := r3.Vec{X: v.X, Y: v.Y, Z: safe}
	l.emit(Move{Kind: MoveTravel, Pos: above, Feed: l.p.FeedHorizontal})
	l.emit(Move{Kind: MoveTravel, Pos: v, Feed: l.p.FeedVertical})
	if l.p.RetractionMode == RetractGCode {
		l.e += l.p.Retraction.Push
	}
	l.emit(Move{Kind: MoveUnretract, E: l.e})

	prev := l.prog.Vertices[len(l.prog.Vertices)-1]
	l.travelEdge(l.vertex(above))
	l.stats.TravelLength += r3.Norm(r3.Sub(above, prev))
	l.travelEdge(l.vertex(v))
	l.stats.TravelLength += safe - v.Z
}

// lift retracts and raises the nozzle above last, the end of a curve.
func (l *linearizer) lift(last r3.Vec) {
	if l.p.RetractionMode == RetractGCode {
		l.e -= l.p.Retraction.Pull
	}
	l.emit(Move{Kind: MoveRetract, E: l.e})
	safe := l.maxz + l.p.Retraction.ZHop
	above := r3.Vec{X: last.X, Y: last.Y, Z: safe}
	l.emit(Move{Kind: MoveTravel, Pos: above, Feed: l.p.FeedVertical})

	l.vertex(last)
	l.travelEdge(l.vertex(above))
	l.stats.TravelLength += safe - last.Z
}
