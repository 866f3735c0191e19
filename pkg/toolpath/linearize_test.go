package toolpath

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/chazu/wafel/pkg/fault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func flowRatio(layer, nozzle, filament float64) float64 {
	area := layer*nozzle + math.Pi*(layer/2)*(layer/2)
	return area / (math.Pi * (filament / 2) * (filament / 2))
}

func gcodeLines(t *testing.T, prog *Program, start, end []string) []string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, prog, start, end))
	return strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
}

func TestSingleSegmentScenario(t *testing.T) {
	p := DefaultParams()
	curves := [][]r3.Vec{{{X: 0}, {X: 10}}}
	prog, err := Linearize(curves, [][]float64{{0.2}}, nil, p)
	require.NoError(t, err)

	wantE := 10 * (0.2*0.4 + math.Pi*0.01) / (math.Pi * 0.765625)
	assert.InDelta(t, 0.46321, wantE, 1e-5)
	assert.InDelta(t, wantE, prog.Stats.Extruded, 1e-12)
	assert.InDelta(t, 10.0, prog.Stats.PathLength, 1e-12)
	assert.Equal(t, []Edge{{1, 0}}, prog.PrintedEdges)
	assert.Empty(t, prog.TravelEdges)
	assert.Equal(t, []r3.Vec{{X: 0}, {X: 10}}, prog.Vertices)

	assert.Equal(t, []string{
		"G92 E0",
		"G1 X0.0000 Y0.0000 Z0.0000 F1000",
		"G1 X10.0000 Y0.0000 Z0.0000 E0.4632",
	}, gcodeLines(t, prog, nil, nil))

	assert.Equal(t, "Bounding Box:\n"+
		"\tmin\tX: 0.0\tY: 0.0\tZ: 0.0\n"+
		"\tmax\tX: 10.0\tY: 0.0\tZ: 0.0\n"+
		"Extruded Filament: 0.46\n"+
		"Extruded Volume: 1.11\n"+
		"Printed Path Length: 10.00\n"+
		"Travel Length: 0.00", prog.Stats.Info())
}

func TestSingleCurveForcesContinuous(t *testing.T) {
	curve := [][]r3.Vec{{{X: 0}, {X: 3}, {X: 3, Y: 4}, {X: 0, Y: 4, Z: 1}}}
	cont := DefaultParams()
	retr := DefaultParams()
	retr.Mode = Retract

	a, err := Linearize(curve, nil, nil, cont)
	require.NoError(t, err)
	b, err := Linearize(curve, nil, nil, retr)
	require.NoError(t, err)

	want := 3 + 4 + math.Sqrt(9+1)
	assert.InDelta(t, want, a.Stats.PathLength, 1e-12)
	assert.InDelta(t, a.Stats.PathLength, b.Stats.PathLength, 1e-12)
	assert.Equal(t, Continuous, b.Params.Mode)
	assert.Equal(t, a.Moves, b.Moves)
}

func TestContinuousBridgesCurves(t *testing.T) {
	curves := [][]r3.Vec{
		{{X: 0}, {X: 10}},
		{{X: 10, Y: 5}, {X: 20, Y: 5}},
	}
	prog, err := Linearize(curves, [][]float64{{0.2}, {0.2}}, nil, DefaultParams())
	require.NoError(t, err)

	// The second curve starts with a printed move from where the first ended.
	assert.InDelta(t, 10.0+5+10, prog.Stats.PathLength, 1e-12)
	require.Len(t, prog.Vertices, 4)
	assert.Equal(t, []Edge{{1, 0}, {2, 1}, {3, 2}}, prog.PrintedEdges)
	assert.Empty(t, prog.TravelEdges)

	f := flowRatio(0.2, 0.4, 1.75)
	var es []float64
	for _, m := range prog.Moves {
		assert.NotEqual(t, MoveTravel, m.Kind)
		if m.Kind == MoveExtrude {
			es = append(es, m.E)
		}
	}
	require.Len(t, es, 3)
	assert.InDelta(t, 10*f, es[0], 1e-12)
	assert.InDelta(t, 15*f, es[1], 1e-12)
	assert.InDelta(t, 25*f, es[2], 1e-12)
}

func TestPathLengthIgnoresTravel(t *testing.T) {
	p := DefaultParams()
	p.Mode = Retract
	curves := [][]r3.Vec{
		{{X: 0}, {X: 2}},
		{{X: 5, Z: 1}, {X: 5, Y: 3, Z: 1}, {X: 9, Y: 3, Z: 1}},
	}
	prog, err := Linearize(curves, nil, nil, p)
	require.NoError(t, err)
	assert.InDelta(t, 2.0+3+4, prog.Stats.PathLength, 1e-12)

	var sum float64
	for _, e := range prog.PrintedEdges {
		sum += r3.Norm(r3.Sub(prog.Vertices[e[0]], prog.Vertices[e[1]]))
	}
	assert.InDelta(t, prog.Stats.PathLength, sum, 1e-12)
}

func TestExtrusionScalesWithFlow(t *testing.T) {
	curves := [][]r3.Vec{
		{{X: 0}, {X: 4}, {X: 4, Y: 4}},
		{{X: 0, Z: 1}, {X: 4, Z: 1}},
	}
	for _, mode := range []Mode{Continuous, Retract} {
		p := DefaultParams()
		p.Mode = mode
		p.Nozzle, p.Filament = 1, 1
		base, err := Linearize(curves, [][]float64{{1}}, [][]float64{{1}}, p)
		require.NoError(t, err)
		for _, k := range []float64{0.5, 2, 3} {
			got, err := Linearize(curves, [][]float64{{1}}, [][]float64{{k}}, p)
			require.NoError(t, err)
			assert.InDelta(t, k*base.Stats.Extruded, got.Stats.Extruded, 1e-9, "mode %s flow %g", mode, k)
		}
	}
}

func TestRetractCloseShapesScenario(t *testing.T) {
	p := DefaultParams()
	p.Mode = Retract
	p.CloseShapes = true
	sq := func(z float64) []r3.Vec {
		return []r3.Vec{{X: 0, Z: z}, {X: 1, Z: z}, {X: 1, Y: 1, Z: z}}
	}
	prog, err := Linearize([][]r3.Vec{sq(0), sq(0.2)}, nil, nil, p)
	require.NoError(t, err)

	for i, c := range prog.Curves {
		require.Len(t, c.Points, 4)
		assert.Equal(t, c.Points[0], c.Points[3], "curve %d is closed", i)
	}

	// 0..3 curve one, 4 its end again, 5 lifted above it, 6 lifted above
	// curve two's start, 7..10 curve two.
	require.Len(t, prog.Vertices, 11)
	assert.Equal(t, r3.Vec{X: 0, Y: 0, Z: 2}, prog.Vertices[5])
	assert.Equal(t, r3.Vec{X: 0, Y: 0, Z: 2.2}, prog.Vertices[6])
	assert.Equal(t, []Edge{{5, 4}, {6, 5}, {7, 6}}, prog.TravelEdges)
	assert.Equal(t, []Edge{{1, 0}, {2, 1}, {3, 2}, {8, 7}, {9, 8}, {10, 9}}, prog.PrintedEdges)
	assert.Equal(t, prog.Vertices[3], prog.Vertices[4])
	assert.InDelta(t, 2+0.2+2, prog.Stats.TravelLength, 1e-9)

	e1 := (2 + math.Sqrt2) * flowRatio(0.1, 0.4, 1.75)
	assert.Equal(t, []string{
		"G92 E0",
		"G1 X0.0000 Y0.0000 Z0.0000 F1000",
		"G1 X1.0000 Y0.0000 Z0.0000 E" + fmt.Sprintf("%.4f", 1*flowRatio(0.1, 0.4, 1.75)),
		"G1 X1.0000 Y1.0000 Z0.0000 E" + fmt.Sprintf("%.4f", 2*flowRatio(0.1, 0.4, 1.75)),
		"G1 X0.0000 Y0.0000 Z0.0000 E" + fmt.Sprintf("%.4f", e1),
		"G0 E" + fmt.Sprintf("%.4f", e1-5),
		"G1 X0.0000 Y0.0000 Z2.0000 F500",
		"G1 X0.0000 Y0.0000 Z2.2000 F2000",
		"G1 X0.0000 Y0.0000 Z0.2000 F500",
		"G1 E" + fmt.Sprintf("%.4f", e1),
	}, gcodeLines(t, prog, nil, nil)[:10])
	assert.InDelta(t, 2*e1, prog.Stats.Extruded, 1e-9)
}

func TestFirmwareRetraction(t *testing.T) {
	p := DefaultParams()
	p.Mode = Retract
	p.RetractionMode = RetractFirmware
	prog, err := Linearize([][]r3.Vec{{{X: 0}, {X: 1}}, {{X: 0, Z: 1}, {X: 1, Z: 1}}}, nil, nil, p)
	require.NoError(t, err)

	lines := gcodeLines(t, prog, nil, nil)
	assert.Contains(t, lines, "G10")
	assert.Contains(t, lines, "G11")
	for _, l := range lines {
		assert.False(t, strings.HasPrefix(l, "G0 E"), l)
	}
	assert.InDelta(t, 2*flowRatio(0.1, 0.4, 1.75), prog.Stats.Extruded, 1e-12)
}

func TestLiftHeightIsMonotonic(t *testing.T) {
	p := DefaultParams()
	p.Mode = Retract
	p.SortLayers = false
	curves := [][]r3.Vec{
		{{X: 0, Z: 3}, {X: 1, Z: 3}},
		{{X: 0, Z: 1}, {X: 1, Z: 1}},
	}
	prog, err := Linearize(curves, nil, nil, p)
	require.NoError(t, err)
	for _, m := range prog.Moves {
		if m.Kind == MoveTravel && m.Pos.Z > 1 {
			assert.InDelta(t, 5.0, m.Pos.Z, 1e-12)
		}
	}
}

func TestStartAndEndSnippetsPlacement(t *testing.T) {
	prog, err := Linearize([][]r3.Vec{{{X: 0}, {X: 1}}}, nil, nil, DefaultParams())
	require.NoError(t, err)
	lines := gcodeLines(t, prog, []string{"M104 S200", "M109 S200"}, []string{"M84"})
	assert.Equal(t, "G92 E0", lines[0])
	assert.Equal(t, "M104 S200", lines[1])
	assert.Equal(t, "M109 S200", lines[2])
	assert.Equal(t, "M84", lines[len(lines)-1])
}

func TestLinearizeRejectsBadInput(t *testing.T) {
	_, err := Linearize(nil, nil, nil, DefaultParams())
	assert.True(t, errors.Is(err, fault.ErrInputShape))

	_, err = Linearize([][]r3.Vec{{{X: 1}}, {}}, nil, nil, DefaultParams())
	var se *fault.InputShapeError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 1, se.Index)

	p := DefaultParams()
	p.Filament = 0
	_, err = Linearize([][]r3.Vec{{{X: 1}}}, nil, nil, p)
	assert.True(t, errors.Is(err, fault.ErrInputShape))
}

func TestMoveKindString(t *testing.T) {
	assert.Equal(t, "retract", MoveRetract.String())
	assert.Equal(t, "MoveKind(9)", MoveKind(9).String())
}
