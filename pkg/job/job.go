// Package job holds the description of one wafel run as built by a job
// script: panels and the segments that cut them, print curves, and the
// settings for joinery, tool-path output and preview.
package job

import (
	"fmt"

	"github.com/chazu/wafel/pkg/joinery"
	"github.com/chazu/wafel/pkg/toolpath"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/spatial/r3"
)

// Panel is a named joinery panel.
type Panel struct {
	Name string `json:"name"`
	joinery.Panel
}

// Curve is one print stroke. Layers and Flows may be shorter than Points
// or empty; they are broadcast when the job is linearized.
type Curve struct {
	Points []r3.Vec  `json:"points"`
	Layers []float64 `json:"layers,omitempty"`
	Flows  []float64 `json:"flows,omitempty"`
}

// Output names where the G-code goes and which snippets frame it.
type Output struct {
	Path  string `json:"path"`
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// Side selects which joinery output a preview shows.
type Side int

const (
	SideUpper Side = iota
	SideLower
)

func (s Side) String() string {
	switch s {
	case SideUpper:
		return "upper"
	case SideLower:
		return "lower"
	default:
		return fmt.Sprintf("Side(%d)", int(s))
	}
}

// ParseSide accepts "upper" and "lower".
func ParseSide(s string) (Side, error) {
	switch s {
	case "upper":
		return SideUpper, nil
	case "lower":
		return SideLower, nil
	}
	return 0, fmt.Errorf("job: invalid side %q, expected upper or lower", s)
}

// Preview requests solid meshes of the cut panels.
type Preview struct {
	Side  Side `json:"side"`
	Cells int  `json:"cells"` // marching-cubes resolution, 0 for the kernel default
}

// Job is everything a script declared. A nil Joinery or Toolpath means the
// script did not set them and the caller's defaults apply.
type Job struct {
	Panels        []Panel           `json:"panels"`
	Obstacles     []joinery.Panel   `json:"obstacles,omitempty"`
	VerticalEdges []joinery.Segment `json:"vertical_edges,omitempty"`
	Tubes         []joinery.Segment `json:"tubes,omitempty"`
	Joinery       *joinery.Params   `json:"joinery,omitempty"`
	Curves        []Curve           `json:"curves,omitempty"`
	Toolpath      *toolpath.Params  `json:"toolpath,omitempty"`
	Output        *Output           `json:"output,omitempty"`
	Preview       *Preview          `json:"preview,omitempty"`
}

// New returns an empty job.
func New() *Job {
	return &Job{}
}

// AddPanel appends a panel and returns its index.
func (j *Job) AddPanel(p Panel) int {
	j.Panels = append(j.Panels, p)
	return len(j.Panels) - 1
}

// Lookup returns the panel with the given name, or nil.
func (j *Job) Lookup(name string) *Panel {
	for i := range j.Panels {
		if j.Panels[i].Name == name {
			return &j.Panels[i]
		}
	}
	return nil
}

// IsEmpty reports whether the job declares neither panels nor curves.
func (j *Job) IsEmpty() bool {
	return len(j.Panels) == 0 && len(j.Curves) == 0
}

// JoineryInput collects the joinery inputs.
func (j *Job) JoineryInput() joinery.Input {
	return joinery.Input{
		Panels:        lo.Map(j.Panels, func(p Panel, _ int) joinery.Panel { return p.Panel }),
		VerticalEdges: j.VerticalEdges,
		Obstacles:     j.Obstacles,
		Tubes:         j.Tubes,
	}
}

// CurveStreams splits the curves into the point, layer and flow lists the
// linearizer takes.
func (j *Job) CurveStreams() (curves [][]r3.Vec, layers, flows [][]float64) {
	curves = lo.Map(j.Curves, func(c Curve, _ int) []r3.Vec { return c.Points })
	layers = lo.Map(j.Curves, func(c Curve, _ int) []float64 { return c.Layers })
	flows = lo.Map(j.Curves, func(c Curve, _ int) []float64 { return c.Flows })
	return curves, layers, flows
}

// JoineryParams returns the script's joinery settings or def.
func (j *Job) JoineryParams(def joinery.Params) joinery.Params {
	if j.Joinery != nil {
		return *j.Joinery
	}
	return def
}

// ToolpathParams returns the script's tool-path settings or def.
func (j *Job) ToolpathParams(def toolpath.Params) toolpath.Params {
	if j.Toolpath != nil {
		return *j.Toolpath
	}
	return def
}
