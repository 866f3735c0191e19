package main

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/chazu/wafel/pkg/config"
	"github.com/chazu/wafel/pkg/engine"
	"github.com/chazu/wafel/pkg/job"
	"github.com/chazu/wafel/pkg/joinery"
	"github.com/chazu/wafel/pkg/kernel"
	"github.com/chazu/wafel/pkg/kernel/sdfx"
	"github.com/chazu/wafel/pkg/logx"
	"github.com/chazu/wafel/pkg/tessellate"
	"github.com/chazu/wafel/pkg/toolpath"
	"github.com/samber/lo"
)

// colorPalette is a default palette used to assign distinct colors to panels.
var colorPalette = []string{
	"#4A90D9", "#E67E22", "#2ECC71", "#9B59B6",
	"#E74C3C", "#1ABC9C", "#F39C12", "#3498DB",
}

// App runs job scripts: evaluate, validate, cut joinery, linearize curves,
// write G-code and build preview meshes.
type App struct {
	engine  *engine.Engine
	kernel  kernel.Kernel
	config  *config.Config
	baseDir string
	dryRun  bool
}

// MeshData is the JSON-serializable mesh format of a panel preview.
type MeshData struct {
	Vertices []float32 `json:"vertices"`
	Normals  []float32 `json:"normals"`
	Indices  []uint32  `json:"indices"`
	Panel    string    `json:"panel"`
	Color    string    `json:"color"`
}

// EvalErrorData is a JSON-serializable error or warning.
type EvalErrorData struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
}

// PanelSummary describes the cut of one panel.
type PanelSummary struct {
	Name          string `json:"name"`
	UpperVertices int    `json:"upper_vertices"`
	UpperEdges    int    `json:"upper_edges"`
	LowerVertices int    `json:"lower_vertices"`
	LowerEdges    int    `json:"lower_edges"`
	Notches       int    `json:"notches"`
	Seams         int    `json:"seams"`
	Bored         bool   `json:"bored"`
}

// ToolpathSummary describes the linearized print program.
type ToolpathSummary struct {
	Mode         string         `json:"mode"`
	Vertices     int            `json:"vertices"`
	PrintedEdges int            `json:"printed_edges"`
	TravelEdges  int            `json:"travel_edges"`
	Stats        toolpath.Stats `json:"stats"`
	Info         string         `json:"info"`
	Output       string         `json:"output,omitempty"` // written G-code file
}

// EvalResult is the full result of one run.
type EvalResult struct {
	Panels   []PanelSummary   `json:"panels"`
	Joinery  *joinery.Result  `json:"joinery,omitempty"`
	Toolpath *ToolpathSummary `json:"toolpath,omitempty"`
	Meshes   []MeshData       `json:"meshes"`
	Errors   []EvalErrorData  `json:"errors"`
	Warnings []EvalErrorData  `json:"warnings"`
}

// NewApp creates an App with the sdfx kernel. A nil cfg selects
// config.Default.
func NewApp(cfg *config.Config) *App {
	if cfg == nil {
		cfg = config.Default()
	}
	eng := engine.NewEngine()
	eng.SetDefaults(engine.Defaults{
		Joinery:  cfg.Joinery,
		Toolpath: cfg.Toolpath,
		Cells:    cfg.Preview.Cells,
	})
	return &App{
		engine: eng,
		kernel: sdfx.New(),
		config: cfg,
	}
}

// SetBaseDir sets the directory relative output paths resolve against,
// normally the directory of the script.
func (a *App) SetBaseDir(dir string) { a.baseDir = dir }

// SetDryRun disables writing G-code files.
func (a *App) SetDryRun(v bool) { a.dryRun = v }

func newResult() EvalResult {
	return EvalResult{
		Panels:   []PanelSummary{},
		Meshes:   []MeshData{},
		Errors:   []EvalErrorData{},
		Warnings: []EvalErrorData{},
	}
}

func (r *EvalResult) fail(format string, args ...any) {
	r.Errors = append(r.Errors, EvalErrorData{Message: fmt.Sprintf(format, args...)})
}

// Check evaluates and validates source without cutting or writing anything.
func (a *App) Check(source string) EvalResult {
	result := newResult()
	a.load(source, &result)
	return result
}

// load runs the evaluation and validation steps. It returns nil when the
// job cannot proceed; result then carries the errors.
func (a *App) load(source string, result *EvalResult) *job.Job {
	// Step 1: Evaluate the script into a job.
	j, evalErrs, err := a.engine.Evaluate(source)
	if err != nil {
		// Fatal error (panic, timeout, etc.)
		log.Printf("Evaluate fatal error: %v", err)
		result.fail("%s", err.Error())
		return nil
	}
	if len(evalErrs) > 0 {
		for _, e := range evalErrs {
			result.Errors = append(result.Errors, EvalErrorData{
				Line:    e.Line,
				Col:     e.Col,
				Message: e.Message,
			})
		}
		return nil
	}

	// Step 2: Validate. Warnings are reported but never block.
	vr := job.ValidateAll(j, a.config.Toolpath)
	for _, w := range vr.Warnings {
		result.Warnings = append(result.Warnings, EvalErrorData{Message: w.String()})
	}
	if !vr.OK() {
		for _, e := range vr.Errors {
			result.Errors = append(result.Errors, EvalErrorData{Message: e.Error()})
		}
		return nil
	}
	logx.Logger().Info("job evaluated", "panels", len(j.Panels), "curves", len(j.Curves))
	return j
}

// Evaluate runs the whole pipeline on source.
func (a *App) Evaluate(source string) EvalResult {
	result := newResult()
	j := a.load(source, &result)
	if j == nil {
		return result
	}

	// Step 3: Cut joinery.
	jp := j.JoineryParams(a.config.Joinery)
	if len(j.Panels) > 0 {
		jr, err := joinery.Generate(j.JoineryInput(), jp)
		if err != nil {
			log.Printf("Joinery error: %v", err)
			result.fail("joinery failed: %v", err)
			return result
		}
		result.Joinery = jr
		names := lo.Map(j.Panels, func(p job.Panel, _ int) string { return p.Name })
		for _, p := range jr.Panels {
			result.Panels = append(result.Panels, PanelSummary{
				Name:          names[p.Index],
				UpperVertices: len(p.Upper.Vertices),
				UpperEdges:    len(p.Upper.Edges),
				LowerVertices: len(p.Lower.Vertices),
				LowerEdges:    len(p.Lower.Edges),
				Notches:       p.Notches,
				Seams:         p.Seams,
				Bored:         p.Bored,
			})
		}

		// Step 4: Preview meshes.
		if j.Preview != nil {
			plates := tessellate.Plates(jr, names, j.Preview.Side == job.SideLower)
			meshes, err := tessellate.Tessellate(a.kernel, plates, jp.Thickness, j.Preview.Cells)
			if err != nil {
				log.Printf("Tessellate error: %v", err)
				result.fail("tessellation failed: %v", err)
				return result
			}
			for i, m := range meshes {
				result.Meshes = append(result.Meshes, MeshData{
					Vertices: m.Vertices,
					Normals:  m.Normals,
					Indices:  m.Indices,
					Panel:    m.Panel,
					Color:    colorPalette[i%len(colorPalette)],
				})
			}
		}
	}

	// Step 5: Linearize curves and write G-code.
	if len(j.Curves) > 0 {
		curves, layers, flows := j.CurveStreams()
		prog, err := toolpath.Linearize(curves, layers, flows, j.ToolpathParams(a.config.Toolpath))
		if err != nil {
			log.Printf("Toolpath error: %v", err)
			result.fail("toolpath failed: %v", err)
			return result
		}
		summary := &ToolpathSummary{
			Mode:         prog.Params.Mode.String(),
			Vertices:     len(prog.Vertices),
			PrintedEdges: len(prog.PrintedEdges),
			TravelEdges:  len(prog.TravelEdges),
			Stats:        prog.Stats,
			Info:         prog.Stats.Info(),
		}
		result.Toolpath = summary

		if j.Output != nil && !a.dryRun {
			written, err := toolpath.WriteFile(a.outputPath(j.Output.Path), prog, a.config, j.Output.Start, j.Output.End)
			if err != nil {
				log.Printf("G-code write error: %v", err)
				result.fail("writing G-code failed: %v", err)
				return result
			}
			summary.Output = written
		}
	}

	return result
}

// outputPath resolves a relative output path against the base directory.
// Home-relative paths are left for the writer to expand.
func (a *App) outputPath(p string) string {
	if a.baseDir == "" || filepath.IsAbs(p) || strings.HasPrefix(p, "~") {
		return p
	}
	return filepath.Join(a.baseDir, p)
}
