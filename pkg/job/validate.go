package job

import (
	"fmt"
	"math"

	"github.com/chazu/wafel/pkg/geom"
	"github.com/chazu/wafel/pkg/joinery"
	"github.com/chazu/wafel/pkg/toolpath"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/spatial/r3"
)

// Severity indicates whether a validation finding blocks a run or is
// merely informational.
type Severity int

const (
	SeverityError   Severity = iota // blocks the run
	SeverityWarning                 // informational
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding.
type ValidationError struct {
	Subject  string // e.g. `panel "side"` or "curve 3"; empty for job-level findings
	Message  string
	Severity Severity
}

func (e ValidationError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Subject, e.Message)
}

// ValidationWarning describes a non-blocking advisory finding.
type ValidationWarning struct {
	Subject string
	Message string
}

func (w ValidationWarning) String() string {
	if w.Subject == "" {
		return w.Message
	}
	return w.Subject + ": " + w.Message
}

// ValidationResult bundles errors (blocking) and warnings (advisory) from
// all validation tiers.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// OK reports whether no blocking errors were found.
func (r ValidationResult) OK() bool { return len(r.Errors) == 0 }

// Validate runs the Tier 1 structural checks. An empty slice means the job
// can be run. It never mutates the job.
func Validate(j *Job) []ValidationError {
	var errs []ValidationError
	errs = append(errs, validatePanels(j)...)
	errs = append(errs, validateNames(j)...)
	errs = append(errs, validateCurves(j)...)
	errs = append(errs, validateParams(j)...)
	return errs
}

// ValidateAll runs all tiers and separates errors from warnings. def holds
// the tool-path settings used when the script declares none.
func ValidateAll(j *Job, def toolpath.Params) ValidationResult {
	var result ValidationResult
	result.Errors = append(result.Errors, Validate(j)...)
	result.Warnings = append(result.Warnings, validateGeometry(j)...)
	result.Warnings = append(result.Warnings, validateProcess(j, def)...)
	return result
}

func panelSubject(i int, name string) string {
	if name == "" {
		return fmt.Sprintf("panel %d", i)
	}
	return fmt.Sprintf("panel %q", name)
}

// ---------------------------------------------------------------------------
// Tier 1: Structural validation
// ---------------------------------------------------------------------------

// validatePanels checks that every edge references a vertex of its panel.
func validatePanels(j *Job) []ValidationError {
	var errs []ValidationError
	check := func(subject string, p joinery.Panel) {
		for k, e := range p.Edges {
			if e[0] < 0 || e[0] >= len(p.Vertices) || e[1] < 0 || e[1] >= len(p.Vertices) {
				errs = append(errs, ValidationError{
					Subject:  subject,
					Message:  fmt.Sprintf("edge %d (%d, %d) out of range for %d vertices", k, e[0], e[1], len(p.Vertices)),
					Severity: SeverityError,
				})
			}
		}
	}
	for i, p := range j.Panels {
		check(panelSubject(i, p.Name), p.Panel)
	}
	for i, p := range j.Obstacles {
		check(fmt.Sprintf("obstacle %d", i), p)
	}
	return errs
}

// validateNames checks that panel names are unique.
func validateNames(j *Job) []ValidationError {
	names := lo.FilterMap(j.Panels, func(p Panel, _ int) (string, bool) { return p.Name, p.Name != "" })
	return lo.Map(lo.FindDuplicates(names), func(name string, _ int) ValidationError {
		return ValidationError{
			Subject:  fmt.Sprintf("panel %q", name),
			Message:  "duplicate panel name",
			Severity: SeverityError,
		}
	})
}

// validateCurves checks that curves have points and sane per-point values.
func validateCurves(j *Job) []ValidationError {
	var errs []ValidationError
	for i, c := range j.Curves {
		subject := fmt.Sprintf("curve %d", i)
		if len(c.Points) == 0 {
			errs = append(errs, ValidationError{Subject: subject, Message: "curve has no points", Severity: SeverityError})
		}
		if lo.SomeBy(c.Layers, func(h float64) bool { return h < 0 }) {
			errs = append(errs, ValidationError{Subject: subject, Message: "negative layer height", Severity: SeverityError})
		}
		if lo.SomeBy(c.Flows, func(f float64) bool { return f < 0 }) {
			errs = append(errs, ValidationError{Subject: subject, Message: "negative flow multiplier", Severity: SeverityError})
		}
	}
	if j.Output != nil && j.Output.Path == "" {
		errs = append(errs, ValidationError{Subject: "gcode", Message: "output path is empty", Severity: SeverityError})
	}
	return errs
}

// validateParams checks the joinery, tool-path and preview settings the
// script declared.
func validateParams(j *Job) []ValidationError {
	var errs []ValidationError
	if j.Joinery != nil {
		if err := j.Joinery.Validate(); err != nil {
			errs = append(errs, ValidationError{Subject: "wafel", Message: err.Error(), Severity: SeverityError})
		}
	}
	if j.Toolpath != nil {
		if err := j.Toolpath.Validate(); err != nil {
			errs = append(errs, ValidationError{Subject: "gcode", Message: err.Error(), Severity: SeverityError})
		}
	}
	if j.Preview != nil && j.Preview.Cells < 0 {
		errs = append(errs, ValidationError{
			Subject:  "preview",
			Message:  fmt.Sprintf("cells is %d, must not be negative", j.Preview.Cells),
			Severity: SeverityError,
		})
	}
	return errs
}

// ---------------------------------------------------------------------------
// Tier 2: Geometric validation (warnings)
// ---------------------------------------------------------------------------

func validateGeometry(j *Job) []ValidationWarning {
	var warnings []ValidationWarning
	warnings = append(warnings, validatePanelPlanes(j)...)
	warnings = append(warnings, validateVerticalEdges(j)...)
	return warnings
}

// validatePanelPlanes warns about panels whose normal is undefined; they
// pass through joinery uncut.
func validatePanelPlanes(j *Job) []ValidationWarning {
	var warnings []ValidationWarning
	for i, p := range j.Panels {
		if len(p.Vertices) == 0 {
			continue
		}
		if _, err := geom.PanelNormal(p.Vertices); err != nil {
			warnings = append(warnings, ValidationWarning{
				Subject: panelSubject(i, p.Name),
				Message: "panel has no plane and will not be cut",
			})
		}
	}
	return warnings
}

// validateVerticalEdges warns about zero-length edges and edges that lie on
// no panel.
func validateVerticalEdges(j *Job) []ValidationWarning {
	var warnings []ValidationWarning
	for k, v := range j.VerticalEdges {
		subject := fmt.Sprintf("vertical edge %d", k)
		if r3.Norm(r3.Sub(v[1], v[0])) == 0 {
			warnings = append(warnings, ValidationWarning{Subject: subject, Message: "edge has zero length"})
			continue
		}
		if len(j.Panels) > 0 && !lo.SomeBy(j.Panels, func(p Panel) bool { return onPanel(p.Panel, v) }) {
			warnings = append(warnings, ValidationWarning{Subject: subject, Message: "edge crosses no panel"})
		}
	}
	return warnings
}

// onPanel reports whether either end of v lies on p's plane inside its
// bounding box.
func onPanel(p joinery.Panel, v joinery.Segment) bool {
	n, err := geom.PanelNormal(p.Vertices)
	if err != nil {
		return false
	}
	box := geom.Bounds(p.Vertices)
	center := geom.Centroid(p.Vertices)
	for _, end := range v {
		if geom.InsideFootprint(end, box) && math.Abs(geom.PlaneDistance(end, center, n)) < joinery.CoplanarTolerance {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Tier 3: Process warnings
// ---------------------------------------------------------------------------

func validateProcess(j *Job, def toolpath.Params) []ValidationWarning {
	var warnings []ValidationWarning
	tp := j.ToolpathParams(def)
	for i, c := range j.Curves {
		subject := fmt.Sprintf("curve %d", i)
		if h, ok := lo.Find(c.Layers, func(h float64) bool { return h > tp.Nozzle }); ok {
			warnings = append(warnings, ValidationWarning{
				Subject: subject,
				Message: fmt.Sprintf("layer height %.3f exceeds nozzle diameter %.3f", h, tp.Nozzle),
			})
		}
		if len(c.Flows) > 0 && lo.EveryBy(c.Flows, func(f float64) bool { return f == 0 }) {
			warnings = append(warnings, ValidationWarning{Subject: subject, Message: "flow is zero, nothing will be extruded"})
		}
	}
	if j.Output != nil && len(j.Curves) == 0 {
		warnings = append(warnings, ValidationWarning{Subject: "gcode", Message: "output requested but no curves declared"})
	}
	return warnings
}
