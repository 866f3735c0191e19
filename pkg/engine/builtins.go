package engine

import (
	"fmt"
	"strings"

	"github.com/chazu/wafel/pkg/job"
	"github.com/chazu/wafel/pkg/joinery"
	zygo "github.com/glycerine/zygomys/zygo"
	"gonum.org/v1/gonum/spatial/r3"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource rewrites job-script source into something zygomys reads:
//
//  1. :keyword becomes the string literal "__kw_keyword", so keywords never
//     clash with user variables.
//  2. kebab-case identifiers become snake_case (vertical-edge ->
//     vertical_edge); zygomys would read the hyphen as subtraction.
//  3. ; comments become // comments.
//
// String literals (double-quoted and backtick) pass through untouched.
func preprocessSource(source string) string {
	var out strings.Builder
	out.Grow(len(source) + len(source)/4)
	b := []byte(source)
	for i := 0; i < len(b); {
		switch c := b[i]; {
		case c == '"' || c == '`':
			i = copyLiteral(&out, b, i)
		case c == ';':
			out.WriteString("//")
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				out.WriteByte(b[i])
				i++
			}
		case c == ':' && i+1 < len(b) && b[i+1] == '=':
			out.WriteString(":=")
			i += 2
		case c == ':' && i+1 < len(b) && isLetter(b[i+1]):
			j := i + 1
			for j < len(b) && isKWChar(b[j]) {
				j++
			}
			out.WriteString(`"` + kwPrefix)
			out.Write(b[i+1 : j])
			out.WriteByte('"')
			i = j
		case c == '-' && i > 0 && i+1 < len(b) && isIdentChar(b[i-1]) && isLetter(b[i+1]):
			out.WriteByte('_')
			i++
		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String()
}

// copyLiteral copies the string literal starting at b[i] and returns the
// index just past it. Backslash escapes only apply to double quotes.
func copyLiteral(out *strings.Builder, b []byte, i int) int {
	quote := b[i]
	out.WriteByte(quote)
	i++
	for i < len(b) && b[i] != quote {
		if quote == '"' && b[i] == '\\' && i+1 < len(b) {
			out.Write(b[i : i+2])
			i += 2
			continue
		}
		out.WriteByte(b[i])
		i++
	}
	if i < len(b) {
		out.WriteByte(b[i])
		i++
	}
	return i
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isIdentChar(c) || c == '-'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpVec3 wraps a point.
type sexpVec3 struct {
	vec r3.Vec
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// sexpEdge wraps a vertex index pair.
type sexpEdge struct {
	edge joinery.Edge
}

func (e *sexpEdge) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(edge %d %d)", e.edge[0], e.edge[1])
}
func (e *sexpEdge) Type() *zygo.RegisteredType { return nil }

// sexpPanelRef is what (panel ...) returns.
type sexpPanelRef struct {
	index int
	name  string
}

func (p *sexpPanelRef) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(panel %q)", p.name)
}
func (p *sexpPanelRef) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW reports whether s is a preprocessed keyword and returns its name.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok || !strings.HasPrefix(str.S, kwPrefix) {
		return "", false
	}
	return str.S[len(kwPrefix):], true
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	order      []string // keywords in call order
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
// A keyword at the end with no value is recorded as nil.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	for i := 0; i < len(args); i++ {
		name, ok := isKW(args[i])
		if !ok {
			result.positional = append(result.positional, args[i])
			continue
		}
		result.order = append(result.order, name)
		if i+1 < len(args) {
			result.kw[name] = args[i+1]
			i++
		} else {
			result.kw[name] = zygo.SexpNull
		}
	}
	return result
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a SexpInt or SexpFloat.
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

func toInt(s zygo.Sexp) (int, error) {
	if v, ok := s.(*zygo.SexpInt); ok {
		return int(v.Val), nil
	}
	return 0, fmt.Errorf("expected integer, got %T (%s)", s, s.SexpString(nil))
}

// toFloats accepts a single number or a list of numbers.
func toFloats(s zygo.Sexp) ([]float64, error) {
	if f, err := toFloat64(s); err == nil {
		return []float64{f}, nil
	}
	items, err := sexpListToSlice(s)
	if err != nil {
		return nil, fmt.Errorf("expected number or list of numbers: %w", err)
	}
	out := make([]float64, len(items))
	for i, item := range items {
		if out[i], err = toFloat64(item); err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
	}
	return out, nil
}

func toBool(s zygo.Sexp) (bool, error) {
	if b, ok := s.(*zygo.SexpBool); ok {
		return b.Val, nil
	}
	return false, fmt.Errorf("expected true or false, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString extracts a keyword name or plain string from a Sexp.
// Handles both preprocessed keywords (__kw_up) and plain strings ("up").
func toKeywordString(s zygo.Sexp) (string, error) {
	str, err := toString(s)
	if err != nil {
		return "", fmt.Errorf("expected keyword or string: %w", err)
	}
	return strings.TrimPrefix(str, kwPrefix), nil
}

// toVec3 accepts a (vec3 ...) value or a list of three numbers.
func toVec3(s zygo.Sexp) (r3.Vec, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	items, err := sexpListToSlice(s)
	if err != nil || len(items) != 3 {
		return r3.Vec{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
	}
	var c [3]float64
	for i, item := range items {
		if c[i], err = toFloat64(item); err != nil {
			return r3.Vec{}, fmt.Errorf("vec3 component %d: %w", i, err)
		}
	}
	return r3.Vec{X: c[0], Y: c[1], Z: c[2]}, nil
}

func toVec3s(items []zygo.Sexp) ([]r3.Vec, error) {
	out := make([]r3.Vec, len(items))
	for i, item := range items {
		v, err := toVec3(item)
		if err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func toEdge(s zygo.Sexp) (joinery.Edge, error) {
	if e, ok := s.(*sexpEdge); ok {
		return e.edge, nil
	}
	items, err := sexpListToSlice(s)
	if err != nil || len(items) != 2 {
		return joinery.Edge{}, fmt.Errorf("expected edge, got %T (%s)", s, s.SexpString(nil))
	}
	var e joinery.Edge
	for i, item := range items {
		if e[i], err = toInt(item); err != nil {
			return joinery.Edge{}, fmt.Errorf("edge index %d: %w", i, err)
		}
	}
	return e, nil
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// builder collects the job a script declares.
type builder struct {
	job      *job.Job
	defaults Defaults
}

// registerBuiltins installs the job DSL into a zygomys environment. The
// builtins populate j during evaluation.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, j *job.Job, d Defaults) {
	b := &builder{job: j, defaults: d}
	env.AddFunction("vec3", b.vec3)
	env.AddFunction("edge", b.edge)
	env.AddFunction("panel", b.panel)
	env.AddFunction("obstacle", b.obstacle)
	env.AddFunction("vertical_edge", b.verticalEdge)
	env.AddFunction("tube", b.tube)
	env.AddFunction("wafel", b.wafel)
	env.AddFunction("curve", b.curve)
	env.AddFunction("gcode", b.gcode)
	env.AddFunction("preview", b.preview)
}

// (vec3 1 2 3)
func (b *builder) vec3(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
	if len(args) != 3 {
		return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
	}
	v, err := toVec3(&zygo.SexpArray{Val: args})
	if err != nil {
		return zygo.SexpNull, fmt.Errorf("vec3: %w", err)
	}
	return &sexpVec3{vec: v}, nil
}

// (edge 0 1)
func (b *builder) edge(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
	if len(args) != 2 {
		return zygo.SexpNull, fmt.Errorf("edge requires exactly 2 arguments, got %d", len(args))
	}
	e, err := toEdge(&zygo.SexpArray{Val: args})
	if err != nil {
		return zygo.SexpNull, fmt.Errorf("edge: %w", err)
	}
	return &sexpEdge{edge: e}, nil
}

// outline reads the shared (form (vec3 ..) ...) and
// (form :vertices (list ...) :edges (list ...)) argument shapes. Without
// :edges the points are closed into a polygon.
func outline(form string, pa kwArgs, points []zygo.Sexp) (joinery.Panel, error) {
	if v, ok := pa.kw["vertices"]; ok {
		items, err := sexpListToSlice(v)
		if err != nil {
			return joinery.Panel{}, fmt.Errorf("%s: vertices: %w", form, err)
		}
		points = append(points, items...)
	}
	pts, err := toVec3s(points)
	if err != nil {
		return joinery.Panel{}, fmt.Errorf("%s: %w", form, err)
	}
	v, ok := pa.kw["edges"]
	if !ok {
		return joinery.Polygon(pts...), nil
	}
	items, err := sexpListToSlice(v)
	if err != nil {
		return joinery.Panel{}, fmt.Errorf("%s: edges: %w", form, err)
	}
	p := joinery.Panel{Vertices: pts}
	for i, item := range items {
		e, err := toEdge(item)
		if err != nil {
			return joinery.Panel{}, fmt.Errorf("%s: edge %d: %w", form, i, err)
		}
		p.Edges = append(p.Edges, e)
	}
	return p, nil
}

// (panel "name" (vec3 ..) (vec3 ..) ...)
// (panel "name" :vertices (list ...) :edges (list (edge 0 1) ...))
func (b *builder) panel(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
	pa := parseArgs(args)
	points := pa.positional
	panelName := fmt.Sprintf("panel-%d", len(b.job.Panels))
	if len(points) > 0 {
		if s, ok := points[0].(*zygo.SexpStr); ok {
			panelName = s.S
			points = points[1:]
		}
	}
	p, err := outline("panel", pa, points)
	if err != nil {
		return zygo.SexpNull, err
	}
	idx := b.job.AddPanel(job.Panel{Name: panelName, Panel: p})
	return &sexpPanelRef{index: idx, name: panelName}, nil
}

// (obstacle (vec3 ..) ...)
func (b *builder) obstacle(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
	pa := parseArgs(args)
	p, err := outline("obstacle", pa, pa.positional)
	if err != nil {
		return zygo.SexpNull, err
	}
	b.job.Obstacles = append(b.job.Obstacles, p)
	return zygo.SexpNull, nil
}

func segment(form string, args []zygo.Sexp) (joinery.Segment, error) {
	if len(args) != 2 {
		return joinery.Segment{}, fmt.Errorf("%s requires exactly 2 points, got %d", form, len(args))
	}
	pts, err := toVec3s(args)
	if err != nil {
		return joinery.Segment{}, fmt.Errorf("%s: %w", form, err)
	}
	return joinery.Segment{pts[0], pts[1]}, nil
}

// (vertical-edge (vec3 ..) (vec3 ..))
func (b *builder) verticalEdge(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
	s, err := segment("vertical-edge", args)
	if err != nil {
		return zygo.SexpNull, err
	}
	b.job.VerticalEdges = append(b.job.VerticalEdges, s)
	return zygo.SexpNull, nil
}

// (tube (vec3 ..) (vec3 ..))
func (b *builder) tube(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
	s, err := segment("tube", args)
	if err != nil {
		return zygo.SexpNull, err
	}
	b.job.Tubes = append(b.job.Tubes, s)
	return zygo.SexpNull, nil
}

// setter applies one keyword value.
type setter func(zygo.Sexp) error

func floatTo(dst *float64) setter {
	return func(s zygo.Sexp) (err error) {
		*dst, err = toFloat64(s)
		return err
	}
}

func boolTo(dst *bool) setter {
	return func(s zygo.Sexp) (err error) {
		*dst, err = toBool(s)
		return err
	}
}

func stringTo(dst *string) setter {
	return func(s zygo.Sexp) (err error) {
		*dst, err = toString(s)
		return err
	}
}

// keywordTo parses a keyword through an UnmarshalText implementation.
func keywordTo(dst interface{ UnmarshalText([]byte) error }) setter {
	return func(s zygo.Sexp) error {
		name, err := toKeywordString(s)
		if err != nil {
			return err
		}
		return dst.UnmarshalText([]byte(name))
	}
}

// applyOptions runs the setter of every keyword in pa, in call order.
// Positional arguments and unknown keywords are errors.
func applyOptions(form string, pa kwArgs, setters map[string]setter) error {
	if len(pa.positional) > 0 {
		return fmt.Errorf("%s takes only keyword arguments, got %s", form, pa.positional[0].SexpString(nil))
	}
	for _, key := range pa.order {
		set, ok := setters[key]
		if !ok {
			return fmt.Errorf("%s: unknown option :%s", form, key)
		}
		if err := set(pa.kw[key]); err != nil {
			return fmt.Errorf("%s: %s: %w", form, key, err)
		}
	}
	return nil
}

// (wafel :thickness 4 :threshold 2 :rounded true :circle true
//        :circle-radius 1 :circle-place :up :tube-radius 3)
func (b *builder) wafel(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
	p := b.job.JoineryParams(b.defaults.Joinery)
	err := applyOptions("wafel", parseArgs(args), map[string]setter{
		"thickness":     floatTo(&p.Thickness),
		"threshold":     floatTo(&p.Threshold),
		"rounded":       boolTo(&p.Rounded),
		"circle":        boolTo(&p.Circle),
		"circle-radius": floatTo(&p.CircleRadius),
		"circle-place":  keywordTo(&p.Placement),
		"tube-radius":   floatTo(&p.TubeRadius),
	})
	if err != nil {
		return zygo.SexpNull, err
	}
	b.job.Joinery = &p
	return zygo.SexpNull, nil
}

// (curve (vec3 ..) ... :layer-height 0.2 :flow (list 1 1.2 ...))
func (b *builder) curve(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
	pa := parseArgs(args)
	points := pa.positional
	if v, ok := pa.kw["points"]; ok {
		items, err := sexpListToSlice(v)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("curve: points: %w", err)
		}
		points = append(points, items...)
	}
	pts, err := toVec3s(points)
	if err != nil {
		return zygo.SexpNull, fmt.Errorf("curve: %w", err)
	}
	c := job.Curve{Points: pts}
	for _, key := range pa.order {
		switch key {
		case "points":
		case "layer-height":
			if c.Layers, err = toFloats(pa.kw[key]); err != nil {
				return zygo.SexpNull, fmt.Errorf("curve: layer-height: %w", err)
			}
		case "flow":
			if c.Flows, err = toFloats(pa.kw[key]); err != nil {
				return zygo.SexpNull, fmt.Errorf("curve: flow: %w", err)
			}
		default:
			return zygo.SexpNull, fmt.Errorf("curve: unknown option :%s", key)
		}
	}
	b.job.Curves = append(b.job.Curves, c)
	return zygo.SexpNull, nil
}

// (gcode :mode :retr :nozzle 0.4 ... :start "start" :end "end"
//        :output "part.gcode")
func (b *builder) gcode(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
	p := b.job.ToolpathParams(b.defaults.Toolpath)
	var out job.Output
	if b.job.Output != nil {
		out = *b.job.Output
	}
	pa := parseArgs(args)
	err := applyOptions("gcode", pa, map[string]setter{
		"mode":            keywordTo(&p.Mode),
		"sort-layers":     boolTo(&p.SortLayers),
		"sort-points":     boolTo(&p.SortPoints),
		"close-shapes":    boolTo(&p.CloseShapes),
		"nozzle":          floatTo(&p.Nozzle),
		"filament":        floatTo(&p.Filament),
		"layer-height":    floatTo(&p.LayerHeight),
		"flow":            floatTo(&p.FlowMultiplier),
		"feed":            floatTo(&p.Feed),
		"feed-vertical":   floatTo(&p.FeedVertical),
		"feed-horizontal": floatTo(&p.FeedHorizontal),
		"pull":            floatTo(&p.Retraction.Pull),
		"push":            floatTo(&p.Retraction.Push),
		"z-hop":           floatTo(&p.Retraction.ZHop),
		"retraction":      keywordTo(&p.RetractionMode),
		"start":           stringTo(&out.Start),
		"end":             stringTo(&out.End),
		"output":          stringTo(&out.Path),
	})
	if err != nil {
		return zygo.SexpNull, err
	}
	b.job.Toolpath = &p
	if out != (job.Output{}) {
		b.job.Output = &out
	}
	return zygo.SexpNull, nil
}

// (preview :side :lower :cells 120)
func (b *builder) preview(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
	pv := job.Preview{Cells: b.defaults.Cells}
	var side string
	err := applyOptions("preview", parseArgs(args), map[string]setter{
		"side": func(s zygo.Sexp) (err error) {
			side, err = toKeywordString(s)
			return err
		},
		"cells": func(s zygo.Sexp) (err error) {
			pv.Cells, err = toInt(s)
			return err
		},
	})
	if err != nil {
		return zygo.SexpNull, err
	}
	if side != "" {
		if pv.Side, err = job.ParseSide(side); err != nil {
			return zygo.SexpNull, fmt.Errorf("preview: %w", err)
		}
	}
	b.job.Preview = &pv
	return zygo.SexpNull, nil
}

