package engine

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chazu/wafel/pkg/job"
)

func TestEvaluateEmptyString(t *testing.T) {
	eng := NewEngine()

	j, evalErrs, err := eng.Evaluate("")
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("unexpected eval errors: %v", evalErrs)
	}
	if j == nil {
		t.Fatal("expected non-nil job")
	}
	if !j.IsEmpty() {
		t.Errorf("expected empty job, got %+v", j)
	}
}

func TestEvaluateWhitespaceOnly(t *testing.T) {
	eng := NewEngine()

	j, evalErrs, err := eng.Evaluate("   \n\t  \n  ")
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("unexpected eval errors: %v", evalErrs)
	}
	if j == nil {
		t.Fatal("expected non-nil job")
	}
	if !j.IsEmpty() {
		t.Errorf("expected empty job, got %+v", j)
	}
}

func TestEvaluateValidExpression(t *testing.T) {
	eng := NewEngine()

	// Plain arithmetic declares nothing.
	j, evalErrs, err := eng.Evaluate("(+ 1 2)")
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("unexpected eval errors: %v", evalErrs)
	}
	if j == nil {
		t.Fatal("expected non-nil job")
	}
	if !j.IsEmpty() {
		t.Errorf("expected empty job, got %+v", j)
	}
}

func TestEvaluateMultipleExpressions(t *testing.T) {
	eng := NewEngine()

	source := `
(def w 10)
(def h 4)
(panel "a" (vec3 0 0 0) (vec3 w w 0) (vec3 w w h) (vec3 0 0 h))
(vertical-edge (vec3 5 5 0) (vec3 5 5 h))
`
	j, evalErrs, err := eng.Evaluate(source)
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("unexpected eval errors: %v", evalErrs)
	}
	if len(j.Panels) != 1 || len(j.VerticalEdges) != 1 {
		t.Fatalf("got %d panels, %d vertical edges", len(j.Panels), len(j.VerticalEdges))
	}
	if j.VerticalEdges[0][1].Z != 4 {
		t.Errorf("vertical edge top = %v, want z=4", j.VerticalEdges[0][1])
	}
}

func TestEvaluateFreshJobPerCall(t *testing.T) {
	eng := NewEngine()
	src := `(curve (vec3 0 0 0) (vec3 1 0 0))`
	for i := 0; i < 2; i++ {
		j, _, err := eng.Evaluate(src)
		if err != nil {
			t.Fatalf("evaluate %d: %v", i, err)
		}
		if len(j.Curves) != 1 {
			t.Errorf("evaluation %d saw %d curves, want 1", i, len(j.Curves))
		}
	}
}

func TestEvaluateSyntaxError(t *testing.T) {
	eng := NewEngine()

	// Unmatched paren is a parse error.
	j, evalErrs, err := eng.Evaluate("(+ 1 2")
	if err != nil {
		t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
	}
	if j != nil {
		t.Fatal("expected nil job on syntax error")
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected at least one eval error for syntax error")
	}

	// The error message should contain something meaningful.
	msg := evalErrs[0].Message
	if msg == "" {
		t.Error("eval error message should not be empty")
	}
}

func TestEvaluateUndefinedSymbol(t *testing.T) {
	eng := NewEngine()

	// Referencing an undefined symbol should produce an eval error.
	j, evalErrs, err := eng.Evaluate("(+ 1 undefined-symbol)")
	if err != nil {
		t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
	}
	if j != nil {
		t.Fatal("expected nil job on eval error")
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected at least one eval error for undefined symbol")
	}
}

func TestEvaluateSyntaxErrorHasLineInfo(t *testing.T) {
	eng := NewEngine()

	// Put the error on line 2.
	source := "(+ 1 2)\n(+ 3"
	j, evalErrs, err := eng.Evaluate(source)
	if err != nil {
		t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
	}
	if j != nil {
		t.Fatal("expected nil job on syntax error")
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected at least one eval error")
	}

	// We expect the line number to be extracted from the zygomys error.
	// Line info may or may not be available depending on the error format;
	// we just check the error is populated.
	e := evalErrs[0]
	if e.Message == "" {
		t.Error("eval error message should not be empty")
	}
	// If line info was extracted, verify it's positive.
	if e.Line > 0 {
		t.Logf("extracted line info: line=%d, message=%q", e.Line, e.Message)
	} else {
		t.Logf("no line info extracted (line=0), message=%q", e.Message)
	}
}

func TestEvalErrorImplementsError(t *testing.T) {
	e := EvalError{Line: 5, Col: 0, Message: "something went wrong"}
	s := e.Error()
	if !strings.Contains(s, "line 5") {
		t.Errorf("Error() should contain line info, got: %s", s)
	}
	if !strings.Contains(s, "something went wrong") {
		t.Errorf("Error() should contain message, got: %s", s)
	}

	// No line info.
	e2 := EvalError{Line: 0, Col: 0, Message: "no location"}
	s2 := e2.Error()
	if strings.Contains(s2, "line") {
		t.Errorf("Error() with no line should not contain 'line', got: %s", s2)
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	eng := NewEngine()

	// Multiple evaluations of the same source should produce equivalent results.
	for i := 0; i < 5; i++ {
		j, evalErrs, err := eng.Evaluate(`(panel "p" (vec3 0 0 0) (vec3 1 0 0) (vec3 1 0 1))`)
		if err != nil {
			t.Fatalf("iteration %d: unexpected fatal error: %v", i, err)
		}
		if len(evalErrs) > 0 {
			t.Fatalf("iteration %d: unexpected eval errors: %v", i, evalErrs)
		}
		if j == nil {
			t.Fatalf("iteration %d: expected non-nil job", i)
		}
		if len(j.Panels) != 1 {
			t.Errorf("iteration %d: expected 1 panel, got %d", i, len(j.Panels))
		}
	}
}

func TestEvaluateTimeout(t *testing.T) {
	// A channel that never sends stands in for a script that never ends.
	var mu sync.Mutex
	var gen uint64 = 1
	ch := make(chan evalResult)

	start := time.Now()
	_, _, err := waitWithTimeout(ch, 1, 50*time.Millisecond, &mu, &gen)
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("expected timeout error message, got: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took %s", elapsed)
	}
}

func TestEvaluateUsesEngineTimeout(t *testing.T) {
	eng := NewEngine()
	if eng.timeout != EvalTimeout {
		t.Errorf("default timeout = %s, want %s", eng.timeout, EvalTimeout)
	}
	eng.timeout = time.Nanosecond
	// A 1ns budget may or may not beat the evaluation; either outcome must
	// be a clean return.
	_, _, err := eng.Evaluate("(+ 1 2)")
	if err != nil && !strings.Contains(err.Error(), "timed out") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestEvaluateGenerationDiscardsStale(t *testing.T) {
	// Test that a stale generation is detected.
	var mu sync.Mutex
	gen := uint64(2) // Current generation is 2

	ch := make(chan evalResult, 1)
	ch <- evalResult{job: nil, errors: nil, err: nil}

	// Pass generation 1 (stale).
	_, _, err := waitWithTimeout(ch, 1, time.Second, &mu, &gen)
	if err == nil {
		t.Fatal("expected error for stale generation")
	}
	if !strings.Contains(err.Error(), "superseded") {
		t.Errorf("expected superseded error, got: %v", err)
	}
}

func TestWaitReturnsCurrentResult(t *testing.T) {
	var mu sync.Mutex
	gen := uint64(3)
	want := job.New()
	ch := make(chan evalResult, 1)
	ch <- evalResult{job: want, errors: []EvalError{{Line: 2, Message: "x"}}}

	got, errs, err := waitWithTimeout(ch, 3, time.Second, &mu, &gen)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Error("expected the job sent on the channel")
	}
	if len(errs) != 1 || errs[0].Line != 2 {
		t.Errorf("eval errors = %v", errs)
	}
}

func TestParseZygomysError(t *testing.T) {
	tests := []struct {
		name     string
		msg      string
		wantLine int
		wantMsg  string
	}{
		{
			name:     "error on line format",
			msg:      "Error on line 5: unexpected token\n",
			wantLine: 5,
			wantMsg:  "unexpected token",
		},
		{
			name:     "no line info",
			msg:      "some generic error",
			wantLine: 0,
			wantMsg:  "some generic error",
		},
		{
			name:     "line format lowercase",
			msg:      "error on line 12: missing paren",
			wantLine: 12,
			wantMsg:  "missing paren",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := parseZygomysError(errString(tt.msg))
			if len(errs) == 0 {
				t.Fatal("expected at least one error")
			}
			e := errs[0]
			if e.Line != tt.wantLine {
				t.Errorf("line = %d, want %d", e.Line, tt.wantLine)
			}
			if !strings.Contains(e.Message, tt.wantMsg) {
				t.Errorf("message = %q, want containing %q", e.Message, tt.wantMsg)
			}
		})
	}
}

// errString is a simple error type for testing.
type errString string

func (e errString) Error() string { return string(e) }
