// Package engine evaluates wafel job scripts. It wraps zygomys in a
// sandboxed environment and produces a job.Job from user source code.
package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chazu/wafel/pkg/job"
	"github.com/chazu/wafel/pkg/joinery"
	"github.com/chazu/wafel/pkg/toolpath"
	zygo "github.com/glycerine/zygomys/zygo"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a runtime error in user code.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// Defaults seed the settings a script starts from. A (wafel ...) or
// (gcode ...) form only overrides the keys it names.
type Defaults struct {
	Joinery  joinery.Params
	Toolpath toolpath.Params
	Cells    int
}

// DefaultDefaults returns the package defaults of joinery and toolpath.
func DefaultDefaults() Defaults {
	return Defaults{
		Joinery:  joinery.DefaultParams(),
		Toolpath: toolpath.DefaultParams(),
	}
}

// Engine wraps the zygomys interpreter for job evaluation.
// It is safe for concurrent use; each call to Evaluate creates a fresh
// sandboxed environment for determinism.
type Engine struct {
	mu         sync.Mutex
	generation uint64
	defaults   Defaults
	timeout    time.Duration
}

// NewEngine creates a new Engine with the package defaults.
func NewEngine() *Engine {
	return &Engine{defaults: DefaultDefaults(), timeout: EvalTimeout}
}

// SetDefaults replaces the settings later evaluations start from.
func (e *Engine) SetDefaults(d Defaults) {
	e.mu.Lock()
	e.defaults = d
	e.mu.Unlock()
}

// Evaluate takes script source and produces a new Job.
// Each call creates a fresh zygomys sandbox for deterministic evaluation.
//
// Return semantics:
//   - On success: returns job + nil errors + nil error
//   - On parse/eval failure: returns nil job + eval errors + nil error
//   - On fatal failure (timeout, panic): returns nil + nil + error
func (e *Engine) Evaluate(source string) (*job.Job, []EvalError, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	defaults := e.defaults
	timeout := e.timeout
	e.mu.Unlock()

	ch := make(chan evalResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		j, evalErrs, err := evaluate(source, defaults)
		ch <- evalResult{job: j, errors: evalErrs, err: err}
	}()

	return waitWithTimeout(ch, gen, timeout, &e.mu, &e.generation)
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func evaluate(source string, d Defaults) (*job.Job, []EvalError, error) {
	// Empty source is a valid program that produces an empty job.
	if strings.TrimSpace(source) == "" {
		return job.New(), nil, nil
	}

	// Sandbox mode prevents user code from accessing the filesystem or syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()

	j := job.New()
	registerBuiltins(env, j, d)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		return nil, parseZygomysError(err), nil
	}
	if _, err := env.Run(); err != nil {
		return nil, parseZygomysError(err), nil
	}
	return j, nil, nil
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError values.
// It attempts to extract line number information from the error message.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	// zygomys formats parse errors as "Error on line N: <details>\n"
	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{Line: line, Message: strings.TrimSpace(m[2])}}
		}
	}

	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
