// Package fault defines the error taxonomy shared by the joinery and
// tool-path packages.
//
// Geometry anomalies are normally recovered where they occur; the types here
// are for conditions the caller has to see: malformed inputs, degenerate
// geometry a helper cannot resolve, and file I/O on the motion program.
package fault

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is matching across wrapped errors.
var (
	ErrInputShape = errors.New("input shape")
	ErrDegenerate = errors.New("degenerate geometry")
	ErrIO         = errors.New("i/o")
)

// InputShapeError reports mismatched, missing or out-of-range input lists.
type InputShapeError struct {
	Field string // which input stream or parameter
	Index int    // element index, -1 when not applicable
	Msg   string
}

func (e *InputShapeError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("input shape: %s[%d]: %s", e.Field, e.Index, e.Msg)
	}
	return fmt.Sprintf("input shape: %s: %s", e.Field, e.Msg)
}

func (e *InputShapeError) Is(target error) bool { return target == ErrInputShape }

// Shape builds an InputShapeError for a whole field.
func Shape(field, format string, args ...any) error {
	return &InputShapeError{Field: field, Index: -1, Msg: fmt.Sprintf(format, args...)}
}

// ShapeAt builds an InputShapeError for one element of a field.
func ShapeAt(field string, index int, format string, args ...any) error {
	return &InputShapeError{Field: field, Index: index, Msg: fmt.Sprintf(format, args...)}
}

// DegenerateError reports zero-length directions, undefined normals or
// coincident points where a construction needs distinct ones.
type DegenerateError struct {
	Op  string
	Msg string
}

func (e *DegenerateError) Error() string {
	return fmt.Sprintf("degenerate geometry: %s: %s", e.Op, e.Msg)
}

func (e *DegenerateError) Is(target error) bool { return target == ErrDegenerate }

// Degenerate builds a DegenerateError.
func Degenerate(op, msg string) error {
	return &DegenerateError{Op: op, Msg: msg}
}

// IOError wraps a failure to produce the motion program file.
type IOError struct {
	Op   string // "open", "write" or "close"
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("i/o: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrIO }
