package toolpath

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chazu/wafel/pkg/fault"
	"github.com/chazu/wafel/pkg/logx"
	"github.com/mitchellh/go-homedir"
)

// SnippetSource resolves named blocks of custom G-code.
type SnippetSource interface {
	Snippet(name string) ([]string, error)
}

// SnippetMap is an in-memory SnippetSource.
type SnippetMap map[string]string

// Snippet returns the lines of the named snippet.
func (m SnippetMap) Snippet(name string) ([]string, error) {
	text, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("toolpath: snippet %q not found", name)
	}
	return SplitLines(text), nil
}

// SplitLines splits text into lines, dropping carriage returns and a
// single trailing newline.
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// Write emits prog as G-code. start lines follow the extruder reset and
// end lines close the program.
func Write(w io.Writer, prog *Program, start, end []string) error {
	bw := bufio.NewWriter(w)
	fmt.Fprint(bw, "G92 E0\n")
	for _, line := range start {
		fmt.Fprintln(bw, line)
	}
	firmware := prog.Params.RetractionMode == RetractFirmware
	for _, m := range prog.Moves {
		switch m.Kind {
		case MoveStart, MoveTravel:
			fmt.Fprintf(bw, "G1 X%.4f Y%.4f Z%.4f F%.0f\n", m.Pos.X, m.Pos.Y, m.Pos.Z, m.Feed)
		case MoveExtrude:
			fmt.Fprintf(bw, "G1 X%.4f Y%.4f Z%.4f E%.4f\n", m.Pos.X, m.Pos.Y, m.Pos.Z, m.E)
		case MoveUnretract:
			if firmware {
				fmt.Fprint(bw, "G11\n")
			} else {
				fmt.Fprintf(bw, "G1 E%.4f\n", m.E)
			}
		case MoveRetract:
			if firmware {
				fmt.Fprint(bw, "G10\n")
			} else {
				fmt.Fprintf(bw, "G0 E%.4f\n", m.E)
			}
		default:
			return fmt.Errorf("toolpath: unknown move kind %v", m.Kind)
		}
	}
	for _, line := range end {
		fmt.Fprintln(bw, line)
	}
	return bw.Flush()
}

// WriteFile writes prog to path, adding a ".gcode" extension when path has
// none and expanding a leading "~". The named start and end snippets are
// looked up in snippets; a name that cannot be resolved is skipped. It
// returns the path written. Failures to produce the file are *fault.IOError.
func WriteFile(path string, prog *Program, snippets SnippetSource, startName, endName string) (written string, err error) {
	if !strings.HasSuffix(path, ".gcode") {
		path += ".gcode"
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", &fault.IOError{Op: "open", Path: path, Err: err}
	}
	path = expanded

	f, err := os.Create(path)
	if err != nil {
		return "", &fault.IOError{Op: "open", Path: path, Err: err}
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = &fault.IOError{Op: "close", Path: path, Err: cerr}
		}
	}()

	start := lookupSnippet(snippets, startName)
	end := lookupSnippet(snippets, endName)
	if err := Write(f, prog, start, end); err != nil {
		return "", &fault.IOError{Op: "write", Path: path, Err: err}
	}
	logx.Logger().Info("toolpath: program written", "path", path, "moves", len(prog.Moves))
	return path, nil
}

func lookupSnippet(src SnippetSource, name string) []string {
	if src == nil || name == "" {
		return nil
	}
	lines, err := src.Snippet(name)
	if err != nil {
		logx.Logger().Debug("toolpath: skipping snippet", "name", name, "err", err)
		return nil
	}
	return lines
}
