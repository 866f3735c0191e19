// Package config loads wafel defaults from a TOML or YAML file.
//
// A config file supplies the joinery and tool-path settings used when a job
// script does not set them, plus named G-code snippets for the start and
// end of a program. Keys missing from the file keep their built-in
// defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/wafel/pkg/joinery"
	"github.com/chazu/wafel/pkg/toolpath"
	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrSnippetNotFound is returned when a snippet is in neither the table nor
// the snippet directory.
var ErrSnippetNotFound = errors.New("config: snippet not found")

// Config holds the defaults for a run.
type Config struct {
	Joinery  joinery.Params  `json:"joinery" toml:"joinery" yaml:"joinery"`
	Toolpath toolpath.Params `json:"toolpath" toml:"toolpath" yaml:"toolpath"`
	Preview  Preview         `json:"preview" toml:"preview" yaml:"preview"`

	// Snippets maps a name to G-code text. SnippetDir is searched for
	// "<name>" and "<name>.gcode" when a name is not in the table.
	Snippets   map[string]string `json:"snippets" toml:"snippets" yaml:"snippets"`
	SnippetDir string            `json:"snippet_dir" toml:"snippet_dir" yaml:"snippet_dir"`

	LogLevel string `json:"log_level" toml:"log_level" yaml:"log_level"`
}

// Preview holds mesh preview defaults.
type Preview struct {
	Cells int `json:"cells" toml:"cells" yaml:"cells"`
}

var _ toolpath.SnippetSource = (*Config)(nil)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Joinery:  joinery.DefaultParams(),
		Toolpath: toolpath.DefaultParams(),
		Preview:  Preview{Cells: 200},
		LogLevel: "info",
	}
}

// Load reads path on top of the defaults. The format follows the file
// extension: .toml, .yaml or .yml. A leading "~" is expanded, and a
// relative snippet directory is taken relative to the file.
func Load(path string) (*Config, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(expanded)); ext {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("config: unsupported file type %q, expected .toml, .yaml or .yml", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", expanded, err)
	}

	if cfg.SnippetDir != "" {
		dir, err := homedir.Expand(cfg.SnippetDir)
		if err != nil {
			return nil, fmt.Errorf("config: snippet_dir: %w", err)
		}
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(filepath.Dir(expanded), dir)
		}
		cfg.SnippetDir = dir
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", expanded, err)
	}
	return cfg, nil
}

// Validate checks the parameter sections.
func (c *Config) Validate() error {
	if err := c.Joinery.Validate(); err != nil {
		return fmt.Errorf("joinery: %w", err)
	}
	if err := c.Toolpath.Validate(); err != nil {
		return fmt.Errorf("toolpath: %w", err)
	}
	if c.Preview.Cells < 0 {
		return fmt.Errorf("preview: cells is %d, must not be negative", c.Preview.Cells)
	}
	return nil
}

// Snippet returns the lines of the named snippet, looking in the table
// first and then in the snippet directory.
func (c *Config) Snippet(name string) ([]string, error) {
	if text, ok := c.Snippets[name]; ok {
		return toolpath.SplitLines(text), nil
	}
	if c.SnippetDir != "" && name == filepath.Base(name) {
		for _, candidate := range []string{name, name + ".gcode"} {
			data, err := os.ReadFile(filepath.Join(c.SnippetDir, candidate))
			if err == nil {
				return toolpath.SplitLines(string(data)), nil
			}
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("config: snippet %q: %w", name, err)
			}
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrSnippetNotFound, name)
}
