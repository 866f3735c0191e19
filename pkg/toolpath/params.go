package toolpath

import (
	"fmt"
	"strings"

	"github.com/chazu/wafel/pkg/fault"
)

// Mode selects how consecutive curves are joined.
type Mode int

const (
	// Continuous prints every curve as one unbroken stroke.
	Continuous Mode = iota
	// Retract lifts and retracts the filament between curves.
	Retract
)

func (m Mode) String() string {
	switch m {
	case Continuous:
		return "cont"
	case Retract:
		return "retr"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts "cont"/"continuous" and "retr"/"retraction".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cont", "continuous":
		return Continuous, nil
	case "retr", "retract", "retraction":
		return Retract, nil
	}
	return 0, fmt.Errorf("toolpath: invalid mode %q, expected cont or retr", s)
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// RetractionMode selects how retraction is expressed in the program.
type RetractionMode int

const (
	// RetractGCode moves the extruder axis explicitly (G0 E / G1 E).
	RetractGCode RetractionMode = iota
	// RetractFirmware emits G10/G11 and leaves the amounts to the printer.
	RetractFirmware
)

func (r RetractionMode) String() string {
	switch r {
	case RetractGCode:
		return "gcode"
	case RetractFirmware:
		return "firmware"
	default:
		return fmt.Sprintf("RetractionMode(%d)", int(r))
	}
}

// ParseRetractionMode accepts "gcode" and "firmware".
func ParseRetractionMode(s string) (RetractionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gcode":
		return RetractGCode, nil
	case "firmware":
		return RetractFirmware, nil
	}
	return 0, fmt.Errorf("toolpath: invalid retraction mode %q, expected gcode or firmware", s)
}

func (r RetractionMode) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *RetractionMode) UnmarshalText(b []byte) error {
	v, err := ParseRetractionMode(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// Retraction holds the filament and head moves made between curves.
type Retraction struct {
	Pull float64 `json:"pull" toml:"pull" yaml:"pull"`    // filament drawn back after a curve
	Push float64 `json:"push" toml:"push" yaml:"push"`    // filament fed before the next curve
	ZHop float64 `json:"z_hop" toml:"z_hop" yaml:"z_hop"` // lift above the highest point so far
}

// Params controls linearization and emission.
type Params struct {
	Mode           Mode           `json:"mode" toml:"mode" yaml:"mode"`
	SortLayers     bool           `json:"sort_layers" toml:"sort_layers" yaml:"sort_layers"`
	SortPoints     bool           `json:"sort_points" toml:"sort_points" yaml:"sort_points"`
	CloseShapes    bool           `json:"close_shapes" toml:"close_shapes" yaml:"close_shapes"`
	Nozzle         float64        `json:"nozzle" toml:"nozzle" yaml:"nozzle"`
	Filament       float64        `json:"filament" toml:"filament" yaml:"filament"`
	LayerHeight    float64        `json:"layer_height" toml:"layer_height" yaml:"layer_height"`          // used when no layer stream is given
	FlowMultiplier float64        `json:"flow_multiplier" toml:"flow_multiplier" yaml:"flow_multiplier"` // used when no flow stream is given
	Feed           float64        `json:"feed" toml:"feed" yaml:"feed"`
	FeedVertical   float64        `json:"feed_vertical" toml:"feed_vertical" yaml:"feed_vertical"`
	FeedHorizontal float64        `json:"feed_horizontal" toml:"feed_horizontal" yaml:"feed_horizontal"`
	Retraction     Retraction     `json:"retraction" toml:"retraction" yaml:"retraction"`
	RetractionMode RetractionMode `json:"retraction_mode" toml:"retraction_mode" yaml:"retraction_mode"`
}

// DefaultParams returns settings for a 0.4 mm nozzle on 1.75 mm filament.
func DefaultParams() Params {
	return Params{
		Mode:           Continuous,
		SortLayers:     true,
		Nozzle:         0.4,
		Filament:       1.75,
		LayerHeight:    0.1,
		FlowMultiplier: 1,
		Feed:           1000,
		FeedVertical:   500,
		FeedHorizontal: 2000,
		Retraction:     Retraction{Pull: 5, Push: 5, ZHop: 2},
		RetractionMode: RetractGCode,
	}
}

// Validate rejects parameters no program can be built from.
func (p Params) Validate() error {
	switch {
	case p.Nozzle <= 0:
		return fault.Shape("nozzle", "must be positive, got %g", p.Nozzle)
	case p.Filament <= 0:
		return fault.Shape("filament", "must be positive, got %g", p.Filament)
	case p.LayerHeight < 0:
		return fault.Shape("layer_height", "must not be negative, got %g", p.LayerHeight)
	case p.FlowMultiplier < 0:
		return fault.Shape("flow_multiplier", "must not be negative, got %g", p.FlowMultiplier)
	case p.Feed < 0 || p.FeedVertical < 0 || p.FeedHorizontal < 0:
		return fault.Shape("feed", "feed rates must not be negative")
	case p.Retraction.Pull < 0 || p.Retraction.Push < 0 || p.Retraction.ZHop < 0:
		return fault.Shape("retraction", "pull, push and z hop must not be negative")
	}
	return nil
}
