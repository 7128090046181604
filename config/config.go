// Package config loads the machine configuration from TOML and turns it
// into the motion.MachineConfig the pipeline consumes.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"gostep/motion"
)

// Axis is the TOML shape of one axis section.
type Axis struct {
	Mode         string  `toml:"mode"` // standard, inhibited, radius, slaved
	StepsPerUnit float64 `toml:"steps_per_unit"`
	MaxVelocity  float64 `toml:"max_velocity"`
	MaxFeed      float64 `toml:"max_feed"`
	MaxAccel     float64 `toml:"max_accel"`
	MaxJerk      float64 `toml:"max_jerk"`
	TravelMin    float64 `toml:"travel_min"`
	TravelMax    float64 `toml:"travel_max"`
	InvertDir    bool    `toml:"invert_dir"`
	Microsteps   int     `toml:"microsteps"`
	Idle         string  `toml:"idle"` // powered, off
	Radius       float64 `toml:"radius"`
	SlaveOf      string  `toml:"slave_of"`

	StepPin   string `toml:"step_pin"`
	DirPin    string `toml:"dir_pin"`
	EnablePin string `toml:"enable_pin"`
}

// File is the TOML shape of the whole configuration file.
type File struct {
	JunctionDeviation float64 `toml:"junction_deviation"`
	MaxVelocity       float64 `toml:"max_velocity"`
	MaxAccel          float64 `toml:"max_accel"`
	MaxJerk           float64 `toml:"max_jerk"`
	DefaultFeed       float64 `toml:"default_feed"`
	SegmentMS         float64 `toml:"segment_ms"`
	PulseWidthUS      float64 `toml:"pulse_width_us"`
	HardLimits        bool    `toml:"hard_limits"`

	Axes map[string]Axis `toml:"axes"`
}

// Load reads and parses a configuration file.
func Load(path string) (*motion.MachineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes TOML data, applies defaults and validates the result.
func Parse(data []byte) (*motion.MachineConfig, error) {
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	applyDefaults(&f)

	cfg, err := build(&f)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in missing values with sensible defaults.
func applyDefaults(f *File) {
	if f.JunctionDeviation == 0 {
		f.JunctionDeviation = 0.05
	}
	if f.MaxVelocity == 0 {
		f.MaxVelocity = 300.0
	}
	if f.MaxAccel == 0 {
		f.MaxAccel = 1000.0
	}
	if f.DefaultFeed == 0 {
		f.DefaultFeed = 50.0
	}
	if f.SegmentMS == 0 {
		f.SegmentMS = 5.0
	}
	if f.PulseWidthUS == 0 {
		f.PulseWidthUS = 2.0
	}
	for name, ax := range f.Axes {
		if ax.Mode == "" {
			ax.Mode = "standard"
		}
		if ax.StepsPerUnit == 0 {
			ax.StepsPerUnit = 80.0
		}
		if ax.MaxVelocity == 0 {
			ax.MaxVelocity = f.MaxVelocity
		}
		if ax.MaxFeed == 0 {
			ax.MaxFeed = ax.MaxVelocity
		}
		if ax.MaxAccel == 0 {
			ax.MaxAccel = f.MaxAccel
		}
		if ax.MaxJerk == 0 {
			ax.MaxJerk = f.MaxJerk
		}
		if ax.Microsteps == 0 {
			ax.Microsteps = 16
		}
		if ax.Idle == "" {
			ax.Idle = "powered"
		}
		f.Axes[name] = ax
	}
}

func axisIndex(name string) int {
	for i, n := range motion.AxisNames {
		if n == strings.ToLower(name) {
			return i
		}
	}
	return -1
}

func build(f *File) (*motion.MachineConfig, error) {
	cfg := &motion.MachineConfig{
		JunctionDeviation: f.JunctionDeviation,
		MaxVelocity:       f.MaxVelocity,
		MaxAccel:          f.MaxAccel,
		MaxJerk:           f.MaxJerk,
		DefaultFeed:       f.DefaultFeed,
		SegmentSeconds:    f.SegmentMS / 1000.0,
		PulseWidthUS:      f.PulseWidthUS,
		HardLimits:        f.HardLimits,
	}

	for name, ax := range f.Axes {
		i := axisIndex(name)
		if i < 0 {
			return nil, fmt.Errorf("config: unknown axis %q", name)
		}
		out := &cfg.Axes[i]

		switch ax.Mode {
		case "standard":
			out.Mode = motion.AxisStandard
		case "inhibited":
			out.Mode = motion.AxisInhibited
		case "radius":
			out.Mode = motion.AxisRadius
		case "slaved":
			out.Mode = motion.AxisSlaved
		case "disabled":
			out.Mode = motion.AxisDisabled
		default:
			return nil, fmt.Errorf("config: axis %s: unknown mode %q", name, ax.Mode)
		}

		switch ax.Idle {
		case "powered":
			out.IdlePolicy = motion.IdleKeepPowered
		case "off":
			out.IdlePolicy = motion.IdlePowerDown
		default:
			return nil, fmt.Errorf("config: axis %s: unknown idle policy %q", name, ax.Idle)
		}

		if ax.SlaveOf != "" {
			m := axisIndex(ax.SlaveOf)
			if m < 0 {
				return nil, fmt.Errorf("config: axis %s: unknown master %q", name, ax.SlaveOf)
			}
			out.SlaveOf = m
		}

		out.StepsPerUnit = ax.StepsPerUnit
		out.MaxVelocity = ax.MaxVelocity
		out.MaxFeed = ax.MaxFeed
		out.MaxAccel = ax.MaxAccel
		out.MaxJerk = ax.MaxJerk
		out.TravelMin = ax.TravelMin
		out.TravelMax = ax.TravelMax
		out.InvertDir = ax.InvertDir
		out.Microsteps = ax.Microsteps
		out.RadiusMM = ax.Radius
		out.StepPin = ax.StepPin
		out.DirPin = ax.DirPin
		out.EnablePin = ax.EnablePin
	}
	return cfg, nil
}

// Validate checks the assembled configuration for values the pipeline
// cannot run with.
func Validate(cfg *motion.MachineConfig) error {
	if cfg.SegmentSeconds < 0.0005 || cfg.SegmentSeconds > 0.05 {
		return fmt.Errorf("config: segment duration %gs out of range [0.5ms, 50ms]", cfg.SegmentSeconds)
	}
	if cfg.JunctionDeviation < 0 {
		return fmt.Errorf("config: negative junction deviation")
	}
	if cfg.MaxVelocity <= 0 || cfg.MaxAccel <= 0 {
		return fmt.Errorf("config: machine velocity and acceleration must be positive")
	}

	enabled := 0
	for i := 0; i < motion.NumAxes; i++ {
		ax := &cfg.Axes[i]
		if ax.Mode == motion.AxisDisabled {
			continue
		}
		enabled++
		name := motion.AxisNames[i]
		if ax.StepsPerUnit <= 0 {
			return fmt.Errorf("config: axis %s: steps_per_unit must be positive", name)
		}
		if ax.MaxAccel <= 0 {
			return fmt.Errorf("config: axis %s: max_accel must be positive", name)
		}
		if ax.Mode == motion.AxisRadius && ax.RadiusMM <= 0 {
			return fmt.Errorf("config: axis %s: radius mode needs a positive radius", name)
		}
		if ax.Mode == motion.AxisSlaved {
			m := ax.SlaveOf
			if m < 0 || m >= motion.NumAxes || m == i {
				return fmt.Errorf("config: axis %s: bad master axis", name)
			}
			if cfg.Axes[m].Mode == motion.AxisDisabled || cfg.Axes[m].Mode == motion.AxisSlaved {
				return fmt.Errorf("config: axis %s: master %s not usable", name, motion.AxisNames[m])
			}
		}
	}
	if enabled == 0 {
		return fmt.Errorf("config: no axes configured")
	}
	return nil
}

// Default returns a three-axis milling configuration used when no file is
// given.
func Default() *motion.MachineConfig {
	f := File{
		Axes: map[string]Axis{
			"x": {StepsPerUnit: 80, MaxVelocity: 300, MaxFeed: 200, MaxAccel: 3000, TravelMin: 0, TravelMax: 220},
			"y": {StepsPerUnit: 80, MaxVelocity: 300, MaxFeed: 200, MaxAccel: 3000, TravelMin: 0, TravelMax: 220},
			"z": {StepsPerUnit: 400, MaxVelocity: 20, MaxFeed: 10, MaxAccel: 100, TravelMin: -100, TravelMax: 0},
		},
	}
	applyDefaults(&f)
	cfg, err := build(&f)
	if err != nil {
		panic(err)
	}
	return cfg
}
