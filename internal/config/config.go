package config

import (
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"

	"phys3d/internal/dynamics"
)

// Config is the on-disk simulation tuning file.
type Config struct {
	Gravity       [3]float32 `yaml:"gravity"`
	FixedTimestep float32    `yaml:"fixed_timestep"`
	MaxSubsteps   int        `yaml:"max_substeps"`
	CellSize      float32    `yaml:"cell_size"`

	Sleep struct {
		LinearThreshold  float32 `yaml:"linear_threshold"`
		AngularThreshold float32 `yaml:"angular_threshold"`
		Time             float32 `yaml:"time"`
	} `yaml:"sleep"`
}

// Default returns the config matching the simulation defaults.
func Default() Config {
	var c Config
	c.fromDynamics(dynamics.DefaultConfig())
	return c
}

func (c *Config) fromDynamics(d dynamics.Config) {
	c.Gravity = [3]float32{d.Gravity.X(), d.Gravity.Y(), d.Gravity.Z()}
	c.FixedTimestep = d.FixedTimestep
	c.MaxSubsteps = d.MaxSubsteps
	c.CellSize = d.CellSize
	c.Sleep.LinearThreshold = d.SleepLinearThreshold
	c.Sleep.AngularThreshold = d.SleepAngularThreshold
	c.Sleep.Time = d.SleepTime
}

// Dynamics converts the file values into a simulation config. Zero or
// missing fields fall back to the defaults.
func (c Config) Dynamics() dynamics.Config {
	d := dynamics.DefaultConfig()
	if c.Gravity != ([3]float32{}) {
		d.Gravity = mgl32.Vec3{c.Gravity[0], c.Gravity[1], c.Gravity[2]}
	}
	if c.FixedTimestep > 0 {
		d.FixedTimestep = c.FixedTimestep
	}
	if c.MaxSubsteps > 0 {
		d.MaxSubsteps = c.MaxSubsteps
	}
	if c.CellSize > 0 {
		d.CellSize = c.CellSize
	}
	if c.Sleep.LinearThreshold > 0 {
		d.SleepLinearThreshold = c.Sleep.LinearThreshold
	}
	if c.Sleep.AngularThreshold > 0 {
		d.SleepAngularThreshold = c.Sleep.AngularThreshold
	}
	if c.Sleep.Time > 0 {
		d.SleepTime = c.Sleep.Time
	}
	return d
}

// Load reads and parses a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return c, nil
}

func (c Config) validate() error {
	if c.FixedTimestep < 0 {
		return fmt.Errorf("fixed_timestep must not be negative, got %v", c.FixedTimestep)
	}
	if c.MaxSubsteps < 0 {
		return fmt.Errorf("max_substeps must not be negative, got %d", c.MaxSubsteps)
	}
	if c.CellSize < 0 {
		return fmt.Errorf("cell_size must not be negative, got %v", c.CellSize)
	}
	return nil
}
