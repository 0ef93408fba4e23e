package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "physics.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
gravity: [0, -3.7, 0]
fixed_timestep: 0.02
max_substeps: 8
cell_size: 10
sleep:
  linear_threshold: 0.1
  angular_threshold: 0.5
  time: 1.5
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	d := cfg.Dynamics()
	if d.Gravity.Y() != -3.7 {
		t.Errorf("Expected gravity y -3.7, got %v", d.Gravity.Y())
	}
	if d.FixedTimestep != 0.02 {
		t.Errorf("Expected fixed timestep 0.02, got %v", d.FixedTimestep)
	}
	if d.MaxSubsteps != 8 {
		t.Errorf("Expected 8 max substeps, got %d", d.MaxSubsteps)
	}
	if d.SleepTime != 1.5 {
		t.Errorf("Expected sleep time 1.5, got %v", d.SleepTime)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `gravity: [0, -9.81, 0]`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	d := cfg.Dynamics()
	def := Default().Dynamics()
	if d.FixedTimestep != def.FixedTimestep {
		t.Errorf("Expected default timestep %v, got %v", def.FixedTimestep, d.FixedTimestep)
	}
	if d.CellSize != def.CellSize {
		t.Errorf("Expected default cell size %v, got %v", def.CellSize, d.CellSize)
	}
}

func TestLoadConfigRejectsNegatives(t *testing.T) {
	path := writeConfig(t, `fixed_timestep: -1`)

	if _, err := Load(path); err == nil {
		t.Error("Expected error for negative timestep")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestLoadConfigBadYaml(t *testing.T) {
	path := writeConfig(t, "gravity: [not, a, number")

	if _, err := Load(path); err == nil {
		t.Error("Expected error for malformed yaml")
	}
}
