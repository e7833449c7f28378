/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/intel/powermeter/internal/derived"
	"gopkg.in/yaml.v2"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	want := Config{
		IntervalMS: 100,
		OutputDir:  "power_meter_out",
		CPUFile:    "cpu",
		GPUFile:    "gpu",
		Domain:     "package",
		GPU:        true,
		SysfsRoot:  "/sys",
		MSRRoot:    "/dev/cpu",
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Interval() != 100*time.Millisecond {
		t.Fatalf("interval %v", cfg.Interval())
	}
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "powermeter.yaml", `
interval_ms: 250
gpu: false
domain: cores
derived:
  - name: kwh
    expression: total_energy / 3600000
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.IntervalMS != 250 || cfg.GPU || cfg.Domain != "cores" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	// untouched keys keep their defaults
	if cfg.OutputDir != "power_meter_out" || cfg.CPUFile != "cpu" {
		t.Fatalf("defaults lost %+v", cfg)
	}
	if diff := cmp.Diff([]derived.Definition{{Name: "kwh", Expression: "total_energy / 3600000"}}, cfg.Derived); diff != "" {
		t.Fatalf("derived mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadStrict(t *testing.T) {
	path := writeFile(t, "powermeter.yaml", "interval: 250\n")
	if _, err := Load(path); err == nil {
		t.Fatal("unknown key should fail")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file should fail")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("POWERMETER_INTERVAL_MS", "50")
	t.Setenv("POWERMETER_GPU", "false")
	t.Setenv("POWERMETER_OUTPUT_DIR", "/tmp/out")
	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatal(err)
	}
	if cfg.IntervalMS != 50 || cfg.GPU || cfg.OutputDir != "/tmp/out" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	t.Setenv("POWERMETER_INTERVAL_MS", "fast")
	if err := cfg.ApplyEnv(); err == nil {
		t.Fatal("bad integer should fail")
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := writeFile(t, ".env", "POWERMETER_DURATION_S=30\nPOWERMETER_CPU_FILE=pkg\n")
	t.Setenv("POWERMETER_CPU_FILE", "already_set")
	if err := LoadEnvFile(path); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("POWERMETER_DURATION_S") })
	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatal(err)
	}
	if cfg.DurationS != 30 {
		t.Fatalf("duration %d", cfg.DurationS)
	}
	if cfg.CPUFile != "already_set" {
		t.Fatalf("env file replaced an existing variable: %s", cfg.CPUFile)
	}
	if err := LoadEnvFile(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Fatalf("missing env file: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := map[string]func(*Config){
		"zero interval":     func(c *Config) { c.IntervalMS = 0 },
		"negative interval": func(c *Config) { c.IntervalMS = -5 },
		"negative duration": func(c *Config) { c.DurationS = -1 },
		"dram domain":       func(c *Config) { c.Domain = "dram" },
		"same files":        func(c *Config) { c.GPUFile = c.CPUFile },
		"empty dir":         func(c *Config) { c.OutputDir = "" },
	}
	for name, mutate := range tests {
		cfg := Default()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: should have failed", name)
		}
	}
}

func TestUnmarshalYAML(t *testing.T) {
	var cfg Config
	if err := yaml.Unmarshal([]byte("domain: cores\n"), &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.IntervalMS != 100 || cfg.Domain != "cores" || cfg.OutputDir != "power_meter_out" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	failed := errors.New("bad document")
	if err := cfg.UnmarshalYAML(func(interface{}) error { return failed }); !errors.Is(err, failed) {
		t.Fatalf("expected the unmarshal error, got %v", err)
	}
}
