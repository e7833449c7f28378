/*
Package config provides the powermeter settings, read from an optional yaml
file and overridden by POWERMETER_* environment variables.
*/
/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/intel/powermeter/internal/derived"
	"github.com/intel/powermeter/internal/util"
	"github.com/joho/godotenv"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v2"
)

const EnvPrefix = "POWERMETER_"

// Domains that can be sampled.
var Domains = []string{"package", "cores"}

type Config struct {
	IntervalMS       int                  `default:"100" yaml:"interval_ms"`
	DurationS        int                  `default:"0" yaml:"duration_s"` // 0 runs until interrupted
	OutputDir        string               `default:"power_meter_out" yaml:"output_dir"`
	CPUFile          string               `default:"cpu" yaml:"cpu_file"`
	GPUFile          string               `default:"gpu" yaml:"gpu_file"`
	Domain           string               `default:"package" yaml:"domain"`
	GPU              bool                 `default:"true" yaml:"gpu"`
	Console          bool                 `default:"false" yaml:"console"`
	PrometheusListen string               `yaml:"prometheus_listen"`
	SysfsRoot        string               `default:"/sys" yaml:"sysfs_root"`
	MSRRoot          string               `default:"/dev/cpu" yaml:"msr_root"`
	Derived          []derived.Definition `yaml:"derived"`
}

func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	if err := defaults.Set(c); err != nil {
		return err
	}
	type plain Config
	if err := unmarshal((*plain)(c)); err != nil {
		return err
	}
	return nil
}

func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

func (c Config) Duration() time.Duration {
	return time.Duration(c.DurationS) * time.Second
}

// Default returns the configuration used when no file is given.
func Default() (cfg Config) {
	defaults.Set(&cfg)
	return
}

// Load reads the yaml file at path. An empty path yields the defaults.
func Load(path string) (cfg Config, err error) {
	if path == "" {
		cfg = Default()
		return
	}
	path, err = util.AbsPath(path)
	if err != nil {
		return
	}
	yamlBytes, err := os.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("failed to read config file: %v", err)
		return
	}
	cfg = Default()
	err = yaml.UnmarshalStrict(yamlBytes, &cfg)
	if err != nil {
		err = fmt.Errorf("failed to parse config file %s: %v", path, err)
	}
	return
}

// LoadEnvFile adds the variables in a .env style file to the environment
// without replacing variables that are already set. A missing file is not an
// error.
func LoadEnvFile(path string) (err error) {
	exists, err := util.FileExists(path)
	if err != nil || !exists {
		return
	}
	err = godotenv.Load(path)
	return
}

// ApplyEnv overrides settings from POWERMETER_* environment variables.
func (c *Config) ApplyEnv() (err error) {
	strs := map[string]*string{
		"OUTPUT_DIR":        &c.OutputDir,
		"CPU_FILE":          &c.CPUFile,
		"GPU_FILE":          &c.GPUFile,
		"DOMAIN":            &c.Domain,
		"PROMETHEUS_LISTEN": &c.PrometheusListen,
		"SYSFS_ROOT":        &c.SysfsRoot,
		"MSR_ROOT":          &c.MSRRoot,
	}
	for name, dst := range strs {
		if val, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = val
		}
	}
	ints := map[string]*int{
		"INTERVAL_MS": &c.IntervalMS,
		"DURATION_S":  &c.DurationS,
	}
	for name, dst := range ints {
		if val, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst, err = strconv.Atoi(strings.TrimSpace(val))
			if err != nil {
				err = fmt.Errorf("%s%s: %v", EnvPrefix, name, err)
				return
			}
		}
	}
	bools := map[string]*bool{
		"GPU":     &c.GPU,
		"CONSOLE": &c.Console,
	}
	for name, dst := range bools {
		if val, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst, err = strconv.ParseBool(strings.TrimSpace(val))
			if err != nil {
				err = fmt.Errorf("%s%s: %v", EnvPrefix, name, err)
				return
			}
		}
	}
	return
}

func (c Config) Validate() (err error) {
	if c.IntervalMS <= 0 {
		err = fmt.Errorf("sampling interval must be greater than 0 ms, got %d", c.IntervalMS)
		return
	}
	if c.DurationS < 0 {
		err = fmt.Errorf("duration must not be negative, got %d", c.DurationS)
		return
	}
	if !slices.Contains(Domains, strings.ToLower(c.Domain)) {
		err = fmt.Errorf("domain must be one of %s, got %s", strings.Join(Domains, ", "), c.Domain)
		return
	}
	if c.OutputDir == "" || c.CPUFile == "" || c.GPUFile == "" {
		err = fmt.Errorf("output directory and file names must not be empty")
		return
	}
	if c.CPUFile == c.GPUFile {
		err = fmt.Errorf("cpu and gpu output files must differ, both are %s", c.CPUFile)
	}
	return
}

func (c Config) String() string {
	out, err := yaml.Marshal(c)
	if err != nil {
		return err.Error()
	}
	return string(out)
}
