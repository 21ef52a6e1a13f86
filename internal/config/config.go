// Package config loads the optional YAML file accepted by cmd/nanoemu's
// -config flag: machine-level knobs that don't belong on the command
// line for every run. Command-line flags always win over values loaded
// here; Config itself has no opinion on precedence, it just parses.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config mirrors the -trace/-monitor CLI flags plus two knobs with no
// flag equivalent: a list of PCs to break execution at, and where the
// monitor's final screen dump is written.
type Config struct {
	Trace   bool `yaml:"trace,omitempty"`
	Monitor bool `yaml:"monitor,omitempty"`

	Breakpoints []uint64 `yaml:"breakpoints,omitempty"`
	MonitorDump string   `yaml:"monitorDump,omitempty"`
}

// Load parses the YAML file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
