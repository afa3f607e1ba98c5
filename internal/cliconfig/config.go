// Package cliconfig resolves the dpp command-line configuration from three
// sources with fixed precedence: config file, then DPP_* environment
// variables, then explicitly set flags.
package cliconfig

import (
	"fmt"
	"strconv"
)

// Config holds the run-level settings the CLI can override. Stage sections
// (calibrate, register, ...) come from the config file only; overriding a
// whole stage from a flag is not supported.
type Config struct {
	Name      string
	InputDir  string
	WorkDir   string
	OutputDir string

	Workers       int
	DualCamera    bool
	Coronagraphic bool

	MetricsDB string
	DiagDir   string

	Watch   bool
	Verbose bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Name: "reduction",
	}
}

// Validate checks the resolved configuration.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.InputDir == "" {
		return fmt.Errorf("input-dir is required")
	}
	if c.WorkDir == "" {
		return fmt.Errorf("work-dir is required")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative")
	}
	return nil
}

// configSetter helps apply configuration values while respecting flag
// precedence. It only applies values if the corresponding flag hasn't been
// explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
