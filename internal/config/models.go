package config

import (
	"fmt"
	"time"

	"github.com/muurk/trbr/internal/gdb"
	"github.com/muurk/trbr/internal/target"
)

// CurrentVersion is the config file schema version.
const CurrentVersion = 1

// Config holds the user defaults for decoding. Zero values mean "use the
// built-in default".
type Config struct {
	Version int `yaml:"version"`
	// GDBPath overrides the toolchain gdb picked for the target.
	GDBPath string `yaml:"gdb_path,omitempty"`
	// Target is the default target key, e.g. "xtensa" or "esp32c3".
	Target string `yaml:"target,omitempty"`
	// Timeout bounds each batch gdb run.
	Timeout time.Duration `yaml:"timeout,omitempty"`
	// GlobalsTimeout bounds the global symbol listing.
	GlobalsTimeout time.Duration `yaml:"globals_timeout,omitempty"`
	// AllowInfoVariables enables the slow "info variables" fallback for
	// panic decoding.
	AllowInfoVariables bool `yaml:"allow_info_variables,omitempty"`
	SkipGlobals        bool `yaml:"skip_globals,omitempty"`
	MaxVarDepth        int  `yaml:"max_var_depth,omitempty"`
	MaxVarChildren     int  `yaml:"max_var_children,omitempty"`
}

// New returns a config carrying the built-in defaults.
func New() *Config {
	limits := gdb.DefaultVarLimits()
	return &Config{
		Version:        CurrentVersion,
		Target:         string(target.Default),
		Timeout:        gdb.DefaultTimeout,
		GlobalsTimeout: gdb.DefaultGlobalsTimeout,
		MaxVarDepth:    limits.Depth,
		MaxVarChildren: limits.Children,
	}
}

// Arch returns the configured target.
func (c *Config) Arch() (target.Arch, error) {
	if c.Target == "" {
		return target.Default, nil
	}
	return target.Parse(c.Target)
}

// VarLimits returns the local variable expansion bounds, filling unset
// fields from gdb.DefaultVarLimits.
func (c *Config) VarLimits() gdb.VarLimits {
	limits := gdb.DefaultVarLimits()
	if c.MaxVarDepth > 0 {
		limits.Depth = c.MaxVarDepth
	}
	if c.MaxVarChildren > 0 {
		limits.Children = c.MaxVarChildren
	}
	return limits
}

// Validate checks the values a user could have mistyped.
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return fmt.Errorf("unsupported config version: %d (expected %d)", c.Version, CurrentVersion)
	}
	if _, err := c.Arch(); err != nil {
		return err
	}
	if c.Timeout < 0 || c.GlobalsTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.MaxVarDepth < 0 || c.MaxVarChildren < 0 {
		return fmt.Errorf("variable limits must not be negative")
	}
	return nil
}
