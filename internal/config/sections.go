package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/dshills/stepdb/internal/logging"
)

// DebuggerConfig holds debugger engine settings.
type DebuggerConfig struct {
	// BreakpointsFile is the saved-breakpoints file, with ~ and environment
	// variables expanded. Empty disables persistence.
	BreakpointsFile string
	// SaveBreakpoints writes non-temporary breakpoints on exit.
	SaveBreakpoints bool
}

// SourceConfig holds source display settings.
type SourceConfig struct {
	// Watch drops cached lines of files that change on disk.
	Watch bool
	// ContextLines is the radius of the console listing around the
	// current line.
	ContextLines int
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string
	// File receives the log. Empty discards it.
	File string
}

// LogLevel returns the parsed level.
func (l LogConfig) LogLevel() logging.LogLevel {
	return logging.ParseLogLevel(l.Level)
}

// UIConfig holds console settings.
type UIConfig struct {
	// Color is auto, always or never.
	Color string
}

// Debugger returns type-safe access to debugger settings.
func (c *Config) Debugger() DebuggerConfig {
	return DebuggerConfig{
		BreakpointsFile: expandPath(c.getStringOr("debugger.breakpointsFile", "")),
		SaveBreakpoints: c.getBoolOr("debugger.saveBreakpoints", true),
	}
}

// SourceSettings returns type-safe access to source settings.
func (c *Config) SourceSettings() SourceConfig {
	return SourceConfig{
		Watch:        c.getBoolOr("source.watch", true),
		ContextLines: c.getIntOr("source.contextLines", 5),
	}
}

// Log returns type-safe access to logging settings.
func (c *Config) Log() LogConfig {
	return LogConfig{
		Level: c.getStringOr("log.level", "info"),
		File:  expandPath(c.getStringOr("log.file", "")),
	}
}

// UI returns type-safe access to console settings.
func (c *Config) UI() UIConfig {
	return UIConfig{
		Color: c.getStringOr("ui.color", ColorAuto),
	}
}

// expandPath expands environment variables and a leading ~.
func expandPath(path string) string {
	if path == "" {
		return ""
	}
	path = os.ExpandEnv(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	return path
}

// These methods only return the default for ErrSettingNotFound.
// Type errors return the default too but are recorded, see ConfigErrors.

func (c *Config) getStringOr(path string, defaultValue string) string {
	v, err := c.GetString(path)
	if err != nil {
		if !errors.Is(err, ErrSettingNotFound) {
			c.recordConfigError(path, err)
		}
		return defaultValue
	}
	return v
}

func (c *Config) getIntOr(path string, defaultValue int) int {
	v, err := c.GetInt(path)
	if err != nil {
		if !errors.Is(err, ErrSettingNotFound) {
			c.recordConfigError(path, err)
		}
		return defaultValue
	}
	return v
}

func (c *Config) getBoolOr(path string, defaultValue bool) bool {
	v, err := c.GetBool(path)
	if err != nil {
		if !errors.Is(err, ErrSettingNotFound) {
			c.recordConfigError(path, err)
		}
		return defaultValue
	}
	return v
}

// recordConfigError keeps the first error for each path.
func (c *Config) recordConfigError(path string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.configErrors == nil {
		c.configErrors = make(map[string]error)
	}
	if _, exists := c.configErrors[path]; !exists {
		c.configErrors[path] = err
	}
}

// ConfigErrors returns any configuration errors encountered during access.
func (c *Config) ConfigErrors() map[string]error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.configErrors == nil {
		return nil
	}
	result := make(map[string]error, len(c.configErrors))
	for k, v := range c.configErrors {
		result[k] = v
	}
	return result
}
