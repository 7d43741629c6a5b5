package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/dshills/stepdb/internal/config/loader"
	"github.com/dshills/stepdb/internal/logging"
)

// Layer names, lowest priority first.
const (
	LayerDefaults = "defaults"
	LayerFile     = "file"
	LayerEnv      = "env"
	LayerFlags    = "flags"
)

// Color modes for ui.color.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// maxContextLines bounds source.contextLines.
const maxContextLines = 100

// configFileNames are searched, in order, in the user configuration directory.
var configFileNames = []string{"config.toml", "config.yaml", "config.yml"}

// Config provides layered access to the stepdb configuration: built-in
// defaults, a configuration file, STEPDB_* environment variables and
// command-line flags, each overriding the ones before.
type Config struct {
	mu sync.RWMutex

	fs            loader.FileSystem
	userConfigDir string
	file          string
	envPrefix     string

	layers map[string]map[string]any
	merged map[string]any
	source string

	// configErrors stores errors encountered during section access.
	configErrors map[string]error
}

// Option configures a Config instance.
type Option func(*Config)

// WithFileSystem sets the file system configuration files are read from.
func WithFileSystem(fs loader.FileSystem) Option {
	return func(c *Config) {
		c.fs = fs
	}
}

// WithUserConfigDir sets the user configuration directory.
func WithUserConfigDir(dir string) Option {
	return func(c *Config) {
		c.userConfigDir = dir
	}
}

// WithConfigFile names the configuration file explicitly. Unlike the
// default files, it must exist.
func WithConfigFile(path string) Option {
	return func(c *Config) {
		c.file = path
	}
}

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(c *Config) {
		c.envPrefix = prefix
	}
}

// New creates a Config holding the defaults.
func New(opts ...Option) *Config {
	c := &Config{
		fs:        loader.OS,
		envPrefix: loader.DefaultEnvPrefix,
		layers:    make(map[string]map[string]any),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.userConfigDir == "" {
		c.userConfigDir = defaultUserConfigDir()
	}

	c.layers[LayerDefaults] = defaultConfig(c.userConfigDir)
	c.remerge()
	return c
}

// Load reads the configuration file and the environment and validates the
// merged result. Flag values set before Load are kept.
func (c *Config) Load(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	fileConfig, source, err := c.loadFile()
	if err != nil {
		return err
	}
	c.layers[LayerFile] = fileConfig
	c.source = source

	envConfig, err := loader.NewEnv(c.envPrefix).Load()
	if err != nil {
		return fmt.Errorf("loading environment: %w", err)
	}
	c.layers[LayerEnv] = envConfig

	c.remerge()
	return c.validate()
}

// loadFile reads the explicit file, which must exist, or else the first
// default file present in the user configuration directory.
func (c *Config) loadFile() (map[string]any, string, error) {
	if c.file != "" {
		data, err := c.readFile(c.file)
		if err != nil {
			return nil, "", err
		}
		if data == nil {
			return nil, "", fmt.Errorf("%w: %s", ErrFileNotFound, c.file)
		}
		return data, c.file, nil
	}

	for _, name := range configFileNames {
		path := filepath.Join(c.userConfigDir, name)
		data, err := c.readFile(path)
		if err != nil {
			return nil, "", err
		}
		if data != nil {
			return data, path, nil
		}
	}
	return nil, "", nil
}

func (c *Config) readFile(path string) (map[string]any, error) {
	f, err := loader.NewFile(c.fs, path)
	if err != nil {
		return nil, err
	}
	return f.Load()
}

func (c *Config) remerge() {
	c.merged = loader.Merge(c.layers[LayerDefaults], c.layers[LayerFile], c.layers[LayerEnv], c.layers[LayerFlags])
	c.configErrors = nil
}

// Source returns the configuration file that was loaded, if any.
func (c *Config) Source() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.source
}

// Get returns the value at the given path from the merged configuration.
func (c *Config) Get(path string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return getPath(c.merged, path)
}

// GetString returns a string value at the given path.
func (c *Config) GetString(path string) (string, error) {
	v, ok := c.Get(path)
	if !ok {
		return "", ErrSettingNotFound
	}
	s, ok := v.(string)
	if !ok {
		return "", mismatch(path, "string", v)
	}
	return s, nil
}

// GetInt returns an integer value at the given path.
func (c *Config) GetInt(path string) (int, error) {
	v, ok := c.Get(path)
	if !ok {
		return 0, ErrSettingNotFound
	}
	switch val := v.(type) {
	case int:
		return val, nil
	case int64:
		return int(val), nil
	case float64:
		if val == float64(int(val)) {
			return int(val), nil
		}
	}
	return 0, mismatch(path, "int", v)
}

// GetBool returns a boolean value at the given path. The integers 0 and 1
// are accepted as false and true.
func (c *Config) GetBool(path string) (bool, error) {
	v, ok := c.Get(path)
	if !ok {
		return false, ErrSettingNotFound
	}
	switch val := v.(type) {
	case bool:
		return val, nil
	case int64:
		if val == 0 || val == 1 {
			return val == 1, nil
		}
	case int:
		if val == 0 || val == 1 {
			return val == 1, nil
		}
	}
	return false, mismatch(path, "bool", v)
}

// Set sets a value at the given path in the flags layer, the highest one.
func (c *Config) Set(path string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	flags := c.layers[LayerFlags]
	if flags == nil {
		flags = make(map[string]any)
		c.layers[LayerFlags] = flags
	}
	if err := setPath(flags, path, value); err != nil {
		return err
	}
	c.remerge()
	return nil
}

// Merged returns a copy of the merged configuration.
func (c *Config) Merged() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return loader.Merge(c.merged)
}

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validate()
}

// validate returns every problem found, combined with go-multierror.
func (c *Config) validate() error {
	var result *multierror.Error

	check := func(path string, fn func(v any) *ValidationError) {
		v, ok := getPath(c.merged, path)
		if !ok {
			return
		}
		if verr := fn(v); verr != nil {
			verr.Path = path
			verr.Value = v
			result = multierror.Append(result, verr)
		}
	}

	check("log.level", func(v any) *ValidationError {
		s, ok := v.(string)
		if !ok {
			return typeMismatch("string", v)
		}
		if !logging.ValidLogLevel(s) {
			return &ValidationError{Message: "must be one of debug, info, warn, error", Code: ErrCodeInvalidEnum}
		}
		return nil
	})
	check("ui.color", func(v any) *ValidationError {
		s, ok := v.(string)
		if !ok {
			return typeMismatch("string", v)
		}
		switch s {
		case ColorAuto, ColorAlways, ColorNever:
			return nil
		}
		return &ValidationError{Message: "must be one of auto, always, never", Code: ErrCodeInvalidEnum}
	})
	check("source.contextLines", func(v any) *ValidationError {
		var n int64
		switch val := v.(type) {
		case int64:
			n = val
		case int:
			n = int64(val)
		default:
			return typeMismatch("int", v)
		}
		if n < 0 || n > maxContextLines {
			return &ValidationError{Message: fmt.Sprintf("must be between 0 and %d", maxContextLines), Code: ErrCodeOutOfRange}
		}
		return nil
	})
	for _, path := range []string{"debugger.saveBreakpoints", "source.watch"} {
		check(path, func(v any) *ValidationError {
			switch val := v.(type) {
			case bool:
				return nil
			case int64:
				if val == 0 || val == 1 {
					return nil
				}
			}
			return typeMismatch("bool", v)
		})
	}
	for _, path := range []string{"debugger.breakpointsFile", "log.file"} {
		check(path, func(v any) *ValidationError {
			if _, ok := v.(string); !ok {
				return typeMismatch("string", v)
			}
			return nil
		})
	}

	if result == nil {
		return nil
	}
	result.ErrorFormat = validationFormat
	return result
}

func mismatch(path, want string, v any) error {
	return fmt.Errorf("%w: %s is %s, want %s", ErrTypeMismatch, path, typeName(v), want)
}

func typeMismatch(expected string, v any) *ValidationError {
	return &ValidationError{
		Message: fmt.Sprintf("expected %s, got %s", expected, typeName(v)),
		Code:    ErrCodeTypeMismatch,
	}
}

func validationFormat(errs []error) string {
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// ValidationErrors returns the validation errors contained in err.
func ValidationErrors(err error) []*ValidationError {
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return []*ValidationError{verr}
		}
		return nil
	}
	var out []*ValidationError
	for _, e := range merr.Errors {
		var verr *ValidationError
		if errors.As(e, &verr) {
			out = append(out, verr)
		}
	}
	return out
}

// defaultUserConfigDir returns the default user configuration directory.
func defaultUserConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "stepdb")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "stepdb")
}

// defaultConfig returns the default configuration values.
func defaultConfig(userConfigDir string) map[string]any {
	return map[string]any{
		"debugger": map[string]any{
			"breakpointsFile": filepath.Join(userConfigDir, "saved-breakpoints"),
			"saveBreakpoints": true,
		},
		"source": map[string]any{
			"watch":        true,
			"contextLines": int64(5),
		},
		"log": map[string]any{
			"level": "info",
			"file":  "",
		},
		"ui": map[string]any{
			"color": ColorAuto,
		},
	}
}

// getPath retrieves a value from a nested map using a dot-separated path.
func getPath(m map[string]any, path string) (any, bool) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil, false
	}

	current := any(m)
	for _, part := range parts {
		cm, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = cm[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// setPath sets a value in a nested map using a dot-separated path.
func setPath(m map[string]any, path string, value any) error {
	parts := splitPath(path)
	if len(parts) == 0 {
		return ErrInvalidPath
	}

	current := m
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part]
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		nextMap, ok := next.(map[string]any)
		if !ok {
			return ErrInvalidPath
		}
		current = nextMap
	}

	current[parts[len(parts)-1]] = value
	return nil
}

// splitPath splits a dot-separated path into parts, ignoring empty ones.
func splitPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, ".") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// typeName returns the type name for error messages.
func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	switch v.(type) {
	case string:
		return "string"
	case int, int64:
		return "int"
	case float64:
		return "float64"
	case bool:
		return "bool"
	case []any:
		return "[]any"
	case map[string]any:
		return "map"
	default:
		return fmt.Sprintf("%T", v)
	}
}
