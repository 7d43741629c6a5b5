package loader

import (
	"errors"
	"io/fs"
	"reflect"
	"strings"
	"testing"
)

// memFS is an in-memory FileSystem.
type memFS map[string]string

func (m memFS) ReadFile(path string) ([]byte, error) {
	data, ok := m[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return []byte(data), nil
}

func load(t *testing.T, fsys FileSystem, path string) (map[string]any, error) {
	t.Helper()
	f, err := NewFile(fsys, path)
	if err != nil {
		t.Fatalf("NewFile(%q) failed: %v", path, err)
	}
	return f.Load()
}

func getByPath(data map[string]any, path string) (any, bool) {
	current := any(data)
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func TestTOML_Load(t *testing.T) {
	memfs := memFS{"/config.toml": `
[debugger]
breakpointsFile = "/tmp/bps"
saveBreakpoints = false

[source]
contextLines = 3
`}

	config, err := load(t, memfs, "/config.toml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if val, ok := getByPath(config, "debugger.breakpointsFile"); !ok || val != "/tmp/bps" {
		t.Errorf("debugger.breakpointsFile = %v, want /tmp/bps", val)
	}
	if val, ok := getByPath(config, "debugger.saveBreakpoints"); !ok || val != false {
		t.Errorf("debugger.saveBreakpoints = %v, want false", val)
	}
	if val, ok := getByPath(config, "source.contextLines"); !ok || val != int64(3) {
		t.Errorf("source.contextLines = %v (%T), want 3", val, val)
	}
}

func TestTOML_Missing(t *testing.T) {
	config, err := load(t, memFS{}, "/missing.toml")
	if err != nil || config != nil {
		t.Errorf("expected nil, nil for a missing file, got %v, %v", config, err)
	}
}

func TestTOML_ParseError(t *testing.T) {
	memfs := memFS{"/bad.toml": "[source]\ncontextLines = = 3\n"}

	_, err := load(t, memfs, "/bad.toml")
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if perr.Path != "/bad.toml" {
		t.Errorf("Path = %q, want /bad.toml", perr.Path)
	}
	if perr.Line != 2 {
		t.Errorf("Line = %d, want 2", perr.Line)
	}
}

func TestYAML_Load(t *testing.T) {
	memfs := memFS{"/config.yaml": `
log:
  level: debug
source:
  contextLines: 7
  watch: false
`}

	config, err := load(t, memfs, "/config.yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if val, ok := getByPath(config, "log.level"); !ok || val != "debug" {
		t.Errorf("log.level = %v, want debug", val)
	}
	if val, ok := getByPath(config, "source.contextLines"); !ok || val != int64(7) {
		t.Errorf("source.contextLines = %v (%T), want int64 7", val, val)
	}
	if val, ok := getByPath(config, "source.watch"); !ok || val != false {
		t.Errorf("source.watch = %v, want false", val)
	}
}

func TestYAML_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not a mapping", "- a\n- b\n"},
		{"bad syntax", "log:\n  level: [debug\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, memFS{"/config.yaml": tt.content}, "/config.yaml")
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected *ParseError, got %v", err)
			}
			if perr.Path != "/config.yaml" {
				t.Errorf("Path = %q, want /config.yaml", perr.Path)
			}
		})
	}
}

func TestYAML_Empty(t *testing.T) {
	config, err := YAML.Decode("<empty>", nil)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(config) != 0 {
		t.Errorf("expected empty config, got %v", config)
	}
}

func TestFormatFor(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"a.toml", "toml"},
		{"a.TOML", "toml"},
		{"a.yaml", "yaml"},
		{"dir.d/a.yml", "yaml"},
	}
	for _, tt := range tests {
		f, err := FormatFor(tt.path)
		if err != nil {
			t.Fatalf("FormatFor(%q) failed: %v", tt.path, err)
		}
		if f.Name != tt.want {
			t.Errorf("FormatFor(%q) = %s, want %s", tt.path, f.Name, tt.want)
		}
	}

	if _, err := FormatFor("a.json"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
	if _, err := NewFile(memFS{}, "config"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat without an extension, got %v", err)
	}
}

func TestEnv_Load(t *testing.T) {
	env := NewEnv(DefaultEnvPrefix)
	env.environ = func() []string {
		return []string{
			"STEPDB_LOG_LEVEL=debug",
			"STEPDB_SOURCE_CONTEXT_LINES=1",
			"STEPDB_DEBUGGER_SAVE_BREAKPOINTS=no",
			"STEPDB_BREAKPOINTS=/tmp/bps",
			"STEPDB_COLOR=never",
			"OTHER_VALUE=1",
			"STEPDB_=ignored",
		}
	}

	config, err := env.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	tests := []struct {
		path string
		want any
	}{
		{"log.level", "debug"},
		{"source.contextLines", int64(1)},
		{"debugger.saveBreakpoints", false},
		{"debugger.breakpointsFile", "/tmp/bps"},
		{"ui.color", "never"},
	}
	for _, tt := range tests {
		if val, ok := getByPath(config, tt.path); !ok || val != tt.want {
			t.Errorf("%s = %v (%T), want %v", tt.path, val, val, tt.want)
		}
	}
	if _, ok := config["other"]; ok {
		t.Error("expected unprefixed variables to be ignored")
	}
	if len(config) != 4 {
		t.Errorf("expected 4 sections, got %v", config)
	}
}

func TestEnv_envToPath(t *testing.T) {
	env := NewEnv(DefaultEnvPrefix)

	tests := []struct {
		env      string
		expected string
	}{
		{"STEPDB_SOURCE_CONTEXT_LINES", "source.contextLines"},
		{"STEPDB_LOG_FILE", "log.file"},
		{"STEPDB_SIMPLE", "simple"},
		{"STEPDB_A__B", "a.b"},
		{"STEPDB_", ""},
	}

	for _, tt := range tests {
		if got := env.envToPath(tt.env); got != tt.expected {
			t.Errorf("envToPath(%q) = %q, want %q", tt.env, got, tt.expected)
		}
	}
}

func TestEnv_parseValue(t *testing.T) {
	env := NewEnv(DefaultEnvPrefix)

	tests := []struct {
		input    string
		expected any
	}{
		{"", ""},
		{"true", true},
		{"ON", true},
		{"off", false},
		{"42", int64(42)},
		{"0", int64(0)},
		{"2.5", 2.5},
		{"v1.2.x", "v1.2.x"},
		{"hello", "hello"},
	}

	for _, tt := range tests {
		if got := env.parseValue(tt.input); got != tt.expected {
			t.Errorf("parseValue(%q) = %v (%T), want %v (%T)", tt.input, got, got, tt.expected, tt.expected)
		}
	}
}

func TestMerge(t *testing.T) {
	defaults := map[string]any{
		"log":    map[string]any{"level": "info", "file": ""},
		"ui":     map[string]any{"color": "auto"},
		"scalar": int64(1),
	}
	file := map[string]any{
		"log":    map[string]any{"level": "debug"},
		"scalar": map[string]any{"now": "a map"},
	}
	flags := map[string]any{
		"ui": "flattened",
	}

	got := Merge(defaults, nil, file, flags)
	want := map[string]any{
		"log":    map[string]any{"level": "debug", "file": ""},
		"ui":     "flattened",
		"scalar": map[string]any{"now": "a map"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Merge() = %v, want %v", got, want)
	}
	if defaults["log"].(map[string]any)["level"] != "info" {
		t.Error("expected Merge to leave its inputs alone")
	}
}

func TestMerge_Copies(t *testing.T) {
	src := map[string]any{
		"log":  map[string]any{"level": "info"},
		"list": []any{map[string]any{"a": 1}},
	}
	dst := Merge(src)
	dst["log"].(map[string]any)["level"] = "debug"
	dst["list"].([]any)[0].(map[string]any)["a"] = 2

	if src["log"].(map[string]any)["level"] != "info" {
		t.Error("expected nested map to be copied")
	}
	if src["list"].([]any)[0].(map[string]any)["a"] != 1 {
		t.Error("expected nested slice to be copied")
	}
}
