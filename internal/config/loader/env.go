package loader

import (
	"os"
	"strconv"
	"strings"
)

// DefaultEnvPrefix is the prefix of stepdb environment variables.
const DefaultEnvPrefix = "STEPDB_"

// Env reads settings from prefixed environment variables. A variable named
// PREFIX_SECTION_SOME_SETTING sets section.someSetting; a few short names
// are mapped explicitly.
type Env struct {
	prefix  string
	aliases map[string]string
	environ func() []string
}

// NewEnv returns the environment source for prefix, which includes the
// trailing underscore.
func NewEnv(prefix string) *Env {
	return &Env{
		prefix: prefix,
		aliases: map[string]string{
			prefix + "BREAKPOINTS": "debugger.breakpointsFile",
			prefix + "COLOR":       "ui.color",
		},
		environ: os.Environ,
	}
}

// Name returns "environment".
func (e *Env) Name() string { return "environment" }

// Load collects every prefixed variable. Set but empty variables count.
func (e *Env) Load() (map[string]any, error) {
	out := make(map[string]any)
	for _, kv := range e.environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, e.prefix) {
			continue
		}
		path, ok := e.aliases[name]
		if !ok {
			path = e.envToPath(name)
		}
		if path != "" {
			setByPath(out, path, e.parseValue(value))
		}
	}
	return out, nil
}

// envToPath turns PREFIX_SOURCE_CONTEXT_LINES into source.contextLines.
func (e *Env) envToPath(name string) string {
	words := strings.Split(strings.ToLower(strings.TrimPrefix(name, e.prefix)), "_")
	if words[0] == "" {
		return ""
	}

	var b strings.Builder
	b.WriteString(words[0])
	section := true
	for _, w := range words[1:] {
		switch {
		case w == "":
		case section:
			b.WriteString("." + w)
			section = false
		default:
			b.WriteString(strings.ToUpper(w[:1]) + w[1:])
		}
	}
	return b.String()
}

// parseValue types a variable's text: boolean words, then integers, then
// decimals. "1" and "0" stay integers; the config accessors accept them
// as booleans.
func (e *Env) parseValue(s string) any {
	switch strings.ToLower(s) {
	case "":
		return s
	case "true", "yes", "on":
		return true
	case "false", "no", "off":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if strings.Contains(s, ".") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}

func setByPath(m map[string]any, path string, value any) {
	keys := strings.Split(path, ".")
	for _, key := range keys[:len(keys)-1] {
		sub, ok := m[key].(map[string]any)
		if !ok {
			sub = make(map[string]any)
			m[key] = sub
		}
		m = sub
	}
	m[keys[len(keys)-1]] = value
}
