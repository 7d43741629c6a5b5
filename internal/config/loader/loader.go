// Package loader reads stepdb configuration sources.
//
// Every source yields the same shape, a nested map keyed by section and
// setting name, so layers can be combined with Merge. Files are TOML or YAML,
// chosen by extension; STEPDB_* environment variables form another source.
package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ErrUnsupportedFormat is returned for a file extension no format claims.
var ErrUnsupportedFormat = errors.New("unsupported config format")

// Source produces one configuration layer.
type Source interface {
	// Name identifies the source in messages.
	Name() string
	// Load returns the settings, or nil when the source does not exist.
	Load() (map[string]any, error)
}

// FileSystem reads configuration files. Tests substitute an in-memory one.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
}

type osFS struct{}

func (osFS) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }

// OS reads from the real file system.
var OS FileSystem = osFS{}

// Format is a configuration file syntax.
type Format struct {
	Name       string
	Extensions []string

	decode func(data []byte) (map[string]any, error)
}

// Decode parses data. name identifies the data in a *ParseError.
func (f Format) Decode(name string, data []byte) (map[string]any, error) {
	m, err := f.decode(data)
	if err != nil {
		var perr *ParseError
		if !errors.As(err, &perr) {
			perr = &ParseError{Message: err.Error(), Err: err}
		}
		perr.Path = name
		return nil, perr
	}
	if m == nil {
		m = make(map[string]any)
	}
	return m, nil
}

// FormatFor returns the format for the extension of path.
func FormatFor(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, f := range []Format{TOML, YAML} {
		if slices.Contains(f.Extensions, ext) {
			return f, nil
		}
	}
	return Format{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// File is a configuration file.
type File struct {
	fsys   FileSystem
	path   string
	format Format
}

// NewFile returns the file at path, decoded by the format its extension
// names.
func NewFile(fsys FileSystem, path string) (*File, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	return &File{fsys: fsys, path: path, format: format}, nil
}

// Name returns the file path.
func (f *File) Name() string { return f.path }

// Load reads and decodes the file. A missing file yields nil, nil.
func (f *File) Load() (map[string]any, error) {
	data, err := f.fsys.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", f.path, err)
	}
	return f.format.Decode(f.path, data)
}

// ParseError reports malformed configuration text.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	where := e.Path
	switch {
	case e.Line > 0 && e.Column > 0:
		where = fmt.Sprintf("%s:%d:%d", e.Path, e.Line, e.Column)
	case e.Line > 0:
		where = fmt.Sprintf("%s:%d", e.Path, e.Line)
	}
	return fmt.Sprintf("parse error in %s: %s", where, e.Message)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Merge combines layers into a new map, later layers winning. Nested maps
// merge key by key; any other value replaces what was there. The result
// shares nothing with the layers.
func Merge(layers ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, layer := range layers {
		mergeInto(out, layer)
	}
	return out
}

func mergeInto(dst, src map[string]any) {
	for key, val := range src {
		m, ok := val.(map[string]any)
		if !ok {
			dst[key] = copyValue(val)
			continue
		}
		sub, ok := dst[key].(map[string]any)
		if !ok {
			sub = make(map[string]any, len(m))
			dst[key] = sub
		}
		mergeInto(sub, m)
	}
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return Merge(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = copyValue(elem)
		}
		return out
	default:
		return v
	}
}
