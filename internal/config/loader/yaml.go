package loader

import (
	"errors"

	"gopkg.in/yaml.v3"
)

// YAML decodes .yaml and .yml files. Integers come out as int64, the way
// TOML produces them.
var YAML = Format{
	Name:       "yaml",
	Extensions: []string{".yaml", ".yml"},
	decode:     decodeYAML,
}

var errNotMapping = errors.New("top level must be a mapping")

func decodeYAML(data []byte) (map[string]any, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &ParseError{Line: root.Line, Column: root.Column, Message: errNotMapping.Error(), Err: errNotMapping}
	}
	var m map[string]any
	if err := root.Decode(&m); err != nil {
		return nil, &ParseError{Line: root.Line, Message: err.Error(), Err: err}
	}
	widenInts(m)
	return m, nil
}

func widenInts(m map[string]any) {
	for k, v := range m {
		m[k] = widen(v)
	}
}

func widen(v any) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	case map[string]any:
		widenInts(val)
	case []any:
		for i := range val {
			val[i] = widen(val[i])
		}
	}
	return v
}
