package loader

import (
	"errors"

	"github.com/pelletier/go-toml/v2"
)

// TOML decodes .toml files.
var TOML = Format{
	Name:       "toml",
	Extensions: []string{".toml"},
	decode:     decodeTOML,
}

func decodeTOML(data []byte) (map[string]any, error) {
	var m map[string]any
	err := toml.Unmarshal(data, &m)
	if err == nil {
		return m, nil
	}

	var derr *toml.DecodeError
	if !errors.As(err, &derr) {
		return nil, err
	}
	line, col := derr.Position()
	return nil, &ParseError{Line: line, Column: col, Message: err.Error(), Err: err}
}
