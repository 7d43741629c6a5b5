package config

import (
	"errors"
	"fmt"

	"github.com/dshills/stepdb/internal/config/loader"
)

var (
	// ErrSettingNotFound is returned by the getters for an unset path.
	ErrSettingNotFound = errors.New("setting not found")
	// ErrTypeMismatch is wrapped by the getters when a value has the wrong type.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrValidationFailed matches every *ValidationError.
	ErrValidationFailed = errors.New("validation failed")
	// ErrFileNotFound is returned when an explicitly named file is missing.
	ErrFileNotFound = errors.New("config file not found")
	// ErrInvalidPath is returned by Set for a malformed path.
	ErrInvalidPath = errors.New("invalid setting path")
)

// ParseError reports a malformed configuration file.
type ParseError = loader.ParseError

// ValidationError is one rejected setting.
type ValidationError struct {
	Path    string
	Message string
	Value   any
	Code    ValidationErrorCode
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", e.Path, e.Message, e.Value)
}

// Is matches ErrValidationFailed.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// ValidationErrorCode classifies a ValidationError.
type ValidationErrorCode uint8

const (
	ErrCodeTypeMismatch ValidationErrorCode = iota
	ErrCodeOutOfRange
	ErrCodeInvalidEnum
)

var codeNames = [...]string{
	ErrCodeTypeMismatch: "type_mismatch",
	ErrCodeOutOfRange:   "out_of_range",
	ErrCodeInvalidEnum:  "invalid_enum",
}

func (c ValidationErrorCode) String() string {
	if int(c) < len(codeNames) {
		return codeNames[c]
	}
	return "unknown"
}
