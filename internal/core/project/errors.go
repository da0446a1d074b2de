package project

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrInvalidConfig matches every ConfigError via errors.Is.
	ErrInvalidConfig = errors.New("invalid configuration")

	// Input errors
	ErrEmptyInput  = errors.New("project document is empty")
	ErrInvalidTOML = errors.New("invalid TOML syntax")

	// Field errors
	ErrRequired          = errors.New("required field is empty")
	ErrInvalidPort       = errors.New("invalid port")
	ErrInvalidCount      = errors.New("invalid count")
	ErrDuplicateName     = errors.New("duplicate name")
	ErrInvalidRouteType  = errors.New("invalid route type")
	ErrInvalidDifficulty = errors.New("anubis difficulty out of range")
	ErrInvalidUpstream   = errors.New("invalid upstream")
	ErrInvalidDomain     = errors.New("invalid domain")
	ErrInvalidHeader     = errors.New("invalid header")
	ErrInvalidOverride   = errors.New("invalid container override")
)

// ConfigError describes a structurally invalid project document.
// Field locates the offending value, e.g. "proxies.edge.instances".
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is makes every ConfigError match ErrInvalidConfig.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string, err error) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}
