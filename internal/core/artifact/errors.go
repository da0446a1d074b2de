package artifact

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

// ErrRender matches every RenderError via errors.Is.
var ErrRender = errors.New("render failed")

// RenderError reports an artifact that could not be rendered.
type RenderError struct {
	Path     string
	Template string // empty for artifacts not built from a template
	Err      error
}

func (e *RenderError) Error() string {
	if e.Template != "" {
		return fmt.Sprintf("render %s (template %s): %v", e.Path, e.Template, e.Err)
	}
	return fmt.Sprintf("render %s: %v", e.Path, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// Is makes every RenderError match ErrRender.
func (e *RenderError) Is(target error) bool {
	return target == ErrRender
}

// NewRenderError creates a new RenderError.
func NewRenderError(path, template string, err error) *RenderError {
	return &RenderError{
		Path:     path,
		Template: template,
		Err:      err,
	}
}
