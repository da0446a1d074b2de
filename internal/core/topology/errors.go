package topology

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Error Types
// =============================================================================

// ErrTopology matches every TopologyError via errors.Is.
var ErrTopology = errors.New("topology error")

// ErrorKind classifies a TopologyError.
type ErrorKind string

const (
	ErrorCycle         ErrorKind = "cycle"
	ErrorUnknownKind   ErrorKind = "unknown-kind"
	ErrorDuplicateName ErrorKind = "duplicate-name"
	ErrorUnresolvable  ErrorKind = "unresolvable"
)

// TopologyError reports a Spec that passed validation but cannot be
// turned into a deployable graph. Nodes names the declarations involved;
// for a cycle it holds the two ends of the closing edge.
type TopologyError struct {
	Kind    ErrorKind
	Nodes   []string
	Message string
	Err     error
}

func (e *TopologyError) Error() string {
	if len(e.Nodes) == 0 {
		return fmt.Sprintf("topology %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("topology %s [%s]: %s", e.Kind, strings.Join(e.Nodes, ", "), e.Message)
}

func (e *TopologyError) Unwrap() error {
	return e.Err
}

// Is makes every TopologyError match ErrTopology.
func (e *TopologyError) Is(target error) bool {
	return target == ErrTopology
}

// NewTopologyError creates a new TopologyError.
func NewTopologyError(kind ErrorKind, message string, nodes ...string) *TopologyError {
	return &TopologyError{
		Kind:    kind,
		Nodes:   nodes,
		Message: message,
	}
}
