// Package project holds the declarative model of a cerberus project.
//
// This package is part of the functional core: it decodes a TOML project
// document into a Spec, applies defaults, and validates the result. All
// functions are pure (no I/O, no side effects); reading the document from
// disk is the caller's job.
//
// # Functions
//
//   - Parse: Decode TOML bytes into a validated Spec
//   - Validate: Re-check the preconditions the topology resolver relies on
//
// # Usage
//
//	data, _ := afero.ReadFile(fs, "config.toml")
//	spec, err := project.Parse(data)
//	if errors.Is(err, project.ErrInvalidConfig) {
//	    // report the offending declaration
//	}
package project
