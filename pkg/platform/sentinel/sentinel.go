// Package sentinel holds the infrastructure facts stores report. Services
// translate them into domain errors; they never reach a client directly.
//
// Validation failures (bad input, missing fields) use pkg/domain-errors instead.
package sentinel

import "errors"

var (
	// ErrNotFound means no record matches the key.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a unique key (id or mono_reference) is already taken.
	ErrConflict = errors.New("conflict")
)
