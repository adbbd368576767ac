// Copyright (C) 2025 Quay Market (engineering@quaymarket.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the assistant service.
//
// This file defines the error taxonomy. Stage failures are carried as data
// on ConversationState rather than thrown; these types let the output stage
// and the transport adapter distinguish failure classes with errors.Is/As.
package datatypes

import (
	"errors"
	"fmt"
)

// Sentinel error classes. Wrap these with fmt.Errorf("...: %w", Err...) so
// callers can match with errors.Is while keeping the specific message.
var (
	// ErrValidation marks a malformed or empty inbound frame or query.
	ErrValidation = errors.New("validation error")

	// ErrAuth marks a rejected connection.
	ErrAuth = errors.New("authorization rejected")

	// ErrCollaborator marks any failure (network, parse, timeout) from an
	// external tool backend.
	ErrCollaborator = errors.New("collaborator error")

	// ErrSandboxViolation marks a path escape or a denied code pattern.
	ErrSandboxViolation = errors.New("sandbox violation")

	// ErrExecutionTimeout marks the code sandbox ceiling being exceeded.
	ErrExecutionTimeout = errors.New("execution timeout")
)

// CollaboratorError wraps a tool-backend failure with the tool's name so the
// output stage can produce a "<tool> unavailable" message.
type CollaboratorError struct {
	Tool string
	Err  error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s collaborator error: %v", e.Tool, e.Err)
}

// Unwrap exposes both the class sentinel and the original cause, so
// errors.Is matches ErrCollaborator as well as e.g. context.DeadlineExceeded.
func (e *CollaboratorError) Unwrap() []error { return []error{ErrCollaborator, e.Err} }

// NewCollaboratorError wraps err as a failure of the named tool.
func NewCollaboratorError(tool string, err error) *CollaboratorError {
	return &CollaboratorError{Tool: tool, Err: err}
}

// ClassificationDegraded is a soft condition, not an error: the classifier
// fell back to its heuristic cascade. It is recorded in state metadata under
// this key and only lowers confidence.
const ClassificationDegradedKey = "classification_degraded"
