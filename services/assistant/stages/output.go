// Copyright (C) 2025 Quay Market (engineering@quaymarket.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stages

import (
	"errors"
	"fmt"
	"strings"

	"github.com/quaymarket/quay/services/assistant/datatypes"
)

// fallbackResult guarantees a non-empty answer when a branch produced
// neither a result nor an error.
const fallbackResult = "The request was processed but produced no content."

// outputStage is the terminal node every branch converges on.
//
// # Description
//
// An error state becomes a clearly marked failure message; the raw error is
// never concatenated with success content. A healthy state passes its
// result through, with diagnostics appended when the caller set the debug
// flag. The result is non-empty in all cases.
func (d *Deps) outputStage(state *datatypes.ConversationState) *datatypes.ConversationState {
	if state.HasError() {
		return state.Derive(datatypes.StateUpdate{
			Result: failureMessage(state.Err),
			Metadata: map[string]any{
				"failed": true,
				"error":  state.Err.Error(),
			},
		})
	}

	result := strings.TrimSpace(state.Result)
	if result == "" {
		result = fallbackResult
	}

	if state.DebugEnabled() {
		var b strings.Builder
		b.WriteString(result)
		b.WriteString("\n\n---\n")
		fmt.Fprintf(&b, "intent: %s | data_mode: %s", state.Intent, state.DataMode)
		if conf, ok := state.Metadata["confidence"]; ok {
			fmt.Fprintf(&b, " | confidence: %v", conf)
		}
		if cls, ok := state.Metadata["classifier"]; ok {
			fmt.Fprintf(&b, " | classifier: %v", cls)
		}
		result = b.String()
	}

	return state.Derive(datatypes.StateUpdate{Result: result})
}

// failureMessage renders an error class as user-presentable text.
func failureMessage(err error) string {
	var collab *datatypes.CollaboratorError
	switch {
	case errors.Is(err, datatypes.ErrExecutionTimeout):
		return "Sorry, the code took too long to run and was stopped."
	case errors.Is(err, datatypes.ErrSandboxViolation):
		return "Sorry, that request was blocked by the sandbox policy."
	case errors.Is(err, datatypes.ErrValidation):
		return fmt.Sprintf("Sorry, I couldn't act on that request: %v.", err)
	case errors.As(err, &collab):
		return fmt.Sprintf("Sorry, the %s service is currently unavailable. Please try again later.", collab.Tool)
	default:
		return "Sorry, something went wrong while processing your request."
	}
}
