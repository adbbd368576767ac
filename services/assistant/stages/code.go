// Copyright (C) 2025 Quay Market (engineering@quaymarket.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/quaymarket/quay/pkg/validation"
	"github.com/quaymarket/quay/services/assistant/datatypes"
	"github.com/quaymarket/quay/services/llm"
)

// codeGenStage produces the code the execution stage will run.
//
// The caller may supply code directly via context; otherwise the provider
// generates it from the query. Code is only staged in scratch here; the
// screen and the sandbox both live in the next stage.
func (d *Deps) codeGenStage(state *datatypes.ConversationState) *datatypes.ConversationState {
	if supplied, ok := state.Context["code"].(string); ok && strings.TrimSpace(supplied) != "" {
		return state.Derive(datatypes.StateUpdate{
			Scratch:  map[string]any{ScratchGeneratedCode: supplied},
			Metadata: map[string]any{"code_source": "caller"},
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), stageTimeout)
	defer cancel()

	maxTokens := 800
	code, err := d.LLM.Generate(ctx,
		"Write a short Python snippet that solves the following task. Print the result. Reply with only the code, no prose, no markdown fences.\n\n"+state.Query,
		llm.GenerationParams{MaxTokens: &maxTokens})
	if err != nil {
		return state.Derive(datatypes.StateUpdate{
			Err: datatypes.NewCollaboratorError("code generation", err),
		})
	}

	code = stripCodeFences(code)
	if strings.TrimSpace(code) == "" {
		return state.Derive(datatypes.StateUpdate{
			Err: datatypes.NewCollaboratorError("code generation", fmt.Errorf("provider returned no code")),
		})
	}

	return state.Derive(datatypes.StateUpdate{
		Scratch:  map[string]any{ScratchGeneratedCode: code},
		Metadata: map[string]any{"code_source": "provider"},
	})
}

// codeExecStage screens and runs the staged code.
//
// The deny-list screen runs first; on a hit the sandbox process is never
// started and the turn carries a sandbox-violation error.
func (d *Deps) codeExecStage(state *datatypes.ConversationState) *datatypes.ConversationState {
	code := state.GetScratchString(ScratchGeneratedCode)
	if strings.TrimSpace(code) == "" {
		return state.Derive(datatypes.StateUpdate{
			Err: fmt.Errorf("no code staged for execution: %w", datatypes.ErrValidation),
		})
	}

	if err := validation.ScreenCode(code); err != nil {
		return state.Derive(datatypes.StateUpdate{
			Err:      fmt.Errorf("code rejected: %v: %w", err, datatypes.ErrSandboxViolation),
			Metadata: map[string]any{"denied_pattern": err.Error()},
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), stageTimeout)
	defer cancel()

	output, err := d.Sandbox.Execute(ctx, code)
	if err != nil {
		return state.Derive(datatypes.StateUpdate{
			Err: datatypes.NewCollaboratorError("code execution", err),
		})
	}

	result := strings.TrimSpace(output)
	if result == "" {
		result = "The code ran successfully but produced no output."
	} else {
		result = "Execution output:\n" + result
	}

	return state.Derive(datatypes.StateUpdate{
		Result:  result,
		Scratch: map[string]any{ScratchExecOutput: output},
	})
}

// stripCodeFences drops a surrounding markdown fence, if the provider
// ignored the no-fences instruction.
func stripCodeFences(code string) string {
	trimmed := strings.TrimSpace(code)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
