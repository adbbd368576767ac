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
	"regexp"
	"strings"

	"github.com/quaymarket/quay/services/assistant/datatypes"
	"github.com/quaymarket/quay/services/llm"
)

var queryPathPattern = regexp.MustCompile(`\S+\.(?:txt|md|csv|json|yaml|yml|log|py|go|pdf)\b|\S+/\S+`)

// requestedPath resolves the sandbox-relative path for a file turn: the
// explicit context option wins, then a path-like token in the query.
func requestedPath(state *datatypes.ConversationState) string {
	if p, ok := state.Context["path"].(string); ok && p != "" {
		return p
	}
	return queryPathPattern.FindString(state.Query)
}

// fileReadStage returns the content of a sandboxed file.
func (d *Deps) fileReadStage(state *datatypes.ConversationState) *datatypes.ConversationState {
	path := requestedPath(state)
	if path == "" {
		// No path at all: show what the sandbox holds instead of failing.
		entries, err := d.Files.List("")
		if err != nil {
			return state.Derive(datatypes.StateUpdate{
				Err: datatypes.NewCollaboratorError("file store", err),
			})
		}
		if len(entries) == 0 {
			return state.Derive(datatypes.StateUpdate{Result: "The file sandbox is empty."})
		}
		return state.Derive(datatypes.StateUpdate{
			Result: "Files available:\n" + strings.Join(entries, "\n"),
		})
	}

	content, err := d.Files.Read(path)
	if err != nil {
		return state.Derive(datatypes.StateUpdate{
			Err: fmt.Errorf("reading %s: %w", path, datatypes.ErrSandboxViolation),
			Metadata: map[string]any{"file_error": err.Error()},
		})
	}
	return state.Derive(datatypes.StateUpdate{
		Result:   fmt.Sprintf("Content of %s:\n\n%s", path, content),
		Metadata: map[string]any{"file_path": path},
	})
}

// fileWriteStage stores caller-supplied content at a sandboxed path.
func (d *Deps) fileWriteStage(state *datatypes.ConversationState) *datatypes.ConversationState {
	path := requestedPath(state)
	if path == "" {
		return state.Derive(datatypes.StateUpdate{
			Err: fmt.Errorf("no target path in the request: %w", datatypes.ErrValidation),
		})
	}

	content, _ := state.Context["content"].(string)
	if content == "" {
		// Fall back to the query text after the path token, so "save X to
		// notes.txt" writes X.
		content = strings.TrimSpace(strings.Replace(state.Query, path, "", 1))
	}

	if err := d.Files.Write(path, content); err != nil {
		return state.Derive(datatypes.StateUpdate{
			Err: fmt.Errorf("writing %s: %w", path, datatypes.ErrSandboxViolation),
			Metadata: map[string]any{"file_error": err.Error()},
		})
	}
	return state.Derive(datatypes.StateUpdate{
		Result:   fmt.Sprintf("Wrote %d byte(s) to %s.", len(content), path),
		Metadata: map[string]any{"file_path": path},
	})
}

// fileAnalysisStage summarizes attached or named files with the provider.
//
// This is also the branch every turn with attached files converges on,
// regardless of classified intent.
func (d *Deps) fileAnalysisStage(state *datatypes.ConversationState) *datatypes.ConversationState {
	ctx, cancel := context.WithTimeout(context.Background(), stageTimeout)
	defer cancel()

	var names []string
	var b strings.Builder

	for _, f := range state.ContextFiles() {
		content := f.Content
		if content == "" && f.Path != "" {
			read, err := d.Files.Read(f.Path)
			if err != nil {
				return state.Derive(datatypes.StateUpdate{
					Err: fmt.Errorf("reading attachment %s: %w", f.Path, datatypes.ErrSandboxViolation),
					Metadata: map[string]any{"file_error": err.Error()},
				})
			}
			content = read
		}
		name := f.Name
		if name == "" {
			name = f.Path
		}
		names = append(names, name)
		fmt.Fprintf(&b, "--- %s ---\n%s\n\n", name, content)
	}

	if len(names) == 0 {
		// Classified as file_analysis without attachments: fall back to a
		// named path.
		path := requestedPath(state)
		if path == "" {
			return state.Derive(datatypes.StateUpdate{
				Err: fmt.Errorf("no file to analyze: %w", datatypes.ErrValidation),
			})
		}
		content, err := d.Files.Read(path)
		if err != nil {
			return state.Derive(datatypes.StateUpdate{
				Err: fmt.Errorf("reading %s: %w", path, datatypes.ErrSandboxViolation),
				Metadata: map[string]any{"file_error": err.Error()},
			})
		}
		names = append(names, path)
		fmt.Fprintf(&b, "--- %s ---\n%s\n\n", path, content)
	}

	question := state.Query
	if strings.TrimSpace(question) == "" {
		question = "Summarize these files."
	}

	answer, err := d.LLM.Generate(ctx,
		fmt.Sprintf("%s\n\nFiles:\n\n%s", question, b.String()),
		llm.GenerationParams{})
	if err != nil {
		return state.Derive(datatypes.StateUpdate{
			Err: datatypes.NewCollaboratorError("file analysis", err),
		})
	}

	return state.Derive(datatypes.StateUpdate{
		Result:   answer,
		Metadata: map[string]any{"files_analyzed": names},
	})
}
