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
	"log/slog"
	"strings"

	"github.com/quaymarket/quay/services/assistant/datatypes"
	"github.com/quaymarket/quay/services/assistant/tools"
	"github.com/quaymarket/quay/services/llm"
)

// defaultMaxSearchResults bounds a search when the caller doesn't specify.
const defaultMaxSearchResults = 5

// searchStage runs a web search and synthesizes an answer from the hits.
//
// The raw hits land in scratch; when a text provider is available the
// structured context is fed back through it for an enhanced answer,
// otherwise the provider's direct answer (or a hit digest) is returned.
func (d *Deps) searchStage(state *datatypes.ConversationState) *datatypes.ConversationState {
	if d.Search == nil {
		return state.Derive(datatypes.StateUpdate{
			Err: datatypes.NewCollaboratorError("search",
				fmt.Errorf("no search backend configured")),
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), stageTimeout)
	defer cancel()

	maxResults := defaultMaxSearchResults
	if v, ok := state.Context["max_results"].(float64); ok && v > 0 {
		maxResults = int(v)
	}

	resp, err := d.Search.Search(ctx, state.Query, maxResults)
	if err != nil {
		return state.Derive(datatypes.StateUpdate{
			Err: datatypes.NewCollaboratorError("search", err),
		})
	}

	update := datatypes.StateUpdate{
		Scratch:  map[string]any{ScratchSearchResults: resp.Results},
		Metadata: map[string]any{"search_hits": len(resp.Results)},
	}

	if enhanced, err := d.enhanceSearchAnswer(ctx, state.Query, resp); err == nil {
		update.Result = enhanced
	} else {
		slog.Warn("search enhancement unavailable, using raw answer", "error", err)
		update.Result = rawSearchAnswer(resp)
	}

	return state.Derive(update)
}

// enhanceSearchAnswer feeds the structured search context back into the
// text provider for a grounded synthesis.
func (d *Deps) enhanceSearchAnswer(ctx context.Context, query string, resp *tools.SearchResponse) (string, error) {
	if len(resp.Results) == 0 && resp.Answer == "" {
		return "", fmt.Errorf("no search context to enhance")
	}

	var b strings.Builder
	b.WriteString("Answer the question using only the search results below. Cite source URLs.\n\n")
	b.WriteString("Question: " + query + "\n\nSearch results:\n")
	for i, r := range resp.Results {
		fmt.Fprintf(&b, "%d. %s (%s)\n%s\n\n", i+1, r.Title, r.URL, r.Content)
	}
	if resp.Answer != "" {
		b.WriteString("Search engine summary: " + resp.Answer + "\n")
	}

	answer, err := d.LLM.Generate(ctx, b.String(), llm.GenerationParams{})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(answer) == "" {
		return "", fmt.Errorf("provider returned empty synthesis")
	}
	return answer, nil
}

// rawSearchAnswer degrades to the engine's own answer or a hit digest.
func rawSearchAnswer(resp *tools.SearchResponse) string {
	if resp.Answer != "" {
		return resp.Answer
	}
	if len(resp.Results) == 0 {
		return "The search returned no results."
	}
	var b strings.Builder
	b.WriteString("Top results:\n")
	for i, r := range resp.Results {
		fmt.Fprintf(&b, "%d. %s — %s\n", i+1, r.Title, r.URL)
	}
	return b.String()
}
