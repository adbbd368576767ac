// Copyright (C) 2025 Quay Market (engineering@quaymarket.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stages

import (
	"context"
	"log/slog"
	"unicode"

	"github.com/quaymarket/quay/services/assistant/datatypes"
	"github.com/quaymarket/quay/services/llm"
)

// imageGenStage produces an image URL for the query.
//
// Non-English prompts are translated first: image backends respond poorly
// to non-English input. If generation with the translated prompt fails, one
// retry runs with the untranslated prompt before the error surfaces.
func (d *Deps) imageGenStage(state *datatypes.ConversationState) *datatypes.ConversationState {
	ctx, cancel := context.WithTimeout(context.Background(), stageTimeout)
	defer cancel()

	size, _ := state.Context["image_size"].(string)
	prompt := state.Query
	translated := false

	if looksNonEnglish(prompt) {
		if t, err := d.translatePrompt(ctx, prompt); err == nil && t != "" {
			prompt = t
			translated = true
		} else if err != nil {
			slog.Warn("prompt translation failed, using original", "error", err)
		}
	}

	url, err := d.LLM.GenerateImage(ctx, prompt, size)
	if err != nil && translated {
		slog.Warn("image generation failed with translated prompt, retrying untranslated", "error", err)
		url, err = d.LLM.GenerateImage(ctx, state.Query, size)
	}
	if err != nil {
		return state.Derive(datatypes.StateUpdate{
			Err: datatypes.NewCollaboratorError("image generation", err),
		})
	}

	return state.Derive(datatypes.StateUpdate{
		Result:    "Here is the generated image: " + url,
		Artifacts: map[string]any{"image_url": url},
		Metadata:  map[string]any{"prompt_translated": translated},
	})
}

// translatePrompt asks the text provider for an English rendering.
func (d *Deps) translatePrompt(ctx context.Context, prompt string) (string, error) {
	maxTokens := 300
	return d.LLM.Generate(ctx,
		"Translate the following image prompt to English. Reply with only the translation.\n\n"+prompt,
		llm.GenerationParams{MaxTokens: &maxTokens})
}

// looksNonEnglish reports whether a meaningful share of the letters fall
// outside the Latin script. Cheap detection is enough here; a wrong guess
// only costs one extra provider call.
func looksNonEnglish(s string) bool {
	var letters, nonLatin int
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if !unicode.In(r, unicode.Latin) {
			nonLatin++
		}
	}
	return letters > 0 && nonLatin*4 >= letters
}
