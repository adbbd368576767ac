// Copyright (C) 2025 Quay Market (engineering@quaymarket.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides provider clients for generative backends.
//
// Two backends are supported: an OpenAI-compatible API (chat, completion and
// image generation) and an Ollama server (chat and completion over its JSON
// API). Both implement Client and are selected by configuration at startup;
// the rest of the service only sees the interface.
package llm

import (
	"context"

	"github.com/quaymarket/quay/services/assistant/datatypes"
)

// GenerationParams tunes a single provider call. Nil fields use backend
// defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// Client defines the standard interface for any generative backend.
type Client interface {
	// Generate produces text from a single prompt.
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)

	// Chat produces the next assistant message for a conversation.
	Chat(ctx context.Context, messages []datatypes.Message, params GenerationParams) (string, error)

	// GenerateImage produces an image for a prompt and returns its URL.
	// Backends without image support return an error.
	GenerateImage(ctx context.Context, prompt string, size string) (string, error)
}
