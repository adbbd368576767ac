// Copyright (C) 2025 Quay Market (engineering@quaymarket.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package classify resolves the intent and data mode of a user query.
//
// The primary path asks the configured generative provider to classify the
// query against the fixed intent set. When the provider fails, returns
// garbage, or is not configured, classification degrades to a deterministic
// keyword/pattern cascade. Degrading is not retrying: the provider is never
// re-invoked within the same turn.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/quaymarket/quay/services/assistant/datatypes"
	"github.com/quaymarket/quay/services/llm"
)

// Classification is the classifier's verdict for one query.
type Classification struct {
	Intent     datatypes.Intent
	DataMode   datatypes.DataMode
	Confidence float64
	Reasoning  string

	// Degraded is true when the heuristic cascade produced the verdict.
	Degraded bool
}

// Classifier resolves intent and data mode.
//
// A nil provider is allowed; every query then takes the fallback cascade.
type Classifier struct {
	provider llm.Client
}

// New builds a classifier over the given provider. provider may be nil.
func New(provider llm.Client) *Classifier {
	return &Classifier{provider: provider}
}

// =============================================================================
// Provider Classification
// =============================================================================

// classifyInstructions is the fixed instruction set sent to the provider.
// The bias rules push temporal and political-figure queries toward
// factual_search + realtime, matching the fallback cascade.
const classifyInstructions = `You are an intent classifier for a marketplace assistant. Classify the user query into exactly one intent:

- general_chat: greetings, opinions, conversation
- text_generation: write/compose/draft text (stories, emails, descriptions)
- image_generation: create/draw/generate an image, logo, picture
- factual_search: questions needing a web lookup for facts
- web_crawling: fetch or summarize a specific URL
- code_execution: run/execute/calculate something with code
- data_analysis: analyze data, statistics, comparisons
- file_read: read or show a file
- file_write: save or write content to a file
- file_analysis: analyze or summarize an attached/named file
- datetime: current time or date questions

And one data_mode:
- historical: answerable from static knowledge or the conversation
- realtime: requires fresh lookup (news, prices, current office holders, the clock)

Rules: queries containing "current", "latest", "now", "today", or asking who holds a position or office (president, CEO, prime minister, leader) are factual_search with realtime mode.

Respond with only a JSON object:
{"intent": "...", "data_mode": "...", "confidence": 0.0, "reasoning": "..."}`

// providerVerdict mirrors the JSON the provider is instructed to return.
type providerVerdict struct {
	Intent     string  `json:"intent"`
	DataMode   string  `json:"data_mode"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Classify resolves the intent and data mode for query. It never fails:
// provider trouble degrades to the heuristic cascade.
func (c *Classifier) Classify(ctx context.Context, query string) Classification {
	if strings.TrimSpace(query) == "" {
		return Classification{
			Intent:     datatypes.IntentGeneralChat,
			DataMode:   datatypes.DataModeHistorical,
			Confidence: 1.0,
			Reasoning:  "empty query",
		}
	}

	if c.provider != nil {
		verdict, err := c.classifyWithProvider(ctx, query)
		if err == nil {
			return verdict
		}
		slog.Warn("classifier provider degraded to heuristics", "error", err)
	}

	return c.classifyWithHeuristics(query)
}

func (c *Classifier) classifyWithProvider(ctx context.Context, query string) (Classification, error) {
	maxTokens := 200
	temp := float32(0.0)
	raw, err := c.provider.Chat(ctx, []datatypes.Message{
		{Role: "system", Content: classifyInstructions},
		{Role: "user", Content: query},
	}, llm.GenerationParams{MaxTokens: &maxTokens, Temperature: &temp})
	if err != nil {
		return Classification{}, fmt.Errorf("provider call: %w", err)
	}

	verdict, err := parseVerdict(raw)
	if err != nil {
		return Classification{}, fmt.Errorf("provider verdict: %w", err)
	}

	intent := datatypes.Intent(verdict.Intent)
	mode := datatypes.DataMode(verdict.DataMode)
	if !intent.Valid() || !mode.Valid() {
		return Classification{}, fmt.Errorf("provider verdict out of range: intent=%q mode=%q", verdict.Intent, verdict.DataMode)
	}

	confidence := verdict.Confidence
	if confidence < 0 || confidence > 1 {
		confidence = 0.5
	}

	return Classification{
		Intent:     intent,
		DataMode:   mode,
		Confidence: confidence,
		Reasoning:  verdict.Reasoning,
	}, nil
}

// parseVerdict extracts the first JSON object from the provider output.
// Providers occasionally wrap the JSON in prose or code fences.
func parseVerdict(raw string) (*providerVerdict, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in output")
	}

	var verdict providerVerdict
	if err := json.Unmarshal([]byte(raw[start:end+1]), &verdict); err != nil {
		return nil, fmt.Errorf("unparsable JSON: %w", err)
	}
	return &verdict, nil
}

// =============================================================================
// Heuristic Cascade
// =============================================================================

var (
	imagePattern = regexp.MustCompile(`(?i)\b(draw|sketch|illustrat\w*|logo|picture of|image of|generate (an? )?(image|picture|photo))\b`)

	// searchPattern covers temporal markers and position/office queries.
	searchPattern = regexp.MustCompile(`(?i)\b(current|currently|latest|recent|breaking|news|who is (now|the)|president|prime minister|chancellor|ceo of|head of|leader of|election|stock price|weather)\b`)

	urlPattern = regexp.MustCompile(`(?i)\b(https?://\S+|www\.\S+|\S+\.(com|org|net|io|dev)(/\S*)?)\b`)

	execPattern = regexp.MustCompile(`(?i)\b(run|execute|calculate|compute|evaluate)\b`)

	datetimePattern = regexp.MustCompile(`(?i)\b(what time|current time|what day|what date|today'?s date|time is it|date today)\b`)

	filePattern = regexp.MustCompile(`(?i)\b(read|open|show|load|write|save|append)\b.*\bfile\b|\bfile\b.*\b(read|open|show|load|write|save|append)\b`)

	// pathPattern is a path-like token: an extension or a separator. File
	// intents require one so "file a complaint" stays general chat.
	pathPattern = regexp.MustCompile(`\S+\.(txt|md|csv|json|yaml|yml|log|py|go|pdf)\b|\S+/\S+`)

	writeVerbPattern = regexp.MustCompile(`(?i)\b(write|save|append)\b`)
)

// classifyWithHeuristics is the deterministic degrade path. Branch order
// matters: earlier branches are more specific. Each carries a fixed
// confidence between 0.5 and 0.9.
func (c *Classifier) classifyWithHeuristics(query string) Classification {
	verdict := Classification{Degraded: true}

	switch {
	case imagePattern.MatchString(query):
		verdict.Intent = datatypes.IntentImageGeneration
		verdict.DataMode = datatypes.DataModeHistorical
		verdict.Confidence = 0.9
		verdict.Reasoning = "image keyword match"

	case searchPattern.MatchString(query):
		verdict.Intent = datatypes.IntentFactualSearch
		verdict.DataMode = datatypes.DataModeRealtime
		verdict.Confidence = 0.85
		verdict.Reasoning = "temporal or position pattern match"

	case urlPattern.MatchString(query):
		verdict.Intent = datatypes.IntentWebCrawling
		verdict.DataMode = datatypes.DataModeRealtime
		verdict.Confidence = 0.9
		verdict.Reasoning = "URL present in query"

	case datetimePattern.MatchString(query):
		verdict.Intent = datatypes.IntentDatetime
		verdict.DataMode = datatypes.DataModeRealtime
		verdict.Confidence = 0.8
		verdict.Reasoning = "datetime keyword match"

	case filePattern.MatchString(query) && pathPattern.MatchString(query):
		if writeVerbPattern.MatchString(query) {
			verdict.Intent = datatypes.IntentFileWrite
		} else {
			verdict.Intent = datatypes.IntentFileRead
		}
		verdict.DataMode = datatypes.DataModeHistorical
		verdict.Confidence = 0.75
		verdict.Reasoning = "file keyword with path-like token"

	case execPattern.MatchString(query):
		verdict.Intent = datatypes.IntentCodeExecution
		verdict.DataMode = datatypes.DataModeHistorical
		verdict.Confidence = 0.7
		verdict.Reasoning = "execution keyword match"

	default:
		verdict.Intent = datatypes.IntentGeneralChat
		verdict.DataMode = datatypes.DataModeHistorical
		verdict.Confidence = 0.5
		verdict.Reasoning = "no pattern matched"
	}

	return verdict
}
