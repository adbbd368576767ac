// Copyright (C) 2025 Quay Market (engineering@quaymarket.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package classify

import (
	"context"
	"errors"
	"testing"

	"github.com/quaymarket/quay/services/assistant/datatypes"
	"github.com/quaymarket/quay/services/llm"
)

// fakeProvider scripts the provider reply for classifier tests.
type fakeProvider struct {
	reply string
	err   error
	calls int
}

func (f *fakeProvider) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	return f.reply, f.err
}

func (f *fakeProvider) Chat(ctx context.Context, messages []datatypes.Message, params llm.GenerationParams) (string, error) {
	f.calls++
	return f.reply, f.err
}

func (f *fakeProvider) GenerateImage(ctx context.Context, prompt string, size string) (string, error) {
	return "", errors.New("not supported")
}

var _ llm.Client = (*fakeProvider)(nil)

func TestClassifier_Classify_EmptyQuery(t *testing.T) {
	c := New(&fakeProvider{err: errors.New("must not be called")})

	got := c.Classify(context.Background(), "   ")

	if got.Intent != datatypes.IntentGeneralChat {
		t.Errorf("intent = %q", got.Intent)
	}
	if got.DataMode != datatypes.DataModeHistorical {
		t.Errorf("data mode = %q", got.DataMode)
	}
	if got.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0", got.Confidence)
	}
	if got.Degraded {
		t.Error("empty query verdict is not a degrade")
	}
}

func TestClassifier_Classify_ProviderVerdict(t *testing.T) {
	provider := &fakeProvider{
		reply: `{"intent": "factual_search", "data_mode": "realtime", "confidence": 0.92, "reasoning": "needs lookup"}`,
	}
	c := New(provider)

	got := c.Classify(context.Background(), "who is the current president of France?")

	if got.Intent != datatypes.IntentFactualSearch || got.DataMode != datatypes.DataModeRealtime {
		t.Errorf("verdict = %+v", got)
	}
	if got.Confidence != 0.92 {
		t.Errorf("confidence = %v", got.Confidence)
	}
	if got.Degraded {
		t.Error("provider verdict marked degraded")
	}
}

func TestClassifier_Classify_ProviderJSONWrappedInProse(t *testing.T) {
	provider := &fakeProvider{
		reply: "Sure, here is the classification:\n```json\n{\"intent\": \"image_generation\", \"data_mode\": \"historical\", \"confidence\": 0.8, \"reasoning\": \"draw request\"}\n```",
	}
	c := New(provider)

	got := c.Classify(context.Background(), "draw me a lighthouse")
	if got.Intent != datatypes.IntentImageGeneration {
		t.Errorf("intent = %q", got.Intent)
	}
}

func TestClassifier_Classify_DegradeNotRetry(t *testing.T) {
	provider := &fakeProvider{err: errors.New("provider down")}
	c := New(provider)

	got := c.Classify(context.Background(), "draw a picture of a boat")

	if provider.calls != 1 {
		t.Errorf("provider called %d times, degrade must not retry", provider.calls)
	}
	if !got.Degraded {
		t.Error("fallback verdict not marked degraded")
	}
	if got.Intent != datatypes.IntentImageGeneration {
		t.Errorf("heuristic intent = %q", got.Intent)
	}
}

func TestClassifier_Classify_OutOfRangeVerdictDegrades(t *testing.T) {
	provider := &fakeProvider{
		reply: `{"intent": "shopping", "data_mode": "realtime", "confidence": 0.9}`,
	}
	c := New(provider)

	got := c.Classify(context.Background(), "run this calculation for me")
	if !got.Degraded {
		t.Error("invalid provider intent must degrade to heuristics")
	}
	if got.Intent != datatypes.IntentCodeExecution {
		t.Errorf("heuristic intent = %q", got.Intent)
	}
}

func TestClassifier_Heuristics(t *testing.T) {
	c := New(nil)

	tests := []struct {
		name       string
		query      string
		wantIntent datatypes.Intent
		wantMode   datatypes.DataMode
	}{
		{"image request", "please draw a sunset over the harbor", datatypes.IntentImageGeneration, datatypes.DataModeHistorical},
		{"office holder", "who is the current chancellor of Germany", datatypes.IntentFactualSearch, datatypes.DataModeRealtime},
		{"latest news", "latest news about the port strike", datatypes.IntentFactualSearch, datatypes.DataModeRealtime},
		{"url", "summarize https://example.com/pricing", datatypes.IntentWebCrawling, datatypes.DataModeRealtime},
		{"clock", "what time is it in Lisbon", datatypes.IntentDatetime, datatypes.DataModeRealtime},
		{"file read", "show me the file notes/meeting.md", datatypes.IntentFileRead, datatypes.DataModeHistorical},
		{"file write", "save this list to a file called todo.txt", datatypes.IntentFileWrite, datatypes.DataModeHistorical},
		{"code", "calculate the 40th fibonacci number", datatypes.IntentCodeExecution, datatypes.DataModeHistorical},
		{"chat default", "I had a lovely weekend, thanks", datatypes.IntentGeneralChat, datatypes.DataModeHistorical},
		{"file without path stays chat", "I need to file a complaint about a seller", datatypes.IntentGeneralChat, datatypes.DataModeHistorical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(context.Background(), tt.query)
			if got.Intent != tt.wantIntent {
				t.Errorf("intent = %q, want %q", got.Intent, tt.wantIntent)
			}
			if got.DataMode != tt.wantMode {
				t.Errorf("data mode = %q, want %q", got.DataMode, tt.wantMode)
			}
			if !got.Degraded {
				t.Error("nil-provider verdict must be marked degraded")
			}
			if got.Confidence < 0.5 || got.Confidence > 0.9 {
				t.Errorf("heuristic confidence %v outside [0.5, 0.9]", got.Confidence)
			}
		})
	}
}

func TestParseVerdict_NoJSON(t *testing.T) {
	if _, err := parseVerdict("no json here"); err == nil {
		t.Error("expected error for output without JSON")
	}
}
