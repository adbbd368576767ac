// Copyright (C) 2025 Quay Market (engineering@quaymarket.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/quaymarket/quay/services/assistant/datatypes"
)

func testOllamaClient(baseURL string) *OllamaClient {
	return &OllamaClient{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		model:      "test-model",
		limiter:    rate.NewLimiter(rate.Inf, 1),
	}
}

func TestOllamaClient_Generate(t *testing.T) {
	var gotPath string
	var gotReq ollamaGenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: "generated text", Done: true})
	}))
	defer srv.Close()

	temp := float32(0.2)
	client := testOllamaClient(srv.URL)
	out, err := client.Generate(context.Background(), "describe a berth",
		GenerationParams{Temperature: &temp})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "generated text" {
		t.Errorf("output = %q", out)
	}
	if gotPath != "/api/generate" {
		t.Errorf("path = %q", gotPath)
	}
	if gotReq.Model != "test-model" || gotReq.Prompt != "describe a berth" || gotReq.Stream {
		t.Errorf("request = %+v", gotReq)
	}
	if gotReq.Options["temperature"] != 0.2 {
		t.Errorf("options = %v", gotReq.Options)
	}
}

func TestOllamaClient_Chat(t *testing.T) {
	var gotReq ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{
			Message: datatypes.Message{Role: "assistant", Content: "hello back"},
			Done:    true,
		})
	}))
	defer srv.Close()

	client := testOllamaClient(srv.URL)
	out, err := client.Chat(context.Background(), []datatypes.Message{
		{Role: "user", Content: "hello"},
	}, GenerationParams{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hello back" {
		t.Errorf("output = %q", out)
	}
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Content != "hello" {
		t.Errorf("messages = %+v", gotReq.Messages)
	}
}

func TestOllamaClient_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	client := testOllamaClient(srv.URL)
	_, err := client.Generate(context.Background(), "p", GenerationParams{})
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestOllamaClient_GenerateImageUnsupported(t *testing.T) {
	client := testOllamaClient("http://unused")
	if _, err := client.GenerateImage(context.Background(), "a harbor at dusk", "512x512"); err == nil {
		t.Fatal("image generation must fail on the ollama backend")
	}
}

func TestNewOllamaClient_RequiresBaseURL(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "")
	if _, err := NewOllamaClient(); err == nil {
		t.Fatal("expected an error without OLLAMA_BASE_URL")
	}
}

func TestOllamaOptions(t *testing.T) {
	temp := float32(0.7)
	topP := float32(0.9)
	maxTokens := 128

	options := ollamaOptions(GenerationParams{
		Temperature: &temp,
		TopP:        &topP,
		MaxTokens:   &maxTokens,
		Stop:        []string{"END"},
	})

	if options["temperature"] != temp || options["top_p"] != topP {
		t.Errorf("options = %v", options)
	}
	if options["num_predict"] != maxTokens {
		t.Errorf("num_predict = %v", options["num_predict"])
	}

	if got := ollamaOptions(GenerationParams{}); len(got) != 0 {
		t.Errorf("zero params produced options: %v", got)
	}
}
