// Copyright (C) 2025 Quay Market (engineering@quaymarket.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tools contains the external-collaborator contracts consumed by the
// tool stages, plus thin default backends. Stages depend only on the
// interfaces; tests inject fakes.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// HTTPClient allows injecting mock HTTP clients for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// =============================================================================
// Search Contract
// =============================================================================

// SearchResult is one web search hit.
type SearchResult struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	URL     string  `json:"url"`
	Score   float64 `json:"score"`
}

// SearchResponse is the structured result of a search call.
type SearchResponse struct {
	Answer  string         `json:"answer,omitempty"`
	Results []SearchResult `json:"results"`
}

// SearchClient is the web search collaborator contract.
type SearchClient interface {
	Search(ctx context.Context, query string, maxResults int) (*SearchResponse, error)
}

// =============================================================================
// Default Backend
// =============================================================================

// WebSearchClient talks to a Tavily-shaped search API.
type WebSearchClient struct {
	httpClient HTTPClient
	endpoint   string
	apiKey     string
}

type webSearchRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer bool   `json:"include_answer"`
}

// NewWebSearchClient builds a client from SEARCH_API_URL and SEARCH_API_KEY.
func NewWebSearchClient() (*WebSearchClient, error) {
	endpoint := os.Getenv("SEARCH_API_URL")
	apiKey := os.Getenv("SEARCH_API_KEY")
	if endpoint == "" {
		endpoint = "https://api.tavily.com/search"
	}
	if apiKey == "" {
		return nil, fmt.Errorf("SEARCH_API_KEY environment variable not set")
	}
	slog.Info("Initializing web search client", "endpoint", endpoint)
	return &WebSearchClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		endpoint:   endpoint,
		apiKey:     apiKey,
	}, nil
}

// Search implements the SearchClient interface.
func (c *WebSearchClient) Search(ctx context.Context, query string, maxResults int) (*SearchResponse, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	payload, err := json.Marshal(webSearchRequest{
		APIKey:        c.apiKey,
		Query:         query,
		MaxResults:    maxResults,
		IncludeAnswer: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search API call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search API returned status %d", resp.StatusCode)
	}

	var out SearchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}
	return &out, nil
}

var _ SearchClient = (*WebSearchClient)(nil)
