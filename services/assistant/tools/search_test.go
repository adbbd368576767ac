// Copyright (C) 2025 Quay Market (engineering@quaymarket.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

// stubHTTPClient replays a canned response and records the request body.
type stubHTTPClient struct {
	status  int
	body    string
	gotBody []byte
}

func (s *stubHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		s.gotBody, _ = io.ReadAll(req.Body)
	}
	return &http.Response{
		StatusCode: s.status,
		Body:       io.NopCloser(bytes.NewBufferString(s.body)),
	}, nil
}

func TestWebSearchClient_Search(t *testing.T) {
	stub := &stubHTTPClient{
		status: http.StatusOK,
		body: `{"answer":"Berth fees vary by season.",
			"results":[{"title":"Marina fees","content":"...","url":"https://example.com","score":0.91}]}`,
	}
	c := &WebSearchClient{httpClient: stub, endpoint: "https://search.test/v1", apiKey: "k"}

	resp, err := c.Search(context.Background(), "berth fees", 3)
	require.NoError(t, err)
	require.Equal(t, "Berth fees vary by season.", resp.Answer)
	require.Len(t, resp.Results, 1)
	require.Equal(t, "Marina fees", resp.Results[0].Title)

	var sent webSearchRequest
	require.NoError(t, json.Unmarshal(stub.gotBody, &sent))
	require.Equal(t, "berth fees", sent.Query)
	require.Equal(t, 3, sent.MaxResults)
	require.True(t, sent.IncludeAnswer)
}

func TestWebSearchClient_DefaultsMaxResults(t *testing.T) {
	stub := &stubHTTPClient{status: http.StatusOK, body: `{"results":[]}`}
	c := &WebSearchClient{httpClient: stub, endpoint: "https://search.test/v1", apiKey: "k"}

	_, err := c.Search(context.Background(), "q", 0)
	require.NoError(t, err)

	var sent webSearchRequest
	require.NoError(t, json.Unmarshal(stub.gotBody, &sent))
	require.Equal(t, 5, sent.MaxResults)
}

func TestWebSearchClient_NonOKStatus(t *testing.T) {
	stub := &stubHTTPClient{status: http.StatusTooManyRequests, body: `rate limited`}
	c := &WebSearchClient{httpClient: stub, endpoint: "https://search.test/v1", apiKey: "k"}

	_, err := c.Search(context.Background(), "q", 3)
	require.ErrorContains(t, err, "429")
}

func TestNewWebSearchClient_RequiresKey(t *testing.T) {
	t.Setenv("SEARCH_API_KEY", "")

	_, err := NewWebSearchClient()
	require.Error(t, err)
}
