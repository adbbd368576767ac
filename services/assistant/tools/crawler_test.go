// Copyright (C) 2025 Quay Market (engineering@quaymarket.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// scriptedFetcher serves pages by URL and counts fetches.
type scriptedFetcher struct {
	mu      sync.Mutex
	pages   map[string]*Page
	fetched []string
}

func (f *scriptedFetcher) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, pageURL)
	f.mu.Unlock()

	page, ok := f.pages[pageURL]
	if !ok {
		return nil, errors.New("not found")
	}
	return page, nil
}

func (f *scriptedFetcher) count(pageURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.fetched {
		if u == pageURL {
			n++
		}
	}
	return n
}

func TestCrawler_DeepCrawl_DedupesBackLinks(t *testing.T) {
	// Every child links back to the root; the root must be fetched once.
	fetcher := &scriptedFetcher{pages: map[string]*Page{
		"https://example.com": {
			Success: true, URL: "https://example.com",
			Links: []string{"https://example.com/a", "https://example.com/b"},
		},
		"https://example.com/a": {
			Success: true, URL: "https://example.com/a",
			// Trailing slash and http scheme still hit the visited set.
			Links: []string{"http://example.com/", "https://example.com/b"},
		},
		"https://example.com/b": {
			Success: true, URL: "https://example.com/b",
			Links: []string{"https://example.com"},
		},
	}}
	c := NewCrawler(fetcher)

	report, err := c.DeepCrawl(context.Background(), "https://example.com", 3, 3)
	require.NoError(t, err)

	require.Equal(t, 1, fetcher.count("https://example.com"))
	require.Equal(t, 3, report.PagesTotal)
}

func TestCrawler_DeepCrawl_RespectsLinkBudget(t *testing.T) {
	fetcher := &scriptedFetcher{pages: map[string]*Page{
		"https://example.com": {
			Success: true, URL: "https://example.com",
			Links: []string{
				"https://example.com/1", "https://example.com/2",
				"https://example.com/3", "https://example.com/4",
				"https://example.com/5",
			},
		},
		"https://example.com/1": {Success: true, URL: "https://example.com/1"},
		"https://example.com/2": {Success: true, URL: "https://example.com/2"},
	}}
	c := NewCrawler(fetcher)

	report, err := c.DeepCrawl(context.Background(), "https://example.com", 1, 2)
	require.NoError(t, err)

	// Root plus at most maxLinksPerPage children.
	require.Equal(t, 3, report.PagesTotal)
}

func TestCrawler_DeepCrawl_PageCeilingAtDepthTwo(t *testing.T) {
	// Full fan-out: the root and every child offer two fresh links each.
	// The visited set must stay within maxLinks^maxDepth + 1 pages.
	fetcher := &scriptedFetcher{pages: map[string]*Page{
		"https://example.com": {
			Success: true, URL: "https://example.com",
			Links: []string{"https://example.com/1", "https://example.com/2"},
		},
		"https://example.com/1": {
			Success: true, URL: "https://example.com/1",
			Links: []string{"https://example.com/1a", "https://example.com/1b"},
		},
		"https://example.com/2": {
			Success: true, URL: "https://example.com/2",
			Links: []string{"https://example.com/2a", "https://example.com/2b"},
		},
		"https://example.com/1a": {Success: true, URL: "https://example.com/1a"},
		"https://example.com/1b": {Success: true, URL: "https://example.com/1b"},
		"https://example.com/2a": {Success: true, URL: "https://example.com/2a"},
		"https://example.com/2b": {Success: true, URL: "https://example.com/2b"},
	}}
	c := NewCrawler(fetcher)

	report, err := c.DeepCrawl(context.Background(), "https://example.com", 2, 2)
	require.NoError(t, err)

	require.LessOrEqual(t, report.PagesTotal, 5) // 2^2 + 1
	require.Equal(t, 5, report.PagesTotal)
}

func TestCrawler_DeepCrawl_StaysOnHost(t *testing.T) {
	fetcher := &scriptedFetcher{pages: map[string]*Page{
		"https://example.com": {
			Success: true, URL: "https://example.com",
			Links: []string{"https://elsewhere.org/page", "https://example.com/in"},
		},
		"https://example.com/in": {Success: true, URL: "https://example.com/in"},
	}}
	c := NewCrawler(fetcher)

	report, err := c.DeepCrawl(context.Background(), "https://example.com", 1, 5)
	require.NoError(t, err)

	require.Equal(t, 2, report.PagesTotal)
	require.Zero(t, fetcher.count("https://elsewhere.org/page"))
}

func TestCrawler_DeepCrawl_FailedFetchDoesNotAbort(t *testing.T) {
	fetcher := &scriptedFetcher{pages: map[string]*Page{
		"https://example.com": {
			Success: true, URL: "https://example.com",
			Links: []string{"https://example.com/gone", "https://example.com/ok"},
		},
		"https://example.com/ok": {Success: true, URL: "https://example.com/ok"},
	}}
	c := NewCrawler(fetcher)

	report, err := c.DeepCrawl(context.Background(), "https://example.com", 1, 3)
	require.NoError(t, err)

	require.Equal(t, 3, report.PagesTotal)
	var failed, succeeded int
	for _, page := range report.Pages {
		if page.Success {
			succeeded++
		} else {
			failed++
		}
	}
	require.Equal(t, 2, succeeded)
	require.Equal(t, 1, failed)
}

func TestCrawler_DeepCrawl_DepthZeroFetchesOnlyRoot(t *testing.T) {
	fetcher := &scriptedFetcher{pages: map[string]*Page{
		"https://example.com": {
			Success: true, URL: "https://example.com",
			Links: []string{"https://example.com/a"},
		},
	}}
	c := NewCrawler(fetcher)

	report, err := c.DeepCrawl(context.Background(), "https://example.com", 0, 3)
	require.NoError(t, err)
	require.Equal(t, 1, report.PagesTotal)
}

func TestCrawler_DeepCrawl_InvalidRoot(t *testing.T) {
	c := NewCrawler(&scriptedFetcher{})
	_, err := c.DeepCrawl(context.Background(), "", 1, 3)
	require.Error(t, err)
}

func TestExtractPage(t *testing.T) {
	raw := `<html><head><title>Harbor Guide</title><style>b{}</style></head>
<body><p>Berths and moorings.</p>
<a href="/fees">Fees</a>
<a href="#section">Skip</a>
<a href="mailto:x@example.com">Mail</a>
<img src="/map.png">
<script>ignore()</script>
</body></html>`

	page := extractPage("https://port.example.com/guide", raw)

	require.Equal(t, "Harbor Guide", page.Title)
	require.Contains(t, page.Markdown, "# Harbor Guide")
	require.Contains(t, page.Markdown, "Berths and moorings.")
	require.NotContains(t, page.Markdown, "ignore()")
	require.Equal(t, []string{"https://port.example.com/fees"}, page.Links)
	require.Equal(t, []string{"https://port.example.com/map.png"}, page.Media)
}
