// Copyright (C) 2025 Quay Market (engineering@quaymarket.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/quaymarket/quay/pkg/validation"
)

// =============================================================================
// Crawl Contract
// =============================================================================

// Page is the fetched and extracted content of one URL.
type Page struct {
	Success  bool     `json:"success"`
	URL      string   `json:"url"`
	Title    string   `json:"title"`
	Markdown string   `json:"markdown"`
	Links    []string `json:"links"`
	Media    []string `json:"media"`
}

// CrawlReport is the result of a deep crawl.
type CrawlReport struct {
	Root       string `json:"root"`
	Pages      []Page `json:"pages"`
	PagesTotal int    `json:"pages_total"`
	MaxDepth   int    `json:"max_depth"`
}

// Fetcher is the single-page collaborator contract.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (*Page, error)
}

// =============================================================================
// Crawl Service
// =============================================================================

// Crawler performs single-page fetches and breadth-limited deep crawls.
//
// # Description
//
// Deep crawls are breadth-first, depth-limited and breadth-limited: at most
// maxLinksPerPage internal links are followed per page, down to maxDepth
// levels, with a total-page ceiling of maxLinks^maxDepth + 1 (the root).
// Visited URLs are deduplicated by normalized key (scheme-agnostic,
// trailing slash stripped), so a page linking back to the root is never
// fetched twice. Only links on the root's host are followed.
//
// # Thread Safety
//
// Safe for concurrent use; the visited set is turn-local.
type Crawler struct {
	fetcher Fetcher

	// limiter paces outbound fetches so deep crawls stay polite.
	limiter *rate.Limiter

	// fanout bounds concurrent fetches within one crawl level.
	fanout int
}

// NewCrawler builds a crawler over the given fetcher.
func NewCrawler(fetcher Fetcher) *Crawler {
	return &Crawler{
		fetcher: fetcher,
		limiter: rate.NewLimiter(rate.Limit(4), 4),
		fanout:  4,
	}
}

// Crawl fetches a single page.
func (c *Crawler) Crawl(ctx context.Context, pageURL string) (*Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.fetcher.Fetch(ctx, pageURL)
}

// DeepCrawl traverses from root breadth-first.
//
// # Inputs
//
//   - root: starting URL
//   - maxDepth: levels below the root to follow (0 fetches only the root)
//   - maxLinksPerPage: internal links followed per page
//
// # Outputs
//
//   - *CrawlReport: fetched pages in visit order; failed fetches are
//     recorded with Success=false and do not abort the crawl
//   - error: only when the root URL itself is invalid
func (c *Crawler) DeepCrawl(ctx context.Context, root string, maxDepth, maxLinksPerPage int) (*CrawlReport, error) {
	if maxDepth < 0 {
		maxDepth = 0
	}
	if maxLinksPerPage <= 0 {
		maxLinksPerPage = 3
	}

	rootKey, err := validation.NormalizeURL(root)
	if err != nil {
		return nil, fmt.Errorf("deep crawl root: %w", err)
	}

	// Total-page ceiling: maxLinks^maxDepth plus the root.
	pageBudget := 1
	for i := 0; i < maxDepth; i++ {
		pageBudget *= maxLinksPerPage
	}
	pageBudget++

	report := &CrawlReport{Root: root, MaxDepth: maxDepth}
	visited := map[string]bool{rootKey: true}
	frontier := []string{root}

	for depth := 0; depth <= maxDepth && len(frontier) > 0; depth++ {
		pages := c.fetchLevel(ctx, frontier)
		report.Pages = append(report.Pages, pages...)

		if depth == maxDepth {
			break
		}

		var next []string
		for _, page := range pages {
			if !page.Success {
				continue
			}
			taken := 0
			for _, link := range page.Links {
				if taken >= maxLinksPerPage {
					break
				}
				if !validation.SameHost(root, link) {
					continue
				}
				key, err := validation.NormalizeURL(link)
				if err != nil || visited[key] {
					continue
				}
				if len(visited) >= pageBudget {
					break
				}
				visited[key] = true
				next = append(next, link)
				taken++
			}
		}
		frontier = next
	}

	report.PagesTotal = len(report.Pages)
	slog.Debug("deep crawl complete", "root", root, "pages", report.PagesTotal, "depth", maxDepth)
	return report, nil
}

// fetchLevel fetches one frontier concurrently, preserving input order.
func (c *Crawler) fetchLevel(ctx context.Context, urls []string) []Page {
	pages := make([]Page, len(urls))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.fanout)
	for i, pageURL := range urls {
		i, pageURL := i, pageURL
		g.Go(func() error {
			if err := c.limiter.Wait(gctx); err != nil {
				return nil // context gone; leave the slot unsuccessful
			}
			page, err := c.fetcher.Fetch(gctx, pageURL)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Warn("crawl fetch failed", "url", pageURL, "error", err)
				pages[i] = Page{URL: pageURL}
			} else {
				pages[i] = *page
			}
			return nil
		})
	}
	_ = g.Wait()
	return pages
}

// =============================================================================
// Default Fetcher
// =============================================================================

// HTTPFetcher fetches pages with a plain HTTP client and extracts title,
// text, links and media references from the HTML.
type HTTPFetcher struct {
	httpClient HTTPClient
}

// NewHTTPFetcher builds a fetcher with a 20-second request timeout.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{httpClient: &http.Client{Timeout: 20 * time.Second}}
}

// NewHTTPFetcherWithClient builds a fetcher over an injected client.
func NewHTTPFetcherWithClient(client HTTPClient) *HTTPFetcher {
	return &HTTPFetcher{httpClient: client}
}

// Fetch implements the Fetcher interface.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	if !strings.Contains(pageURL, "://") {
		pageURL = "https://" + pageURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building crawl request: %w", err)
	}
	req.Header.Set("User-Agent", "quay-assistant/1.0")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crawl fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("crawl fetch returned status %d", resp.StatusCode)
	}

	// 2MB cap keeps a hostile page from ballooning memory.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, fmt.Errorf("reading crawl response: %w", err)
	}

	page := extractPage(pageURL, string(body))
	page.Success = true
	return page, nil
}

// extractPage walks the HTML tree collecting title, visible text, links and
// media sources. Relative links are resolved against the page URL.
func extractPage(pageURL, rawHTML string) *Page {
	page := &Page{URL: pageURL}
	base, _ := url.Parse(pageURL)

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		page.Markdown = rawHTML
		return page
	}

	var text strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style"):
			return
		case n.Type == html.ElementNode && n.Data == "title":
			if n.FirstChild != nil && page.Title == "" {
				page.Title = strings.TrimSpace(n.FirstChild.Data)
			}
		case n.Type == html.ElementNode && n.Data == "a":
			if href := attr(n, "href"); href != "" {
				if resolved := resolveRef(base, href); resolved != "" {
					page.Links = append(page.Links, resolved)
				}
			}
		case n.Type == html.ElementNode && (n.Data == "img" || n.Data == "video" || n.Data == "audio"):
			if src := attr(n, "src"); src != "" {
				if resolved := resolveRef(base, src); resolved != "" {
					page.Media = append(page.Media, resolved)
				}
			}
		case n.Type == html.TextNode:
			trimmed := strings.TrimSpace(n.Data)
			if trimmed != "" {
				text.WriteString(trimmed)
				text.WriteString("\n")
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	page.Markdown = text.String()
	if page.Title != "" {
		page.Markdown = "# " + page.Title + "\n\n" + page.Markdown
	}
	return page
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func resolveRef(base *url.URL, ref string) string {
	if strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "javascript:") || strings.HasPrefix(ref, "mailto:") {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != nil {
		parsed = base.ResolveReference(parsed)
	}
	if parsed.Host == "" {
		return ""
	}
	return parsed.String()
}

var _ Fetcher = (*HTTPFetcher)(nil)
