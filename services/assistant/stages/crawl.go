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
	"regexp"
	"strings"

	"github.com/quaymarket/quay/services/assistant/datatypes"
)

var queryURLPattern = regexp.MustCompile(`https?://\S+|www\.\S+|\b[\w-]+\.(?:com|org|net|io|dev)(?:/\S*)?`)

// crawlStage fetches the URL named in the query or caller context.
//
// With context max_depth > 0 a deep crawl runs instead of a single fetch;
// the full report lands in artifacts and scratch, the answer summarizes it.
func (d *Deps) crawlStage(state *datatypes.ConversationState) *datatypes.ConversationState {
	ctx, cancel := context.WithTimeout(context.Background(), stageTimeout)
	defer cancel()

	target, _ := state.Context["url"].(string)
	if target == "" {
		target = queryURLPattern.FindString(state.Query)
	}
	if target == "" {
		return state.Derive(datatypes.StateUpdate{
			Err: fmt.Errorf("no URL found in the request: %w", datatypes.ErrValidation),
		})
	}

	maxDepth := 0
	if v, ok := state.Context["max_depth"].(float64); ok {
		maxDepth = int(v)
	}
	maxLinks := 3
	if v, ok := state.Context["max_links_per_page"].(float64); ok && v > 0 {
		maxLinks = int(v)
	}

	if maxDepth > 0 {
		report, err := d.Crawler.DeepCrawl(ctx, target, maxDepth, maxLinks)
		if err != nil {
			return state.Derive(datatypes.StateUpdate{
				Err: datatypes.NewCollaboratorError("crawl", err),
			})
		}
		return state.Derive(datatypes.StateUpdate{
			Result: fmt.Sprintf("Crawled %d page(s) from %s down to depth %d.",
				report.PagesTotal, target, report.MaxDepth),
			Scratch:   map[string]any{ScratchCrawlReport: report},
			Artifacts: map[string]any{"crawl_report": report},
		})
	}

	page, err := d.Crawler.Crawl(ctx, target)
	if err != nil {
		return state.Derive(datatypes.StateUpdate{
			Err: datatypes.NewCollaboratorError("crawl", err),
		})
	}

	result := page.Markdown
	if strings.TrimSpace(result) == "" {
		result = fmt.Sprintf("Fetched %s but the page had no extractable text.", target)
	}
	return state.Derive(datatypes.StateUpdate{
		Result: result,
		Artifacts: map[string]any{
			"page_title": page.Title,
			"page_links": page.Links,
			"page_media": page.Media,
		},
	})
}
