// Copyright (C) 2025 Quay Market (engineering@quaymarket.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL canonicalizes a URL for crawl-set deduplication.
//
// Normalization is scheme-agnostic and trailing-slash-stripping, so
// "http://example.com/a/", "https://example.com/a" and "example.com/a"
// all collapse to the same key. The fragment is dropped; the query string
// is kept because it can address distinct pages.
//
// Returns the canonical key, or an error for unparsable input.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("url cannot be empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url has no host: %q", raw)
	}

	key := strings.ToLower(u.Host) + strings.TrimSuffix(u.Path, "/")
	if u.RawQuery != "" {
		key += "?" + u.RawQuery
	}
	return key, nil
}

// SameHost reports whether two URLs share a host after normalization.
// Deep crawls use this to restrict traversal to internal links.
func SameHost(a, b string) bool {
	ua, errA := url.Parse(ensureScheme(a))
	ub, errB := url.Parse(ensureScheme(b))
	if errA != nil || errB != nil {
		return false
	}
	return strings.EqualFold(ua.Host, ub.Host) && ua.Host != ""
}

func ensureScheme(raw string) string {
	if strings.Contains(raw, "://") {
		return raw
	}
	return "http://" + raw
}
