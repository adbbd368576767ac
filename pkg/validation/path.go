// Copyright (C) 2025 Quay Market (engineering@quaymarket.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation utilities for security-critical
// operations.
//
// This package contains validators for user-provided inputs that reach file
// paths, subprocess calls, or URL sets. Using these validators prevents path
// traversal out of the file sandbox, execution of denied code constructs, and
// crawl-set aliasing.
package validation

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ResolveUnder resolves a user-supplied relative path against root and
// verifies the result stays under root.
//
// Valid paths:
//   - relative to root ("notes/a.txt", "./a.txt")
//   - may contain dots as long as the cleaned result remains inside root
//
// Rejected before any I/O:
//   - absolute paths
//   - any path whose cleaned form escapes root ("../x", "a/../../x")
//
// Returns the absolute resolved path, or an error if the path escapes.
//
// Example:
//
//	abs, err := validation.ResolveUnder(sandboxRoot, req.Path)
//	if err != nil {
//	    return nil, fmt.Errorf("rejected path: %w", err)
//	}
//	// Safe to open abs
func ResolveUnder(root, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("absolute paths are not allowed: %q", rel)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving sandbox root: %w", err)
	}

	resolved := filepath.Clean(filepath.Join(absRoot, rel))
	if resolved != absRoot && !strings.HasPrefix(resolved, absRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes sandbox root: %q", rel)
	}

	return resolved, nil
}
