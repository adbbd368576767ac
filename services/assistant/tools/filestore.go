// Copyright (C) 2025 Quay Market (engineering@quaymarket.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/quaymarket/quay/pkg/validation"
)

// FileStore is the sandboxed file collaborator contract.
//
// Every path is relative to the store's root; implementations must reject
// any path that resolves outside it before touching the filesystem.
type FileStore interface {
	Read(relPath string) (string, error)
	Write(relPath, content string) error
	List(relPath string) ([]string, error)
}

// LocalFileStore confines all operations under a root directory.
type LocalFileStore struct {
	root string
}

// NewLocalFileStore creates the root directory if needed.
func NewLocalFileStore(root string) (*LocalFileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("file store root cannot be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving file store root: %w", err)
	}
	if err := os.MkdirAll(abs, 0750); err != nil {
		return nil, fmt.Errorf("creating file store root: %w", err)
	}
	return &LocalFileStore{root: abs}, nil
}

// Root returns the absolute sandbox root.
func (s *LocalFileStore) Root() string { return s.root }

// Read returns the content of a sandboxed file.
func (s *LocalFileStore) Read(relPath string) (string, error) {
	abs, err := validation.ResolveUnder(s.root, relPath)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", relPath, err)
	}
	return string(data), nil
}

// Write stores content at a sandboxed path, creating parent directories.
func (s *LocalFileStore) Write(relPath, content string) error {
	abs, err := validation.ResolveUnder(s.root, relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0750); err != nil {
		return fmt.Errorf("creating parent directory for %s: %w", relPath, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0640); err != nil {
		return fmt.Errorf("writing %s: %w", relPath, err)
	}
	return nil
}

// List returns the entries of a sandboxed directory. An empty relPath lists
// the root.
func (s *LocalFileStore) List(relPath string) ([]string, error) {
	abs := s.root
	if relPath != "" && relPath != "." {
		var err error
		abs, err = validation.ResolveUnder(s.root, relPath)
		if err != nil {
			return nil, err
		}
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", relPath, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	return names, nil
}

var _ FileStore = (*LocalFileStore)(nil)
