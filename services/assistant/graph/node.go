// Copyright (C) 2025 Quay Market (engineering@quaymarket.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package graph implements the routing graph engine for the assistant.
//
// A graph is a statically validated set of stages: a fixed entry chain, one
// conditional fan-out keyed by classified intent, per-branch chains, and a
// single convergence on the output stage. Graphs are built once at startup
// and shared read-only across all sessions.
package graph

import (
	"fmt"
	"log/slog"

	"github.com/quaymarket/quay/services/assistant/datatypes"
)

// =============================================================================
// Node Contract
// =============================================================================

// NodeName identifies a stage in the registry and the graph's edge tables.
type NodeName string

// Stage names. These are the only valid registry keys; the graph validates
// every edge target against the registry at construction time.
const (
	NodeEntry        NodeName = "entry"
	NodeClassify     NodeName = "classify"
	NodeChat         NodeName = "chat"
	NodeTextGen      NodeName = "text_generation"
	NodeImageGen     NodeName = "image_generation"
	NodeSearch       NodeName = "search"
	NodeCrawl        NodeName = "crawl"
	NodeCodeGen      NodeName = "code_generation"
	NodeCodeExec     NodeName = "code_execution"
	NodeDataAnalysis NodeName = "data_analysis"
	NodeFileRead     NodeName = "file_read"
	NodeFileWrite    NodeName = "file_write"
	NodeFileAnalysis NodeName = "file_analysis"
	NodeDatetime     NodeName = "datetime"
	NodeOutput       NodeName = "output"
)

// Node is a single unit of processing with the contract State -> State.
//
// # Description
//
// A node is a total function: it must never propagate a panic or error past
// its own boundary. Failures are written into the derived state's error
// field and observed by the output stage. A node may perform blocking I/O,
// may append at most one message to history, and may write scratch entries.
type Node func(state *datatypes.ConversationState) *datatypes.ConversationState

// Safe wraps a node so that a panic inside it becomes a state error instead
// of unwinding the graph. Stages written in this repo already catch their
// own failures; this is the contract's backstop.
func Safe(name NodeName, fn Node) Node {
	return func(state *datatypes.ConversationState) (out *datatypes.ConversationState) {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("stage panic recovered", "node", string(name), "panic", r)
				out = state.Derive(datatypes.StateUpdate{
					Err: fmt.Errorf("stage %s panicked: %v", name, r),
				})
			}
		}()
		return fn(state)
	}
}

// =============================================================================
// Registry
// =============================================================================

// Registry is the closed mapping from node name to implementation.
//
// Built once at startup. Lookups for unknown names are a configuration
// error surfaced at graph construction, never at request time.
type Registry struct {
	nodes map[NodeName]Node
}

// NewRegistry builds a registry from the given node table. Every node is
// wrapped with Safe.
func NewRegistry(nodes map[NodeName]Node) *Registry {
	wrapped := make(map[NodeName]Node, len(nodes))
	for name, fn := range nodes {
		wrapped[name] = Safe(name, fn)
	}
	return &Registry{nodes: wrapped}
}

// Has reports whether name is registered.
func (r *Registry) Has(name NodeName) bool {
	_, ok := r.nodes[name]
	return ok
}

// Node returns the implementation for name.
//
// Callers must have validated the name exists (the graph constructor does);
// an unknown name here is a programming error.
func (r *Registry) Node(name NodeName) (Node, error) {
	fn, ok := r.nodes[name]
	if !ok {
		return nil, fmt.Errorf("unknown node %q", name)
	}
	return fn, nil
}

// Names returns all registered node names (unordered).
func (r *Registry) Names() []NodeName {
	out := make([]NodeName, 0, len(r.nodes))
	for name := range r.nodes {
		out = append(out, name)
	}
	return out
}
