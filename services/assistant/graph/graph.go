// Copyright (C) 2025 Quay Market (engineering@quaymarket.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/quaymarket/quay/services/assistant/datatypes"
)

// =============================================================================
// Scratch Keys Read by the Engine
// =============================================================================

const (
	// ScratchDatetimeShortcut is set by the entry stage when the query is
	// unambiguously a clock/date question. The engine then routes straight
	// to the datetime node without invoking the classifier.
	ScratchDatetimeShortcut = "datetime_shortcut"
)

// =============================================================================
// Routing Graph
// =============================================================================

// RoutingGraph is the immutable, process-wide stage graph.
//
// # Description
//
// The graph has a fixed entry chain (entry -> classify), one conditional
// fan-out evaluated once per turn after classify, per-branch chains defined
// by fixed edges, and a single convergence on the terminal output node.
//
// The fan-out rule, highest priority first:
//
//  1. If the caller context carries attached files, route to the
//     file-analysis branch regardless of classified intent.
//  2. Otherwise route by classified intent through an exhaustive map.
//
// # Thread Safety
//
// Read-only after New returns; safely shared across all sessions.
//
// # Limitations
//
//   - Traversal is acyclic and single-path. There is no backtracking and no
//     re-classification mid-flight.
type RoutingGraph struct {
	registry *Registry

	// entry is the initial node of every invocation.
	entry NodeName

	// edges are the fixed transitions. A node absent from edges and from
	// the conditional source must be the terminal.
	edges map[NodeName]NodeName

	// conditional is the fan-out source node (classify).
	conditional NodeName

	// intentRoutes maps every intent to the first node of its branch.
	intentRoutes map[datatypes.Intent]NodeName

	// fileOverride is the branch entered whenever files are attached.
	fileOverride NodeName

	// terminal is the single convergence point.
	terminal NodeName

	// maxHops bounds traversal as a defect detector; the validated graph
	// is acyclic so the bound is never reached in practice.
	maxHops int
}

// Config describes a graph to build. All fields are required.
type Config struct {
	Registry     *Registry
	Entry        NodeName
	Edges        map[NodeName]NodeName
	Conditional  NodeName
	IntentRoutes map[datatypes.Intent]NodeName
	FileOverride NodeName
	Terminal     NodeName
}

// New validates the configuration and builds the graph.
//
// # Description
//
// Validation is exhaustive and happens exactly once, at startup:
//
//   - entry, conditional, terminal and every edge endpoint must exist in
//     the registry
//   - the intent map must cover every value of the intent enum
//   - the file-override target must exist
//   - every branch must reach the terminal without revisiting a node
//
// A failure here is a fatal configuration error; nothing is deferred to
// request time.
func New(cfg Config) (*RoutingGraph, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("graph: registry is required")
	}

	g := &RoutingGraph{
		registry:     cfg.Registry,
		entry:        cfg.Entry,
		edges:        cfg.Edges,
		conditional:  cfg.Conditional,
		intentRoutes: cfg.IntentRoutes,
		fileOverride: cfg.FileOverride,
		terminal:     cfg.Terminal,
		maxHops:      len(cfg.Registry.Names()) + 1,
	}

	if err := g.validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *RoutingGraph) validate() error {
	for _, required := range []NodeName{g.entry, g.conditional, g.terminal, g.fileOverride} {
		if !g.registry.Has(required) {
			return fmt.Errorf("graph: node %q is not registered", required)
		}
	}

	for from, to := range g.edges {
		if !g.registry.Has(from) {
			return fmt.Errorf("graph: edge source %q is not registered", from)
		}
		if !g.registry.Has(to) {
			return fmt.Errorf("graph: edge target %q is not registered", to)
		}
	}

	for _, intent := range datatypes.AllIntents() {
		target, ok := g.intentRoutes[intent]
		if !ok {
			return fmt.Errorf("graph: intent %q has no route", intent)
		}
		if !g.registry.Has(target) {
			return fmt.Errorf("graph: route for intent %q targets unregistered node %q", intent, target)
		}
	}
	for intent := range g.intentRoutes {
		if !intent.Valid() {
			return fmt.Errorf("graph: route declared for unknown intent %q", intent)
		}
	}

	// Every branch head must reach the terminal through fixed edges.
	heads := []NodeName{g.fileOverride}
	for _, target := range g.intentRoutes {
		heads = append(heads, target)
	}
	for _, head := range heads {
		if err := g.checkReachesTerminal(head); err != nil {
			return err
		}
	}

	return nil
}

func (g *RoutingGraph) checkReachesTerminal(head NodeName) error {
	seen := map[NodeName]bool{}
	cur := head
	for cur != g.terminal {
		if seen[cur] {
			return fmt.Errorf("graph: cycle detected at node %q", cur)
		}
		seen[cur] = true
		next, ok := g.edges[cur]
		if !ok {
			return fmt.Errorf("graph: node %q has no edge and is not the terminal", cur)
		}
		cur = next
	}
	return nil
}

// Terminal returns the terminal node name.
func (g *RoutingGraph) Terminal() NodeName { return g.terminal }

// =============================================================================
// Traversal
// =============================================================================

// Run executes one turn through the graph.
//
// # Description
//
// Run walks from the entry node to the terminal, threading the state value
// through each stage. Stage errors never unwind: a stage that records an
// error short-circuits the rest of its branch, and the walk jumps to the
// output stage, which converts the error into a marked failure message.
//
// The datetime shortcut set by the entry stage bypasses classify and the
// fan-out entirely.
//
// # Inputs
//
//   - state: the fresh turn state from the session façade. Must not be nil.
//
// # Outputs
//
//   - *ConversationState: the terminal state. Result is always non-empty.
func (g *RoutingGraph) Run(state *datatypes.ConversationState) *datatypes.ConversationState {
	cur := g.entry
	start := time.Now()
	trace := make([]string, 0, 6)

	for hops := 0; hops < g.maxHops; hops++ {
		fn, err := g.registry.Node(cur)
		if err != nil {
			// Unreachable after validation; treated as a stage failure.
			state = state.Derive(datatypes.StateUpdate{Err: err})
			cur = g.terminal
			continue
		}

		stageStart := time.Now()
		state = fn(state)
		trace = append(trace, string(cur))
		slog.Debug("stage complete",
			"node", string(cur),
			"duration_ms", time.Since(stageStart).Milliseconds(),
			"has_error", state.HasError(),
		)

		if cur == g.terminal {
			return state.Derive(datatypes.StateUpdate{
				Metadata: map[string]any{
					"stage_trace":   trace,
					"graph_time_ms": time.Since(start).Milliseconds(),
				},
			})
		}

		cur = g.next(cur, state)
	}

	// The hop bound only trips on a defective graph; fail the turn rather
	// than loop.
	state = state.Derive(datatypes.StateUpdate{
		Err: fmt.Errorf("graph: traversal exceeded %d hops", g.maxHops),
	})
	if fn, err := g.registry.Node(g.terminal); err == nil {
		state = fn(state)
	}
	return state
}

// next picks the node that follows cur for the given state.
func (g *RoutingGraph) next(cur NodeName, state *datatypes.ConversationState) NodeName {
	// Error short-circuit: the rest of the branch runs on nothing.
	if state.HasError() {
		return g.terminal
	}

	if cur == g.entry {
		if v, _ := state.GetScratch(ScratchDatetimeShortcut, false).(bool); v {
			return NodeDatetime
		}
	}

	if cur == g.conditional {
		// Files always win over classified intent.
		if len(state.ContextFiles()) > 0 {
			slog.Debug("routing override: attached files", "session_id", state.SessionID)
			return g.fileOverride
		}
		if target, ok := g.intentRoutes[state.Intent]; ok {
			return target
		}
		// Classifier produced something outside the enum; the output stage
		// reports it.
		return g.terminal
	}

	if next, ok := g.edges[cur]; ok {
		return next
	}
	return g.terminal
}
