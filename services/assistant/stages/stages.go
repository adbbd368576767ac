// Copyright (C) 2025 Quay Market (engineering@quaymarket.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stages implements the routing graph's nodes.
//
// Every stage follows the node contract: take a state, return a derived
// state, never let a failure escape. Tool-backed stages talk to their
// collaborators through the interfaces in the tools package, so tests run
// them against fakes.
package stages

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/quaymarket/quay/services/assistant/classify"
	"github.com/quaymarket/quay/services/assistant/datatypes"
	"github.com/quaymarket/quay/services/assistant/graph"
	"github.com/quaymarket/quay/services/assistant/tools"
	"github.com/quaymarket/quay/services/llm"
)

// Scratch keys written by stages.
const (
	ScratchSearchResults = "search_results"
	ScratchGeneratedCode = "generated_code"
	ScratchCrawlReport   = "crawl_report"
	ScratchExecOutput    = "exec_output"
)

// stageTimeout bounds any single collaborator call. The code sandbox has
// its own tighter ceiling.
const stageTimeout = 60 * time.Second

// Deps are the collaborators injected into the stage set.
//
// One instance per process, constructed at startup and shared read-only by
// every session (the collaborators are themselves safe for concurrent use).
type Deps struct {
	LLM        llm.Client
	Classifier *classify.Classifier
	Search     tools.SearchClient
	Crawler    *tools.Crawler
	Files      tools.FileStore
	Sandbox    tools.Sandbox

	// Clock is injectable for tests; defaults to time.Now.
	Clock func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now()
}

// =============================================================================
// Registry and Graph Wiring
// =============================================================================

// NewRegistry builds the closed node table for the stage set.
func NewRegistry(deps *Deps) *graph.Registry {
	return graph.NewRegistry(map[graph.NodeName]graph.Node{
		graph.NodeEntry:        deps.entryStage,
		graph.NodeClassify:     deps.classifyStage,
		graph.NodeChat:         deps.chatStage,
		graph.NodeTextGen:      deps.textGenStage,
		graph.NodeImageGen:     deps.imageGenStage,
		graph.NodeSearch:       deps.searchStage,
		graph.NodeCrawl:        deps.crawlStage,
		graph.NodeCodeGen:      deps.codeGenStage,
		graph.NodeCodeExec:     deps.codeExecStage,
		graph.NodeDataAnalysis: deps.dataAnalysisStage,
		graph.NodeFileRead:     deps.fileReadStage,
		graph.NodeFileWrite:    deps.fileWriteStage,
		graph.NodeFileAnalysis: deps.fileAnalysisStage,
		graph.NodeDatetime:     deps.datetimeStage,
		graph.NodeOutput:       deps.outputStage,
	})
}

// NewRoutingGraph wires the full graph over the stage set: the fixed entry
// chain, the per-intent branches, and the single convergence on output.
func NewRoutingGraph(deps *Deps) (*graph.RoutingGraph, error) {
	return graph.New(graph.Config{
		Registry: NewRegistry(deps),
		Entry:    graph.NodeEntry,
		Edges: map[graph.NodeName]graph.NodeName{
			graph.NodeEntry:        graph.NodeClassify,
			graph.NodeChat:         graph.NodeOutput,
			graph.NodeTextGen:      graph.NodeOutput,
			graph.NodeImageGen:     graph.NodeOutput,
			graph.NodeSearch:       graph.NodeOutput,
			graph.NodeCrawl:        graph.NodeOutput,
			graph.NodeCodeGen:      graph.NodeCodeExec,
			graph.NodeCodeExec:     graph.NodeOutput,
			graph.NodeDataAnalysis: graph.NodeOutput,
			graph.NodeFileRead:     graph.NodeOutput,
			graph.NodeFileWrite:    graph.NodeOutput,
			graph.NodeFileAnalysis: graph.NodeOutput,
			graph.NodeDatetime:     graph.NodeOutput,
		},
		Conditional: graph.NodeClassify,
		IntentRoutes: map[datatypes.Intent]graph.NodeName{
			datatypes.IntentGeneralChat:     graph.NodeChat,
			datatypes.IntentTextGeneration:  graph.NodeTextGen,
			datatypes.IntentImageGeneration: graph.NodeImageGen,
			datatypes.IntentFactualSearch:   graph.NodeSearch,
			datatypes.IntentWebCrawling:     graph.NodeCrawl,
			datatypes.IntentCodeExecution:   graph.NodeCodeGen,
			datatypes.IntentDataAnalysis:    graph.NodeDataAnalysis,
			datatypes.IntentFileRead:        graph.NodeFileRead,
			datatypes.IntentFileWrite:       graph.NodeFileWrite,
			datatypes.IntentFileAnalysis:    graph.NodeFileAnalysis,
			datatypes.IntentDatetime:        graph.NodeDatetime,
		},
		FileOverride: graph.NodeFileAnalysis,
		Terminal:     graph.NodeOutput,
	})
}

// =============================================================================
// Entry Stage
// =============================================================================

// unambiguousClockPattern matches queries that are a clock/date question
// and nothing else; those bypass the classifier entirely.
var unambiguousClockPattern = regexp.MustCompile(`(?i)^\s*(what('s| is) the (time|date)|what time is it|what day is (it|today)|current time|today'?s date)\s*\??\s*$`)

// entryStage stamps the turn start time and checks the datetime shortcut.
func (d *Deps) entryStage(state *datatypes.ConversationState) *datatypes.ConversationState {
	next := state.Derive(datatypes.StateUpdate{})
	next.Timestamp = d.now()

	if unambiguousClockPattern.MatchString(state.Query) {
		return next.Derive(datatypes.StateUpdate{
			Scratch: map[string]any{graph.ScratchDatetimeShortcut: true},
		})
	}
	return next
}

// =============================================================================
// Classify Stage
// =============================================================================

// classifyStage assigns intent and data mode exactly once per turn.
func (d *Deps) classifyStage(state *datatypes.ConversationState) *datatypes.ConversationState {
	ctx, cancel := context.WithTimeout(context.Background(), stageTimeout)
	defer cancel()

	verdict := d.Classifier.Classify(ctx, state.Query)

	meta := map[string]any{
		"confidence": verdict.Confidence,
		"reasoning":  verdict.Reasoning,
		"classifier": "provider",
	}
	if verdict.Degraded {
		meta["classifier"] = "fallback"
		meta[datatypes.ClassificationDegradedKey] = true
	}

	return state.Derive(datatypes.StateUpdate{
		Intent:   verdict.Intent,
		DataMode: verdict.DataMode,
		Metadata: meta,
	})
}

// =============================================================================
// Conversational Stages
// =============================================================================

// chatStage answers general conversation from the bounded history window.
func (d *Deps) chatStage(state *datatypes.ConversationState) *datatypes.ConversationState {
	ctx, cancel := context.WithTimeout(context.Background(), stageTimeout)
	defer cancel()

	messages := append(state.RecentMessages(datatypes.ProviderHistoryWindow),
		datatypes.Message{Role: "user", Content: state.Query})

	answer, err := d.LLM.Chat(ctx, messages, llm.GenerationParams{})
	if err != nil {
		return state.Derive(datatypes.StateUpdate{
			Err: datatypes.NewCollaboratorError("chat", err),
		})
	}
	return state.Derive(datatypes.StateUpdate{Result: answer})
}

// textGenStage produces requested prose (stories, emails, listings).
func (d *Deps) textGenStage(state *datatypes.ConversationState) *datatypes.ConversationState {
	ctx, cancel := context.WithTimeout(context.Background(), stageTimeout)
	defer cancel()

	messages := append(state.RecentMessages(datatypes.ProviderHistoryWindow),
		datatypes.Message{
			Role:    "user",
			Content: "Write the following. Produce only the requested text.\n\n" + state.Query,
		})

	answer, err := d.LLM.Chat(ctx, messages, llm.GenerationParams{})
	if err != nil {
		return state.Derive(datatypes.StateUpdate{
			Err: datatypes.NewCollaboratorError("text generation", err),
		})
	}
	return state.Derive(datatypes.StateUpdate{Result: answer})
}

// dataAnalysisStage reasons over data the user supplied in the query or in
// prior turns. It is provider-backed: the structured table artifact, when
// present, is included in the prompt.
func (d *Deps) dataAnalysisStage(state *datatypes.ConversationState) *datatypes.ConversationState {
	ctx, cancel := context.WithTimeout(context.Background(), stageTimeout)
	defer cancel()

	prompt := "Analyze the following request and any data it references. Show the key figures behind your conclusions.\n\n" + state.Query
	if table, ok := state.Artifacts["table"]; ok {
		prompt += fmt.Sprintf("\n\nData:\n%v", table)
	}

	messages := append(state.RecentMessages(datatypes.ProviderHistoryWindow),
		datatypes.Message{Role: "user", Content: prompt})

	answer, err := d.LLM.Chat(ctx, messages, llm.GenerationParams{})
	if err != nil {
		return state.Derive(datatypes.StateUpdate{
			Err: datatypes.NewCollaboratorError("data analysis", err),
		})
	}
	return state.Derive(datatypes.StateUpdate{Result: answer})
}

// =============================================================================
// Datetime Stage
// =============================================================================

// datetimeStage is a pure function of the clock; no collaborator involved.
func (d *Deps) datetimeStage(state *datatypes.ConversationState) *datatypes.ConversationState {
	now := d.now()
	q := strings.ToLower(state.Query)

	var answer string
	switch {
	case strings.Contains(q, "date") || strings.Contains(q, "day"):
		answer = fmt.Sprintf("Today is %s.", now.Format("Monday, January 2, 2006"))
	case strings.Contains(q, "time"):
		answer = fmt.Sprintf("It is currently %s.", now.Format("3:04 PM MST"))
	default:
		answer = fmt.Sprintf("It is %s on %s.",
			now.Format("3:04 PM MST"), now.Format("Monday, January 2, 2006"))
	}

	return state.Derive(datatypes.StateUpdate{Result: answer})
}
