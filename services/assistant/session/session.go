// Copyright (C) 2025 Quay Market (engineering@quaymarket.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session provides the conversational façade over the routing graph.
//
// A Session owns one conversation: its identity, its growing history, and
// the per-turn orchestration. Transports talk only to this package; the
// graph, stages, and collaborators stay behind it.
package session

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quaymarket/quay/services/assistant/datatypes"
	"github.com/quaymarket/quay/services/assistant/graph"
	"github.com/quaymarket/quay/services/assistant/observability"
)

// Session is one conversation bound to one client connection.
//
// # Description
//
// Session is the only entry point for processing turns. Process never
// returns an error and never panics outward; every outcome, including an
// internal failure, becomes a well-formed Envelope.
//
// # Invariants
//
//   - Each processed turn appends exactly two messages to history: the user
//     query and the assistant answer. Rejected turns (empty query) append
//     nothing.
//   - History is append-only between explicit Clear calls, bounded at
//     MaxHistoryMessages by dropping the oldest messages.
//
// # Thread Safety
//
// Safe for concurrent use. The transport serializes turns per connection,
// but history accessors may race with an in-flight turn; the mutex covers
// every history touch.
type Session struct {
	id     string
	userID string
	graph  *graph.RoutingGraph

	mu      sync.Mutex
	history []datatypes.Message
}

// New creates a session with a generated ID.
func New(userID string, g *graph.RoutingGraph) *Session {
	return &Session{
		id:     uuid.New().String(),
		userID: userID,
		graph:  g,
	}
}

// ID returns the session identifier, stable for the session's lifetime.
func (s *Session) ID() string {
	return s.id
}

// Process runs one conversational turn.
//
// # Description
//
// Process validates the query, snapshots the history into a fresh
// conversation state, walks the routing graph, appends the turn to
// history, and wraps the outcome in an Envelope. It is the total surface
// of the orchestrator: it never returns an error and never lets a panic
// escape.
//
// # Inputs
//
//   - query: the raw user message. Blank queries yield a validation
//     envelope without touching history.
//   - callerCtx: per-turn options from the transport (attached files,
//     debug flag, generation options). May be nil.
//
// # Outputs
//
//   - *datatypes.Envelope: never nil; Answer is always non-empty.
func (s *Session) Process(query string, callerCtx map[string]any) (env *datatypes.Envelope) {
	start := time.Now()
	env = datatypes.NewEnvelope(s.id)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("session turn panicked",
				"session_id", s.id, "panic", fmt.Sprintf("%v", r))
			env.Success = false
			env.Answer = "Sorry, something went wrong while processing your request."
			env.Metadata = map[string]any{"panic": fmt.Sprintf("%v", r)}
		}
		env.ProcessingTimeMs = time.Since(start).Milliseconds()
		observability.DefaultMetrics.RecordTurn(
			string(env.Intent), env.Success, time.Since(start).Seconds())
	}()

	if strings.TrimSpace(query) == "" {
		env.Success = false
		env.Answer = "Please enter a message."
		env.Metadata = map[string]any{"validation": "empty query"}
		return env
	}

	s.mu.Lock()
	history := make([]datatypes.Message, len(s.history))
	copy(history, s.history)
	s.mu.Unlock()

	state := datatypes.NewConversationState(query, s.userID, s.id, history, callerCtx)
	final := s.graph.Run(state)

	env.Success = !final.HasError()
	env.Answer = final.Result
	env.Intent = final.Intent
	env.DataMode = final.DataMode
	env.Artifacts = final.Artifacts
	env.Metadata = final.Metadata

	if degraded, _ := final.Metadata[datatypes.ClassificationDegradedKey].(bool); degraded {
		observability.DefaultMetrics.RecordClassifierFallback()
	}

	userMsg := datatypes.NewMessage("user", query)
	assistantMsg := datatypes.NewMessage("assistant", env.Answer)
	assistantMsg.Metadata = map[string]any{
		"intent":      string(env.Intent),
		"data_mode":   string(env.DataMode),
		"response_id": env.ResponseID,
		"success":     env.Success,
	}

	s.mu.Lock()
	s.history = append(s.history, userMsg, assistantMsg)
	if over := len(s.history) - datatypes.MaxHistoryMessages; over > 0 {
		s.history = append([]datatypes.Message(nil), s.history[over:]...)
	}
	s.mu.Unlock()

	return env
}

// History returns a snapshot of the conversation so far. Never nil.
func (s *Session) History() []datatypes.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]datatypes.Message, len(s.history))
	copy(out, s.history)
	return out
}

// Clear drops the conversation history. The session ID is unchanged.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}
