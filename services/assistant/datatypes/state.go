// Copyright (C) 2025 Quay Market (engineering@quaymarket.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the assistant service.
//
// This file contains the conversation state threaded through the routing
// graph. For transport frame types see frames.go; for the response envelope
// see envelope.go.
package datatypes

import (
	"time"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a single message content.
	// Oversized inbound messages are rejected at the transport boundary.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// MaxHistoryMessages is the ceiling on retained conversation history.
	// The session drops the oldest messages beyond it.
	MaxHistoryMessages = 100

	// ProviderHistoryWindow is the number of most-recent messages handed to
	// generative providers as conversation context.
	ProviderHistoryWindow = 8
)

// =============================================================================
// Message
// =============================================================================

// Message is a single conversation message.
//
// # Description
//
// Messages are created when a user query arrives or a tool stage finishes.
// They are owned by the session's history and are never deleted individually,
// only bulk-cleared on an explicit clear operation.
//
// # Fields
//
//   - Role: "user", "assistant", or "system"
//   - Content: message text (max 32KB inbound)
//   - Timestamp: Unix milliseconds (UTC) at creation time
//   - Metadata: optional diagnostics (intent, confidence, timings)
type Message struct {
	Role      string         `json:"role" validate:"required,oneof=user assistant system"`
	Content   string         `json:"content" validate:"maxbytes"`
	Timestamp int64          `json:"timestamp,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewMessage creates a Message with the current timestamp.
func NewMessage(role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	}
}

// =============================================================================
// Conversation State
// =============================================================================

// ConversationState is the value threaded through the routing graph.
//
// # Description
//
// ConversationState carries one turn's worth of pipeline data: the query,
// the classified intent and data mode, the growing chat history, scratch
// values written by tool stages, produced artifacts, and at most one error.
//
// # Invariants
//
//   - State is never mutated in place. Every stage derives a new value via
//     Derive; the previous value stays valid for its caller.
//   - History only grows within one state lineage.
//   - At most one error is carried at a time; a later writer replaces an
//     earlier one.
//   - Intent and DataMode are set exactly once, by the classify stage,
//     before any tool stage runs.
//
// # Thread Safety
//
// A ConversationState is owned by a single graph invocation and is not
// shared across goroutines. Derive performs shallow copies of the maps and
// slices it overrides, so sibling states never alias written entries.
type ConversationState struct {
	// Query is the raw user query for this turn.
	Query string

	// UserID identifies the user; empty for anonymous connections.
	UserID string

	// SessionID is stable for the lifetime of the owning connection.
	SessionID string

	// History is the ordered, append-only conversation so far.
	History []Message

	// Timestamp is set by the entry stage when the turn starts.
	Timestamp time.Time

	// Intent is assigned by the classify stage.
	Intent Intent

	// DataMode is assigned by the classify stage.
	DataMode DataMode

	// Result is the textual outcome produced by a tool stage and finalized
	// by the output stage.
	Result string

	// Scratch holds intermediate values keyed by stage-chosen names
	// (raw search hits, generated code, crawl reports).
	Scratch map[string]any

	// Context holds caller-supplied options (attached files, debug flag,
	// generation options).
	Context map[string]any

	// Artifacts holds produced side outputs (image URLs, raw markdown,
	// structured tables).
	Artifacts map[string]any

	// Err is the single carried error, nil when the turn is healthy.
	Err error

	// Metadata holds diagnostics: classifier confidence and reasoning,
	// stage timings, degrade markers.
	Metadata map[string]any
}

// StateUpdate describes the fields Derive overrides on a new state.
//
// Zero-valued fields leave the previous value in place, with two explicit
// escape hatches: AppendMessage adds to history, and ClearError drops a
// carried error for flows that have already surfaced it.
type StateUpdate struct {
	Intent        Intent
	DataMode      DataMode
	Result        string
	Err           error
	ClearError    bool
	AppendMessage *Message
	Scratch       map[string]any
	Artifacts     map[string]any
	Metadata      map[string]any
}

// NewConversationState builds the state for one turn.
//
// The history slice is snapshotted: the state gets its own backing array so
// later appends by the session cannot alias the in-flight turn.
func NewConversationState(query, userID, sessionID string, history []Message, callerCtx map[string]any) *ConversationState {
	h := make([]Message, len(history))
	copy(h, history)

	ctx := make(map[string]any, len(callerCtx))
	for k, v := range callerCtx {
		ctx[k] = v
	}

	return &ConversationState{
		Query:     query,
		UserID:    userID,
		SessionID: sessionID,
		History:   h,
		Scratch:   map[string]any{},
		Context:   ctx,
		Artifacts: map[string]any{},
		Metadata:  map[string]any{},
	}
}

// Derive returns a new state with the given updates applied.
//
// # Description
//
// Derive is the only way stages produce output: copy the previous state,
// overlay the update, return the copy. Maps are copied before merge so the
// parent state's maps are never written. History is append-only; Derive can
// add at most one message per call.
//
// # Inputs
//
//   - u: fields to override. A zero StateUpdate yields a plain copy.
//
// # Outputs
//
//   - *ConversationState: the derived state. Never nil, never the receiver.
func (s *ConversationState) Derive(u StateUpdate) *ConversationState {
	next := *s

	next.Scratch = mergeMap(s.Scratch, u.Scratch)
	next.Artifacts = mergeMap(s.Artifacts, u.Artifacts)
	next.Metadata = mergeMap(s.Metadata, u.Metadata)

	if u.Intent != "" {
		next.Intent = u.Intent
	}
	if u.DataMode != "" {
		next.DataMode = u.DataMode
	}
	if u.Result != "" {
		next.Result = u.Result
	}
	if u.Err != nil {
		next.Err = u.Err
	}
	if u.ClearError {
		next.Err = nil
	}

	if u.AppendMessage != nil {
		// Fresh backing array: appends on the parent must not leak here.
		h := make([]Message, len(s.History), len(s.History)+1)
		copy(h, s.History)
		next.History = append(h, *u.AppendMessage)
	}

	return &next
}

// HasError reports whether the state carries an error.
func (s *ConversationState) HasError() bool {
	return s.Err != nil
}

// RecentMessages returns the last n messages, most recent last.
//
// Used to build the bounded provider context window. Returns the whole
// history when it holds fewer than n messages; never nil.
func (s *ConversationState) RecentMessages(n int) []Message {
	if n <= 0 || len(s.History) == 0 {
		return []Message{}
	}
	start := len(s.History) - n
	if start < 0 {
		start = 0
	}
	out := make([]Message, len(s.History)-start)
	copy(out, s.History[start:])
	return out
}

// GetScratch returns the scratch value for key, or def when absent.
func (s *ConversationState) GetScratch(key string, def any) any {
	if v, ok := s.Scratch[key]; ok {
		return v
	}
	return def
}

// GetScratchString returns the scratch value for key as a string, or ""
// when absent or not a string.
func (s *ConversationState) GetScratchString(key string) string {
	v, _ := s.Scratch[key].(string)
	return v
}

// ContextFiles returns the attached files from the caller context, if any.
//
// Files arrive either as []FileAttachment (internal callers) or as
// []any of map payloads (decoded JSON frames); both shapes are handled.
func (s *ConversationState) ContextFiles() []FileAttachment {
	raw, ok := s.Context["files"]
	if !ok || raw == nil {
		return nil
	}
	switch v := raw.(type) {
	case []FileAttachment:
		return v
	case []any:
		files := make([]FileAttachment, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			f := FileAttachment{}
			f.Name, _ = m["name"].(string)
			f.Path, _ = m["path"].(string)
			f.Content, _ = m["content"].(string)
			if f.Name != "" || f.Path != "" || f.Content != "" {
				files = append(files, f)
			}
		}
		return files
	}
	return nil
}

// DebugEnabled reports whether the caller requested diagnostic output.
func (s *ConversationState) DebugEnabled() bool {
	v, _ := s.Context["debug"].(bool)
	return v
}

// mergeMap copies base and overlays updates. The result never aliases base.
func mergeMap(base, updates map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(updates))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range updates {
		out[k] = v
	}
	return out
}
