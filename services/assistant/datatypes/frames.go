// Copyright (C) 2025 Quay Market (engineering@quaymarket.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the assistant service.
//
// This file contains the WebSocket frame types. Every frame is a JSON object
// with a "type" discriminator; inbound frames are validated with
// go-playground/validator before dispatch.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Frame Type Discriminators
// =============================================================================

// Inbound frame types.
const (
	FrameChat         = "chat"
	FrameFileMessage  = "file_message"
	FramePing         = "ping"
	FrameChatHistory  = "chat_history"
	FrameClearHistory = "clear_history"
)

// Outbound frame types.
const (
	FrameWelcome          = "welcome"
	FrameUserMessage      = "user_message"
	FrameMessage          = "message"
	FrameResponseMetadata = "response_metadata"
	FrameFileMetadata     = "file_metadata"
	FrameHistoryCleared   = "history_cleared"
	FramePong             = "pong"
	FrameError            = "error"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// frameValidate is the validator instance for frame datatypes.
// Initialized in init() with custom validators.
var frameValidate *validator.Validate

func init() {
	frameValidate = validator.New()
	_ = frameValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes enforces the 32KB content ceiling. Byte length, not rune
// count, so oversized multi-byte payloads cannot slip under the limit.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

// =============================================================================
// Inbound Frames
// =============================================================================

// InboundFrame is the decoded form of any client frame.
//
// # Description
//
// One struct covers all inbound types; which fields matter depends on Type.
// The transport adapter decodes into this struct, calls Validate, and
// dispatches on Type. Unknown types produce an error frame, not a
// disconnect.
//
// # Fields
//
//   - Type: required discriminator ("chat", "file_message", "ping",
//     "chat_history", "clear_history")
//   - Message: the user query; required for "chat", optional for
//     "file_message"
//   - Files: attached files; required for "file_message", allowed on "chat"
//   - Context: caller-supplied options (debug flag, generation options)
//   - Echo: when true, the adapter echoes the user message back before the
//     assistant reply
type InboundFrame struct {
	Type    string           `json:"type" validate:"required,oneof=chat file_message ping chat_history clear_history"`
	Message string           `json:"message,omitempty" validate:"maxbytes"`
	Files   []FileAttachment `json:"files,omitempty" validate:"required_if=Type file_message,dive"`
	Context map[string]any   `json:"context,omitempty"`
	Echo    bool             `json:"echo,omitempty"`
}

// Validate checks the frame's structural constraints.
func (f *InboundFrame) Validate() error {
	return frameValidate.Struct(f)
}

// FileAttachment is one file carried by a chat or file_message frame.
//
// Either Path (sandbox-relative) or inline Content is provided. Inline
// content is bounded like message content.
type FileAttachment struct {
	Name    string `json:"name,omitempty"`
	Path    string `json:"path,omitempty"`
	Content string `json:"content,omitempty" validate:"maxbytes"`
}

// =============================================================================
// Outbound Frames
// =============================================================================

// WelcomeFrame is sent exactly once, immediately after a successful connect.
type WelcomeFrame struct {
	Type         string   `json:"type"`
	SessionID    string   `json:"session_id"`
	Capabilities []string `json:"capabilities"`
}

// MessageFrame carries one chat message (assistant reply or user echo).
type MessageFrame struct {
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Role      string         `json:"role"`
	Timestamp int64          `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	SessionID string         `json:"session_id"`
}

// ResponseMetadataFrame carries turn diagnostics after a message frame.
type ResponseMetadataFrame struct {
	Type      string         `json:"type"`
	Metadata  map[string]any `json:"metadata"`
	SessionID string         `json:"session_id"`
}

// FileMetadataFrame reports the files a file_message turn operated on.
type FileMetadataFrame struct {
	Type      string   `json:"type"`
	Files     []string `json:"files"`
	SessionID string   `json:"session_id"`
}

// HistoryFrame carries the session's full history on request.
type HistoryFrame struct {
	Type      string    `json:"type"`
	History   []Message `json:"history"`
	SessionID string    `json:"session_id"`
}

// HistoryClearedFrame acknowledges a clear_history request.
type HistoryClearedFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Timestamp int64  `json:"timestamp"`
}

// PongFrame answers a ping without touching the graph or history.
type PongFrame struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorFrame reports a processing failure while keeping the connection open.
type ErrorFrame struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
	SessionID string `json:"session_id"`
}

// NewErrorFrame builds an error frame with the current timestamp.
func NewErrorFrame(sessionID, message string) ErrorFrame {
	return ErrorFrame{
		Type:      FrameError,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
		SessionID: sessionID,
	}
}

// generateUUID returns a new UUID v4 string.
func generateUUID() string {
	return uuid.New().String()
}
