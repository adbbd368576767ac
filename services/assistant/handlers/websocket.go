// Copyright (C) 2025 Quay Market (engineering@quaymarket.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers contains the HTTP and WebSocket handlers for the
// assistant service.
//
// The WebSocket handler is a pure transport adapter: it decodes frames,
// dispatches to the session façade, and encodes the results. No routing or
// conversation logic lives here.
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/semaphore"

	"github.com/quaymarket/quay/services/assistant/datatypes"
	"github.com/quaymarket/quay/services/assistant/graph"
	"github.com/quaymarket/quay/services/assistant/middleware"
	"github.com/quaymarket/quay/services/assistant/observability"
	"github.com/quaymarket/quay/services/assistant/session"
)

// maxConcurrentTurns bounds in-flight graph walks across all connections.
// Each connection still processes its own turns strictly in order.
const maxConcurrentTurns = 32

// turnSlots is the process-wide worker pool for turn processing.
var turnSlots = semaphore.NewWeighted(maxConcurrentTurns)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024 * 1024,
	WriteBufferSize: 1024 * 1024,
}

// sendJSON writes a frame, logging write failures at warn level.
func sendJSON(ws *websocket.Conn, v any) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("failed to write WebSocket frame", "error", err)
	}
	return err
}

// capabilities lists the supported intents for the welcome frame.
func capabilities() []string {
	intents := datatypes.AllIntents()
	out := make([]string, len(intents))
	for i, intent := range intents {
		out[i] = string(intent)
	}
	return out
}

// HandleAssistantWebSocket upgrades the connection and runs the frame loop.
//
// # Description
//
// Each connection gets its own Session with a generated ID, announced in a
// welcome frame together with the capability list. The loop then reads
// frames until the client disconnects:
//
//   - chat / file_message: run one turn through the session, reply with a
//     message frame followed by a response_metadata frame (and a
//     file_metadata frame for file turns)
//   - ping: answered inline with pong, no session involvement
//   - chat_history: reply with the session's history
//   - clear_history: drop history, acknowledge
//
// Malformed or unknown frames produce an error frame; the connection
// stays open. Only a read failure ends the loop.
//
// # Inputs
//
//   - g: the validated routing graph, shared by all connections.
//
// # Outputs
//
//   - gin.HandlerFunc: the WebSocket endpoint handler.
func HandleAssistantWebSocket(g *graph.RoutingGraph) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()

		observability.DefaultMetrics.ConnectionOpened()
		defer observability.DefaultMetrics.ConnectionClosed()

		sess := session.New(middleware.UserID(c), g)
		slog.Info("websocket session started", "session_id", sess.ID())

		if err := sendJSON(ws, datatypes.WelcomeFrame{
			Type:         datatypes.FrameWelcome,
			SessionID:    sess.ID(),
			Capabilities: capabilities(),
		}); err != nil {
			return
		}

		for {
			var frame datatypes.InboundFrame
			if err := ws.ReadJSON(&frame); err != nil {
				slog.Info("websocket client disconnected",
					"session_id", sess.ID(), "error", err.Error())
				return
			}

			if err := frame.Validate(); err != nil {
				if sendJSON(ws, datatypes.NewErrorFrame(sess.ID(),
					"invalid frame: "+err.Error())) != nil {
					return
				}
				continue
			}

			observability.DefaultMetrics.RecordFrame(frame.Type)

			switch frame.Type {
			case datatypes.FramePing:
				if sendJSON(ws, datatypes.PongFrame{
					Type:      datatypes.FramePong,
					Timestamp: time.Now().UnixMilli(),
				}) != nil {
					return
				}

			case datatypes.FrameChatHistory:
				if sendJSON(ws, datatypes.HistoryFrame{
					Type:      datatypes.FrameChatHistory,
					History:   sess.History(),
					SessionID: sess.ID(),
				}) != nil {
					return
				}

			case datatypes.FrameClearHistory:
				sess.Clear()
				if sendJSON(ws, datatypes.HistoryClearedFrame{
					Type:      datatypes.FrameHistoryCleared,
					SessionID: sess.ID(),
					Timestamp: time.Now().UnixMilli(),
				}) != nil {
					return
				}

			case datatypes.FrameChat, datatypes.FrameFileMessage:
				if !runTurn(c, ws, sess, &frame) {
					return
				}

			default:
				if sendJSON(ws, datatypes.NewErrorFrame(sess.ID(),
					"unsupported frame type: "+frame.Type)) != nil {
					return
				}
			}
		}
	}
}

// runTurn processes one chat or file_message frame. Returns false when the
// connection should close (write failure).
func runTurn(c *gin.Context, ws *websocket.Conn, sess *session.Session,
	frame *datatypes.InboundFrame) bool {

	callerCtx := make(map[string]any, len(frame.Context)+1)
	for k, v := range frame.Context {
		callerCtx[k] = v
	}
	// Attached files override intent routing regardless of frame type, so a
	// chat frame carrying files takes the file-analysis branch too.
	if len(frame.Files) > 0 {
		callerCtx["files"] = frame.Files
	}

	if frame.Echo {
		if sendJSON(ws, datatypes.MessageFrame{
			Type:      datatypes.FrameUserMessage,
			Message:   frame.Message,
			Role:      "user",
			Timestamp: time.Now().UnixMilli(),
			SessionID: sess.ID(),
		}) != nil {
			return false
		}
	}

	if err := turnSlots.Acquire(c.Request.Context(), 1); err != nil {
		return sendJSON(ws, datatypes.NewErrorFrame(sess.ID(),
			"server is shutting down")) == nil
	}

	// The graph walk runs off the read loop; the result channel keeps
	// delivery in order because we block on it before the next read.
	resCh := make(chan *datatypes.Envelope, 1)
	go func() {
		defer turnSlots.Release(1)
		resCh <- sess.Process(frame.Message, callerCtx)
	}()
	env := <-resCh

	if sendJSON(ws, datatypes.MessageFrame{
		Type:      datatypes.FrameMessage,
		Message:   env.Answer,
		Role:      "assistant",
		Timestamp: env.Timestamp,
		SessionID: sess.ID(),
	}) != nil {
		return false
	}

	meta := make(map[string]any, len(env.Metadata)+5)
	for k, v := range env.Metadata {
		meta[k] = v
	}
	meta["response_id"] = env.ResponseID
	meta["success"] = env.Success
	meta["intent"] = string(env.Intent)
	meta["data_mode"] = string(env.DataMode)
	meta["processing_time_ms"] = env.ProcessingTimeMs

	if sendJSON(ws, datatypes.ResponseMetadataFrame{
		Type:      datatypes.FrameResponseMetadata,
		Metadata:  meta,
		SessionID: sess.ID(),
	}) != nil {
		return false
	}

	if len(frame.Files) > 0 {
		names := make([]string, 0, len(frame.Files))
		for _, f := range frame.Files {
			name := f.Name
			if name == "" {
				name = f.Path
			}
			names = append(names, name)
		}
		if sendJSON(ws, datatypes.FileMetadataFrame{
			Type:      datatypes.FrameFileMetadata,
			Files:     names,
			SessionID: sess.ID(),
		}) != nil {
			return false
		}
	}

	return true
}
