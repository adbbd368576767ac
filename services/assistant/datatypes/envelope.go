// Copyright (C) 2025 Quay Market (engineering@quaymarket.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// Envelope is the structured result the session façade hands the transport.
//
// # Description
//
// Every Process call returns exactly one Envelope, success or failure. The
// transport adapter serializes it into message/response_metadata frames (or
// an error frame). Envelopes always carry a generated ResponseID and
// timestamp for correlation, and ProcessingTimeMs for latency diagnostics.
//
// # Fields
//
//   - Success: false when the turn failed (validation, collaborator outage,
//     sandbox violation). The Answer is still a user-presentable message.
//   - Answer: non-empty textual result in all cases.
//   - Intent/DataMode: the classified routing decision, when one was made.
//   - Artifacts: side outputs (image URLs, crawl markdown, tables).
//   - Metadata: diagnostics (confidence, reasoning, stage trace, degrade
//     markers).
type Envelope struct {
	ResponseID       string         `json:"response_id"`
	SessionID        string         `json:"session_id"`
	Timestamp        int64          `json:"timestamp"`
	Success          bool           `json:"success"`
	Answer           string         `json:"answer"`
	Intent           Intent         `json:"intent,omitempty"`
	DataMode         DataMode       `json:"data_mode,omitempty"`
	Artifacts        map[string]any `json:"artifacts,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
}

// NewEnvelope creates an envelope with generated ID and timestamp.
func NewEnvelope(sessionID string) *Envelope {
	return &Envelope{
		ResponseID: generateUUID(),
		SessionID:  sessionID,
		Timestamp:  time.Now().UnixMilli(),
	}
}
