// Copyright (C) 2025 Quay Market (engineering@quaymarket.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the assistant service.
//
// This file contains the intent and data-mode enumerations used by the
// classifier and the routing graph. The intent set is closed: the routing
// graph validates at startup that every intent has a branch, so adding a
// value here without a corresponding route is a construction-time error.
package datatypes

// Intent is the classified purpose of a user query.
//
// # Description
//
// Intent is drawn from a fixed, closed set. The classifier assigns exactly
// one intent per turn, before any tool stage runs. The routing graph's
// conditional fan-out must cover every value returned by AllIntents.
type Intent string

const (
	IntentGeneralChat     Intent = "general_chat"
	IntentTextGeneration  Intent = "text_generation"
	IntentImageGeneration Intent = "image_generation"
	IntentFactualSearch   Intent = "factual_search"
	IntentWebCrawling     Intent = "web_crawling"
	IntentCodeExecution   Intent = "code_execution"
	IntentDataAnalysis    Intent = "data_analysis"
	IntentFileRead        Intent = "file_read"
	IntentFileWrite       Intent = "file_write"
	IntentFileAnalysis    Intent = "file_analysis"
	IntentDatetime        Intent = "datetime"
)

// AllIntents returns every intent value in a stable order.
//
// The routing graph uses this list to verify its conditional map is
// exhaustive, and the transport adapter derives the welcome-frame
// capabilities from it.
func AllIntents() []Intent {
	return []Intent{
		IntentGeneralChat,
		IntentTextGeneration,
		IntentImageGeneration,
		IntentFactualSearch,
		IntentWebCrawling,
		IntentCodeExecution,
		IntentDataAnalysis,
		IntentFileRead,
		IntentFileWrite,
		IntentFileAnalysis,
		IntentDatetime,
	}
}

// Valid reports whether i is one of the fixed intent values.
func (i Intent) Valid() bool {
	switch i {
	case IntentGeneralChat, IntentTextGeneration, IntentImageGeneration,
		IntentFactualSearch, IntentWebCrawling, IntentCodeExecution,
		IntentDataAnalysis, IntentFileRead, IntentFileWrite,
		IntentFileAnalysis, IntentDatetime:
		return true
	}
	return false
}

// DataMode distinguishes queries answerable from static knowledge from
// queries that require a fresh lookup.
type DataMode string

const (
	// DataModeHistorical means the answer can come from trained knowledge
	// or the conversation itself.
	DataModeHistorical DataMode = "historical"

	// DataModeRealtime means the answer depends on current-world state
	// (news, leadership, prices, the clock).
	DataModeRealtime DataMode = "realtime"
)

// Valid reports whether m is a known data mode.
func (m DataMode) Valid() bool {
	return m == DataModeHistorical || m == DataModeRealtime
}
