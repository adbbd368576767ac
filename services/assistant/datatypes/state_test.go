// Copyright (C) 2025 Quay Market (engineering@quaymarket.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"errors"
	"testing"
)

func TestNewConversationState_SnapshotsHistory(t *testing.T) {
	history := []Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi"},
	}

	state := NewConversationState("next question", "u1", "s1", history, nil)

	history[0].Content = "mutated"
	if state.History[0].Content != "hello" {
		t.Errorf("state history aliases caller slice: got %q", state.History[0].Content)
	}
	if state.Scratch == nil || state.Artifacts == nil || state.Metadata == nil {
		t.Error("maps must be initialized, not nil")
	}
}

func TestConversationState_Derive_DoesNotMutateParent(t *testing.T) {
	parent := NewConversationState("q", "u1", "s1", nil, nil)
	parent.Scratch["existing"] = "old"

	child := parent.Derive(StateUpdate{
		Intent:  IntentFactualSearch,
		Scratch: map[string]any{"new": "value"},
	})

	if parent.Intent != "" {
		t.Errorf("parent intent mutated: %q", parent.Intent)
	}
	if _, ok := parent.Scratch["new"]; ok {
		t.Error("parent scratch gained child's key")
	}
	if child.Intent != IntentFactualSearch {
		t.Errorf("child intent = %q, want %q", child.Intent, IntentFactualSearch)
	}
	if child.Scratch["existing"] != "old" {
		t.Error("child lost parent's scratch entry")
	}
}

func TestConversationState_Derive_AppendMessage(t *testing.T) {
	parent := NewConversationState("q", "u1", "s1",
		[]Message{{Role: "user", Content: "first"}}, nil)

	msg := Message{Role: "assistant", Content: "second"}
	child := parent.Derive(StateUpdate{AppendMessage: &msg})

	if len(parent.History) != 1 {
		t.Errorf("parent history grew: %d", len(parent.History))
	}
	if len(child.History) != 2 {
		t.Fatalf("child history = %d messages, want 2", len(child.History))
	}
	if child.History[1].Content != "second" {
		t.Errorf("appended content = %q", child.History[1].Content)
	}
}

func TestConversationState_Derive_ErrorLifecycle(t *testing.T) {
	parent := NewConversationState("q", "u1", "s1", nil, nil)

	failed := parent.Derive(StateUpdate{Err: errors.New("boom")})
	if !failed.HasError() {
		t.Fatal("expected carried error")
	}

	replaced := failed.Derive(StateUpdate{Err: errors.New("later")})
	if replaced.Err.Error() != "later" {
		t.Errorf("later error should replace earlier: got %v", replaced.Err)
	}

	cleared := failed.Derive(StateUpdate{ClearError: true})
	if cleared.HasError() {
		t.Error("ClearError should drop the carried error")
	}
	if !failed.HasError() {
		t.Error("clearing on the child must not touch the parent")
	}
}

func TestConversationState_RecentMessages(t *testing.T) {
	history := []Message{
		{Role: "user", Content: "1"},
		{Role: "assistant", Content: "2"},
		{Role: "user", Content: "3"},
	}
	state := NewConversationState("q", "u1", "s1", history, nil)

	recent := state.RecentMessages(2)
	if len(recent) != 2 {
		t.Fatalf("got %d messages, want 2", len(recent))
	}
	if recent[0].Content != "2" || recent[1].Content != "3" {
		t.Errorf("wrong window: %v", recent)
	}

	all := state.RecentMessages(10)
	if len(all) != 3 {
		t.Errorf("window larger than history should return all: got %d", len(all))
	}

	none := state.RecentMessages(0)
	if none == nil || len(none) != 0 {
		t.Errorf("zero window should return empty non-nil slice, got %v", none)
	}
}

func TestConversationState_ContextFiles_Shapes(t *testing.T) {
	// Internal shape: []FileAttachment.
	typed := NewConversationState("q", "u", "s", nil, map[string]any{
		"files": []FileAttachment{{Name: "a.txt", Content: "x"}},
	})
	if got := typed.ContextFiles(); len(got) != 1 || got[0].Name != "a.txt" {
		t.Errorf("typed shape: got %v", got)
	}

	// Decoded-JSON shape: []any of maps.
	decoded := NewConversationState("q", "u", "s", nil, map[string]any{
		"files": []any{
			map[string]any{"name": "b.csv", "content": "1,2"},
			map[string]any{},
			"not a map",
		},
	})
	if got := decoded.ContextFiles(); len(got) != 1 || got[0].Name != "b.csv" {
		t.Errorf("decoded shape: got %v", got)
	}

	// Absent.
	empty := NewConversationState("q", "u", "s", nil, nil)
	if got := empty.ContextFiles(); got != nil {
		t.Errorf("absent files should be nil, got %v", got)
	}
}

func TestConversationState_GetScratch(t *testing.T) {
	state := NewConversationState("q", "u", "s", nil, nil)
	state.Scratch["key"] = "value"

	if got := state.GetScratch("key", "def"); got != "value" {
		t.Errorf("got %v", got)
	}
	if got := state.GetScratch("missing", "def"); got != "def" {
		t.Errorf("default not returned: %v", got)
	}
	if got := state.GetScratchString("key"); got != "value" {
		t.Errorf("got %q", got)
	}
	state.Scratch["num"] = 42
	if got := state.GetScratchString("num"); got != "" {
		t.Errorf("non-string scratch should yield empty, got %q", got)
	}
}
