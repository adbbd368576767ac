// Copyright (C) 2025 Quay Market (engineering@quaymarket.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestCollaboratorError_MatchesSentinelAndCause(t *testing.T) {
	cause := context.DeadlineExceeded
	err := NewCollaboratorError("search", fmt.Errorf("call: %w", cause))

	if !errors.Is(err, ErrCollaborator) {
		t.Error("collaborator errors must match the class sentinel")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("the original cause must stay reachable through the wrap")
	}

	var collab *CollaboratorError
	if !errors.As(err, &collab) || collab.Tool != "search" {
		t.Errorf("errors.As failed to recover the tool name: %v", err)
	}
}

func TestCollaboratorError_Message(t *testing.T) {
	err := NewCollaboratorError("crawl", errors.New("connection refused"))
	if !strings.Contains(err.Error(), "crawl") ||
		!strings.Contains(err.Error(), "connection refused") {
		t.Errorf("message = %q", err.Error())
	}
}

func TestCollaboratorError_DoesNotMatchOtherClasses(t *testing.T) {
	err := NewCollaboratorError("search", errors.New("quota"))
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrSandboxViolation) {
		t.Error("collaborator errors must not match unrelated classes")
	}
}
