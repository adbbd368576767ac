// Copyright (C) 2025 Quay Market (engineering@quaymarket.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/quaymarket/quay/services/assistant/datatypes"
)

// ExecutionTimeout is the hard ceiling on sandboxed code execution. It is
// the only hard timeout in the system.
const ExecutionTimeout = 10 * time.Second

// Sandbox is the code execution collaborator contract.
//
// Callers must screen code with validation.ScreenCode before Execute; the
// sandbox itself only enforces the time ceiling.
type Sandbox interface {
	Execute(ctx context.Context, code string) (string, error)
}

// ProcessSandbox runs code in a short-lived interpreter subprocess.
type ProcessSandbox struct {
	interpreter string
	timeout     time.Duration
}

// NewProcessSandbox builds a sandbox around the given interpreter binary
// (e.g. "python3"). An empty interpreter defaults to python3.
func NewProcessSandbox(interpreter string) *ProcessSandbox {
	if interpreter == "" {
		interpreter = "python3"
	}
	return &ProcessSandbox{interpreter: interpreter, timeout: ExecutionTimeout}
}

// Execute implements the Sandbox interface.
//
// The subprocess is killed when the ceiling elapses; the returned error
// then matches datatypes.ErrExecutionTimeout.
func (s *ProcessSandbox) Execute(ctx context.Context, code string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.interpreter, "-c", code)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		slog.Warn("sandbox execution timed out", "elapsed_ms", elapsed.Milliseconds())
		return "", fmt.Errorf("execution exceeded %s: %w", s.timeout, datatypes.ErrExecutionTimeout)
	}
	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return "", fmt.Errorf("execution failed: %s", detail)
	}
	return stdout.String(), nil
}

var _ Sandbox = (*ProcessSandbox)(nil)
