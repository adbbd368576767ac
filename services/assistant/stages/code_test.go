// Copyright (C) 2025 Quay Market (engineering@quaymarket.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stages

import (
	"errors"
	"testing"

	"github.com/quaymarket/quay/services/assistant/datatypes"
)

func TestCodeGenStage_CallerSuppliedCode(t *testing.T) {
	client := &fakeLLM{}
	d := testDeps(client)

	out := d.codeGenStage(newState("run this", map[string]any{
		"code": "print(40 + 2)",
	}))

	if got := out.GetScratchString(ScratchGeneratedCode); got != "print(40 + 2)" {
		t.Errorf("staged code = %q", got)
	}
	if out.Metadata["code_source"] != "caller" {
		t.Errorf("code_source = %v", out.Metadata["code_source"])
	}
	if len(client.gotPrompts) != 0 {
		t.Error("provider must not be called when the caller supplies code")
	}
}

func TestCodeGenStage_ProviderCode(t *testing.T) {
	client := &fakeLLM{generateFn: func(prompt string) (string, error) {
		return "```python\nprint(2**10)\n```", nil
	}}
	d := testDeps(client)

	out := d.codeGenStage(newState("compute 2 to the 10th", nil))

	if got := out.GetScratchString(ScratchGeneratedCode); got != "print(2**10)" {
		t.Errorf("fences not stripped: %q", got)
	}
	if out.Metadata["code_source"] != "provider" {
		t.Errorf("code_source = %v", out.Metadata["code_source"])
	}
}

func TestCodeGenStage_EmptyProviderOutput(t *testing.T) {
	client := &fakeLLM{generateFn: func(prompt string) (string, error) {
		return "```\n```", nil
	}}
	d := testDeps(client)

	out := d.codeGenStage(newState("compute something", nil))

	if !errors.Is(out.Err, datatypes.ErrCollaborator) {
		t.Errorf("expected collaborator error, got %v", out.Err)
	}
}

func TestCodeExecStage_DenyListBlocksBeforeSandbox(t *testing.T) {
	sandbox := &fakeSandbox{}
	d := testDeps(&fakeLLM{})
	d.Sandbox = sandbox

	state := newState("run it", nil)
	state.Scratch[ScratchGeneratedCode] = "import os\nos.system('ls')"

	out := d.codeExecStage(state)

	if !errors.Is(out.Err, datatypes.ErrSandboxViolation) {
		t.Errorf("expected sandbox violation, got %v", out.Err)
	}
	if sandbox.called {
		t.Error("sandbox must never start for denied code")
	}
	if _, ok := out.Metadata["denied_pattern"]; !ok {
		t.Error("denied pattern missing from metadata")
	}
}

func TestCodeExecStage_NoStagedCode(t *testing.T) {
	d := testDeps(&fakeLLM{})

	out := d.codeExecStage(newState("run it", nil))

	if !errors.Is(out.Err, datatypes.ErrValidation) {
		t.Errorf("expected validation error, got %v", out.Err)
	}
}

func TestCodeExecStage_Output(t *testing.T) {
	sandbox := &fakeSandbox{out: "42\n"}
	d := testDeps(&fakeLLM{})
	d.Sandbox = sandbox

	state := newState("run it", nil)
	state.Scratch[ScratchGeneratedCode] = "print(42)"

	out := d.codeExecStage(state)

	if out.Result != "Execution output:\n42" {
		t.Errorf("result = %q", out.Result)
	}
	if sandbox.gotCode != "print(42)" {
		t.Errorf("sandbox got %q", sandbox.gotCode)
	}
}

func TestCodeExecStage_EmptyOutput(t *testing.T) {
	d := testDeps(&fakeLLM{})
	d.Sandbox = &fakeSandbox{out: "   \n"}

	state := newState("run it", nil)
	state.Scratch[ScratchGeneratedCode] = "x = 1"

	out := d.codeExecStage(state)

	if out.Result != "The code ran successfully but produced no output." {
		t.Errorf("result = %q", out.Result)
	}
}

func TestCodeExecStage_SandboxFailure(t *testing.T) {
	d := testDeps(&fakeLLM{})
	d.Sandbox = &fakeSandbox{err: errors.New("interpreter missing")}

	state := newState("run it", nil)
	state.Scratch[ScratchGeneratedCode] = "print(1)"

	out := d.codeExecStage(state)

	if !errors.Is(out.Err, datatypes.ErrCollaborator) {
		t.Errorf("expected collaborator error, got %v", out.Err)
	}
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"print(1)", "print(1)"},
		{"```python\nprint(1)\n```", "print(1)"},
		{"```\nprint(1)\n```", "print(1)"},
		{"  ```python\nx = 2\nprint(x)\n```  ", "x = 2\nprint(x)"},
	}
	for _, tt := range tests {
		if got := stripCodeFences(tt.in); got != tt.want {
			t.Errorf("stripCodeFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
