// Copyright (C) 2025 Quay Market (engineering@quaymarket.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validation

import (
	"fmt"
	"regexp"
)

// deniedCodePatterns matches constructs that must never reach the code
// sandbox: dynamic import, raw filesystem and network primitives, eval-class
// execution, and process spawning. A hit fails the screen; the sandbox
// process is never started.
var deniedCodePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b__import__\s*\(`),
	regexp.MustCompile(`\bimportlib\b`),
	regexp.MustCompile(`\beval\s*\(`),
	regexp.MustCompile(`\bexec\s*\(`),
	regexp.MustCompile(`\bcompile\s*\(`),
	regexp.MustCompile(`\bopen\s*\(`),
	regexp.MustCompile(`\bimport\s+os\b`),
	regexp.MustCompile(`\bimport\s+sys\b`),
	regexp.MustCompile(`\bimport\s+subprocess\b`),
	regexp.MustCompile(`\bimport\s+socket\b`),
	regexp.MustCompile(`\bimport\s+shutil\b`),
	regexp.MustCompile(`\bimport\s+ctypes\b`),
	regexp.MustCompile(`\bfrom\s+os\b`),
	regexp.MustCompile(`\bfrom\s+subprocess\b`),
	regexp.MustCompile(`\bfrom\s+socket\b`),
	regexp.MustCompile(`\bos\.system\b`),
	regexp.MustCompile(`\bglobals\s*\(\s*\)`),
	regexp.MustCompile(`\bsetattr\s*\(`),
	regexp.MustCompile(`\bgetattr\s*\(\s*__`),
}

// ScreenCode checks generated code against the deny-list.
//
// Returns nil when no denied construct is present, or an error naming the
// first pattern that matched. Callers must run this before handing code to
// the sandbox; on error nothing is executed.
//
// Example:
//
//	if err := validation.ScreenCode(code); err != nil {
//	    return fmt.Errorf("denied code pattern: %w", err)
//	}
//	out, err := sandbox.Execute(ctx, code)
func ScreenCode(code string) error {
	for _, pat := range deniedCodePatterns {
		if loc := pat.FindString(code); loc != "" {
			return fmt.Errorf("denied construct %q", loc)
		}
	}
	return nil
}
