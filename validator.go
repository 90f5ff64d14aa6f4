/*
Copyright 2025 Zipsea Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package zipsea

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ValidationFailure classifies why a downloaded pricing file was rejected.
type ValidationFailure string

const (
	// FailureEmpty: nothing usable in the transfer.
	FailureEmpty ValidationFailure = "empty"
	// FailureHTML: the origin answered with an error page instead of data.
	// Treated like a missing file, never as corruption.
	FailureHTML ValidationFailure = "html_response"
	// FailureMalformed: no JSON object structure present at all.
	FailureMalformed ValidationFailure = "malformed_structure"
	// FailureTruncated: brace imbalance, almost always a cut-off transfer.
	FailureTruncated ValidationFailure = "likely_truncated"
	// FailureUnparseable: structure looked right but no repair produced
	// parseable JSON.
	FailureUnparseable ValidationFailure = "parse_error"
)

// ValidationError is the value-typed outcome of a failed validation. It
// never escapes as a panic; every path through the validator returns it
// (or a cleaned document) as a value.
type ValidationError struct {
	Failure   ValidationFailure
	ContextID string
	Message   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (cruise %s)", e.Failure, e.Message, e.ContextID)
}

// IsNotFoundLike reports whether the failure should be bucketed with
// missing files rather than corrupted ones.
func (e *ValidationError) IsNotFoundLike() bool {
	return e.Failure == FailureHTML
}

var (
	bomPrefix          = "\ufeff"
	controlCharCleaner = strings.NewReplacer("\x00", "", "�", "")
	// Missing comma between a value terminator and the next key, e.g.
	// `"a": 1 "b": 2` or `...} "b": {...`.
	missingCommaPattern = regexp.MustCompile(`([0-9"\]}])(\s*\n\s*|[ \t]+)"`)
	// A stray unescaped quote splitting a word inside a string value,
	// e.g. `"7 Night "Western" Caribbean"` loses only the inner pair.
	strayQuotePattern = regexp.MustCompile(`([A-Za-z])"([A-Za-z])`)
)

// ValidatePricingJSON runs the downloaded bytes through a chain of
// narrowing filters and bounded repairs and returns the cleaned JSON
// document text. contextID (the cruise id) only decorates errors.
//
// The guarantee callers rely on: a cleaned result parses, parses to the
// same document the input would have (when the input was already valid),
// and unbalanced input is never "repaired" into something parseable.
func ValidatePricingJSON(raw []byte, contextID string) (string, *ValidationError) {
	if len(raw) == 0 {
		return "", &ValidationError{Failure: FailureEmpty, ContextID: contextID, Message: "empty file content"}
	}

	content := strings.TrimSpace(strings.TrimPrefix(string(raw), bomPrefix))
	if content == "" {
		return "", &ValidationError{Failure: FailureEmpty, ContextID: contextID, Message: "only whitespace in file"}
	}

	// Upstream serves its error pages with a 200-style transfer; they are
	// a missing file in disguise, not corrupt data.
	if strings.HasPrefix(content, "<") {
		return "", &ValidationError{Failure: FailureHTML, ContextID: contextID, Message: "html response instead of json"}
	}

	if !strings.HasPrefix(content, "{") || !strings.HasSuffix(content, "}") {
		start := strings.Index(content, "{")
		end := strings.LastIndex(content, "}")
		if start == -1 || end == -1 || end < start {
			return "", &ValidationError{Failure: FailureMalformed, ContextID: contextID, Message: "no json object found in content"}
		}
		content = content[start : end+1]
	}

	content = controlCharCleaner.Replace(content)

	if strings.Count(content, "{") != strings.Count(content, "}") {
		return "", &ValidationError{Failure: FailureTruncated, ContextID: contextID, Message: "unbalanced braces, file likely truncated"}
	}

	if parsesAsObject(content) {
		return content, nil
	}
	originalErr := parseError(content)

	// Bounded repairs, each independently testable, re-parsing after each.
	if repaired, ok := repairConcatenatedObjects(content); ok {
		content = repaired
		if parsesAsObject(content) {
			return content, nil
		}
	}
	if repaired, ok := repairPunctuation(content); ok {
		content = repaired
		if parsesAsObject(content) {
			return content, nil
		}
	}

	return "", &ValidationError{
		Failure:   FailureUnparseable,
		ContextID: contextID,
		Message:   fmt.Sprintf("unparseable after repairs: %v", originalErr),
	}
}

func parsesAsObject(content string) bool {
	var doc map[string]json.RawMessage
	return json.Unmarshal([]byte(content), &doc) == nil
}

func parseError(content string) error {
	var doc map[string]json.RawMessage
	return json.Unmarshal([]byte(content), &doc)
}

// repairConcatenatedObjects keeps only the first complete object of a
// payload like `{"a":1}{"b":2}`, a known supplier failure mode where two
// exports get appended to one file. Reports false when the content is not
// a concatenation.
func repairConcatenatedObjects(content string) (string, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(content); i++ {
		c := content[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					rest := strings.TrimSpace(content[i+1:])
					if strings.HasPrefix(rest, "{") {
						return content[:i+1], true
					}
					return "", false
				}
			}
		}
	}
	return "", false
}

// repairPunctuation applies the two targeted substitutions that recover
// the bulk of non-truncation corruption: a comma dropped between a value
// and the next key, and a stray unescaped quote inside a string value.
func repairPunctuation(content string) (string, bool) {
	repaired := missingCommaPattern.ReplaceAllString(content, `$1,$2"`)
	if repaired == content {
		repaired = strayQuotePattern.ReplaceAllString(content, `$1\"$2`)
	}
	if repaired == content {
		return "", false
	}
	return repaired, true
}
