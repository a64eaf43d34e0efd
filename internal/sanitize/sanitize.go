// Package sanitize normalizes caller-supplied notification content before it
// is validated, classified, persisted, or rendered into channel payloads.
// All functions are pure and safe for concurrent use.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	// tagSpan matches one markup tag with no nested brackets. Removing the
	// innermost spans first means each pass can expose new tags
	// ("<<b>script>" loses "<b>" and becomes "<script>"), which is why
	// Text loops to a fixed point instead of stripping once.
	tagSpan = regexp.MustCompile(`<[^<>]*>`)

	// protocolPrefix matches script-capable URL scheme prefixes wherever
	// they appear, not just at the start of a value.
	protocolPrefix = regexp.MustCompile(`(?i)(?:javascript|data|vbscript)\s*:`)

	// eventHandler matches inline handler assignments such as
	// onclick="..." / onerror='...' / onload=bare-value.
	eventHandler = regexp.MustCompile(`(?i)\bon\w+\s*=\s*(?:"[^"]*"|'[^']*'|[^\s]*)`)

	// horizontalSpace matches runs of whitespace excluding newlines, so
	// collapsing keeps the caller's line structure intact.
	horizontalSpace = regexp.MustCompile(`[^\S\n]+`)
)

// Text strips markup and scripting residue from free-form content:
//
//  1. Remove <...> tag spans repeatedly until a pass changes nothing, then
//     drop any stray angle brackets left behind by malformed markup.
//  2. Remove javascript:, data:, and vbscript: protocol prefixes.
//  3. Remove on<word>= event handler assignments.
//  4. Collapse runs of spaces and tabs into single spaces, preserving
//     newlines, and trim leading/trailing whitespace.
//
// Non-ASCII content (accents, non-Latin scripts) passes through untouched.
// Empty input returns the empty string.
func Text(s string) string {
	if s == "" {
		return ""
	}

	// Step 1: fixed-point tag removal. Terminates because every effective
	// pass strictly shortens the string.
	for {
		stripped := tagSpan.ReplaceAllString(s, "")
		if stripped == s {
			break
		}
		s = stripped
	}
	s = strings.ReplaceAll(s, "<", "")
	s = strings.ReplaceAll(s, ">", "")

	// Step 2: scheme prefixes.
	s = protocolPrefix.ReplaceAllString(s, "")

	// Step 3: inline event handlers.
	s = eventHandler.ReplaceAllString(s, "")

	// Step 4: whitespace normalization.
	s = horizontalSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Email normalizes an email address for storage and comparison: trimmed and
// lowercased, nothing else. Shape validation is the payload validator's job.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
