package channels

import (
	"fmt"
	"sort"
	"strconv"

	"herald/internal/types"
)

// titleMaxRunes caps the generated title when a message has no subject.
const titleMaxRunes = 50

// productTag closes every footer line.
const productTag = "herald"

// messageTitle returns the display title: the subject when present,
// otherwise the leading slice of the body with a trailing ellipsis when
// truncated. Truncation counts runes so multi-byte text is never split.
func messageTitle(msg *types.Message) string {
	if msg.Subject != nil && *msg.Subject != "" {
		return *msg.Subject
	}

	runes := []rune(msg.Body)
	if len(runes) <= titleMaxRunes {
		return msg.Body
	}
	return string(runes[:titleMaxRunes]) + "..."
}

// fieldPair is one labeled field rendered by every adapter.
type fieldPair struct {
	Name  string
	Value string
}

// messageFields flattens sender identity and metadata into labeled fields.
// Sender name and email come first; metadata keys follow in sorted order so
// payloads are deterministic. Null metadata values are skipped.
func messageFields(msg *types.Message) []fieldPair {
	var fields []fieldPair

	if msg.SenderName != nil && *msg.SenderName != "" {
		fields = append(fields, fieldPair{Name: "From", Value: *msg.SenderName})
	}
	if msg.SenderEmail != nil && *msg.SenderEmail != "" {
		fields = append(fields, fieldPair{Name: "Email", Value: *msg.SenderEmail})
	}

	if len(msg.Metadata) == 0 {
		return fields
	}

	keys := make([]string, 0, len(msg.Metadata))
	for k := range msg.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := msg.Metadata[k]
		if v == nil {
			continue
		}
		fields = append(fields, fieldPair{Name: k, Value: fmt.Sprintf("%v", v)})
	}

	return fields
}

// footerText builds the footer line: the custom footer from the channel
// config when set, otherwise the caller's display name, always joined with
// the product tag.
func footerText(caller *types.CallerIdentity, cfg types.ChannelConfig) string {
	base := cfg.Footer
	if base == "" {
		base = caller.DisplayName
	}
	return base + " | " + productTag
}

// parseAccentColor converts a "#RRGGBB" accent into the decimal integer
// Discord expects. Empty or malformed values fall back.
func parseAccentColor(accent string, fallback int) int {
	if len(accent) != 7 || accent[0] != '#' {
		return fallback
	}
	v, err := strconv.ParseInt(accent[1:], 16, 32)
	if err != nil {
		return fallback
	}
	return int(v)
}

// truncateBody shortens a response body for error strings and ledger rows.
func truncateBody(body []byte) string {
	const maxLen = 200
	if len(body) > maxLen {
		return string(body[:maxLen]) + "..."
	}
	return string(body)
}
