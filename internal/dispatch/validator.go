package dispatch

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"unicode/utf8"

	"herald/internal/sanitize"
	"herald/internal/types"
)

// Length bounds for validated fields, counted in runes after sanitization.
const (
	bodyMinRunes    = 10
	bodyMaxRunes    = 2000
	subjectMaxRunes = 200
	nameMinRunes    = 2
	nameMaxRunes    = 100
)

// emailShape accepts conventional local@domain.tld addresses. Operands are
// lowercased by sanitize.Email before matching, so uppercase classes are
// unnecessary.
var emailShape = regexp.MustCompile(`^[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}$`)

// ValidatePayload sanitizes and validates an inbound request against the
// caller's provisioning. It returns a new request; the input is never
// mutated. Checks run in a fixed order and stop at the first failure, with
// channel membership checked last so callers get content feedback before
// channel feedback.
func ValidatePayload(caller *types.CallerIdentity, req *types.NotifyRequest) (*types.NotifyRequest, *types.AppError) {
	clean := req.Clone()

	// 1. Channel named.
	if clean.Channel == "" {
		return nil, types.NewValidationError(types.ErrCodeValidationMissingChannel, "channel", "channel is required")
	}

	// 2. Body present and within bounds once markup is stripped.
	clean.Body = sanitize.Text(clean.Body)
	if n := utf8.RuneCountInString(clean.Body); n < bodyMinRunes || n > bodyMaxRunes {
		return nil, types.NewValidationError(types.ErrCodeValidationBodyLength, "body",
			fmt.Sprintf("body must be between %d and %d characters after sanitization", bodyMinRunes, bodyMaxRunes))
	}

	// 3. Subject bounds. A subject that sanitizes to nothing is treated as
	// absent rather than rejected.
	if clean.Subject != nil {
		s := sanitize.Text(*clean.Subject)
		if s == "" {
			clean.Subject = nil
		} else if utf8.RuneCountInString(s) > subjectMaxRunes {
			return nil, types.NewValidationError(types.ErrCodeValidationSubjectLength, "subject",
				fmt.Sprintf("subject must be at most %d characters after sanitization", subjectMaxRunes))
		} else {
			clean.Subject = &s
		}
	}

	// 4. Sender display name bounds.
	if clean.Sender != nil && clean.Sender.Name != nil {
		n := sanitize.Text(*clean.Sender.Name)
		if c := utf8.RuneCountInString(n); c < nameMinRunes || c > nameMaxRunes {
			return nil, types.NewValidationError(types.ErrCodeValidationSenderName, "sender.name",
				fmt.Sprintf("sender.name must be between %d and %d characters after sanitization", nameMinRunes, nameMaxRunes))
		}
		clean.Sender.Name = &n
	}

	// 5. Sender email shape.
	if clean.Sender != nil && clean.Sender.Email != nil {
		e := sanitize.Email(*clean.Sender.Email)
		if !emailShape.MatchString(e) {
			return nil, types.NewValidationError(types.ErrCodeValidationSenderEmail, "sender.email",
				"sender.email is not a valid email address")
		}
		clean.Sender.Email = &e
	}
	if clean.Sender != nil && clean.Sender.Name == nil && clean.Sender.Email == nil {
		clean.Sender = nil
	}

	// 6. Metadata values are scalars. Nulls are dropped rather than rejected;
	// keys are visited in sorted order so a request with several bad values
	// always reports the same one.
	if len(clean.Metadata) > 0 {
		keys := make([]string, 0, len(clean.Metadata))
		for k := range clean.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v := clean.Metadata[k]
			if v == nil {
				delete(clean.Metadata, k)
				continue
			}
			if !scalarValue(v) {
				return nil, types.NewValidationError(types.ErrCodeValidationMetadataValue, "metadata."+k,
					fmt.Sprintf("metadata value %q must be a string, number, or boolean", k))
			}
		}
		if len(clean.Metadata) == 0 {
			clean.Metadata = nil
		}
	}

	// 7. Channel membership, last.
	if !caller.HasChannel(types.ChannelType(clean.Channel)) {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeChannelNotConfigured,
			fmt.Sprintf("channel %q is not configured for this caller", clean.Channel), nil,
			map[string]any{"channel": clean.Channel})
	}

	return clean, nil
}

// scalarValue reports whether v is a JSON scalar. Decoded JSON only produces
// string, bool, and float64, but requests built in code may carry native ints.
func scalarValue(v any) bool {
	switch v.(type) {
	case string, bool, float64, float32, int, int32, int64, json.Number:
		return true
	}
	return false
}
