package types

import "log/slog"

// redactedPlaceholder is the string used to replace secret values in logs and serialization.
const redactedPlaceholder = "***REDACTED***"

// redactedJSON is the pre-computed JSON encoding of the redacted placeholder.
var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString holds a caller secret without leaking it. It overrides
// String(), MarshalJSON() and LogValue() to return a redacted placeholder,
// so secrets never reach fmt output, JSON serialization, or slog records.
//
// Use Unmask() to retrieve the raw plaintext value where it is genuinely
// needed (the credential index comparison path).
type SecretString string

// String returns a redacted placeholder instead of the raw value.
// This is invoked by fmt.Sprintf, fmt.Println, and any other function
// that uses the fmt.Stringer interface.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON returns the redacted placeholder as a JSON string.
// This prevents secret values from being included in JSON-serialized
// config dumps or API responses.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// LogValue implements slog.LogValuer so a SecretString passed directly as a
// log attribute is redacted regardless of handler.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue(redactedPlaceholder)
}

// Unmask returns the raw plaintext value of the secret.
// Usage should be strictly audited and limited to the comparison path in
// the credential index and registry load-time uniqueness checks.
func (s SecretString) Unmask() string {
	return string(s)
}
