package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All handlers MUST use these constants instead of hardcoded strings.
const (
	// Auth (401/403)
	ErrCodeAuthSecretMissing    ErrorCode = "auth_secret_missing"
	ErrCodeAuthSecretInvalid    ErrorCode = "auth_secret_invalid"
	ErrCodeAuthAdminNotAllowed  ErrorCode = "auth_admin_not_allowed"
	ErrCodeAuthCallerNotAllowed ErrorCode = "auth_caller_not_allowed"

	// Throttling (429)
	ErrCodeRateLimited ErrorCode = "rate_limited"

	// Validation (400)
	ErrCodeValidationInvalidJSON    ErrorCode = "validation_invalid_json"
	ErrCodeValidationMissingChannel ErrorCode = "validation_missing_channel"
	ErrCodeValidationBodyLength     ErrorCode = "validation_body_length"
	ErrCodeValidationSubjectLength  ErrorCode = "validation_subject_length"
	ErrCodeValidationSenderName     ErrorCode = "validation_sender_name"
	ErrCodeValidationSenderEmail    ErrorCode = "validation_sender_email"
	ErrCodeValidationMetadataValue  ErrorCode = "validation_metadata_value"
	ErrCodeValidationQueryParam     ErrorCode = "validation_query_param"

	// Channel screening (422)
	ErrCodeChannelNotConfigured ErrorCode = "channel_not_configured"
	ErrCodeSpamRejected         ErrorCode = "spam_rejected"

	// Delivery (502)
	ErrCodeChannelDeliveryFailed ErrorCode = "channel_delivery_failed"

	// Not Found (404)
	ErrCodeNotFoundMessage ErrorCode = "not_found_message"

	// Conflict (409)
	ErrCodeConflictStatusFinal ErrorCode = "conflict_status_final"

	// Internal (500)
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalConfig     ErrorCode = "internal_config_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Used by the API layer to translate AppErrors into HTTP responses.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case s == string(ErrCodeAuthAdminNotAllowed),
		s == string(ErrCodeAuthCallerNotAllowed):
		return http.StatusForbidden // 403
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized // 401
	case s == string(ErrCodeRateLimited):
		return http.StatusTooManyRequests // 429
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case s == string(ErrCodeChannelNotConfigured),
		s == string(ErrCodeSpamRejected):
		return http.StatusUnprocessableEntity // 422
	case s == string(ErrCodeChannelDeliveryFailed):
		return http.StatusBadGateway // 502
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict // 409
	case strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// AppError is the standard application error type used throughout the service.
// All domain and handler errors should be expressed as AppError to enable
// consistent error formatting, HTTP status mapping, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
// This is useful for adding context without mutating the original error.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error. This is the standard constructor for domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with the given code, message,
// underlying error, and structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// NewValidationError creates an AppError for a failed payload check, naming
// the offending field in details so callers can fix the request.
func NewValidationError(code ErrorCode, field, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: map[string]any{"field": field},
	}
}

// NewInternalError wraps an unexpected failure with a generic caller-visible
// message. The underlying error is preserved for server-side logging but is
// never serialized into a response.
func NewInternalError(code ErrorCode, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: "an internal error occurred",
		Err:     err,
	}
}
