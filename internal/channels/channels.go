// Package channels implements the outbound delivery adapters.
//
// Each adapter renders a ledger message into its platform's webhook JSON
// (Discord embeds, Slack Block Kit) and posts it to the caller's configured
// URL through a shared Sender enforcing SSRF protection and a per-channel
// circuit breaker. Adapters never return Go errors: every outcome, including
// transport failures, comes back as a SendResult so the orchestrator can
// finalize the ledger record either way.
package channels

import (
	"context"

	"herald/internal/types"
)

// Adapter renders and delivers one message to a single channel platform.
// Adding a channel means adding an implementation plus a registry entry;
// the orchestrator stays channel-agnostic.
type Adapter interface {
	// Name returns the channel this adapter serves.
	Name() types.ChannelType

	// Send renders msg for the platform and posts it to the webhook URL in
	// the caller's channel config. The message is already sanitized and
	// persisted as pending. Failures are data, not errors.
	Send(ctx context.Context, caller *types.CallerIdentity, msg *types.Message) *SendResult
}

// SendResult is the outcome of one delivery attempt.
type SendResult struct {
	// OK is true when the platform accepted the message.
	OK bool

	// StatusCode is the HTTP status of the webhook response, or zero when
	// the request never completed.
	StatusCode int

	// ResponseBody is the truncated response body, kept for the ledger's
	// delivery_response column.
	ResponseBody string

	// ErrorText describes the failure when OK is false. It carries the HTTP
	// status and response body, or the transport error message.
	ErrorText string
}
