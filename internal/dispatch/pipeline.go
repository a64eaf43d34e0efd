// Package dispatch runs an inbound notification through its full lifecycle:
// authentication, throttling, validation, spam screening, persistence,
// delivery, and finalization. The pipeline owns the stage order and the
// error mapping; the stages themselves live in their own packages.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"herald/internal/auth"
	"herald/internal/channels"
	"herald/internal/spam"
	"herald/internal/types"
)

// Inbound is one dispatch attempt as received by the transport layer:
// the presented secret, the network source, and the decoded payload.
type Inbound struct {
	Secret     string
	SourceAddr string
	Request    *types.NotifyRequest
}

// Receipt reports an accepted dispatch back to the caller.
type Receipt struct {
	MessageID int64               `json:"message_id"`
	Status    types.MessageStatus `json:"status"`
}

// Pipeline coordinates the dispatch stages. It is stateless across calls
// and safe for concurrent use.
type Pipeline struct {
	index           *auth.Index
	registry        *channels.Registry
	ledger          types.MessageLedger
	deliveryTimeout time.Duration
	logger          *slog.Logger
}

// NewPipeline wires the dispatch stages together. deliveryTimeout bounds a
// single adapter delivery; zero disables the per-delivery deadline and
// leaves only the sender's own HTTP timeout.
func NewPipeline(index *auth.Index, registry *channels.Registry, ledger types.MessageLedger, deliveryTimeout time.Duration, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		index:           index,
		registry:        registry,
		ledger:          ledger,
		deliveryTimeout: deliveryTimeout,
		logger:          logger,
	}
}

// Dispatch runs one notification through every stage and returns a receipt
// for delivered messages. Rejections before the create stage leave no
// ledger record; spam and delivery failures are recorded before the error
// is returned, and those errors carry the ledger id in their details.
func (p *Pipeline) Dispatch(ctx context.Context, in *Inbound) (*Receipt, error) {
	// Authenticate. The admin secret observes the ledger but never writes
	// to it.
	res, err := p.index.Resolve(in.Secret)
	if err != nil {
		return nil, err
	}
	if res.IsAdmin() {
		return nil, types.NewAppError(types.ErrCodeAuthAdminNotAllowed,
			"the admin identity cannot dispatch notifications", nil)
	}
	caller := res.Caller

	// Throttle before doing any per-request work.
	if lim := p.index.Limiter(caller.ID); lim != nil && !lim.Allow() {
		p.logger.Warn("dispatch throttled", "caller_id", caller.ID)
		return nil, types.NewAppError(types.ErrCodeRateLimited,
			"rate limit exceeded, retry later", nil)
	}

	// Validate and sanitize. Failures here persist nothing.
	clean, vErr := ValidatePayload(caller, in.Request)
	if vErr != nil {
		return nil, vErr
	}

	msg := buildMessage(caller, clean, in.SourceAddr)

	// Screen the sanitized body. Spam is refused but still recorded, so the
	// audit trail shows what was attempted.
	if v := spam.Classify(clean.Body); v.Spam {
		if err := p.ledger.Create(ctx, msg); err != nil {
			p.logger.Error("ledger create failed", "caller_id", caller.ID, "error", err)
			return nil, types.NewInternalError(types.ErrCodeInternalDB, err)
		}
		if err := p.ledger.Finalize(ctx, msg.ID, types.MessageStatusSpam, "", "spam: "+v.Category); err != nil {
			p.logger.Error("ledger finalize failed", "message_id", msg.ID, "error", err)
			return nil, types.NewInternalError(types.ErrCodeInternalDB, err)
		}
		p.logger.Warn("message rejected as spam",
			"caller_id", caller.ID,
			"message_id", msg.ID,
			"category", v.Category,
			"pattern", v.Pattern,
		)
		return nil, types.NewAppErrorWithDetails(types.ErrCodeSpamRejected,
			"message content was classified as spam", nil,
			map[string]any{"message_id": msg.ID, "category": v.Category})
	}

	// Persist as pending before any delivery attempt.
	if err := p.ledger.Create(ctx, msg); err != nil {
		p.logger.Error("ledger create failed", "caller_id", caller.ID, "error", err)
		return nil, types.NewInternalError(types.ErrCodeInternalDB, err)
	}

	// Deliver. The validator already proved channel membership, so a
	// registry miss means an adapter was never registered for a provisioned
	// channel.
	adapter := p.registry.Get(msg.Channel)
	if adapter == nil {
		errText := fmt.Sprintf("no adapter registered for channel %s", msg.Channel)
		if ferr := p.ledger.Finalize(ctx, msg.ID, types.MessageStatusFailed, "", errText); ferr != nil {
			p.logger.Error("ledger finalize failed", "message_id", msg.ID, "error", ferr)
		}
		return nil, types.NewAppErrorWithDetails(types.ErrCodeChannelNotConfigured,
			fmt.Sprintf("channel %q has no delivery adapter", msg.Channel), nil,
			map[string]any{"message_id": msg.ID})
	}

	sendCtx := ctx
	if p.deliveryTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, p.deliveryTimeout)
		defer cancel()
	}
	result := adapter.Send(sendCtx, caller, msg)

	// Finalize with the delivery outcome.
	if !result.OK {
		if err := p.ledger.Finalize(ctx, msg.ID, types.MessageStatusFailed, "", result.ErrorText); err != nil {
			p.logger.Error("ledger finalize failed", "message_id", msg.ID, "error", err)
			return nil, types.NewInternalError(types.ErrCodeInternalDB, err)
		}
		p.logger.Error("delivery failed",
			"caller_id", caller.ID,
			"message_id", msg.ID,
			"channel", msg.Channel,
			"status_code", result.StatusCode,
			"error_text", result.ErrorText,
		)
		return nil, types.NewAppErrorWithDetails(types.ErrCodeChannelDeliveryFailed,
			fmt.Sprintf("delivery to %s failed", msg.Channel), nil,
			map[string]any{"message_id": msg.ID})
	}

	resp := result.ResponseBody
	if resp == "" {
		resp = fmt.Sprintf("status %d", result.StatusCode)
	}
	if err := p.ledger.Finalize(ctx, msg.ID, types.MessageStatusSent, resp, ""); err != nil {
		// The webhook accepted the message, so the caller is told it went
		// out; the stuck pending record is an operator problem.
		p.logger.Error("ledger finalize failed after successful delivery, record remains pending",
			"message_id", msg.ID,
			"channel", msg.Channel,
			"error", err,
		)
	}

	p.logger.Info("message dispatched",
		"caller_id", caller.ID,
		"message_id", msg.ID,
		"channel", msg.Channel,
		"status_code", result.StatusCode,
	)
	return &Receipt{MessageID: msg.ID, Status: types.MessageStatusSent}, nil
}

// buildMessage maps a validated request onto a ledger record for the caller.
func buildMessage(caller *types.CallerIdentity, req *types.NotifyRequest, sourceAddr string) *types.Message {
	m := &types.Message{
		CallerID: caller.ID,
		Channel:  types.ChannelType(req.Channel),
		Subject:  req.Subject,
		Body:     req.Body,
		Metadata: req.Metadata,
	}
	if req.Sender != nil {
		m.SenderName = req.Sender.Name
		m.SenderEmail = req.Sender.Email
	}
	if sourceAddr != "" {
		m.SourceAddr = &sourceAddr
	}
	return m
}
