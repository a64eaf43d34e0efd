package channels

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"herald/internal/config"
	"herald/internal/security"
	"herald/internal/types"
)

// maxResponseBodyRead limits how much of a webhook response body is read for
// validation, error messages, and the ledger's delivery_response column.
const maxResponseBodyRead = 4096

// Sender executes webhook POSTs. One instance is shared by every adapter:
// it owns the SSRF-safe HTTP client and a circuit breaker per channel, so a
// dead Discord endpoint cannot burn timeouts that Slack traffic pays for.
type Sender struct {
	client   *http.Client
	cfg      *config.WebhookConfig
	logger   *slog.Logger
	breakers map[types.ChannelType]*gobreaker.CircuitBreaker[*http.Response]
}

// NewSender creates a Sender whose HTTP client blocks private-range and
// metadata destinations. This is the production factory.
func NewSender(cfg *config.WebhookConfig, logger *slog.Logger) (*Sender, error) {
	client, err := security.NewSafeHTTPClient(cfg.Timeout, cfg.MaxRedirects)
	if err != nil {
		return nil, fmt.Errorf("channels: create http client: %w", err)
	}
	return NewSenderWithClient(cfg, client, logger), nil
}

// NewSenderWithClient creates a Sender around a caller-supplied HTTP client.
// Tests use this to reach loopback servers, which the SSRF transport blocks.
func NewSenderWithClient(cfg *config.WebhookConfig, client *http.Client, logger *slog.Logger) *Sender {
	s := &Sender{
		client:   client,
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[types.ChannelType]*gobreaker.CircuitBreaker[*http.Response], len(types.AllChannelTypes)),
	}

	for _, ch := range types.AllChannelTypes {
		s.breakers[ch] = gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
			Name:        "webhook-" + string(ch),
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
			IsSuccessful: func(err error) bool {
				return err == nil
			},
		})
	}

	return s
}

// Post delivers one JSON payload to url and interprets the response through
// validate. Exactly one attempt is made; failed deliveries are terminal and
// need an external re-submission.
//
// Only transport errors and 5xx responses count against the channel's
// breaker. A 4xx is a clean answer from the platform, not an outage.
func (s *Sender) Post(ctx context.Context, channel types.ChannelType, url string, payload []byte, validate func(statusCode int, body []byte) error) *SendResult {
	breaker, ok := s.breakers[channel]
	if !ok {
		return &SendResult{ErrorText: fmt.Sprintf("no breaker registered for channel %q", channel)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return &SendResult{ErrorText: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.cfg.UserAgent)

	resp, err := breaker.Execute(func() (*http.Response, error) {
		r, doErr := s.client.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		if r.StatusCode >= 500 {
			return r, fmt.Errorf("status %d", r.StatusCode)
		}
		return r, nil
	})

	if resp == nil {
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			s.logger.Warn("webhook delivery suspended",
				"channel", string(channel),
			)
			return &SendResult{ErrorText: fmt.Sprintf("%s deliveries suspended after repeated failures", channel)}
		case isSSRFError(err):
			s.logger.Error("webhook blocked by egress policy",
				"channel", string(channel),
				"error", err.Error(),
			)
			return &SendResult{ErrorText: fmt.Sprintf("request blocked: %v", err)}
		default:
			s.logger.Warn("webhook transport error",
				"channel", string(channel),
				"error", err.Error(),
			)
			return &SendResult{ErrorText: fmt.Sprintf("request failed: %v", err)}
		}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyRead))

	result := &SendResult{
		StatusCode:   resp.StatusCode,
		ResponseBody: truncateBody(body),
	}

	if vErr := validate(resp.StatusCode, body); vErr != nil {
		result.ErrorText = vErr.Error()
		s.logger.Warn("webhook delivery failed",
			"channel", string(channel),
			"status", resp.StatusCode,
			"error", result.ErrorText,
		)
		return result
	}

	result.OK = true
	s.logger.Info("webhook delivered",
		"channel", string(channel),
		"status", resp.StatusCode,
	)
	return result
}

// isSSRFError checks if an error came from the egress protection layer.
func isSSRFError(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, security.ErrSSRFBlocked) ||
		errors.Is(err, security.ErrSSRFDNSTimeout) ||
		errors.Is(err, security.ErrSSRFTooManyRedirects) ||
		errors.Is(err, security.ErrSSRFDNSFailed)
}
