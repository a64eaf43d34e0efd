package types

import (
	"time"
)

// Query limit bounds for ledger reads. Repositories clamp rather than
// reject so that sloppy clients still get a sane page.
const (
	DefaultQueryLimit = 50
	MaxQueryLimit     = 200
)

// Sender identifies who a notification is presented as coming from.
// Both fields are optional; when present they are sanitized before
// persistence and rendered as labeled fields by the channel adapters.
type Sender struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

// NotifyRequest is the inbound notification payload submitted by a caller.
//
// Validation does not use struct tags: the checks run in a fixed,
// caller-observable order (content before channel membership) with one
// specific error code per rule, which tag-based validation cannot express.
type NotifyRequest struct {
	Channel  string   `json:"channel"`
	Subject  *string  `json:"subject,omitempty"`
	Body     string   `json:"body"`
	Sender   *Sender  `json:"sender,omitempty"`
	Metadata Metadata `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the request. The payload validator returns a
// sanitized clone so the submitted value is never mutated.
func (r *NotifyRequest) Clone() *NotifyRequest {
	if r == nil {
		return nil
	}
	out := &NotifyRequest{
		Channel: r.Channel,
		Body:    r.Body,
	}
	if r.Subject != nil {
		s := *r.Subject
		out.Subject = &s
	}
	if r.Sender != nil {
		out.Sender = &Sender{}
		if r.Sender.Name != nil {
			n := *r.Sender.Name
			out.Sender.Name = &n
		}
		if r.Sender.Email != nil {
			e := *r.Sender.Email
			out.Sender.Email = &e
		}
	}
	if r.Metadata != nil {
		out.Metadata = make(Metadata, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// ChannelConfig holds the per-caller settings for one delivery channel.
// WebhookURL is required; the display fields fall back to channel defaults
// when empty. Username is honored by Discord and ignored by Slack.
type ChannelConfig struct {
	WebhookURL  string `yaml:"webhook_url" json:"webhook_url"`
	AccentColor string `yaml:"accent_color" json:"accent_color,omitempty"`
	Footer      string `yaml:"footer" json:"footer,omitempty"`
	Username    string `yaml:"username" json:"username,omitempty"`
}

// CallerIdentity is one registered machine caller: a shared secret plus the
// set of channels it may deliver to. RateLimit is requests per minute;
// zero means unlimited.
type CallerIdentity struct {
	ID          string                        `yaml:"id" json:"id"`
	DisplayName string                        `yaml:"display_name" json:"display_name"`
	Secret      SecretString                  `yaml:"secret" json:"-"`
	RateLimit   int                           `yaml:"rate_limit" json:"rate_limit"`
	Channels    map[ChannelType]ChannelConfig `yaml:"channels" json:"channels"`
}

// HasChannel reports whether the caller is provisioned for the named channel.
func (c *CallerIdentity) HasChannel(ch ChannelType) bool {
	_, ok := c.Channels[ch]
	return ok
}

// Message is one ledger record: an accepted notification and its delivery
// outcome. Body, subject and sender fields are stored post-sanitization.
// SentAt is set if and only if Status is sent.
type Message struct {
	ID       int64         `json:"id" db:"id"`
	CallerID string        `json:"caller_id" db:"caller_id"`
	Channel  ChannelType   `json:"channel" db:"channel"`
	Status   MessageStatus `json:"status" db:"status"`

	// Content (sanitized before Create)
	SenderName  *string  `json:"sender_name,omitempty" db:"sender_name"`
	SenderEmail *string  `json:"sender_email,omitempty" db:"sender_email"`
	Subject     *string  `json:"subject,omitempty" db:"subject"`
	Body        string   `json:"body" db:"body"`
	Metadata    Metadata `json:"metadata,omitempty" db:"metadata"`

	// Outcome
	DeliveryResponse *string `json:"delivery_response,omitempty" db:"delivery_response"`
	ErrorText        *string `json:"error_text,omitempty" db:"error_text"`

	SourceAddr *string    `json:"source_addr,omitempty" db:"source_addr"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	SentAt     *time.Time `json:"sent_at,omitempty" db:"sent_at"`
}

// MessageFilter selects ledger records for a query. Zero values mean
// "no constraint". Limit is clamped to MaxQueryLimit by the repository;
// zero gets DefaultQueryLimit.
type MessageFilter struct {
	CallerID string
	Status   MessageStatus
	Limit    int
	Offset   int
}

// CallerStats aggregates one caller's ledger activity by status.
type CallerStats struct {
	CallerID      string     `json:"caller_id" db:"caller_id"`
	Total         int64      `json:"total" db:"total"`
	Pending       int64      `json:"pending" db:"pending"`
	Sent          int64      `json:"sent" db:"sent"`
	Failed        int64      `json:"failed" db:"failed"`
	Spam          int64      `json:"spam" db:"spam"`
	LastCreatedAt *time.Time `json:"last_created_at,omitempty" db:"last_created_at"`
}

// LedgerStats is the full aggregate view: one row per caller that has ever
// dispatched, plus the grand total across all callers.
type LedgerStats struct {
	Callers []CallerStats `json:"callers"`
	Total   int64         `json:"total"`
}
