package types

// MessageStatus enumerates the lifecycle states of a ledger record.
// These values MUST match the CHECK constraint on the messages table.
//
// A record is created as pending and transitions exactly once to one of the
// terminal states. Nothing ever transitions out of a terminal state.
type MessageStatus string

const (
	MessageStatusPending MessageStatus = "pending"
	MessageStatusSent    MessageStatus = "sent"
	MessageStatusFailed  MessageStatus = "failed"
	MessageStatusSpam    MessageStatus = "spam"
)

// AllMessageStatuses lists every valid status, used by query-param validation.
var AllMessageStatuses = []MessageStatus{
	MessageStatusPending,
	MessageStatusSent,
	MessageStatusFailed,
	MessageStatusSpam,
}

// IsValid reports whether s is a known status value.
func (s MessageStatus) IsValid() bool {
	switch s {
	case MessageStatusPending, MessageStatusSent, MessageStatusFailed, MessageStatusSpam:
		return true
	}
	return false
}

// IsTerminal reports whether s is a final state.
func (s MessageStatus) IsTerminal() bool {
	return s == MessageStatusSent || s == MessageStatusFailed || s == MessageStatusSpam
}

// ChannelType identifies a notification delivery channel.
type ChannelType string

const (
	ChannelDiscord ChannelType = "discord"
	ChannelSlack   ChannelType = "slack"
)

// AllChannelTypes lists every supported channel, used by registry
// construction and caller-registry validation.
var AllChannelTypes = []ChannelType{
	ChannelDiscord,
	ChannelSlack,
}

// IsValid reports whether c is a supported channel type.
func (c ChannelType) IsValid() bool {
	switch c {
	case ChannelDiscord, ChannelSlack:
		return true
	}
	return false
}
