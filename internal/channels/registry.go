package channels

import (
	"herald/internal/types"
)

// Registry maps channel types to their adapters. It is built once at
// startup and read-only afterwards.
type Registry struct {
	adapters map[types.ChannelType]Adapter
}

// NewRegistry creates a Registry with every built-in adapter wired to the
// given sender.
func NewRegistry(sender *Sender) *Registry {
	r := &Registry{
		adapters: make(map[types.ChannelType]Adapter),
	}

	r.Register(NewDiscordAdapter(sender))
	r.Register(NewSlackAdapter(sender))

	return r
}

// Register adds or replaces the adapter for its channel.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Name()] = a
}

// Get returns the adapter for the channel, or nil when the channel has no
// adapter registered.
func (r *Registry) Get(ch types.ChannelType) Adapter {
	return r.adapters[ch]
}
