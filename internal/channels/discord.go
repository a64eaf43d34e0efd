package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"herald/internal/types"
)

// discordDefaultColor is the embed accent used when the caller's channel
// config has none (Discord blurple).
const discordDefaultColor = 0x5865F2

// DiscordAdapter renders messages as Discord webhook embeds.
type DiscordAdapter struct {
	sender *Sender
}

// NewDiscordAdapter creates the Discord adapter backed by the shared sender.
func NewDiscordAdapter(sender *Sender) *DiscordAdapter {
	return &DiscordAdapter{sender: sender}
}

// Name returns the channel identifier.
func (a *DiscordAdapter) Name() types.ChannelType {
	return types.ChannelDiscord
}

// Send renders the message as a single embed and posts it to the caller's
// Discord webhook.
func (a *DiscordAdapter) Send(ctx context.Context, caller *types.CallerIdentity, msg *types.Message) *SendResult {
	cfg, ok := caller.Channels[types.ChannelDiscord]
	if !ok {
		return &SendResult{ErrorText: "caller has no discord channel configured"}
	}

	payload, err := json.Marshal(a.buildPayload(caller, cfg, msg))
	if err != nil {
		return &SendResult{ErrorText: fmt.Sprintf("encode payload: %v", err)}
	}

	return a.sender.Post(ctx, types.ChannelDiscord, cfg.WebhookURL, payload, a.validateResponse)
}

// buildPayload assembles the Discord webhook JSON structure. The sanitized
// body becomes the embed description; sender identity and metadata become
// inline fields.
func (a *DiscordAdapter) buildPayload(caller *types.CallerIdentity, cfg types.ChannelConfig, msg *types.Message) DiscordPayload {
	embed := DiscordEmbed{
		Title:       messageTitle(msg),
		Description: msg.Body,
		Color:       parseAccentColor(cfg.AccentColor, discordDefaultColor),
		Footer:      &DiscordFooter{Text: footerText(caller, cfg)},
		Timestamp:   msg.CreatedAt.UTC().Format(time.RFC3339),
	}

	for _, f := range messageFields(msg) {
		embed.Fields = append(embed.Fields, DiscordField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: true,
		})
	}

	username := cfg.Username
	if username == "" {
		username = caller.DisplayName
	}

	return DiscordPayload{
		Username: username,
		Embeds:   []DiscordEmbed{embed},
	}
}

// validateResponse checks the Discord webhook response. Discord answers 204
// No Content on success and a JSON body carrying "message" on errors.
func (a *DiscordAdapter) validateResponse(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var resp map[string]any
	if err := json.Unmarshal(body, &resp); err == nil {
		if msg, ok := resp["message"].(string); ok && msg != "" {
			return fmt.Errorf("status %d: %s", statusCode, msg)
		}
	}

	return fmt.Errorf("status %d: %s", statusCode, truncateBody(body))
}
