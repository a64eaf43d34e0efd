package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"herald/internal/types"
)

// slackDefaultColor is the attachment accent used when the caller's channel
// config has none.
const slackDefaultColor = "#2EB67D"

// slackKnownErrors are the plain-text rejection tokens Slack incoming
// webhooks return alongside a 2xx status.
var slackKnownErrors = []string{
	"no_text",
	"channel_not_found",
	"channel_is_archived",
	"invalid_payload",
	"too_many_attachments",
}

// SlackAdapter renders messages as Slack Block Kit attachments.
type SlackAdapter struct {
	sender *Sender
}

// NewSlackAdapter creates the Slack adapter backed by the shared sender.
func NewSlackAdapter(sender *Sender) *SlackAdapter {
	return &SlackAdapter{sender: sender}
}

// Name returns the channel identifier.
func (a *SlackAdapter) Name() types.ChannelType {
	return types.ChannelSlack
}

// Send renders the message as Block Kit JSON and posts it to the caller's
// Slack webhook.
func (a *SlackAdapter) Send(ctx context.Context, caller *types.CallerIdentity, msg *types.Message) *SendResult {
	cfg, ok := caller.Channels[types.ChannelSlack]
	if !ok {
		return &SendResult{ErrorText: "caller has no slack channel configured"}
	}

	payload, err := json.Marshal(a.buildPayload(caller, cfg, msg))
	if err != nil {
		return &SendResult{ErrorText: fmt.Sprintf("encode payload: %v", err)}
	}

	return a.sender.Post(ctx, types.ChannelSlack, cfg.WebhookURL, payload, a.validateResponse)
}

// buildPayload assembles the Block Kit structure: a header with the title,
// a section with the body, a fields section for sender identity and
// metadata, and a context footer. Everything sits in one attachment so the
// accent color bar renders.
func (a *SlackAdapter) buildPayload(caller *types.CallerIdentity, cfg types.ChannelConfig, msg *types.Message) SlackPayload {
	title := messageTitle(msg)

	blocks := []SlackBlock{
		{
			Type: "header",
			Text: &SlackText{Type: "plain_text", Text: title},
		},
		{
			Type: "section",
			Text: &SlackText{Type: "mrkdwn", Text: msg.Body},
		},
	}

	if fields := messageFields(msg); len(fields) > 0 {
		texts := make([]*SlackText, 0, len(fields))
		for _, f := range fields {
			texts = append(texts, &SlackText{
				Type: "mrkdwn",
				Text: fmt.Sprintf("*%s*\n%s", f.Name, f.Value),
			})
		}
		blocks = append(blocks, SlackBlock{Type: "section", Fields: texts})
	}

	blocks = append(blocks, SlackBlock{
		Type: "context",
		Elements: []*SlackText{
			{Type: "mrkdwn", Text: footerText(caller, cfg)},
		},
	})

	color := cfg.AccentColor
	if color == "" {
		color = slackDefaultColor
	}

	return SlackPayload{
		Text:        title,
		Attachments: []SlackAttachment{{Color: color, Blocks: blocks}},
	}
}

// validateResponse handles Slack's soft-failure contract: incoming webhooks
// answer "ok" as plain text on success, but can answer 2xx with a JSON body
// carrying "ok": false or with a bare error token.
func (a *SlackAdapter) validateResponse(statusCode int, body []byte) error {
	if statusCode < 200 || statusCode >= 300 {
		return fmt.Errorf("status %d: %s", statusCode, truncateBody(body))
	}

	bodyStr := strings.TrimSpace(string(body))
	if bodyStr == "" || bodyStr == "ok" {
		return nil
	}

	var resp map[string]any
	if err := json.Unmarshal(body, &resp); err == nil {
		if okVal, exists := resp["ok"]; exists {
			if okBool, isBool := okVal.(bool); isBool && !okBool {
				errMsg := "unknown error"
				if e, isStr := resp["error"].(string); isStr && e != "" {
					errMsg = e
				}
				return fmt.Errorf("slack error: %s", errMsg)
			}
		}
	}

	for _, known := range slackKnownErrors {
		if bodyStr == known {
			return fmt.Errorf("slack error: %s", bodyStr)
		}
	}

	return nil
}
