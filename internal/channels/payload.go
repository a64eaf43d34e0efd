package channels

// --- Discord payload types (embeds) ---

// DiscordPayload is the top-level structure for Discord webhook messages.
type DiscordPayload struct {
	Username string         `json:"username,omitempty"`
	Content  string         `json:"content,omitempty"` // Fallback/ping text
	Embeds   []DiscordEmbed `json:"embeds"`
}

// DiscordEmbed represents an embed in a Discord webhook message.
type DiscordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"` // Decimal color code
	Fields      []DiscordField `json:"fields,omitempty"`
	Footer      *DiscordFooter `json:"footer,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"` // RFC 3339
}

// DiscordField is a labeled field within a Discord embed.
type DiscordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// DiscordFooter is the footer of a Discord embed.
type DiscordFooter struct {
	Text string `json:"text"`
}

// --- Slack payload types (Block Kit) ---

// SlackPayload is the top-level structure for Slack incoming-webhook
// messages. Blocks live inside a single attachment so the accent color bar
// renders alongside them.
type SlackPayload struct {
	Text        string            `json:"text"` // Fallback text for push notifications
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SlackAttachment wraps blocks with an accent color.
type SlackAttachment struct {
	Color  string       `json:"color,omitempty"` // "#RRGGBB"
	Blocks []SlackBlock `json:"blocks"`
}

// SlackBlock represents a single block in a Slack Block Kit message.
type SlackBlock struct {
	Type     string       `json:"type"`               // "header", "section", "context"
	Text     *SlackText   `json:"text,omitempty"`     // Primary text element
	Fields   []*SlackText `json:"fields,omitempty"`   // Multi-column fields
	Elements []*SlackText `json:"elements,omitempty"` // Context elements
}

// SlackText is a text composition object for Slack Block Kit.
type SlackText struct {
	Type string `json:"type"` // "plain_text", "mrkdwn"
	Text string `json:"text"`
}
