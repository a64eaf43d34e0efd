package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"herald/internal/types"
)

// validCallersYAML is a registry fixture that passes every shape check.
const validCallersYAML = `callers:
  - id: wedding-rsvp
    display_name: Wedding RSVP
    secret: wedding-secret-0123456789
    rate_limit: 60
    channels:
      discord:
        webhook_url: https://discord.com/api/webhooks/1/abc
        accent_color: "#AA00FF"
        footer: RSVP updates
      slack:
        webhook_url: https://hooks.slack.com/services/T0/B0/xyz
  - id: book-club
    display_name: Book Club Bot
    secret: book-club-secret-0123456789
    rate_limit: 0
    channels:
      slack:
        webhook_url: https://hooks.slack.com/services/T1/B1/abc
        username: book-club
`

// writeCallersFile writes content to a temp file and returns its path.
func writeCallersFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "callers.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func TestLoadCallers_Valid(t *testing.T) {
	callers, err := LoadCallers(writeCallersFile(t, validCallersYAML))
	if err != nil {
		t.Fatalf("LoadCallers returned error: %v", err)
	}

	if len(callers) != 2 {
		t.Fatalf("expected 2 callers, got %d", len(callers))
	}

	first := callers[0]
	if first.ID != "wedding-rsvp" {
		t.Errorf("ID = %q, want %q", first.ID, "wedding-rsvp")
	}
	if first.DisplayName != "Wedding RSVP" {
		t.Errorf("DisplayName = %q, want %q", first.DisplayName, "Wedding RSVP")
	}
	if first.Secret.Unmask() != "wedding-secret-0123456789" {
		t.Error("secret did not round-trip through YAML")
	}
	if first.RateLimit != 60 {
		t.Errorf("RateLimit = %d, want 60", first.RateLimit)
	}
	if !first.HasChannel(types.ChannelDiscord) || !first.HasChannel(types.ChannelSlack) {
		t.Errorf("expected both channels configured, got %v", first.Channels)
	}

	discord := first.Channels[types.ChannelDiscord]
	if discord.WebhookURL != "https://discord.com/api/webhooks/1/abc" {
		t.Errorf("WebhookURL = %q", discord.WebhookURL)
	}
	if discord.AccentColor != "#AA00FF" {
		t.Errorf("AccentColor = %q, want %q", discord.AccentColor, "#AA00FF")
	}
	if discord.Footer != "RSVP updates" {
		t.Errorf("Footer = %q, want %q", discord.Footer, "RSVP updates")
	}
}

func TestLoadCallers_MissingFile(t *testing.T) {
	_, err := LoadCallers(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError, got %T: %v", err, err)
	}
	if cfgErr.Type != ErrRegistry {
		t.Errorf("Type = %q, want %q", cfgErr.Type, ErrRegistry)
	}
}

func TestLoadCallers_MalformedYAML(t *testing.T) {
	_, err := LoadCallers(writeCallersFile(t, "callers: [unbalanced"))
	if err == nil {
		t.Fatal("expected error for malformed YAML")
	}

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError, got %T: %v", err, err)
	}
	if cfgErr.Type != ErrRegistry {
		t.Errorf("Type = %q, want %q", cfgErr.Type, ErrRegistry)
	}
}

func TestLoadCallers_EmptyRegistry(t *testing.T) {
	_, err := LoadCallers(writeCallersFile(t, "callers: []\n"))
	if err == nil {
		t.Fatal("expected error for empty registry")
	}
}

func TestLoadCallers_Violations(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "uppercase id",
			yaml: `callers:
  - id: WeddingRSVP
    display_name: Wedding
    secret: wedding-secret-0123456789
    channels:
      discord: {webhook_url: https://discord.com/api/webhooks/1/a}
`,
			wantErr: "lowercase slug",
		},
		{
			name: "duplicate id",
			yaml: `callers:
  - id: wedding-rsvp
    display_name: One
    secret: first-secret-0123456789
    channels:
      discord: {webhook_url: https://discord.com/api/webhooks/1/a}
  - id: wedding-rsvp
    display_name: Two
    secret: second-secret-0123456789
    channels:
      discord: {webhook_url: https://discord.com/api/webhooks/2/b}
`,
			wantErr: "duplicate id",
		},
		{
			name: "missing display name",
			yaml: `callers:
  - id: wedding-rsvp
    secret: wedding-secret-0123456789
    channels:
      discord: {webhook_url: https://discord.com/api/webhooks/1/a}
`,
			wantErr: "display_name is required",
		},
		{
			name: "short secret",
			yaml: `callers:
  - id: wedding-rsvp
    display_name: Wedding
    secret: short
    channels:
      discord: {webhook_url: https://discord.com/api/webhooks/1/a}
`,
			wantErr: "at least 16 characters",
		},
		{
			name: "duplicate secret",
			yaml: `callers:
  - id: wedding-rsvp
    display_name: One
    secret: shared-secret-0123456789
    channels:
      discord: {webhook_url: https://discord.com/api/webhooks/1/a}
  - id: book-club
    display_name: Two
    secret: shared-secret-0123456789
    channels:
      discord: {webhook_url: https://discord.com/api/webhooks/2/b}
`,
			wantErr: "duplicates caller",
		},
		{
			name: "negative rate limit",
			yaml: `callers:
  - id: wedding-rsvp
    display_name: Wedding
    secret: wedding-secret-0123456789
    rate_limit: -1
    channels:
      discord: {webhook_url: https://discord.com/api/webhooks/1/a}
`,
			wantErr: "rate_limit",
		},
		{
			name: "no channels",
			yaml: `callers:
  - id: wedding-rsvp
    display_name: Wedding
    secret: wedding-secret-0123456789
    channels: {}
`,
			wantErr: "at least one channel",
		},
		{
			name: "unknown channel type",
			yaml: `callers:
  - id: wedding-rsvp
    display_name: Wedding
    secret: wedding-secret-0123456789
    channels:
      teams: {webhook_url: https://example.test/hook}
`,
			wantErr: "not supported",
		},
		{
			name: "missing webhook url",
			yaml: `callers:
  - id: wedding-rsvp
    display_name: Wedding
    secret: wedding-secret-0123456789
    channels:
      discord: {username: bot}
`,
			wantErr: "webhook_url is required",
		},
		{
			name: "http webhook url",
			yaml: `callers:
  - id: wedding-rsvp
    display_name: Wedding
    secret: wedding-secret-0123456789
    channels:
      discord: {webhook_url: http://discord.com/api/webhooks/1/a}
`,
			wantErr: "https",
		},
		{
			name: "bad accent color",
			yaml: `callers:
  - id: wedding-rsvp
    display_name: Wedding
    secret: wedding-secret-0123456789
    channels:
      discord:
        webhook_url: https://discord.com/api/webhooks/1/a
        accent_color: purple
`,
			wantErr: "#RRGGBB",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCallers(writeCallersFile(t, tt.yaml))
			if err == nil {
				t.Fatal("expected a validation error")
			}

			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %T: %v", err, err)
			}
			if cfgErr.Type != ErrRegistry {
				t.Errorf("Type = %q, want %q", cfgErr.Type, ErrRegistry)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantErr)
			}
		})
	}
}
