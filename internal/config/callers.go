// callers.go loads the caller registry: the YAML file that provisions every
// machine caller allowed to dispatch notifications, with its secret, rate
// limit, and channel configurations.
//
// The registry is read once at startup. Violations fail the load rather than
// being skipped, so a typo in one caller cannot silently drop it from the
// index.
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"

	yaml "go.yaml.in/yaml/v3"

	"herald/internal/types"
)

// minCallerSecretLength is the floor for registered secrets. Short secrets
// make the constant-time index pointless.
const minCallerSecretLength = 16

var (
	callerIDPattern  = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)
	accentHexPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
)

// callerRegistry is the YAML document shape of the callers file.
type callerRegistry struct {
	Callers []types.CallerIdentity `yaml:"callers"`
}

// LoadCallers reads and validates the caller registry at path.
// Every returned identity is shape-checked: slug id, display name, secret
// length, known channels with https webhook URLs, and uniqueness of both
// ids and secrets across the registry.
func LoadCallers(path string) ([]types.CallerIdentity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{
			Type:    ErrRegistry,
			Message: fmt.Sprintf("reading caller registry %s", path),
			Err:     err,
		}
	}

	var reg callerRegistry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, &ConfigError{
			Type:    ErrRegistry,
			Message: fmt.Sprintf("parsing caller registry %s", path),
			Err:     err,
		}
	}

	if len(reg.Callers) == 0 {
		return nil, &ConfigError{
			Type:    ErrRegistry,
			Message: fmt.Sprintf("caller registry %s defines no callers", path),
		}
	}

	if err := validateCallers(reg.Callers); err != nil {
		return nil, &ConfigError{
			Type:    ErrRegistry,
			Message: fmt.Sprintf("caller registry %s is invalid", path),
			Err:     err,
		}
	}

	return reg.Callers, nil
}

// validateCallers applies the shape and uniqueness rules to the parsed
// registry. The first violation is returned, naming the offending caller.
func validateCallers(callers []types.CallerIdentity) error {
	seenIDs := make(map[string]struct{}, len(callers))
	seenSecrets := make(map[string]string, len(callers))

	for i := range callers {
		c := &callers[i]

		if !callerIDPattern.MatchString(c.ID) {
			return fmt.Errorf("caller %d: id %q must be a lowercase slug", i, c.ID)
		}
		if _, dup := seenIDs[c.ID]; dup {
			return fmt.Errorf("caller %q: duplicate id", c.ID)
		}
		seenIDs[c.ID] = struct{}{}

		if c.DisplayName == "" {
			return fmt.Errorf("caller %q: display_name is required", c.ID)
		}

		secret := c.Secret.Unmask()
		if len(secret) < minCallerSecretLength {
			return fmt.Errorf("caller %q: secret must be at least %d characters", c.ID, minCallerSecretLength)
		}
		if other, dup := seenSecrets[secret]; dup {
			return fmt.Errorf("caller %q: secret duplicates caller %q", c.ID, other)
		}
		seenSecrets[secret] = c.ID

		if c.RateLimit < 0 {
			return fmt.Errorf("caller %q: rate_limit must not be negative", c.ID)
		}

		if len(c.Channels) == 0 {
			return fmt.Errorf("caller %q: at least one channel is required", c.ID)
		}
		for name, ch := range c.Channels {
			if err := validateChannelConfig(name, ch); err != nil {
				return fmt.Errorf("caller %q: %w", c.ID, err)
			}
		}
	}

	return nil
}

// validateChannelConfig checks one channel entry: the channel must be a
// supported type, the webhook URL must be https, and the accent color, when
// set, must be a #RRGGBB hex value.
func validateChannelConfig(name types.ChannelType, ch types.ChannelConfig) error {
	if !name.IsValid() {
		return fmt.Errorf("channel %q is not supported", name)
	}

	if ch.WebhookURL == "" {
		return fmt.Errorf("channel %q: webhook_url is required", name)
	}
	u, err := url.Parse(ch.WebhookURL)
	if err != nil {
		return fmt.Errorf("channel %q: webhook_url is not a valid URL: %w", name, err)
	}
	if u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("channel %q: webhook_url must be an absolute https URL", name)
	}

	if ch.AccentColor != "" && !accentHexPattern.MatchString(ch.AccentColor) {
		return fmt.Errorf("channel %q: accent_color %q must be #RRGGBB", name, ch.AccentColor)
	}

	return nil
}
