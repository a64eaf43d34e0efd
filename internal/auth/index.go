// Package auth resolves presented caller secrets to identities.
//
// The index compares a presented secret against every registered secret on
// every call, using constant-time comparison over operands padded to a
// shared width. Resolution duration therefore does not depend on whether a
// secret matches, which entry matches, or how long a common prefix is, so
// response timing leaks nothing about registered credentials.
package auth

import (
	"crypto/subtle"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"herald/internal/types"
)

// Resolution is the outcome of a successful secret lookup.
// Caller is nil when the admin identity resolved.
type Resolution struct {
	Actor  types.Actor
	Caller *types.CallerIdentity
}

// IsAdmin reports whether the resolved identity is the operator.
func (r *Resolution) IsAdmin() bool {
	return r.Actor.Type == types.ActorTypeAdmin
}

// indexed is one registered secret padded for constant-time comparison.
type indexed struct {
	caller *types.CallerIdentity
	padded []byte
	rawLen int
}

// Index is the credential index. It is immutable after construction and
// safe for concurrent use.
type Index struct {
	admin    indexed
	callers  []indexed
	limiters map[string]*rate.Limiter
	width    int
	logger   *slog.Logger
}

// NewIndex builds the index from the admin secret and the registered
// callers. Secrets must be non-empty and unique across the whole set; the
// caller registry loader enforces richer shape rules before this point.
func NewIndex(adminSecret types.SecretString, callers []types.CallerIdentity, logger *slog.Logger) (*Index, error) {
	if adminSecret.Unmask() == "" {
		return nil, fmt.Errorf("auth: admin secret is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("auth: logger is required")
	}

	// Shared padding width covers the longest registered secret so every
	// comparison runs over identical-length operands.
	width := len(adminSecret.Unmask())
	for i := range callers {
		if callers[i].Secret.Unmask() == "" {
			return nil, fmt.Errorf("auth: caller %q has an empty secret", callers[i].ID)
		}
		if n := len(callers[i].Secret.Unmask()); n > width {
			width = n
		}
	}

	idx := &Index{
		admin:    indexed{padded: padSecret(adminSecret.Unmask(), width), rawLen: len(adminSecret.Unmask())},
		callers:  make([]indexed, 0, len(callers)),
		limiters: make(map[string]*rate.Limiter, len(callers)),
		width:    width,
		logger:   logger,
	}

	seen := map[string]string{adminSecret.Unmask(): "admin"}
	for i := range callers {
		c := &callers[i]
		raw := c.Secret.Unmask()
		if prev, dup := seen[raw]; dup {
			return nil, fmt.Errorf("auth: caller %q shares a secret with %s", c.ID, prev)
		}
		seen[raw] = fmt.Sprintf("caller %q", c.ID)

		idx.callers = append(idx.callers, indexed{
			caller: c,
			padded: padSecret(raw, width),
			rawLen: len(raw),
		})
		idx.limiters[c.ID] = newLimiter(c.RateLimit)
	}

	logger.Info("credential index built",
		"callers", len(idx.callers),
		"padding_width", width,
	)
	return idx, nil
}

// Resolve maps a presented secret to an identity. Every registered secret,
// including the admin secret, is compared on every call; the winning entry
// is selected without branching until all comparisons are done.
func (x *Index) Resolve(presented string) (*Resolution, error) {
	if presented == "" {
		return nil, types.NewAppError(types.ErrCodeAuthSecretMissing, "authentication secret is required", nil)
	}

	probe := padSecret(presented, x.width)
	probeLen := len(presented)

	adminHit := matchSecret(probe, probeLen, x.admin)
	callerHit := -1
	for i := range x.callers {
		hit := matchSecret(probe, probeLen, x.callers[i])
		callerHit = subtle.ConstantTimeSelect(hit, i, callerHit)
	}

	if adminHit == 1 {
		return &Resolution{
			Actor: types.Actor{ID: "admin", DisplayName: "Administrator", Type: types.ActorTypeAdmin},
		}, nil
	}
	if callerHit >= 0 {
		c := x.callers[callerHit].caller
		return &Resolution{
			Actor:  types.Actor{ID: c.ID, DisplayName: c.DisplayName, Type: types.ActorTypeCaller},
			Caller: c,
		}, nil
	}

	return nil, types.NewAppError(types.ErrCodeAuthSecretInvalid, "unknown authentication secret", nil)
}

// Limiter returns the named caller's rate limiter, or nil for unknown ids.
// Limiters are shared across requests, so the bucket state is global to the
// process.
func (x *Index) Limiter(callerID string) *rate.Limiter {
	return x.limiters[callerID]
}

// matchSecret compares the padded probe against one indexed secret.
// Returns 1 on a full match (bytes and original length), else 0. Both the
// byte comparison and the length check are constant time.
func matchSecret(probe []byte, probeLen int, entry indexed) int {
	bytesEq := subtle.ConstantTimeCompare(probe, entry.padded)
	lenEq := subtle.ConstantTimeEq(int32(probeLen), int32(entry.rawLen))
	return bytesEq & lenEq
}

// padSecret copies s into a zero-filled buffer of the index width. Inputs
// longer than the width are truncated; the retained length check still
// rejects them since no registered secret exceeds the width.
func padSecret(s string, width int) []byte {
	buf := make([]byte, width)
	copy(buf, s)
	return buf
}

// newLimiter builds a token bucket for requests-per-minute. Zero or
// negative means unlimited.
func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
}
