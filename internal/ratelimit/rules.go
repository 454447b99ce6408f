package ratelimit

import (
	"errors"
	"time"

	"github.com/consultahub/consulta-server/pkg/config"
)

// Rules encapsulates configured burst limits. These protect the stores
// from hot loops and are distinct from the daily credit quota.
type Rules struct {
	config config.RateLimitConfig
}

// NewRules constructs rate limiting rules from configuration settings.
func NewRules(cfg config.RateLimitConfig) *Rules {
	return &Rules{config: cfg}
}

// IsWhitelisted returns true if the userID bypasses rate limits.
func (r *Rules) IsWhitelisted(userID string) bool {
	for _, id := range r.config.Whitelist {
		if id == userID {
			return true
		}
	}
	return false
}

// GetLookupLimit returns the limit and window for a lookup kind, falling
// back to the per-user rule when the kind has no dedicated entry.
func (r *Rules) GetLookupLimit(kind string) (int, time.Duration, error) {
	if rule, ok := r.config.Lookups[kind]; ok {
		return parseRule(rule)
	}

	return r.GetPerUserLimit()
}

// GetPerUserLimit returns the per-user rate limiting rule.
func (r *Rules) GetPerUserLimit() (int, time.Duration, error) {
	return parseRule(r.config.PerUser)
}

func parseRule(rule config.RateLimitRule) (int, time.Duration, error) {
	if rule.Window == "" {
		return rule.Limit, 0, errors.New("window duration is not set")
	}
	window, err := time.ParseDuration(rule.Window)
	if err != nil {
		return 0, 0, err
	}
	return rule.Limit, window, nil
}
