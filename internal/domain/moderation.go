package domain

import (
	"fmt"
	"time"
)

// ModerationType classifies a moderation action applied to a user.
type ModerationType string

const (
	ModerationBan      ModerationType = "ban"
	ModerationRestrict ModerationType = "restrict"
	ModerationWarn     ModerationType = "warn"
)

// ParseModerationType validates a stored action type string.
func ParseModerationType(s string) (ModerationType, error) {
	switch ModerationType(s) {
	case ModerationBan, ModerationRestrict, ModerationWarn:
		return ModerationType(s), nil
	default:
		return "", fmt.Errorf("unknown moderation action type %q", s)
	}
}

// ModerationAction is one entry in the per-user moderation log. Records are
// append-only; lifting an action deactivates it rather than deleting it, so
// the log doubles as an audit trail.
type ModerationAction struct {
	ID          string
	UserID      string
	ModeratorID string
	Type        ModerationType
	Reason      string
	IsActive    bool
	CreatedAt   time.Time
}
