package domain

import "time"

// QuotaState is the per-user credit record. Remaining always stays within
// [0, DailyLimit]; DailyLimit is a snapshot of the role policy taken at the
// last reset, so a role change only takes effect on the next reset.
type QuotaState struct {
	UserID     string
	Remaining  int
	DailyLimit int
	ResetAt    time.Time
}

// NextReset advances an anchored reset boundary past now by whole periods.
// The boundary stays on the resetAt + k*period schedule no matter how long
// the user was idle; it is never re-anchored to now.
func NextReset(resetAt, now time.Time, period time.Duration) time.Time {
	if period <= 0 {
		return resetAt
	}
	for !resetAt.After(now) {
		resetAt = resetAt.Add(period)
	}
	return resetAt
}
