// Package quota implements the per-user daily credit ledger.
package quota

import (
	"context"
	"time"

	"github.com/consultahub/consulta-server/internal/domain"
)

// Result captures the outcome of one ledger operation for a single user.
type Result struct {
	Consumed   bool
	DidReset   bool
	Remaining  int
	DailyLimit int
	ResetAt    time.Time
}

// Ledger is the storage strategy for QuotaState. Consume is the only
// credit-spending operation; reset-if-due and the decrement form one
// indivisible unit per user, so N concurrent Consume calls against R
// remaining credits succeed exactly min(N, R) times. Peek applies a due
// reset but never spends.
//
// limit is the daily limit for the user's current role; it is installed
// only when a reset (or lazy creation) happens, never mid-period.
type Ledger interface {
	Consume(ctx context.Context, userID string, limit int, period time.Duration, now time.Time) (*Result, error)
	Peek(ctx context.Context, userID string, limit int, period time.Duration, now time.Time) (*Result, error)
}

// Sweeper is implemented by ledgers that can enumerate users whose reset
// boundary has passed, for the scheduled sweep job.
type Sweeper interface {
	DueUsers(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// advance applies the shared ledger state transition: anchored reset when
// due, then an optional single-credit decrement. Callers must hold whatever
// exclusivity their storage requires.
func advance(state *domain.QuotaState, limit int, period time.Duration, now time.Time, consume bool) (consumed, didReset bool) {
	if !state.ResetAt.After(now) {
		state.ResetAt = domain.NextReset(state.ResetAt, now, period)
		state.Remaining = limit
		state.DailyLimit = limit
		didReset = true
	}

	if consume && state.Remaining > 0 {
		state.Remaining--
		consumed = true
	}

	return consumed, didReset
}
