// Package gate composes the moderation registry, role store and quota
// ledger into a single allow/deny verdict per attempted lookup.
package gate

import (
	"context"
	"log/slog"

	"github.com/consultahub/consulta-server/internal/quota"
	"github.com/consultahub/consulta-server/pkg/metrics"
)

// Reason identifies why a request was denied.
type Reason string

const (
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonBanned          Reason = "banned"
	ReasonQuotaExhausted  Reason = "quota_exhausted"
	ReasonUnavailable     Reason = "unavailable"
)

// Decision is the terminal state of one authorization attempt. When
// Allowed is true the credit has already been spent; a later failure of
// the lookup itself does not refund it — credits meter attempts, not
// successes. Status is populated whenever the ledger was consulted.
type Decision struct {
	Allowed bool
	Reason  Reason
	Status  *quota.Status
	Err     error
}

// Registry answers whether the user is currently blocked by moderation.
type Registry interface {
	IsBlocked(ctx context.Context, userID string) (bool, error)
}

// Ledger spends one credit for the user, fail-closed.
type Ledger interface {
	UseCredit(ctx context.Context, userID string) (*quota.Status, bool, error)
}

// Gate is the single authorization entry point. It is stateless; all state
// lives behind the injected collaborators.
type Gate struct {
	registry Registry
	ledger   Ledger
	log      *slog.Logger
}

// New constructs the gate.
func New(registry Registry, ledger Ledger, log *slog.Logger) *Gate {
	if log == nil {
		log = slog.Default()
	}

	return &Gate{
		registry: registry,
		ledger:   ledger,
		log:      log,
	}
}

// Authorize runs the fixed check sequence: identity, then moderation, then
// quota. The order is load-bearing: an unauthenticated caller touches no
// store, and a banned user never spends a credit.
func (g *Gate) Authorize(ctx context.Context, userID, lookupKind string) Decision {
	if userID == "" {
		metrics.RecordDecision(string(ReasonUnauthenticated))
		return Decision{Reason: ReasonUnauthenticated}
	}

	blocked, err := g.registry.IsBlocked(ctx, userID)
	if err != nil {
		g.log.Error("moderation check failed",
			slog.String("user_id", userID),
			slog.String("lookup_kind", lookupKind),
			slog.Any("error", err),
		)
		metrics.RecordDecision(string(ReasonUnavailable))
		return Decision{Reason: ReasonUnavailable, Err: err}
	}
	if blocked {
		metrics.RecordDecision(string(ReasonBanned))
		return Decision{Reason: ReasonBanned}
	}

	status, consumed, err := g.ledger.UseCredit(ctx, userID)
	if err != nil {
		// Fail closed: an unreachable ledger denies without spending.
		g.log.Error("credit consumption failed",
			slog.String("user_id", userID),
			slog.String("lookup_kind", lookupKind),
			slog.Any("error", err),
		)
		metrics.RecordDecision(string(ReasonUnavailable))
		return Decision{Reason: ReasonUnavailable, Err: err}
	}
	if !consumed {
		metrics.RecordDecision(string(ReasonQuotaExhausted))
		return Decision{Reason: ReasonQuotaExhausted, Status: status}
	}

	metrics.RecordDecision("allowed")
	g.log.Debug("lookup authorized",
		slog.String("user_id", userID),
		slog.String("lookup_kind", lookupKind),
		slog.Int("remaining", status.Remaining),
	)

	return Decision{Allowed: true, Status: status}
}
