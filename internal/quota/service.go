package quota

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/consultahub/consulta-server/internal/apperr"
	"github.com/consultahub/consulta-server/internal/domain"
	"github.com/consultahub/consulta-server/pkg/metrics"
)

// RoleSource resolves the current role tier for a user.
type RoleSource interface {
	Get(ctx context.Context, userID string) (domain.Role, error)
}

// Status is the caller-facing view of a user's quota.
type Status struct {
	Remaining  int         `json:"remaining"`
	DailyLimit int         `json:"daily_limit"`
	ResetAt    time.Time   `json:"reset_at"`
	Role       domain.Role `json:"role"`
}

// Service is the Quota Ledger: it resolves the user's role to a daily
// limit and delegates the atomic state transition to the storage strategy.
// Store failures surface as Unavailable and never grant a credit.
type Service struct {
	ledger Ledger
	roles  RoleSource
	policy atomic.Pointer[Policy]
	log    *slog.Logger
}

// NewService constructs the ledger service.
func NewService(ledger Ledger, roles RoleSource, policy Policy, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}

	s := &Service{
		ledger: ledger,
		roles:  roles,
		log:    log,
	}
	s.policy.Store(&policy)

	return s
}

// UpdatePolicy swaps the policy table. New limits apply at each user's next
// reset, mirroring how role changes propagate.
func (s *Service) UpdatePolicy(policy Policy) {
	s.policy.Store(&policy)
	s.log.Info("quota policy updated", slog.Duration("period", policy.Period))
}

// Policy returns the active policy table.
func (s *Service) Policy() Policy {
	return *s.policy.Load()
}

// Status reads the user's quota, performing a lazy reset when the boundary
// has passed. It never spends a credit.
func (s *Service) Status(ctx context.Context, userID string) (*Status, error) {
	role, limit, err := s.resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	res, err := s.ledger.Peek(ctx, userID, limit, s.Policy().Period, time.Now().UTC())
	if err != nil {
		return nil, apperr.NewUnavailable("quota ledger", err)
	}

	if res.DidReset {
		metrics.RecordReset("lazy")
	}

	return statusFrom(res, role), nil
}

// UseCredit attempts to spend one credit. It returns the post-operation
// status and whether the credit was granted. An error means the store was
// unreachable; the caller must treat that as denied (fail closed).
func (s *Service) UseCredit(ctx context.Context, userID string) (*Status, bool, error) {
	role, limit, err := s.resolve(ctx, userID)
	if err != nil {
		return nil, false, err
	}

	start := time.Now()
	res, err := s.ledger.Consume(ctx, userID, limit, s.Policy().Period, start.UTC())
	metrics.RecordConsume(time.Since(start))
	if err != nil {
		return nil, false, apperr.NewUnavailable("quota ledger", err)
	}

	if res.DidReset {
		metrics.RecordReset("lazy")
	}

	return statusFrom(res, role), res.Consumed, nil
}

// SweepDue resets every user whose boundary has passed, in batches. It is
// the scheduled twin of the lazy reset and reuses the same atomic path, so
// racing with concurrent consumers is safe.
func (s *Service) SweepDue(ctx context.Context, now time.Time, batch int) (int, error) {
	sweeper, ok := s.ledger.(Sweeper)
	if !ok {
		return 0, nil
	}

	if batch <= 0 {
		batch = 500
	}

	ids, err := sweeper.DueUsers(ctx, now, batch)
	if err != nil {
		return 0, apperr.NewUnavailable("quota ledger", err)
	}

	swept := 0
	for _, userID := range ids {
		_, limit, err := s.resolve(ctx, userID)
		if err != nil {
			s.log.Error("sweep: role lookup failed", slog.String("user_id", userID), slog.Any("error", err))
			continue
		}

		res, err := s.ledger.Peek(ctx, userID, limit, s.Policy().Period, now)
		if err != nil {
			s.log.Error("sweep: reset failed", slog.String("user_id", userID), slog.Any("error", err))
			continue
		}

		if res.DidReset {
			swept++
			metrics.RecordReset("sweep")
		}
	}

	return swept, nil
}

func (s *Service) resolve(ctx context.Context, userID string) (domain.Role, int, error) {
	role, err := s.roles.Get(ctx, userID)
	if err != nil {
		return "", 0, apperr.NewUnavailable("role store", err)
	}

	return role, s.Policy().LimitFor(role), nil
}

func statusFrom(res *Result, role domain.Role) *Status {
	return &Status{
		Remaining:  res.Remaining,
		DailyLimit: res.DailyLimit,
		ResetAt:    res.ResetAt,
		Role:       role,
	}
}
