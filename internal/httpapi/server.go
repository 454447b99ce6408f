// Package httpapi exposes the engine's operations over HTTP. It is a thin
// collaborator shell: every decision lives in the gate and the services.
package httpapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/consultahub/consulta-server/internal/apperr"
	"github.com/consultahub/consulta-server/internal/domain"
	"github.com/consultahub/consulta-server/internal/gate"
	"github.com/consultahub/consulta-server/internal/health"
	"github.com/consultahub/consulta-server/internal/idempotency"
	"github.com/consultahub/consulta-server/internal/quota"
	"github.com/consultahub/consulta-server/internal/ratelimit"
)

// Authorizer is the gate's single entry point.
type Authorizer interface {
	Authorize(ctx context.Context, userID, lookupKind string) gate.Decision
}

// QuotaReader exposes the read-only quota view.
type QuotaReader interface {
	Status(ctx context.Context, userID string) (*quota.Status, error)
}

// RoleAdmin is the privileged role mutation path.
type RoleAdmin interface {
	Set(ctx context.Context, actorID, targetID string, newRole domain.Role) error
}

// Moderator is the administrative moderation surface.
type Moderator interface {
	Apply(ctx context.Context, moderatorID, userID string, actionType domain.ModerationType, reason string) (string, error)
	Deactivate(ctx context.Context, actionID string) error
	ActiveActions(ctx context.Context, userID string) ([]domain.ModerationAction, error)
	Log(ctx context.Context, limit int) ([]domain.ModerationAction, error)
}

// TaskEnqueuer enqueues background tasks, for on-demand sweeps.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Server bundles the handlers' collaborators.
type Server struct {
	gate     Authorizer
	quotas   QuotaReader
	roles    RoleAdmin
	registry Moderator
	limiter  ratelimit.Limiter
	rules    *ratelimit.Rules
	idem     idempotency.Manager
	tasks    TaskEnqueuer
	checker  *health.Checker
	errs     *apperr.Handler
	idemTTL  time.Duration
	log      *slog.Logger
}

// Options carries optional collaborators; nil fields disable the feature.
type Options struct {
	Limiter ratelimit.Limiter
	Rules   *ratelimit.Rules
	Idem    idempotency.Manager
	Tasks   TaskEnqueuer
	Checker *health.Checker
}

// NewServer constructs the HTTP surface.
func NewServer(gate Authorizer, quotas QuotaReader, roles RoleAdmin, registry Moderator, errs *apperr.Handler, opts Options, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}

	return &Server{
		gate:     gate,
		quotas:   quotas,
		roles:    roles,
		registry: registry,
		limiter:  opts.Limiter,
		rules:    opts.Rules,
		idem:     opts.Idem,
		tasks:    opts.Tasks,
		checker:  opts.Checker,
		errs:     errs,
		idemTTL:  24 * time.Hour,
		log:      log,
	}
}
