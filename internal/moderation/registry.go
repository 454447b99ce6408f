// Package moderation implements the moderation registry: the append-only
// log of bans, restrictions and warnings that gates authorization.
package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/consultahub/consulta-server/internal/apperr"
	"github.com/consultahub/consulta-server/internal/domain"
	"github.com/consultahub/consulta-server/internal/repository"
	"github.com/consultahub/consulta-server/pkg/metrics"
)

// Registry exposes the moderation contract. Authorization of the moderator
// is the caller's responsibility; the registry only records and answers.
type Registry struct {
	repo            repository.ModerationRepository
	blockOnRestrict bool
	log             *slog.Logger
}

// NewRegistry constructs the registry. blockOnRestrict extends the blocking
// set from {ban} to {ban, restrict}; the default policy treats restrict as
// non-blocking.
func NewRegistry(repo repository.ModerationRepository, blockOnRestrict bool, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}

	return &Registry{
		repo:            repo,
		blockOnRestrict: blockOnRestrict,
		log:             log,
	}
}

// IsBlocked reports whether at least one active blocking action exists for
// the user. A ban stays active until explicitly deactivated; there is no
// expiry.
func (r *Registry) IsBlocked(ctx context.Context, userID string) (bool, error) {
	types := []domain.ModerationType{domain.ModerationBan}
	if r.blockOnRestrict {
		types = append(types, domain.ModerationRestrict)
	}

	count, err := r.repo.CountActive(ctx, userID, types)
	if err != nil {
		return false, fmt.Errorf("check active moderation: %w", err)
	}

	return count > 0, nil
}

// Apply appends a new active record and returns its identifier.
func (r *Registry) Apply(ctx context.Context, moderatorID, userID string, actionType domain.ModerationType, reason string) (string, error) {
	if _, err := domain.ParseModerationType(string(actionType)); err != nil {
		return "", apperr.NewValidationError(err.Error())
	}
	if userID == "" || moderatorID == "" {
		return "", apperr.NewValidationError("user and moderator are required")
	}

	action := &domain.ModerationAction{
		ID:          uuid.NewString(),
		UserID:      userID,
		ModeratorID: moderatorID,
		Type:        actionType,
		Reason:      reason,
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
	}

	if err := r.repo.Insert(ctx, action); err != nil {
		return "", apperr.NewUnavailable("moderation registry", err)
	}

	metrics.RecordModeration(string(actionType))
	r.log.Info("moderation action applied",
		slog.String("action_id", action.ID),
		slog.String("user_id", userID),
		slog.String("moderator_id", moderatorID),
		slog.String("type", string(actionType)),
	)

	return action.ID, nil
}

// Deactivate lifts an action. Idempotent: lifting an already-inactive or
// unknown action is a no-op.
func (r *Registry) Deactivate(ctx context.Context, actionID string) error {
	if actionID == "" {
		return apperr.NewValidationError("action id is required")
	}

	if err := r.repo.Deactivate(ctx, actionID); err != nil {
		return apperr.NewUnavailable("moderation registry", err)
	}

	return nil
}

// ActiveActions returns the active records for a user, for policy hooks
// that degrade functionality on restrict or surface warnings.
func (r *Registry) ActiveActions(ctx context.Context, userID string) ([]domain.ModerationAction, error) {
	actions, err := r.repo.ActiveByUser(ctx, userID)
	if err != nil {
		return nil, apperr.NewUnavailable("moderation registry", err)
	}

	return actions, nil
}

// Log returns the most recent records for the administrative audit view.
func (r *Registry) Log(ctx context.Context, limit int) ([]domain.ModerationAction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	actions, err := r.repo.List(ctx, limit)
	if err != nil {
		return nil, apperr.NewUnavailable("moderation registry", err)
	}

	return actions, nil
}
