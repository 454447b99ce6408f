// Package roles implements the role store and the hierarchy-checked
// administration path.
package roles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/consultahub/consulta-server/internal/apperr"
	"github.com/consultahub/consulta-server/internal/domain"
	"github.com/consultahub/consulta-server/internal/repository"
	"github.com/consultahub/consulta-server/pkg/metrics"
)

const defaultCacheTTL = 5 * time.Minute

// Service provides role reads with a cache-aside layer and the privileged
// Set mutation. Role is never self-assigned; Set is the only writer.
type Service struct {
	repo     repository.RoleRepository
	cache    *Cache
	cacheTTL time.Duration
	log      *slog.Logger
}

// NewService constructs the role service. cache may be nil.
func NewService(repo repository.RoleRepository, cache *Cache, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		repo:     repo,
		cache:    cache,
		cacheTTL: defaultCacheTTL,
		log:      log,
	}
}

// Get returns the user's current role, defaulting to the base tier when no
// assignment exists. Cache failures fall through to the store.
func (s *Service) Get(ctx context.Context, userID string) (domain.Role, error) {
	if cached, err := s.cache.Get(ctx, userID); err == nil && cached != "" {
		return cached, nil
	} else if err != nil {
		s.log.Warn("role cache read failed", slog.String("user_id", userID), slog.Any("error", err))
	}

	role, err := s.load(ctx, userID)
	if err != nil {
		return "", err
	}

	if err := s.cache.Set(ctx, userID, role, s.cacheTTL); err != nil {
		s.log.Warn("role cache write failed", slog.String("user_id", userID), slog.Any("error", err))
	}

	return role, nil
}

// Set changes the target's role tier. The hierarchy rule: a target who is
// currently an admin may only be changed by an owner, and only an owner may
// grant the owner tier. The new daily limit takes effect at the target's
// next quota reset, never mid-period.
func (s *Service) Set(ctx context.Context, actorID, targetID string, newRole domain.Role) error {
	if !newRole.IsValid() {
		metrics.RecordRoleChange("error")
		return apperr.NewValidationError(fmt.Sprintf("unknown role %q", newRole))
	}
	if actorID == "" || targetID == "" {
		metrics.RecordRoleChange("error")
		return apperr.NewValidationError("actor and target are required")
	}

	// Hierarchy checks bypass the cache: a stale role here could let an
	// admin demote another admin.
	actorRole, err := s.load(ctx, actorID)
	if err != nil {
		metrics.RecordRoleChange("error")
		return err
	}
	targetRole, err := s.load(ctx, targetID)
	if err != nil {
		metrics.RecordRoleChange("error")
		return err
	}

	if targetRole == domain.RoleAdmin && actorRole != domain.RoleOwner {
		metrics.RecordRoleChange("forbidden")
		return apperr.NewForbidden(fmt.Sprintf("only an owner may change the role of admin %s", targetID))
	}
	if newRole == domain.RoleOwner && actorRole != domain.RoleOwner {
		metrics.RecordRoleChange("forbidden")
		return apperr.NewForbidden("only an owner may grant the owner role")
	}

	if err := s.repo.Upsert(ctx, targetID, newRole); err != nil {
		metrics.RecordRoleChange("error")
		return apperr.NewUnavailable("role store", err)
	}

	if err := s.cache.Invalidate(ctx, targetID); err != nil {
		s.log.Warn("role cache invalidation failed", slog.String("user_id", targetID), slog.Any("error", err))
	}

	metrics.RecordRoleChange("ok")
	s.log.Info("role changed",
		slog.String("actor_id", actorID),
		slog.String("target_id", targetID),
		slog.String("old_role", string(targetRole)),
		slog.String("new_role", string(newRole)),
	)

	return nil
}

func (s *Service) load(ctx context.Context, userID string) (domain.Role, error) {
	role, err := s.repo.Find(ctx, userID)
	if err == nil {
		return role, nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return domain.RoleUser, nil
	}

	return "", fmt.Errorf("load role: %w", err)
}
