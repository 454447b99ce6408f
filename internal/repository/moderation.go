package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/consultahub/consulta-server/internal/domain"
)

// ModerationRepository persists the append-only moderation log.
type ModerationRepository interface {
	Insert(ctx context.Context, action *domain.ModerationAction) error
	Deactivate(ctx context.Context, actionID string) error
	CountActive(ctx context.Context, userID string, types []domain.ModerationType) (int, error)
	ActiveByUser(ctx context.Context, userID string) ([]domain.ModerationAction, error)
	List(ctx context.Context, limit int) ([]domain.ModerationAction, error)
}

type moderationRepository struct {
	db  *sql.DB
	log *slog.Logger
}

// NewModerationRepository creates a SQL-backed moderation repository.
func NewModerationRepository(db *sql.DB, log *slog.Logger) ModerationRepository {
	return &moderationRepository{
		db:  db,
		log: log,
	}
}

// Insert appends a new moderation record.
func (r *moderationRepository) Insert(ctx context.Context, action *domain.ModerationAction) error {
	const query = `
		INSERT INTO user_moderation (id, user_id, moderator_id, action_type, reason, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	if _, err := r.db.ExecContext(
		ctx,
		query,
		action.ID,
		action.UserID,
		action.ModeratorID,
		string(action.Type),
		action.Reason,
		action.IsActive,
		action.CreatedAt,
	); err != nil {
		if r.log != nil {
			r.log.Error("failed to insert moderation action", slog.String("user_id", action.UserID), slog.Any("error", err))
		}
		return fmt.Errorf("insert moderation action: %w", err)
	}

	return nil
}

// Deactivate marks the record inactive. Records are never deleted and
// deactivating an inactive or missing record is a no-op.
func (r *moderationRepository) Deactivate(ctx context.Context, actionID string) error {
	const query = `
		UPDATE user_moderation
		SET is_active = false
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, actionID); err != nil {
		if r.log != nil {
			r.log.Error("failed to deactivate moderation action", slog.String("action_id", actionID), slog.Any("error", err))
		}
		return fmt.Errorf("deactivate moderation action: %w", err)
	}

	return nil
}

// CountActive counts active records of the given types for a user.
func (r *moderationRepository) CountActive(ctx context.Context, userID string, types []domain.ModerationType) (int, error) {
	const query = `
		SELECT count(*)
		FROM user_moderation
		WHERE user_id = $1 AND is_active AND action_type = ANY($2)
	`

	raw := make([]string, 0, len(types))
	for _, t := range types {
		raw = append(raw, string(t))
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, userID, pq.Array(raw)).Scan(&count); err != nil {
		if r.log != nil {
			r.log.Error("failed to count moderation actions", slog.String("user_id", userID), slog.Any("error", err))
		}
		return 0, fmt.Errorf("count moderation actions: %w", err)
	}

	return count, nil
}

// ActiveByUser returns all active records for a user, newest first.
func (r *moderationRepository) ActiveByUser(ctx context.Context, userID string) ([]domain.ModerationAction, error) {
	const query = `
		SELECT id, user_id, moderator_id, action_type, reason, is_active, created_at
		FROM user_moderation
		WHERE user_id = $1 AND is_active
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("select active moderation actions: %w", err)
	}
	defer rows.Close()

	return scanActions(rows)
}

// List returns the most recent records across all users for the admin log.
func (r *moderationRepository) List(ctx context.Context, limit int) ([]domain.ModerationAction, error) {
	const query = `
		SELECT id, user_id, moderator_id, action_type, reason, is_active, created_at
		FROM user_moderation
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("select moderation log: %w", err)
	}
	defer rows.Close()

	return scanActions(rows)
}

func scanActions(rows *sql.Rows) ([]domain.ModerationAction, error) {
	var actions []domain.ModerationAction
	for rows.Next() {
		var action domain.ModerationAction
		var rawType string
		if err := rows.Scan(
			&action.ID,
			&action.UserID,
			&action.ModeratorID,
			&rawType,
			&action.Reason,
			&action.IsActive,
			&action.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan moderation action: %w", err)
		}
		action.Type = domain.ModerationType(rawType)
		actions = append(actions, action)
	}

	return actions, rows.Err()
}
