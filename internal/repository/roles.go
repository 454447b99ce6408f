// Package repository provides SQL-backed persistence for roles and
// moderation records.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/consultahub/consulta-server/internal/domain"
)

// RoleRepository defines persistence operations for role assignments.
// Find returns sql.ErrNoRows when no role has been assigned yet.
type RoleRepository interface {
	Find(ctx context.Context, userID string) (domain.Role, error)
	Upsert(ctx context.Context, userID string, role domain.Role) error
}

type roleRepository struct {
	db  *sql.DB
	log *slog.Logger
}

// NewRoleRepository creates a SQL-backed role repository.
func NewRoleRepository(db *sql.DB, log *slog.Logger) RoleRepository {
	return &roleRepository{
		db:  db,
		log: log,
	}
}

// Find retrieves the stored role for a user.
func (r *roleRepository) Find(ctx context.Context, userID string) (domain.Role, error) {
	const query = `
		SELECT role
		FROM user_roles
		WHERE user_id = $1
	`

	var raw string
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", sql.ErrNoRows
		}

		if r.log != nil {
			r.log.Error("failed to fetch role", slog.String("user_id", userID), slog.Any("error", err))
		}
		return "", fmt.Errorf("select role: %w", err)
	}

	role, err := domain.ParseRole(raw)
	if err != nil {
		return "", fmt.Errorf("stored role for user %s: %w", userID, err)
	}

	return role, nil
}

// Upsert assigns the role, replacing any previous assignment.
func (r *roleRepository) Upsert(ctx context.Context, userID string, role domain.Role) error {
	const query = `
		INSERT INTO user_roles (user_id, role, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET role = EXCLUDED.role, updated_at = now()
	`

	if _, err := r.db.ExecContext(ctx, query, userID, string(role)); err != nil {
		if r.log != nil {
			r.log.Error("failed to upsert role", slog.String("user_id", userID), slog.Any("error", err))
		}
		return fmt.Errorf("upsert role: %w", err)
	}

	return nil
}
