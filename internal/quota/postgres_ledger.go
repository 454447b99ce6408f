package quota

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/consultahub/consulta-server/internal/domain"
)

// PostgresLedger stores QuotaState in the user_credits table. Per-user
// linearizability comes from the row lock: every Consume and Peek takes the
// user's row FOR UPDATE inside one transaction, so concurrent calls for the
// same user serialize while different users never contend.
type PostgresLedger struct {
	db  *sql.DB
	log *slog.Logger
}

var (
	_ Ledger  = (*PostgresLedger)(nil)
	_ Sweeper = (*PostgresLedger)(nil)
)

// NewPostgresLedger creates a SQL-backed ledger.
func NewPostgresLedger(db *sql.DB, log *slog.Logger) *PostgresLedger {
	if log == nil {
		log = slog.Default()
	}

	return &PostgresLedger{db: db, log: log}
}

// Consume atomically applies a due reset and spends one credit if any
// remains.
func (l *PostgresLedger) Consume(ctx context.Context, userID string, limit int, period time.Duration, now time.Time) (*Result, error) {
	return l.apply(ctx, userID, limit, period, now, true)
}

// Peek applies a due reset and returns the fresh state without spending.
func (l *PostgresLedger) Peek(ctx context.Context, userID string, limit int, period time.Duration, now time.Time) (*Result, error) {
	return l.apply(ctx, userID, limit, period, now, false)
}

func (l *PostgresLedger) apply(ctx context.Context, userID string, limit int, period time.Duration, now time.Time, consume bool) (*Result, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin quota tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Lazy creation: the row appears on first use with a full allowance.
	const insertQuery = `
		INSERT INTO user_credits (user_id, credits_remaining, daily_limit, reset_at)
		VALUES ($1, $2, $2, $3)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := tx.ExecContext(ctx, insertQuery, userID, limit, now.Add(period)); err != nil {
		l.log.Error("failed to ensure quota row", slog.String("user_id", userID), slog.Any("error", err))
		return nil, fmt.Errorf("ensure quota row: %w", err)
	}

	const selectQuery = `
		SELECT credits_remaining, daily_limit, reset_at
		FROM user_credits
		WHERE user_id = $1
		FOR UPDATE
	`
	state := domain.QuotaState{UserID: userID}
	if err := tx.QueryRowContext(ctx, selectQuery, userID).Scan(&state.Remaining, &state.DailyLimit, &state.ResetAt); err != nil {
		l.log.Error("failed to lock quota row", slog.String("user_id", userID), slog.Any("error", err))
		return nil, fmt.Errorf("select quota row: %w", err)
	}

	consumed, didReset := advance(&state, limit, period, now, consume)

	if consumed || didReset {
		const updateQuery = `
			UPDATE user_credits
			SET credits_remaining = $2, daily_limit = $3, reset_at = $4
			WHERE user_id = $1
		`
		if _, err := tx.ExecContext(ctx, updateQuery, userID, state.Remaining, state.DailyLimit, state.ResetAt); err != nil {
			l.log.Error("failed to update quota row", slog.String("user_id", userID), slog.Any("error", err))
			return nil, fmt.Errorf("update quota row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit quota tx: %w", err)
	}

	return &Result{
		Consumed:   consumed,
		DidReset:   didReset,
		Remaining:  state.Remaining,
		DailyLimit: state.DailyLimit,
		ResetAt:    state.ResetAt,
	}, nil
}

// DueUsers lists users whose reset boundary has passed, oldest first.
func (l *PostgresLedger) DueUsers(ctx context.Context, now time.Time, limit int) ([]string, error) {
	const query = `
		SELECT user_id
		FROM user_credits
		WHERE reset_at <= $1
		ORDER BY reset_at
		LIMIT $2
	`

	rows, err := l.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("select due users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan due user: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
