package quota

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/consultahub/consulta-server/internal/domain"
)

type memoryEntry struct {
	mu    sync.Mutex
	state domain.QuotaState
}

// MemoryLedger keeps QuotaState in process memory with a mutex per user, so
// consumers of the same user serialize and different users never contend.
// It backs tests and single-node deployments; multi-instance setups need
// the Postgres or Redis ledger.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	log     *slog.Logger
}

var (
	_ Ledger  = (*MemoryLedger)(nil)
	_ Sweeper = (*MemoryLedger)(nil)
)

// NewMemoryLedger returns an in-memory ledger implementation.
func NewMemoryLedger(log *slog.Logger) *MemoryLedger {
	if log == nil {
		log = slog.Default()
	}

	return &MemoryLedger{
		entries: make(map[string]*memoryEntry),
		log:     log,
	}
}

// Consume atomically applies a due reset and spends one credit if any
// remains.
func (l *MemoryLedger) Consume(ctx context.Context, userID string, limit int, period time.Duration, now time.Time) (*Result, error) {
	return l.apply(ctx, userID, limit, period, now, true)
}

// Peek applies a due reset without spending.
func (l *MemoryLedger) Peek(ctx context.Context, userID string, limit int, period time.Duration, now time.Time) (*Result, error) {
	return l.apply(ctx, userID, limit, period, now, false)
}

func (l *MemoryLedger) apply(ctx context.Context, userID string, limit int, period time.Duration, now time.Time, consume bool) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entry := l.loadOrCreateEntry(userID, limit, period, now)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	consumed, didReset := advance(&entry.state, limit, period, now, consume)

	return &Result{
		Consumed:   consumed,
		DidReset:   didReset,
		Remaining:  entry.state.Remaining,
		DailyLimit: entry.state.DailyLimit,
		ResetAt:    entry.state.ResetAt,
	}, nil
}

// DueUsers lists users whose reset boundary has passed, oldest first.
func (l *MemoryLedger) DueUsers(ctx context.Context, now time.Time, limit int) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	type due struct {
		id      string
		resetAt time.Time
	}

	var dues []due
	for id, entry := range l.entries {
		entry.mu.Lock()
		resetAt := entry.state.ResetAt
		entry.mu.Unlock()

		if !resetAt.After(now) {
			dues = append(dues, due{id: id, resetAt: resetAt})
		}
	}

	sort.Slice(dues, func(i, j int) bool { return dues[i].resetAt.Before(dues[j].resetAt) })

	if limit > 0 && len(dues) > limit {
		dues = dues[:limit]
	}

	ids := make([]string, 0, len(dues))
	for _, d := range dues {
		ids = append(ids, d.id)
	}

	return ids, nil
}

func (l *MemoryLedger) loadOrCreateEntry(userID string, limit int, period time.Duration, now time.Time) *memoryEntry {
	l.mu.RLock()
	entry := l.entries[userID]
	l.mu.RUnlock()

	if entry != nil {
		return entry
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if entry = l.entries[userID]; entry == nil {
		entry = &memoryEntry{state: domain.QuotaState{
			UserID:     userID,
			Remaining:  limit,
			DailyLimit: limit,
			ResetAt:    now.Add(period),
		}}
		l.entries[userID] = entry
	}

	return entry
}
