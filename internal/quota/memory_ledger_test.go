package quota

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMemoryLedger_LazyCreateWithFullAllowance(t *testing.T) {
	ledger := NewMemoryLedger(testLogger())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	res, err := ledger.Consume(context.Background(), "u1", 7, 24*time.Hour, now)
	require.NoError(t, err)

	assert.True(t, res.Consumed)
	assert.False(t, res.DidReset)
	assert.Equal(t, 6, res.Remaining)
	assert.Equal(t, 7, res.DailyLimit)
	assert.Equal(t, now.Add(24*time.Hour), res.ResetAt)
}

func TestMemoryLedger_ExhaustionDeniesWithoutSpending(t *testing.T) {
	ledger := NewMemoryLedger(testLogger())
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		res, err := ledger.Consume(ctx, "u1", 2, 24*time.Hour, now)
		require.NoError(t, err)
		assert.True(t, res.Consumed)
	}

	res, err := ledger.Consume(ctx, "u1", 2, 24*time.Hour, now)
	require.NoError(t, err)
	assert.False(t, res.Consumed)
	assert.Equal(t, 0, res.Remaining)

	// remaining never dips below zero no matter how often we retry
	res, err = ledger.Consume(ctx, "u1", 2, 24*time.Hour, now)
	require.NoError(t, err)
	assert.False(t, res.Consumed)
	assert.Equal(t, 0, res.Remaining)
}

func TestMemoryLedger_ResetRestoresAllowance(t *testing.T) {
	ledger := NewMemoryLedger(testLogger())
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	res, err := ledger.Consume(ctx, "u1", 1, 24*time.Hour, start)
	require.NoError(t, err)
	require.True(t, res.Consumed)

	res, err = ledger.Consume(ctx, "u1", 1, 24*time.Hour, start.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, res.Consumed)

	// past the boundary the allowance comes back and one credit is spent
	res, err = ledger.Consume(ctx, "u1", 1, 24*time.Hour, start.Add(25*time.Hour))
	require.NoError(t, err)
	assert.True(t, res.Consumed)
	assert.True(t, res.DidReset)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, start.Add(48*time.Hour), res.ResetAt)
}

func TestMemoryLedger_ResetStaysAnchoredAfterIdle(t *testing.T) {
	ledger := NewMemoryLedger(testLogger())
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := ledger.Consume(ctx, "u1", 5, 24*time.Hour, start)
	require.NoError(t, err)

	// three idle days: the boundary lands on the anchored schedule, not now+period
	now := start.Add(3*24*time.Hour + 7*time.Hour)
	res, err := ledger.Consume(ctx, "u1", 5, 24*time.Hour, now)
	require.NoError(t, err)

	assert.True(t, res.DidReset)
	assert.Equal(t, start.Add(4*24*time.Hour), res.ResetAt)
}

func TestMemoryLedger_ResetInstallsNewLimit(t *testing.T) {
	ledger := NewMemoryLedger(testLogger())
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := ledger.Consume(ctx, "u1", 7, 24*time.Hour, start)
	require.NoError(t, err)

	// mid-period the stored limit stays, even though the caller now passes 25
	res, err := ledger.Peek(ctx, "u1", 25, 24*time.Hour, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 7, res.DailyLimit)
	assert.Equal(t, 6, res.Remaining)

	// after the reset the upgraded limit takes effect
	res, err = ledger.Peek(ctx, "u1", 25, 24*time.Hour, start.Add(25*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 25, res.DailyLimit)
	assert.Equal(t, 25, res.Remaining)
}

func TestMemoryLedger_PeekNeverSpends(t *testing.T) {
	ledger := NewMemoryLedger(testLogger())
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		res, err := ledger.Peek(ctx, "u1", 3, 24*time.Hour, now)
		require.NoError(t, err)
		assert.False(t, res.Consumed)
		assert.Equal(t, 3, res.Remaining)
	}
}

func TestMemoryLedger_ConcurrentConsumeSpendsExactly(t *testing.T) {
	ledger := NewMemoryLedger(testLogger())
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	const (
		workers   = 50
		allowance = 7
	)

	var consumed atomic.Int64
	var wg sync.WaitGroup
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			res, err := ledger.Consume(ctx, "u1", allowance, 24*time.Hour, now)
			if assert.NoError(t, err) && res.Consumed {
				consumed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(allowance), consumed.Load())

	res, err := ledger.Peek(ctx, "u1", allowance, 24*time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Remaining)
}

func TestMemoryLedger_DueUsersOldestFirst(t *testing.T) {
	ledger := NewMemoryLedger(testLogger())
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := ledger.Consume(ctx, "late", 5, 24*time.Hour, start.Add(2*time.Hour))
	require.NoError(t, err)
	_, err = ledger.Consume(ctx, "early", 5, 24*time.Hour, start)
	require.NoError(t, err)
	_, err = ledger.Consume(ctx, "fresh", 5, 24*time.Hour, start.Add(30*time.Hour))
	require.NoError(t, err)

	due, err := ledger.DueUsers(ctx, start.Add(30*time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"early", "late"}, due)

	due, err = ledger.DueUsers(ctx, start.Add(30*time.Hour), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"early"}, due)
}
