package quota

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestRedisLedger_LazyCreateAndSpend(t *testing.T) {
	ledger := NewRedisLedger(setupTestRedis(t), testLogger())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	res, err := ledger.Consume(context.Background(), "u1", 7, 24*time.Hour, now)
	require.NoError(t, err)

	assert.True(t, res.Consumed)
	assert.False(t, res.DidReset)
	assert.Equal(t, 6, res.Remaining)
	assert.Equal(t, 7, res.DailyLimit)
	assert.Equal(t, now.Add(24*time.Hour).UnixMilli(), res.ResetAt.UnixMilli())
}

func TestRedisLedger_Exhaustion(t *testing.T) {
	ledger := NewRedisLedger(setupTestRedis(t), testLogger())
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
}

func TestRedisLedger_AnchoredReset(t *testing.T) {
	ledger := NewRedisLedger(setupTestRedis(t), testLogger())
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := ledger.Consume(ctx, "u1", 5, 24*time.Hour, start)
	require.NoError(t, err)

	// idle across several boundaries, the schedule stays anchored
	now := start.Add(3*24*time.Hour + 7*time.Hour)
	res, err := ledger.Consume(ctx, "u1", 5, 24*time.Hour, now)
	require.NoError(t, err)

	assert.True(t, res.DidReset)
	assert.True(t, res.Consumed)
	assert.Equal(t, 4, res.Remaining)
	assert.Equal(t, start.Add(4*24*time.Hour).UnixMilli(), res.ResetAt.UnixMilli())
}

func TestRedisLedger_PeekAppliesResetWithoutSpending(t *testing.T) {
	ledger := NewRedisLedger(setupTestRedis(t), testLogger())
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := ledger.Consume(ctx, "u1", 3, 24*time.Hour, start)
	require.NoError(t, err)

	res, err := ledger.Peek(ctx, "u1", 3, 24*time.Hour, start.Add(25*time.Hour))
	require.NoError(t, err)

	assert.False(t, res.Consumed)
	assert.True(t, res.DidReset)
	assert.Equal(t, 3, res.Remaining)
}

func TestRedisLedger_NewLimitInstalledOnReset(t *testing.T) {
	ledger := NewRedisLedger(setupTestRedis(t), testLogger())
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := ledger.Consume(ctx, "u1", 7, 24*time.Hour, start)
	require.NoError(t, err)

	res, err := ledger.Peek(ctx, "u1", 25, 24*time.Hour, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 7, res.DailyLimit)

	res, err = ledger.Peek(ctx, "u1", 25, 24*time.Hour, start.Add(25*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 25, res.DailyLimit)
	assert.Equal(t, 25, res.Remaining)
}
