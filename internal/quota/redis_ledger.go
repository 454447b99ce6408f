package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeScript holds the whole reset-then-decrement transition so that
// concurrent consumers for the same user serialize on the script execution.
// Timestamps are unix milliseconds.
var consumeScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local period = tonumber(ARGV[3])
local consume = tonumber(ARGV[4])

local vals = redis.call('HMGET', key, 'remaining', 'daily_limit', 'reset_at')
local remaining = tonumber(vals[1])
local daily = tonumber(vals[2])
local reset = tonumber(vals[3])
local did_reset = 0

if remaining == nil or daily == nil or reset == nil then
  remaining = limit
  daily = limit
  reset = now + period
elseif now >= reset then
  repeat
    reset = reset + period
  until reset > now
  remaining = limit
  daily = limit
  did_reset = 1
end

local consumed = 0
if consume == 1 and remaining > 0 then
  remaining = remaining - 1
  consumed = 1
end

redis.call('HSET', key, 'remaining', remaining, 'daily_limit', daily, 'reset_at', reset)
return {consumed, did_reset, remaining, daily, reset}
`)

// RedisLedger stores QuotaState in Redis hashes, one per user.
type RedisLedger struct {
	client *redis.Client
	log    *slog.Logger
}

var _ Ledger = (*RedisLedger)(nil)

// NewRedisLedger creates a Redis-backed ledger implementation.
func NewRedisLedger(client *redis.Client, log *slog.Logger) *RedisLedger {
	if log == nil {
		log = slog.Default()
	}

	return &RedisLedger{client: client, log: log}
}

// Consume atomically applies a due reset and spends one credit if any
// remains.
func (l *RedisLedger) Consume(ctx context.Context, userID string, limit int, period time.Duration, now time.Time) (*Result, error) {
	return l.run(ctx, userID, limit, period, now, true)
}

// Peek applies a due reset without spending.
func (l *RedisLedger) Peek(ctx context.Context, userID string, limit int, period time.Duration, now time.Time) (*Result, error) {
	return l.run(ctx, userID, limit, period, now, false)
}

func (l *RedisLedger) run(ctx context.Context, userID string, limit int, period time.Duration, now time.Time, consume bool) (*Result, error) {
	consumeArg := 0
	if consume {
		consumeArg = 1
	}

	raw, err := consumeScript.Run(ctx, l.client, []string{quotaKey(userID)},
		now.UnixMilli(), limit, period.Milliseconds(), consumeArg).Result()
	if err != nil {
		l.log.Error("quota script failed", slog.String("user_id", userID), slog.Any("error", err))
		return nil, fmt.Errorf("run quota script: %w", err)
	}

	reply, ok := raw.([]interface{})
	if !ok || len(reply) != 5 {
		return nil, fmt.Errorf("unexpected quota script reply %v", raw)
	}

	nums := make([]int64, 5)
	for i, v := range reply {
		n, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("unexpected quota script value %v", v)
		}
		nums[i] = n
	}

	return &Result{
		Consumed:   nums[0] == 1,
		DidReset:   nums[1] == 1,
		Remaining:  int(nums[2]),
		DailyLimit: int(nums[3]),
		ResetAt:    time.UnixMilli(nums[4]),
	}, nil
}

func quotaKey(userID string) string {
	return "quota:" + userID
}
