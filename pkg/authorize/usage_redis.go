package authorize

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisRecordScript bumps the daily and monthly counters atomically.
// KEYS[1] = daily counter key
// KEYS[2] = monthly counter key
// ARGV[1] = daily TTL seconds
// ARGV[2] = monthly TTL seconds
var redisRecordScript = redis.NewScript(`
local d = redis.call("INCR", KEYS[1])
if d == 1 then
    redis.call("EXPIRE", KEYS[1], ARGV[1])
end
local m = redis.call("INCR", KEYS[2])
if m == 1 then
    redis.call("EXPIRE", KEYS[2], ARGV[2])
end
return {d, m}
`)

// RedisWindow keeps denormalized rolling usage counters in Redis for
// deployments that cannot afford a chain replay per authorization.
// Counters self-expire shortly after their UTC window closes.
type RedisWindow struct {
	client *redis.Client
	prefix string
}

// NewRedisWindow creates a window backed by the given Redis server.
func NewRedisWindow(addr, password string, db int) *RedisWindow {
	return &RedisWindow{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		prefix: "mandate:usage",
	}
}

// NewRedisWindowWithClient wraps an existing client, for tests.
func NewRedisWindowWithClient(client *redis.Client) *RedisWindow {
	return &RedisWindow{client: client, prefix: "mandate:usage"}
}

func (w *RedisWindow) keys(delegationID string, at time.Time) (daily, monthly string) {
	ref := at.UTC()
	daily = fmt.Sprintf("%s:%s:d:%s", w.prefix, delegationID, ref.Format("20060102"))
	monthly = fmt.Sprintf("%s:%s:m:%s", w.prefix, delegationID, ref.Format("200601"))
	return daily, monthly
}

func (w *RedisWindow) CountOps(ctx context.Context, delegationID string, at time.Time) (UsageCounts, error) {
	dk, mk := w.keys(delegationID, at)
	vals, err := w.client.MGet(ctx, dk, mk).Result()
	if err != nil {
		return UsageCounts{}, fmt.Errorf("authorize: redis mget: %w", err)
	}

	var counts UsageCounts
	if s, ok := vals[0].(string); ok {
		var n uint32
		fmt.Sscanf(s, "%d", &n)
		counts.Daily = n
	}
	if s, ok := vals[1].(string); ok {
		var n uint32
		fmt.Sscanf(s, "%d", &n)
		counts.Monthly = n
	}
	return counts, nil
}

func (w *RedisWindow) RecordOp(ctx context.Context, delegationID string, at time.Time) error {
	dk, mk := w.keys(delegationID, at)
	// Keep one extra day/month of slack so a verify near the window edge
	// still sees the closing counter.
	err := redisRecordScript.Run(ctx, w.client, []string{dk, mk},
		int((48 * time.Hour).Seconds()),
		int((62 * 24 * time.Hour).Seconds()),
	).Err()
	if err != nil {
		return fmt.Errorf("authorize: redis record: %w", err)
	}
	return nil
}
