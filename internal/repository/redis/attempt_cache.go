package redis

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"participant-gate/internal/client"
	"participant-gate/internal/hashing"
	"participant-gate/internal/ratelimit"
	"participant-gate/internal/util"
)

const attemptPrefix = "gate_attempts"

// attemptScript applies one check or attempt to a client's hash atomically.
// Times are unix milliseconds supplied by the caller.
//
// KEYS[1] attempt hash
// ARGV    now, max attempts, lockout ms, idle ttl ms, mode (check|success|failure)
// Returns {status, remaining, retry ms, triggered}.
var attemptScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local max = tonumber(ARGV[2])
local lockout = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])
local mode = ARGV[5]

local fails = tonumber(redis.call('HGET', key, 'fail_count') or '0')
local lock_until = tonumber(redis.call('HGET', key, 'lock_until') or '0')

if lock_until > 0 then
  if now < lock_until then
    return {2, 0, lock_until - now, 0}
  end
  redis.call('DEL', key)
  fails = 0
end

if mode == 'check' then
  return {0, max - fails, 0, 0}
end

if mode == 'success' then
  redis.call('DEL', key)
  return {0, max, 0, 0}
end

fails = fails + 1
if fails >= max then
  redis.call('HSET', key, 'fail_count', fails, 'lock_until', now + lockout)
  redis.call('PEXPIRE', key, math.max(ttl, lockout))
  return {2, 0, lockout, 1}
end

redis.call('HSET', key, 'fail_count', fails)
redis.call('PEXPIRE', key, ttl)
return {1, max - fails, 0, 0}
`)

// AttemptCache is the Redis-backed attempt tracker. Every replica that
// shares the Redis instance sees the same counters and lockouts. Keys carry
// a hashed client id, never the address itself.
type AttemptCache struct {
	client  *client.RedisClient
	hasher  *hashing.Hasher
	policy  ratelimit.Policy
	idleTTL time.Duration
	clock   util.Clock
	logger  *zap.Logger
}

func NewAttemptCache(c *client.RedisClient, hasher *hashing.Hasher, policy ratelimit.Policy, idleTTL time.Duration, clock util.Clock, logger *zap.Logger) *AttemptCache {
	return &AttemptCache{
		client:  c,
		hasher:  hasher,
		policy:  policy,
		idleTTL: idleTTL,
		clock:   clock.OrNow(),
		logger:  logger,
	}
}

func (c *AttemptCache) Check(ctx context.Context, clientID string) (ratelimit.LockState, error) {
	return c.run(ctx, clientID, "check")
}

func (c *AttemptCache) Record(ctx context.Context, clientID string, success bool) (ratelimit.LockState, error) {
	if success {
		return c.run(ctx, clientID, "success")
	}
	return c.run(ctx, clientID, "failure")
}

func (c *AttemptCache) run(ctx context.Context, clientID, mode string) (ratelimit.LockState, error) {
	key := c.client.Key(attemptPrefix, c.hasher.ClientKey(clientID))
	res, err := c.client.RunScript(ctx, attemptScript, []string{key},
		c.clock().UnixMilli(),
		c.policy.MaxAttempts,
		c.policy.Lockout.Milliseconds(),
		c.idleTTL.Milliseconds(),
		mode,
	)
	if err != nil {
		c.logger.Error("Attempt script failed",
			util.String("client_id", clientID),
			util.String("mode", mode),
			util.ErrorField(err),
		)
		return ratelimit.LockState{}, fmt.Errorf("failed to update attempt state: %w", err)
	}
	return parseAttemptReply(res)
}

func parseAttemptReply(res interface{}) (ratelimit.LockState, error) {
	vals, ok := res.([]interface{})
	if !ok || len(vals) != 4 {
		return ratelimit.LockState{}, fmt.Errorf("unexpected attempt script reply %v", res)
	}
	nums := make([]int64, len(vals))
	for i, v := range vals {
		n, ok := v.(int64)
		if !ok {
			return ratelimit.LockState{}, fmt.Errorf("unexpected attempt script value %v", v)
		}
		nums[i] = n
	}
	return ratelimit.LockState{
		Status:     ratelimit.Status(nums[0]),
		Remaining:  int(nums[1]),
		RetryAfter: time.Duration(nums[2]) * time.Millisecond,
		Triggered:  nums[3] == 1,
	}, nil
}
