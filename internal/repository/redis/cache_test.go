package redis

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"participant-gate/internal/client"
	"participant-gate/internal/config"
	"participant-gate/internal/hashing"
	"participant-gate/internal/models"
	"participant-gate/internal/ratelimit"
	"participant-gate/internal/token"
	"participant-gate/internal/util"
)

var testHasher = hashing.NewHasher(config.HashingConfig{ClientKeySecret: "test"})

// newTestClient connects to REDIS_TEST_URL under a unique key prefix.
func newTestClient(t *testing.T) *client.RedisClient {
	t.Helper()
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	c, err := client.NewRedisClient(config.RedisConfig{
		URL:       url,
		PoolSize:  8,
		KeyPrefix: "gate_test:" + uuid.NewString() + ":",
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestParseAttemptReply(t *testing.T) {
	t.Run("should decode a lockout reply", func(t *testing.T) {
		req := require.New(t)

		ls, err := parseAttemptReply([]interface{}{int64(2), int64(0), int64(300000), int64(1)})

		req.NoError(err)
		req.Equal(ratelimit.Locked, ls.Status)
		req.Equal(5*time.Minute, ls.RetryAfter)
		req.True(ls.Triggered)
	})

	t.Run("should reject a malformed reply", func(t *testing.T) {
		req := require.New(t)

		_, err := parseAttemptReply([]interface{}{int64(1), "x"})
		req.Error(err)

		_, err = parseAttemptReply("OK")
		req.Error(err)
	})
}

func TestAttemptCache(t *testing.T) {
	ctx := context.Background()
	policy := ratelimit.Policy{MaxAttempts: 5, Lockout: 5 * time.Minute}

	t.Run("should lock after five failures and release after the lockout", func(t *testing.T) {
		req := require.New(t)
		clock := util.NewManualClock(time.Now())
		cache := NewAttemptCache(newTestClient(t), testHasher, policy, time.Hour, clock.Now, zap.NewNop())

		for want := 4; want >= 1; want-- {
			ls, err := cache.Record(ctx, "10.0.0.1", false)
			req.NoError(err)
			req.Equal(ratelimit.Denied, ls.Status)
			req.Equal(want, ls.Remaining)
		}

		ls, err := cache.Record(ctx, "10.0.0.1", false)
		req.NoError(err)
		req.Equal(ratelimit.Locked, ls.Status)
		req.True(ls.Triggered)

		clock.Advance(299 * time.Second)
		ls, err = cache.Record(ctx, "10.0.0.1", true)
		req.NoError(err)
		req.Equal(ratelimit.Locked, ls.Status)
		req.Equal(time.Second, ls.RetryAfter)

		clock.Advance(time.Second)
		ls, err = cache.Check(ctx, "10.0.0.1")
		req.NoError(err)
		req.Equal(ratelimit.Allowed, ls.Status)
		req.Equal(5, ls.Remaining)
	})

	t.Run("should serialise concurrent failures for one client", func(t *testing.T) {
		req := require.New(t)
		cache := NewAttemptCache(newTestClient(t), testHasher, policy, time.Hour, nil, zap.NewNop())

		var denied, triggered atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ls, err := cache.Record(ctx, "10.0.0.2", false)
				if err != nil {
					return
				}
				if ls.Status == ratelimit.Denied {
					denied.Add(1)
				}
				if ls.Triggered {
					triggered.Add(1)
				}
			}()
		}
		wg.Wait()

		req.Equal(int32(4), denied.Load())
		req.Equal(int32(1), triggered.Load())
	})
}

func TestTokenCache(t *testing.T) {
	ctx := context.Background()

	t.Run("should redeem a token exactly once", func(t *testing.T) {
		req := require.New(t)
		cache := NewTokenCache(newTestClient(t), zap.NewNop())
		id, err := token.NewID()
		req.NoError(err)
		tok := models.DownloadToken{ID: id, File: "sch_a.pdf", ExpiresAt: time.Now().Add(5 * time.Minute).UTC()}

		req.NoError(cache.Put(ctx, tok, 15*time.Minute))

		got, err := cache.Take(ctx, id)
		req.NoError(err)
		req.Equal(tok.File, got.File)
		req.True(tok.ExpiresAt.Equal(got.ExpiresAt))
		req.Equal(id, got.ID)

		_, err = cache.Take(ctx, id)
		req.ErrorIs(err, token.ErrTokenNotFound)
	})
}
