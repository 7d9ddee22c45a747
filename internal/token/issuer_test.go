package token

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"participant-gate/internal/util"
)

func newTestIssuer(clock *util.ManualClock) (*Issuer, *MemoryStore) {
	store := NewMemoryStore(15*time.Minute, time.Minute)
	return NewIssuer(store, 5*time.Minute, 10*time.Minute, clock.Now), store
}

func TestIssuer(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 8, 1, 9, 0, 0, 0, time.UTC)

	t.Run("should mint 128-bit hex ids bound to the file", func(t *testing.T) {
		req := require.New(t)
		issuer, _ := newTestIssuer(util.NewManualClock(start))

		tok, err := issuer.Issue(ctx, "sch_a.pdf")

		req.NoError(err)
		req.Len(tok.ID, 32)
		req.True(ValidID(tok.ID))
		req.Equal("sch_a.pdf", tok.File)
		req.Equal(start.Add(5*time.Minute), tok.ExpiresAt)
	})

	t.Run("should never repeat an id", func(t *testing.T) {
		req := require.New(t)
		issuer, _ := newTestIssuer(util.NewManualClock(start))

		seen := make(map[string]struct{})
		for i := 0; i < 1000; i++ {
			tok, err := issuer.Issue(ctx, "sch_a.pdf")
			req.NoError(err)
			_, dup := seen[tok.ID]
			req.False(dup)
			seen[tok.ID] = struct{}{}
		}
	})

	t.Run("should hand a token out only once", func(t *testing.T) {
		req := require.New(t)
		issuer, store := newTestIssuer(util.NewManualClock(start))
		tok, err := issuer.Issue(ctx, "sch_a.pdf")
		req.NoError(err)

		got, err := issuer.Take(ctx, tok.ID)
		req.NoError(err)
		req.Equal(tok.File, got.File)
		req.Equal(tok.ExpiresAt, got.ExpiresAt)

		_, err = issuer.Take(ctx, tok.ID)
		req.ErrorIs(err, ErrTokenNotFound)
		req.Zero(store.Len())
	})

	t.Run("should keep an expired token so the caller can report expiry", func(t *testing.T) {
		req := require.New(t)
		clock := util.NewManualClock(start)
		issuer, _ := newTestIssuer(clock)
		tok, err := issuer.Issue(ctx, "sch_a.pdf")
		req.NoError(err)

		clock.Advance(301 * time.Second)
		got, err := issuer.Take(ctx, tok.ID)

		req.NoError(err)
		req.True(got.Expired(clock.Now()))
	})

	t.Run("should outlive expiry in the store even without a configured grace", func(t *testing.T) {
		req := require.New(t)
		issuer := NewIssuer(NewMemoryStore(time.Minute, time.Minute), 50*time.Millisecond, 0, nil)
		tok, err := issuer.Issue(ctx, "sch_a.pdf")
		req.NoError(err)

		time.Sleep(60 * time.Millisecond)
		got, err := issuer.Take(ctx, tok.ID)

		req.NoError(err)
		req.True(got.Expired(time.Now()))
	})

	t.Run("should reject malformed ids without touching the store", func(t *testing.T) {
		req := require.New(t)
		issuer, _ := newTestIssuer(util.NewManualClock(start))

		for _, id := range []string{"", "abc", "ZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZ", "../../etc/passwd"} {
			_, err := issuer.Take(ctx, id)
			req.ErrorIs(err, ErrTokenNotFound)
		}
	})

	t.Run("should give one winner among concurrent redeemers", func(t *testing.T) {
		req := require.New(t)
		issuer, _ := newTestIssuer(util.NewManualClock(start))
		tok, err := issuer.Issue(ctx, "sch_a.pdf")
		req.NoError(err)

		var wins, misses atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := issuer.Take(ctx, tok.ID); err == nil {
					wins.Add(1)
				} else {
					misses.Add(1)
				}
			}()
		}
		wg.Wait()

		req.Equal(int32(1), wins.Load())
		req.Equal(int32(31), misses.Load())
	})
}

func TestValidID(t *testing.T) {
	req := require.New(t)

	req.True(ValidID("0123456789abcdef0123456789abcdef"))
	req.False(ValidID("0123456789ABCDEF0123456789ABCDEF"))
	req.False(ValidID("0123456789abcdef0123456789abcde"))
	req.False(ValidID("0123456789abcdef0123456789abcdeg"))
}
