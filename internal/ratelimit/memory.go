package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"participant-gate/internal/bucketing"
	"participant-gate/internal/models"
	"participant-gate/internal/util"
)

type trackedState struct {
	models.AttemptState
	touched time.Time
}

type shard struct {
	mu     sync.Mutex
	states map[string]*trackedState
}

// MemoryTracker keeps attempt state in process memory, split over shards
// so unrelated clients do not contend for one lock.
type MemoryTracker struct {
	policy  Policy
	shards  []*shard
	buckets *bucketing.BucketingManager
	clock   util.Clock
	logger  *zap.Logger
}

func NewMemoryTracker(policy Policy, buckets *bucketing.BucketingManager, clock util.Clock, logger *zap.Logger) *MemoryTracker {
	shards := make([]*shard, buckets.Buckets())
	for i := range shards {
		shards[i] = &shard{states: make(map[string]*trackedState)}
	}
	return &MemoryTracker{
		policy:  policy,
		shards:  shards,
		buckets: buckets,
		clock:   clock.OrNow(),
		logger:  logger,
	}
}

func (t *MemoryTracker) shardFor(clientID string) *shard {
	return t.shards[t.buckets.Bucket(clientID)]
}

func (t *MemoryTracker) Check(_ context.Context, clientID string) (LockState, error) {
	s := t.shardFor(clientID)
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[clientID]
	if !ok {
		return LockState{Status: Allowed, Remaining: t.policy.MaxAttempts}, nil
	}
	now := t.clock()
	ls := t.policy.Check(&st.AttemptState, now)
	if st.FailCount == 0 && st.LockoutUntil.IsZero() {
		delete(s.states, clientID)
	}
	return ls, nil
}

func (t *MemoryTracker) Record(_ context.Context, clientID string, success bool) (LockState, error) {
	s := t.shardFor(clientID)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := t.clock()
	st, ok := s.states[clientID]
	if !ok {
		st = &trackedState{}
	}
	ls := t.policy.Apply(&st.AttemptState, now, success)
	st.touched = now

	if st.FailCount == 0 && st.LockoutUntil.IsZero() {
		delete(s.states, clientID)
	} else {
		s.states[clientID] = st
	}
	return ls, nil
}

// Sweep drops state that is no longer locked and has been idle for
// longer than idle. It returns the number of clients removed.
func (t *MemoryTracker) Sweep(idle time.Duration) int {
	now := t.clock()
	removed := 0
	for _, s := range t.shards {
		s.mu.Lock()
		for id, st := range s.states {
			if st.Locked(now) {
				continue
			}
			if !st.LockoutUntil.IsZero() || now.Sub(st.touched) >= idle {
				delete(s.states, id)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Run sweeps every interval until ctx is cancelled.
func (t *MemoryTracker) Run(ctx context.Context, interval, idle time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := t.Sweep(idle); n > 0 {
				t.logger.Debug("Swept idle attempt state", util.Int("clients", n))
			}
		}
	}
}

func (t *MemoryTracker) Len() int {
	n := 0
	for _, s := range t.shards {
		s.mu.Lock()
		n += len(s.states)
		s.mu.Unlock()
	}
	return n
}
