// Package ratelimit tracks failed verification attempts per client and
// locks a client out once it reaches the attempt threshold.
package ratelimit

import (
	"context"
	"time"

	"participant-gate/internal/models"
)

type Status int

const (
	Allowed Status = iota
	Denied
	Locked
)

func (s Status) String() string {
	switch s {
	case Allowed:
		return "allowed"
	case Denied:
		return "denied"
	case Locked:
		return "locked"
	default:
		return "unknown"
	}
}

// LockState is the tracker's verdict for one check or attempt.
type LockState struct {
	Status Status
	// Remaining is the number of failures left before lockout (Denied).
	Remaining int
	// RetryAfter is the time left on the lockout (Locked).
	RetryAfter time.Duration
	// Triggered is set on the failure that started the lockout.
	Triggered bool
}

// Tracker is the attempt store contract. Implementations must serialise
// the read-modify-write of one client's state.
type Tracker interface {
	// Check evaluates the lock state without recording an attempt.
	Check(ctx context.Context, clientID string) (LockState, error)
	// Record applies one verification outcome.
	Record(ctx context.Context, clientID string, success bool) (LockState, error)
}

// Policy is the attempt threshold and lockout length.
type Policy struct {
	MaxAttempts int
	Lockout     time.Duration
}

// expire clears an elapsed lockout in place and reports an active one.
func expire(state *models.AttemptState, now time.Time) (LockState, bool) {
	if state.LockoutUntil.IsZero() {
		return LockState{}, false
	}
	if now.Before(state.LockoutUntil) {
		return LockState{Status: Locked, RetryAfter: state.LockoutUntil.Sub(now)}, true
	}
	*state = models.AttemptState{}
	return LockState{}, false
}

// Check returns the current verdict, resetting an elapsed lockout.
func (p Policy) Check(state *models.AttemptState, now time.Time) LockState {
	if ls, locked := expire(state, now); locked {
		return ls
	}
	return LockState{Status: Allowed, Remaining: p.MaxAttempts - state.FailCount}
}

// Apply records one attempt on state.
func (p Policy) Apply(state *models.AttemptState, now time.Time, success bool) LockState {
	if ls, locked := expire(state, now); locked {
		return ls
	}
	if success {
		*state = models.AttemptState{}
		return LockState{Status: Allowed, Remaining: p.MaxAttempts}
	}

	state.FailCount++
	if state.FailCount >= p.MaxAttempts {
		state.LockoutUntil = now.Add(p.Lockout)
		return LockState{Status: Locked, RetryAfter: p.Lockout, Triggered: true}
	}
	return LockState{Status: Denied, Remaining: p.MaxAttempts - state.FailCount}
}
