package models

import "time"

// AttemptState is the failed-verification history of one client.
// A zero LockoutUntil means the client is not locked out.
type AttemptState struct {
	FailCount    int       `json:"fail_count"`
	LockoutUntil time.Time `json:"lockout_until"`
}

func (s AttemptState) Locked(now time.Time) bool {
	return !s.LockoutUntil.IsZero() && now.Before(s.LockoutUntil)
}
