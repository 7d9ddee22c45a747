package models

import "time"

// DownloadToken is a single-use credential bound to one PDF at issuance.
type DownloadToken struct {
	ID        string    `json:"-"`
	File      string    `json:"file"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (t DownloadToken) Expired(now time.Time) bool {
	return t.ExpiresAt.Before(now)
}
