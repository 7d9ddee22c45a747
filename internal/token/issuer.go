// Package token mints and redeems single-use download tokens.
package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"participant-gate/internal/models"
	"participant-gate/internal/util"
)

// idBytes is the token entropy: 128 bits, 32 hex characters.
const idBytes = 16

// minGrace is the shortest time a store keeps a token past its expiry.
const minGrace = time.Second

var (
	ErrTokenNotFound  = errors.New("token not found")
	ErrTokenCorrupted = errors.New("token payload corrupted")
)

// Store holds issued tokens until they are taken.
type Store interface {
	Put(ctx context.Context, tok models.DownloadToken, ttl time.Duration) error
	// Take removes and returns the token in one step. At most one caller
	// receives a given token.
	Take(ctx context.Context, id string) (models.DownloadToken, error)
}

type Issuer struct {
	store    Store
	lifetime time.Duration
	grace    time.Duration
	clock    util.Clock
}

// NewIssuer returns an issuer whose tokens expire after lifetime. Stores keep
// them for a further grace period, at least minGrace, so a late redemption
// can be told apart from an unknown token.
func NewIssuer(store Store, lifetime, grace time.Duration, clock util.Clock) *Issuer {
	if grace < minGrace {
		grace = minGrace
	}
	return &Issuer{
		store:    store,
		lifetime: lifetime,
		grace:    grace,
		clock:    clock.OrNow(),
	}
}

func (i *Issuer) Issue(ctx context.Context, file string) (models.DownloadToken, error) {
	id, err := NewID()
	if err != nil {
		return models.DownloadToken{}, err
	}
	tok := models.DownloadToken{
		ID:        id,
		File:      file,
		ExpiresAt: i.clock().Add(i.lifetime),
	}
	if err := i.store.Put(ctx, tok, i.lifetime+i.grace); err != nil {
		return models.DownloadToken{}, fmt.Errorf("failed to store download token: %w", err)
	}
	return tok, nil
}

// Take hands the token over to exactly one redeemer.
func (i *Issuer) Take(ctx context.Context, id string) (models.DownloadToken, error) {
	if !ValidID(id) {
		return models.DownloadToken{}, ErrTokenNotFound
	}
	return i.store.Take(ctx, id)
}

// NewID returns a fresh random token id.
func NewID() (string, error) {
	buf := make([]byte, idBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// ValidID reports whether id has the shape of an issued token.
func ValidID(id string) bool {
	if len(id) != idBytes*2 {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
