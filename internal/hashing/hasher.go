// Package hashing derives stable pseudonymous keys for client identities so
// shared stores never hold raw network addresses.
package hashing

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"

	"participant-gate/internal/config"
)

// keyBytes is the length of a derived client key before hex encoding.
const keyBytes = 16

type Hasher struct {
	secret []byte
}

// NewHasher keys the hash with the configured secret. Replicas sharing a
// store must share the secret. An empty secret yields an unkeyed hash.
func NewHasher(cfg config.HashingConfig) *Hasher {
	secret := []byte(cfg.ClientKeySecret)
	if len(secret) > blake2b.Size {
		sum := blake2b.Sum512(secret)
		secret = sum[:]
	}
	return &Hasher{secret: secret}
}

// ClientKey maps a client identity to a fixed-length hex key.
func (h *Hasher) ClientKey(clientID string) string {
	mac, err := blake2b.New256(h.secret)
	if err != nil {
		// Only reachable with a key over 64 bytes, which NewHasher prevents.
		panic(err)
	}
	mac.Write([]byte(clientID))
	return hex.EncodeToString(mac.Sum(nil)[:keyBytes])
}
