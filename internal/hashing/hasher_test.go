package hashing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"participant-gate/internal/config"
)

func TestHasher(t *testing.T) {
	t.Run("should be stable for one secret and differ across secrets", func(t *testing.T) {
		req := require.New(t)
		a := NewHasher(config.HashingConfig{ClientKeySecret: "alpha"})
		b := NewHasher(config.HashingConfig{ClientKeySecret: "beta"})

		req.Equal(a.ClientKey("10.0.0.1"), a.ClientKey("10.0.0.1"))
		req.NotEqual(a.ClientKey("10.0.0.1"), a.ClientKey("10.0.0.2"))
		req.NotEqual(a.ClientKey("10.0.0.1"), b.ClientKey("10.0.0.1"))
	})

	t.Run("should never expose the client id", func(t *testing.T) {
		req := require.New(t)
		h := NewHasher(config.HashingConfig{})

		key := h.ClientKey("203.0.113.7")

		req.Len(key, 32)
		req.NotContains(key, "203")
	})

	t.Run("should accept secrets longer than the hash key limit", func(t *testing.T) {
		req := require.New(t)
		h := NewHasher(config.HashingConfig{ClientKeySecret: strings.Repeat("s", 200)})

		req.Len(h.ClientKey("unknown"), 32)
	})
}
