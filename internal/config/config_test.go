package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFromEnv(t *testing.T) {
	t.Run("should apply the default gate limits", func(t *testing.T) {
		req := require.New(t)

		cfg, err := FromEnv()

		req.NoError(err)
		req.Equal(5, cfg.Gate.MaxAttempts)
		req.Equal(5*time.Minute, cfg.Gate.LockoutDuration)
		req.Equal(5*time.Minute, cfg.Gate.TokenLifetime)
		req.Equal(BackendMemory, cfg.Store.Backend)
		req.Equal(CodeSourceFile, cfg.Gate.CodeSource)
		req.Equal([]string{"data_sekolah_public.json", "data_sekolah.json"}, cfg.Gate.SchoolDataFiles)
		req.False(cfg.Server.TrustProxyHeaders)
		req.Equal(":8080", cfg.GetServerAddress())
		req.Empty(cfg.Hashing.ClientKeySecret)
	})

	t.Run("should read prefixed overrides", func(t *testing.T) {
		req := require.New(t)
		t.Setenv("GATE_MAX_ATTEMPTS", "3")
		t.Setenv("GATE_LOCKOUT_DURATION", "90s")
		t.Setenv("STORE_BACKEND", "redis")
		t.Setenv("SERVER_PORT", "9000")
		t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
		t.Setenv("HASHING_CLIENT_KEY_SECRET", "pepper")

		cfg, err := FromEnv()

		req.NoError(err)
		req.Equal(3, cfg.Gate.MaxAttempts)
		req.Equal(90*time.Second, cfg.Gate.LockoutDuration)
		req.Equal(BackendRedis, cfg.Store.Backend)
		req.Equal(":9000", cfg.GetServerAddress())
		req.Equal([]string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
		req.Equal("pepper", cfg.Hashing.ClientKeySecret)
	})

	t.Run("should reject an unknown store backend", func(t *testing.T) {
		req := require.New(t)
		t.Setenv("STORE_BACKEND", "memcached")

		_, err := FromEnv()

		req.ErrorContains(err, "STORE_BACKEND")
	})

	t.Run("should reject a token grace that would drop tokens at expiry", func(t *testing.T) {
		req := require.New(t)
		for _, grace := range []string{"0s", "-1m"} {
			t.Setenv("GATE_TOKEN_GRACE", grace)

			_, err := FromEnv()

			req.ErrorContains(err, "GATE_TOKEN_GRACE must be positive", grace)
		}
	})

	t.Run("should reject a zero attempt threshold", func(t *testing.T) {
		req := require.New(t)
		t.Setenv("GATE_MAX_ATTEMPTS", "0")

		_, err := FromEnv()

		req.ErrorContains(err, "GATE_MAX_ATTEMPTS")
	})
}

func TestCodesPath(t *testing.T) {
	req := require.New(t)
	cfg := &Config{Gate: GateConfig{DataDir: "secure", CodesFile: "codes.json"}}

	req.Equal(filepath.Join("secure", "codes.json"), cfg.CodesPath())

	cfg.Gate.CodesFile = "/etc/codes.json"
	req.Equal("/etc/codes.json", cfg.CodesPath())
}
