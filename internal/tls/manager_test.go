package tls

import (
	"crypto/tls"
	"crypto/x509"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"participant-gate/internal/config"
)

func TestTLSManager(t *testing.T) {
	t.Run("should generate and reuse a development certificate", func(t *testing.T) {
		req := require.New(t)
		dir := filepath.Join(t.TempDir(), "certs")
		m, err := NewTLSManager(config.ServerConfig{Domain: "gate.local", AutoCertDir: dir}, false, zap.NewNop())
		req.NoError(err)

		first, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: "gate.local"})
		req.NoError(err)
		second, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: "gate.local"})
		req.NoError(err)
		req.Same(first, second)

		leaf, err := x509.ParseCertificate(first.Certificate[0])
		req.NoError(err)
		req.NoError(leaf.VerifyHostname("gate.local"))
		req.NoError(leaf.VerifyHostname("127.0.0.1"))

		reloaded, err := NewDevCertGenerator(dir, zap.NewNop()).GenerateCert([]string{"gate.local"})
		req.NoError(err)
		req.Equal(first.Certificate[0], reloaded.Certificate[0])
	})

	t.Run("should refuse to self-sign in production", func(t *testing.T) {
		req := require.New(t)
		m, err := NewTLSManager(config.ServerConfig{Domain: "gate.example", AutoCertDir: t.TempDir()}, true, zap.NewNop())
		req.NoError(err)

		_, err = m.GetCertificate(&tls.ClientHelloInfo{ServerName: "gate.example"})

		req.Error(err)
	})

	t.Run("should enforce TLS 1.2 or newer", func(t *testing.T) {
		req := require.New(t)
		m, err := NewTLSManager(config.ServerConfig{AutoCertDir: t.TempDir()}, false, zap.NewNop())
		req.NoError(err)

		req.Equal(uint16(tls.VersionTLS12), m.GetTLSConfig().MinVersion)
	})
}
