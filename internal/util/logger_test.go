package util

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSampleExceptSecurity(t *testing.T) {
	t.Run("should keep every security event during a burst", func(t *testing.T) {
		req := require.New(t)
		core, logs := observer.New(zapcore.InfoLevel)
		logger := zap.New(SampleExceptSecurity(core)).With(zap.String("service", "participant-gate"))
		security := logger.Named(SecurityLogger)

		for i := 0; i < 300; i++ {
			logger.Warn("Download refused")
			security.Error("Security event", zap.Int("n", i))
		}

		req.Equal(300, logs.FilterMessage("Security event").Len())
		req.Less(logs.FilterMessage("Download refused").Len(), 300)
	})

	t.Run("should exempt nested security loggers", func(t *testing.T) {
		req := require.New(t)
		core, logs := observer.New(zapcore.InfoLevel)
		security := zap.New(SampleExceptSecurity(core)).Named("gate").Named(SecurityLogger)

		for i := 0; i < 250; i++ {
			security.Warn("Security event")
		}

		req.Equal(250, logs.Len())
	})

	t.Run("should respect the wrapped level", func(t *testing.T) {
		req := require.New(t)
		core, logs := observer.New(zapcore.WarnLevel)
		logger := zap.New(SampleExceptSecurity(core)).Named(SecurityLogger)

		logger.Info("Security event")
		logger.Warn("Security event")

		req.Equal(1, logs.Len())
	})
}
