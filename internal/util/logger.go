package util

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"participant-gate/internal/config"
)

// SecurityLogger names the logger for security events. Entries from it are
// never sampled away.
const SecurityLogger = "security"

var (
	globalLogger *zap.Logger
	once         sync.Once
)

// Init builds the process logger once. Production gets sampled JSON with
// ISO8601 timestamps, everything else a colored console encoder.
func Init(environment string, logging config.LoggingConfig) *zap.Logger {
	once.Do(func() {
		var cfg zap.Config

		if environment == config.EnvProduction {
			cfg = zap.NewProductionConfig()
			cfg.EncoderConfig.TimeKey = "timestamp"
			cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
			cfg.DisableStacktrace = true
			cfg.Sampling = nil
		} else {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		cfg.Level = zap.NewAtomicLevelAt(parseLogLevel(logging.Level))

		if logging.Format == "json" {
			cfg.Encoding = "json"
		} else {
			cfg.Encoding = "console"
		}

		cfg.OutputPaths = []string{"stdout"}
		cfg.ErrorOutputPaths = []string{"stderr"}

		opts := []zap.Option{zap.AddCaller()}
		if environment == config.EnvProduction {
			opts = append(opts, zap.WrapCore(SampleExceptSecurity))
		}
		logger, err := cfg.Build(opts...)
		if err != nil {
			panic("failed to initialize logger: " + err.Error())
		}
		globalLogger = logger.With(zap.String("service", "participant-gate"))
		zap.ReplaceGlobals(globalLogger)
	})

	return globalLogger
}

// SampleExceptSecurity samples core at 100 entries per second and message,
// then every 100th, except entries from the SecurityLogger.
func SampleExceptSecurity(core zapcore.Core) zapcore.Core {
	return &securityExemptCore{
		sampled: zapcore.NewSamplerWithOptions(core, time.Second, 100, 100),
		raw:     core,
	}
}

type securityExemptCore struct {
	sampled zapcore.Core
	raw     zapcore.Core
}

func isSecurityEntry(ent zapcore.Entry) bool {
	return ent.LoggerName == SecurityLogger || strings.HasSuffix(ent.LoggerName, "."+SecurityLogger)
}

func (c *securityExemptCore) Enabled(level zapcore.Level) bool {
	return c.raw.Enabled(level)
}

func (c *securityExemptCore) With(fields []zapcore.Field) zapcore.Core {
	return &securityExemptCore{sampled: c.sampled.With(fields), raw: c.raw.With(fields)}
}

func (c *securityExemptCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if isSecurityEntry(ent) {
		return c.raw.Check(ent, ce)
	}
	return c.sampled.Check(ent, ce)
}

func (c *securityExemptCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return c.raw.Write(ent, fields)
}

func (c *securityExemptCore) Sync() error {
	return c.raw.Sync()
}

// Get returns the process logger, initialising a production one if Init was
// never called.
func Get() *zap.Logger {
	if globalLogger == nil {
		return Init(config.EnvProduction, config.LoggingConfig{Level: "info", Format: "json"})
	}
	return globalLogger
}

// Sync flushes buffered entries.
func Sync() {
	if globalLogger != nil {
		_ = globalLogger.Sync()
	}
}

func parseLogLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func Info(msg string, fields ...zap.Field) {
	Get().WithOptions(zap.AddCallerSkip(1)).Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	Get().WithOptions(zap.AddCallerSkip(1)).Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	Get().WithOptions(zap.AddCallerSkip(1)).Error(msg, fields...)
}

// Field helpers keep call sites free of a direct zap import.

func String(key, value string) zap.Field {
	return zap.String(key, value)
}

func Strings(key string, values []string) zap.Field {
	return zap.Strings(key, values)
}

func Bool(key string, value bool) zap.Field {
	return zap.Bool(key, value)
}

func Int(key string, value int) zap.Field {
	return zap.Int(key, value)
}

func Int64(key string, value int64) zap.Field {
	return zap.Int64(key, value)
}

func ErrorField(err error) zap.Field {
	return zap.Error(err)
}

func Duration(key string, value time.Duration) zap.Field {
	return zap.Duration(key, value)
}

func Time(key string, value time.Time) zap.Field {
	return zap.Time(key, value)
}
