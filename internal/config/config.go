package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	BackendMemory = "memory"
	BackendRedis  = "redis"

	CodeSourceFile   = "file"
	CodeSourceScylla = "scylla"
)

// Config is the full service configuration, read from the environment
// (optionally seeded from a .env file).
type Config struct {
	Environment string          `envconfig:"ENVIRONMENT" default:"development"`
	Server      ServerConfig    `envconfig:"SERVER"`
	Logging     LoggingConfig   `envconfig:"LOG"`
	Gate        GateConfig      `envconfig:"GATE"`
	Store       StoreConfig     `envconfig:"STORE"`
	Redis       RedisConfig     `envconfig:"REDIS"`
	Scylla      ScyllaConfig    `envconfig:"SCYLLA"`
	Kafka       KafkaConfig     `envconfig:"KAFKA"`
	Bucketing   BucketingConfig `envconfig:"BUCKETING"`
	Hashing     HashingConfig   `envconfig:"HASHING"`
}

type ServerConfig struct {
	Host              string        `envconfig:"HOST" default:""`
	Port              int           `envconfig:"PORT" default:"8080"`
	ReadTimeout       time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout      time.Duration `envconfig:"WRITE_TIMEOUT" default:"120s"`
	IdleTimeout       time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
	RequestTimeout    time.Duration `envconfig:"REQUEST_TIMEOUT" default:"60s"`
	ShutdownTimeout   time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	TrustProxyHeaders bool          `envconfig:"TRUST_PROXY_HEADERS" default:"false"`
	AllowedOrigins    []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	EnableTLS   bool   `envconfig:"ENABLE_TLS" default:"false"`
	TLSPort     int    `envconfig:"TLS_PORT" default:"8443"`
	AutoCert    bool   `envconfig:"AUTOCERT" default:"false"`
	Domain      string `envconfig:"DOMAIN" default:"localhost"`
	CertFile    string `envconfig:"CERT_FILE"`
	KeyFile     string `envconfig:"KEY_FILE"`
	AutoCertDir string `envconfig:"AUTOCERT_DIR" default:"./certs"`
	Email       string `envconfig:"ACME_EMAIL"`
}

type LoggingConfig struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Format string `envconfig:"FORMAT" default:"console"`
}

// GateConfig holds the verification and download limits.
type GateConfig struct {
	PDFDir          string        `envconfig:"PDF_DIR" default:"./pdf_files"`
	DataDir         string        `envconfig:"DATA_DIR" default:"./secure_data"`
	CodesFile       string        `envconfig:"CODES_FILE" default:"verification_codes.json"`
	SchoolDataFiles []string      `envconfig:"SCHOOL_DATA_FILES" default:"data_sekolah_public.json,data_sekolah.json"`
	CodeSource      string        `envconfig:"CODE_SOURCE" default:"file"`
	MaxAttempts     int           `envconfig:"MAX_ATTEMPTS" default:"5"`
	LockoutDuration time.Duration `envconfig:"LOCKOUT_DURATION" default:"5m"`
	TokenLifetime   time.Duration `envconfig:"TOKEN_LIFETIME" default:"5m"`
	TokenGrace      time.Duration `envconfig:"TOKEN_GRACE" default:"10m"`
	AttemptStateTTL time.Duration `envconfig:"ATTEMPT_STATE_TTL" default:"1h"`
	SweepInterval   time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m"`
}

type StoreConfig struct {
	Backend string `envconfig:"BACKEND" default:"memory"`
}

type RedisConfig struct {
	URL       string `envconfig:"URL" default:"redis://localhost:6379/0"`
	Password  string `envconfig:"PASSWORD"`
	DB        int    `envconfig:"DB" default:"0"`
	PoolSize  int    `envconfig:"POOL_SIZE" default:"20"`
	KeyPrefix string `envconfig:"KEY_PREFIX" default:"participant_gate:"`
	CAFile    string `envconfig:"TLS_CA_FILE"`
	CertFile  string `envconfig:"TLS_CERT_FILE"`
	KeyFile   string `envconfig:"TLS_KEY_FILE"`
}

type ScyllaConfig struct {
	Nodes    []string      `envconfig:"NODES" default:"127.0.0.1"`
	Keyspace string        `envconfig:"KEYSPACE" default:"participant_gate"`
	Username string        `envconfig:"USERNAME"`
	Password string        `envconfig:"PASSWORD"`
	Timeout  time.Duration `envconfig:"TIMEOUT" default:"10s"`
	CAFile   string        `envconfig:"TLS_CA_FILE"`
}

type KafkaConfig struct {
	Enabled bool     `envconfig:"ENABLED" default:"false"`
	Brokers []string `envconfig:"BROKERS" default:"localhost:9092"`
	Topic   string   `envconfig:"SECURITY_TOPIC" default:"participant-gate.security"`
}

type BucketingConfig struct {
	AttemptShards int `envconfig:"ATTEMPT_SHARDS" default:"64"`
}

// HashingConfig keys the pseudonymous client ids used in shared stores.
type HashingConfig struct {
	ClientKeySecret string `envconfig:"CLIENT_KEY_SECRET"`
}

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	return FromEnv()
}

// FromEnv parses the environment without touching .env.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the gate cannot run with.
func (c *Config) Validate() error {
	var problems []string

	if c.Gate.MaxAttempts < 1 {
		problems = append(problems, "GATE_MAX_ATTEMPTS must be at least 1")
	}
	if c.Gate.LockoutDuration <= 0 {
		problems = append(problems, "GATE_LOCKOUT_DURATION must be positive")
	}
	if c.Gate.TokenLifetime <= 0 {
		problems = append(problems, "GATE_TOKEN_LIFETIME must be positive")
	}
	if c.Gate.TokenGrace <= 0 {
		problems = append(problems, "GATE_TOKEN_GRACE must be positive")
	}
	if c.Gate.SweepInterval <= 0 {
		problems = append(problems, "GATE_SWEEP_INTERVAL must be positive")
	}
	if strings.TrimSpace(c.Gate.PDFDir) == "" {
		problems = append(problems, "GATE_PDF_DIR is required")
	}
	switch c.Store.Backend {
	case BackendMemory, BackendRedis:
	default:
		problems = append(problems, fmt.Sprintf("unknown STORE_BACKEND %q", c.Store.Backend))
	}
	switch c.Gate.CodeSource {
	case CodeSourceFile, CodeSourceScylla:
	default:
		problems = append(problems, fmt.Sprintf("unknown GATE_CODE_SOURCE %q", c.Gate.CodeSource))
	}
	if c.Bucketing.AttemptShards < 1 {
		problems = append(problems, "BUCKETING_ATTEMPT_SHARDS must be at least 1")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		problems = append(problems, "KAFKA_BROKERS is required when KAFKA_ENABLED=true")
	}
	if c.Server.EnableTLS && !c.Server.AutoCert && (c.Server.CertFile == "") != (c.Server.KeyFile == "") {
		problems = append(problems, "SERVER_CERT_FILE and SERVER_KEY_FILE must be set together")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetServerAddress returns the plain HTTP listen address.
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// CodesPath is the location of the verification code file.
func (c *Config) CodesPath() string {
	if filepath.IsAbs(c.Gate.CodesFile) {
		return c.Gate.CodesFile
	}
	return filepath.Join(c.Gate.DataDir, c.Gate.CodesFile)
}
