package factory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"participant-gate/internal/bucketing"
	"participant-gate/internal/client"
	"participant-gate/internal/codestore"
	"participant-gate/internal/config"
	"participant-gate/internal/events"
	"participant-gate/internal/handler"
	"participant-gate/internal/hashing"
	"participant-gate/internal/listing"
	"participant-gate/internal/pathsafe"
	"participant-gate/internal/ratelimit"
	redisrepo "participant-gate/internal/repository/redis"
	"participant-gate/internal/repository/scylla"
	"participant-gate/internal/service"
	"participant-gate/internal/tls"
	"participant-gate/internal/token"
	"participant-gate/internal/util"
)

const eventQueueSize = 256

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	logger     *zap.Logger
	tlsManager *tls.TLSManager

	// Clients
	redisClient   *client.RedisClient
	scyllaClient  *scylla.ScyllaClient
	kafkaProducer *client.KafkaProducer

	bucketingManager *bucketing.BucketingManager

	// Stores
	memoryTracker *ratelimit.MemoryTracker
	tracker       ratelimit.Tracker
	issuer        *token.Issuer
	codeSource    codestore.Source
	recorder      *events.Recorder
	root          *pathsafe.Root
	listing       *listing.Loader

	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
}

// NewFactory loads configuration, initialises the global logger and builds
// every dependency.
func NewFactory() (*Factory, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := util.Init(cfg.Environment, cfg.Logging)
	return New(cfg, logger)
}

// New builds dependencies from an already loaded configuration.
func New(cfg *config.Config, logger *zap.Logger) (*Factory, error) {
	f := &Factory{
		config: cfg,
		logger: logger,
	}

	if cfg.Server.EnableTLS {
		manager, err := tls.NewTLSManager(cfg.Server, cfg.IsProduction(), logger.Named("tls"))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize TLS: %w", err)
		}
		f.tlsManager = manager
	}

	if err := f.initializeClients(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	f.initializeStores()

	logger.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.String("store_backend", cfg.Store.Backend),
		util.String("code_source", cfg.Gate.CodeSource),
		util.Bool("kafka_enabled", f.kafkaProducer != nil),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
	)

	return f, nil
}

// initializeClients connects only the backends the configuration selects.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if f.config.Store.Backend == config.BackendRedis {
		redisClient, err := client.NewRedisClient(f.config.Redis, f.logger.Named("redis"))
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		f.redisClient = redisClient
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("redis health check: %w", err)
		}
	}

	if f.config.Gate.CodeSource == config.CodeSourceScylla {
		scyllaClient, err := scylla.NewScyllaClient(f.config.Scylla, f.logger.Named("scylla"))
		if err != nil {
			return fmt.Errorf("scylla: %w", err)
		}
		f.scyllaClient = scyllaClient
		if err := f.scyllaClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("scylla health check: %w", err)
		}
	}

	if f.config.Kafka.Enabled {
		producer, err := client.NewKafkaProducer(f.config.Kafka, f.logger.Named("kafka"))
		if err != nil {
			f.logger.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
		}
	}

	return nil
}

func (f *Factory) initializeStores() {
	gate := f.config.Gate
	policy := ratelimit.Policy{MaxAttempts: gate.MaxAttempts, Lockout: gate.LockoutDuration}

	f.bucketingManager = bucketing.NewBucketingManager(f.config.Bucketing)

	var tokenStore token.Store
	if f.redisClient != nil {
		f.tracker = redisrepo.NewAttemptCache(f.redisClient, hashing.NewHasher(f.config.Hashing), policy, gate.AttemptStateTTL, nil, f.logger.Named("attempts"))
		tokenStore = redisrepo.NewTokenCache(f.redisClient, f.logger.Named("tokens"))
	} else {
		f.memoryTracker = ratelimit.NewMemoryTracker(policy, f.bucketingManager, nil, f.logger.Named("attempts"))
		f.tracker = f.memoryTracker
		tokenStore = token.NewMemoryStore(gate.TokenLifetime+gate.TokenGrace, gate.SweepInterval)
	}
	f.issuer = token.NewIssuer(tokenStore, gate.TokenLifetime, gate.TokenGrace, nil)

	if f.scyllaClient != nil {
		f.codeSource = scylla.NewCodeRepository(f.scyllaClient, f.logger.Named("codes"))
	} else {
		f.codeSource = codestore.NewFileSource(f.config.CodesPath(), f.logger.Named("codes"))
	}

	var sinks []events.Publisher
	if f.kafkaProducer != nil {
		sinks = append(sinks, events.NewKafkaPublisher(f.kafkaProducer, f.config.Kafka.Topic))
	}
	f.recorder = events.NewRecorder(f.logger.Named(util.SecurityLogger), eventQueueSize, nil, sinks...)

	f.root = pathsafe.NewRoot(gate.PDFDir)
	f.listing = listing.NewLoader(gate.SchoolDataFiles, f.logger.Named("listing"))
}

// ==============================
// Service Factory
// ==============================

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		f.serviceFactory = service.NewServiceFactory(
			f.codeSource,
			f.tracker,
			f.issuer,
			f.root,
			f.recorder,
			nil,
			f.logger,
		)
	}
	return f.serviceFactory
}

// GateHandler builds the HTTP handler for the gate endpoints.
func (f *Factory) GateHandler() *handler.GateHandler {
	services := f.ServiceFactory()
	return handler.NewGateHandler(
		services.VerificationService(),
		services.DownloadService(),
		f.listing,
		f.logger.Named("http"),
	)
}

// Workers returns the background loops to run for the server's lifetime.
func (f *Factory) Workers() []func(ctx context.Context) error {
	workers := []func(ctx context.Context) error{f.recorder.Run}
	if f.memoryTracker != nil {
		workers = append(workers, func(ctx context.Context) error {
			return f.memoryTracker.Run(ctx, f.config.Gate.SweepInterval, f.config.Gate.AttemptStateTTL)
		})
	}
	return workers
}

// ==============================
// Health Checks
// ==============================

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	}
	if f.scyllaClient != nil {
		if err := f.scyllaClient.HealthCheck(ctx); err != nil {
			healthErrors["scylla"] = err
		}
	}
	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}
	if info, err := os.Stat(f.config.Gate.PDFDir); err != nil {
		healthErrors["pdf_dir"] = err
	} else if !info.IsDir() {
		healthErrors["pdf_dir"] = fmt.Errorf("%s is not a directory", f.config.Gate.PDFDir)
	}

	return healthErrors
}

// Ready fails when a required backend is unhealthy. Kafka is optional.
func (f *Factory) Ready(ctx context.Context) error {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	if len(healthErrors) == 0 {
		return nil
	}
	names := make([]string, 0, len(healthErrors))
	for name, err := range healthErrors {
		names = append(names, name+": "+err.Error())
	}
	sort.Strings(names)
	return errors.New(strings.Join(names, "; "))
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		f.logger.Info("Shutting down factory...")

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				f.logger.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				f.logger.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				f.logger.Info("Redis client closed")
			}
		}

		f.logger.Info("Factory shutdown completed")
		_ = f.logger.Sync()
	})

	return nil
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) Logger() *zap.Logger {
	return f.logger
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}
