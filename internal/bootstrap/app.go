package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	appsvc "docqa/internal/app"
	"docqa/internal/ai"
	"docqa/internal/cache"
	"docqa/internal/config"
	"docqa/internal/observability/logging"
	"docqa/internal/observability/metrics"
	"docqa/internal/pkg/pdfextract"
	"docqa/internal/platform/database"
	rabbitmqClient "docqa/internal/platform/rabbitmq"
	redisClient "docqa/internal/platform/redis"
	"docqa/internal/rag"
	"docqa/internal/repository"
	"docqa/internal/resilience"
	"docqa/internal/storage"
	"docqa/internal/worker"
)

// App owns every long-lived dependency. Handlers receive it at startup.
type App struct {
	Config      *config.Config
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	DB          *gorm.DB
	Files       storage.FileStore
	Redis       *redis.Client
	MQConn      *amqp.Connection
	Documents   *appsvc.DocumentService
	IndexWorker *worker.IndexWarmWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return NewWithConfig(ctx, cfg)
}

func NewWithConfig(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	logger := logging.NewJSONLogger(cfg.App.Name, cfg.App.LogLevel)
	slog.SetDefault(logger)

	a := &App{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics.New(cfg.App.Name),
		StartedAt: time.Now(),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.DB, err = OpenDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	docRepo := repository.NewDocumentRepository(a.DB)
	if err := docRepo.Migrate(); err != nil {
		return nil, err
	}

	a.Files, err = newFileStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	var indexCache rag.IndexCache
	if cfg.Redis.Enabled {
		a.Redis, err = redisClient.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		indexCache = cache.NewIndexCache(a.Redis, cfg.IndexTTL())
	}

	// The queue only has a consumer when the warm-up worker runs, and that
	// needs the index cache.
	var events appsvc.EventPublisher = appsvc.NoopPublisher{}
	if cfg.RabbitMQ.Enabled && indexCache == nil {
		logger.Warn("rabbitmq enabled without redis; document events and index warm-up are disabled")
	}
	if cfg.RabbitMQ.Enabled && indexCache != nil {
		a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.IndexQueue)
		if err != nil {
			return nil, err
		}
		events = rabbitmqClient.NewEventPublisher(a.MQConn, cfg.RabbitMQ.IndexQueue)
	}

	llm := ai.NewOpenAICompatibleClient(
		ai.ChatConfig{BaseURL: cfg.LLM.BaseURL, APIKey: cfg.LLM.APIKey, Model: cfg.LLM.Model},
		ai.EmbeddingConfig{BaseURL: cfg.LLM.BaseURL, APIKey: cfg.LLM.APIKey, Model: cfg.LLM.EmbeddingModel},
		cfg.LLMTimeout(),
		resilience.NewExecutor(resilienceConfig(cfg.Resilience)),
	)

	pipeline := rag.NewPipeline(pdfextract.Extractor{}, llm, indexCache, rag.PipelineConfig{
		ChunkSize:      cfg.RAG.ChunkSize,
		ChunkOverlap:   cfg.RAG.ChunkOverlap,
		BatchSize:      cfg.RAG.EmbeddingBatchSize,
		EmbeddingModel: llm.EmbeddingModel(),
	}, logger, a.Metrics)
	engine := rag.NewEngine(llm, llm, cfg.RAG.TopK, a.Metrics)

	a.Documents = appsvc.NewDocumentService(docRepo, a.Files, pipeline, engine, appsvc.DocumentServiceOptions{
		MaxUploadBytes: cfg.MaxUploadBytes(),
		Events:         events,
		Logger:         logger,
		Metrics:        a.Metrics,
	})

	if a.MQConn != nil {
		a.IndexWorker = worker.NewIndexWarmWorker(a.MQConn, a.Files, pipeline, cfg.RabbitMQ.IndexQueue, logger)
		if err := a.IndexWorker.Start(ctx); err != nil {
			return nil, fmt.Errorf("start index worker failed: %w", err)
		}
	}

	logger.Info("app initialised",
		"db_driver", cfg.Database.Driver,
		"storage_driver", cfg.Storage.Driver,
		"redis", cfg.Redis.Enabled,
		"rabbitmq", a.MQConn != nil,
	)
	return a, nil
}

// OpenDatabase connects using the configured driver without migrating.
func OpenDatabase(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	return database.New(ctx, cfg.Database.Driver, cfg.DSN())
}

func newFileStore(ctx context.Context, cfg config.StorageConfig) (storage.FileStore, error) {
	switch cfg.Driver {
	case "minio":
		return storage.NewMinIO(ctx, storage.MinIOOptions{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
		})
	case "", "local":
		return storage.NewLocalFS(cfg.LocalDir)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

func resilienceConfig(c config.ResilienceConfig) resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:        c.RetryMaxAttempts,
		RetryInitialBackoff:     time.Duration(c.RetryInitialBackoffMS) * time.Millisecond,
		RetryMaxBackoff:         time.Duration(c.RetryMaxBackoffMS) * time.Millisecond,
		RetryMultiplier:         c.RetryMultiplier,
		BreakerEnabled:          c.BreakerEnabled,
		BreakerMinRequests:      uint32(c.BreakerMinRequests),
		BreakerFailureRatio:     c.BreakerFailureRatio,
		BreakerOpenTimeout:      time.Duration(c.BreakerOpenTimeoutSec) * time.Second,
		BreakerHalfOpenMaxCalls: uint32(c.BreakerHalfOpenMaxCalls),
	}
}

func (a *App) Close() error {
	var errs []error
	if a.IndexWorker != nil {
		a.IndexWorker.Close()
	}
	if a.MQConn != nil && !a.MQConn.IsClosed() {
		if err := a.MQConn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close rabbitmq: %w", err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if err := database.Close(a.DB); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	return errors.Join(errs...)
}
