// Package bootstrap assembles the stores, queue and orchestrator shared by
// the api and worker binaries from an infra.Config.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"spritegen/internal/adapter/memory"
	"spritegen/internal/adapter/repo"
	"spritegen/internal/domain"
	"spritegen/internal/infra"
	"spritegen/internal/pipeline"
	"spritegen/internal/providers/replicate"
	"spritegen/internal/retry"
	"spritegen/internal/scheduler"
	"spritegen/internal/storage"
)

// Stores groups the persistence contracts for the configured driver.
type Stores struct {
	Jobs     domain.JobStore
	Ledger   domain.Ledger
	Entities domain.EntityStore

	ping  func(ctx context.Context) error
	close func()
}

// Ping checks the backing database, if any.
func (s *Stores) Ping(ctx context.Context) error {
	if s == nil || s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

// Close releases the database pool, if any.
func (s *Stores) Close() {
	if s != nil && s.close != nil {
		s.close()
	}
}

// OpenStores connects to Postgres and applies migrations, or returns an
// in-memory store when STORE_DRIVER=memory.
func OpenStores(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*Stores, error) {
	if cfg.StoreDriver == infra.DriverMemory {
		store := memory.NewStore(memory.WithStartingBalance(cfg.StartingCredits))
		logger.Warn().Msg("bootstrap: using in-memory store, data is lost on restart")
		return &Stores{Jobs: store, Ledger: store, Entities: store}, nil
	}

	if err := infra.RunMigrations(cfg.DatabaseURL); err != nil {
		return nil, err
	}
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	runner := infra.NewSQLRunner(pool, logger)
	return &Stores{
		Jobs:     repo.NewJobStore(runner),
		Ledger:   repo.NewLedger(runner, cfg.StartingCredits),
		Entities: repo.NewEntityStore(runner),
		ping:     pool.Ping,
		close:    pool.Close,
	}, nil
}

// OpenQueue connects the Redis task queue.
func OpenQueue(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*scheduler.RedisQueue, *redis.Client, error) {
	client, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	queue, err := scheduler.NewRedisQueue(scheduler.RedisOptions{
		Client: client,
		Name:   cfg.QueueName,
		Logger: &logger,
	})
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return queue, client, nil
}

// OpenFileStore prepares the local image store under cfg.StoragePath.
func OpenFileStore(cfg *infra.Config) (*storage.FileStore, error) {
	path := cfg.StoragePath
	if path == "" {
		path = "./storage"
	}
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	return storage.NewFileStore(path, storage.WithPublicBaseURL(cfg.StorageBaseURL))
}

// RetryConfig maps the retry settings of cfg onto a retry.Config.
func RetryConfig(cfg *infra.Config, logger infra.Logger) retry.Config {
	rc := retry.DefaultConfig()
	if cfg.RetryMaxAttempts > 0 {
		rc.MaxAttempts = cfg.RetryMaxAttempts
	}
	if cfg.RetryBaseDelay > 0 {
		rc.BaseDelay = cfg.RetryBaseDelay
	}
	if cfg.RetryMaxDelay > 0 {
		rc.MaxDelay = cfg.RetryMaxDelay
	}
	rc.Logger = &logger
	return rc
}

// NewOrchestrator wires the Replicate client, the file store and the
// stores into a pipeline.Orchestrator.
func NewOrchestrator(cfg *infra.Config, stores *Stores, blobs *storage.FileStore, dispatcher scheduler.Dispatcher, logger infra.Logger) (*pipeline.Orchestrator, error) {
	client, err := replicate.NewClient(replicate.Options{
		Token:             cfg.ReplicateToken,
		BaseURL:           cfg.ReplicateBaseURL,
		WebhookURL:        webhookURL(cfg),
		RequestsPerSecond: cfg.ProviderRPS,
		Burst:             cfg.ProviderBurst,
		HTTPClient:        &http.Client{Timeout: 90 * time.Second},
		Logger:            &logger,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: replicate client: %w", err)
	}
	return pipeline.NewOrchestrator(pipeline.Deps{
		Jobs:       stores.Jobs,
		Ledger:     stores.Ledger,
		Entities:   stores.Entities,
		Models:     replicate.NewModels(client, RetryConfig(cfg, logger)),
		Blobs:      blobs,
		Dispatcher: dispatcher,
		Logger:     &logger,
	}), nil
}

// webhookURL appends the shared secret so the webhook endpoint can verify
// callbacks.
func webhookURL(cfg *infra.Config) string {
	if cfg.ReplicateWebhookURL == "" || cfg.WebhookSecret == "" {
		return cfg.ReplicateWebhookURL
	}
	u, err := url.Parse(cfg.ReplicateWebhookURL)
	if err != nil {
		return cfg.ReplicateWebhookURL
	}
	q := u.Query()
	q.Set("token", cfg.WebhookSecret)
	u.RawQuery = q.Encode()
	return u.String()
}
