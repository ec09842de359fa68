package commands

import (
	"context"
	"fmt"

	"github.com/wonny/renewcast/internal/metrics"
	"github.com/wonny/renewcast/internal/model"
	"github.com/wonny/renewcast/internal/pipeline"
	"github.com/wonny/renewcast/internal/storage"
	"github.com/wonny/renewcast/internal/weather"
	"github.com/wonny/renewcast/pkg/config"
	"github.com/wonny/renewcast/pkg/httputil"
	"github.com/wonny/renewcast/pkg/logger"
	"github.com/wonny/renewcast/pkg/redis"
)

// app holds the dependencies shared by long-running and one-shot commands
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	backend *storage.Backend
	redis   *redis.Client
	metrics *metrics.Recorder
	runner  *pipeline.Runner
}

// newApp wires config → storage → redis → weather → models → runner
// ⭐ SSOT: 의존성 조립은 여기서만
func newApp() (*app, error) {
	// 1. Load config
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	// 3. Open storage
	backend, err := storage.Open(cfg, log.Zerolog())
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	// 4. Connect to redis (비활성화 시 no-op 클라이언트)
	rdb, err := redis.New(cfg)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	// 5. Create HTTP client
	httpClient := httputil.New(log, cfg.Weather.Timeout).
		WithRetry(cfg.Weather.MaxRetries, cfg.Weather.RetryDelay)
	if cfg.Weather.RateLimit > 0 {
		httpClient.WithRateLimiter(redis.NewRateLimiter(rdb, "renewcast"), redis.OpenMeteoRateLimit(cfg.Weather.RateLimit))
	}

	// 6. Create weather client
	weatherClient := weather.NewClient(httpClient, cfg.Weather.BaseURL, log.Zerolog())

	// 7. Load model manifest
	manifest, err := model.LoadManifest(cfg.Models.ManifestPath)
	if err != nil {
		rdb.Close()
		backend.Close()
		return nil, fmt.Errorf("load model manifest: %w", err)
	}
	models := model.NewRegistry(manifest, log.Zerolog())

	// 8. Create runner
	recorder := metrics.New()
	runner, err := pipeline.NewRunner(pipeline.Deps{
		Sites:   backend.Sites,
		Weather: weatherClient,
		Store:   backend.Store,
		Models:  models,
		Locker:  redis.NewLocker(rdb, "renewcast"),
		Views:   redis.NewCache(rdb, "renewcast"),
		Metrics: recorder,
	}, pipeline.OptionsFromConfig(cfg), log.Zerolog())
	if err != nil {
		rdb.Close()
		backend.Close()
		return nil, fmt.Errorf("create runner: %w", err)
	}

	return &app{
		cfg:     cfg,
		log:     log,
		backend: backend,
		redis:   rdb,
		metrics: recorder,
		runner:  runner,
	}, nil
}

// health checks storage and, when enabled, redis
func (a *app) health(ctx context.Context) error {
	if err := a.backend.Ping(ctx); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := a.redis.Ping(ctx); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

func (a *app) close() {
	if err := a.redis.Close(); err != nil {
		a.log.WithError(err).Warn("Failed to close redis")
	}
	a.backend.Close()
}
