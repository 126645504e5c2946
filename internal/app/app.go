package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/foxzi/flowry/internal/api"
	"github.com/foxzi/flowry/internal/cache"
	"github.com/foxzi/flowry/internal/config"
	"github.com/foxzi/flowry/internal/export"
	"github.com/foxzi/flowry/internal/ipfilter"
	"github.com/foxzi/flowry/internal/jobs"
	"github.com/foxzi/flowry/internal/metrics"
	"github.com/foxzi/flowry/internal/predict"
	"github.com/foxzi/flowry/internal/ratelimit"
	"github.com/foxzi/flowry/internal/readiness"
	"github.com/foxzi/flowry/internal/reference"
	"github.com/foxzi/flowry/internal/store"
	"github.com/foxzi/flowry/internal/textgen"
)

// App is the main application
type App struct {
	config        *config.Config
	store         *store.Store
	runner        *jobs.Runner
	cleaner       *jobs.Cleaner
	apiServer     *api.Server
	metricsServer *metrics.Server
	collector     *metrics.Collector
	rateLimiter   *ratelimit.Limiter
	redisCache    *cache.RedisCache
	logger        *slog.Logger
}

// New creates a new application
func New(ctx context.Context, cfg *config.Config, version string, out io.Writer) (*App, error) {
	logger := SetupLogger(cfg.Logging, out)

	catalog, err := LoadCatalog(cfg.Reference)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	a := &App{
		config: cfg,
		store:  st,
		logger: logger,
	}
	if err := a.build(ctx, catalog, version); err != nil {
		st.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, catalog *reference.Catalog, version string) error {
	cfg := a.config
	logger := a.logger

	seeded, err := a.store.SeedTemplates(ctx, catalog.SeedTemplates())
	if err != nil {
		return fmt.Errorf("failed to seed templates: %w", err)
	}
	if seeded > 0 {
		logger.Info("seeded campaign templates", "count", seeded)
	}

	// Metrics
	m := metrics.New()
	metrics.SetGlobal(m)
	if cfg.Metrics.Enabled {
		a.collector, err = metrics.NewCollector(
			a.store.DB(),
			m,
			storeCounts{a.store},
			cfg.Storage.Path,
			cfg.Metrics.FlushInterval,
			logger.With("component", "metrics_collector"),
		)
		if err != nil {
			return fmt.Errorf("failed to create metrics collector: %w", err)
		}

		var filter *ipfilter.Filter
		if len(cfg.Metrics.AllowedIPs) > 0 {
			filter = ipfilter.New(cfg.Metrics.AllowedIPs, logger.With("component", "metrics_ipfilter"))
		}
		a.metricsServer = metrics.NewServer(m, cfg.Metrics.ListenAddr, cfg.Metrics.Path, filter, logger.With("component", "metrics"))
	}

	// Rate limiter for AI-backed endpoints
	if cfg.RateLimit.Enabled {
		a.rateLimiter, err = ratelimit.NewLimiter(a.store.DB(), RateLimitConfig(cfg.RateLimit))
		if err != nil {
			return fmt.Errorf("failed to create rate limiter: %w", err)
		}
		logger.Info("rate limiting enabled",
			"requests_per_hour", cfg.RateLimit.RequestsPerHour,
			"requests_per_day", cfg.RateLimit.RequestsPerDay,
		)
	}

	// Text generation
	text, err := NewTextService(ctx, cfg.TextGen, catalog, logger.With("component", "textgen"))
	if err != nil {
		return err
	}

	// Export sink
	var sink export.Sink
	var downloadDir string
	switch cfg.Export.Sink {
	case "s3":
		sink, err = export.NewS3Sink(ctx, export.S3Config{
			Bucket:        cfg.Export.S3.Bucket,
			Prefix:        cfg.Export.S3.Prefix,
			Region:        cfg.Export.S3.Region,
			PublicBaseURL: cfg.Export.S3.PublicBaseURL,
		})
		if err != nil {
			return fmt.Errorf("failed to create s3 export sink: %w", err)
		}
		logger.Info("exports go to s3", "bucket", cfg.Export.S3.Bucket)
	default:
		dirSink, err := export.NewDirSink(cfg.Export.Dir)
		if err != nil {
			return err
		}
		sink = dirSink
		downloadDir = dirSink.Dir()
	}
	exporter := export.New(sink, logger.With("component", "export"))

	// Readiness cache
	var reportCache cache.ReportCache = cache.Nop{}
	if cfg.Cache.Enabled {
		a.redisCache, err = cache.NewRedis(ctx, cache.Config{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			TTL:      cfg.Cache.TTL,
		}, logger.With("component", "cache"))
		if err != nil {
			return err
		}
		reportCache = a.redisCache
		logger.Info("readiness cache enabled", "addr", cfg.Cache.Addr)
	}

	// Background jobs
	a.runner = jobs.NewRunner(a.store, jobs.RunnerConfig{
		Workers:      cfg.Jobs.Workers,
		PollInterval: cfg.Jobs.PollInterval,
		JobTimeout:   cfg.Jobs.JobTimeout,
	}, logger.With("component", "jobs"))
	jobs.NewHandlers(a.store, text, exporter).Register(a.runner)

	a.cleaner = jobs.NewCleaner(a.store, jobs.CleanerConfig{
		Retention:  cfg.Jobs.Retention,
		Interval:   cfg.Jobs.CleanupInterval,
		StaleAfter: cfg.Jobs.StaleAfter,
	}, logger.With("component", "cleaner"))

	// HTTP API
	deps := api.Deps{
		Store:       a.store,
		Jobs:        a.runner,
		Chat:        text,
		Auth:        api.NewAuthenticator(cfg.API.Keys, cfg.Auth),
		Analyzer:    NewAnalyzer(cfg.Readiness),
		Predictor:   predict.NewPredictor(catalog),
		Catalog:     catalog,
		Cache:       reportCache,
		DownloadDir: downloadDir,
		Version:     version,
	}
	if a.rateLimiter != nil {
		deps.Limiter = a.rateLimiter
	}
	if len(cfg.API.AllowedIPs) > 0 {
		deps.IPFilter = ipfilter.New(cfg.API.AllowedIPs, logger.With("component", "api_ipfilter"))
	}
	a.apiServer = api.NewServer(&cfg.API, deps, logger.With("component", "api"))

	return nil
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting flowry",
		"hostname", a.config.Server.Hostname,
		"api_addr", a.config.API.ListenAddr,
		"textgen", a.config.TextGen.Provider,
		"export_sink", a.config.Export.Sink,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a.runner.Start(ctx)
	a.cleaner.Start(ctx)
	if a.collector != nil {
		a.collector.Start(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	if a.metricsServer != nil {
		g.Go(func() error {
			if err := a.metricsServer.ListenAndServe(); err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	// Shut the servers down once a signal arrives or one of them fails
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown signal received")
		return a.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil {
		a.logger.Error("server error", "error", err)
		return err
	}
	return nil
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.config.Server.ShutdownTimeout)
	defer cancel()

	// Stop accepting requests before draining jobs
	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	a.runner.Stop()
	a.cleaner.Stop()

	if a.collector != nil {
		if err := a.collector.Stop(); err != nil {
			a.logger.Error("metrics collector stop error", "error", err)
		}
	}

	if a.rateLimiter != nil {
		if err := a.rateLimiter.Stop(); err != nil {
			a.logger.Error("rate limiter stop error", "error", err)
		}
	}

	if a.redisCache != nil {
		if err := a.redisCache.Close(); err != nil {
			a.logger.Error("cache close error", "error", err)
		}
	}

	if err := a.store.Close(); err != nil {
		a.logger.Error("storage close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// storeCounts feeds the campaign and job gauges
type storeCounts struct {
	store *store.Store
}

func (s storeCounts) Counts(ctx context.Context) (*metrics.Counts, error) {
	campaigns, err := s.store.CountCampaigns(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := s.store.JobStats(ctx)
	if err != nil {
		return nil, err
	}
	return &metrics.Counts{
		Campaigns:      int64(campaigns),
		JobsPending:    stats.Pending,
		JobsProcessing: stats.Processing,
	}, nil
}

// LoadCatalog returns the configured reference catalog or the embedded one
func LoadCatalog(cfg config.ReferenceConfig) (*reference.Catalog, error) {
	if cfg.Path == "" {
		return reference.Default(), nil
	}
	catalog, err := reference.Load(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference catalog: %w", err)
	}
	return catalog, nil
}

// NewAnalyzer creates the readiness analyzer configured by cfg
func NewAnalyzer(cfg config.ReadinessConfig) *readiness.Analyzer {
	return readiness.NewAnalyzer(readiness.Options{
		ScoreAdvisory:       cfg.ScoreAdvisory,
		PerNodeConditionals: cfg.PerNodeConditionals,
	})
}

// NewTextService creates the text generation service. Without a provider every call uses the mock output.
func NewTextService(ctx context.Context, cfg config.TextGenConfig, catalog *reference.Catalog, logger *slog.Logger) (*textgen.Service, error) {
	var gen textgen.Generator
	if cfg.Provider == "bedrock" {
		bedrock, err := textgen.NewBedrockGenerator(ctx, textgen.BedrockConfig{
			Region:      cfg.Region,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create bedrock generator: %w", err)
		}
		gen = bedrock
		logger.Info("text generation enabled", "provider", "bedrock", "model", cfg.Model)
	} else {
		logger.Info("text generation disabled, using mock responses")
	}
	return textgen.NewService(gen, catalog, cfg.Timeout, logger), nil
}

// RateLimitConfig converts the config section into limiter quotas
func RateLimitConfig(cfg config.RateLimitConfig) *ratelimit.Config {
	rl := &ratelimit.Config{
		Owner: &ratelimit.LimitConfig{
			RequestsPerHour: cfg.RequestsPerHour,
			RequestsPerDay:  cfg.RequestsPerDay,
		},
		FlushInterval: cfg.FlushInterval,
	}
	if cfg.Global != nil {
		rl.Global = &ratelimit.LimitConfig{
			RequestsPerHour: cfg.Global.RequestsPerHour,
			RequestsPerDay:  cfg.Global.RequestsPerDay,
		}
	}
	return rl
}

// SetupLogger creates a logger based on configuration
func SetupLogger(cfg config.LoggingConfig, out io.Writer) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler)
}
