package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// CleanerConfig contains cleanup settings
type CleanerConfig struct {
	// Finished jobs retention
	Retention time.Duration
	Interval  time.Duration

	// Jobs stuck in processing longer than this are failed. Zero disables.
	StaleAfter time.Duration
}

// Cleaner removes old finished jobs and recovers stuck ones
type Cleaner struct {
	store    Store
	cfg      CleanerConfig
	logger   *slog.Logger
	wg       sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once
}

// NewCleaner creates a new cleaner service
func NewCleaner(store Store, cfg CleanerConfig, logger *slog.Logger) *Cleaner {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cleaner{
		store:  store,
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start starts the cleanup goroutine
func (c *Cleaner) Start(ctx context.Context) {
	if c.cfg.Retention <= 0 && c.cfg.StaleAfter <= 0 {
		c.logger.Info("job cleaner disabled")
		return
	}

	c.wg.Add(1)
	go c.loop(ctx)

	c.logger.Info("job cleaner started",
		"retention", c.cfg.Retention,
		"interval", c.cfg.Interval,
		"stale_after", c.cfg.StaleAfter,
	)
}

// Stop stops the cleaner and waits for the goroutine to finish
func (c *Cleaner) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.wg.Wait()
		c.logger.Info("job cleaner stopped")
	})
}

func (c *Cleaner) loop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on start
	c.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single cleanup pass
func (c *Cleaner) RunOnce(ctx context.Context) {
	if c.cfg.StaleAfter > 0 {
		failed, err := c.store.FailStaleJobs(ctx, c.cfg.StaleAfter)
		if err != nil {
			c.logger.Error("failed to recover stale jobs", "error", err)
		} else if failed > 0 {
			c.logger.Warn("failed stale jobs", "count", failed, "stale_after", c.cfg.StaleAfter)
		}
	}

	if c.cfg.Retention > 0 {
		deleted, err := c.store.CleanupJobs(ctx, c.cfg.Retention)
		if err != nil {
			c.logger.Error("failed to cleanup jobs", "error", err)
			return
		}
		if deleted > 0 {
			c.logger.Info("cleaned up finished jobs", "deleted", deleted)
		}
	}
}
