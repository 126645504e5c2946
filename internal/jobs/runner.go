package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foxzi/flowry/internal/metrics"
)

// Handler executes one job type. The returned value is stored as the job result.
type Handler interface {
	Handle(ctx context.Context, job *Job) (any, error)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, job *Job) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, job *Job) (any, error) {
	return f(ctx, job)
}

// RunnerConfig contains runner configuration
type RunnerConfig struct {
	Workers      int
	PollInterval time.Duration
	JobTimeout   time.Duration
}

// Runner claims pending jobs and executes them exactly once
type Runner struct {
	store        Store
	handlers     map[Type]Handler
	workers      int
	pollInterval time.Duration
	jobTimeout   time.Duration
	logger       *slog.Logger

	wake     chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRunner creates a new job runner
func NewRunner(store Store, cfg RunnerConfig, logger *slog.Logger) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		store:        store,
		handlers:     make(map[Type]Handler),
		workers:      cfg.Workers,
		pollInterval: cfg.PollInterval,
		jobTimeout:   cfg.JobTimeout,
		logger:       logger,
		wake:         make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
	}
}

// Register sets the handler for a job type. Call before Start.
func (r *Runner) Register(t Type, h Handler) {
	r.handlers[t] = h
}

// Enqueue persists a pending job and wakes a worker
func (r *Runner) Enqueue(ctx context.Context, job *Job) error {
	if err := r.store.CreateJob(ctx, job); err != nil {
		return err
	}
	r.logger.Debug("job enqueued", "job_id", job.JobID, "type", job.Type, "campaign_id", job.CampaignID)
	r.Notify()
	return nil
}

// Notify wakes one idle worker without waiting for the next poll
func (r *Runner) Notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Start starts the runner workers
func (r *Runner) Start(ctx context.Context) {
	r.logger.Info("starting job runner", "workers", r.workers, "poll_interval", r.pollInterval)

	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx, i)
	}
}

// Stop stops the runner and waits for running jobs to finish
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		r.logger.Info("stopping job runner")
		close(r.stopCh)
		r.wg.Wait()
		r.logger.Info("job runner stopped")
	})
}

func (r *Runner) worker(ctx context.Context, id int) {
	defer r.wg.Done()

	logger := r.logger.With("worker_id", id)
	logger.Debug("worker started")

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("worker stopped by context")
			return
		case <-r.stopCh:
			logger.Debug("worker stopped by signal")
			return
		case <-ticker.C:
		case <-r.wake:
		}

		// drain the queue before sleeping again
		for r.processOne(ctx, logger) {
			select {
			case <-r.stopCh:
				return
			default:
			}
		}
	}
}

// processOne claims and runs a single job. It reports whether a job was claimed.
func (r *Runner) processOne(ctx context.Context, logger *slog.Logger) bool {
	job, err := r.store.ClaimNextJob(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error("failed to claim job", "error", err)
		}
		return false
	}
	if job == nil {
		return false
	}

	r.run(ctx, job, logger.With("job_id", job.JobID, "type", job.Type))
	return true
}

func (r *Runner) run(ctx context.Context, job *Job, logger *slog.Logger) {
	logger.Debug("processing job")
	start := time.Now()

	result, err := r.execute(ctx, job)

	status := StatusComplete
	if err != nil {
		status = StatusFailed
		result = ErrorResult(err.Error())
		logger.Warn("job failed", "error", err)
	}

	// finish even when ctx is already cancelled so the job is not left processing
	finishCtx := context.WithoutCancel(ctx)
	if _, ferr := r.store.FinishJob(finishCtx, job.JobID, status, result); ferr != nil {
		logger.Error("failed to update job status", "status", status, "error", ferr)
		return
	}

	elapsed := time.Since(start)
	metrics.ObserveJob(string(job.Type), string(status), elapsed.Seconds())
	if status == StatusComplete {
		logger.Info("job complete", "duration", elapsed)
	}
}

func (r *Runner) execute(ctx context.Context, job *Job) (result json.RawMessage, err error) {
	h, ok := r.handlers[job.Type]
	if !ok {
		return nil, fmt.Errorf("unknown job type %q", job.Type)
	}

	jobCtx, cancel := context.WithTimeout(ctx, r.jobTimeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job panicked: %v", p)
		}
	}()

	out, err := h.Handle(jobCtx, job)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && jobCtx.Err() != nil {
			return nil, fmt.Errorf("job timed out after %s", r.jobTimeout)
		}
		return nil, err
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return data, nil
}
