package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	bolt "go.etcd.io/bbolt"
)

// Counts is a point-in-time view of stored state
type Counts struct {
	Campaigns      int64
	JobsPending    int64
	JobsProcessing int64
}

// CountsProvider reports stored campaign and job counts for gauges
type CountsProvider interface {
	Counts(ctx context.Context) (*Counts, error)
}

var (
	bucketMetrics = []byte("metrics")
	countersKey   = []byte("counters")
)

// counterSample is one persisted series of a counter vector
type counterSample struct {
	Labels map[string]string `json:"labels"`
	Value  float64           `json:"value"`
}

// Collector persists counters across restarts and keeps system gauges current
type Collector struct {
	db            *bolt.DB
	metrics       *Metrics
	counts        CountsProvider
	storagePath   string
	flushInterval time.Duration
	startTime     time.Time
	logger        *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCollector creates a collector and restores persisted counter values into m
func NewCollector(db *bolt.DB, m *Metrics, counts CountsProvider, storagePath string, flushInterval time.Duration, logger *slog.Logger) (*Collector, error) {
	if flushInterval <= 0 {
		flushInterval = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketMetrics)
		return err
	})
	if err != nil {
		return nil, err
	}

	c := &Collector{
		db:            db,
		metrics:       m,
		counts:        counts,
		storagePath:   storagePath,
		flushInterval: flushInterval,
		startTime:     time.Now(),
		logger:        logger,
		stopCh:        make(chan struct{}),
	}

	if err := c.loadCounters(); err != nil {
		return nil, err
	}

	return c, nil
}

// Start begins the collector background tasks
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(2)
	go c.persistLoop(ctx)
	go c.updateSystemMetrics(ctx)
}

// Stop stops the collector and persists final values
func (c *Collector) Stop() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
	return c.persistCounters()
}

// counterVecs lists the counters that survive restarts
func (m *Metrics) counterVecs() map[string]*prometheus.CounterVec {
	return map[string]*prometheus.CounterVec{
		"flowry_api_requests_total":       m.APIRequestsTotal,
		"flowry_api_errors_total":         m.APIErrorsTotal,
		"flowry_jobs_processed_total":     m.JobsProcessedTotal,
		"flowry_readiness_cache_total":    m.ReadinessCacheTotal,
		"flowry_textgen_fallbacks_total":  m.TextgenFallbacks,
		"flowry_ratelimit_exceeded_total": m.RateLimitExceededTotal,
	}
}

// snapshot reads the current values of persisted counters from the registry
func (c *Collector) snapshot() (map[string][]counterSample, error) {
	families, err := c.metrics.Registry().Gather()
	if err != nil {
		return nil, err
	}
	vecs := c.metrics.counterVecs()

	out := make(map[string][]counterSample)
	for _, mf := range families {
		if _, ok := vecs[mf.GetName()]; !ok {
			continue
		}
		for _, metric := range mf.GetMetric() {
			labels := make(map[string]string, len(metric.GetLabel()))
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			out[mf.GetName()] = append(out[mf.GetName()], counterSample{
				Labels: labels,
				Value:  metric.GetCounter().GetValue(),
			})
		}
	}
	return out, nil
}

// loadCounters adds persisted counter values to the live counters
func (c *Collector) loadCounters() error {
	return c.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketMetrics)
		if bucket == nil {
			return nil
		}

		data := bucket.Get(countersKey)
		if data == nil {
			return nil
		}

		var saved map[string][]counterSample
		if err := json.Unmarshal(data, &saved); err != nil {
			c.logger.Warn("ignoring unreadable persisted metrics", "error", err)
			return nil
		}

		vecs := c.metrics.counterVecs()
		for name, samples := range saved {
			vec, ok := vecs[name]
			if !ok {
				continue
			}
			for _, s := range samples {
				counter, err := vec.GetMetricWith(prometheus.Labels(s.Labels))
				if err != nil {
					// label set changed between versions
					continue
				}
				counter.Add(s.Value)
			}
		}
		return nil
	})
}

// persistCounters saves counter values to BoltDB
func (c *Collector) persistCounters() error {
	snap, err := c.snapshot()
	if err != nil {
		return err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	return c.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketMetrics)
		if bucket == nil {
			return nil
		}
		return bucket.Put(countersKey, data)
	})
}

func (c *Collector) persistLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			if err := c.persistCounters(); err != nil {
				c.logger.Error("failed to persist metrics", "error", err)
			}
		}
	}
}

func (c *Collector) updateSystemMetrics(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	c.collectSystemMetrics(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.collectSystemMetrics(ctx)
		}
	}
}

// collectSystemMetrics refreshes gauges from process and storage state
func (c *Collector) collectSystemMetrics(ctx context.Context) {
	c.metrics.UptimeSeconds.Set(time.Since(c.startTime).Seconds())
	c.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))

	if c.storagePath != "" {
		if info, err := os.Stat(c.storagePath); err == nil {
			c.metrics.StorageUsedBytes.Set(float64(info.Size()))
		}
	}

	if c.counts != nil {
		counts, err := c.counts.Counts(ctx)
		if err != nil {
			c.logger.Debug("failed to read counts", "error", err)
			return
		}
		c.metrics.CampaignsTotal.Set(float64(counts.Campaigns))
		c.metrics.JobsPending.Set(float64(counts.JobsPending))
		c.metrics.JobsProcessing.Set(float64(counts.JobsProcessing))
	}
}
