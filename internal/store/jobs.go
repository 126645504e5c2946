package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/flowry/internal/jobs"
)

var _ jobs.Store = (*Store)(nil)

// CreateJob stores a job and, when pending, queues it for the runner
func (s *Store) CreateJob(ctx context.Context, job *jobs.Job) error {
	if job.JobID == "" || job.CampaignID == "" {
		return fmt.Errorf("job id and campaign id are required")
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketCampaigns).Get([]byte(job.CampaignID)) == nil {
			return fmt.Errorf("campaign %s: %w", job.CampaignID, ErrNotFound)
		}
		if err := putJob(tx, job); err != nil {
			return err
		}

		idx := tx.Bucket(bucketCampaignJobs)
		if err := idx.Put(makeScopedKey(job.CampaignID, job.CreatedAt, job.JobID), []byte(job.JobID)); err != nil {
			return fmt.Errorf("failed to add to campaign index: %w", err)
		}

		if job.Status == jobs.StatusPending {
			pending := tx.Bucket(bucketPendingJobs)
			if err := pending.Put(makeIndexKey(job.CreatedAt, job.JobID), []byte(job.JobID)); err != nil {
				return fmt.Errorf("failed to add to pending index: %w", err)
			}
		}
		return nil
	})
}

// GetJob returns a job by id or ErrNotFound
func (s *Store) GetJob(ctx context.Context, id string) (*jobs.Job, error) {
	var job *jobs.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		job, err = getJob(tx, id)
		return err
	})
	return job, err
}

// ClaimNextJob moves the oldest pending job to processing
func (s *Store) ClaimNextJob(ctx context.Context) (*jobs.Job, error) {
	var job *jobs.Job

	err := s.db.Update(func(tx *bolt.Tx) error {
		jobsBucket := tx.Bucket(bucketJobs)
		c := tx.Bucket(bucketPendingJobs).Cursor()

		for k, v := c.First(); k != nil; k, v = c.Next() {
			data := jobsBucket.Get(v)
			if data == nil {
				// Job was deleted with its campaign
				if err := c.Delete(); err != nil {
					return err
				}
				continue
			}

			var j jobs.Job
			if err := json.Unmarshal(data, &j); err != nil {
				continue
			}
			if err := c.Delete(); err != nil {
				return err
			}
			if j.Status != jobs.StatusPending {
				continue
			}

			j.Status = jobs.StatusProcessing
			j.UpdatedAt = time.Now().UTC()
			if err := putJob(tx, &j); err != nil {
				return err
			}
			job = &j
			return nil
		}
		return nil
	})

	return job, err
}

// FinishJob writes the terminal status and result of a job.
// Finishing a job that is already complete or failed returns ErrJobFinalized.
func (s *Store) FinishJob(ctx context.Context, id string, status jobs.Status, result json.RawMessage) (*jobs.Job, error) {
	if !status.Terminal() {
		return nil, fmt.Errorf("status %q is not terminal", status)
	}

	var job *jobs.Job
	err := s.db.Update(func(tx *bolt.Tx) error {
		j, err := getJob(tx, id)
		if err != nil {
			return err
		}
		if j.Status.Terminal() {
			return fmt.Errorf("job %s is %s: %w", id, j.Status, ErrJobFinalized)
		}
		if j.Status == jobs.StatusPending {
			if err := tx.Bucket(bucketPendingJobs).Delete(makeIndexKey(j.CreatedAt, j.JobID)); err != nil {
				return err
			}
		}

		j.Status = status
		j.Result = result
		j.UpdatedAt = time.Now().UTC()
		if err := putJob(tx, j); err != nil {
			return err
		}
		job = j
		return nil
	})

	return job, err
}

// ListJobs returns jobs oldest first, optionally scoped to one campaign
func (s *Store) ListJobs(ctx context.Context, filter jobs.ListFilter) ([]*jobs.Job, error) {
	var out []*jobs.Job

	err := s.db.View(func(tx *bolt.Tx) error {
		jobsBucket := tx.Bucket(bucketJobs)
		skipped := 0

		visit := func(data []byte) bool {
			var j jobs.Job
			if err := json.Unmarshal(data, &j); err != nil {
				return true
			}
			if filter.Status != "" && j.Status != filter.Status {
				return true
			}
			if filter.Type != "" && j.Type != filter.Type {
				return true
			}
			if skipped < filter.Offset {
				skipped++
				return true
			}
			out = append(out, &j)
			return filter.Limit <= 0 || len(out) < filter.Limit
		}

		if filter.CampaignID != "" {
			c := tx.Bucket(bucketCampaignJobs).Cursor()
			prefix := scopePrefix(filter.CampaignID)
			for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
				data := jobsBucket.Get(v)
				if data == nil {
					continue
				}
				if !visit(data) {
					break
				}
			}
			return nil
		}

		// ULID keys sort by creation time
		c := jobsBucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if !visit(v) {
				break
			}
		}
		return nil
	})

	return out, err
}

// JobStats counts jobs by status
func (s *Store) JobStats(ctx context.Context) (*jobs.Stats, error) {
	stats := &jobs.Stats{}

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJobs).ForEach(func(k, v []byte) error {
			var j jobs.Job
			if err := json.Unmarshal(v, &j); err != nil {
				return nil
			}
			stats.Total++
			switch j.Status {
			case jobs.StatusPending:
				stats.Pending++
			case jobs.StatusProcessing:
				stats.Processing++
			case jobs.StatusComplete:
				stats.Complete++
			case jobs.StatusFailed:
				stats.Failed++
			}
			return nil
		})
	})

	return stats, err
}

// CleanupJobs removes complete and failed jobs last updated before now-maxAge
func (s *Store) CleanupJobs(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-maxAge)
	deleted := 0

	err := s.db.Update(func(tx *bolt.Tx) error {
		var toDelete []*jobs.Job
		err := tx.Bucket(bucketJobs).ForEach(func(k, v []byte) error {
			var j jobs.Job
			if err := json.Unmarshal(v, &j); err != nil {
				return nil
			}
			if j.Status.Terminal() && j.UpdatedAt.Before(cutoff) {
				toDelete = append(toDelete, &j)
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, j := range toDelete {
			if err := deleteJob(tx, j); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})

	return deleted, err
}

// FailStaleJobs fails jobs stuck in processing for longer than olderThan
func (s *Store) FailStaleJobs(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-olderThan)
	failed := 0

	err := s.db.Update(func(tx *bolt.Tx) error {
		var stale []*jobs.Job
		err := tx.Bucket(bucketJobs).ForEach(func(k, v []byte) error {
			var j jobs.Job
			if err := json.Unmarshal(v, &j); err != nil {
				return nil
			}
			if j.Status == jobs.StatusProcessing && j.UpdatedAt.Before(cutoff) {
				stale = append(stale, &j)
			}
			return nil
		})
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		for _, j := range stale {
			j.Status = jobs.StatusFailed
			j.Result = jobs.ErrorResult("job timed out while processing")
			j.UpdatedAt = now
			if err := putJob(tx, j); err != nil {
				return err
			}
			failed++
		}
		return nil
	})

	return failed, err
}

func getJob(tx *bolt.Tx, id string) (*jobs.Job, error) {
	data := tx.Bucket(bucketJobs).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	var j jobs.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &j, nil
}

func putJob(tx *bolt.Tx, j *jobs.Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := tx.Bucket(bucketJobs).Put([]byte(j.JobID), data); err != nil {
		return fmt.Errorf("failed to store job: %w", err)
	}
	return nil
}

func deleteJob(tx *bolt.Tx, j *jobs.Job) error {
	if err := tx.Bucket(bucketPendingJobs).Delete(makeIndexKey(j.CreatedAt, j.JobID)); err != nil {
		return err
	}
	if err := tx.Bucket(bucketCampaignJobs).Delete(makeScopedKey(j.CampaignID, j.CreatedAt, j.JobID)); err != nil {
		return err
	}
	return tx.Bucket(bucketJobs).Delete([]byte(j.JobID))
}

func deleteCampaignJobs(tx *bolt.Tx, campaignID string) error {
	jobsBucket := tx.Bucket(bucketJobs)
	c := tx.Bucket(bucketCampaignJobs).Cursor()
	prefix := scopePrefix(campaignID)

	var toDelete []*jobs.Job
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		data := jobsBucket.Get(v)
		if data == nil {
			continue
		}
		var j jobs.Job
		if err := json.Unmarshal(data, &j); err != nil {
			continue
		}
		toDelete = append(toDelete, &j)
	}

	for _, j := range toDelete {
		if err := deleteJob(tx, j); err != nil {
			return err
		}
	}
	return nil
}
