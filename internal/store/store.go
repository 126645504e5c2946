// Package store persists campaigns, jobs and templates in BoltDB.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/flowry/internal/jobs"
)

var (
	bucketCampaigns      = []byte("campaigns")
	bucketOwnerCampaigns = []byte("owner_campaigns")
	bucketJobs           = []byte("jobs")
	bucketCampaignJobs   = []byte("campaign_jobs")
	bucketPendingJobs    = []byte("pending_jobs")
	bucketTemplates      = []byte("templates")
	bucketTemplateNames  = []byte("template_names")
)

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("structure version conflict")
	ErrDuplicateName   = errors.New("name already exists")
	ErrJobFinalized    = jobs.ErrJobFinalized
)

// keyTimeFormat is fixed width so index keys sort chronologically
const keyTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// AnyVersion skips the structure version check in MutateStructure and MutateCampaign
const AnyVersion int64 = -1

// Store is the BoltDB backed persistence layer
type Store struct {
	db *bolt.DB
}

// Open opens or creates the database file at path
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{
			bucketCampaigns, bucketOwnerCampaigns,
			bucketJobs, bucketCampaignJobs, bucketPendingJobs,
			bucketTemplates, bucketTemplateNames,
		} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying bolt.DB so other components can keep their own buckets in the same file
func (s *Store) DB() *bolt.DB {
	return s.db
}

// makeIndexKey creates a sortable key from timestamp and ID
func makeIndexKey(t time.Time, id string) []byte {
	return []byte(t.UTC().Format(keyTimeFormat) + ":" + id)
}

// makeScopedKey prefixes an index key with an owner or campaign id
func makeScopedKey(scope string, t time.Time, id string) []byte {
	return append([]byte(scope+":"), makeIndexKey(t, id)...)
}

func scopePrefix(scope string) []byte {
	return []byte(scope + ":")
}
