package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/flowry/internal/campaign"
	"github.com/foxzi/flowry/internal/flow"
)

// CreateCampaign stores a new campaign. The structure version starts at 1.
func (s *Store) CreateCampaign(ctx context.Context, c *campaign.Campaign) error {
	if c.ID == "" || c.OwnerID == "" {
		return fmt.Errorf("campaign id and owner are required")
	}
	c.Normalize()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.UpdatedAt = c.CreatedAt
	c.StructureVersion = 1

	return s.db.Update(func(tx *bolt.Tx) error {
		campaigns := tx.Bucket(bucketCampaigns)
		if campaigns.Get([]byte(c.ID)) != nil {
			return fmt.Errorf("campaign %s already exists", c.ID)
		}
		if err := putCampaign(tx, c); err != nil {
			return err
		}
		owners := tx.Bucket(bucketOwnerCampaigns)
		if err := owners.Put(makeScopedKey(c.OwnerID, c.CreatedAt, c.ID), []byte(c.ID)); err != nil {
			return fmt.Errorf("failed to add to owner index: %w", err)
		}
		return nil
	})
}

// GetCampaign returns the owner's campaign or ErrNotFound
func (s *Store) GetCampaign(ctx context.Context, owner, id string) (*campaign.Campaign, error) {
	var c *campaign.Campaign
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		c, err = getCampaign(tx, owner, id)
		return err
	})
	return c, err
}

// ListCampaigns returns the owner's campaigns, newest first
func (s *Store) ListCampaigns(ctx context.Context, owner string) ([]*campaign.Campaign, error) {
	var out []*campaign.Campaign

	err := s.db.View(func(tx *bolt.Tx) error {
		campaigns := tx.Bucket(bucketCampaigns)
		c := tx.Bucket(bucketOwnerCampaigns).Cursor()
		prefix := scopePrefix(owner)

		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			data := campaigns.Get(v)
			if data == nil {
				continue
			}
			var camp campaign.Campaign
			if err := json.Unmarshal(data, &camp); err != nil {
				continue
			}
			out = append(out, &camp)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// CountCampaigns returns the number of stored campaigns across all owners
func (s *Store) CountCampaigns(ctx context.Context) (int, error) {
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketCampaigns).Stats().KeyN
		return nil
	})
	return n, err
}

// MutateCampaign applies fn to the stored campaign inside one write transaction.
// fn always sees the latest record. If fn returns an error nothing is written.
// The structure version is bumped only when fn changed the structure.
func (s *Store) MutateCampaign(ctx context.Context, owner, id string, expectedVersion int64, fn func(*campaign.Campaign) error) (*campaign.Campaign, error) {
	var out *campaign.Campaign

	err := s.db.Update(func(tx *bolt.Tx) error {
		c, err := getCampaign(tx, owner, id)
		if err != nil {
			return err
		}
		if expectedVersion >= 0 && expectedVersion != c.StructureVersion {
			return fmt.Errorf("%w: have %d, got %d", ErrVersionConflict, c.StructureVersion, expectedVersion)
		}

		createdAt := c.CreatedAt
		before, err := json.Marshal(&c.Structure)
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}

		c.Normalize()
		c.ID = id
		c.OwnerID = owner
		c.CreatedAt = createdAt
		after, err := json.Marshal(&c.Structure)
		if err != nil {
			return err
		}
		if !bytes.Equal(before, after) {
			c.StructureVersion++
		}
		c.UpdatedAt = time.Now().UTC()
		if err := putCampaign(tx, c); err != nil {
			return err
		}
		out = c
		return nil
	})

	return out, err
}

// MutateStructure applies fn to the campaign's flow inside one write transaction.
// If fn returns an error nothing is written. On success the structure version is incremented.
func (s *Store) MutateStructure(ctx context.Context, owner, id string, expectedVersion int64, fn func(*flow.Graph) error) (*campaign.Campaign, error) {
	var out *campaign.Campaign

	err := s.db.Update(func(tx *bolt.Tx) error {
		c, err := getCampaign(tx, owner, id)
		if err != nil {
			return err
		}
		if expectedVersion >= 0 && expectedVersion != c.StructureVersion {
			return fmt.Errorf("%w: have %d, got %d", ErrVersionConflict, c.StructureVersion, expectedVersion)
		}
		if err := fn(&c.Structure); err != nil {
			return err
		}

		c.StructureVersion++
		c.UpdatedAt = time.Now().UTC()
		if err := putCampaign(tx, c); err != nil {
			return err
		}
		out = c
		return nil
	})

	return out, err
}

// DeleteCampaign removes a campaign together with its jobs
func (s *Store) DeleteCampaign(ctx context.Context, owner, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		c, err := getCampaign(tx, owner, id)
		if err != nil {
			return err
		}
		return deleteCampaign(tx, c)
	})
}

// DeleteOwner removes every campaign of an owner and their jobs. Returns the campaign count.
func (s *Store) DeleteOwner(ctx context.Context, owner string) (int, error) {
	deleted := 0

	err := s.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketOwnerCampaigns).Cursor()
		prefix := scopePrefix(owner)

		var ids []string
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			ids = append(ids, string(v))
		}

		for _, id := range ids {
			camp, err := getCampaign(tx, owner, id)
			if err != nil {
				continue
			}
			if err := deleteCampaign(tx, camp); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})

	return deleted, err
}

func getCampaign(tx *bolt.Tx, owner, id string) (*campaign.Campaign, error) {
	data := tx.Bucket(bucketCampaigns).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("campaign %s: %w", id, ErrNotFound)
	}
	var c campaign.Campaign
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal campaign: %w", err)
	}
	if c.OwnerID != owner {
		return nil, fmt.Errorf("campaign %s: %w", id, ErrNotFound)
	}
	return &c, nil
}

func putCampaign(tx *bolt.Tx, c *campaign.Campaign) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal campaign: %w", err)
	}
	if err := tx.Bucket(bucketCampaigns).Put([]byte(c.ID), data); err != nil {
		return fmt.Errorf("failed to store campaign: %w", err)
	}
	return nil
}

func deleteCampaign(tx *bolt.Tx, c *campaign.Campaign) error {
	if err := deleteCampaignJobs(tx, c.ID); err != nil {
		return err
	}
	if err := tx.Bucket(bucketOwnerCampaigns).Delete(makeScopedKey(c.OwnerID, c.CreatedAt, c.ID)); err != nil {
		return err
	}
	return tx.Bucket(bucketCampaigns).Delete([]byte(c.ID))
}

func structureChanged(a, b *flow.Graph) (bool, error) {
	before, err := json.Marshal(a)
	if err != nil {
		return false, err
	}
	after, err := json.Marshal(b)
	if err != nil {
		return false, err
	}
	return !bytes.Equal(before, after), nil
}
