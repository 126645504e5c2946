package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/flowry/internal/campaign"
	"github.com/foxzi/flowry/internal/reference"
)

// TemplateFilter narrows template listings
type TemplateFilter struct {
	Brand string
	Goal  string
}

// CreateTemplate stores a template. Names are unique.
func (s *Store) CreateTemplate(ctx context.Context, tmpl *campaign.Template) error {
	if tmpl.Name == "" {
		return fmt.Errorf("template name is required")
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		names := tx.Bucket(bucketTemplateNames)
		if names.Get([]byte(tmpl.Name)) != nil {
			return fmt.Errorf("template %q: %w", tmpl.Name, ErrDuplicateName)
		}

		if tmpl.ID == "" {
			tmpl.ID = uuid.New().String()
		}
		tmpl.Version = 1
		tmpl.CreatedAt = time.Now().UTC()
		tmpl.UpdatedAt = tmpl.CreatedAt

		if err := putTemplate(tx, tmpl); err != nil {
			return err
		}
		return names.Put([]byte(tmpl.Name), []byte(tmpl.ID))
	})
}

// GetTemplate returns a template by id or ErrNotFound
func (s *Store) GetTemplate(ctx context.Context, id string) (*campaign.Template, error) {
	var tmpl *campaign.Template
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		tmpl, err = getTemplate(tx, id)
		return err
	})
	return tmpl, err
}

// ListTemplates returns recommended templates first, then the rest, each group by name
func (s *Store) ListTemplates(ctx context.Context, filter TemplateFilter) ([]*campaign.Template, error) {
	out := []*campaign.Template{}

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTemplates).ForEach(func(k, v []byte) error {
			var tmpl campaign.Template
			if err := json.Unmarshal(v, &tmpl); err != nil {
				return nil
			}
			if filter.Brand != "" && tmpl.Brand != filter.Brand {
				return nil
			}
			if filter.Goal != "" && tmpl.Goal != filter.Goal {
				return nil
			}
			out = append(out, &tmpl)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Recommended() != out[j].Recommended() {
			return out[i].Recommended()
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// UpdateTemplate replaces a template and bumps its version
func (s *Store) UpdateTemplate(ctx context.Context, tmpl *campaign.Template) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		names := tx.Bucket(bucketTemplateNames)

		existing, err := getTemplate(tx, tmpl.ID)
		if err != nil {
			return err
		}

		if existing.Name != tmpl.Name {
			if names.Get([]byte(tmpl.Name)) != nil {
				return fmt.Errorf("template %q: %w", tmpl.Name, ErrDuplicateName)
			}
			if err := names.Delete([]byte(existing.Name)); err != nil {
				return err
			}
			if err := names.Put([]byte(tmpl.Name), []byte(tmpl.ID)); err != nil {
				return err
			}
		}

		tmpl.Version = existing.Version + 1
		tmpl.CreatedAt = existing.CreatedAt
		tmpl.UpdatedAt = time.Now().UTC()
		return putTemplate(tx, tmpl)
	})
}

// DeleteTemplate removes a template by id
func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		tmpl, err := getTemplate(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketTemplateNames).Delete([]byte(tmpl.Name)); err != nil {
			return err
		}
		return tx.Bucket(bucketTemplates).Delete([]byte(id))
	})
}

// SeedTemplates inserts catalog templates whose names are not taken yet. Returns how many were added.
func (s *Store) SeedTemplates(ctx context.Context, seeds []reference.SeedTemplate) (int, error) {
	added := 0
	for _, seed := range seeds {
		tmpl := &campaign.Template{
			Name:        seed.Name,
			Brand:       seed.Brand,
			Goal:        seed.Goal,
			Description: seed.Description,
			Structure:   *seed.Structure.Clone(),
			Metadata: campaign.TemplateMetadata{
				Channels:    seed.Metadata.Channels,
				Complexity:  seed.Metadata.Complexity,
				SetupTime:   seed.Metadata.SetupTime,
				Recommended: seed.Metadata.Recommended,
			},
		}
		err := s.CreateTemplate(ctx, tmpl)
		if err == nil {
			added++
			continue
		}
		if !errors.Is(err, ErrDuplicateName) {
			return added, fmt.Errorf("failed to seed template %q: %w", seed.Name, err)
		}
	}
	return added, nil
}

func getTemplate(tx *bolt.Tx, id string) (*campaign.Template, error) {
	data := tx.Bucket(bucketTemplates).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("template %s: %w", id, ErrNotFound)
	}
	var tmpl campaign.Template
	if err := json.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("failed to unmarshal template: %w", err)
	}
	return &tmpl, nil
}

func putTemplate(tx *bolt.Tx, tmpl *campaign.Template) error {
	data, err := json.Marshal(tmpl)
	if err != nil {
		return fmt.Errorf("failed to marshal template: %w", err)
	}
	return tx.Bucket(bucketTemplates).Put([]byte(tmpl.ID), data)
}
