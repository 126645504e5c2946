// Package campaign defines campaigns, their lifecycle and reusable campaign templates.
package campaign

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/flowry/internal/flow"
	"github.com/foxzi/flowry/internal/predict"
)

// Status is the campaign lifecycle state
type Status int

const (
	StatusDraft Status = iota
	StatusApproved
	StatusLive
	StatusCompleted
)

var statusNames = [...]string{"draft", "approved", "live", "completed"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// Valid reports whether s is one of the known states
func (s Status) Valid() bool {
	return s >= StatusDraft && s <= StatusCompleted
}

// ParseStatus converts a status name to a Status
func ParseStatus(name string) (Status, error) {
	for i, n := range statusNames {
		if n == name {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidStatus, name)
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStatus, int(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Campaign is a named marketing flow owned by one user
type Campaign struct {
	ID                   string             `json:"id"`
	OwnerID              string             `json:"owner_id"`
	Name                 string             `json:"name"`
	Brand                string             `json:"brand"`
	Goal                 string             `json:"goal"`
	Status               Status             `json:"status"`
	Structure            flow.Graph         `json:"structure"`
	StructureVersion     int64              `json:"structure_version"`
	Settings             map[string]any     `json:"settings"`
	PredictedPerformance map[string]float64 `json:"predicted_performance,omitempty"`
	ActualPerformance    map[string]float64 `json:"actual_performance,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// New creates a draft campaign with an empty structure
func New(owner, name, brand, goal string) *Campaign {
	now := time.Now().UTC()
	return &Campaign{
		ID:        uuid.New().String(),
		OwnerID:   owner,
		Name:      strings.TrimSpace(name),
		Brand:     strings.TrimSpace(brand),
		Goal:      strings.TrimSpace(goal),
		Status:    StatusDraft,
		Structure: *flow.New(),
		Settings:  map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Normalize fills in collections that must never be absent
func (c *Campaign) Normalize() {
	if c.Structure.Nodes == nil {
		c.Structure.Nodes = []flow.Node{}
	}
	if c.Structure.Edges == nil {
		c.Structure.Edges = []flow.Edge{}
	}
	if c.Settings == nil {
		c.Settings = map[string]any{}
	}
}

// UnmarshalJSON keeps the structure and settings defaults for stored records missing them
func (c *Campaign) UnmarshalJSON(data []byte) error {
	type plain Campaign
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Campaign(p)
	c.Normalize()
	return nil
}

// Validate checks field constraints against the brand allow-list
func (c *Campaign) Validate(brands BrandSet) error {
	var errs ValidationErrors
	if strings.TrimSpace(c.Name) == "" {
		errs.Add("name", "can't be blank")
	}
	if strings.TrimSpace(c.Goal) == "" {
		errs.Add("goal", "can't be blank")
	}
	if !brands.Contains(c.Brand) {
		errs.Add("brand", "is not included in the list")
	}
	if !c.Status.Valid() {
		errs.Add("status", "is not included in the list")
	}
	return errs.OrNil()
}

// SetStatus moves the campaign to any state
func (c *Campaign) SetStatus(s Status) error {
	if !s.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidStatus, int(s))
	}
	c.Status = s
	c.touch()
	return nil
}

// LogPerformance records actual metrics and forces the campaign to completed
func (c *Campaign) LogPerformance(metrics map[string]float64) {
	c.ActualPerformance = make(map[string]float64, len(metrics))
	for k, v := range metrics {
		c.ActualPerformance[k] = v
	}
	c.Status = StatusCompleted
	c.touch()
}

// Comparison pairs predicted and actual metrics with their variance
type Comparison struct {
	Predicted map[string]float64          `json:"predicted"`
	Actual    map[string]float64          `json:"actual"`
	Variance  map[string]predict.Variance `json:"variance"`
}

// PredictedVsActual returns nil unless both predicted and actual metrics exist
func (c *Campaign) PredictedVsActual() *Comparison {
	if len(c.PredictedPerformance) == 0 || len(c.ActualPerformance) == 0 {
		return nil
	}
	return &Comparison{
		Predicted: c.PredictedPerformance,
		Actual:    c.ActualPerformance,
		Variance:  predict.CompareVariance(c.PredictedPerformance, c.ActualPerformance),
	}
}

// Summary is the short form used in listings and comparisons
type Summary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status Status `json:"status"`
}

func (c *Campaign) Summary() Summary {
	return Summary{ID: c.ID, Name: c.Name, Status: c.Status}
}

func (c *Campaign) touch() {
	c.UpdatedAt = time.Now().UTC()
}
