package campaign

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/flowry/internal/flow"
)

const (
	defaultComplexity      = "beginner"
	defaultSetupTime       = "15 minutes"
	fromCampaignComplexity = "intermediate"
)

var channelNames = map[flow.NodeType]string{
	flow.TypeEmail:    "email",
	flow.TypePush:     "push",
	flow.TypeAd:       "ads",
	flow.TypeSocial:   "social",
	flow.TypeGA4Event: "analytics",
}

// TemplateMetadata is the descriptive part of a template
type TemplateMetadata struct {
	Channels            []string `json:"channels,omitempty"`
	Complexity          string   `json:"complexity,omitempty"`
	SetupTime           string   `json:"setup_time,omitempty"`
	Recommended         bool     `json:"recommended"`
	CreatedFromCampaign bool     `json:"created_from_campaign,omitempty"`
	OriginalCampaignID  string   `json:"original_campaign_id,omitempty"`
}

// Template is a reusable brand and goal tagged flow blueprint
type Template struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Brand       string           `json:"brand"`
	Goal        string           `json:"goal"`
	Description string           `json:"description"`
	Structure   flow.Graph       `json:"structure"`
	Metadata    TemplateMetadata `json:"metadata"`
	Version     int              `json:"version"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// ComplexityLevel returns the complexity tier, beginner by default
func (t *Template) ComplexityLevel() string {
	if t.Metadata.Complexity == "" {
		return defaultComplexity
	}
	return t.Metadata.Complexity
}

// EstimatedSetupTime returns the setup estimate, 15 minutes by default
func (t *Template) EstimatedSetupTime() string {
	if t.Metadata.SetupTime == "" {
		return defaultSetupTime
	}
	return t.Metadata.SetupTime
}

func (t *Template) Recommended() bool {
	return t.Metadata.Recommended
}

// Validate checks required fields and the brand allow-list
func (t *Template) Validate(brands BrandSet) error {
	var errs ValidationErrors
	if strings.TrimSpace(t.Name) == "" {
		errs.Add("name", "can't be blank")
	}
	if !brands.Contains(t.Brand) {
		errs.Add("brand", "is not included in the list")
	}
	if strings.TrimSpace(t.Goal) == "" {
		errs.Add("goal", "can't be blank")
	}
	if strings.TrimSpace(t.Description) == "" {
		errs.Add("description", "can't be blank")
	}
	if len(t.Structure.Nodes) == 0 {
		errs.Add("structure", "can't be blank")
	}
	return errs.OrNil()
}

// TemplateFromCampaign snapshots a campaign's structure as a new template.
// Empty complexity and setupTime fall back to intermediate and 15 minutes.
func TemplateFromCampaign(c *Campaign, name, description, complexity, setupTime string) *Template {
	if complexity == "" {
		complexity = fromCampaignComplexity
	}
	if setupTime == "" {
		setupTime = defaultSetupTime
	}
	now := time.Now().UTC()
	return &Template{
		ID:          uuid.New().String(),
		Name:        strings.TrimSpace(name),
		Brand:       c.Brand,
		Goal:        c.Goal,
		Description: strings.TrimSpace(description),
		Structure:   *c.Structure.Clone(),
		Metadata: TemplateMetadata{
			Channels:            Channels(&c.Structure),
			Complexity:          complexity,
			SetupTime:           setupTime,
			Recommended:         false,
			CreatedFromCampaign: true,
			OriginalCampaignID:  c.ID,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Channels maps the node types of a flow to marketing channel names
func Channels(g *flow.Graph) []string {
	out := []string{}
	seen := make(map[string]bool)
	for _, t := range g.NodeTypes() {
		name, ok := channelNames[t]
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// Instantiate seeds a new draft campaign with the template structure.
// A blank name becomes "<template> - Jan 02", a blank goal keeps the template goal.
func (t *Template) Instantiate(owner, name, goal string, now time.Time) *Campaign {
	if strings.TrimSpace(name) == "" {
		name = t.Name + " - " + now.Format("Jan 02")
	}
	if strings.TrimSpace(goal) == "" {
		goal = t.Goal
	}
	c := New(owner, name, t.Brand, goal)
	c.Structure = *t.Structure.Clone()
	return c
}
