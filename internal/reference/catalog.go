// Package reference holds the read-only marketing reference data used by the analyzers.
package reference

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/foxzi/flowry/internal/flow"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Brand describes one brand the service writes copy for
type Brand struct {
	Name            string   `yaml:"name" json:"name"`
	Description     string   `yaml:"description" json:"description"`
	Voice           string   `yaml:"voice" json:"voice"`
	TargetUser      string   `yaml:"target_user" json:"target_user"`
	BusinessGoals   string   `yaml:"business_goals" json:"business_goals"`
	IndustryContext string   `yaml:"industry_context" json:"industry_context"`
	Keywords        []string `yaml:"keywords" json:"keywords"`
	Segments        []string `yaml:"segments" json:"segments"`
	// PlatformTips are brand specific recommendations keyed by platform
	PlatformTips map[string][]string `yaml:"platform_tips" json:"platform_tips,omitempty"`
}

// Limits are per-channel character limits
type Limits struct {
	EmailSubject   int `yaml:"email_subject" json:"email_subject"`
	EmailPreheader int `yaml:"email_preheader" json:"email_preheader"`
	PushTitle      int `yaml:"push_title" json:"push_title"`
	PushBody       int `yaml:"push_body" json:"push_body"`
	AdHeadline     int `yaml:"ad_headline" json:"ad_headline"`
	AdPrimaryText  int `yaml:"ad_primary_text" json:"ad_primary_text"`
	SocialCaption  int `yaml:"social_caption" json:"social_caption"`
}

// HeadlineLimit returns the headline character limit for a node type, 0 if unbounded
func (l Limits) HeadlineLimit(t flow.NodeType) int {
	switch t {
	case flow.TypeEmail:
		return l.EmailSubject
	case flow.TypePush:
		return l.PushTitle
	case flow.TypeAd, flow.TypeSocial:
		return l.AdHeadline
	}
	return 0
}

// Benchmark is a metric with its qualitative ranges
type Benchmark struct {
	Metric           string `yaml:"metric" json:"metric"`
	Description      string `yaml:"description" json:"description"`
	Excellent        string `yaml:"excellent" json:"excellent"`
	Good             string `yaml:"good" json:"good"`
	Average          string `yaml:"average" json:"average"`
	NeedsImprovement string `yaml:"needs_improvement" json:"needs_improvement"`
}

// CharLimit caps one copy field of a platform
type CharLimit struct {
	Field string `yaml:"field" json:"field"`
	Limit int    `yaml:"limit" json:"limit"`
}

// Platform is the publishing guidance for one channel
type Platform struct {
	Name            string      `yaml:"name" json:"platform"`
	CharacterLimits []CharLimit `yaml:"character_limits" json:"character_limits"`
	BestPractices   []string    `yaml:"best_practices" json:"best_practices"`
	Guidance        []string    `yaml:"guidance" json:"additional_guidance"`
}

// GA4Events groups the recommended GA4 events by intent
type GA4Events struct {
	Groups       map[string][]string `yaml:"groups"`
	Descriptions map[string]string   `yaml:"descriptions"`
}

// TemplateMetadata mirrors the descriptive metadata of a campaign template
type TemplateMetadata struct {
	Channels    []string `yaml:"channels"`
	Complexity  string   `yaml:"complexity"`
	SetupTime   string   `yaml:"setup_time"`
	Recommended bool     `yaml:"recommended"`
}

// SeedTemplate is a template shipped with the catalog
type SeedTemplate struct {
	Name        string           `yaml:"name"`
	Brand       string           `yaml:"brand"`
	Goal        string           `yaml:"goal"`
	Description string           `yaml:"description"`
	Metadata    TemplateMetadata `yaml:"metadata"`
	Structure   flow.Graph       `yaml:"structure"`
}

// Catalog is the parsed reference data. It is never mutated after load.
type Catalog struct {
	BrandList       []Brand        `yaml:"brands"`
	GoalList        []string       `yaml:"goals"`
	DefaultSegments []string       `yaml:"default_segments"`
	ChannelLimits   Limits         `yaml:"limits"`
	BenchmarkList   []Benchmark    `yaml:"benchmarks"`
	PlatformList    []Platform     `yaml:"platforms"`
	GA4             GA4Events      `yaml:"ga4_events"`
	Templates       []SeedTemplate `yaml:"templates"`
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
)

// Default returns the catalog embedded in the binary
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(defaultCatalog)
		if err != nil {
			panic(fmt.Sprintf("embedded reference catalog: %v", err))
		}
		defaultCat = c
	})
	return defaultCat
}

// Load reads a catalog from path. An empty path returns the embedded catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates catalog YAML
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse reference catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid reference catalog: %w", err)
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if len(c.BrandList) == 0 {
		return errors.New("at least one brand is required")
	}
	seen := make(map[string]bool, len(c.BrandList))
	for i, b := range c.BrandList {
		name := strings.TrimSpace(b.Name)
		if name == "" {
			return fmt.Errorf("brands[%d]: name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("brands[%d]: duplicate brand %q", i, name)
		}
		seen[name] = true
	}
	platforms := make(map[string]bool, len(c.PlatformList))
	for i, p := range c.PlatformList {
		if p.Name == "" || platforms[p.Name] {
			return fmt.Errorf("platforms[%d]: missing or duplicate name %q", i, p.Name)
		}
		platforms[p.Name] = true
		for _, l := range p.CharacterLimits {
			if l.Field == "" || l.Limit <= 0 {
				return fmt.Errorf("platforms[%d]: invalid character limit %+v", i, l)
			}
		}
	}
	for i, t := range c.Templates {
		if !seen[t.Brand] {
			return fmt.Errorf("templates[%d]: unknown brand %q", i, t.Brand)
		}
	}
	return nil
}

// Brands returns the brand allow-list
func (c *Catalog) Brands() []string {
	out := make([]string, 0, len(c.BrandList))
	for _, b := range c.BrandList {
		out = append(out, b.Name)
	}
	return out
}

// Brand looks up a brand by name
func (c *Catalog) Brand(name string) (Brand, bool) {
	for _, b := range c.BrandList {
		if b.Name == name {
			return b, true
		}
	}
	return Brand{}, false
}

// Goals returns the suggested campaign goals
func (c *Catalog) Goals() []string {
	return c.GoalList
}

// Segments returns audience segments per brand, plus "default" for unknown brands
func (c *Catalog) Segments() map[string][]string {
	out := make(map[string][]string, len(c.BrandList)+1)
	for _, b := range c.BrandList {
		out[b.Name] = b.Segments
	}
	out["default"] = c.DefaultSegments
	return out
}

// Limits returns the channel character limits
func (c *Catalog) Limits() Limits {
	return c.ChannelLimits
}

// Benchmarks returns the benchmark table
func (c *Catalog) Benchmarks() []Benchmark {
	return c.BenchmarkList
}

// Platform looks up the guidance for a platform
func (c *Catalog) Platform(name string) (Platform, bool) {
	for _, p := range c.PlatformList {
		if p.Name == name {
			return p, true
		}
	}
	return Platform{}, false
}

// PlatformNames returns the platforms with guidance, in catalog order
func (c *Catalog) PlatformNames() []string {
	out := make([]string, 0, len(c.PlatformList))
	for _, p := range c.PlatformList {
		out = append(out, p.Name)
	}
	return out
}

// GA4Group returns the recommended events of a group
func (c *Catalog) GA4Group(name string) []string {
	return c.GA4.Groups[name]
}

// GA4Description describes a GA4 event, with a generic fallback for custom events
func (c *Catalog) GA4Description(event string) string {
	if d, ok := c.GA4.Descriptions[event]; ok {
		return d
	}
	return "Custom event for tracking specific user interactions"
}

// SeedTemplates returns the templates shipped with the catalog
func (c *Catalog) SeedTemplates() []SeedTemplate {
	return c.Templates
}

// BrandVoice returns the voice for a brand with a neutral fallback
func (c *Catalog) BrandVoice(name string) string {
	if b, ok := c.Brand(name); ok && b.Voice != "" {
		return b.Voice
	}
	return "professional and engaging"
}
