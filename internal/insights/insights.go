// Package insights turns the reference catalog into tracking and copy recommendations:
// GA4 event plans, UTM conventions per channel and platform content checks.
package insights

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gosimple/slug"

	"github.com/foxzi/flowry/internal/flow"
	"github.com/foxzi/flowry/internal/reference"
)

var ErrUnsupportedPlatform = errors.New("unsupported platform")

// Advisor answers recommendation queries against a catalog
type Advisor struct {
	catalog *reference.Catalog
}

// NewAdvisor creates an advisor. A nil catalog uses the embedded one.
func NewAdvisor(catalog *reference.Catalog) *Advisor {
	if catalog == nil {
		catalog = reference.Default()
	}
	return &Advisor{catalog: catalog}
}

// goalGroups maps goal wording to GA4 event groups. First match wins.
var goalGroups = []struct {
	re     *regexp.Regexp
	groups []string
}{
	{regexp.MustCompile(`(?i)purchase|buy|shop|ecommerce`), []string{"ecommerce"}},
	{regexp.MustCompile(`(?i)content|read|view|engagement`), []string{"content", "engagement"}},
	{regexp.MustCompile(`(?i)signup|register|lead`), []string{"engagement"}},
	{regexp.MustCompile(`(?i)game|virtual|reward`), []string{"monetization"}},
}

// JourneyEvent is the tracking event suggested for one flow node
type JourneyEvent struct {
	EventName string `json:"event_name"`
	Trigger   string `json:"trigger"`
	NodeID    string `json:"node_id"`
}

// EventGuide explains how to implement one recommended event
type EventGuide struct {
	EventName      string `json:"event_name"`
	Description    string `json:"description"`
	Implementation string `json:"implementation"`
}

// SetupGuide walks through instrumenting the recommended events
type SetupGuide struct {
	Overview  string       `json:"overview"`
	Events    []EventGuide `json:"events"`
	NextSteps []string     `json:"next_steps"`
}

// GA4Plan is the GA4 tracking plan for a goal and journey
type GA4Plan struct {
	RecommendedEvents []string       `json:"recommended_events"`
	JourneyEvents     []JourneyEvent `json:"journey_events"`
	SetupGuide        SetupGuide     `json:"setup_guide"`
}

// SuggestGA4Events picks the event groups matching goal and a tracking event per content node
func (a *Advisor) SuggestGA4Events(goal string, nodes []flow.Node) *GA4Plan {
	groups := []string{"engagement"}
	for _, g := range goalGroups {
		if g.re.MatchString(goal) {
			groups = g.groups
			break
		}
	}

	plan := &GA4Plan{
		RecommendedEvents: []string{},
		JourneyEvents:     []JourneyEvent{},
	}
	for _, g := range groups {
		plan.RecommendedEvents = append(plan.RecommendedEvents, a.catalog.GA4Group(g)...)
	}

	for _, n := range nodes {
		var name, trigger string
		switch n.Type {
		case flow.TypeEmail:
			name, trigger = "email_open", "Email opened"
		case flow.TypePush:
			name, trigger = "push_notification_open", "Push notification opened"
		case flow.TypeSocial:
			name, trigger = "social_content_view", "Social content viewed"
		case flow.TypeAd:
			name, trigger = "ad_click", "Advertisement clicked"
		default:
			continue
		}
		plan.JourneyEvents = append(plan.JourneyEvents, JourneyEvent{EventName: name, Trigger: trigger, NodeID: n.ID})
	}

	plan.SetupGuide = SetupGuide{
		Overview: "Set up these recommended events to track user behavior effectively",
		Events:   make([]EventGuide, 0, len(plan.RecommendedEvents)),
		NextSteps: []string{
			"Install GA4 tracking code on your website",
			"Set up Google Tag Manager for easier event management",
			"Create custom conversions based on your business goals",
			"Set up attribution reporting to understand customer journeys",
		},
	}
	for _, e := range plan.RecommendedEvents {
		plan.SetupGuide.Events = append(plan.SetupGuide.Events, EventGuide{
			EventName:      e,
			Description:    a.catalog.GA4Description(e),
			Implementation: gtagSnippet(e),
		})
	}

	return plan
}

func gtagSnippet(event string) string {
	switch event {
	case "purchase":
		return "gtag('event', 'purchase', { transaction_id: 'T12345', value: 25.42, currency: 'USD', items: [...] });"
	case "sign_up", "login":
		return fmt.Sprintf("gtag('event', '%s', { method: 'email' });", event)
	}
	return fmt.Sprintf("gtag('event', '%s');", event)
}

// SampleJourney returns a representative set of nodes for a goal, used when no campaign exists yet
func SampleJourney(goal string) []flow.Node {
	node := func(id string, t flow.NodeType, k, v string) flow.Node {
		return flow.Node{ID: id, Type: t, Data: map[string]any{k: v}}
	}
	switch g := strings.ToLower(goal); {
	case goalGroups[0].re.MatchString(g):
		return []flow.Node{
			node("1", flow.TypeEmail, "subject", "Complete your purchase"),
			node("2", flow.TypeSocial, "platform", "facebook"),
			node("3", flow.TypeAd, "platform", "google"),
		}
	case goalGroups[2].re.MatchString(g):
		return []flow.Node{
			node("1", flow.TypeEmail, "subject", "Welcome to our platform"),
			node("2", flow.TypePush, "title", "Complete your profile"),
		}
	}
	return []flow.Node{
		node("1", flow.TypeSocial, "platform", "instagram"),
		node("2", flow.TypeEmail, "subject", "Stay engaged"),
	}
}

// UTMRecommendation is the suggested tagging for one channel
type UTMRecommendation struct {
	Channel     string `json:"channel"`
	UTMSource   string `json:"utm_source"`
	UTMMedium   string `json:"utm_medium"`
	UTMCampaign string `json:"utm_campaign"`
	UTMContent  string `json:"utm_content"`
	ExampleURL  string `json:"example_url"`
}

// UTMPlan is the UTM tagging plan for a campaign
type UTMPlan struct {
	Recommendations   []UTMRecommendation `json:"recommendations"`
	BestPractices     []string            `json:"best_practices"`
	NamingConventions map[string]string   `json:"naming_conventions"`
}

const exampleLandingURL = "https://example.com/landing"

// UTMRecommendations suggests source and medium per channel under one slugged campaign name
func (a *Advisor) UTMRecommendations(campaignName, brand string, channels []string) *UTMPlan {
	base := slug.Make(campaignName)

	plan := &UTMPlan{
		Recommendations: make([]UTMRecommendation, 0, len(channels)),
		BestPractices: []string{
			"Use consistent naming conventions across all campaigns",
			"Keep UTM parameters lowercase and use hyphens instead of spaces",
			"Be specific but concise with utm_content to identify different creative versions",
			"Always use utm_source and utm_medium at minimum",
			"Create a UTM tracking spreadsheet to maintain consistency",
			"Test your UTM links before launching campaigns",
			"Use URL shorteners for social media to avoid long, cluttered links",
		},
		NamingConventions: map[string]string{
			"campaign": "Use format: goal-timeframe-descriptor (e.g., 'signup-q4-holiday')",
			"source":   "Identify the specific website or platform (e.g., 'facebook', 'newsletter')",
			"medium":   "Identify the marketing medium (e.g., 'email', 'cpc', 'social')",
			"content":  "Differentiate similar content or links (e.g., 'header-cta', 'footer-link')",
		},
	}

	for _, ch := range channels {
		source, medium := utmSource(ch, brand), utmMedium(ch)
		plan.Recommendations = append(plan.Recommendations, UTMRecommendation{
			Channel:     ch,
			UTMSource:   source,
			UTMMedium:   medium,
			UTMCampaign: base,
			UTMContent:  "auto-generated-from-node-name",
			ExampleURL: fmt.Sprintf("%s?utm_source=%s&utm_medium=%s&utm_campaign=%s&utm_content=example-content",
				exampleLandingURL, url.QueryEscape(source), url.QueryEscape(medium), url.QueryEscape(base)),
		})
	}
	return plan
}

func utmSource(channel, brand string) string {
	if channel == "email" {
		return brand + "-newsletter"
	}
	return brand + "-" + channel
}

func utmMedium(channel string) string {
	switch channel {
	case "email":
		return "email"
	case "facebook", "instagram", "tiktok", "twitter":
		return "social"
	}
	return "marketing"
}

// Channels lists the distinct channels a flow publishes to, in node order.
// Social and ad nodes report their data.platform when set.
func Channels(g *flow.Graph) []string {
	seen := make(map[string]bool)
	var out []string
	nodes := g.GetNodes()
	for i := range nodes {
		n := &nodes[i]
		var ch string
		switch n.Type {
		case flow.TypeEmail, flow.TypePush:
			ch = string(n.Type)
		case flow.TypeSocial:
			ch = firstNonBlank(n.Str("platform"), "social")
		case flow.TypeAd:
			ch = firstNonBlank(n.Str("platform"), "advertising")
		default:
			continue
		}
		if !seen[ch] {
			seen[ch] = true
			out = append(out, ch)
		}
	}
	return out
}

func firstNonBlank(v, fallback string) string {
	if s := strings.TrimSpace(v); s != "" {
		return s
	}
	return fallback
}

// LimitUsage reports how much of a field's character budget is used
type LimitUsage struct {
	CurrentCount   int     `json:"current_count"`
	Limit          int     `json:"limit"`
	Remaining      int     `json:"remaining"`
	Status         string  `json:"status"`
	PercentageUsed float64 `json:"percentage_used"`
}

const (
	StatusWithinLimit  = "within_limit"
	StatusExceedsLimit = "exceeds_limit"
)

// PracticeCheck is one best-practice test on the copy
type PracticeCheck struct {
	Practice string `json:"practice"`
	Status   string `json:"status"`
}

// Compliance scores copy against the basic best practices
type Compliance struct {
	Score       int             `json:"score"`
	MaxScore    int             `json:"max_score"`
	Checks      []PracticeCheck `json:"checks"`
	Suggestions []string        `json:"suggestions"`
}

// ContentAnalysis is the platform fitness report for a piece of copy
type ContentAnalysis struct {
	Platform                string                `json:"platform"`
	CharacterCountAnalysis  map[string]LimitUsage `json:"character_count_analysis"`
	BestPracticesCompliance Compliance            `json:"best_practices_compliance"`
	Recommendations         []string              `json:"recommendations"`
	OptimizationScore       int                   `json:"optimization_score"`
}

var (
	ctaVerbs     = regexp.MustCompile(`(?i)\b(click|tap|shop|buy|learn|discover|get|try)\b`)
	storyWords   = regexp.MustCompile(`(?i)\b(story|journey|experience|discovered|learned)\b`)
	questionish  = regexp.MustCompile(`(?i)\?|what|how|which|poll`)
	hashtags     = regexp.MustCompile(`#\w+`)
	unsubscribes = regexp.MustCompile(`(?i)unsubscribe|opt.?out|manage.*preferences|update.*subscription`)
)

// textFields are the data keys read as copy
var textFields = []string{"subject", "body", "title", "caption", "text", "content"}

// AnalyzeContent checks the copy in n against the platform's limits and practices
func (a *Advisor) AnalyzeContent(platform string, n *flow.Node, brand string) (*ContentAnalysis, error) {
	p, ok := a.catalog.Platform(platform)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, platform)
	}

	text := allText(n)
	usage := characterUsage(n, p.CharacterLimits)
	compliance := a.compliance(text, p.BestPractices, brand)

	return &ContentAnalysis{
		Platform:                platform,
		CharacterCountAnalysis:  usage,
		BestPracticesCompliance: compliance,
		Recommendations:         a.recommendations(platform, n, text, brand),
		OptimizationScore:       optimizationScore(usage, compliance),
	}, nil
}

// Platform returns the guidance for a platform
func (a *Advisor) Platform(name string) (reference.Platform, error) {
	p, ok := a.catalog.Platform(name)
	if !ok {
		return reference.Platform{}, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, name)
	}
	return p, nil
}

func allText(n *flow.Node) string {
	var parts []string
	for _, f := range textFields {
		if v, ok := n.Data[f].(string); ok {
			parts = append(parts, v)
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func characterUsage(n *flow.Node, limits []reference.CharLimit) map[string]LimitUsage {
	out := make(map[string]LimitUsage, len(limits))
	for _, l := range limits {
		count := utf8.RuneCountInString(n.Str(l.Field))
		u := LimitUsage{
			CurrentCount:   count,
			Limit:          l.Limit,
			Remaining:      l.Limit - count,
			Status:         StatusWithinLimit,
			PercentageUsed: math.Round(float64(count)/float64(l.Limit)*1000) / 10,
		}
		if count > l.Limit {
			u.Status = StatusExceedsLimit
		}
		out[l.Field] = u
	}
	return out
}

func (a *Advisor) compliance(text string, practices []string, brand string) Compliance {
	c := Compliance{MaxScore: 100, Checks: []PracticeCheck{}, Suggestions: []string{}}

	check := func(practice string, points int, ok bool) {
		status := "fail"
		if ok {
			c.Score += points
			status = "pass"
		}
		c.Checks = append(c.Checks, PracticeCheck{Practice: practice, Status: status})
	}

	check("Includes links/URLs", 10, strings.Contains(text, "http") || strings.Contains(text, "www"))
	check("Contains call-to-action verbs", 15, ctaVerbs.MatchString(text))
	check("Aligns with brand voice", 10, a.mentionsBrandKeyword(text, brand))

	for _, ch := range c.Checks {
		if ch.Status == "fail" {
			c.Suggestions = append(c.Suggestions, "Improve: "+ch.Practice)
		}
	}
	if len(practices) > 2 {
		practices = practices[:2]
	}
	c.Suggestions = append(c.Suggestions, practices...)
	return c
}

func (a *Advisor) mentionsBrandKeyword(text, brand string) bool {
	b, ok := a.catalog.Brand(brand)
	if !ok {
		return false
	}
	lower := strings.ToLower(text)
	for _, k := range b.Keywords {
		if k != "" && strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

func (a *Advisor) recommendations(platform string, n *flow.Node, text, brand string) []string {
	var out []string
	tags := len(hashtags.FindAllString(text, -1))

	switch platform {
	case "facebook":
		if n.Str("media_type") != "video" {
			out = append(out, "Consider using video content - Facebook videos get 135% more organic reach than photos")
		}
		if !storyWords.MatchString(text) {
			out = append(out, "Add storytelling elements to increase emotional connection")
		}
	case "instagram":
		switch {
		case tags < 5:
			out = append(out, "Add more relevant hashtags (aim for 5-10 targeted hashtags)")
		case tags > 15:
			out = append(out, "Reduce hashtag count - quality over quantity works better")
		}
		if _, ok := n.Data["visual_elements"]; !ok {
			out = append(out,
				"Ensure high-quality, visually appealing images or videos",
				"Consider using carousel format for multiple products/features")
		}
	case "tiktok":
		out = append(out,
			"Hook viewers in the first 3 seconds with a compelling opening",
			"Keep content authentic and unpolished - perfection isn't the goal",
			"Use trending sounds and participate in challenges",
			"Include captions for accessibility and silent viewing")
	case "twitter":
		if !questionish.MatchString(text) {
			out = append(out, "Add questions or polls to increase engagement")
		}
		if tags > 2 {
			out = append(out, "Limit hashtags to 1-2 per tweet for better engagement")
		}
		out = append(out,
			"Consider creating a thread for longer-form content",
			"Engage with replies within the first hour of posting")
	case "email":
		if !ctaVerbs.MatchString(text) {
			out = append(out, "Include a clear, prominent call-to-action")
		}
		if !unsubscribes.MatchString(text) {
			out = append(out, "Include an unsubscribe link in every email")
		}
	}

	if b, ok := a.catalog.Brand(brand); ok {
		out = append(out, b.PlatformTips[platform]...)
	}
	if out == nil {
		out = []string{}
	}
	return out
}

// optimizationScore starts at 50, adds up to 30 for fields within limits and a fifth of the compliance score
func optimizationScore(usage map[string]LimitUsage, c Compliance) int {
	score := 50.0
	if len(usage) > 0 {
		within := 0
		for _, u := range usage {
			if u.Status == StatusWithinLimit {
				within++
			}
		}
		score += float64(within) / float64(len(usage)) * 30
	}
	score += float64(c.Score) * 0.2
	return int(math.Round(score))
}
