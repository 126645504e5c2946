package textgen

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/foxzi/flowry/internal/campaign"
	"github.com/foxzi/flowry/internal/flow"
)

const mockAnalysis = "Mock analysis - upgrade to premium for AI-powered insights"

// MockGrade scores copy with fixed heuristics. The same node always gets the same grade.
func MockGrade(brand string, n *flow.Node) *Grading {
	content := n.ContentFields()
	length := utf8.RuneCountInString(content)

	score := 7
	if length > 50 {
		score++
	}
	if strings.ContainsAny(content, "!?") {
		score++
	}
	if length < 20 {
		score--
	}

	var feedback []string

	switch n.Type {
	case flow.TypeEmail:
		subject := n.Str("subject")
		body := n.Str("body")

		if subject == "" {
			feedback = append(feedback, "Add a compelling subject line to improve open rates")
			score -= 2
		} else if utf8.RuneCountInString(subject) > 50 {
			feedback = append(feedback, "Consider shortening subject line for mobile optimization")
		}

		if body == "" {
			feedback = append(feedback, "Add engaging body content to drive action")
			score -= 2
		} else if !strings.Contains(body, "http") && !strings.Contains(strings.ToLower(body), "click") {
			feedback = append(feedback, "Consider adding a clear call-to-action")
		}

		if len(feedback) == 0 {
			feedback = append(feedback, fmt.Sprintf("Personalize content for %s brand voice", brand))
		}

	case flow.TypePush:
		title := n.Str("title")
		body := n.Str("body")

		if title == "" {
			feedback = append(feedback, "Add an attention-grabbing title")
			score -= 2
		}
		if body == "" {
			feedback = append(feedback, "Add compelling body text to drive engagement")
			score -= 2
		} else if utf8.RuneCountInString(body) > 120 {
			feedback = append(feedback, "Consider shortening message for better mobile display")
		}

	default:
		feedback = append(feedback,
			fmt.Sprintf("Review content for %s brand alignment", brand),
			"Ensure clear value proposition",
			"Add compelling call-to-action",
		)
	}

	if len(feedback) == 0 {
		feedback = []string{
			"Strong foundation - consider A/B testing variations",
			fmt.Sprintf("Align messaging with %s brand voice", brand),
			"Test different emotional appeals",
		}
	}

	recommendations := append([]string(nil), feedback...)
	if len(feedback) > 3 {
		feedback = feedback[:3]
	}

	return &Grading{
		Score:           max(1, min(score, 10)),
		Feedback:        feedback,
		Analysis:        mockAnalysis,
		Recommendations: recommendations,
		Mock:            true,
	}
}

var (
	chatPerformance = regexp.MustCompile(`performance|performing|metrics|analytics`)
	chatImprove     = regexp.MustCompile(`improve|optimize|better`)
	chatCreate      = regexp.MustCompile(`create|build|new campaign`)
)

// MockChat answers by keyword so the chat stays usable without a model
func MockChat(message string) string {
	msg := strings.ToLower(message)
	switch {
	case chatPerformance.MatchString(msg):
		return "Great question! To determine if your campaign is performing optimally, I'd recommend tracking these key metrics:\n\n" +
			"• **Open Rate**: Aim for 20-25% for email campaigns\n" +
			"• **Click-through Rate**: Target 2-5% depending on your industry\n" +
			"• **Conversion Rate**: Monitor how many clicks turn into actions\n" +
			"• **ROI**: Calculate revenue generated vs. campaign cost\n\n" +
			"Would you like me to analyze a specific campaign's performance data?"
	case chatImprove.MatchString(msg):
		return "I can help you optimize your campaigns! Here are some proven strategies:\n\n" +
			"• **A/B test subject lines** - Try different approaches\n" +
			"• **Segment your audience** - Personalize based on behavior\n" +
			"• **Optimize send times** - Test different days/hours\n" +
			"• **Improve call-to-action** - Make buttons more compelling\n\n" +
			"What specific aspect would you like to focus on?"
	case chatCreate.MatchString(msg):
		return "I'd be happy to help you create a new campaign! Let me know:\n\n" +
			"• **Campaign goal** (acquisition, engagement, retention)\n" +
			"• **Target audience** (demographics, interests)\n" +
			"• **Brand** (Everclear or Phrendly)\n" +
			"• **Preferred channels** (email, social, ads)\n\n" +
			"I can then suggest a campaign structure and copy that aligns with your objectives."
	default:
		return "I'm here to help you with your marketing campaigns! I can assist with:\n\n" +
			"• **Campaign Performance Analysis** - Review metrics and suggest improvements\n" +
			"• **Copy Optimization** - Enhance your messaging for better results\n" +
			"• **Campaign Creation** - Build new campaigns from scratch\n" +
			"• **Strategic Recommendations** - Provide data-driven insights\n\n" +
			"What would you like to work on today?"
	}
}

// shortenLimit is the rune budget of a shortened text relative to the original
func shortenLimit(n int) int {
	return max(20, n/2)
}

// truncateWords cuts s to at most limit runes at a word boundary
func truncateWords(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	var out []string
	used := 0
	for _, w := range strings.Fields(s) {
		n := utf8.RuneCountInString(w)
		if used > 0 {
			n++
		}
		if used+n > limit {
			break
		}
		out = append(out, w)
		used += n
	}
	if len(out) == 0 {
		r := []rune(s)
		return string(r[:limit])
	}
	return strings.TrimRight(strings.Join(out, " "), ",;:-")
}

func ensureSentence(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	s = strings.ToUpper(string(r)) + s[size:]
	if !strings.ContainsAny(s[len(s)-1:], ".!?") {
		s += "."
	}
	return s
}

func firstSentence(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if i := strings.IndexAny(s, ".!?"); i > 0 {
		s = s[:i]
	}
	return truncateWords(s, 50)
}

// MockRewrite transforms text with fixed rules per intent
func MockRewrite(brand, text string, intent Intent) *Rewrite {
	title := brandTitle(brand)
	r := &Rewrite{
		OriginalText: text,
		Intent:       intent,
		Suggestions:  []string{},
		Mock:         true,
	}
	clean := ensureSentence(text)

	switch intent {
	case IntentImprove:
		out := clean
		if !strings.Contains(strings.ToLower(out), "http") && !strings.Contains(strings.ToLower(out), "click") {
			out += " Tap to get started."
		}
		r.RewrittenText = out
	case IntentEmpathetic:
		r.RewrittenText = "We understand how much this matters to you. " + clean
	case IntentPlayful:
		r.RewrittenText = strings.TrimRight(clean, ".") + "! Ready for some fun?"
	case IntentShorten:
		flat := strings.Join(strings.Fields(text), " ")
		r.RewrittenText = truncateWords(flat, shortenLimit(utf8.RuneCountInString(flat)))
	case IntentLengthen:
		r.RewrittenText = fmt.Sprintf("%s Discover what makes %s different, and take the next step today.", clean, title)
	case IntentHeadlines:
		base := firstSentence(text)
		if base == "" {
			base = "Something new is waiting"
		}
		r.Suggestions = []string{
			base,
			base + "?",
			"Don't miss this: " + base,
			base + " | " + title,
			"New from " + title + ": " + base,
		}
	}

	return r
}

// MockFunnel derives suggestions from the graph shape
func MockFunnel(brand string, g *flow.Graph) *FunnelAnalysis {
	a := &FunnelAnalysis{
		Suggestions:               []Suggestion{},
		MissingTouchpoints:        []string{},
		OptimizationOpportunities: []string{},
		Mock:                      true,
	}

	if len(g.GetNodes()) == 0 {
		a.Suggestions = append(a.Suggestions, Suggestion{
			Title:       "Start with a welcome touchpoint",
			Description: fmt.Sprintf("Add a welcome email that introduces %s and sets expectations for the journey.", brandTitle(brand)),
		})
		a.MissingTouchpoints = append(a.MissingTouchpoints, "email: welcome message")
		return a
	}

	have := make(map[string]bool)
	for _, ch := range campaign.Channels(g) {
		have[ch] = true
	}

	missing := []struct {
		channel string
		node    string
	}{
		{"email", "email: follow-up message for users who did not convert"},
		{"push", "push: short reminder shortly after the first touchpoint"},
		{"social", "social: organic post that reinforces the campaign message"},
		{"ads", "ad: retargeting ad for engaged but unconverted users"},
	}
	for _, m := range missing {
		if !have[m.channel] {
			a.MissingTouchpoints = append(a.MissingTouchpoints, m.node)
		}
	}

	if orphans := len(g.Orphans()); orphans > 0 {
		a.Suggestions = append(a.Suggestions, Suggestion{
			Title:       "Connect isolated touchpoints",
			Description: fmt.Sprintf("%d node(s) have no connections. Link them into the journey so every user can reach them.", orphans),
		})
	}
	if !g.HasType(flow.TypeDelay) {
		a.Suggestions = append(a.Suggestions, Suggestion{
			Title:       "Add timing between touchpoints",
			Description: "Insert delay nodes so messages are spaced out instead of arriving at once.",
		})
	}
	if !g.HasType(flow.TypeConditional, flow.TypeConditionalSplit) {
		a.Suggestions = append(a.Suggestions, Suggestion{
			Title:       "Personalize with a conditional split",
			Description: "Branch the flow on engagement (opened, clicked, converted) to tailor follow-ups.",
		})
	}
	if len(a.Suggestions) == 0 {
		a.Suggestions = append(a.Suggestions, Suggestion{
			Title:       "Test variations",
			Description: "The journey is complete. A/B test the strongest touchpoint to lift conversion.",
		})
	}

	if !g.HasType(flow.TypeGA4Event) {
		a.OptimizationOpportunities = append(a.OptimizationOpportunities, "Track conversions with a GA4 event node at the end of the journey")
	}
	if have["email"] {
		a.OptimizationOpportunities = append(a.OptimizationOpportunities, "Keep email subject lines under 50 characters for mobile inboxes")
	}
	if have["push"] {
		a.OptimizationOpportunities = append(a.OptimizationOpportunities, "Send push notifications at the user's local active hours")
	}
	a.OptimizationOpportunities = append(a.OptimizationOpportunities, "Tag every link with UTM parameters for attribution")

	return a
}
