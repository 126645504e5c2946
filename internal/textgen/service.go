package textgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/foxzi/flowry/internal/campaign"
	"github.com/foxzi/flowry/internal/flow"
	"github.com/foxzi/flowry/internal/metrics"
	"github.com/foxzi/flowry/internal/reference"
)

// Feature names label fallbacks in logs and metrics
const (
	FeatureGradeCopy     = "grade_copy"
	FeatureRewrite       = "ai_rewrite"
	FeatureAnalyzeFunnel = "funnel_analysis"
	FeatureChat          = "chat"
)

var (
	ErrUnknownIntent    = errors.New("unknown rewrite intent")
	errNoGenerator      = errors.New("no text generator configured")
	errUnusableResponse = errors.New("model response could not be used")
)

// Intent selects how Rewrite transforms text
type Intent string

const (
	IntentImprove    Intent = "improve"
	IntentEmpathetic Intent = "make_empathetic"
	IntentPlayful    Intent = "make_playful"
	IntentShorten    Intent = "shorten"
	IntentLengthen   Intent = "lengthen"
	IntentHeadlines  Intent = "suggest_headlines"
)

// Intents lists the supported rewrite intents
func Intents() []Intent {
	return []Intent{IntentImprove, IntentEmpathetic, IntentPlayful, IntentShorten, IntentLengthen, IntentHeadlines}
}

// ParseIntent validates an intent name
func ParseIntent(s string) (Intent, error) {
	for _, i := range Intents() {
		if string(i) == s {
			return i, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownIntent, s)
}

// Grading is the copy grading result
type Grading struct {
	Score           int      `json:"score"`
	Feedback        []string `json:"feedback"`
	Analysis        string   `json:"analysis,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
	Mock            bool     `json:"mock,omitempty"`
}

// Rewrite is the result of an ai_rewrite request
type Rewrite struct {
	OriginalText  string   `json:"original_text"`
	Intent        Intent   `json:"intent"`
	Suggestions   []string `json:"suggestions"`
	RewrittenText string   `json:"rewritten_text,omitempty"`
	Mock          bool     `json:"mock,omitempty"`
}

// Suggestion is one funnel improvement idea
type Suggestion struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// FunnelAnalysis is the funnel_analysis result
type FunnelAnalysis struct {
	Suggestions               []Suggestion `json:"suggestions"`
	MissingTouchpoints        []string     `json:"missing_touchpoints"`
	OptimizationOpportunities []string     `json:"optimization_opportunities"`
	Mock                      bool         `json:"mock,omitempty"`
}

// ChatMessage is one turn of a chat history
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UnmarshalJSON also accepts "message" as the content key
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    string `json:"role"`
		Content string `json:"content"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	m.Content = raw.Content
	if m.Content == "" {
		m.Content = raw.Message
	}
	return nil
}

// ChatRequest is one strategist chat turn
type ChatRequest struct {
	Message  string
	History  []ChatMessage
	Brand    string
	Campaign *campaign.Campaign
}

// ChatReply is the strategist answer
type ChatReply struct {
	Message string `json:"message"`
	Mock    bool   `json:"mock,omitempty"`
}

// Service wraps a Generator with prompts, response parsing and fallbacks.
// A nil generator makes every call use the fallback.
type Service struct {
	gen     Generator
	catalog *reference.Catalog
	timeout time.Duration
	logger  *slog.Logger
}

// NewService creates a text generation service
func NewService(gen Generator, catalog *reference.Catalog, timeout time.Duration, logger *slog.Logger) *Service {
	if catalog == nil {
		catalog = reference.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Service{
		gen:     gen,
		catalog: catalog,
		timeout: timeout,
		logger:  logger,
	}
}

// Live reports whether a real generator is configured
func (s *Service) Live() bool {
	return s.gen != nil
}

func (s *Service) generate(ctx context.Context, system, prompt string) (string, error) {
	if s.gen == nil {
		return "", errNoGenerator
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.gen.Generate(ctx, system, prompt)
}

func (s *Service) fallback(feature string, err error) {
	s.logger.Warn("using fallback text generation", "feature", feature, "error", err)
	metrics.IncTextgenFallback(feature)
}

// GradeCopy scores the copy of a content node on a 1 to 10 scale
func (s *Service) GradeCopy(ctx context.Context, brand string, n *flow.Node) *Grading {
	out, err := s.generate(ctx, gradingSystemPrompt, s.gradingPrompt(brand, n))
	if err == nil {
		if g, ok := parseGrading(out); ok {
			return g
		}
		err = errUnusableResponse
	}
	s.fallback(FeatureGradeCopy, err)
	return MockGrade(brand, n)
}

func parseGrading(out string) (*Grading, bool) {
	raw, ok := extractJSON(out)
	if !ok {
		return nil, false
	}
	var g Grading
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return nil, false
	}
	if g.Score < 1 || g.Score > 10 || len(g.Feedback) == 0 {
		return nil, false
	}
	if g.Recommendations == nil {
		g.Recommendations = g.Feedback
	}
	g.Mock = false
	return &g, true
}

// Rewrite transforms text according to intent. Only an unknown intent is an error.
func (s *Service) Rewrite(ctx context.Context, brand, text string, intent Intent, nodeType flow.NodeType) (*Rewrite, error) {
	if _, err := ParseIntent(string(intent)); err != nil {
		return nil, err
	}

	out, err := s.generate(ctx, rewriteSystemPrompt, s.rewritePrompt(brand, text, intent, nodeType))
	if err == nil {
		if r, ok := parseRewrite(out, text, intent); ok {
			return r, nil
		}
		err = errUnusableResponse
	}
	s.fallback(FeatureRewrite, err)
	return MockRewrite(brand, text, intent), nil
}

func parseRewrite(out, text string, intent Intent) (*Rewrite, bool) {
	raw, ok := extractJSON(out)
	if !ok {
		return nil, false
	}
	var body struct {
		RewrittenText string   `json:"rewritten_text"`
		Suggestions   []string `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		return nil, false
	}
	if intent == IntentHeadlines && len(body.Suggestions) == 0 {
		return nil, false
	}
	if intent != IntentHeadlines && strings.TrimSpace(body.RewrittenText) == "" {
		return nil, false
	}
	if body.Suggestions == nil {
		body.Suggestions = []string{}
	}
	return &Rewrite{
		OriginalText:  text,
		Intent:        intent,
		Suggestions:   body.Suggestions,
		RewrittenText: body.RewrittenText,
	}, true
}

// AnalyzeFunnel reviews the whole flow for gaps and missing touchpoints
func (s *Service) AnalyzeFunnel(ctx context.Context, brand string, g *flow.Graph) *FunnelAnalysis {
	out, err := s.generate(ctx, funnelSystemPrompt, s.funnelPrompt(brand, g))
	if err == nil {
		if a, ok := parseFunnel(out); ok {
			return a
		}
		err = errUnusableResponse
	}
	s.fallback(FeatureAnalyzeFunnel, err)
	return MockFunnel(brand, g)
}

func parseFunnel(out string) (*FunnelAnalysis, bool) {
	raw, ok := extractJSON(out)
	if !ok {
		return nil, false
	}
	var a FunnelAnalysis
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, false
	}
	if len(a.Suggestions) == 0 && len(a.MissingTouchpoints) == 0 && len(a.OptimizationOpportunities) == 0 {
		return nil, false
	}
	if a.Suggestions == nil {
		a.Suggestions = []Suggestion{}
	}
	if a.MissingTouchpoints == nil {
		a.MissingTouchpoints = []string{}
	}
	if a.OptimizationOpportunities == nil {
		a.OptimizationOpportunities = []string{}
	}
	a.Mock = false
	return &a, true
}

// Chat answers one strategist question
func (s *Service) Chat(ctx context.Context, req ChatRequest) *ChatReply {
	brand := req.Brand
	if brand == "" {
		brand = "everclear"
	}

	out, err := s.generate(ctx, s.chatSystemPrompt(brand, req.Campaign), chatPrompt(req))
	if err == nil {
		return &ChatReply{Message: out}
	}
	s.fallback(FeatureChat, err)
	return &ChatReply{Message: MockChat(req.Message), Mock: true}
}
