package textgen

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxzi/flowry/internal/campaign"
	"github.com/foxzi/flowry/internal/flow"
)

type fakeGenerator struct {
	out    string
	err    error
	system string
	prompt string
	calls  int
}

func (f *fakeGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	f.calls++
	f.system = system
	f.prompt = prompt
	return f.out, f.err
}

func newTestService(gen Generator) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(gen, nil, time.Second, logger)
}

func emailNode(subject, body string) *flow.Node {
	return &flow.Node{ID: "n1", Type: flow.TypeEmail, Data: map[string]any{"subject": subject, "body": body}}
}

func TestMockGrade(t *testing.T) {
	tests := []struct {
		name         string
		node         *flow.Node
		wantScore    int
		wantFeedback []string
	}{
		{
			name:         "email without body",
			node:         emailNode("Hi", ""),
			wantScore:    4,
			wantFeedback: []string{"Add engaging body content to drive action"},
		},
		{
			name:         "complete email",
			node:         emailNode("Big news!", "Visit https://example.com now to claim your offer today"),
			wantScore:    9,
			wantFeedback: []string{"Personalize content for everclear brand voice"},
		},
		{
			name:      "email without call to action",
			node:      emailNode("A very long subject line that goes on and on for mobile", "We have some updates for you this week"),
			wantScore: 8,
			wantFeedback: []string{
				"Consider shortening subject line for mobile optimization",
				"Consider adding a clear call-to-action",
			},
		},
		{
			name:      "empty push",
			node:      &flow.Node{ID: "p", Type: flow.TypePush},
			wantScore: 2,
			wantFeedback: []string{
				"Add an attention-grabbing title",
				"Add compelling body text to drive engagement",
			},
		},
		{
			name:      "good push",
			node:      &flow.Node{ID: "p", Type: flow.TypePush, Data: map[string]any{"title": "We saved your spot", "body": "Come back and finish your profile"}},
			wantScore: 8,
			wantFeedback: []string{
				"Strong foundation - consider A/B testing variations",
				"Align messaging with everclear brand voice",
				"Test different emotional appeals",
			},
		},
		{
			name:      "ad",
			node:      &flow.Node{ID: "a", Type: flow.TypeAd},
			wantScore: 6,
			wantFeedback: []string{
				"Review content for everclear brand alignment",
				"Ensure clear value proposition",
				"Add compelling call-to-action",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := MockGrade("everclear", tt.node)
			assert.Equal(t, tt.wantScore, g.Score)
			assert.Equal(t, tt.wantFeedback, g.Feedback)
			assert.Equal(t, tt.wantFeedback, g.Recommendations)
			assert.True(t, g.Mock)
			assert.Equal(t, mockAnalysis, g.Analysis)
		})
	}
}

func TestMockGradeIsDeterministic(t *testing.T) {
	n := emailNode("Hello", "Click here")
	assert.Equal(t, MockGrade("phrendly", n), MockGrade("phrendly", n))
}

func TestGradeCopyUsesModel(t *testing.T) {
	gen := &fakeGenerator{out: "Here you go:\n```json\n{\"score\": 8, \"feedback\": [\"Tighten the subject\"]}\n```"}
	s := newTestService(gen)

	g := s.GradeCopy(context.Background(), "everclear", emailNode("Hello", "Body text"))
	require.NotNil(t, g)
	assert.Equal(t, 8, g.Score)
	assert.Equal(t, []string{"Tighten the subject"}, g.Feedback)
	assert.False(t, g.Mock)

	assert.Equal(t, gradingSystemPrompt, gen.system)
	assert.Contains(t, gen.prompt, "Subject: Hello")
	assert.Contains(t, gen.prompt, "Everclear")
}

func TestGradeCopyFallsBack(t *testing.T) {
	tests := []struct {
		name string
		gen  Generator
	}{
		{"no generator", nil},
		{"generator error", &fakeGenerator{err: errors.New("throttled")}},
		{"not json", &fakeGenerator{out: "I think it is fine"}},
		{"score out of range", &fakeGenerator{out: `{"score": 42, "feedback": ["x"]}`}},
		{"no feedback", &fakeGenerator{out: `{"score": 5, "feedback": []}`}},
	}

	n := emailNode("Hi", "")
	want := MockGrade("everclear", n)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestService(tt.gen)
			assert.Equal(t, want, s.GradeCopy(context.Background(), "everclear", n))
		})
	}
}

func TestRewrite(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown intent", func(t *testing.T) {
		_, err := newTestService(nil).Rewrite(ctx, "everclear", "text", Intent("make_sad"), flow.TypeEmail)
		assert.ErrorIs(t, err, ErrUnknownIntent)
	})

	t.Run("model rewrite", func(t *testing.T) {
		gen := &fakeGenerator{out: `{"rewritten_text": "Better copy"}`}
		r, err := newTestService(gen).Rewrite(ctx, "phrendly", "copy", IntentImprove, flow.TypePush)
		require.NoError(t, err)
		assert.Equal(t, "Better copy", r.RewrittenText)
		assert.Equal(t, "copy", r.OriginalText)
		assert.NotNil(t, r.Suggestions)
		assert.False(t, r.Mock)
		assert.Contains(t, gen.prompt, "Improve the following push copy")
	})

	t.Run("model headlines", func(t *testing.T) {
		gen := &fakeGenerator{out: `{"suggestions": ["a", "b", "c", "d", "e"]}`}
		r, err := newTestService(gen).Rewrite(ctx, "phrendly", "copy", IntentHeadlines, flow.TypeEmail)
		require.NoError(t, err)
		assert.Len(t, r.Suggestions, 5)
	})

	t.Run("headlines without suggestions fall back", func(t *testing.T) {
		gen := &fakeGenerator{out: `{"rewritten_text": "one"}`}
		r, err := newTestService(gen).Rewrite(ctx, "phrendly", "Meet new people tonight", IntentHeadlines, flow.TypeEmail)
		require.NoError(t, err)
		assert.True(t, r.Mock)
		assert.Len(t, r.Suggestions, 5)
	})
}

func TestMockRewrite(t *testing.T) {
	text := "we have a brand new feature that helps you find the right people faster than ever before"

	for _, intent := range Intents() {
		t.Run(string(intent), func(t *testing.T) {
			r := MockRewrite("everclear", text, intent)
			assert.True(t, r.Mock)
			assert.Equal(t, intent, r.Intent)
			assert.NotNil(t, r.Suggestions)
			if intent == IntentHeadlines {
				assert.Len(t, r.Suggestions, 5)
			} else {
				assert.NotEmpty(t, r.RewrittenText)
			}
		})
	}

	short := MockRewrite("everclear", text, IntentShorten).RewrittenText
	assert.LessOrEqual(t, utf8.RuneCountInString(short), shortenLimit(utf8.RuneCountInString(text)))
	assert.True(t, strings.HasPrefix(text, short))

	improved := MockRewrite("everclear", "  hello   there ", IntentImprove).RewrittenText
	assert.Equal(t, "Hello there. Tap to get started.", improved)

	longer := MockRewrite("everclear", "Hi", IntentLengthen).RewrittenText
	assert.Contains(t, longer, "Everclear")
}

func TestTruncateWords(t *testing.T) {
	assert.Equal(t, "short", truncateWords("short", 10))
	assert.Equal(t, "one two", truncateWords("one two three", 9))
	assert.Equal(t, "abcde", truncateWords("abcdefghij", 5))
}

func TestAnalyzeFunnel(t *testing.T) {
	ctx := context.Background()
	g := flow.New()
	require.NoError(t, g.AddNode(flow.Node{ID: "e1", Type: flow.TypeEmail}))

	t.Run("model answer", func(t *testing.T) {
		gen := &fakeGenerator{out: `{"suggestions": [{"title": "Add SMS", "description": "More reach"}]}`}
		a := newTestService(gen).AnalyzeFunnel(ctx, "everclear", g)
		assert.False(t, a.Mock)
		assert.Equal(t, "Add SMS", a.Suggestions[0].Title)
		assert.NotNil(t, a.MissingTouchpoints)
		assert.NotNil(t, a.OptimizationOpportunities)
		assert.Contains(t, gen.prompt, "Channels being used: email")
	})

	t.Run("empty model answer falls back", func(t *testing.T) {
		gen := &fakeGenerator{out: `{}`}
		a := newTestService(gen).AnalyzeFunnel(ctx, "everclear", g)
		assert.True(t, a.Mock)
	})
}

func TestMockFunnel(t *testing.T) {
	empty := MockFunnel("everclear", flow.New())
	require.Len(t, empty.Suggestions, 1)
	assert.Equal(t, []string{"email: welcome message"}, empty.MissingTouchpoints)

	g := flow.New()
	require.NoError(t, g.AddNode(flow.Node{ID: "e1", Type: flow.TypeEmail}))
	require.NoError(t, g.AddNode(flow.Node{ID: "p1", Type: flow.TypePush}))

	a := MockFunnel("everclear", g)
	assert.True(t, a.Mock)
	assert.Len(t, a.MissingTouchpoints, 2)

	titles := make([]string, 0, len(a.Suggestions))
	for _, s := range a.Suggestions {
		titles = append(titles, s.Title)
	}
	assert.Contains(t, titles, "Connect isolated touchpoints")
	assert.Contains(t, titles, "Add timing between touchpoints")
	assert.Contains(t, titles, "Personalize with a conditional split")
	assert.Contains(t, a.OptimizationOpportunities, "Track conversions with a GA4 event node at the end of the journey")
}

func TestChat(t *testing.T) {
	ctx := context.Background()

	t.Run("model reply with campaign context", func(t *testing.T) {
		gen := &fakeGenerator{out: "Send it on Tuesday."}
		c := campaign.New("u1", "Spring Launch", "phrendly", "engagement")
		reply := newTestService(gen).Chat(ctx, ChatRequest{
			Message:  "When should I send?",
			History:  []ChatMessage{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hello"}},
			Brand:    "phrendly",
			Campaign: c,
		})
		assert.Equal(t, "Send it on Tuesday.", reply.Message)
		assert.False(t, reply.Mock)
		assert.Contains(t, gen.system, "CURRENT CAMPAIGN CONTEXT")
		assert.Contains(t, gen.system, "Spring Launch")
		assert.Contains(t, gen.prompt, "assistant: hello")
		assert.True(t, strings.HasSuffix(gen.prompt, "user: When should I send?"))
	})

	t.Run("fallback", func(t *testing.T) {
		reply := newTestService(nil).Chat(ctx, ChatRequest{Message: "How is it performing?"})
		assert.True(t, reply.Mock)
		assert.True(t, strings.HasPrefix(reply.Message, "Great question!"))
	})
}

func TestMockChatRouting(t *testing.T) {
	tests := []struct {
		message string
		prefix  string
	}{
		{"Show me the METRICS", "Great question!"},
		{"How do I optimize open rates?", "I can help you optimize"},
		{"Help me build a flow", "I'd be happy to help you create"},
		{"hello", "I'm here to help you"},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.True(t, strings.HasPrefix(MockChat(tt.message), tt.prefix))
		})
	}
}

func TestChatMessageAcceptsMessageKey(t *testing.T) {
	var m ChatMessage
	require.NoError(t, m.UnmarshalJSON([]byte(`{"role":"user","message":"hi"}`)))
	assert.Equal(t, "hi", m.Content)
}

func TestParseIntent(t *testing.T) {
	i, err := ParseIntent("shorten")
	require.NoError(t, err)
	assert.Equal(t, IntentShorten, i)

	_, err = ParseIntent("louder")
	assert.ErrorIs(t, err, ErrUnknownIntent)
}
