package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/foxzi/flowry/internal/flow"
	"github.com/foxzi/flowry/internal/insights"
)

var defaultUTMChannels = []string{"email", "facebook", "instagram", "twitter"}

// GA4EventsResponse is the response for GET /campaigns/{id}/ga4_events
type GA4EventsResponse struct {
	*insights.GA4Plan
	// ga4_event nodes already placed in the flow
	Events []flow.Node `json:"events"`
}

// handleGA4Events handles GET /api/v1/campaigns/{id}/ga4_events
func (s *Server) handleGA4Events(w http.ResponseWriter, r *http.Request) {
	c, err := s.loadCampaign(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	events := c.GA4Events()
	if events == nil {
		events = []flow.Node{}
	}
	sendJSON(w, http.StatusOK, GA4EventsResponse{
		GA4Plan: s.deps.Advisor.SuggestGA4Events(c.Goal, c.Structure.GetNodes()),
		Events:  events,
	})
}

// handleUTMRecommendations handles GET /api/v1/campaigns/{id}/utm_recommendations
func (s *Server) handleUTMRecommendations(w http.ResponseWriter, r *http.Request) {
	c, err := s.loadCampaign(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	channels := insights.Channels(&c.Structure)
	if channels == nil {
		channels = []string{}
	}
	plan := s.deps.Advisor.UTMRecommendations(c.Name, c.Brand, channels)
	sendJSON(w, http.StatusOK, map[string]any{
		"campaign_id":     c.ID,
		"channels":        channels,
		"recommendations": plan,
	})
}

// AnalyzeContentRequest is the request for POST /marketing_intelligence/analyze_platform_content
type AnalyzeContentRequest struct {
	Platform    string    `json:"platform"`
	Brand       string    `json:"brand"`
	ContentData flow.Node `json:"content_data"`
}

// handleAnalyzePlatformContent handles POST /api/v1/marketing_intelligence/analyze_platform_content
func (s *Server) handleAnalyzePlatformContent(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeContentRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.Platform = strings.ToLower(strings.TrimSpace(req.Platform))
	if req.Platform == "" {
		sendError(w, http.StatusBadRequest, "platform is required")
		return
	}

	analysis, err := s.deps.Advisor.AnalyzeContent(req.Platform, &req.ContentData, req.Brand)
	if err != nil {
		s.writeInsightsError(w, r, req.Platform, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]any{"analysis": analysis})
}

// handlePlatformBestPractices handles GET /api/v1/marketing_intelligence/platform_best_practices
func (s *Server) handlePlatformBestPractices(w http.ResponseWriter, r *http.Request) {
	name := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("platform")))
	if name == "" {
		sendJSON(w, http.StatusOK, map[string]any{"platforms": s.deps.Catalog.PlatformNames()})
		return
	}

	p, err := s.deps.Advisor.Platform(name)
	if err != nil {
		s.writeInsightsError(w, r, name, err)
		return
	}
	sendJSON(w, http.StatusOK, p)
}

// handleUTMExamples handles GET /api/v1/marketing_intelligence/utm_examples
func (s *Server) handleUTMExamples(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	brand := strings.TrimSpace(q.Get("brand"))
	if brand == "" {
		brand = "everclear"
	}
	channels := splitList(q.Get("channels"))
	if len(channels) == 0 {
		channels = defaultUTMChannels
	}

	sendJSON(w, http.StatusOK, map[string]any{
		"utm_examples": s.deps.Advisor.UTMRecommendations("sample-campaign", brand, channels),
	})
}

// handleGA4Recommendations handles GET /api/v1/marketing_intelligence/ga4_event_recommendations
func (s *Server) handleGA4Recommendations(w http.ResponseWriter, r *http.Request) {
	goal := strings.TrimSpace(r.URL.Query().Get("campaign_goal"))
	if goal == "" {
		goal = "engagement"
	}

	sendJSON(w, http.StatusOK, map[string]any{
		"ga4_recommendations": s.deps.Advisor.SuggestGA4Events(goal, insights.SampleJourney(goal)),
	})
}

func (s *Server) writeInsightsError(w http.ResponseWriter, r *http.Request, platform string, err error) {
	if errors.Is(err, insights.ErrUnsupportedPlatform) {
		sendError(w, http.StatusBadRequest, "Unsupported platform: "+platform)
		return
	}
	s.writeError(w, r, err)
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
