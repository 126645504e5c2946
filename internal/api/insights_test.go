package api

import (
	"net/http"
	"testing"

	"github.com/foxzi/flowry/internal/insights"
	"github.com/foxzi/flowry/internal/reference"
)

func TestCampaignGA4Events(t *testing.T) {
	env := newTestEnv(t)
	id := env.createCampaign(t, "alice")

	w := env.do(t, "alice", "GET", "/api/v1/campaigns/"+id+"/ga4_events", nil)
	expectStatus(t, w, http.StatusOK)

	resp := decode[GA4EventsResponse](t, w)
	if resp.GA4Plan == nil || len(resp.RecommendedEvents) != 7 || resp.RecommendedEvents[0] != "login" {
		t.Fatalf("recommended events = %+v", resp.GA4Plan)
	}
	if len(resp.JourneyEvents) != 2 || resp.JourneyEvents[0].NodeID != "e1" || resp.JourneyEvents[1].EventName != "push_notification_open" {
		t.Errorf("journey events = %+v", resp.JourneyEvents)
	}
	if len(resp.SetupGuide.Events) != 7 || len(resp.SetupGuide.NextSteps) == 0 {
		t.Errorf("setup guide = %+v", resp.SetupGuide)
	}
	if resp.Events == nil || len(resp.Events) != 0 {
		t.Errorf("tracked events = %v, want empty list", resp.Events)
	}

	w = env.do(t, "bob", "GET", "/api/v1/campaigns/"+id+"/ga4_events", nil)
	expectError(t, w, http.StatusNotFound, "Campaign not found")
}

func TestCampaignUTMRecommendations(t *testing.T) {
	env := newTestEnv(t)
	id := env.createCampaign(t, "alice")

	w := env.do(t, "alice", "GET", "/api/v1/campaigns/"+id+"/utm_recommendations", nil)
	expectStatus(t, w, http.StatusOK)

	resp := decode[struct {
		CampaignID      string           `json:"campaign_id"`
		Channels        []string         `json:"channels"`
		Recommendations insights.UTMPlan `json:"recommendations"`
	}](t, w)
	if resp.CampaignID != id || len(resp.Channels) != 2 || resp.Channels[0] != "email" || resp.Channels[1] != "push" {
		t.Errorf("campaign %s channels = %v", resp.CampaignID, resp.Channels)
	}
	recs := resp.Recommendations.Recommendations
	if len(recs) != 2 {
		t.Fatalf("recommendations = %+v", recs)
	}
	if recs[0].UTMSource != "everclear-newsletter" || recs[0].UTMCampaign != "spring-launch" || recs[1].UTMMedium != "marketing" {
		t.Errorf("recommendations = %+v", recs)
	}
}

func TestAnalyzePlatformContent(t *testing.T) {
	env := newTestEnv(t)
	path := "/api/v1/marketing_intelligence/analyze_platform_content"

	w := env.do(t, "alice", "POST", path, map[string]any{
		"platform": "Twitter",
		"brand":    "phrendly",
		"content_data": map[string]any{
			"type": "social",
			"data": map[string]any{"text": "What would you sip first? Tap in #phrendly #drinks #chat"},
		},
	})
	expectStatus(t, w, http.StatusOK)

	resp := decode[struct {
		Analysis insights.ContentAnalysis `json:"analysis"`
	}](t, w)
	a := resp.Analysis
	if a.Platform != "twitter" {
		t.Errorf("platform = %q, want twitter", a.Platform)
	}
	if u := a.CharacterCountAnalysis["text"]; u.Limit != 280 || u.Status != insights.StatusWithinLimit || u.CurrentCount == 0 {
		t.Errorf("text usage = %+v", u)
	}
	if len(a.BestPracticesCompliance.Checks) != 3 || a.OptimizationScore < 50 || a.OptimizationScore > 100 {
		t.Errorf("analysis = %+v", a)
	}

	w = env.do(t, "alice", "POST", path, map[string]any{"platform": "myspace", "content_data": map[string]any{}})
	expectError(t, w, http.StatusBadRequest, "Unsupported platform: myspace")

	w = env.do(t, "alice", "POST", path, map[string]any{"brand": "everclear"})
	expectError(t, w, http.StatusBadRequest, "platform is required")

	w = env.do(t, "", "POST", path, map[string]any{"platform": "email"})
	expectStatus(t, w, http.StatusUnauthorized)
}

func TestPlatformBestPractices(t *testing.T) {
	env := newTestEnv(t)
	path := "/api/v1/marketing_intelligence/platform_best_practices"

	w := env.do(t, "alice", "GET", path+"?platform=tiktok", nil)
	expectStatus(t, w, http.StatusOK)
	p := decode[reference.Platform](t, w)
	if p.Name != "tiktok" || len(p.CharacterLimits) != 3 || len(p.BestPractices) == 0 || len(p.Guidance) == 0 {
		t.Errorf("tiktok = %+v", p)
	}

	w = env.do(t, "alice", "GET", path, nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[map[string][]string](t, w)["platforms"]; len(got) != 5 {
		t.Errorf("platforms = %v", got)
	}

	w = env.do(t, "alice", "GET", path+"?platform=friendster", nil)
	expectError(t, w, http.StatusBadRequest, "Unsupported platform: friendster")
}

func TestUTMExamples(t *testing.T) {
	env := newTestEnv(t)
	path := "/api/v1/marketing_intelligence/utm_examples"

	w := env.do(t, "alice", "GET", path, nil)
	expectStatus(t, w, http.StatusOK)
	plan := decode[map[string]insights.UTMPlan](t, w)["utm_examples"]
	if len(plan.Recommendations) != 4 || plan.Recommendations[1].UTMSource != "everclear-facebook" || plan.Recommendations[0].UTMCampaign != "sample-campaign" {
		t.Errorf("default examples = %+v", plan.Recommendations)
	}

	w = env.do(t, "alice", "GET", path+"?brand=phrendly&channels=TikTok,%20push,", nil)
	expectStatus(t, w, http.StatusOK)
	plan = decode[map[string]insights.UTMPlan](t, w)["utm_examples"]
	if len(plan.Recommendations) != 2 || plan.Recommendations[0].UTMSource != "phrendly-tiktok" || plan.Recommendations[0].UTMMedium != "social" {
		t.Errorf("phrendly examples = %+v", plan.Recommendations)
	}
}

func TestGA4EventRecommendations(t *testing.T) {
	env := newTestEnv(t)
	path := "/api/v1/marketing_intelligence/ga4_event_recommendations"

	w := env.do(t, "alice", "GET", path+"?campaign_goal=purchase", nil)
	expectStatus(t, w, http.StatusOK)
	plan := decode[map[string]insights.GA4Plan](t, w)["ga4_recommendations"]
	if len(plan.RecommendedEvents) != 9 || len(plan.JourneyEvents) != 3 || plan.JourneyEvents[2].EventName != "ad_click" {
		t.Errorf("purchase plan = %+v", plan)
	}

	w = env.do(t, "alice", "GET", path, nil)
	expectStatus(t, w, http.StatusOK)
	plan = decode[map[string]insights.GA4Plan](t, w)["ga4_recommendations"]
	if len(plan.RecommendedEvents) != 14 || plan.JourneyEvents[0].EventName != "social_content_view" {
		t.Errorf("default plan = %+v", plan)
	}
}
