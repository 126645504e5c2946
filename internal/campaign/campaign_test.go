package campaign

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/foxzi/flowry/internal/flow"
)

func TestNewCampaignDefaults(t *testing.T) {
	c := New("user-1", "  Spring Launch ", "everclear", "Acquire New Users")

	if c.ID == "" {
		t.Error("ID is empty")
	}
	if c.Status != StatusDraft {
		t.Errorf("Status = %v, want draft", c.Status)
	}
	if c.Name != "Spring Launch" {
		t.Errorf("Name = %q, want trimmed", c.Name)
	}

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"structure":{"nodes":[],"edges":[]}`) {
		t.Errorf("structure not defaulted: %s", data)
	}
	if !strings.Contains(string(data), `"status":"draft"`) {
		t.Errorf("status not encoded by name: %s", data)
	}
}

func TestUnmarshalNormalizesStructure(t *testing.T) {
	var c Campaign
	if err := json.Unmarshal([]byte(`{"id":"c1","name":"x","status":"live"}`), &c); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if c.Structure.Nodes == nil || c.Structure.Edges == nil {
		t.Error("structure collections should be non-nil after decode")
	}
	if c.Status != StatusLive {
		t.Errorf("Status = %v, want live", c.Status)
	}
	if err := json.Unmarshal([]byte(`{"status":"archived"}`), &c); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("Unmarshal(archived) error = %v, want ErrInvalidStatus", err)
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    Status
		wantErr bool
	}{
		{"draft", StatusDraft, false},
		{"approved", StatusApproved, false},
		{"live", StatusLive, false},
		{"completed", StatusCompleted, false},
		{"Draft", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStatus(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseStatus(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseStatus(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	brands := NewBrandSet()

	tests := []struct {
		name     string
		campaign *Campaign
		want     []string
	}{
		{"valid", New("u", "Name", "phrendly", "Goal"), nil},
		{"blank name", New("u", " ", "phrendly", "Goal"), []string{"name can't be blank"}},
		{"unknown brand", New("u", "Name", "acme", "Goal"), []string{"brand is not included in the list"}},
		{"blank goal and brand", New("u", "Name", "", ""), []string{"goal can't be blank", "brand is not included in the list"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.campaign.Validate(brands)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("Validate() error = %v, want ValidationErrors", err)
			}
			if len(verrs) != len(tt.want) {
				t.Fatalf("Validate() = %v, want %v", verrs, tt.want)
			}
			for i := range tt.want {
				if verrs[i] != tt.want[i] {
					t.Errorf("Validate()[%d] = %q, want %q", i, verrs[i], tt.want[i])
				}
			}
		})
	}
}

func TestSetStatusAllowsAnyTransition(t *testing.T) {
	c := New("u", "n", "everclear", "g")
	for _, s := range []Status{StatusLive, StatusDraft, StatusCompleted, StatusApproved} {
		if err := c.SetStatus(s); err != nil {
			t.Fatalf("SetStatus(%v) error = %v", s, err)
		}
		if c.Status != s {
			t.Errorf("Status = %v, want %v", c.Status, s)
		}
	}
	if err := c.SetStatus(Status(9)); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("SetStatus(9) error = %v, want ErrInvalidStatus", err)
	}
}

func TestLogPerformanceForcesCompleted(t *testing.T) {
	for _, start := range []Status{StatusDraft, StatusApproved, StatusLive} {
		c := New("u", "n", "everclear", "g")
		c.Status = start
		c.LogPerformance(map[string]float64{"open_rate": 25})

		if c.Status != StatusCompleted {
			t.Errorf("from %v: Status = %v, want completed", start, c.Status)
		}
		if c.ActualPerformance["open_rate"] != 25 {
			t.Errorf("ActualPerformance = %v", c.ActualPerformance)
		}
	}
}

func TestPredictedVsActual(t *testing.T) {
	c := New("u", "n", "everclear", "g")
	if c.PredictedVsActual() != nil {
		t.Error("PredictedVsActual() should be nil without data")
	}

	c.PredictedPerformance = map[string]float64{"open_rate": 20}
	if c.PredictedVsActual() != nil {
		t.Error("PredictedVsActual() should be nil without actual data")
	}

	c.LogPerformance(map[string]float64{"open_rate": 25})
	cmp := c.PredictedVsActual()
	if cmp == nil {
		t.Fatal("PredictedVsActual() = nil")
	}
	v := cmp.Variance["open_rate"]
	if v.Difference != 5 || v.PercentageChange == nil || *v.PercentageChange != 25 {
		t.Errorf("variance = %+v, want difference 5 and 25%%", v)
	}
}

func TestUTM(t *testing.T) {
	c := New("u", "Summer Sale 2025!", "phrendly", "g")

	if got := c.BuildUTMURL("https://example.com", "hero"); got != "https://example.com" {
		t.Errorf("BuildUTMURL() without params = %q, want base", got)
	}

	u := c.SetUTMParameters("newsletter", "email", "")
	if u.Campaign != "summer-sale-2025" {
		t.Errorf("default campaign = %q, want summer-sale-2025", u.Campaign)
	}
	if got := c.UTMParameters(); got != u {
		t.Errorf("UTMParameters() = %+v, want %+v", got, u)
	}

	tests := []struct {
		base, content, want string
	}{
		{"https://example.com", "", "https://example.com?utm_source=newsletter&utm_medium=email&utm_campaign=summer-sale-2025"},
		{"https://example.com/?a=1", "hero banner", "https://example.com/?a=1&utm_source=newsletter&utm_medium=email&utm_campaign=summer-sale-2025&utm_content=hero+banner"},
	}
	for _, tt := range tests {
		if got := c.BuildUTMURL(tt.base, tt.content); got != tt.want {
			t.Errorf("BuildUTMURL(%q, %q) = %q, want %q", tt.base, tt.content, got, tt.want)
		}
	}
}

func TestUTMFromDecodedSettings(t *testing.T) {
	var c Campaign
	data := `{"settings":{"tracking":{"source":"fb","medium":"cpc","campaign":"x"}}}`
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		t.Fatal(err)
	}
	if got := c.UTMParameters(); got.Source != "fb" || got.Medium != "cpc" || got.Campaign != "x" {
		t.Errorf("UTMParameters() = %+v", got)
	}
}

func TestGA4Events(t *testing.T) {
	c := New("u", "n", "everclear", "g")
	if events := c.GA4Events(); events == nil || len(events) != 0 {
		t.Errorf("GA4Events() = %v, want empty", events)
	}
	c.Structure.AddNode(flow.Node{ID: "ga", Type: flow.TypeGA4Event, Data: map[string]any{"event_name": "purchase"}})
	c.Structure.AddNode(flow.Node{ID: "e", Type: flow.TypeEmail})
	if events := c.GA4Events(); len(events) != 1 || events[0].ID != "ga" {
		t.Errorf("GA4Events() = %v, want [ga]", events)
	}
}

func TestTemplateFromCampaignAndInstantiate(t *testing.T) {
	c := New("u", "Source", "everclear", "Engage Existing Users")
	c.Structure.AddNode(flow.Node{ID: "e", Type: flow.TypeEmail, Data: map[string]any{"subject": "s"}})
	c.Structure.AddNode(flow.Node{ID: "a", Type: flow.TypeAd})
	c.Structure.AddNode(flow.Node{ID: "d", Type: flow.TypeDelay})
	c.Structure.AddNode(flow.Node{ID: "g", Type: flow.TypeGA4Event})

	tpl := TemplateFromCampaign(c, "Reusable", "desc", "", "")
	if tpl.ComplexityLevel() != "intermediate" {
		t.Errorf("ComplexityLevel() = %q, want intermediate", tpl.ComplexityLevel())
	}
	if tpl.EstimatedSetupTime() != "15 minutes" {
		t.Errorf("EstimatedSetupTime() = %q, want 15 minutes", tpl.EstimatedSetupTime())
	}
	if tpl.Recommended() {
		t.Error("Recommended() = true, want false")
	}
	if !tpl.Metadata.CreatedFromCampaign || tpl.Metadata.OriginalCampaignID != c.ID {
		t.Errorf("metadata = %+v", tpl.Metadata)
	}
	wantChannels := []string{"email", "ads", "analytics"}
	if strings.Join(tpl.Metadata.Channels, ",") != strings.Join(wantChannels, ",") {
		t.Errorf("Channels = %v, want %v", tpl.Metadata.Channels, wantChannels)
	}
	if err := tpl.Validate(NewBrandSet()); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	// template must not share node data with the source campaign
	c.Structure.UpdateNode("e", map[string]any{"subject": "changed"})
	n, _ := tpl.Structure.FindNode("e")
	if n.Str("subject") != "s" {
		t.Errorf("template subject = %q, want s", n.Str("subject"))
	}

	now := time.Date(2025, time.January, 2, 10, 0, 0, 0, time.UTC)
	inst := tpl.Instantiate("owner-2", "", "", now)
	if inst.Name != "Reusable - Jan 02" {
		t.Errorf("Name = %q, want Reusable - Jan 02", inst.Name)
	}
	if inst.Goal != "Engage Existing Users" || inst.Brand != "everclear" || inst.OwnerID != "owner-2" {
		t.Errorf("instantiated campaign = %+v", inst)
	}
	if len(inst.Structure.Nodes) != 4 {
		t.Errorf("len(Nodes) = %d, want 4", len(inst.Structure.Nodes))
	}
}

func TestTemplateValidate(t *testing.T) {
	tpl := &Template{Brand: "acme"}
	err := tpl.Validate(NewBrandSet())
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("Validate() error = %v, want ValidationErrors", err)
	}
	if len(verrs) != 5 {
		t.Errorf("Validate() = %v, want 5 messages", verrs)
	}
	if tpl.ComplexityLevel() != "beginner" {
		t.Errorf("ComplexityLevel() = %q, want beginner", tpl.ComplexityLevel())
	}
}
