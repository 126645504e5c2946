package reference

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/foxzi/flowry/internal/flow"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	brands := c.Brands()
	if len(brands) != 2 || brands[0] != "everclear" || brands[1] != "phrendly" {
		t.Errorf("Brands() = %v, want [everclear phrendly]", brands)
	}
	if len(c.Goals()) != 5 {
		t.Errorf("len(Goals()) = %d, want 5", len(c.Goals()))
	}
	if c.Limits().EmailSubject != 50 {
		t.Errorf("Limits().EmailSubject = %d, want 50", c.Limits().EmailSubject)
	}
	if len(c.Benchmarks()) == 0 {
		t.Error("Benchmarks() is empty")
	}

	b, ok := c.Brand("phrendly")
	if !ok {
		t.Fatal("Brand(phrendly) not found")
	}
	if len(b.Keywords) == 0 {
		t.Error("phrendly has no keywords")
	}

	segs := c.Segments()
	if len(segs["everclear"]) == 0 || len(segs["default"]) == 0 {
		t.Errorf("Segments() = %v, want everclear and default entries", segs)
	}
}

func TestPlatformsAndGA4Events(t *testing.T) {
	c := Default()

	names := c.PlatformNames()
	if strings.Join(names, ",") != "facebook,instagram,tiktok,twitter,email" {
		t.Errorf("PlatformNames() = %v", names)
	}

	p, ok := c.Platform("twitter")
	if !ok {
		t.Fatal("Platform(twitter) not found")
	}
	if p.CharacterLimits[0].Field != "text" || p.CharacterLimits[0].Limit != 280 {
		t.Errorf("twitter limits = %+v, want text/280 first", p.CharacterLimits)
	}
	if len(p.BestPractices) == 0 || len(p.Guidance) == 0 {
		t.Error("twitter guidance is empty")
	}
	if _, ok := c.Platform("myspace"); ok {
		t.Error("Platform(myspace) should not be found")
	}

	if got := c.GA4Group("ecommerce"); len(got) == 0 || got[3] != "purchase" {
		t.Errorf("GA4Group(ecommerce) = %v", got)
	}
	if got := c.GA4Group("unknown"); len(got) != 0 {
		t.Errorf("GA4Group(unknown) = %v, want none", got)
	}
	if got := c.GA4Description("login"); got != "Tracks user login events" {
		t.Errorf("GA4Description(login) = %q", got)
	}
	if got := c.GA4Description("level_up"); got != "Custom event for tracking specific user interactions" {
		t.Errorf("GA4Description(level_up) = %q", got)
	}

	b, _ := c.Brand("phrendly")
	if len(b.PlatformTips["tiktok"]) != 2 {
		t.Errorf("phrendly tiktok tips = %v, want 2", b.PlatformTips["tiktok"])
	}
}

func TestSeedTemplatesDecodeGraphs(t *testing.T) {
	templates := Default().SeedTemplates()
	if len(templates) == 0 {
		t.Fatal("no seed templates")
	}

	for _, tpl := range templates {
		t.Run(tpl.Name, func(t *testing.T) {
			if len(tpl.Structure.Nodes) == 0 {
				t.Error("template has no nodes")
			}
			if len(tpl.Structure.DanglingEdges()) != 0 {
				t.Errorf("template has dangling edges: %v", tpl.Structure.DanglingEdges())
			}
			if tpl.Metadata.SetupTime == "" {
				t.Error("setup_time is empty")
			}
		})
	}

	first := templates[0].Structure
	n, ok := first.FindNode("delay-1")
	if !ok {
		t.Fatal("delay-1 not found in first template")
	}
	if n.Type != flow.TypeDelay || n.Str("duration") != "3" {
		t.Errorf("delay-1 = %+v, want delay with duration 3", n)
	}
	if n.Position == nil || n.Position.Y != 200 {
		t.Errorf("delay-1 position = %+v, want y=200", n.Position)
	}
}

func TestHeadlineLimit(t *testing.T) {
	l := Default().Limits()

	tests := []struct {
		typ  flow.NodeType
		want int
	}{
		{flow.TypeEmail, l.EmailSubject},
		{flow.TypePush, l.PushTitle},
		{flow.TypeAd, l.AdHeadline},
		{flow.TypeDelay, 0},
	}

	for _, tt := range tests {
		if got := l.HeadlineLimit(tt.typ); got != tt.want {
			t.Errorf("HeadlineLimit(%s) = %d, want %d", tt.typ, got, tt.want)
		}
	}
}

func TestLoad(t *testing.T) {
	t.Run("empty path uses embedded", func(t *testing.T) {
		c, err := Load("")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if c != Default() {
			t.Error("Load(\"\") should return the default catalog")
		}
	})

	t.Run("custom file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "catalog.yaml")
		data := `
brands:
  - name: acme
    keywords: [rocket]
goals: [Sell Anvils]
`
		if err := os.WriteFile(path, []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
		c, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got := c.Brands(); len(got) != 1 || got[0] != "acme" {
			t.Errorf("Brands() = %v, want [acme]", got)
		}
		if c.BrandVoice("acme") != "professional and engaging" {
			t.Errorf("BrandVoice() = %q, want fallback", c.BrandVoice("acme"))
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		if err == nil {
			t.Error("Load() should fail for a missing file")
		}
	})
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"no brands", "goals: [x]", "at least one brand"},
		{"duplicate brand", "brands: [{name: a}, {name: a}]", "duplicate brand"},
		{"unknown template brand", "brands: [{name: a}]\ntemplates: [{name: t, brand: b}]", "unknown brand"},
		{"duplicate platform", "brands: [{name: a}]\nplatforms: [{name: x}, {name: x}]", "duplicate name"},
		{"zero character limit", "brands: [{name: a}]\nplatforms: [{name: x, character_limits: [{field: text, limit: 0}]}]", "invalid character limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if err == nil {
				t.Fatal("Parse() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Parse() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
