package campaign

import (
	"net/url"
	"strings"

	"github.com/gosimple/slug"

	"github.com/foxzi/flowry/internal/flow"
)

const trackingKey = "tracking"

// UTM holds the campaign's tracking parameters
type UTM struct {
	Source   string `json:"source"`
	Medium   string `json:"medium"`
	Campaign string `json:"campaign"`
}

// IsZero reports whether no parameter is set
func (u UTM) IsZero() bool {
	return u.Source == "" && u.Medium == "" && u.Campaign == ""
}

// UTMParameters reads settings.tracking. Missing settings give a zero UTM.
func (c *Campaign) UTMParameters() UTM {
	raw, ok := c.Settings[trackingKey]
	if !ok || raw == nil {
		return UTM{}
	}
	var u UTM
	switch t := raw.(type) {
	case UTM:
		return t
	case map[string]any:
		u.Source, _ = t["source"].(string)
		u.Medium, _ = t["medium"].(string)
		u.Campaign, _ = t["campaign"].(string)
	case map[string]string:
		u = UTM{Source: t["source"], Medium: t["medium"], Campaign: t["campaign"]}
	}
	return u
}

// SetUTMParameters stores tracking parameters. An empty campaign name defaults to the slugged campaign name.
func (c *Campaign) SetUTMParameters(source, medium, campaign string) UTM {
	if strings.TrimSpace(campaign) == "" {
		campaign = slug.Make(c.Name)
	}
	u := UTM{Source: source, Medium: medium, Campaign: campaign}
	if c.Settings == nil {
		c.Settings = map[string]any{}
	}
	c.Settings[trackingKey] = map[string]any{
		"source":   u.Source,
		"medium":   u.Medium,
		"campaign": u.Campaign,
	}
	c.touch()
	return u
}

// BuildUTMURL appends the tracking parameters to base. Without parameters base is returned as is.
func (c *Campaign) BuildUTMURL(base, contentTag string) string {
	u := c.UTMParameters()
	if u.IsZero() {
		return base
	}

	params := []struct{ key, value string }{
		{"utm_source", u.Source},
		{"utm_medium", u.Medium},
		{"utm_campaign", u.Campaign},
		{"utm_content", contentTag},
	}

	var parts []string
	for _, p := range params {
		if strings.TrimSpace(p.value) == "" {
			continue
		}
		parts = append(parts, p.key+"="+url.QueryEscape(p.value))
	}
	if len(parts) == 0 {
		return base
	}

	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + strings.Join(parts, "&")
}

// GA4Events returns the analytics event nodes of the flow
func (c *Campaign) GA4Events() []flow.Node {
	events := c.Structure.NodesOfType(flow.TypeGA4Event)
	if events == nil {
		return []flow.Node{}
	}
	return events
}
