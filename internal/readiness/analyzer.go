// Package readiness runs preflight checks over a campaign flow and scores how ready it is to launch.
package readiness

import (
	"fmt"
	"math"
	"strings"

	"github.com/foxzi/flowry/internal/campaign"
	"github.com/foxzi/flowry/internal/flow"
)

// Category groups related checks
type Category string

const (
	CategoryContent  Category = "content"
	CategoryLogic    Category = "logic"
	CategoryStrategy Category = "strategy"
	CategoryData     Category = "data"
)

// Status is the outcome of a single check
type Status string

const (
	StatusPassed  Status = "passed"
	StatusWarning Status = "warning"
	StatusFailed  Status = "failed"
)

// Check is one line of the readiness report.
// Advisory checks are reminders that never pass and are left out of the score.
type Check struct {
	Category Category `json:"category"`
	Message  string   `json:"message"`
	Status   Status   `json:"status"`
	Advisory bool     `json:"advisory,omitempty"`
	NodeIDs  []string `json:"node_ids,omitempty"`
}

// Report is the result of Analyze
type Report struct {
	Score           int      `json:"readiness_score"`
	TotalChecks     int      `json:"total_checks"`
	PassedChecks    int      `json:"passed_checks"`
	Checks          []Check  `json:"checks"`
	Recommendations []string `json:"recommendations"`
}

// Failed returns the checks with failed status
func (r *Report) Failed() []Check {
	var out []Check
	for _, c := range r.Checks {
		if c.Status == StatusFailed {
			out = append(out, c)
		}
	}
	return out
}

// Options tunes report shape and scoring
type Options struct {
	// ScoreAdvisory counts advisory reminders toward total_checks
	ScoreAdvisory bool
	// PerNodeConditionals reports one check per conditional node, passed or failed
	PerNodeConditionals bool
}

// Analyzer produces readiness reports. It holds no mutable state.
type Analyzer struct {
	opts Options
}

// NewAnalyzer creates an analyzer
func NewAnalyzer(opts Options) *Analyzer {
	return &Analyzer{opts: opts}
}

// AnalyzeCampaign analyzes a campaign's structure against its goal
func (a *Analyzer) AnalyzeCampaign(c *campaign.Campaign) *Report {
	if c == nil {
		return a.Analyze(nil, "")
	}
	return a.Analyze(&c.Structure, c.Goal)
}

// Analyze runs every check in a fixed order. A nil graph is treated as empty.
func (a *Analyzer) Analyze(g *flow.Graph, goal string) *Report {
	r := &run{g: g, opts: a.opts}

	r.emailSubjects()
	r.emailBodies()
	r.copyGrading()

	r.connectivity()
	r.conditionalPaths()
	r.danglingEdges()

	r.channelDiversity()
	r.utmPlan()
	r.mobile()

	r.goal(goal)
	r.simulation()

	return r.report()
}

type run struct {
	g               *flow.Graph
	opts            Options
	checks          []Check
	recommendations []string
}

func (r *run) add(c Check) {
	r.checks = append(r.checks, c)
}

func (r *run) recommend(msg string) {
	r.recommendations = append(r.recommendations, msg)
}

func (r *run) report() *Report {
	rep := &Report{
		Checks:          r.checks,
		Recommendations: r.recommendations,
	}
	if rep.Checks == nil {
		rep.Checks = []Check{}
	}
	if rep.Recommendations == nil {
		rep.Recommendations = []string{}
	}

	for _, c := range r.checks {
		if c.Advisory && !r.opts.ScoreAdvisory {
			continue
		}
		rep.TotalChecks++
		if c.Status == StatusPassed {
			rep.PassedChecks++
		}
	}
	if rep.TotalChecks > 0 {
		rep.Score = int(math.Round(100 * float64(rep.PassedChecks) / float64(rep.TotalChecks)))
	}
	return rep
}

func emailName(n *flow.Node) string {
	return n.DisplayName("Unnamed Email")
}

func nodeName(n *flow.Node) string {
	return n.DisplayName(n.ID)
}

func (r *run) emailSubjects() {
	emails := r.g.NodesOfType(flow.TypeEmail)
	if len(emails) == 0 {
		return
	}

	var missing []flow.Node
	for _, n := range emails {
		if n.Blank("subject") {
			missing = append(missing, n)
		}
	}
	if len(missing) == 0 {
		r.add(Check{Category: CategoryContent, Message: "All email subject lines are filled out", Status: StatusPassed})
		return
	}

	r.add(Check{
		Category: CategoryContent,
		Message:  fmt.Sprintf("%d email(s) missing subject lines", len(missing)),
		Status:   StatusFailed,
		NodeIDs:  ids(missing),
	})
	for i := range missing {
		r.recommend(fmt.Sprintf("Add subject line to '%s'", emailName(&missing[i])))
	}
}

func (r *run) emailBodies() {
	emails := r.g.NodesOfType(flow.TypeEmail)
	if len(emails) == 0 {
		return
	}

	var missing []flow.Node
	for _, n := range emails {
		if n.Blank("body") {
			missing = append(missing, n)
		}
	}
	if len(missing) == 0 {
		r.add(Check{Category: CategoryContent, Message: "All email bodies are filled out", Status: StatusPassed})
		return
	}

	r.add(Check{
		Category: CategoryContent,
		Message:  fmt.Sprintf("%d email(s) missing body content", len(missing)),
		Status:   StatusWarning,
		NodeIDs:  ids(missing),
	})
	for i := range missing {
		r.recommend(fmt.Sprintf("Add body content to '%s'", emailName(&missing[i])))
	}
}

func (r *run) copyGrading() {
	if !r.g.HasType(flow.TypeEmail) {
		return
	}
	r.add(Check{Category: CategoryContent, Message: "AI Copy Grading recommended for all emails", Status: StatusWarning})
	r.recommend(`Run "Grade My Copy" on all email nodes to ensure brand compliance`)
}

// connectivity flags nodes that no edge references as source or target
func (r *run) connectivity() {
	if len(r.g.GetNodes()) == 0 {
		return
	}

	orphans := r.g.Orphans()
	if len(orphans) == 0 {
		r.add(Check{Category: CategoryLogic, Message: "All nodes are properly connected", Status: StatusPassed})
		return
	}

	r.add(Check{
		Category: CategoryLogic,
		Message:  fmt.Sprintf("%d orphaned node(s) found", len(orphans)),
		Status:   StatusFailed,
		NodeIDs:  ids(orphans),
	})
	for i := range orphans {
		r.recommend(fmt.Sprintf("Connect '%s' to the campaign flow", nodeName(&orphans[i])))
	}
}

func (r *run) conditionalPaths() {
	conditionals := r.g.NodesOfType(flow.TypeConditional, flow.TypeConditionalSplit)
	if len(conditionals) == 0 {
		return
	}

	failed := 0
	for i := range conditionals {
		n := &conditionals[i]
		name := nodeName(n)
		if len(r.g.EdgesFrom(n.ID)) < 2 {
			failed++
			r.add(Check{
				Category: CategoryLogic,
				Message:  fmt.Sprintf("Conditional split '%s' needs both Yes and No paths", name),
				Status:   StatusFailed,
				NodeIDs:  []string{n.ID},
			})
			r.recommend(fmt.Sprintf("Add both 'Yes' and 'No' paths to conditional split '%s'", name))
			continue
		}
		if r.opts.PerNodeConditionals {
			r.add(Check{
				Category: CategoryLogic,
				Message:  fmt.Sprintf("Conditional split '%s' has proper paths", name),
				Status:   StatusPassed,
				NodeIDs:  []string{n.ID},
			})
		}
	}

	if failed == 0 && !r.opts.PerNodeConditionals {
		r.add(Check{Category: CategoryLogic, Message: "All conditional splits have proper paths", Status: StatusPassed})
	}
}

func (r *run) danglingEdges() {
	dangling := r.g.DanglingEdges()
	if len(dangling) == 0 {
		return
	}

	r.add(Check{
		Category: CategoryLogic,
		Message:  fmt.Sprintf("%d edge(s) reference missing nodes", len(dangling)),
		Status:   StatusFailed,
	})
	for _, e := range dangling {
		r.recommend(fmt.Sprintf("Remove or reconnect edge '%s'", e.ID))
	}
}

func (r *run) channelDiversity() {
	hasEmail := r.g.HasType(flow.TypeEmail)
	switch {
	case hasEmail && r.g.HasType(flow.TypePush, flow.TypeAd):
		r.add(Check{Category: CategoryStrategy, Message: "Campaign includes multiple channels for better reach", Status: StatusPassed})
	case hasEmail:
		r.add(Check{Category: CategoryStrategy, Message: "Consider adding push notifications or ads for multi-channel approach", Status: StatusWarning})
		r.recommend("Add push notification or ad nodes to increase campaign effectiveness")
	default:
		r.add(Check{Category: CategoryStrategy, Message: "Campaign needs at least one communication channel", Status: StatusFailed})
	}
}

func (r *run) utmPlan() {
	r.add(Check{Category: CategoryStrategy, Message: "UTM parameter plan recommended for tracking", Status: StatusWarning, Advisory: true})
	r.recommend("Plan UTM parameters for all links to ensure proper tracking in Google Analytics")
}

func (r *run) mobile() {
	if r.g.HasType(flow.TypePush) {
		r.add(Check{Category: CategoryStrategy, Message: "Campaign includes mobile push notifications", Status: StatusPassed})
		return
	}
	r.add(Check{Category: CategoryStrategy, Message: "Consider adding push notifications for mobile users", Status: StatusWarning})
	r.recommend("Add push notification nodes to engage mobile users effectively")
}

func (r *run) goal(goal string) {
	if strings.TrimSpace(goal) != "" {
		r.add(Check{Category: CategoryData, Message: "Campaign goal is defined", Status: StatusPassed})
		return
	}
	r.add(Check{Category: CategoryData, Message: "Campaign goal needs to be defined", Status: StatusFailed})
	r.recommend("Define a clear campaign goal to measure success")
}

func (r *run) simulation() {
	r.add(Check{Category: CategoryData, Message: "Performance simulation recommended", Status: StatusWarning, Advisory: true})
	r.recommend("Run performance simulation to estimate campaign effectiveness")
}

func ids(nodes []flow.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}
