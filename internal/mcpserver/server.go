// Package mcpserver exposes campaign analysis as MCP tools over stdio.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/foxzi/flowry/internal/campaign"
	"github.com/foxzi/flowry/internal/export"
	"github.com/foxzi/flowry/internal/flow"
	"github.com/foxzi/flowry/internal/predict"
	"github.com/foxzi/flowry/internal/readiness"
)

// CampaignStore reads campaigns of one owner
type CampaignStore interface {
	GetCampaign(ctx context.Context, owner, id string) (*campaign.Campaign, error)
}

// Handlers implements the tools. Campaign lookups are scoped to owner.
type Handlers struct {
	store     CampaignStore
	owner     string
	analyzer  *readiness.Analyzer
	predictor *predict.Predictor
	logger    *slog.Logger
}

// NewHandlers creates the tool handlers
func NewHandlers(store CampaignStore, owner string, analyzer *readiness.Analyzer, predictor *predict.Predictor, logger *slog.Logger) *Handlers {
	if analyzer == nil {
		analyzer = readiness.NewAnalyzer(readiness.Options{})
	}
	if predictor == nil {
		predictor = predict.NewPredictor(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		store:     store,
		owner:     owner,
		analyzer:  analyzer,
		predictor: predictor,
		logger:    logger,
	}
}

// NewServer creates an MCP server with every tool registered
func NewServer(h *Handlers, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "flowry",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "preflight_check",
		Description: "Run the launch readiness checks on a stored campaign or an ad hoc flow structure",
	}, h.PreflightCheck)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "predict_campaign_success",
		Description: "Estimate the success probability of a campaign flow with a per-factor breakdown",
	}, h.PredictSuccess)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "compare_performance",
		Description: "Compare predicted metrics against actual results",
	}, h.ComparePerformance)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "render_flow_graph",
		Description: "Render a stored campaign flow as Graphviz DOT source",
	}, h.RenderFlowGraph)

	return server
}

// Run serves tools on stdin and stdout until ctx is done or the client disconnects
func Run(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

func (h *Handlers) load(ctx context.Context, id string) (*campaign.Campaign, error) {
	if h.store == nil {
		return nil, errors.New("no campaign store configured")
	}
	c, err := h.store.GetCampaign(ctx, h.owner, id)
	if err != nil {
		return nil, fmt.Errorf("campaign %s: %w", id, err)
	}
	return c, nil
}

type PreflightInput struct {
	CampaignID string      `json:"campaign_id,omitempty" jsonschema:"ID of a stored campaign"`
	Structure  *flow.Graph `json:"structure,omitempty" jsonschema:"Flow to check when no campaign_id is given"`
	Goal       string      `json:"goal,omitempty" jsonschema:"Campaign goal used by the goal alignment check"`
}

func (h *Handlers) PreflightCheck(ctx context.Context, _ *mcp.CallToolRequest, input PreflightInput) (*mcp.CallToolResult, readiness.Report, error) {
	var report *readiness.Report
	switch {
	case input.CampaignID != "":
		c, err := h.load(ctx, input.CampaignID)
		if err != nil {
			return nil, readiness.Report{}, err
		}
		report = h.analyzer.AnalyzeCampaign(c)
	case input.Structure != nil:
		report = h.analyzer.Analyze(input.Structure, input.Goal)
	default:
		return nil, readiness.Report{}, errors.New("campaign_id or structure is required")
	}

	h.logger.Debug("preflight check", "campaign_id", input.CampaignID, "score", report.Score)
	return nil, *report, nil
}

type PredictInput struct {
	CampaignID string      `json:"campaign_id,omitempty" jsonschema:"ID of a stored campaign"`
	Structure  *flow.Graph `json:"structure,omitempty" jsonschema:"Flow to score when no campaign_id is given"`
	Brand      string      `json:"brand,omitempty" jsonschema:"Brand name, overrides the campaign brand"`
	Goal       string      `json:"goal,omitempty" jsonschema:"Campaign goal, overrides the campaign goal"`
}

func (h *Handlers) PredictSuccess(ctx context.Context, _ *mcp.CallToolRequest, input PredictInput) (*mcp.CallToolResult, predict.Prediction, error) {
	g, brand, goal := input.Structure, input.Brand, input.Goal

	if input.CampaignID != "" {
		c, err := h.load(ctx, input.CampaignID)
		if err != nil {
			return nil, predict.Prediction{}, err
		}
		g = &c.Structure
		if brand == "" {
			brand = c.Brand
		}
		if goal == "" {
			goal = c.Goal
		}
	} else if g == nil {
		return nil, predict.Prediction{}, errors.New("campaign_id or structure is required")
	}

	return nil, *h.predictor.Predict(g, brand, goal), nil
}

type CompareInput struct {
	Predicted map[string]float64 `json:"predicted" jsonschema:"Predicted metric values by name"`
	Actual    map[string]float64 `json:"actual" jsonschema:"Actual metric values by name"`
}

type CompareOutput struct {
	Metrics  []string                    `json:"metrics"`
	Variance map[string]predict.Variance `json:"variance"`
}

func (h *Handlers) ComparePerformance(_ context.Context, _ *mcp.CallToolRequest, input CompareInput) (*mcp.CallToolResult, CompareOutput, error) {
	if len(input.Predicted) == 0 || len(input.Actual) == 0 {
		return nil, CompareOutput{}, errors.New("predicted and actual are required")
	}

	variance := predict.CompareVariance(input.Predicted, input.Actual)
	metrics := predict.SortedMetrics(variance)
	if metrics == nil {
		metrics = []string{}
	}
	return nil, CompareOutput{Metrics: metrics, Variance: variance}, nil
}

type RenderInput struct {
	CampaignID string `json:"campaign_id" jsonschema:"ID of a stored campaign"`
}

type RenderOutput struct {
	CampaignID string `json:"campaign_id"`
	DOTSource  string `json:"dot_source"`
	NodeCount  int    `json:"node_count"`
	EdgeCount  int    `json:"edge_count"`
}

func (h *Handlers) RenderFlowGraph(ctx context.Context, _ *mcp.CallToolRequest, input RenderInput) (*mcp.CallToolResult, RenderOutput, error) {
	if input.CampaignID == "" {
		return nil, RenderOutput{}, errors.New("campaign_id is required")
	}
	c, err := h.load(ctx, input.CampaignID)
	if err != nil {
		return nil, RenderOutput{}, err
	}

	dot, err := export.RenderDOT(ctx, &c.Structure)
	if err != nil {
		return nil, RenderOutput{}, fmt.Errorf("failed to render graph: %w", err)
	}

	return nil, RenderOutput{
		CampaignID: c.ID,
		DOTSource:  dot,
		NodeCount:  len(c.Structure.GetNodes()),
		EdgeCount:  len(c.Structure.GetEdges()),
	}, nil
}
