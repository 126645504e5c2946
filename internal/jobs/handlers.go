package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/foxzi/flowry/internal/campaign"
	"github.com/foxzi/flowry/internal/export"
	"github.com/foxzi/flowry/internal/flow"
	"github.com/foxzi/flowry/internal/textgen"
)

var (
	ErrNodeGone     = errors.New("Node not found")
	ErrCampaignGone = errors.New("Campaign not found")
)

// CopyGradingPayload selects the node to grade
type CopyGradingPayload struct {
	NodeID string `json:"node_id"`
}

// RewritePayload is the text to rewrite and how
type RewritePayload struct {
	Text     string        `json:"text"`
	Intent   string        `json:"intent"`
	NodeType flow.NodeType `json:"node_type,omitempty"`
}

// ExportPayload selects the export format
type ExportPayload struct {
	Format string `json:"format"`
}

// CampaignLoader reads the campaign a job belongs to
type CampaignLoader interface {
	GetCampaign(ctx context.Context, owner, id string) (*campaign.Campaign, error)
}

// TextService generates the AI-assisted results
type TextService interface {
	GradeCopy(ctx context.Context, brand string, n *flow.Node) *textgen.Grading
	AnalyzeFunnel(ctx context.Context, brand string, g *flow.Graph) *textgen.FunnelAnalysis
	Rewrite(ctx context.Context, brand, text string, intent textgen.Intent, nodeType flow.NodeType) (*textgen.Rewrite, error)
}

// Exporter renders and stores campaign documents
type Exporter interface {
	Export(ctx context.Context, c *campaign.Campaign, format string) (*export.Artifact, error)
}

// Handlers implements the built-in job types
type Handlers struct {
	campaigns CampaignLoader
	text      TextService
	exporter  Exporter
}

// NewHandlers creates the handlers for all job types
func NewHandlers(campaigns CampaignLoader, text TextService, exporter Exporter) *Handlers {
	return &Handlers{campaigns: campaigns, text: text, exporter: exporter}
}

// Register installs every handler on r
func (h *Handlers) Register(r *Runner) {
	r.Register(TypeCopyGrading, HandlerFunc(h.CopyGrading))
	r.Register(TypeFunnelAnalysis, HandlerFunc(h.FunnelAnalysis))
	r.Register(TypeAIRewrite, HandlerFunc(h.AIRewrite))
	r.Register(TypePDFExport, HandlerFunc(h.PDFExport))
}

func (h *Handlers) load(ctx context.Context, job *Job) (*campaign.Campaign, error) {
	c, err := h.campaigns.GetCampaign(ctx, job.OwnerID, job.CampaignID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, ErrCampaignGone
	}
	return c, nil
}

func decodePayload(job *Job, v any) error {
	if len(job.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(job.Payload, v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

// CopyGrading grades the copy of one node
func (h *Handlers) CopyGrading(ctx context.Context, job *Job) (any, error) {
	var p CopyGradingPayload
	if err := decodePayload(job, &p); err != nil {
		return nil, err
	}
	c, err := h.load(ctx, job)
	if err != nil {
		return nil, err
	}
	n, ok := c.Structure.FindNode(p.NodeID)
	if !ok {
		return nil, ErrNodeGone
	}
	return h.text.GradeCopy(ctx, c.Brand, n), nil
}

// FunnelAnalysis reviews the whole flow
func (h *Handlers) FunnelAnalysis(ctx context.Context, job *Job) (any, error) {
	c, err := h.load(ctx, job)
	if err != nil {
		return nil, err
	}
	return h.text.AnalyzeFunnel(ctx, c.Brand, &c.Structure), nil
}

// AIRewrite rewrites free text in the campaign's brand voice
func (h *Handlers) AIRewrite(ctx context.Context, job *Job) (any, error) {
	var p RewritePayload
	if err := decodePayload(job, &p); err != nil {
		return nil, err
	}
	c, err := h.load(ctx, job)
	if err != nil {
		return nil, err
	}
	intent, err := textgen.ParseIntent(p.Intent)
	if err != nil {
		return nil, err
	}
	return h.text.Rewrite(ctx, c.Brand, p.Text, intent, p.NodeType)
}

// PDFExport renders the campaign plan
func (h *Handlers) PDFExport(ctx context.Context, job *Job) (any, error) {
	p := ExportPayload{Format: export.FormatPDF}
	if err := decodePayload(job, &p); err != nil {
		return nil, err
	}
	c, err := h.load(ctx, job)
	if err != nil {
		return nil, err
	}
	return h.exporter.Export(ctx, c, p.Format)
}
