package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/foxzi/flowry/internal/campaign"
	"github.com/foxzi/flowry/internal/export"
	"github.com/foxzi/flowry/internal/flow"
	"github.com/foxzi/flowry/internal/jobs"
	"github.com/foxzi/flowry/internal/store"
	"github.com/foxzi/flowry/internal/textgen"
)

// JobAccepted is the response of every endpoint that starts a background job
type JobAccepted struct {
	JobID   string      `json:"job_id"`
	Status  jobs.Status `json:"status"`
	Message string      `json:"message,omitempty"`
}

// JobResponse is the response for GET /jobs/{id}
type JobResponse struct {
	JobID     string          `json:"job_id"`
	Status    jobs.Status     `json:"status"`
	JobType   jobs.Type       `json:"job_type"`
	Result    json.RawMessage `json:"result"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func newJobResponse(j *jobs.Job) JobResponse {
	result := j.Result
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	return JobResponse{
		JobID:     j.JobID,
		Status:    j.Status,
		JobType:   j.Type,
		Result:    result,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

// enqueue creates a pending job for c and hands it to the runner
func (s *Server) enqueue(w http.ResponseWriter, r *http.Request, c *campaign.Campaign, typ jobs.Type, payload any, message string) {
	job, err := jobs.NewJob(c.ID, c.OwnerID, typ, payload)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Jobs.Enqueue(r.Context(), job); err != nil {
		s.logger.Error("failed to enqueue job", "type", typ, "campaign_id", c.ID, "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to queue job")
		return
	}

	s.logger.Info("job queued",
		"job_id", job.JobID,
		"type", typ,
		"campaign_id", c.ID,
	)

	sendJSON(w, http.StatusAccepted, JobAccepted{JobID: job.JobID, Status: job.Status, Message: message})
}

// handleGradeCopy handles POST /api/v1/campaigns/{id}/grade_copy
func (s *Server) handleGradeCopy(w http.ResponseWriter, r *http.Request) {
	var req jobs.CopyGradingPayload
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	c, err := s.loadCampaign(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, ok := c.Structure.FindNode(req.NodeID); !ok {
		s.writeError(w, r, errNodeNotFound)
		return
	}

	s.enqueue(w, r, c, jobs.TypeCopyGrading, req, "")
}

// handleAnalyze handles POST /api/v1/campaigns/{id}/analyze
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	c, err := s.loadCampaign(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.enqueue(w, r, c, jobs.TypeFunnelAnalysis, nil, "")
}

// handleAIRewrite handles POST /api/v1/campaigns/{id}/ai_rewrite
func (s *Server) handleAIRewrite(w http.ResponseWriter, r *http.Request) {
	var req jobs.RewritePayload
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.writeError(w, r, unprocessable("text is required"))
		return
	}
	if _, err := textgen.ParseIntent(req.Intent); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.NodeType == "" {
		req.NodeType = flow.TypeEmail
	}

	c, err := s.loadCampaign(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.enqueue(w, r, c, jobs.TypeAIRewrite, req, "")
}

// handleExport handles GET /api/v1/campaigns/{id}/export
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = export.FormatPDF
	}
	if !export.SupportedFormat(format) {
		s.writeError(w, r, export.ErrUnsupportedFormat)
		return
	}

	c, err := s.loadCampaign(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.enqueue(w, r, c, jobs.TypePDFExport, jobs.ExportPayload{Format: strings.ToLower(format)},
		"PDF export started. You will receive a download link when ready.")
}

// handleGetJob handles GET /api/v1/jobs/{id}
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Store.GetJob(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, jobs.ErrJobNotFound) {
		s.writeError(w, r, errJobNotFound)
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if job.OwnerID != OwnerFromContext(r.Context()) {
		s.writeError(w, r, errJobForbidden)
		return
	}

	sendJSON(w, http.StatusOK, newJobResponse(job))
}

// ChatRequest is the body of POST /ai/chat
type ChatRequest struct {
	Message             string                `json:"message"`
	ConversationHistory []textgen.ChatMessage `json:"conversation_history"`
	CurrentCampaignID   string                `json:"current_campaign_id"`
	CurrentBrand        string                `json:"current_brand"`
}

// ChatResponse is the response of POST /ai/chat
type ChatResponse struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
	Timestamp      string `json:"timestamp"`
	Mock           bool   `json:"mock,omitempty"`
}

// handleChat handles POST /api/v1/ai/chat
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.writeError(w, r, unprocessable("message is required"))
		return
	}

	chat := textgen.ChatRequest{
		Message: req.Message,
		History: req.ConversationHistory,
		Brand:   req.CurrentBrand,
	}
	if req.CurrentCampaignID != "" {
		// an unknown campaign only drops the context
		c, err := s.deps.Store.GetCampaign(r.Context(), OwnerFromContext(r.Context()), req.CurrentCampaignID)
		if err == nil {
			chat.Campaign = c
			if chat.Brand == "" {
				chat.Brand = c.Brand
			}
		}
	}

	reply := s.deps.Chat.Chat(r.Context(), chat)
	sendJSON(w, http.StatusOK, ChatResponse{
		Message:        reply.Message,
		ConversationID: uuid.New().String(),
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		Mock:           reply.Mock,
	})
}
