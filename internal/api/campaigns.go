package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/flowry/internal/campaign"
	"github.com/foxzi/flowry/internal/flow"
	"github.com/foxzi/flowry/internal/metrics"
	"github.com/foxzi/flowry/internal/store"
)

// CampaignParams are the editable campaign fields. Absent fields are left unchanged on update.
type CampaignParams struct {
	Name      *string        `json:"name,omitempty"`
	Brand     *string        `json:"brand,omitempty"`
	Goal      *string        `json:"goal,omitempty"`
	Structure *flow.Graph    `json:"structure,omitempty"`
	Settings  map[string]any `json:"settings,omitempty"`
}

// CampaignRequest accepts the fields either wrapped in "campaign" or at the top level
type CampaignRequest struct {
	Campaign *CampaignParams `json:"campaign,omitempty"`
	CampaignParams
	Version *int64 `json:"version,omitempty"`
}

func (req *CampaignRequest) params() CampaignParams {
	if req.Campaign != nil {
		return *req.Campaign
	}
	return req.CampaignParams
}

// CampaignResponse wraps a single campaign
type CampaignResponse struct {
	Message  string             `json:"message,omitempty"`
	Campaign *campaign.Campaign `json:"campaign"`
}

// CampaignListResponse is the response for GET /campaigns
type CampaignListResponse struct {
	Campaigns []*campaign.Campaign `json:"campaigns"`
}

// loadCampaign fetches the {id} campaign of the authenticated owner
func (s *Server) loadCampaign(r *http.Request) (*campaign.Campaign, error) {
	c, err := s.deps.Store.GetCampaign(r.Context(), OwnerFromContext(r.Context()), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		return nil, errCampaignNotFound
	}
	return c, err
}

// mutateCampaign applies fn to the latest stored {id} campaign, validates and writes it
func (s *Server) mutateCampaign(r *http.Request, expected int64, fn func(*campaign.Campaign) error) (*campaign.Campaign, error) {
	c, err := s.deps.Store.MutateCampaign(r.Context(), OwnerFromContext(r.Context()), chi.URLParam(r, "id"), expected, func(c *campaign.Campaign) error {
		if err := fn(c); err != nil {
			return err
		}
		return c.Validate(s.brands)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, errCampaignNotFound
	}
	return c, err
}

// handleListCampaigns handles GET /api/v1/campaigns
func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Store.ListCampaigns(r.Context(), OwnerFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*campaign.Campaign{}
	}
	sendJSON(w, http.StatusOK, CampaignListResponse{Campaigns: list})
}

// handleCreateCampaign handles POST /api/v1/campaigns
func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req CampaignRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p := req.params()

	c := campaign.New(OwnerFromContext(r.Context()), deref(p.Name), deref(p.Brand), deref(p.Goal))
	if p.Structure != nil {
		c.Structure = *p.Structure
	}
	if p.Settings != nil {
		c.Settings = p.Settings
	}
	c.Normalize()

	if err := c.Validate(s.brands); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Store.CreateCampaign(r.Context(), c); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info("campaign created", "id", c.ID, "owner", c.OwnerID, "brand", c.Brand)
	setETag(w, c)
	sendJSON(w, http.StatusCreated, CampaignResponse{Campaign: c})
}

// handleGetCampaign handles GET /api/v1/campaigns/{id}
func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := s.loadCampaign(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	setETag(w, c)
	sendJSON(w, http.StatusOK, CampaignResponse{Campaign: c})
}

// handleUpdateCampaign handles PUT and PATCH /api/v1/campaigns/{id}
func (s *Server) handleUpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var req CampaignRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	expected, err := expectedVersion(r, req.Version)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	p := req.params()
	c, err := s.mutateCampaign(r, expected, func(c *campaign.Campaign) error {
		if p.Name != nil {
			c.Name = strings.TrimSpace(*p.Name)
		}
		if p.Brand != nil {
			c.Brand = strings.TrimSpace(*p.Brand)
		}
		if p.Goal != nil {
			c.Goal = strings.TrimSpace(*p.Goal)
		}
		if p.Structure != nil {
			c.Structure = *p.Structure
		}
		if p.Settings != nil {
			c.Settings = p.Settings
		}
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	setETag(w, c)
	sendJSON(w, http.StatusOK, CampaignResponse{Message: "Campaign saved successfully.", Campaign: c})
}

// handleDeleteCampaign handles DELETE /api/v1/campaigns/{id}
func (s *Server) handleDeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.deps.Store.DeleteCampaign(r.Context(), OwnerFromContext(r.Context()), id)
	if errors.Is(err, store.ErrNotFound) {
		err = errCampaignNotFound
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.deps.Cache.Invalidate(r.Context(), id)
	s.logger.Info("campaign deleted", "id", id)
	sendJSON(w, http.StatusOK, map[string]string{"message": "Campaign deleted successfully."})
}

// handlePreflight handles POST /api/v1/campaigns/{id}/preflight_check
func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	c, err := s.loadCampaign(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if report, ok := s.deps.Cache.Get(r.Context(), c.ID, c.StructureVersion, c.Goal); ok {
		sendJSON(w, http.StatusOK, report)
		return
	}

	report := s.deps.Analyzer.AnalyzeCampaign(c)
	metrics.ObserveReadinessScore(report.Score)
	s.deps.Cache.Set(r.Context(), c.ID, c.StructureVersion, c.Goal, report)

	sendJSON(w, http.StatusOK, report)
}

// PredictRequest is the body of POST /predict
type PredictRequest struct {
	Structure *flow.Graph `json:"structure"`
	Brand     string      `json:"brand"`
	Goal      string      `json:"goal"`
	Save      bool        `json:"save"`
}

// handlePredict handles POST /api/v1/predict for an unsaved structure
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, s.deps.Predictor.Predict(req.Structure, req.Brand, req.Goal))
}

// handlePredictCampaign handles POST /api/v1/campaigns/{id}/predict
func (s *Server) handlePredictCampaign(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	c, err := s.loadCampaign(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	prediction := s.deps.Predictor.Predict(&c.Structure, c.Brand, c.Goal)
	if req.Save {
		// the prediction only holds for the structure it was computed from
		_, err := s.mutateCampaign(r, c.StructureVersion, func(c *campaign.Campaign) error {
			c.PredictedPerformance = prediction.Metrics()
			return nil
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	sendJSON(w, http.StatusOK, prediction)
}

// LogPerformanceRequest is the body of POST /campaigns/{id}/log_performance
type LogPerformanceRequest struct {
	Metrics map[string]float64 `json:"metrics"`
}

// LogPerformanceResponse is the response of POST /campaigns/{id}/log_performance
type LogPerformanceResponse struct {
	Message           string               `json:"message"`
	Campaign          *campaign.Campaign   `json:"campaign"`
	PredictedVsActual *campaign.Comparison `json:"predicted_vs_actual"`
}

// handleLogPerformance handles POST /api/v1/campaigns/{id}/log_performance
func (s *Server) handleLogPerformance(w http.ResponseWriter, r *http.Request) {
	var req LogPerformanceRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(req.Metrics) == 0 {
		s.writeError(w, r, unprocessable("metrics is required"))
		return
	}

	c, err := s.mutateCampaign(r, store.AnyVersion, func(c *campaign.Campaign) error {
		c.LogPerformance(req.Metrics)
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info("performance logged", "id", c.ID, "metrics", len(req.Metrics))
	sendJSON(w, http.StatusOK, LogPerformanceResponse{
		Message:           "Performance logged successfully",
		Campaign:          c,
		PredictedVsActual: c.PredictedVsActual(),
	})
}

// ComparisonResponse is the response of GET /campaigns/{id}/performance_comparison
type ComparisonResponse struct {
	Campaign   campaign.Summary     `json:"campaign"`
	Comparison *campaign.Comparison `json:"comparison"`
}

// handlePerformanceComparison handles GET /api/v1/campaigns/{id}/performance_comparison
func (s *Server) handlePerformanceComparison(w http.ResponseWriter, r *http.Request) {
	c, err := s.loadCampaign(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	cmp := c.PredictedVsActual()
	if cmp == nil {
		sendError(w, http.StatusNotFound, "No performance data available for comparison")
		return
	}

	sendJSON(w, http.StatusOK, ComparisonResponse{Campaign: c.Summary(), Comparison: cmp})
}

// handleUpdateStatus handles PATCH /api/v1/campaigns/{id}/status
func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Status == "" {
		s.writeError(w, r, unprocessable("status is required"))
		return
	}

	status, err := campaign.ParseStatus(req.Status)
	if err != nil {
		sendJSON(w, http.StatusUnprocessableEntity, ValidationResponse{Errors: []string{"status is not included in the list"}})
		return
	}

	c, err := s.mutateCampaign(r, store.AnyVersion, func(c *campaign.Campaign) error {
		return c.SetStatus(status)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info("campaign status updated", "id", c.ID, "status", c.Status.String())
	sendJSON(w, http.StatusOK, CampaignResponse{Message: "Status updated successfully", Campaign: c})
}

// handleUpdateUTM handles PATCH /api/v1/campaigns/{id}/utm_settings
func (s *Server) handleUpdateUTM(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UTM *campaign.UTM `json:"utm"`
	}
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.UTM == nil {
		s.writeError(w, r, unprocessable("utm is required"))
		return
	}

	var utm campaign.UTM
	_, err := s.mutateCampaign(r, store.AnyVersion, func(c *campaign.Campaign) error {
		utm = c.SetUTMParameters(req.UTM.Source, req.UTM.Medium, req.UTM.Campaign)
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sendJSON(w, http.StatusOK, map[string]any{
		"message":        "UTM settings updated successfully",
		"utm_parameters": utm,
	})
}

// handleBuildUTMURL handles POST /api/v1/campaigns/{id}/build_utm_url
func (s *Server) handleBuildUTMURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BaseURL    string `json:"base_url"`
		ContentTag string `json:"content_tag"`
	}
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.BaseURL) == "" {
		s.writeError(w, r, unprocessable("base_url is required"))
		return
	}

	c, err := s.loadCampaign(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sendJSON(w, http.StatusOK, map[string]any{
		"original_url":   req.BaseURL,
		"utm_url":        c.BuildUTMURL(req.BaseURL, req.ContentTag),
		"utm_parameters": c.UTMParameters(),
	})
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
