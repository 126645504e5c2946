package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/flowry/internal/campaign"
	"github.com/foxzi/flowry/internal/flow"
	"github.com/foxzi/flowry/internal/store"
)

// TemplateSummary is a template in listings
type TemplateSummary struct {
	ID          string                    `json:"id"`
	Name        string                    `json:"name"`
	Brand       string                    `json:"brand"`
	Goal        string                    `json:"goal"`
	Description string                    `json:"description"`
	Recommended bool                      `json:"recommended"`
	Complexity  string                    `json:"complexity"`
	SetupTime   string                    `json:"setup_time"`
	Metadata    campaign.TemplateMetadata `json:"metadata"`
	CreatedAt   time.Time                 `json:"created_at"`
}

// TemplateListResponse is the response for GET /campaign_templates
type TemplateListResponse struct {
	Templates        []TemplateSummary   `json:"templates"`
	Goals            []string            `json:"goals"`
	AudienceSegments map[string][]string `json:"audience_segments"`
}

// TemplateParams are the editable template fields
type TemplateParams struct {
	Name        *string                    `json:"name,omitempty"`
	Brand       *string                    `json:"brand,omitempty"`
	Goal        *string                    `json:"goal,omitempty"`
	Description *string                    `json:"description,omitempty"`
	Structure   *flow.Graph                `json:"structure,omitempty"`
	Metadata    *campaign.TemplateMetadata `json:"metadata,omitempty"`
}

// TemplateRequest accepts the fields wrapped in "campaign_template" or at the top level
type TemplateRequest struct {
	Template *TemplateParams `json:"campaign_template,omitempty"`
	TemplateParams
}

func (req *TemplateRequest) params() TemplateParams {
	if req.Template != nil {
		return *req.Template
	}
	return req.TemplateParams
}

func (p TemplateParams) apply(t *campaign.Template) {
	if p.Name != nil {
		t.Name = strings.TrimSpace(*p.Name)
	}
	if p.Brand != nil {
		t.Brand = strings.TrimSpace(*p.Brand)
	}
	if p.Goal != nil {
		t.Goal = strings.TrimSpace(*p.Goal)
	}
	if p.Description != nil {
		t.Description = strings.TrimSpace(*p.Description)
	}
	if p.Structure != nil {
		t.Structure = *p.Structure
	}
	if p.Metadata != nil {
		t.Metadata = *p.Metadata
	}
}

// TemplateResult is returned by template writes
type TemplateResult struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Brand       string `json:"brand,omitempty"`
	Goal        string `json:"goal,omitempty"`
	Description string `json:"description,omitempty"`
	Message     string `json:"message"`
}

func (s *Server) loadTemplate(r *http.Request, id string) (*campaign.Template, error) {
	t, err := s.deps.Store.GetTemplate(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errTemplateNotFound
	}
	return t, err
}

// handleListTemplates handles GET /api/v1/campaign_templates and GET /api/v1/campaigns/templates
func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	filter := store.TemplateFilter{
		Brand: r.URL.Query().Get("brand"),
		Goal:  r.URL.Query().Get("goal"),
	}

	list, err := s.deps.Store.ListTemplates(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := TemplateListResponse{
		Templates:        make([]TemplateSummary, 0, len(list)),
		Goals:            s.deps.Catalog.Goals(),
		AudienceSegments: s.deps.Catalog.Segments(),
	}
	for _, t := range list {
		resp.Templates = append(resp.Templates, TemplateSummary{
			ID:          t.ID,
			Name:        t.Name,
			Brand:       t.Brand,
			Goal:        t.Goal,
			Description: t.Description,
			Recommended: t.Recommended(),
			Complexity:  t.ComplexityLevel(),
			SetupTime:   t.EstimatedSetupTime(),
			Metadata:    t.Metadata,
			CreatedAt:   t.CreatedAt,
		})
	}

	sendJSON(w, http.StatusOK, resp)
}

// handleGetTemplate handles GET /api/v1/campaign_templates/{id}
func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.loadTemplate(r, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, t)
}

// handleCreateTemplate handles POST /api/v1/campaign_templates
func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	t := &campaign.Template{}
	req.params().apply(t)
	if err := t.Validate(s.brands); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Store.CreateTemplate(r.Context(), t); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info("template created", "id", t.ID, "name", t.Name)
	sendJSON(w, http.StatusCreated, TemplateResult{
		ID:          t.ID,
		Name:        t.Name,
		Brand:       t.Brand,
		Goal:        t.Goal,
		Description: t.Description,
		Message:     "Template created successfully",
	})
}

// handleUpdateTemplate handles PUT and PATCH /api/v1/campaign_templates/{id}
func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	t, err := s.loadTemplate(r, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	req.params().apply(t)
	if err := t.Validate(s.brands); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Store.UpdateTemplate(r.Context(), t); err != nil {
		s.writeError(w, r, err)
		return
	}

	sendJSON(w, http.StatusOK, TemplateResult{
		ID:          t.ID,
		Name:        t.Name,
		Brand:       t.Brand,
		Goal:        t.Goal,
		Description: t.Description,
		Message:     "Template updated successfully",
	})
}

// handleDeleteTemplate handles DELETE /api/v1/campaign_templates/{id}
func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.deps.Store.DeleteTemplate(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		err = errTemplateNotFound
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info("template deleted", "id", id)
	sendJSON(w, http.StatusOK, map[string]string{"message": "Template deleted successfully"})
}

// FromCampaignRequest is the body of POST /campaign_templates/from_campaign
type FromCampaignRequest struct {
	CampaignID  string `json:"campaign_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Brand       string `json:"brand"`
	Goal        string `json:"goal"`
	Complexity  string `json:"complexity"`
	SetupTime   string `json:"setup_time"`
}

// handleTemplateFromCampaign handles POST /api/v1/campaign_templates/from_campaign
func (s *Server) handleTemplateFromCampaign(w http.ResponseWriter, r *http.Request) {
	var req FromCampaignRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	c, err := s.deps.Store.GetCampaign(r.Context(), OwnerFromContext(r.Context()), req.CampaignID)
	if errors.Is(err, store.ErrNotFound) {
		err = errCampaignNotFound
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	t := campaign.TemplateFromCampaign(c, req.Name, req.Description, req.Complexity, req.SetupTime)
	if req.Brand != "" {
		t.Brand = req.Brand
	}
	if req.Goal != "" {
		t.Goal = req.Goal
	}
	if err := t.Validate(s.brands); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Store.CreateTemplate(r.Context(), t); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info("template created from campaign", "id", t.ID, "campaign_id", c.ID)
	sendJSON(w, http.StatusCreated, TemplateResult{
		ID:      t.ID,
		Name:    t.Name,
		Message: "Template created from campaign successfully",
	})
}

// FromTemplateRequest is the body of POST /campaigns/from_template
type FromTemplateRequest struct {
	TemplateID string `json:"template_id"`
	Name       string `json:"name"`
	Goal       string `json:"goal"`
}

// handleFromTemplate handles POST /api/v1/campaigns/from_template
func (s *Server) handleFromTemplate(w http.ResponseWriter, r *http.Request) {
	var req FromTemplateRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	t, err := s.loadTemplate(r, req.TemplateID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	c := t.Instantiate(OwnerFromContext(r.Context()), req.Name, req.Goal, time.Now())
	if err := c.Validate(s.brands); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Store.CreateCampaign(r.Context(), c); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info("campaign created from template", "id", c.ID, "template_id", t.ID)
	setETag(w, c)
	sendJSON(w, http.StatusCreated, CampaignResponse{Campaign: c})
}
