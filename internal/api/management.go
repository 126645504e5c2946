package api

import (
	"net/http"
	"strconv"

	"github.com/foxzi/flowry/internal/jobs"
)

// UsageResponse reports the AI request quota use of the caller
type UsageResponse struct {
	Owner       string `json:"owner"`
	Enabled     bool   `json:"enabled"`
	HourlyCount int    `json:"hourly_count"`
	DailyCount  int    `json:"daily_count"`
}

// handleUsage handles GET /api/v1/usage
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	owner := OwnerFromContext(r.Context())
	resp := UsageResponse{Owner: owner}

	if s.deps.Limiter != nil {
		stats := s.deps.Limiter.Stats(r.Context(), owner)
		resp.Enabled = true
		resp.HourlyCount = stats.HourlyCount
		resp.DailyCount = stats.DailyCount
	}

	sendJSON(w, http.StatusOK, resp)
}

// JobListResponse is the response for GET /campaigns/{id}/jobs
type JobListResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// handleCampaignJobs handles GET /api/v1/campaigns/{id}/jobs
func (s *Server) handleCampaignJobs(w http.ResponseWriter, r *http.Request) {
	c, err := s.loadCampaign(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	filter := jobs.ListFilter{
		CampaignID: c.ID,
		Status:     jobs.Status(r.URL.Query().Get("status")),
		Type:       jobs.Type(r.URL.Query().Get("type")),
		Limit:      100,
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			s.writeError(w, r, unprocessable("invalid limit %q", limit))
			return
		}
		filter.Limit = n
	}

	list, err := s.deps.Store.ListJobs(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := JobListResponse{Jobs: make([]JobResponse, 0, len(list))}
	for _, j := range list {
		resp.Jobs = append(resp.Jobs, newJobResponse(j))
	}
	sendJSON(w, http.StatusOK, resp)
}
