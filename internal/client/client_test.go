package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestClientRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "Authorization token required"})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		switch r.Method + " " + r.URL.Path {
		case "GET /api/v1/campaigns":
			w.Write([]byte(`{"campaigns":[{"id":"c1","name":"Spring","brand":"everclear","goal":"g","status":"draft"}]}`))
		case "GET /api/v1/campaigns/c1":
			w.Write([]byte(`{"campaign":{"id":"c1","name":"Spring","brand":"everclear","goal":"g","status":"live"}}`))
		case "POST /api/v1/campaigns/c1/preflight_check":
			w.Write([]byte(`{"readiness_score":67,"total_checks":3,"passed_checks":2,"checks":[]}`))
		case "GET /api/v1/campaigns/c1/export":
			if r.URL.Query().Get("format") != "pdf" {
				w.WriteHeader(http.StatusUnprocessableEntity)
				w.Write([]byte(`{"error":"Unsupported export format"}`))
				return
			}
			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte(`{"job_id":"j1","status":"pending"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"Campaign not found"}`))
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	c := NewClient(srv.URL+"/", "secret")

	list, err := c.ListCampaigns(ctx)
	if err != nil {
		t.Fatalf("ListCampaigns() error = %v", err)
	}
	if len(list.Campaigns) != 1 || list.Campaigns[0].ID != "c1" {
		t.Errorf("campaigns = %+v", list.Campaigns)
	}

	got, err := c.GetCampaign(ctx, "c1")
	if err != nil {
		t.Fatalf("GetCampaign() error = %v", err)
	}
	if got.Campaign.Status.String() != "live" {
		t.Errorf("status = %s, want live", got.Campaign.Status)
	}

	report, err := c.Preflight(ctx, "c1")
	if err != nil {
		t.Fatalf("Preflight() error = %v", err)
	}
	if report.Score != 67 || report.TotalChecks != 3 {
		t.Errorf("report = %+v", report)
	}

	accepted, err := c.Export(ctx, "c1", "pdf")
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if accepted.JobID != "j1" {
		t.Errorf("job_id = %q, want j1", accepted.JobID)
	}

	_, err = c.Export(ctx, "c1", "csv")
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnprocessableEntity || apiErr.Message != "Unsupported export format" {
		t.Errorf("Export(csv) error = %v", err)
	}

	_, err = c.GetCampaign(ctx, "missing")
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("GetCampaign(missing) error = %v", err)
	}

	_, err = NewClient(srv.URL, "wrong").ListCampaigns(ctx)
	if !errors.As(err, &apiErr) || apiErr.Message != "Authorization token required" {
		t.Errorf("unauthorized error = %v", err)
	}
}

func TestValidationErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"errors":["name can't be blank","goal can't be blank"]}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "k").GetCampaign(context.Background(), "x")
	if err == nil || err.Error() != "API error (422): name can't be blank, goal can't be blank" {
		t.Errorf("error = %v", err)
	}
}

func TestWaitJob(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := "processing"
		if calls.Add(1) >= 3 {
			status = "complete"
		}
		json.NewEncoder(w).Encode(map[string]any{
			"job_id":   "j1",
			"status":   status,
			"job_type": "pdf_export",
			"result":   map[string]string{"download_url": "/downloads/x.pdf"},
		})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	job, err := NewClient(srv.URL, "k").WaitJob(ctx, "j1", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitJob() error = %v", err)
	}
	if job.Status != "complete" || calls.Load() != 3 {
		t.Errorf("status = %s after %d calls, want complete after 3", job.Status, calls.Load())
	}
}
