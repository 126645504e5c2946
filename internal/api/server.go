package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/foxzi/flowry/internal/cache"
	"github.com/foxzi/flowry/internal/campaign"
	"github.com/foxzi/flowry/internal/config"
	"github.com/foxzi/flowry/internal/flow"
	"github.com/foxzi/flowry/internal/insights"
	"github.com/foxzi/flowry/internal/ipfilter"
	"github.com/foxzi/flowry/internal/jobs"
	"github.com/foxzi/flowry/internal/metrics"
	"github.com/foxzi/flowry/internal/predict"
	"github.com/foxzi/flowry/internal/ratelimit"
	"github.com/foxzi/flowry/internal/readiness"
	"github.com/foxzi/flowry/internal/reference"
	"github.com/foxzi/flowry/internal/store"
	"github.com/foxzi/flowry/internal/textgen"
)

// Store is the persistence the API reads and writes
type Store interface {
	CreateCampaign(ctx context.Context, c *campaign.Campaign) error
	GetCampaign(ctx context.Context, owner, id string) (*campaign.Campaign, error)
	ListCampaigns(ctx context.Context, owner string) ([]*campaign.Campaign, error)
	MutateCampaign(ctx context.Context, owner, id string, expectedVersion int64, fn func(*campaign.Campaign) error) (*campaign.Campaign, error)
	MutateStructure(ctx context.Context, owner, id string, expectedVersion int64, fn func(*flow.Graph) error) (*campaign.Campaign, error)
	DeleteCampaign(ctx context.Context, owner, id string) error

	GetJob(ctx context.Context, id string) (*jobs.Job, error)
	ListJobs(ctx context.Context, filter jobs.ListFilter) ([]*jobs.Job, error)
	JobStats(ctx context.Context) (*jobs.Stats, error)

	CreateTemplate(ctx context.Context, tmpl *campaign.Template) error
	GetTemplate(ctx context.Context, id string) (*campaign.Template, error)
	ListTemplates(ctx context.Context, filter store.TemplateFilter) ([]*campaign.Template, error)
	UpdateTemplate(ctx context.Context, tmpl *campaign.Template) error
	DeleteTemplate(ctx context.Context, id string) error
}

// JobQueue accepts background jobs
type JobQueue interface {
	Enqueue(ctx context.Context, job *jobs.Job) error
}

// ChatService answers strategist chat messages
type ChatService interface {
	Chat(ctx context.Context, req textgen.ChatRequest) *textgen.ChatReply
}

// RateLimiter meters AI-backed requests per owner
type RateLimiter interface {
	Allow(ctx context.Context, owner string) (*ratelimit.Result, error)
	Stats(ctx context.Context, owner string) *ratelimit.Stats
}

// Deps are the collaborators behind the API. Limiter, IPFilter and Cache may be nil.
type Deps struct {
	Store     Store
	Jobs      JobQueue
	Chat      ChatService
	Auth      *Authenticator
	Analyzer  *readiness.Analyzer
	Predictor *predict.Predictor
	Catalog   *reference.Catalog
	Advisor   *insights.Advisor
	Cache     cache.ReportCache
	Limiter   RateLimiter
	IPFilter  *ipfilter.Filter
	// Directory served under /downloads/, empty disables the route
	DownloadDir string
	Version     string
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	config     *config.APIConfig
	deps       Deps
	brands     campaign.BrandSet
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates a new API server
func NewServer(cfg *config.APIConfig, deps Deps, logger *slog.Logger) *Server {
	if deps.Catalog == nil {
		deps.Catalog = reference.Default()
	}
	if deps.Analyzer == nil {
		deps.Analyzer = readiness.NewAnalyzer(readiness.Options{})
	}
	if deps.Predictor == nil {
		deps.Predictor = predict.NewPredictor(deps.Catalog)
	}
	if deps.Advisor == nil {
		deps.Advisor = insights.NewAdvisor(deps.Catalog)
	}
	if deps.Cache == nil {
		deps.Cache = cache.Nop{}
	}

	s := &Server{
		router:    chi.NewRouter(),
		config:    cfg,
		deps:      deps,
		brands:    campaign.NewBrandSet(deps.Catalog.Brands()...),
		logger:    logger,
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	if s.config.TrustProxy {
		s.router.Use(middleware.RealIP)
	}
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.HTTPMiddleware)
	if s.deps.IPFilter != nil {
		s.router.Use(s.deps.IPFilter.Middleware)
	}
	if len(s.config.CORSOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "If-Match", "X-API-Key"},
			ExposedHeaders:   []string{"ETag", "Retry-After", "X-RateLimit-Remaining"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	if s.deps.DownloadDir != "" {
		s.router.Handle("/downloads/*", http.StripPrefix("/downloads/", downloadHandler(s.deps.DownloadDir)))
	}

	// API v1 routes (auth required)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/campaigns", func(r chi.Router) {
				r.Get("/", s.handleListCampaigns)
				r.Post("/", s.handleCreateCampaign)
				r.Get("/templates", s.handleListTemplates)
				r.Post("/from_template", s.handleFromTemplate)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetCampaign)
					r.Put("/", s.handleUpdateCampaign)
					r.Patch("/", s.handleUpdateCampaign)
					r.Delete("/", s.handleDeleteCampaign)

					r.Post("/nodes", s.handleAddNode)
					r.Patch("/nodes/{nodeID}", s.handleUpdateNode)
					r.Delete("/nodes/{nodeID}", s.handleDeleteNode)
					r.Get("/nodes/{nodeID}/edges", s.handleEdgesFrom)
					r.Post("/edges", s.handleAddEdge)
					r.Delete("/edges/{edgeID}", s.handleDeleteEdge)

					r.Post("/preflight_check", s.handlePreflight)
					r.Post("/predict", s.handlePredictCampaign)
					r.Post("/log_performance", s.handleLogPerformance)
					r.Get("/performance_comparison", s.handlePerformanceComparison)
					r.Patch("/status", s.handleUpdateStatus)
					r.Patch("/utm_settings", s.handleUpdateUTM)
					r.Post("/build_utm_url", s.handleBuildUTMURL)
					r.Get("/ga4_events", s.handleGA4Events)
					r.Get("/utm_recommendations", s.handleUTMRecommendations)
					r.Get("/jobs", s.handleCampaignJobs)
					r.Get("/export", s.handleExport)

					r.Group(func(r chi.Router) {
						r.Use(s.rateLimitMiddleware)
						r.Post("/grade_copy", s.handleGradeCopy)
						r.Post("/analyze", s.handleAnalyze)
						r.Post("/ai_rewrite", s.handleAIRewrite)
					})
				})
			})

			r.Route("/campaign_templates", func(r chi.Router) {
				r.Get("/", s.handleListTemplates)
				r.Post("/", s.handleCreateTemplate)
				r.Post("/from_campaign", s.handleTemplateFromCampaign)
				r.Get("/{id}", s.handleGetTemplate)
				r.Put("/{id}", s.handleUpdateTemplate)
				r.Patch("/{id}", s.handleUpdateTemplate)
				r.Delete("/{id}", s.handleDeleteTemplate)
			})

			r.Route("/marketing_intelligence", func(r chi.Router) {
				r.Post("/analyze_platform_content", s.handleAnalyzePlatformContent)
				r.Get("/platform_best_practices", s.handlePlatformBestPractices)
				r.Get("/utm_examples", s.handleUTMExamples)
				r.Get("/ga4_event_recommendations", s.handleGA4Recommendations)
			})

			r.Post("/predict", s.handlePredict)
			r.Get("/jobs/{id}", s.handleGetJob)
			r.Get("/usage", s.handleUsage)
			r.With(s.rateLimitMiddleware).Post("/ai/chat", s.handleChat)
		})
	})
}

// Handler returns the root handler, used by tests and custom listeners
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddr,
		Handler:        s.router,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status  string      `json:"status"`
	Version string      `json:"version"`
	Uptime  string      `json:"uptime"`
	Jobs    *jobs.Stats `json:"jobs,omitempty"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: s.deps.Version,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
	}

	stats, err := s.deps.Store.JobStats(r.Context())
	if err != nil {
		s.logger.Error("failed to get job stats", "error", err)
		resp.Status = "degraded"
	} else {
		resp.Jobs = stats
	}

	sendJSON(w, http.StatusOK, resp)
}

// downloadHandler serves export files without directory listings
func downloadHandler(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || r.URL.Path[len(r.URL.Path)-1] == '/' {
			sendError(w, http.StatusNotFound, "File not found")
			return
		}
		w.Header().Set("Content-Disposition", "attachment")
		files.ServeHTTP(w, r)
	})
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// ValidationResponse carries field-level messages
type ValidationResponse struct {
	Errors []string `json:"errors"`
}

func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, status int, message string) {
	sendJSON(w, status, ErrorResponse{Error: message})
}
