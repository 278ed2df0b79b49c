package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/soaringjerry/intake/internal/middleware"
	"github.com/soaringjerry/intake/internal/services"
)

// Config wires the router. Files is optional and is mounted at /files.
type Config struct {
	Store          Store
	Auth           *middleware.Auth
	Storage        services.ObjectStorage
	Notifier       services.SubmissionNotifier
	Files          http.Handler
	Logger         *log.Logger
	TokenTTL       time.Duration
	ReviewerEmails []string
	AllowedOrigins []string
	// Ping reports storage health for /healthz.
	Ping func(ctx context.Context) error
}

type Router struct {
	store        Store
	auth         *middleware.Auth
	files        http.Handler
	logger       *log.Logger
	ping         func(ctx context.Context) error
	origins      []string
	authSvc      *services.AuthService
	cycles       *services.CycleService
	questions    *services.QuestionService
	phases       *services.PhaseService
	applications *services.ApplicationService
	exports      *services.ExportService
	analytics    *services.AnalyticsService
}

func NewRouter(cfg Config) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	auth := cfg.Auth
	if auth == nil {
		auth = middleware.NewAuth("", "")
	}
	return &Router{
		store:        cfg.Store,
		auth:         auth,
		files:        cfg.Files,
		logger:       logger,
		ping:         cfg.Ping,
		origins:      cfg.AllowedOrigins,
		authSvc:      services.NewAuthService(cfg.Store, auth.SignToken, cfg.TokenTTL, cfg.ReviewerEmails),
		cycles:       services.NewCycleService(cfg.Store, logger),
		questions:    services.NewQuestionService(cfg.Store),
		phases:       services.NewPhaseService(cfg.Store),
		applications: services.NewApplicationService(cfg.Store, cfg.Storage, cfg.Notifier, logger),
		exports:      services.NewExportService(cfg.Store),
		analytics:    services.NewAnalyticsService(cfg.Store),
	}
}

// Handler builds the chi router with the full middleware stack.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(rt.origins))
	r.Use(middleware.SecureHeaders)
	r.Use(middleware.NoStore)

	r.Get("/healthz", rt.handleHealth)
	if rt.files != nil {
		r.Mount("/files", rt.files)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(rt.auth.WithAuth)
		r.Post("/auth/register", rt.handleRegister)
		r.Post("/auth/login", rt.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Get("/me", rt.handleMe)

			r.Get("/cycles", rt.handleListCycles)
			r.Get("/cycles/active", rt.handleActiveCycle)
			r.Get("/cycles/{cycleID}", rt.handleGetCycle)
			r.Get("/cycles/{cycleID}/questions", rt.handleListQuestions)
			r.Get("/cycles/{cycleID}/form", rt.handleForm)
			r.Get("/cycles/{cycleID}/phases", rt.handleListPhases)

			r.Post("/applications", rt.handleCreateApplication)
			r.Get("/applications/mine", rt.handleMyApplication)
			r.Get("/applications/{applicationID}", rt.handleApplicationDetail)
			r.Get("/applications/{applicationID}/responses", rt.handleListResponses)
			r.Put("/applications/{applicationID}/responses/{questionID}", rt.handleUpsertResponse)
			r.Post("/applications/{applicationID}/uploads", rt.handleRequestUpload)
			r.Post("/applications/{applicationID}/submit", rt.handleSubmit)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireReviewer)
				r.Post("/cycles", rt.handleCreateCycle)
				r.Post("/cycles/{cycleID}/questions", rt.handleCreateQuestion)
				r.Put("/cycles/{cycleID}/questions/order", rt.handleReorderQuestions)
				r.Post("/cycles/{cycleID}/questions/move", rt.handleMoveQuestion)
				r.Put("/questions/{questionID}", rt.handleUpdateQuestion)
				r.Delete("/questions/{questionID}", rt.handleDeleteQuestion)

				r.Post("/cycles/{cycleID}/phases", rt.handleCreatePhase)
				r.Put("/cycles/{cycleID}/phases/order", rt.handleReorderPhases)
				r.Post("/cycles/{cycleID}/phases/move", rt.handleMovePhase)
				r.Put("/phases/{phaseID}", rt.handleUpdatePhase)
				r.Delete("/phases/{phaseID}", rt.handleDeletePhase)

				r.Get("/applications", rt.handleListApplications)
				r.Put("/applications/{applicationID}/phase", rt.handleAssignPhase)
				r.Get("/cycles/{cycleID}/analytics", rt.handleAnalytics)
				r.Get("/export", rt.handleExport)
				r.Get("/audit", rt.handleAudit)
			})
		})
	})
	return r
}

func principal(r *http.Request) services.Principal {
	p, _ := middleware.PrincipalFromContext(r.Context())
	return p
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	if rt.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := rt.ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}
