// Package api exposes the validation pipeline, the credit ledger and the
// re-auditor over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/leadgate/internal/ledger"
	"github.com/sells-group/leadgate/internal/lock"
	"github.com/sells-group/leadgate/internal/model"
	"github.com/sells-group/leadgate/internal/pipeline"
	"github.com/sells-group/leadgate/internal/reaudit"
	"github.com/sells-group/leadgate/internal/source"
	"github.com/sells-group/leadgate/internal/store"
)

// Validator runs candidates through the pipeline.
type Validator interface {
	Run(ctx context.Context, c model.CandidateLead, userID string) (*pipeline.Result, error)
	RunJobs(ctx context.Context, jobs []pipeline.Job) (*pipeline.BatchReport, error)
}

// Auditor re-checks accepted leads.
type Auditor interface {
	Reaudit(ctx context.Context, w reaudit.Window, userID string) (*reaudit.Summary, error)
}

// Blacklist reads and bulk-loads banned phones.
type Blacklist interface {
	Lookup(ctx context.Context, phone string) (*model.BlacklistEntry, error)
	Import(ctx context.Context, entries []model.BlacklistEntry) (int64, error)
}

// Prospector builds an LLM lead source for a prospecting request.
type Prospector func(req ProspectRequest) source.Source

// Deps are the services the API serves. Prospector may be nil, which
// disables the prospecting route.
type Deps struct {
	Store      store.Store
	Pipeline   Validator
	Auditor    Auditor
	Ledger     *ledger.Ledger
	Blacklist  Blacklist
	Prospector Prospector
}

// Config tunes the API.
type Config struct {
	AllowedOrigins []string
	AdminToken     string
	// MaxBatch caps candidates per batch request. Default 500.
	MaxBatch int
	// Timeout bounds each request. Default 2m.
	Timeout time.Duration
}

// Server holds the HTTP handlers.
type Server struct {
	deps Deps
	cfg  Config
}

// New creates a Server.
func New(deps Deps, cfg Config) *Server {
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	return &Server{deps: deps, cfg: cfg}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(s.cfg.Timeout))

		r.Post("/leads/validate", s.validateLead)
		r.Post("/leads/batch", s.batchLeads)
		r.Post("/leads/prospect", s.prospect)
		r.Get("/leads", s.listLeads)

		r.Post("/reaudit", s.reaudit)

		r.Get("/credits/{userID}", s.balance)
		r.Get("/credits/{userID}/entries", s.entries)
		r.Get("/credits/{userID}/reconcile", s.reconcile)

		r.Get("/blacklist/{phone}", s.blacklistLookup)

		r.Group(func(r chi.Router) {
			r.Use(requireAdmin(s.cfg.AdminToken))
			r.Post("/credits/{userID}/grant", s.grant)
			r.Post("/blacklist", s.blacklistImport)
		})
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.Ping(r.Context()); err != nil {
		zap.L().Warn("api: health check failed", zap.Error(err))
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			zap.L().Error("api: write response", zap.Error(err))
		}
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<20)).Decode(v)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInsufficientCredit):
		return http.StatusPaymentRequired
	case errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lock.ErrNotAcquired):
		return http.StatusConflict
	case errors.Is(err, pipeline.ErrDatastoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondWithDomainError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		zap.L().Error("api: request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}
	respondWithError(w, code, err.Error())
}
