// Package api provides the club's admin HTTP API.
// Every route under /api needs a bearer token whose subject is the acting
// administrator; /health and /metrics are open.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clubejota/clube/internal/app/executor"
	"github.com/clubejota/clube/internal/app/importer"
	"github.com/clubejota/clube/internal/app/ledger"
	"github.com/clubejota/clube/internal/domain"
	"github.com/clubejota/clube/internal/infra/observability"
)

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the admin HTTP API server.
type Server struct {
	ledger         *ledger.Ledger
	importer       *importer.Importer
	tracer         *observability.Tracer
	executor       *executor.Executor
	store          Pinger
	auth           *TokenAuth
	pending        *pendingImports
	log            *slog.Logger
	metricsEnabled bool
}

// NewServer creates a new API server.
func NewServer(l *ledger.Ledger, im *importer.Importer, auth *TokenAuth, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		ledger:   l,
		importer: im,
		auth:     auth,
		pending:  newPendingImports(time.Hour),
		log:      logger.With("component", "api"),
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetTracer exposes recent spans at /api/debug/spans.
func (s *Server) SetTracer(t *observability.Tracer) { s.tracer = t }

// SetExecutor exposes the import executor's counters at /api/debug/executor.
func (s *Server) SetExecutor(e *executor.Executor) { s.executor = e }

// SetHealthCheck makes /health ping the store.
func (s *Server) SetHealthCheck(p Pinger) { s.store = p }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(2 * time.Minute))
	r.Use(corsMiddleware)
	r.Use(s.traceMiddleware)

	r.Get("/health", s.handleHealth)

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.auth.Middleware)

		r.Route("/members", func(r chi.Router) {
			r.Get("/", s.handleListMembers)
			r.Get("/{id}", s.handleSummary)
			r.Get("/{id}/transactions", s.handleTransactions)
			r.Post("/{id}/activate", s.handleActivate)
			r.Post("/{id}/deactivate", s.handleDeactivate)
			r.Post("/{id}/credit", s.handleCredit)
			r.Post("/{id}/debit", s.handleDebit)
		})

		r.Get("/accounts", s.handleFindAccounts)

		r.Route("/imports", func(r chi.Router) {
			r.Post("/", s.handlePreviewImport)
			r.Get("/{id}", s.handleGetImport)
			r.Post("/{id}/commit", s.handleCommitImport)
			r.Delete("/{id}", s.handleCancelImport)
		})

		if s.tracer != nil {
			r.Get("/debug/spans", s.handleSpans)
		}
		if s.executor != nil {
			r.Get("/debug/executor", s.handleExecutorStats)
		}
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSpans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"spans": s.tracer.Spans(queryInt(r, "limit", 100)),
	})
}

func (s *Server) handleExecutorStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.executor.Stats())
}

// traceMiddleware ties spans started while serving a request to its
// request ID.
func (s *Server) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(observability.WithTraceID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// ─── Responses ──────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response. code names the violated
// precondition so clients can branch on it.
func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": msg,
		},
	})
}

// writeDomainError maps a ledger or importer error to its HTTP status.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
	}
	code := ledger.Outcome(err)
	if errors.Is(err, domain.ErrImportFormat) {
		code = "import_format"
	}
	writeError(w, status, code, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotMember), errors.Is(err, domain.ErrAlreadyMember):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientBalance), errors.Is(err, domain.ErrImportFormat):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInvalidPolicy):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// corsMiddleware adds CORS headers for the admin client.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
