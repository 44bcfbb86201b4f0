// Package server exposes the HTTP API: manual sync triggers plus
// read-only position, trade and snapshot queries.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"PosTrack/internal/observability"
	"PosTrack/internal/persistence"
	"PosTrack/internal/query"
	"PosTrack/internal/syncer"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const manualSyncTimeout = 5 * time.Minute

// AccountLookup resolves an account name to its stored record.
type AccountLookup interface {
	GetAccount(ctx context.Context, name string) (persistence.Account, error)
}

// PositionReader is the read side of the API.
type PositionReader interface {
	ListPositions(ctx context.Context, account string, filter query.StatusFilter, limit int) ([]query.PositionSummary, error)
	GetPosition(ctx context.Context, id uuid.UUID) (*query.PositionDetail, error)
	ListSnapshots(ctx context.Context, account string, limit int) ([]query.SnapshotResponse, error)
}

// SyncRunner runs one sync pass for an account.
type SyncRunner interface {
	SyncAccount(ctx context.Context, acct persistence.Account, trigger string) (syncer.Summary, error)
}

// Server is the HTTP API surface.
type Server struct {
	query    PositionReader
	accounts AccountLookup
	syncer   SyncRunner
	health   *observability.HealthChecker
	metrics  *observability.Metrics
	log      zerolog.Logger
}

func New(q PositionReader, accounts AccountLookup, s SyncRunner, health *observability.HealthChecker, metrics *observability.Metrics, log zerolog.Logger) *Server {
	return &Server{
		query:    q,
		accounts: accounts,
		syncer:   s,
		health:   health,
		metrics:  metrics,
		log:      log,
	}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", s.health.LivenessHandler)
	r.Get("/readyz", s.health.ReadinessHandler)

	r.Route("/api", func(r chi.Router) {
		// sync passes outlive any sensible request timeout, so the
		// manual trigger route manages its own deadline
		r.Post("/sync/manual", s.handleManualSync)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(15 * time.Second))
			r.Get("/positions", s.handleListPositions)
			r.Get("/positions/{id}", s.handleGetPosition)
			r.Get("/account/snapshots", s.handleListSnapshots)
		})
	})

	return r
}

// POST /api/sync/manual?account=name
func (s *Server) handleManualSync(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	if account == "" {
		writeError(w, "account parameter is required", http.StatusBadRequest)
		return
	}

	acct, err := s.accounts.GetAccount(r.Context(), account)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			writeError(w, "unknown account", http.StatusNotFound)
			return
		}
		s.log.Error().Err(err).Str("account", account).Msg("account lookup failed")
		writeError(w, "account lookup failed", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), manualSyncTimeout)
	defer cancel()

	summary, err := s.syncer.SyncAccount(ctx, acct, "manual")
	if err != nil {
		s.log.Error().Err(err).Str("account", account).Msg("manual sync failed")
		writeError(w, "sync failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// GET /api/positions?account=name&status=open|closed|all&limit=n
func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	if account == "" {
		writeError(w, "account parameter is required", http.StatusBadRequest)
		return
	}

	filter := query.StatusFilter(r.URL.Query().Get("status"))
	if filter == "" {
		filter = query.FilterAll
	}

	positions, err := s.query.ListPositions(r.Context(), account, filter, queryLimit(r))
	if err != nil {
		s.log.Error().Err(err).Str("account", account).Msg("list positions failed")
		writeError(w, "query failed", http.StatusInternalServerError)
		return
	}
	if positions == nil {
		positions = []query.PositionSummary{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"positions": positions})
}

// GET /api/positions/{id}
func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "invalid position id", http.StatusBadRequest)
		return
	}

	detail, err := s.query.GetPosition(r.Context(), id)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			writeError(w, "position not found", http.StatusNotFound)
			return
		}
		s.log.Error().Err(err).Str("id", id.String()).Msg("get position failed")
		writeError(w, "query failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

// GET /api/account/snapshots?account=name&limit=n
func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	if account == "" {
		writeError(w, "account parameter is required", http.StatusBadRequest)
		return
	}

	snapshots, err := s.query.ListSnapshots(r.Context(), account, queryLimit(r))
	if err != nil {
		s.log.Error().Err(err).Str("account", account).Msg("list snapshots failed")
		writeError(w, "query failed", http.StatusInternalServerError)
		return
	}
	if snapshots == nil {
		snapshots = []query.SnapshotResponse{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"snapshots": snapshots})
}

// instrument records request counts and latency per route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}
		s.metrics.QueryRequests.WithLabelValues(pattern, strconv.Itoa(ww.Status())).Inc()
		s.metrics.QueryDuration.WithLabelValues(pattern).Observe(time.Since(start).Seconds())
	})
}

func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0 // service applies its default
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}
