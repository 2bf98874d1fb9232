package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"aegis/internal/domain"
	"aegis/internal/usecase"
)

// Scanner queues on-demand scans
type Scanner interface {
	Submit(mode usecase.ScanMode) error
	GetStats() map[string]interface{}
}

// Responder applies a UI action code to a history record
type Responder interface {
	RespondCode(ctx context.Context, historyID string, code int) (usecase.Outcome, error)
	GetStats() map[string]interface{}
}

// Server exposes the engine state and the UI callbacks over HTTP
type Server struct {
	r         *chi.Mux
	scanner   Scanner
	responder Responder
	lists     *domain.ListStore
	history   *domain.HistoryLog
	settings  *domain.SettingsHolder
	gatherer  prometheus.Gatherer
	srv       *http.Server
}

// NewServer wires the routes. gatherer may be nil to omit /metrics.
func NewServer(
	scanner Scanner,
	responder Responder,
	lists *domain.ListStore,
	history *domain.HistoryLog,
	settings *domain.SettingsHolder,
	gatherer prometheus.Gatherer,
) *Server {
	s := &Server{
		r:         chi.NewRouter(),
		scanner:   scanner,
		responder: responder,
		lists:     lists,
		history:   history,
		settings:  settings,
		gatherer:  gatherer,
	}

	s.r.Use(middleware.RequestID)
	s.r.Use(middleware.Recoverer)
	s.r.Use(requestLogger)

	s.routes()
	return s
}

func (s *Server) routes() {
	s.r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) })
	if s.gatherer != nil {
		s.r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	s.r.Route("/api", func(r chi.Router) {
		r.Get("/history", s.getHistory)
		r.Get("/history/{id}", s.getRecord)
		r.Post("/history/{id}/respond", s.postRespond)

		r.Get("/lists/{list}", s.getList)
		r.Post("/lists/{list}", s.postList)
		r.Delete("/lists/{list}", s.deleteList)

		r.Get("/settings", s.getSettings)
		r.Put("/settings/{name}", s.putSetting)

		r.Post("/scans", s.postScan)
		r.Get("/stats", s.getStats)
	})
}

// Handler returns the router
func (s *Server) Handler() http.Handler { return s.r }

// ListenAndServe blocks until the server stops; http.ErrServerClosed is
// not reported.
func (s *Server) ListenAndServe(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info().Str("addr", addr).Msg("http api listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops a server started with ListenAndServe
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// GET /api/history?min_severity=high
func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	min := domain.SeverityLow
	if q := r.URL.Query().Get("min_severity"); q != "" {
		sev, err := domain.ParseSeverity(q)
		if err != nil {
			writeError(w, err, http.StatusBadRequest)
			return
		}
		min = sev
	}
	records := s.history.Filter(min)
	if records == nil {
		records = []domain.HistoryRecord{}
	}
	writeJSON(w, records, http.StatusOK)
}

// GET /api/history/{id}
func (s *Server) getRecord(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.history.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, domain.ErrNotFound, http.StatusNotFound)
		return
	}
	writeJSON(w, rec, http.StatusOK)
}

type outcomeResponse struct {
	Action   domain.Action `json:"action"`
	Executed bool          `json:"executed"`
	Steps    []string      `json:"steps"`
	Error    string        `json:"error,omitempty"`
}

// POST /api/history/{id}/respond  body: {"code":0}
func (s *Server) postRespond(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code *int `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	if body.Code == nil {
		writeError(w, errors.New("code required"), http.StatusBadRequest)
		return
	}

	out, err := s.responder.RespondCode(r.Context(), chi.URLParam(r, "id"), *body.Code)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, err, http.StatusNotFound)
		return
	case err != nil:
		writeError(w, err, http.StatusBadRequest)
		return
	}

	resp := outcomeResponse{Action: out.Action, Executed: out.Executed, Steps: out.Steps}
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}
	writeJSON(w, resp, http.StatusOK)
}

func (s *Server) listKind(w http.ResponseWriter, r *http.Request) (domain.ListKind, bool) {
	kind, err := domain.ParseListKind(chi.URLParam(r, "list"))
	if err != nil {
		writeError(w, err, http.StatusNotFound)
		return 0, false
	}
	return kind, true
}

// GET /api/lists/{list}
func (s *Server) getList(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.listKind(w, r)
	if !ok {
		return
	}
	entries := s.lists.Snapshot(kind)
	if entries == nil {
		entries = []domain.ListEntry{}
	}
	writeJSON(w, entries, http.StatusOK)
}

// POST /api/lists/{list}  body: {"pattern":"...","enabled":true}
func (s *Server) postList(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.listKind(w, r)
	if !ok {
		return
	}
	var body struct {
		Pattern string `json:"pattern"`
		Enabled *bool  `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	entry := domain.ListEntry{Pattern: body.Pattern, Enabled: true}
	if body.Enabled != nil {
		entry.Enabled = *body.Enabled
	}
	if err := s.lists.Put(kind, entry); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	log.Info().Str("list", kind.String()).Str("pattern", entry.Pattern).Bool("enabled", entry.Enabled).Msg("list entry stored")
	writeJSON(w, entry, http.StatusOK)
}

// DELETE /api/lists/{list}?pattern=...
func (s *Server) deleteList(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.listKind(w, r)
	if !ok {
		return
	}
	pattern := r.URL.Query().Get("pattern")
	if !s.lists.Remove(kind, pattern) {
		writeError(w, domain.ErrNotFound, http.StatusNotFound)
		return
	}
	log.Info().Str("list", kind.String()).Str("pattern", pattern).Msg("list entry removed")
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/settings
func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.settings.Load(), http.StatusOK)
}

// PUT /api/settings/{name}  body: {"enabled":false}
func (s *Server) putSetting(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	if body.Enabled == nil {
		writeError(w, errors.New("enabled required"), http.StatusBadRequest)
		return
	}

	name := chi.URLParam(r, "name")
	updated, ok := s.settings.Load().With(name, *body.Enabled)
	if !ok {
		writeError(w, errors.New("unknown setting "+strconv.Quote(name)), http.StatusNotFound)
		return
	}
	s.settings.Store(updated)
	log.Info().Str("setting", name).Bool("enabled", *body.Enabled).Msg("setting changed")
	writeJSON(w, updated, http.StatusOK)
}

// POST /api/scans  body: {"mode":"quick"}
func (s *Server) postScan(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	mode, err := usecase.ParseScanMode(body.Mode)
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	switch err := s.scanner.Submit(mode); {
	case errors.Is(err, domain.ErrPoolSaturated), errors.Is(err, domain.ErrPoolClosed):
		writeError(w, err, http.StatusServiceUnavailable)
	case err != nil:
		writeError(w, err, http.StatusInternalServerError)
	default:
		writeJSON(w, map[string]any{"queued": true, "mode": mode.String()}, http.StatusAccepted)
	}
}

// GET /api/stats
func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"scan":     s.scanner.GetStats(),
		"response": s.responder.GetStats(),
		"lists": map[string]int{
			domain.AllowList.String(): s.lists.Len(domain.AllowList),
			domain.BlockList.String(): s.lists.Len(domain.BlockList),
		},
	}, http.StatusOK)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func writeError(w http.ResponseWriter, err error, code int) {
	writeJSON(w, map[string]string{"error": err.Error()}, code)
}

func writeJSON(w http.ResponseWriter, v any, code int) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
