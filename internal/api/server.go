// Package api exposes the chart session over HTTP for browser based Sankey
// renderers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/lachiem1/cashflow/internal/app"
	"github.com/lachiem1/cashflow/internal/logger"
	"github.com/lachiem1/cashflow/internal/sankey"
	"github.com/lachiem1/cashflow/internal/settings"
	"github.com/lachiem1/cashflow/internal/storage"
)

// Refresher triggers an out-of-band import.
type Refresher interface {
	Refresh() error
}

// ImportStates lists the import bookkeeping.
type ImportStates interface {
	List(ctx context.Context) ([]storage.ImportState, error)
}

type Server struct {
	session   *app.Session
	router    *mux.Router
	log       zerolog.Logger
	refresher Refresher
	imports   ImportStates
}

type Option func(*Server)

func WithRefresher(r Refresher) Option {
	return func(s *Server) {
		s.refresher = r
	}
}

func WithImportStates(states ImportStates) Option {
	return func(s *Server) {
		s.imports = states
	}
}

func NewServer(session *app.Session, log zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		session: session,
		router:  mux.NewRouter(),
		log:     log,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.RegisterRoutes()
	return s
}

func (s *Server) RegisterRoutes() {
	s.router.HandleFunc("/health", s.Health).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/chart", s.GetChart).Methods(http.MethodGet)
	api.HandleFunc("/categories", s.ListCategories).Methods(http.MethodGet)
	api.HandleFunc("/categories/{id:[0-9]+}", s.UpdateCategory).Methods(http.MethodPut)
	api.HandleFunc("/categories/{id:[0-9]+}/remove", s.RemoveCategory).Methods(http.MethodPost)
	api.HandleFunc("/categories/{id:[0-9]+}/validation", s.ValidateCategory).Methods(http.MethodGet)
	api.HandleFunc("/settings", s.UpdateSettings).Methods(http.MethodPut)
	api.HandleFunc("/reset", s.Reset).Methods(http.MethodPost)
	api.HandleFunc("/warning", s.DismissWarning).Methods(http.MethodDelete)
	api.HandleFunc("/export/sankeymatic", s.ExportSankeymatic).Methods(http.MethodGet)
	api.HandleFunc("/imports", s.ListImports).Methods(http.MethodGet)
	api.HandleFunc("/imports/refresh", s.RefreshImports).Methods(http.MethodPost)
}

// Handler returns the router wrapped in the request middleware.
func (s *Server) Handler() http.Handler {
	return Recovery(s.log)(Logger(s.log)(CORS(s.router)))
}

// Serve runs the server until ctx ends and then shuts it down gracefully.
func (s *Server) Serve(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetChart handles GET /api/chart
func (s *Server) GetChart(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, s.session.Chart())
}

// ListCategories handles GET /api/categories
func (s *Server) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories := s.session.Categories()
	if categories == nil {
		categories = []app.CategoryView{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": categories,
		"count":      len(categories),
	})
}

type categoryUpdate struct {
	Active      *bool    `json:"active"`
	Budget      *float64 `json:"budget"`
	ClearBudget bool     `json:"clearBudget"`
}

// UpdateCategory handles PUT /api/categories/{id}
func (s *Server) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := s.categoryID(w, r)
	if !ok {
		return
	}
	var req categoryUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	if req.Active != nil {
		if err := s.session.SetCategoryActive(ctx, id, *req.Active); err != nil {
			s.writeSessionError(w, r, err)
			return
		}
	}
	if req.Budget != nil || req.ClearBudget {
		if err := s.session.SetBudget(ctx, id, req.Budget); err != nil {
			s.writeSessionError(w, r, err)
			return
		}
	}
	WriteJSON(w, http.StatusOK, s.session.Chart())
}

// RemoveCategory handles POST /api/categories/{id}/remove
func (s *Server) RemoveCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := s.categoryID(w, r)
	if !ok {
		return
	}
	ev, removed, err := s.session.RemoveCategory(r.Context(), id)
	if err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	if !removed {
		WriteError(w, http.StatusConflict, "the main category cannot be removed")
		return
	}
	WriteJSON(w, http.StatusOK, ev)
}

// ValidateCategory handles GET /api/categories/{id}/validation
func (s *Server) ValidateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := s.categoryID(w, r)
	if !ok {
		return
	}
	msgs, err := s.session.Validate(id)
	if err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []string{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"valid":    len(msgs) == 0,
		"messages": msgs,
	})
}

type settingsUpdate struct {
	Threshold *float64          `json:"threshold"`
	Scaled    *bool             `json:"scaled"`
	SortKey   *settings.SortKey `json:"sortKey"`
}

// UpdateSettings handles PUT /api/settings
func (s *Server) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	if req.Threshold != nil {
		if err := s.session.SetThreshold(ctx, *req.Threshold); err != nil {
			s.writeSessionError(w, r, err)
			return
		}
	}
	if req.Scaled != nil {
		if err := s.session.SetScaled(ctx, *req.Scaled); err != nil {
			s.writeSessionError(w, r, err)
			return
		}
	}
	if req.SortKey != nil {
		if err := s.session.SetSortKey(ctx, *req.SortKey); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	WriteJSON(w, http.StatusOK, s.session.Chart())
}

// Reset handles POST /api/reset
func (s *Server) Reset(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Reset(r.Context()); err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, s.session.Chart())
}

// DismissWarning handles DELETE /api/warning
func (s *Server) DismissWarning(w http.ResponseWriter, r *http.Request) {
	s.session.DismissWarning()
	w.WriteHeader(http.StatusNoContent)
}

// ExportSankeymatic handles GET /api/export/sankeymatic
func (s *Server) ExportSankeymatic(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(s.session.Export()))
}

// ListImports handles GET /api/imports
func (s *Server) ListImports(w http.ResponseWriter, r *http.Request) {
	if s.imports == nil {
		WriteJSON(w, http.StatusOK, map[string]interface{}{"imports": []storage.ImportState{}})
		return
	}
	states, err := s.imports.List(r.Context())
	if err != nil {
		reqLog := logger.FromContext(r.Context())
		reqLog.Error().Err(err).Msg("failed to list import states")
		WriteError(w, http.StatusInternalServerError, "failed to list imports")
		return
	}
	if states == nil {
		states = []storage.ImportState{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"imports": states})
}

// RefreshImports handles POST /api/imports/refresh
func (s *Server) RefreshImports(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		WriteError(w, http.StatusNotFound, "no automatic import configured")
		return
	}
	if err := s.refresher.Refresh(); err != nil {
		reqLog := logger.FromContext(r.Context())
		reqLog.Warn().Err(err).Msg("import refresh rejected")
		WriteError(w, http.StatusConflict, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) categoryID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := sankey.ParseID(mux.Vars(r)["id"])
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid category id")
		return 0, false
	}
	return id, true
}

func (s *Server) writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, app.ErrUnknownCategory) {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	reqLog := logger.FromContext(r.Context())
	reqLog.Error().Err(err).Msg("chart update failed")
	WriteError(w, http.StatusInternalServerError, err.Error())
}
