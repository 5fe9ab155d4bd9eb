// Package server exposes the web API: auth, CRUD, dashboard, forecasting,
// and the WebSocket event stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/fennwick/ledgermail/internal/common"
	"github.com/fennwick/ledgermail/internal/engine"
	"github.com/fennwick/ledgermail/internal/forecast"
	"github.com/fennwick/ledgermail/internal/notify"
	"github.com/fennwick/ledgermail/internal/service"
)

// Server handles HTTP requests for the expense API.
type Server struct {
	storage     service.Storage
	engine      *engine.Engine
	forecaster  *forecast.Forecaster
	recommender *forecast.BudgetRecommender
	hub         *notify.Hub
	addr        string
}

// New creates an API server.
func New(addr string, storage service.Storage, eng *engine.Engine, forecaster *forecast.Forecaster, recommender *forecast.BudgetRecommender, hub *notify.Hub) *Server {
	return &Server{
		addr:        addr,
		storage:     storage,
		engine:      eng,
		forecaster:  forecaster,
		recommender: recommender,
		hub:         hub,
	}
}

// Routes builds the full handler tree.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Auth
	mux.HandleFunc("POST /api/auth/google", s.googleAuth)

	// Categories
	mux.HandleFunc("GET /api/categories", s.listCategories)
	mux.HandleFunc("POST /api/categories", s.createCategory)
	mux.HandleFunc("PUT /api/categories/{id}", s.updateCategory)
	mux.HandleFunc("DELETE /api/categories/{id}", s.deleteCategory)

	// Expenses
	mux.HandleFunc("GET /api/expenses", s.listExpenses)
	mux.HandleFunc("POST /api/expenses", s.createExpense)
	mux.HandleFunc("PUT /api/expenses/{id}", s.updateExpense)
	mux.HandleFunc("DELETE /api/expenses/{id}", s.deleteExpense)

	// Dashboard and analysis
	mux.HandleFunc("GET /api/dashboard/summary", s.dashboardSummary)
	mux.HandleFunc("GET /api/forecast", s.getForecast)
	mux.HandleFunc("GET /api/budget/recommendations", s.budgetRecommendations)

	// Pipeline trigger
	mux.HandleFunc("POST /api/process", s.processMessages)

	// Events
	if s.hub != nil {
		mux.Handle("GET /ws", s.hub)
	}

	mux.HandleFunc("GET /health", s.health)

	return withLogging(withCORS(mux))
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting API server", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeStorageError maps storage sentinels onto HTTP statuses.
func writeStorageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, common.ErrDuplicateEntry):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
