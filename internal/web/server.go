package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/vitos/crypto_market_watch/internal/domain"
	"github.com/vitos/crypto_market_watch/internal/usecase"
)

// Adapter is what the web layer needs from a vendor adapter: the capability
// contract plus read access to its registry and wallet table.
type Adapter interface {
	domain.Exchange
	Registry() *usecase.Registry
	Wallet() *usecase.WalletTable
}

type Server struct {
	router   *http.ServeMux
	server   *http.Server
	adapters map[string]Adapter
	journal  domain.EventJournal
	logger   *zap.Logger
}

func NewServer(port int, adapters []Adapter, journal domain.EventJournal, logger *zap.Logger) *Server {
	s := &Server{
		router:   http.NewServeMux(),
		adapters: make(map[string]Adapter, len(adapters)),
		journal:  journal,
		logger:   logger,
	}
	for _, a := range adapters {
		s.adapters[a.Name()] = a
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /healthz", s.handleHealth)
	s.router.HandleFunc("GET /api/tickers", s.handleTickers)
	s.router.HandleFunc("GET /api/states", s.handleStates)
	s.router.HandleFunc("GET /api/events", s.handleEvents)
}

func (s *Server) Start() error {
	s.logger.Info("starting web server", zap.String("addr", s.server.Addr))
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]bool, len(s.adapters))
	for name, a := range s.adapters {
		out[name] = a.Alive()
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTickers(w http.ResponseWriter, r *http.Request) {
	a, ok := s.adapters[r.URL.Query().Get("exchange")]
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown exchange"})
		return
	}
	s.writeJSON(w, http.StatusOK, a.Registry().Snapshot())
}

func (s *Server) handleStates(w http.ResponseWriter, r *http.Request) {
	a, ok := s.adapters[r.URL.Query().Get("exchange")]
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown exchange"})
		return
	}
	s.writeJSON(w, http.StatusOK, a.Wallet().States())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeJSON(w, http.StatusOK, []any{})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := s.journal.ListEvents(r.Context(), limit)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}
