package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"algo-trading-bot/internal/ledger"
	"algo-trading-bot/internal/logger"
	"algo-trading-bot/internal/scheduler"
	"algo-trading-bot/internal/signals"
)

// Server exposes a read-only HTTP view of the bot: portfolio, positions,
// trades, signals and run counters. It never mutates trading state.
type Server struct {
	addr        string
	portfolioID int64
	ledger      *ledger.Ledger
	signals     *signals.Repository
	bot         *scheduler.Bot

	httpServer *http.Server
}

func NewServer(addr string, portfolioID int64, l *ledger.Ledger, s *signals.Repository, bot *scheduler.Bot) *Server {
	srv := &Server{
		addr:        addr,
		portfolioID: portfolioID,
		ledger:      l,
		signals:     s,
		bot:         bot,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", srv.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/portfolio/summary", srv.handleSummary)
		r.Get("/positions", srv.handlePositions)
		r.Get("/trades", srv.handleTrades)
		r.Get("/signals", srv.handleSignals)
		r.Get("/bot/status", srv.handleBotStatus)
	})

	srv.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 20 * time.Second,
	}
	return srv
}

// Handler returns the router for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start serves until Shutdown. Blocks; run it in its own goroutine.
func (s *Server) Start(ctx context.Context) error {
	logger.Info(ctx, "Monitoring API listening", "addr", s.addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.ledger.Summary(r.Context(), s.portfolioID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.ledger.OpenPositions(r.Context(), s.portfolioID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if positions == nil {
		positions = []ledger.Position{}
	}
	writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	trades, err := s.ledger.Trades(r.Context(), s.portfolioID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if trades == nil {
		trades = []ledger.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	list, err := s.signals.Recent(r.Context(), s.portfolioID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []signals.Signal{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleBotStatus(w http.ResponseWriter, r *http.Request) {
	state, err := s.bot.State(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger.ErrorWithErr(r.Context(), "API request failed", err, "path", r.URL.Path)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}
