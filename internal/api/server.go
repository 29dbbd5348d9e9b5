// Package api serves read-only JSON views of markets, bets and payouts.
package api

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"lynora/internal/domain"
	"lynora/internal/events"
	"lynora/internal/performance"
	"lynora/internal/settlement"
)

// Ledger is the read side of the market engine.
type Ledger interface {
	GetMarket(ctx context.Context, id int64) (domain.Market, error)
	GetBet(ctx context.Context, marketID int64, bettor domain.Identity) (domain.Bet, bool, error)
	Markets(ctx context.Context) iter.Seq2[domain.Market, error]
	ActiveMarkets(ctx context.Context, now time.Time) ([]domain.Market, error)
	MarketBets(ctx context.Context, marketID int64) ([]domain.Bet, error)
	BettorBets(ctx context.Context, bettor domain.Identity) ([]domain.Bet, error)
	PreviewPayout(ctx context.Context, marketID int64, bettor domain.Identity) (uint64, error)
	Settlement(ctx context.Context, marketID int64) (settlement.Distribution, error)
	History(ctx context.Context, marketID int64) ([]events.Event, error)
	Balance(ctx context.Context, who domain.Identity) (uint64, error)
}

// Reporter produces the aggregate market report.
type Reporter interface {
	Generate(ctx context.Context, now time.Time) (*performance.Report, error)
}

type Server struct {
	ledger   Ledger
	reporter Reporter
	decimals int32
	timeout  time.Duration
	now      func() time.Time
	log      *slog.Logger
}

type Option func(*Server)

// WithClock overrides the time used to derive market phases.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

func NewServer(ledger Ledger, reporter Reporter, decimals int32, opts ...Option) *Server {
	s := &Server{
		ledger:   ledger,
		reporter: reporter,
		decimals: decimals,
		timeout:  8 * time.Second,
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the bare route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")

	r.HandleFunc("/api/markets", s.listMarkets).Methods("GET")
	r.HandleFunc("/api/markets/{id:[0-9]+}", s.getMarket).Methods("GET")
	r.HandleFunc("/api/markets/{id:[0-9]+}/bets", s.getMarketBets).Methods("GET")
	r.HandleFunc("/api/markets/{id:[0-9]+}/bets/{bettor}", s.getBet).Methods("GET")
	r.HandleFunc("/api/markets/{id:[0-9]+}/payout/{bettor}", s.getPayout).Methods("GET")
	r.HandleFunc("/api/markets/{id:[0-9]+}/settlement", s.getSettlement).Methods("GET")
	r.HandleFunc("/api/markets/{id:[0-9]+}/events", s.getHistory).Methods("GET")
	r.HandleFunc("/api/bettors/{bettor}/bets", s.getBettorBets).Methods("GET")
	r.HandleFunc("/api/bettors/{bettor}/balance", s.getBalance).Methods("GET")
	r.HandleFunc("/api/stats", s.getStats).Methods("GET")

	return r
}

// Handler wraps the router with CORS, access logging and panic recovery.
func (s *Server) Handler(origins []string, accessLog io.Writer) http.Handler {
	cors := handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{"GET", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)
	return handlers.RecoveryHandler()(handlers.LoggingHandler(accessLog, cors(s.Router())))
}

func (s *Server) reqCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.timeout)
}

// fail maps a taxonomy error to its HTTP status. Anything outside the
// taxonomy is logged and reported as an internal error.
func (s *Server) fail(w http.ResponseWriter, err error) {
	switch kind := domain.Kind(err); {
	case errors.Is(kind, domain.ErrNotFound):
		writeErr(w, http.StatusNotFound, err.Error())
	case errors.Is(kind, domain.ErrInvalidParameter):
		writeErr(w, http.StatusBadRequest, err.Error())
	case kind != nil:
		writeErr(w, http.StatusConflict, err.Error())
	default:
		s.log.Error("request failed", "error", err)
		writeErr(w, http.StatusInternalServerError, "internal error")
	}
}
