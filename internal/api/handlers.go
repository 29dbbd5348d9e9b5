package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"lynora/internal/domain"
	"lynora/internal/units"
)

type marketView struct {
	domain.Market
	Phase          domain.Status `json:"phase"`
	TotalPool      uint64        `json:"total_pool"`
	TotalPoolHuman string        `json:"total_pool_display"`
}

type betView struct {
	domain.Bet
	AmountHuman string `json:"amount_display"`
}

type payoutView struct {
	MarketID    int64           `json:"market_id"`
	Bettor      domain.Identity `json:"bettor"`
	Payout      uint64          `json:"payout"`
	PayoutHuman string          `json:"payout_display"`
}

type balanceView struct {
	Bettor       domain.Identity `json:"bettor"`
	Balance      uint64          `json:"balance"`
	BalanceHuman string          `json:"balance_display"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func marketID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: market id", domain.ErrInvalidParameter)
	}
	return id, nil
}

func bettor(r *http.Request) (domain.Identity, error) {
	return domain.ParseIdentity(mux.Vars(r)["bettor"])
}

func (s *Server) viewMarket(m domain.Market) marketView {
	return marketView{
		Market:         m,
		Phase:          m.Phase(s.now()),
		TotalPool:      m.TotalPool(),
		TotalPoolHuman: units.Format(m.TotalPool(), s.decimals),
	}
}

func (s *Server) viewBets(bets []domain.Bet) []betView {
	out := make([]betView, 0, len(bets))
	for _, b := range bets {
		out = append(out, betView{Bet: b, AmountHuman: units.Format(b.Amount, s.decimals)})
	}
	return out
}

// listMarkets serves every market in creation order, or only the ones still
// taking bets with ?active=true.
func (s *Server) listMarkets(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.reqCtx(r)
	defer cancel()

	if r.URL.Query().Get("active") == "true" {
		markets, err := s.ledger.ActiveMarkets(ctx, s.now())
		if err != nil {
			s.fail(w, err)
			return
		}
		out := make([]marketView, 0, len(markets))
		for _, m := range markets {
			out = append(out, s.viewMarket(m))
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	limit := atoiDefault(r.URL.Query().Get("limit"), 100)
	if limit < 1 || limit > 1000 {
		limit = 100
	}
	out := make([]marketView, 0)
	for m, err := range s.ledger.Markets(ctx) {
		if err != nil {
			s.fail(w, err)
			return
		}
		out = append(out, s.viewMarket(m))
		if len(out) >= limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getMarket(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.reqCtx(r)
	defer cancel()

	id, err := marketID(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	m, err := s.ledger.GetMarket(ctx, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewMarket(m))
}

func (s *Server) getMarketBets(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.reqCtx(r)
	defer cancel()

	id, err := marketID(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	bets, err := s.ledger.MarketBets(ctx, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewBets(bets))
}

func (s *Server) getBet(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.reqCtx(r)
	defer cancel()

	id, err := marketID(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	who, err := bettor(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	b, ok, err := s.ledger.GetBet(ctx, id, who)
	if err != nil {
		s.fail(w, err)
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "no bet")
		return
	}
	writeJSON(w, http.StatusOK, betView{Bet: b, AmountHuman: units.Format(b.Amount, s.decimals)})
}

func (s *Server) getPayout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.reqCtx(r)
	defer cancel()

	id, err := marketID(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	who, err := bettor(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	p, err := s.ledger.PreviewPayout(ctx, id, who)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payoutView{
		MarketID:    id,
		Bettor:      who,
		Payout:      p,
		PayoutHuman: units.Format(p, s.decimals),
	})
}

func (s *Server) getSettlement(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.reqCtx(r)
	defer cancel()

	id, err := marketID(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	d, err := s.ledger.Settlement(ctx, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.reqCtx(r)
	defer cancel()

	id, err := marketID(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	if _, err := s.ledger.GetMarket(ctx, id); err != nil {
		s.fail(w, err)
		return
	}
	hist, err := s.ledger.History(ctx, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

func (s *Server) getBettorBets(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.reqCtx(r)
	defer cancel()

	who, err := bettor(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	bets, err := s.ledger.BettorBets(ctx, who)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewBets(bets))
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.reqCtx(r)
	defer cancel()

	who, err := bettor(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	bal, err := s.ledger.Balance(ctx, who)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceView{
		Bettor:       who,
		Balance:      bal,
		BalanceHuman: units.Format(bal, s.decimals),
	})
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.reqCtx(r)
	defer cancel()

	report, err := s.reporter.Generate(ctx, s.now())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
