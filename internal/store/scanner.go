package store

import (
	"context"
	"iter"

	"lynora/internal/domain"
)

const defaultPageSize = 100

// Scanner walks all markets in creation order, fetching them in pages so the
// full history is never held in memory.
type Scanner struct {
	markets  *MarketStore
	pageSize int
}

func NewScanner(markets *MarketStore, pageSize int) *Scanner {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Scanner{markets: markets, pageSize: pageSize}
}

// All returns a lazy sequence of markets. Each range over it starts again from
// the first market. Iteration stops after yielding a non-nil error.
func (s *Scanner) All(ctx context.Context) iter.Seq2[domain.Market, error] {
	return func(yield func(domain.Market, error) bool) {
		var after int64
		for {
			page, err := s.markets.Page(ctx, after, s.pageSize)
			if err != nil {
				yield(domain.Market{}, err)
				return
			}
			for _, m := range page {
				if !yield(m, nil) {
					return
				}
				after = m.ID
			}
			if len(page) < s.pageSize {
				return
			}
		}
	}
}

// Collect drains the sequence into a slice, stopping at limit when limit > 0.
func (s *Scanner) Collect(ctx context.Context, limit int) ([]domain.Market, error) {
	var out []domain.Market
	for m, err := range s.All(ctx) {
		if err != nil {
			return nil, err
		}
		out = append(out, m)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
