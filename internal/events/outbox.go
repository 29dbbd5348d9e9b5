package events

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"lynora/internal/db"
)

// Outbox stores events in the same database as market state. Appending inside
// a call's transaction means an event exists exactly when the call committed.
type Outbox struct {
	q db.Querier
}

func NewOutbox(q db.Querier) *Outbox {
	return &Outbox{q: q}
}

// Append stores e and returns its sequence number.
func (o *Outbox) Append(ctx context.Context, e Event) (int64, error) {
	res, err := o.q.ExecContext(ctx, `
		INSERT INTO events (id, kind, market_id, actor, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), e.MarketID, e.Actor.Hex(), string(e.Payload), e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("appending %s event: %w", e.Kind, err)
	}
	return res.LastInsertId()
}

// Pending returns up to limit unpublished events in sequence order.
func (o *Outbox) Pending(ctx context.Context, limit int) ([]Event, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT seq, id, kind, market_id, actor, payload, created_at
		FROM events WHERE published_at IS NULL ORDER BY seq ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("loading pending events: %w", err)
	}
	return collect(rows)
}

// ByMarket returns the full event history of one market.
func (o *Outbox) ByMarket(ctx context.Context, marketID int64) ([]Event, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT seq, id, kind, market_id, actor, payload, created_at
		FROM events WHERE market_id = ? ORDER BY seq ASC`, marketID)
	if err != nil {
		return nil, fmt.Errorf("loading events of market %d: %w", marketID, err)
	}
	return collect(rows)
}

// MarkPublished stamps the given sequence numbers as delivered.
func (o *Outbox) MarkPublished(ctx context.Context, seqs []int64, at time.Time) error {
	if len(seqs) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(seqs)), ",")
	args := make([]any, 0, len(seqs)+1)
	args = append(args, at.UTC().Format(time.RFC3339Nano))
	for _, s := range seqs {
		args = append(args, s)
	}
	_, err := o.q.ExecContext(ctx,
		`UPDATE events SET published_at = ? WHERE seq IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("marking %d events published: %w", len(seqs), err)
	}
	return nil
}

func collect(rows *sql.Rows) ([]Event, error) {
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e              Event
			kind, actor    string
			payload        string
			createdAtMilli int64
		)
		if err := rows.Scan(&e.Seq, &e.ID, &kind, &e.MarketID, &actor, &payload, &createdAtMilli); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		e.Kind = Kind(kind)
		e.Actor = common.HexToAddress(actor)
		e.Payload = []byte(payload)
		e.CreatedAt = time.UnixMilli(createdAtMilli)
		out = append(out, e)
	}
	return out, rows.Err()
}
