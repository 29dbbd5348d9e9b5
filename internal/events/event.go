// Package events records domain events in an outbox table and relays them to
// subscribers once the originating call has committed.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lynora/internal/domain"
)

type Kind string

const (
	MarketCreated  Kind = "market_created"
	BetPlaced      Kind = "bet_placed"
	MarketResolved Kind = "market_resolved"
	PayoutClaimed  Kind = "payout_claimed"
)

// Event is one state change. Seq is assigned by the outbox on append.
type Event struct {
	Seq       int64           `json:"seq"`
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	MarketID  int64           `json:"market_id"`
	Actor     domain.Identity `json:"actor"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// New builds an event with a fresh id. payload must marshal to a JSON object.
func New(kind Kind, marketID int64, actor domain.Identity, at time.Time, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encoding %s payload: %w", kind, err)
	}
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		MarketID:  marketID,
		Actor:     actor,
		Payload:   raw,
		CreatedAt: at,
	}, nil
}

type MarketCreatedPayload struct {
	Question    string    `json:"question"`
	Symbol      string    `json:"symbol"`
	TargetPrice uint64    `json:"target_price"`
	EndTime     time.Time `json:"end_time"`
}

type BetPlacedPayload struct {
	Option domain.Option `json:"option"`
	Amount uint64        `json:"amount"`
	Stake  uint64        `json:"stake"`
}

type MarketResolvedPayload struct {
	Winner          domain.Option `json:"winner"`
	ResolutionPrice uint64        `json:"resolution_price"`
	TargetPrice     uint64        `json:"target_price"`
}

type PayoutClaimedPayload struct {
	Stake  uint64 `json:"stake"`
	Payout uint64 `json:"payout"`
}
