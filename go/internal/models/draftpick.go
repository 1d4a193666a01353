package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Pick is an immutable record of a player selected in a draft.
type Pick struct {
	ID          uuid.UUID        `json:"id"`
	DraftID     uuid.UUID        `json:"draft_id"`
	Round       int              `json:"round"`
	Pick        int              `json:"pick"`         // pick number in the round
	OverallPick int              `json:"overall_pick"` // pick number overall
	TeamID      uuid.UUID        `json:"team_id"`
	PlayerID    uuid.UUID        `json:"player_id"`
	TimeUsed    time.Duration    `json:"time_used"`
	IsAutoPick  bool             `json:"is_auto_pick"`
	PickedAt    time.Time        `json:"picked_at"`
	BidAmount   *decimal.Decimal `json:"bid_amount,omitempty"` // auction only
	BidHistory  []Bid            `json:"bid_history,omitempty"`
}

func (p Pick) clone() Pick {
	c := p
	if p.BidAmount != nil {
		amt := *p.BidAmount
		c.BidAmount = &amt
	}
	c.BidHistory = append([]Bid(nil), p.BidHistory...)
	return c
}

// SkippedPick records a slot that was forfeited when the clock ran out.
type SkippedPick struct {
	Round       int       `json:"round"`
	Pick        int       `json:"pick"`
	OverallPick int       `json:"overall_pick"`
	TeamID      uuid.UUID `json:"team_id"`
	Reason      string    `json:"reason"`
	SkippedAt   time.Time `json:"skipped_at"`
}
