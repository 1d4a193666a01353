package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AuctionPhase is the countdown currently running in an auction draft.
type AuctionPhase string

const (
	AuctionPhaseNominating AuctionPhase = "nominating"
	AuctionPhaseBidding    AuctionPhase = "bidding"
)

// Bid is a single accepted bid on a nominated player.
type Bid struct {
	TeamID   uuid.UUID       `json:"team_id"`
	Amount   decimal.Decimal `json:"amount"`
	PlacedAt time.Time       `json:"placed_at"`
}

// Nomination is the player currently up for bidding.
type Nomination struct {
	PlayerID      uuid.UUID       `json:"player_id"`
	NominatorID   uuid.UUID       `json:"nominator_id"`
	CurrentBid    decimal.Decimal `json:"current_bid"`
	CurrentBidder uuid.UUID       `json:"current_bidder"`
	Bids          []Bid           `json:"bids"`
	OpenedAt      time.Time       `json:"opened_at"`
	Deadline      time.Time       `json:"deadline"`
}

// TeamBudget tracks what a team has left to spend.
type TeamBudget struct {
	Remaining   decimal.Decimal `json:"remaining"`
	Spent       decimal.Decimal `json:"spent"`
	RosterCount int             `json:"roster_count"`
}

// AuctionState is the auction layer of a draft.
type AuctionState struct {
	Phase      AuctionPhase             `json:"phase"`
	Nomination *Nomination              `json:"nomination,omitempty"`
	QueueIndex int                      `json:"queue_index"` // index into Draft.Teams of the nominator
	Budgets    map[uuid.UUID]TeamBudget `json:"budgets"`
}

// Clone returns a deep copy.
func (a *AuctionState) Clone() *AuctionState {
	if a == nil {
		return nil
	}
	c := *a
	if a.Nomination != nil {
		n := *a.Nomination
		n.Bids = append([]Bid(nil), a.Nomination.Bids...)
		c.Nomination = &n
	}
	c.Budgets = make(map[uuid.UUID]TeamBudget, len(a.Budgets))
	for id, b := range a.Budgets {
		c.Budgets[id] = b
	}
	return &c
}
