// Package auction implements the budget and bidding rules of auction drafts.
package auction

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty/go/internal/draft/drafterr"
	"github.com/mcdev12/dynasty/go/internal/models"
	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// NewState creates the auction layer for a draft with every team at full budget.
// The first nominator is the team at position 1.
func NewState(teams []models.DraftTeam, settings models.DraftSettings) *models.AuctionState {
	budgets := make(map[uuid.UUID]models.TeamBudget, len(teams))
	for _, t := range teams {
		budgets[t.ID] = models.TeamBudget{
			Remaining: settings.BudgetPerTeam,
			Spent:     decimal.Zero,
		}
	}
	return &models.AuctionState{
		Phase:      models.AuctionPhaseNominating,
		QueueIndex: 0,
		Budgets:    budgets,
	}
}

// Award is the result of closing a nomination.
type Award struct {
	PlayerID    uuid.UUID
	TeamID      uuid.UUID
	NominatorID uuid.UUID
	Amount      decimal.Decimal
	Bids        []models.Bid
	OpenedAt    time.Time
}

// Ledger applies nominations and bids to an AuctionState. It never touches
// timers; the caller runs the countdown returned by Nominate and Bid.
type Ledger struct {
	state     *models.AuctionState
	teams     []models.DraftTeam // position order
	settings  models.DraftSettings
	isDrafted func(uuid.UUID) bool
}

// New wraps state. teams must be in draft position order.
func New(state *models.AuctionState, teams []models.DraftTeam, settings models.DraftSettings, isDrafted func(uuid.UUID) bool) *Ledger {
	return &Ledger{state: state, teams: teams, settings: settings, isDrafted: isDrafted}
}

func (l *Ledger) minBid() decimal.Decimal {
	if l.settings.MinBid.IsPositive() {
		return l.settings.MinBid
	}
	return one
}

func (l *Ledger) minIncrement() decimal.Decimal {
	if l.settings.MinBidIncrement.IsPositive() {
		return l.settings.MinBidIncrement
	}
	return one
}

// Nominator is the team whose turn it is to put a player up.
func (l *Ledger) Nominator() uuid.UUID {
	if len(l.teams) == 0 {
		return uuid.Nil
	}
	return l.teams[l.state.QueueIndex%len(l.teams)].ID
}

// OpenSlots is the number of roster spots team still has to fill.
func (l *Ledger) OpenSlots(team uuid.UUID) int {
	b, ok := l.state.Budgets[team]
	if !ok {
		return 0
	}
	return l.settings.Rounds - b.RosterCount
}

// MaxBid is the most team may bid while still affording the minimum bid for
// every other open roster spot.
func (l *Ledger) MaxBid(team uuid.UUID) decimal.Decimal {
	b, ok := l.state.Budgets[team]
	open := l.OpenSlots(team)
	if !ok || open <= 0 {
		return decimal.Zero
	}
	reserve := l.minBid().Mul(decimal.NewFromInt(int64(open - 1)))
	ceiling := b.Remaining.Sub(reserve)
	if ceiling.IsNegative() {
		return decimal.Zero
	}
	return ceiling
}

// BidDeadline computes when bidding closes if a bid lands at now. Every bid
// restarts the full bid window, but never past the nomination's length cap.
func (l *Ledger) BidDeadline(openedAt, now time.Time) time.Time {
	deadline := now.Add(l.settings.BidWindow())
	if limit := l.settings.MaxNominationLength(); limit > 0 {
		capAt := openedAt.Add(limit)
		if capAt.Before(now) {
			return now
		}
		if deadline.After(capAt) {
			return capAt
		}
	}
	return deadline
}

// Nominate puts player up for bidding with an opening bid from team. A zero
// opening bid means the minimum bid.
func (l *Ledger) Nominate(team, player uuid.UUID, opening decimal.Decimal, now time.Time) (*models.Nomination, error) {
	if l.state.Phase != models.AuctionPhaseNominating || l.state.Nomination != nil {
		return nil, drafterr.New(drafterr.CodeInvalidState, "a player is already up for bidding")
	}
	if team != l.Nominator() {
		return nil, drafterr.ErrNotYourTurnToNominate
	}
	if l.isDrafted != nil && l.isDrafted(player) {
		return nil, drafterr.ErrPlayerAlreadyDrafted
	}
	if opening.IsZero() {
		opening = l.minBid()
	}
	if opening.LessThan(l.minBid()) {
		return nil, drafterr.New(drafterr.CodeBidTooLow, "opening bid must be at least %s", l.minBid())
	}
	if opening.GreaterThan(l.MaxBid(team)) {
		return nil, drafterr.New(drafterr.CodeInsufficientBudget, "opening bid %s exceeds max bid %s", opening, l.MaxBid(team))
	}

	n := &models.Nomination{
		PlayerID:      player,
		NominatorID:   team,
		CurrentBid:    opening,
		CurrentBidder: team,
		Bids:          []models.Bid{{TeamID: team, Amount: opening, PlacedAt: now}},
		OpenedAt:      now,
	}
	n.Deadline = l.BidDeadline(now, now)

	l.state.Nomination = n
	l.state.Phase = models.AuctionPhaseBidding
	return n, nil
}

// Bid raises the current bid. It returns the new bidding deadline.
func (l *Ledger) Bid(team uuid.UUID, amount decimal.Decimal, now time.Time) (time.Time, error) {
	n := l.state.Nomination
	if l.state.Phase != models.AuctionPhaseBidding || n == nil {
		return time.Time{}, drafterr.New(drafterr.CodeInvalidState, "no player is up for bidding")
	}
	if _, ok := l.state.Budgets[team]; !ok {
		return time.Time{}, drafterr.ErrUnauthorized
	}
	if l.OpenSlots(team) <= 0 {
		return time.Time{}, drafterr.New(drafterr.CodeInvalidState, "roster is full")
	}
	if team == n.CurrentBidder {
		return time.Time{}, drafterr.New(drafterr.CodeInvalidState, "already the high bidder")
	}
	if minNext := n.CurrentBid.Add(l.minIncrement()); amount.LessThan(minNext) {
		return time.Time{}, drafterr.New(drafterr.CodeBidTooLow, "bid must be at least %s", minNext)
	}
	if ceiling := l.MaxBid(team); amount.GreaterThan(ceiling) {
		return time.Time{}, drafterr.New(drafterr.CodeInsufficientBudget, "bid %s exceeds max bid %s", amount, ceiling)
	}

	n.CurrentBid = amount
	n.CurrentBidder = team
	n.Bids = append(n.Bids, models.Bid{TeamID: team, Amount: amount, PlacedAt: now})
	n.Deadline = l.BidDeadline(n.OpenedAt, now)
	return n.Deadline, nil
}

// Close awards the nominated player to the high bidder, debits its budget
// and moves the nomination queue on.
func (l *Ledger) Close() (Award, error) {
	n := l.state.Nomination
	if l.state.Phase != models.AuctionPhaseBidding || n == nil {
		return Award{}, drafterr.New(drafterr.CodeInvalidState, "no player is up for bidding")
	}

	b := l.state.Budgets[n.CurrentBidder]
	b.Remaining = b.Remaining.Sub(n.CurrentBid)
	b.Spent = b.Spent.Add(n.CurrentBid)
	b.RosterCount++
	l.state.Budgets[n.CurrentBidder] = b

	award := Award{
		PlayerID:    n.PlayerID,
		TeamID:      n.CurrentBidder,
		NominatorID: n.NominatorID,
		Amount:      n.CurrentBid,
		Bids:        append([]models.Bid(nil), n.Bids...),
		OpenedAt:    n.OpenedAt,
	}

	l.state.Nomination = nil
	l.state.Phase = models.AuctionPhaseNominating
	l.AdvanceQueue()
	return award, nil
}

// AdvanceQueue hands the nomination to the next team with an open roster
// spot. It reports false when every roster is full.
func (l *Ledger) AdvanceQueue() bool {
	n := len(l.teams)
	for i := 1; i <= n; i++ {
		idx := (l.state.QueueIndex + i) % n
		if l.OpenSlots(l.teams[idx].ID) > 0 {
			l.state.QueueIndex = idx
			return true
		}
	}
	return false
}

// EnsureNominatorCanDraft moves the queue past a nominator whose roster is
// already full. It reports false when nobody can draft anymore.
func (l *Ledger) EnsureNominatorCanDraft() bool {
	if len(l.teams) == 0 {
		return false
	}
	if l.OpenSlots(l.Nominator()) > 0 {
		return true
	}
	return l.AdvanceQueue()
}
