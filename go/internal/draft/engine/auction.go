package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty/go/internal/draft/drafterr"
	"github.com/mcdev12/dynasty/go/internal/draft/events"
	"github.com/mcdev12/dynasty/go/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Nominate puts a player up for bidding. opening may be zero for the minimum bid.
func (m *Machine) Nominate(ctx context.Context, teamID, playerID uuid.UUID, opening decimal.Decimal) (models.Nomination, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireAuction(); err != nil {
		return models.Nomination{}, err
	}
	n, err := m.nominateLocked(teamID, playerID, opening, false)
	if err != nil {
		return models.Nomination{}, err
	}
	return n, nil
}

func (m *Machine) nominateLocked(teamID, playerID uuid.UUID, opening decimal.Decimal, isAuto bool) (models.Nomination, error) {
	d := m.draft
	now := m.clock.Now()
	n, err := m.ledger().Nominate(teamID, playerID, opening, now)
	if err != nil {
		return models.Nomination{}, err
	}
	m.runClock(n.Deadline.Sub(now))

	log.Info().
		Str("draft_id", d.ID.String()).
		Str("team_id", teamID.String()).
		Str("player_id", playerID.String()).
		Str("opening_bid", n.CurrentBid.String()).
		Bool("auto", isAuto).
		Msg("player nominated")

	view := cloneNomination(n)
	m.commit(now, events.NominatedPayload{Nomination: view, CurrentPick: m.currentPickView(), IsAuto: isAuto})
	return view, nil
}

// Bid raises the bid on the nominated player and restarts the bid countdown.
func (m *Machine) Bid(ctx context.Context, teamID uuid.UUID, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireAuction(); err != nil {
		return err
	}
	now := m.clock.Now()
	deadline, err := m.ledger().Bid(teamID, amount, now)
	if err != nil {
		return err
	}
	m.runClock(deadline.Sub(now))

	n := m.draft.Auction.Nomination
	log.Debug().
		Str("draft_id", m.draft.ID.String()).
		Str("team_id", teamID.String()).
		Str("amount", amount.String()).
		Msg("bid placed")

	m.commit(now, events.BidPlacedPayload{
		PlayerID: n.PlayerID,
		TeamID:   teamID,
		Amount:   amount,
		Deadline: deadline,
	})
	return nil
}

// MaxBid reports the most teamID may currently bid.
func (m *Machine) MaxBid(teamID uuid.UUID) decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.draft.Auction == nil {
		return decimal.Zero
	}
	return m.ledger().MaxBid(teamID)
}

func (m *Machine) requireAuction() error {
	d := m.draft
	if err := requireActive(d.Status); err != nil {
		return err
	}
	if d.DraftType != models.DraftTypeAuction || d.Auction == nil {
		return drafterr.New(drafterr.CodeInvalidState, "not an auction draft")
	}
	return nil
}

// closeNominationLocked awards the player when the bid countdown runs out.
func (m *Machine) closeNominationLocked() {
	d := m.draft
	now := m.clock.Now()

	ledger := m.ledger()
	award, err := ledger.Close()
	if err != nil {
		log.Error().Err(err).Str("draft_id", d.ID.String()).Msg("failed to close nomination, pausing draft")
		m.pauseWithError(ReasonNominationFailed, drafterr.CodeOf(err), err)
		return
	}
	m.stopClock()

	pick := m.recordPick(award.TeamID, award.PlayerID, false, now)
	amount := award.Amount
	pick.BidAmount = &amount
	pick.BidHistory = award.Bids
	d.Picks[len(d.Picks)-1] = pick

	complete := len(d.Picks)+len(d.Skipped) >= d.TotalSlots() || !ledger.EnsureNominatorCanDraft()
	if complete {
		m.complete(now)
	} else {
		m.beginNominationTurn(now)
	}

	log.Info().
		Str("draft_id", d.ID.String()).
		Str("team_id", award.TeamID.String()).
		Str("player_id", award.PlayerID.String()).
		Str("amount", award.Amount.String()).
		Msg("player awarded")

	m.commit(now, m.withCompletion(now, complete, events.PickMadePayload{
		Pick:        pick,
		CurrentPick: m.currentPickView(),
		IsComplete:  complete,
	})...)
}

// autoNominateLocked nominates the selected player at the minimum bid on
// behalf of a nominator whose clock ran out.
func (m *Machine) autoNominateLocked(playerID uuid.UUID) {
	d := m.draft
	nominator := m.ledger().Nominator()
	if _, err := m.nominateLocked(nominator, playerID, decimal.Zero, true); err != nil {
		log.Warn().Err(err).
			Str("draft_id", d.ID.String()).
			Str("team_id", nominator.String()).
			Msg("auto-nomination rejected, passing nomination on")
		if !m.ledger().AdvanceQueue() {
			now := m.clock.Now()
			m.complete(now)
			m.commit(now, m.withCompletion(now, true, events.ErrorPayload{
				Code:    string(drafterr.CodeInsufficientBudget),
				Message: "no team can afford another player",
			})...)
			return
		}
		m.beginNominationTurn(m.clock.Now())
	}
}

// beginNominationTurn puts the queue head on the nomination clock.
func (m *Machine) beginNominationTurn(now time.Time) {
	d := m.draft
	teams := len(d.Teams)
	done := len(d.Picks)
	nominator := m.ledger().Nominator()

	limit := d.Settings.NominationWindow()
	if team, ok := d.Team(nominator); ok && team.AutoPick {
		limit = d.Settings.AutoPickDelay()
	}
	d.CurrentPick = &models.CurrentPick{
		Round:         done/teams + 1,
		Pick:          done%teams + 1,
		OverallPick:   done + 1,
		TeamID:        nominator,
		RemainingTime: limit,
		StartedAt:     now,
	}
	m.runClock(limit)
}

func cloneNomination(n *models.Nomination) models.Nomination {
	c := *n
	c.Bids = append([]models.Bid(nil), n.Bids...)
	return c
}
