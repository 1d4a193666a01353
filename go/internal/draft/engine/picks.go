package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty/go/internal/draft/autopick"
	"github.com/mcdev12/dynasty/go/internal/draft/drafterr"
	"github.com/mcdev12/dynasty/go/internal/draft/events"
	"github.com/mcdev12/dynasty/go/internal/models"
	"github.com/rs/zerolog/log"
)

// MakePick records a manual pick for the team on the clock.
func (m *Machine) MakePick(ctx context.Context, teamID, playerID uuid.UUID) (models.Pick, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := m.draft
	if err := requireActive(d.Status); err != nil {
		return models.Pick{}, err
	}
	if d.DraftType == models.DraftTypeAuction {
		return models.Pick{}, drafterr.New(drafterr.CodeInvalidState, "auction drafts are won by bidding")
	}
	if err := m.checkPick(teamID, playerID); err != nil {
		return models.Pick{}, err
	}
	return m.pickLocked(teamID, playerID, false, ""), nil
}

func (m *Machine) checkPick(teamID, playerID uuid.UUID) error {
	cp := m.draft.CurrentPick
	if cp == nil {
		return drafterr.New(drafterr.CodeInvalidState, "no pick is on the clock")
	}
	if cp.TeamID != teamID {
		return drafterr.ErrWrongTurn
	}
	if m.isDrafted(playerID) {
		return drafterr.ErrPlayerAlreadyDrafted
	}
	return nil
}

// pickLocked appends the pick, stops the clock and advances. It is the single
// path for manual and automatic picks.
func (m *Machine) pickLocked(teamID, playerID uuid.UUID, isAuto bool, reason string) models.Pick {
	now := m.clock.Now()
	m.stopClock()
	pick := m.recordPick(teamID, playerID, isAuto, now)

	complete := m.advance(now)

	log.Info().
		Str("draft_id", m.draft.ID.String()).
		Str("team_id", teamID.String()).
		Str("player_id", playerID.String()).
		Int("overall_pick", pick.OverallPick).
		Bool("auto", isAuto).
		Msg("pick made")

	var payload events.Payload
	if isAuto {
		payload = events.AutoPickPayload{Pick: pick, CurrentPick: m.currentPickView(), IsComplete: complete, Reason: reason}
	} else {
		payload = events.PickMadePayload{Pick: pick, CurrentPick: m.currentPickView(), IsComplete: complete}
	}
	m.commit(now, m.withCompletion(now, complete, payload)...)
	return pick
}

func (m *Machine) recordPick(teamID, playerID uuid.UUID, isAuto bool, now time.Time) models.Pick {
	d := m.draft
	cp := d.CurrentPick
	used := now.Sub(cp.StartedAt) - cp.PausedFor
	if used < 0 {
		used = 0
	}
	pick := models.Pick{
		ID:          uuid.New(),
		DraftID:     d.ID,
		Round:       cp.Round,
		Pick:        cp.Pick,
		OverallPick: cp.OverallPick,
		TeamID:      teamID,
		PlayerID:    playerID,
		TimeUsed:    used,
		IsAutoPick:  isAuto,
		PickedAt:    now,
	}
	d.Picks = append(d.Picks, pick)
	m.drafted[playerID] = struct{}{}

	n := time.Duration(len(d.Picks))
	d.Stats.AvgPickTime = (d.Stats.AvgPickTime*(n-1) + used) / n
	if isAuto {
		d.Stats.AutoPickCount++
	}
	return pick
}

// advance is the only writer of CurrentPick for snake and linear drafts. It
// completes the draft once the consumed slot was the last one, otherwise it
// puts the next slot of the precomputed order on a fresh clock.
func (m *Machine) advance(now time.Time) bool {
	d := m.draft
	consumed := d.CurrentPick.OverallPick
	if consumed >= d.TotalSlots() {
		m.complete(now)
		return true
	}
	m.beginSlot(consumed, now)
	return false
}

func (m *Machine) beginSlot(idx int, now time.Time) {
	d := m.draft
	slot := d.Order[idx]
	limit := d.Settings.PickTimeLimit()
	if team, ok := d.Team(slot.TeamID); ok && team.AutoPick {
		limit = d.Settings.AutoPickDelay()
	}
	d.CurrentPick = &models.CurrentPick{
		Round:         slot.Round,
		Pick:          slot.Pick,
		OverallPick:   slot.OverallPick,
		TeamID:        slot.TeamID,
		RemainingTime: limit,
		StartedAt:     now,
	}
	m.runClock(limit)
}

func (m *Machine) complete(now time.Time) {
	d := m.draft
	m.stopClock()
	d.Status = models.DraftStatusCompleted
	d.CompletedAt = &now
	d.CurrentPick = nil

	log.Info().
		Str("draft_id", d.ID.String()).
		Int("picks", len(d.Picks)).
		Int("skipped", len(d.Skipped)).
		Msg("draft completed")
}

func (m *Machine) withCompletion(now time.Time, complete bool, payload events.Payload) []events.Payload {
	if !complete {
		return []events.Payload{payload}
	}
	d := m.draft
	var took time.Duration
	if d.StartedAt != nil {
		took = now.Sub(*d.StartedAt)
	}
	return []events.Payload{payload, events.DraftCompletedPayload{
		CompletedAt: now,
		Duration:    took.String(),
		TotalPicks:  len(d.Picks),
		Stats:       d.Stats,
	}}
}

// skipLocked forfeits the current slot without a pick.
func (m *Machine) skipLocked(reason string) {
	d := m.draft
	now := m.clock.Now()
	m.stopClock()
	cp := d.CurrentPick
	skipped := models.SkippedPick{
		Round:       cp.Round,
		Pick:        cp.Pick,
		OverallPick: cp.OverallPick,
		TeamID:      cp.TeamID,
		Reason:      reason,
		SkippedAt:   now,
	}
	d.Skipped = append(d.Skipped, skipped)
	d.Stats.SkippedCount++

	complete := m.advance(now)

	log.Info().
		Str("draft_id", d.ID.String()).
		Str("team_id", skipped.TeamID.String()).
		Int("overall_pick", skipped.OverallPick).
		Msg("pick skipped")

	m.commit(now, m.withCompletion(now, complete, events.PickSkippedPayload{
		Reason:      reason,
		Skipped:     skipped,
		CurrentPick: m.currentPickView(),
		IsComplete:  complete,
	})...)
}

// onExpire runs when countdown gen reaches zero. The player lookup happens
// outside the lock; the result is applied only if the same countdown is still
// current, so a manual pick or pause that raced in wins.
func (m *Machine) onExpire(gen uint64) {
	m.mu.Lock()
	if !m.current(gen) {
		m.mu.Unlock()
		return
	}
	d := m.draft
	if m.nomination() != nil {
		m.closeNominationLocked()
		m.mu.Unlock()
		return
	}

	cp := d.CurrentPick
	reason := ReasonTimeout
	if team, ok := d.Team(cp.TeamID); ok && team.AutoPick {
		reason = ReasonAutoPickEnabled
	} else if d.DraftType != models.DraftTypeAuction && d.Settings.ExpiryPolicy == models.ExpirySkip {
		m.skipLocked(ReasonTimeout)
		m.mu.Unlock()
		return
	}

	req := autopick.Request{
		DraftID: d.ID,
		TeamID:  cp.TeamID,
		Pool:    d.PlayerPool,
		Drafted: m.draftedCopy(),
	}
	m.mu.Unlock()

	player, err := m.selectPlayer(req)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.current(gen) {
		log.Debug().Str("draft_id", req.DraftID.String()).Msg("discarding stale auto-pick")
		return
	}
	if err != nil {
		m.handleSelectError(err)
		return
	}
	if m.isDrafted(player) {
		// only possible with a misbehaving selector
		m.handleSelectError(drafterr.New(drafterr.CodePlayerAlreadyDrafted, "selector returned drafted player %s", player))
		return
	}

	if d.DraftType == models.DraftTypeAuction {
		m.autoNominateLocked(player)
		return
	}
	m.pickLocked(req.TeamID, player, true, reason)
}

func (m *Machine) selectPlayer(req autopick.Request) (uuid.UUID, error) {
	if m.selector == nil {
		return uuid.Nil, drafterr.New(drafterr.CodeInternal, "no auto-pick selector configured")
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.selectTimeout)
	defer cancel()
	return m.selector.Select(ctx, req)
}

// handleSelectError pauses the draft when the pool is exhausted or the
// selector keeps offering drafted players, and retries the lookup later for
// any other failure.
func (m *Machine) handleSelectError(err error) {
	d := m.draft
	switch {
	case errors.Is(err, drafterr.ErrNoAvailablePlayers):
		log.Warn().Str("draft_id", d.ID.String()).Msg("player pool exhausted, pausing draft")
		m.pauseWithError(ReasonNoAvailablePlayers, drafterr.CodeNoAvailablePlayers, err)
	case errors.Is(err, drafterr.ErrPlayerAlreadyDrafted):
		log.Error().Err(err).Str("draft_id", d.ID.String()).Msg("auto-pick chose a drafted player, pausing draft")
		m.pauseWithError(ReasonAutoPickFailed, drafterr.CodePlayerAlreadyDrafted, err)
	default:
		log.Error().Err(err).Str("draft_id", d.ID.String()).Dur("retry_in", m.retryDelay).Msg("auto-pick failed")
		m.runClock(m.retryDelay)
	}
}

// pauseWithError pauses on behalf of the system and tells the room why.
func (m *Machine) pauseWithError(reason string, code drafterr.Code, err error) {
	now := m.clock.Now()
	paused := m.pauseLocked(reason, ActorSystem, now)
	m.commit(now, paused, events.ErrorPayload{
		Code:    string(code),
		Message: err.Error(),
	})
}
