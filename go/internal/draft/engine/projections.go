package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty/go/internal/models"
)

// Info is the immutable identity of the draft plus its current status.
type Info struct {
	ID             uuid.UUID
	LeagueID       uuid.UUID
	CommissionerID string
	PlayerPool     string
	DraftType      models.DraftType
	Status         models.DraftStatus
	Settings       models.DraftSettings
	CurrentTeam    uuid.UUID // uuid.Nil when nobody is on the clock
	Version        int64
}

// Info returns a cheap summary of the draft.
func (m *Machine) Info() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d := m.draft
	info := Info{
		ID:             d.ID,
		LeagueID:       d.LeagueID,
		CommissionerID: d.CommissionerID,
		PlayerPool:     d.PlayerPool,
		DraftType:      d.DraftType,
		Status:         d.Status,
		Settings:       d.Settings,
		Version:        d.Version,
	}
	if d.CurrentPick != nil {
		info.CurrentTeam = d.CurrentPick.TeamID
	}
	return info
}

// Snapshot returns a deep copy of the aggregate with the live remaining time.
func (m *Machine) Snapshot() *models.Draft {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c := m.draft.Clone()
	if c.CurrentPick != nil && c.Status == models.DraftStatusInProgress {
		c.CurrentPick.RemainingTime = m.pc.Remaining()
	}
	return c
}

// Remaining is the time left on the running clock.
func (m *Machine) Remaining() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.draft.Status != models.DraftStatusInProgress {
		if cp := m.draft.CurrentPick; cp != nil {
			return cp.RemainingTime
		}
		return 0
	}
	return m.pc.Remaining()
}

// Team returns a copy of a participating team.
func (m *Machine) Team(id uuid.UUID) (models.DraftTeam, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.draft.Team(id)
	if !ok {
		return models.DraftTeam{}, false
	}
	return *t, true
}

// IsDrafted reports whether the player has been picked.
func (m *Machine) IsDrafted(playerID uuid.UUID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isDrafted(playerID)
}

// Drafted returns a copy of the drafted player set.
func (m *Machine) Drafted() map[uuid.UUID]struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.draftedCopy()
}

// View is a consistent read of the draft for a joining client.
type View struct {
	Draft     *models.Draft
	Upcoming  []models.OrderSlot
	Recent    []models.Pick
	Remaining time.Duration
}

// View returns the snapshot and its projections taken under one read lock.
func (m *Machine) View(recent, upcoming int) View {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v := View{
		Draft:    m.draft.Clone(),
		Upcoming: m.upcoming(upcoming),
		Recent:   m.history(recent),
	}
	if cp := v.Draft.CurrentPick; cp != nil {
		if v.Draft.Status == models.DraftStatusInProgress {
			cp.RemainingTime = m.pc.Remaining()
		}
		v.Remaining = cp.RemainingTime
	}
	return v
}

// UpcomingPicks returns up to limit order slots starting with the one on the
// clock. Auction drafts have no fixed order and return nil.
func (m *Machine) UpcomingPicks(limit int) []models.OrderSlot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.upcoming(limit)
}

func (m *Machine) upcoming(limit int) []models.OrderSlot {
	d := m.draft
	if d.DraftType == models.DraftTypeAuction || d.Status.Terminal() {
		return nil
	}
	start := 0
	if d.CurrentPick != nil {
		start = d.CurrentPick.OverallPick - 1
	}
	if start >= len(d.Order) {
		return nil
	}
	end := len(d.Order)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return append([]models.OrderSlot(nil), d.Order[start:end]...)
}

// PickHistory returns the last limit picks in draft order, all of them when
// limit is not positive.
func (m *Machine) PickHistory(limit int) []models.Pick {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.history(limit)
}

func (m *Machine) history(limit int) []models.Pick {
	picks := m.draft.Picks
	if limit > 0 && len(picks) > limit {
		picks = picks[len(picks)-limit:]
	}
	out := make([]models.Pick, len(picks))
	copy(out, picks)
	return out
}
