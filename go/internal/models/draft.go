package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DraftType defines the type of draft.
type DraftType string

const (
	DraftTypeSnake   DraftType = "snake"
	DraftTypeLinear  DraftType = "linear"
	DraftTypeAuction DraftType = "auction"
)

// Valid reports whether t is a known draft type.
func (t DraftType) Valid() bool {
	switch t {
	case DraftTypeSnake, DraftTypeLinear, DraftTypeAuction:
		return true
	}
	return false
}

// DraftStatus defines the lifecycle status of a draft.
type DraftStatus string

const (
	DraftStatusScheduled  DraftStatus = "scheduled"
	DraftStatusInProgress DraftStatus = "in_progress"
	DraftStatusPaused     DraftStatus = "paused"
	DraftStatusCompleted  DraftStatus = "completed"
	DraftStatusCancelled  DraftStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s DraftStatus) Terminal() bool {
	return s == DraftStatusCompleted || s == DraftStatusCancelled
}

// ExpiryPolicy decides what happens when a pick clock runs out for a team
// that does not have auto-pick enabled.
type ExpiryPolicy string

const (
	// ExpiryAutoPick records a forced auto-pick regardless of the team setting.
	ExpiryAutoPick ExpiryPolicy = "autopick"
	// ExpirySkip forfeits the slot without recording a pick.
	ExpirySkip ExpiryPolicy = "skip"
)

// DraftSettings holds the configuration of a single draft.
type DraftSettings struct {
	Rounds             int          `json:"rounds"`
	TimePerPickSec     int          `json:"time_per_pick_sec"`
	AutoPickDelaySec   int          `json:"auto_pick_delay_sec"`
	ExpiryPolicy       ExpiryPolicy `json:"expiry_policy,omitempty"`
	ThirdRoundReversal bool         `json:"third_round_reversal,omitempty"`
	PauseOnDisconnect  bool         `json:"pause_on_disconnect,omitempty"`
	AutoStart          bool         `json:"auto_start,omitempty"`

	// auction
	BudgetPerTeam          decimal.Decimal `json:"budget_per_team"`
	MinBid                 decimal.Decimal `json:"min_bid"`
	MinBidIncrement        decimal.Decimal `json:"min_bid_increment"`
	TimePerNominationSec   int             `json:"time_per_nomination_sec,omitempty"`
	TimePerBidSec          int             `json:"time_per_bid_sec,omitempty"`
	MaxNominationLengthSec int             `json:"max_nomination_length_sec,omitempty"`
}

// PickTimeLimit is the configured time a team has to make a pick.
func (s DraftSettings) PickTimeLimit() time.Duration {
	return time.Duration(s.TimePerPickSec) * time.Second
}

// AutoPickDelay is how long the clock runs for a team with auto-pick enabled.
func (s DraftSettings) AutoPickDelay() time.Duration {
	d := time.Duration(s.AutoPickDelaySec) * time.Second
	if limit := s.PickTimeLimit(); d <= 0 || d > limit {
		return limit
	}
	return d
}

// NominationWindow is how long the nominating team has to put a player up.
func (s DraftSettings) NominationWindow() time.Duration {
	if s.TimePerNominationSec <= 0 {
		return s.PickTimeLimit()
	}
	return time.Duration(s.TimePerNominationSec) * time.Second
}

// BidWindow is the bidding countdown restarted by every accepted bid.
func (s DraftSettings) BidWindow() time.Duration {
	return time.Duration(s.TimePerBidSec) * time.Second
}

// MaxNominationLength caps the total bidding time of one nomination. Zero means no cap.
func (s DraftSettings) MaxNominationLength() time.Duration {
	return time.Duration(s.MaxNominationLengthSec) * time.Second
}

// DraftTeam is a participating team with a stable draft position.
type DraftTeam struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	OwnerID  string    `json:"owner_id"`
	Position int       `json:"position"` // 1-based
	AutoPick bool      `json:"auto_pick"`
}

// OrderSlot is one precomputed entry of the draft order.
type OrderSlot struct {
	Round       int       `json:"round"`
	Pick        int       `json:"pick"`
	OverallPick int       `json:"overall_pick"`
	TeamID      uuid.UUID `json:"team_id"`
}

// CurrentPick points at the slot currently on the clock.
type CurrentPick struct {
	Round         int           `json:"round"`
	Pick          int           `json:"pick"`
	OverallPick   int           `json:"overall_pick"`
	TeamID        uuid.UUID     `json:"team_id"`
	RemainingTime time.Duration `json:"remaining_time"`
	StartedAt     time.Time     `json:"started_at"`
	Deadline      *time.Time    `json:"deadline,omitempty"`
	// PausedFor accumulates time spent paused while this pick was on the clock.
	PausedFor time.Duration `json:"paused_for,omitempty"`
}

// PauseRecord is appended on every pause and closed on resume.
type PauseRecord struct {
	PausedAt  time.Time  `json:"paused_at"`
	ResumedAt *time.Time `json:"resumed_at,omitempty"`
	Reason    string     `json:"reason"`
	Actor     string     `json:"actor"`
}

// DraftStats are aggregate numbers maintained as picks are made.
type DraftStats struct {
	AvgPickTime   time.Duration `json:"avg_pick_time"`
	AutoPickCount int           `json:"auto_pick_count"`
	SkippedCount  int           `json:"skipped_count"`
}

// Draft is the aggregate owned by the state machine while the draft is live.
type Draft struct {
	ID             uuid.UUID     `json:"id"`
	LeagueID       uuid.UUID     `json:"league_id"`
	CommissionerID string        `json:"commissioner_id"`
	PlayerPool     string        `json:"player_pool"`
	DraftType      DraftType     `json:"draft_type"`
	Status         DraftStatus   `json:"status"`
	Settings       DraftSettings `json:"settings"`
	Teams          []DraftTeam   `json:"teams"`
	Order          []OrderSlot   `json:"order"`
	CurrentPick    *CurrentPick  `json:"current_pick,omitempty"`
	Picks          []Pick        `json:"picks"`
	Skipped        []SkippedPick `json:"skipped,omitempty"`
	Pauses         []PauseRecord `json:"pauses,omitempty"`
	Stats          DraftStats    `json:"stats"`
	Auction        *AuctionState `json:"auction,omitempty"`
	Version        int64         `json:"version"`
	ScheduledAt    *time.Time    `json:"scheduled_at,omitempty"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
	CancelledAt    *time.Time    `json:"cancelled_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// TotalSlots is teams × rounds.
func (d *Draft) TotalSlots() int {
	return len(d.Teams) * d.Settings.Rounds
}

// Team returns the participating team with the given id.
func (d *Draft) Team(id uuid.UUID) (*DraftTeam, bool) {
	for i := range d.Teams {
		if d.Teams[i].ID == id {
			return &d.Teams[i], true
		}
	}
	return nil, false
}

// OpenPause returns the pause record that has not been resumed yet.
func (d *Draft) OpenPause() *PauseRecord {
	if n := len(d.Pauses); n > 0 && d.Pauses[n-1].ResumedAt == nil {
		return &d.Pauses[n-1]
	}
	return nil
}

// Drafted returns the ids of every player already picked.
func (d *Draft) Drafted() map[uuid.UUID]struct{} {
	out := make(map[uuid.UUID]struct{}, len(d.Picks))
	for _, p := range d.Picks {
		out[p.PlayerID] = struct{}{}
	}
	return out
}

// IsDrafted reports whether the player is already in the pick history.
func (d *Draft) IsDrafted(playerID uuid.UUID) bool {
	for _, p := range d.Picks {
		if p.PlayerID == playerID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy that shares no mutable state with d.
func (d *Draft) Clone() *Draft {
	if d == nil {
		return nil
	}
	c := *d
	c.Teams = append([]DraftTeam(nil), d.Teams...)
	c.Order = append([]OrderSlot(nil), d.Order...)
	c.Picks = make([]Pick, len(d.Picks))
	for i, p := range d.Picks {
		c.Picks[i] = p.clone()
	}
	c.Skipped = append([]SkippedPick(nil), d.Skipped...)
	c.Pauses = make([]PauseRecord, len(d.Pauses))
	for i, p := range d.Pauses {
		c.Pauses[i] = p
		if p.ResumedAt != nil {
			t := *p.ResumedAt
			c.Pauses[i].ResumedAt = &t
		}
	}
	if d.CurrentPick != nil {
		cp := *d.CurrentPick
		if cp.Deadline != nil {
			t := *cp.Deadline
			cp.Deadline = &t
		}
		c.CurrentPick = &cp
	}
	c.Auction = d.Auction.Clone()
	c.ScheduledAt = cloneTime(d.ScheduledAt)
	c.StartedAt = cloneTime(d.StartedAt)
	c.CompletedAt = cloneTime(d.CompletedAt)
	c.CancelledAt = cloneTime(d.CancelledAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
