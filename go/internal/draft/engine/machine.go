// Package engine holds the authoritative state machine of a live draft.
//
// A Machine owns one draft aggregate. Every mutation happens under its write
// lock and produces events in commit order; the pick clock re-enters through
// the same lock and carries a generation number so a superseded countdown can
// never act.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/dynasty/go/internal/draft/auction"
	"github.com/mcdev12/dynasty/go/internal/draft/autopick"
	"github.com/mcdev12/dynasty/go/internal/draft/drafterr"
	"github.com/mcdev12/dynasty/go/internal/draft/events"
	"github.com/mcdev12/dynasty/go/internal/draft/order"
	"github.com/mcdev12/dynasty/go/internal/draft/pickclock"
	"github.com/mcdev12/dynasty/go/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	// ActorSystem is recorded on pauses the engine decides on its own.
	ActorSystem = "system"

	ReasonNoAvailablePlayers = "no_available_players"
	ReasonTimeout            = "timeout"
	ReasonAutoPickEnabled    = "autopick_enabled"
	ReasonAutoPickFailed     = "autopick_failed"
	ReasonNominationFailed   = "nomination_close_failed"

	defaultSelectTimeout = 5 * time.Second
	defaultRetryDelay    = 5 * time.Second
)

//go:generate mockgen -package=mocks -destination=mocks/mock_engine.go github.com/mcdev12/dynasty/go/internal/draft/engine Selector,Saver

// Selector chooses a player when a clock runs out.
type Selector interface {
	Select(ctx context.Context, req autopick.Request) (uuid.UUID, error)
}

// Saver persists committed snapshots. Save must not block.
type Saver interface {
	Save(d *models.Draft)
}

// Notifier receives committed events in commit order. Notify is called with
// the machine lock held and must neither block nor call back into the machine.
type Notifier interface {
	Notify(ev events.DraftEvent)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ev events.DraftEvent)

func (f NotifierFunc) Notify(ev events.DraftEvent) { f(ev) }

// Config holds the collaborators of a Machine.
type Config struct {
	Clock         clockwork.Clock
	Selector      Selector
	Saver         Saver
	Notifiers     []Notifier
	TickInterval  time.Duration
	SelectTimeout time.Duration
	// RetryDelay is how long an expired clock waits before retrying a failed
	// auto-pick lookup.
	RetryDelay time.Duration
}

// Machine is the DraftStateMachine for one draft.
type Machine struct {
	mu    sync.RWMutex
	draft *models.Draft

	clock     clockwork.Clock
	pc        *pickclock.Clock
	countdown *pickclock.Countdown
	gen       uint64

	drafted   map[uuid.UUID]struct{}
	selector  Selector
	saver     Saver
	notifiers []Notifier

	selectTimeout time.Duration
	retryDelay    time.Duration
}

// New takes a copy of d and returns its state machine. The clock is not
// started; call Start for a scheduled draft or Recover for one loaded mid-draft.
func New(d *models.Draft, cfg Config) *Machine {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	var opts []pickclock.Option
	if cfg.TickInterval > 0 {
		opts = append(opts, pickclock.WithTickInterval(cfg.TickInterval))
	}
	m := &Machine{
		draft:         d.Clone(),
		clock:         clock,
		pc:            pickclock.New(clock, opts...),
		selector:      cfg.Selector,
		saver:         cfg.Saver,
		notifiers:     append([]Notifier(nil), cfg.Notifiers...),
		selectTimeout: cfg.SelectTimeout,
		retryDelay:    cfg.RetryDelay,
	}
	if m.selectTimeout <= 0 {
		m.selectTimeout = defaultSelectTimeout
	}
	if m.retryDelay <= 0 {
		m.retryDelay = defaultRetryDelay
	}
	m.drafted = m.draft.Drafted()
	return m
}

// Subscribe adds a notifier for events committed from now on.
func (m *Machine) Subscribe(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifiers = append(m.notifiers, n)
}

// ID returns the draft id.
func (m *Machine) ID() uuid.UUID {
	// immutable after construction
	return m.draft.ID
}

// Start moves a scheduled draft into progress and puts the first pick on the clock.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := m.draft
	if d.Status == models.DraftStatusCancelled {
		return drafterr.ErrDraftTerminated
	}
	if d.Status != models.DraftStatusScheduled {
		return drafterr.New(drafterr.CodePreconditionFailed, "draft is %s", d.Status)
	}
	if len(d.Teams) < order.MinTeams {
		return drafterr.New(drafterr.CodePreconditionFailed, "draft needs at least %d teams, has %d", order.MinTeams, len(d.Teams))
	}
	if len(d.Order) != d.TotalSlots() || d.TotalSlots() == 0 {
		return drafterr.New(drafterr.CodePreconditionFailed, "draft order has %d slots, expected %d", len(d.Order), d.TotalSlots())
	}
	now := m.clock.Now()
	if d.ScheduledAt != nil && now.Before(*d.ScheduledAt) {
		return drafterr.New(drafterr.CodePreconditionFailed, "draft is scheduled for %s", d.ScheduledAt.Format(time.RFC3339))
	}

	d.Status = models.DraftStatusInProgress
	d.StartedAt = &now
	if d.DraftType == models.DraftTypeAuction {
		if d.Auction == nil {
			d.Auction = auction.NewState(d.Teams, d.Settings)
		}
		m.ledger().EnsureNominatorCanDraft()
		m.beginNominationTurn(now)
	} else {
		m.beginSlot(0, now)
	}

	log.Info().
		Str("draft_id", d.ID.String()).
		Str("draft_type", string(d.DraftType)).
		Int("teams", len(d.Teams)).
		Int("rounds", d.Settings.Rounds).
		Msg("draft started")

	m.commit(now, events.DraftStartedPayload{
		DraftType:   d.DraftType,
		StartedAt:   now,
		TotalRounds: d.Settings.Rounds,
		TotalPicks:  d.TotalSlots(),
		CurrentPick: m.currentPickView(),
	})
	return nil
}

// Pause stops the clock, freezing the remaining time of the current pick.
func (m *Machine) Pause(ctx context.Context, reason, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := requireActive(m.draft.Status); err != nil {
		return err
	}
	now := m.clock.Now()
	m.commit(now, m.pauseLocked(reason, actor, now))
	return nil
}

func (m *Machine) pauseLocked(reason, actor string, now time.Time) events.Payload {
	d := m.draft
	left := m.stopClock()
	if cp := d.CurrentPick; cp != nil {
		cp.RemainingTime = left
		cp.Deadline = nil
	}
	d.Pauses = append(d.Pauses, models.PauseRecord{
		PausedAt: now,
		Reason:   reason,
		Actor:    actor,
	})
	d.Status = models.DraftStatusPaused

	log.Info().
		Str("draft_id", d.ID.String()).
		Str("reason", reason).
		Str("actor", actor).
		Dur("remaining", left).
		Msg("draft paused")

	return events.PausedPayload{
		Reason:        reason,
		By:            actor,
		PausedAt:      now,
		TimeRemaining: seconds(left),
	}
}

// Resume restarts the clock with the time that was left when the draft paused.
func (m *Machine) Resume(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := m.draft
	if err := validateStatusTransition(d.Status, models.DraftStatusInProgress); err != nil {
		return err
	}
	if d.Status != models.DraftStatusPaused {
		return drafterr.New(drafterr.CodeInvalidState, "draft is %s", d.Status)
	}

	now := m.clock.Now()
	var paused time.Duration
	if open := d.OpenPause(); open != nil {
		open.ResumedAt = &now
		paused = now.Sub(open.PausedAt)
	}
	d.Status = models.DraftStatusInProgress

	if cp := d.CurrentPick; cp != nil {
		cp.PausedFor += paused
		if n := m.nomination(); n != nil {
			// the bidding cap is measured in unpaused time
			n.OpenedAt = n.OpenedAt.Add(paused)
		}
		m.runClock(cp.RemainingTime)
	}

	log.Info().Str("draft_id", d.ID.String()).Dur("paused_for", paused).Msg("draft resumed")

	m.commit(now, events.ResumedPayload{CurrentPick: m.currentPickView(), ResumedAt: now})
	return nil
}

// Cancel terminates the draft from any non-terminal state.
func (m *Machine) Cancel(ctx context.Context, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := m.draft
	if err := validateStatusTransition(d.Status, models.DraftStatusCancelled); err != nil {
		return err
	}

	now := m.clock.Now()
	m.stopClock()
	if open := d.OpenPause(); open != nil {
		open.ResumedAt = &now
	}
	d.Status = models.DraftStatusCancelled
	d.CancelledAt = &now
	d.CurrentPick = nil

	log.Info().Str("draft_id", d.ID.String()).Str("actor", actor).Msg("draft cancelled")

	m.commit(now, events.DraftCancelledPayload{CancelledAt: now, By: actor})
	return nil
}

// SetAutoPick flips a team's auto-pick flag. When the team is on the clock
// and turns auto-pick on, its clock is shortened to the auto-pick delay.
func (m *Machine) SetAutoPick(ctx context.Context, teamID uuid.UUID, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := m.draft
	if d.Status.Terminal() {
		if d.Status == models.DraftStatusCancelled {
			return drafterr.ErrDraftTerminated
		}
		return drafterr.New(drafterr.CodeInvalidState, "draft is %s", d.Status)
	}
	team, ok := d.Team(teamID)
	if !ok {
		return drafterr.New(drafterr.CodeUnauthorized, "team %s is not in this draft", teamID)
	}
	team.AutoPick = enabled

	if enabled && d.Status == models.DraftStatusInProgress && d.CurrentPick != nil &&
		d.CurrentPick.TeamID == teamID && m.nomination() == nil {
		if delay := d.Settings.AutoPickDelay(); m.pc.Remaining() > delay {
			m.runClock(delay)
		}
	}

	m.commit(m.clock.Now(), events.AutoPickToggledPayload{TeamID: teamID, Enabled: enabled})
	return nil
}

// Recover restarts the clock of a draft loaded from storage while in
// progress, honouring the persisted deadline.
func (m *Machine) Recover(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := m.draft
	cp := d.CurrentPick
	if d.Status != models.DraftStatusInProgress || cp == nil {
		return
	}
	left := cp.RemainingTime
	if cp.Deadline != nil {
		left = cp.Deadline.Sub(m.clock.Now())
		if left < 0 {
			left = 0
		}
	}
	log.Info().
		Str("draft_id", d.ID.String()).
		Int("overall_pick", cp.OverallPick).
		Dur("remaining", left).
		Msg("recovering draft clock")
	m.runClock(left)
}

// Stop halts the clock without changing the draft. Used on eviction and shutdown.
func (m *Machine) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopClock()
}

// runClock supersedes any running countdown with a new one of d.
func (m *Machine) runClock(d time.Duration) {
	m.gen++
	gen := m.gen
	m.countdown = m.pc.Start(d,
		func(left time.Duration) { m.onTick(gen, left) },
		func() { m.onExpire(gen) },
	)
	if cp := m.draft.CurrentPick; cp != nil {
		deadline := m.countdown.Deadline()
		cp.RemainingTime = d
		cp.Deadline = &deadline
	}
	if n := m.nomination(); n != nil {
		n.Deadline = m.countdown.Deadline()
	}
}

// stopClock cancels the countdown and returns the time that was left.
func (m *Machine) stopClock() time.Duration {
	m.gen++
	m.countdown = nil
	return m.pc.Cancel()
}

func (m *Machine) current(gen uint64) bool {
	return gen == m.gen && m.draft.Status == models.DraftStatusInProgress && m.draft.CurrentPick != nil
}

func (m *Machine) onTick(gen uint64, left time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.current(gen) {
		return
	}
	cp := m.draft.CurrentPick
	phase := ""
	if a := m.draft.Auction; a != nil {
		phase = string(a.Phase)
	}
	m.publish(m.clock.Now(), events.PickTimerPayload{
		TeamID:        cp.TeamID,
		OverallPick:   cp.OverallPick,
		TimeRemaining: seconds(left),
		Phase:         phase,
	})
}

// commit bumps the version, hands a snapshot to the saver and publishes the
// payloads as one ordered batch.
func (m *Machine) commit(now time.Time, payloads ...events.Payload) {
	d := m.draft
	d.Version++
	d.UpdatedAt = now
	if m.saver != nil {
		m.saver.Save(d.Clone())
	}
	for _, p := range payloads {
		m.publish(now, p)
	}
}

func (m *Machine) publish(now time.Time, p events.Payload) {
	ev := events.New(m.draft.ID, m.draft.Version, now, p)
	for _, n := range m.notifiers {
		n.Notify(ev)
	}
}

func (m *Machine) ledger() *auction.Ledger {
	return auction.New(m.draft.Auction, m.draft.Teams, m.draft.Settings, m.isDrafted)
}

func (m *Machine) isDrafted(playerID uuid.UUID) bool {
	_, ok := m.drafted[playerID]
	return ok
}

func (m *Machine) nomination() *models.Nomination {
	if a := m.draft.Auction; a != nil && a.Phase == models.AuctionPhaseBidding {
		return a.Nomination
	}
	return nil
}

func (m *Machine) draftedCopy() map[uuid.UUID]struct{} {
	out := make(map[uuid.UUID]struct{}, len(m.drafted))
	for id := range m.drafted {
		out[id] = struct{}{}
	}
	return out
}

func (m *Machine) currentPickView() *models.CurrentPick {
	cp := m.draft.CurrentPick
	if cp == nil {
		return nil
	}
	v := *cp
	if cp.Deadline != nil {
		t := *cp.Deadline
		v.Deadline = &t
	}
	return &v
}

func seconds(d time.Duration) int {
	return int(d.Round(time.Second) / time.Second)
}
