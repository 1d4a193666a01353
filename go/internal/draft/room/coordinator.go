// Package room fans draft events out to the sessions connected to one draft
// and relays their commands to the draft's state machine.
package room

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/dynasty/go/internal/draft/drafterr"
	"github.com/mcdev12/dynasty/go/internal/draft/engine"
	"github.com/mcdev12/dynasty/go/internal/draft/events"
	"github.com/mcdev12/dynasty/go/internal/identity"
	"github.com/mcdev12/dynasty/go/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	DefaultChatHistory = 50
	RecentPicks        = 10
	UpcomingPicks      = 12

	// ReasonDisconnect is recorded when the team on the clock drops off.
	ReasonDisconnect = "disconnect"
	// ReasonCommissioner is the default reason of a commissioner pause.
	ReasonCommissioner = "commissioner"

	// maxBacklog bounds the events buffered for a session that has not
	// received its snapshot yet.
	maxBacklog = 256
)

// Session is one connected client. Send must not block: it reports false when
// the client cannot keep up.
type Session interface {
	ID() string
	Send(frame []byte) bool
	Close(reason string)
}

// PlayerLookup validates that a player belongs to the draft's pool.
type PlayerLookup interface {
	Lookup(ctx context.Context, pool string, playerID uuid.UUID) (models.RankedPlayer, error)
}

// Options tunes a Coordinator.
type Options struct {
	Clock       clockwork.Clock
	ChatHistory int
	// OnEmpty is called after the last session leaves.
	OnEmpty func(draftID uuid.UUID)
}

type member struct {
	session      Session
	userID       string
	teamID       *uuid.UUID
	commissioner bool
	joinedAt     time.Time

	pending bool
	dropped bool
	backlog []events.DraftEvent
}

// Coordinator is the RoomCoordinator of one draft.
type Coordinator struct {
	draftID  uuid.UUID
	machine  *engine.Machine
	identity identity.Provider
	players  PlayerLookup
	clock    clockwork.Clock
	onEmpty  func(uuid.UUID)

	// beforeView runs while a joining session is pending; tests only.
	beforeView func()

	mu       sync.Mutex
	members  map[string]*member
	chat     []events.ChatMessagePayload
	chatSize int
	closed   bool
}

// New creates the room for machine's draft and subscribes it to the machine.
func New(machine *engine.Machine, ident identity.Provider, players PlayerLookup, opts Options) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.ChatHistory <= 0 {
		opts.ChatHistory = DefaultChatHistory
	}
	c := &Coordinator{
		draftID:  machine.ID(),
		machine:  machine,
		identity: ident,
		players:  players,
		clock:    opts.Clock,
		onEmpty:  opts.OnEmpty,
		members:  make(map[string]*member),
		chatSize: opts.ChatHistory,
	}
	machine.Subscribe(c)
	return c
}

// Notify implements engine.Notifier. It is called with the machine lock held.
func (c *Coordinator) Notify(ev events.DraftEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broadcastLocked(ev)
}

// Broadcast sends ev to every session of the room.
func (c *Coordinator) Broadcast(ev events.DraftEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broadcastLocked(ev)
}

func (c *Coordinator) broadcastLocked(ev events.DraftEvent) {
	if c.closed || len(c.members) == 0 {
		return
	}
	frame, err := ev.Encode()
	if err != nil {
		log.Error().Err(err).Str("draft_id", c.draftID.String()).Str("type", string(ev.Type)).Msg("failed to marshal event for broadcast")
		return
	}
	for id, m := range c.members {
		if m.dropped {
			continue
		}
		if m.pending {
			if len(m.backlog) >= maxBacklog {
				c.dropLocked(id, m, "backlog full")
				continue
			}
			m.backlog = append(m.backlog, ev)
			continue
		}
		if !m.session.Send(frame) {
			c.dropLocked(id, m, "send buffer full")
		}
	}
}

// dropLocked closes a slow session. Presence is updated when its transport
// reports the disconnect through Leave.
func (c *Coordinator) dropLocked(id string, m *member, reason string) {
	m.dropped = true
	log.Warn().
		Str("draft_id", c.draftID.String()).
		Str("connection_id", id).
		Str("user_id", m.userID).
		Str("reason", reason).
		Msg("closing slow connection")
	m.session.Close(reason)
}

func (c *Coordinator) sendTo(s Session, p events.Payload) {
	ev := events.New(c.draftID, 0, c.clock.Now(), p)
	frame, err := ev.Encode()
	if err != nil {
		log.Error().Err(err).Str("draft_id", c.draftID.String()).Msg("failed to marshal event")
		return
	}
	if !s.Send(frame) {
		s.Close("send buffer full")
	}
}

// Handle parses one inbound frame from s and acts on it. Failures are
// reported to s only.
func (c *Coordinator) Handle(ctx context.Context, s Session, frame []byte) {
	cmd, err := events.ParseCommand(frame)
	if err != nil {
		c.replyError(s, err)
		return
	}
	if auth, ok := cmd.(events.Authenticate); ok {
		if _, err := c.Join(ctx, s, auth.Token); err != nil {
			c.replyError(s, err)
		}
		return
	}
	if err := c.Relay(ctx, s, cmd); err != nil {
		c.replyError(s, err)
	}
}

func (c *Coordinator) replyError(s Session, err error) {
	code := drafterr.CodeOf(err)
	msg := err.Error()
	if code == drafterr.CodeInternal {
		log.Error().Err(err).Str("draft_id", c.draftID.String()).Str("connection_id", s.ID()).Msg("command failed")
		msg = "internal error"
	}
	c.sendTo(s, events.ErrorPayload{Code: string(code), Message: msg})
}

// Join authenticates s and admits it to the room. The session receives
// authenticated with a snapshot, followed by every event committed after it.
func (c *Coordinator) Join(ctx context.Context, s Session, token string) (events.TeamView, error) {
	user, err := c.identity.Authenticate(ctx, token)
	if err != nil {
		return events.TeamView{}, err
	}

	info := c.machine.Info()
	if info.Status == models.DraftStatusCancelled {
		return events.TeamView{}, drafterr.ErrDraftTerminated
	}

	view := events.TeamView{
		DraftID:        info.ID,
		UserID:         user.ID,
		IsCommissioner: user.ID == info.CommissionerID,
	}
	teamID, err := c.identity.ResolveTeamForUser(ctx, user.ID, info.LeagueID)
	switch {
	case err == nil:
		team, ok := c.machine.Team(teamID)
		if !ok {
			if !view.IsCommissioner {
				return events.TeamView{}, drafterr.New(drafterr.CodeUnauthorized, "team is not part of this draft")
			}
			break
		}
		view.TeamID = &team.ID
		view.TeamName = team.Name
		view.Position = team.Position
		view.AutoPick = team.AutoPick
	case errors.Is(err, drafterr.ErrNotFound) && view.IsCommissioner:
		// commissioners may run a draft without owning a team
	case errors.Is(err, drafterr.ErrNotFound):
		return events.TeamView{}, drafterr.New(drafterr.CodeUnauthorized, "user has no team in this league")
	default:
		return events.TeamView{}, err
	}

	now := c.clock.Now()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return events.TeamView{}, drafterr.ErrDraftTerminated
	}
	if _, dup := c.members[s.ID()]; dup {
		c.mu.Unlock()
		return events.TeamView{}, drafterr.New(drafterr.CodeInvalidState, "session already authenticated")
	}
	m := &member{
		session:      s,
		userID:       user.ID,
		teamID:       view.TeamID,
		commissioner: view.IsCommissioner,
		joinedAt:     now,
		pending:      true,
	}
	c.members[s.ID()] = m
	c.mu.Unlock()

	if c.beforeView != nil {
		c.beforeView()
	}
	// the machine lock is never taken while holding the room lock
	snap := c.machine.View(RecentPicks, UpcomingPicks)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.members[s.ID()] != m {
		return events.TeamView{}, drafterr.New(drafterr.CodeInvalidState, "session left while joining")
	}

	snapshot := c.snapshotLocked(snap)
	c.sendTo(s, events.AuthenticatedPayload{Team: view, Snapshot: snapshot})
	m.pending = false
	inSnapshot := make(map[string]bool, len(snapshot.Chat))
	for _, msg := range snapshot.Chat {
		inSnapshot[msg.ID] = true
	}
	for _, ev := range m.backlog {
		if ev.Version != 0 && ev.Version <= snap.Draft.Version {
			continue
		}
		if msg, ok := ev.Data.(events.ChatMessagePayload); ok && inSnapshot[msg.ID] {
			continue
		}
		frame, err := ev.Encode()
		if err != nil {
			continue
		}
		if !s.Send(frame) {
			c.dropLocked(s.ID(), m, "send buffer full")
			break
		}
	}
	m.backlog = nil

	log.Info().
		Str("draft_id", c.draftID.String()).
		Str("connection_id", s.ID()).
		Str("user_id", user.ID).
		Bool("commissioner", view.IsCommissioner).
		Msg("session joined draft room")

	c.broadcastLocked(events.New(c.draftID, 0, now, events.UserJoinedPayload{Member: c.memberViewLocked(user.ID)}))
	return view, nil
}

func (c *Coordinator) snapshotLocked(v engine.View) events.Snapshot {
	d := v.Draft
	return events.Snapshot{
		DraftID:       d.ID,
		DraftType:     d.DraftType,
		Status:        d.Status,
		Teams:         d.Teams,
		CurrentPick:   d.CurrentPick,
		TimeRemaining: int(v.Remaining.Round(time.Second) / time.Second),
		RecentPicks:   v.Recent,
		UpcomingPicks: v.Upcoming,
		TotalPicks:    d.TotalSlots(),
		Auction:       d.Auction,
		Stats:         d.Stats,
		Chat:          append([]events.ChatMessagePayload(nil), c.chat...),
		Members:       c.membersLocked(),
		Version:       d.Version,
	}
}

// Leave removes s from the room. It is idempotent.
func (c *Coordinator) Leave(ctx context.Context, s Session) {
	c.mu.Lock()
	m, ok := c.members[s.ID()]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.members, s.ID())

	teamStillHere := false
	for _, other := range c.members {
		if m.teamID != nil && other.teamID != nil && *other.teamID == *m.teamID {
			teamStillHere = true
		}
	}
	empty := len(c.members) == 0
	if !c.closed {
		left := c.memberViewLocked(m.userID)
		left.LastSeen = c.clock.Now()
		c.broadcastLocked(events.New(c.draftID, 0, c.clock.Now(), events.UserLeftPayload{Member: left}))
	}
	c.mu.Unlock()

	log.Info().
		Str("draft_id", c.draftID.String()).
		Str("connection_id", s.ID()).
		Str("user_id", m.userID).
		Msg("session left draft room")

	if m.teamID != nil && !teamStillHere {
		c.pauseOnDisconnect(ctx, *m.teamID)
	}
	if empty && c.onEmpty != nil {
		c.onEmpty(c.draftID)
	}
}

func (c *Coordinator) pauseOnDisconnect(ctx context.Context, teamID uuid.UUID) {
	info := c.machine.Info()
	if !info.Settings.PauseOnDisconnect || info.Status != models.DraftStatusInProgress || info.CurrentTeam != teamID {
		return
	}
	if err := c.machine.Pause(ctx, ReasonDisconnect, engine.ActorSystem); err != nil {
		log.Debug().Err(err).Str("draft_id", c.draftID.String()).Msg("pause on disconnect skipped")
	}
}

// Relay validates cmd on behalf of s and forwards it to the state machine.
func (c *Coordinator) Relay(ctx context.Context, s Session, cmd events.Command) error {
	c.mu.Lock()
	m, ok := c.members[s.ID()]
	var userID string
	var teamID *uuid.UUID
	var commissioner bool
	if ok {
		userID, teamID, commissioner = m.userID, m.teamID, m.commissioner
	}
	c.mu.Unlock()
	if !ok {
		return drafterr.New(drafterr.CodeUnauthorized, "authenticate first")
	}

	switch cmd := cmd.(type) {
	case events.MakePick:
		team, err := requireTeam(teamID)
		if err != nil {
			return err
		}
		if err := c.validatePlayer(ctx, cmd.PlayerID); err != nil {
			return err
		}
		_, err = c.machine.MakePick(ctx, team, cmd.PlayerID)
		return err

	case events.Nominate:
		team, err := requireTeam(teamID)
		if err != nil {
			return err
		}
		if err := c.validatePlayer(ctx, cmd.PlayerID); err != nil {
			return err
		}
		_, err = c.machine.Nominate(ctx, team, cmd.PlayerID, cmd.Amount)
		return err

	case events.Bid:
		team, err := requireTeam(teamID)
		if err != nil {
			return err
		}
		return c.machine.Bid(ctx, team, cmd.Amount)

	case events.ToggleAutoPick:
		team, err := requireTeam(teamID)
		if err != nil {
			return err
		}
		return c.machine.SetAutoPick(ctx, team, cmd.Enabled)

	case events.Pause:
		if !commissioner {
			return drafterr.New(drafterr.CodeUnauthorized, "only the commissioner can pause the draft")
		}
		reason := cmd.Reason
		if reason == "" {
			reason = ReasonCommissioner
		}
		return c.machine.Pause(ctx, reason, userID)

	case events.Resume:
		if !commissioner {
			return drafterr.New(drafterr.CodeUnauthorized, "only the commissioner can resume the draft")
		}
		return c.machine.Resume(ctx)

	case events.ChatMessage:
		c.chatMessage(userID, teamID, cmd.Text)
		return nil

	case events.Authenticate:
		return drafterr.New(drafterr.CodeInvalidState, "session already authenticated")
	}
	return drafterr.New(drafterr.CodeInvalidRequest, "unsupported command %s", cmd.CommandType())
}

func requireTeam(teamID *uuid.UUID) (uuid.UUID, error) {
	if teamID == nil {
		return uuid.Nil, drafterr.New(drafterr.CodeUnauthorized, "session has no team in this draft")
	}
	return *teamID, nil
}

func (c *Coordinator) validatePlayer(ctx context.Context, playerID uuid.UUID) error {
	if c.players == nil {
		return nil
	}
	_, err := c.players.Lookup(ctx, c.machine.Info().PlayerPool, playerID)
	return err
}

func (c *Coordinator) chatMessage(userID string, teamID *uuid.UUID, text string) {
	msg := events.ChatMessagePayload{
		ID:     uuid.NewString(),
		UserID: userID,
		TeamID: teamID,
		Text:   text,
		SentAt: c.clock.Now(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.chat = append(c.chat, msg)
	if over := len(c.chat) - c.chatSize; over > 0 {
		c.chat = append([]events.ChatMessagePayload(nil), c.chat[over:]...)
	}
	c.broadcastLocked(events.New(c.draftID, 0, msg.SentAt, msg))
}

// CloseAll closes every session and refuses new ones.
func (c *Coordinator) CloseAll(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	for id, m := range c.members {
		m.session.Close(reason)
		delete(c.members, id)
	}
}

// SessionCount is the number of connected sessions.
func (c *Coordinator) SessionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.members)
}

// Members lists connected users, one entry per user.
func (c *Coordinator) Members() []events.Member {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.membersLocked()
}

// Chat returns the chat history, oldest first.
func (c *Coordinator) Chat() []events.ChatMessagePayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]events.ChatMessagePayload(nil), c.chat...)
}

func (c *Coordinator) membersLocked() []events.Member {
	seen := make(map[string]bool, len(c.members))
	out := make([]events.Member, 0, len(c.members))
	for _, m := range c.members {
		if seen[m.userID] {
			continue
		}
		seen[m.userID] = true
		out = append(out, c.memberViewLocked(m.userID))
	}
	return out
}

// memberViewLocked aggregates the presence of every session of userID.
func (c *Coordinator) memberViewLocked(userID string) events.Member {
	view := events.Member{UserID: userID}
	for _, m := range c.members {
		if m.userID != userID {
			continue
		}
		view.Online = true
		if m.teamID != nil {
			view.TeamID = m.teamID
		}
		if m.joinedAt.After(view.LastSeen) {
			view.LastSeen = m.joinedAt
		}
	}
	return view
}
