package room

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/dynasty/go/internal/draft/drafterr"
	"github.com/mcdev12/dynasty/go/internal/draft/engine"
	"github.com/mcdev12/dynasty/go/internal/draft/events"
	"github.com/mcdev12/dynasty/go/internal/draft/order"
	"github.com/mcdev12/dynasty/go/internal/identity"
	"github.com/mcdev12/dynasty/go/internal/identity/mocks"
	"github.com/mcdev12/dynasty/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fakeSession struct {
	id string

	mu     sync.Mutex
	frames [][]byte
	full   bool
	closed string
}

func newSession(id string) *fakeSession { return &fakeSession{id: id} }

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) Send(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full || s.closed != "" {
		return false
	}
	s.frames = append(s.frames, frame)
	return true
}

func (s *fakeSession) Close(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed == "" {
		s.closed = reason
	}
}

func (s *fakeSession) setFull() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.full = true
}

func (s *fakeSession) closedWith() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSession) received(t *testing.T) []events.DraftEvent {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.DraftEvent, 0, len(s.frames))
	for _, f := range s.frames {
		ev, err := events.Decode(f)
		require.NoError(t, err)
		out = append(out, ev)
	}
	return out
}

func (s *fakeSession) types(t *testing.T) []events.EventType {
	var out []events.EventType
	for _, ev := range s.received(t) {
		out = append(out, ev.Type)
	}
	return out
}

func (s *fakeSession) last(t *testing.T, typ events.EventType) (events.DraftEvent, bool) {
	evs := s.received(t)
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].Type == typ {
			return evs[i], true
		}
	}
	return events.DraftEvent{}, false
}

type playersFunc func(ctx context.Context, pool string, id uuid.UUID) (models.RankedPlayer, error)

func (f playersFunc) Lookup(ctx context.Context, pool string, id uuid.UUID) (models.RankedPlayer, error) {
	return f(ctx, pool, id)
}

type fixture struct {
	draft   *models.Draft
	fc      *clockwork.FakeClock
	machine *engine.Machine
	room    *Coordinator
	unknown uuid.UUID
	emptied chan uuid.UUID
}

func newFixture(t *testing.T, mutate func(*models.Draft)) *fixture {
	t.Helper()
	d := &models.Draft{
		ID:             uuid.New(),
		LeagueID:       uuid.New(),
		CommissionerID: "commish",
		PlayerPool:     "nfl-2025",
		DraftType:      models.DraftTypeSnake,
		Status:         models.DraftStatusScheduled,
		Settings:       models.DraftSettings{Rounds: 2, TimePerPickSec: 60},
	}
	for i := 1; i <= 4; i++ {
		d.Teams = append(d.Teams, models.DraftTeam{
			ID:       uuid.New(),
			Name:     fmt.Sprintf("Team %d", i),
			OwnerID:  fmt.Sprintf("owner-%d", i),
			Position: i,
		})
	}
	if mutate != nil {
		mutate(d)
	}
	d.Order = order.Generate(d.DraftType, order.TeamsByPosition(d.Teams), d.Settings.Rounds, order.Options{})

	ctrl := gomock.NewController(t)
	ident := mocks.NewMockProvider(ctrl)
	ident.EXPECT().Authenticate(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, token string) (identity.User, error) {
			if token == "bad" {
				return identity.User{}, drafterr.New(drafterr.CodeUnauthorized, "invalid token")
			}
			return identity.User{ID: token}, nil
		}).AnyTimes()
	ident.EXPECT().ResolveTeamForUser(gomock.Any(), gomock.Any(), d.LeagueID).DoAndReturn(
		func(_ context.Context, userID string, _ uuid.UUID) (uuid.UUID, error) {
			for _, team := range d.Teams {
				if team.OwnerID == userID {
					return team.ID, nil
				}
			}
			return uuid.Nil, drafterr.New(drafterr.CodeNotFound, "no team")
		}).AnyTimes()

	f := &fixture{
		draft:   d,
		fc:      clockwork.NewFakeClockAt(time.Date(2025, 9, 4, 19, 0, 0, 0, time.UTC)),
		unknown: uuid.New(),
		emptied: make(chan uuid.UUID, 1),
	}
	f.machine = engine.New(d, engine.Config{Clock: f.fc})
	t.Cleanup(f.machine.Stop)

	players := playersFunc(func(_ context.Context, _ string, id uuid.UUID) (models.RankedPlayer, error) {
		if id == f.unknown {
			return models.RankedPlayer{}, drafterr.New(drafterr.CodeNotFound, "player not in pool")
		}
		return models.RankedPlayer{ID: id}, nil
	})
	f.room = New(f.machine, ident, players, Options{
		Clock:       f.fc,
		ChatHistory: 3,
		OnEmpty:     func(id uuid.UUID) { f.emptied <- id },
	})
	return f
}

func (f *fixture) join(t *testing.T, id, token string) *fakeSession {
	t.Helper()
	s := newSession(id)
	_, err := f.room.Join(context.Background(), s, token)
	require.NoError(t, err)
	return s
}

func frame(t *testing.T, cmd events.Command) []byte {
	t.Helper()
	b, err := events.EncodeCommand(cmd)
	require.NoError(t, err)
	return b
}

func TestJoinSendsSnapshotFirst(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.machine.Start(context.Background()))

	s := newSession("c1")
	f.room.Handle(context.Background(), s, frame(t, events.Authenticate{Token: "owner-2"}))

	got := s.received(t)
	require.GreaterOrEqual(t, len(got), 2)
	require.Equal(t, events.TypeAuthenticated, got[0].Type)
	auth := got[0].Data.(events.AuthenticatedPayload)

	require.NotNil(t, auth.Team.TeamID)
	assert.Equal(t, f.draft.Teams[1].ID, *auth.Team.TeamID)
	assert.Equal(t, 2, auth.Team.Position)
	assert.False(t, auth.Team.IsCommissioner)

	snap := auth.Snapshot
	assert.Equal(t, models.DraftStatusInProgress, snap.Status)
	require.NotNil(t, snap.CurrentPick)
	assert.Equal(t, f.draft.Teams[0].ID, snap.CurrentPick.TeamID)
	assert.Equal(t, 60, snap.TimeRemaining)
	assert.Len(t, snap.UpcomingPicks, 8)
	assert.Equal(t, 8, snap.TotalPicks)
	require.Len(t, snap.Members, 1)
	assert.Equal(t, "owner-2", snap.Members[0].UserID)

	assert.Equal(t, events.TypeUserJoined, got[1].Type)
}

func TestJoinRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.room.Join(ctx, newSession("a"), "bad")
	assert.ErrorIs(t, err, drafterr.ErrUnauthorized)

	_, err = f.room.Join(ctx, newSession("b"), "spectator")
	assert.ErrorIs(t, err, drafterr.ErrUnauthorized, "users without a team cannot join")

	view, err := f.room.Join(ctx, newSession("c"), "commish")
	require.NoError(t, err)
	assert.True(t, view.IsCommissioner)
	assert.Nil(t, view.TeamID)

	s := f.join(t, "d", "owner-1")
	_, err = f.room.Join(ctx, s, "owner-1")
	assert.ErrorIs(t, err, drafterr.ErrInvalidState)

	require.NoError(t, f.machine.Cancel(ctx, "commish"))
	_, err = f.room.Join(ctx, newSession("e"), "owner-3")
	assert.ErrorIs(t, err, drafterr.ErrDraftTerminated)
}

func TestCommandsBeforeAuthenticate(t *testing.T) {
	f := newFixture(t, nil)
	s := newSession("c1")

	f.room.Handle(context.Background(), s, frame(t, events.MakePick{PlayerID: uuid.New()}))
	ev, ok := s.last(t, events.TypeError)
	require.True(t, ok)
	assert.Equal(t, string(drafterr.CodeUnauthorized), ev.Data.(events.ErrorPayload).Code)

	f.room.Handle(context.Background(), s, []byte(`{"type":"nope"}`))
	ev, _ = s.last(t, events.TypeError)
	assert.Equal(t, string(drafterr.CodeInvalidRequest), ev.Data.(events.ErrorPayload).Code)
}

func TestPickIsBroadcastAndErrorsStayPrivate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	require.NoError(t, f.machine.Start(ctx))

	a := f.join(t, "a", "owner-1")
	b := f.join(t, "b", "owner-2")

	player := uuid.New()
	f.room.Handle(ctx, b, frame(t, events.MakePick{PlayerID: player}))
	ev, ok := b.last(t, events.TypeError)
	require.True(t, ok)
	assert.Equal(t, string(drafterr.CodeWrongTurn), ev.Data.(events.ErrorPayload).Code)
	_, ok = a.last(t, events.TypeError)
	assert.False(t, ok, "errors go to the sender only")

	f.room.Handle(ctx, a, frame(t, events.MakePick{PlayerID: f.unknown}))
	ev, _ = a.last(t, events.TypeError)
	assert.Equal(t, string(drafterr.CodeNotFound), ev.Data.(events.ErrorPayload).Code)

	f.room.Handle(ctx, a, frame(t, events.MakePick{PlayerID: player}))
	for _, s := range []*fakeSession{a, b} {
		ev, ok := s.last(t, events.TypePickMade)
		require.True(t, ok)
		made := ev.Data.(events.PickMadePayload)
		assert.Equal(t, player, made.Pick.PlayerID)
		assert.Equal(t, f.draft.Teams[1].ID, made.CurrentPick.TeamID)
	}
}

func TestPauseAndResumeRequireCommissioner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	require.NoError(t, f.machine.Start(ctx))

	owner := f.join(t, "a", "owner-1")
	commish := f.join(t, "c", "commish")

	f.room.Handle(ctx, owner, frame(t, events.Pause{}))
	ev, _ := owner.last(t, events.TypeError)
	assert.Equal(t, string(drafterr.CodeUnauthorized), ev.Data.(events.ErrorPayload).Code)

	f.room.Handle(ctx, commish, frame(t, events.Pause{}))
	paused, ok := owner.last(t, events.TypePaused)
	require.True(t, ok)
	assert.Equal(t, ReasonCommissioner, paused.Data.(events.PausedPayload).Reason)
	assert.Equal(t, "commish", paused.Data.(events.PausedPayload).By)

	f.room.Handle(ctx, commish, frame(t, events.Resume{}))
	_, ok = owner.last(t, events.TypeResumed)
	assert.True(t, ok)

	f.room.Handle(ctx, commish, frame(t, events.MakePick{PlayerID: uuid.New()}))
	ev, _ = commish.last(t, events.TypeError)
	assert.Equal(t, string(drafterr.CodeUnauthorized), ev.Data.(events.ErrorPayload).Code, "commissioner has no team")
}

func TestChatKeepsRingBuffer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	a := f.join(t, "a", "owner-1")

	for i := 1; i <= 5; i++ {
		f.room.Handle(ctx, a, frame(t, events.ChatMessage{Text: fmt.Sprintf("msg %d", i)}))
	}

	chat := f.room.Chat()
	require.Len(t, chat, 3)
	assert.Equal(t, "msg 3", chat[0].Text)
	assert.Equal(t, "msg 5", chat[2].Text)

	late := f.join(t, "b", "owner-2")
	auth := late.received(t)[0].Data.(events.AuthenticatedPayload)
	assert.Len(t, auth.Snapshot.Chat, 3)
}

func TestSlowSessionIsClosed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	fast := f.join(t, "a", "owner-1")
	slow := f.join(t, "b", "owner-2")
	slow.setFull()

	require.NoError(t, f.machine.Start(ctx))

	assert.NotEmpty(t, slow.closedWith())
	assert.Empty(t, fast.closedWith())
	_, ok := fast.last(t, events.TypeDraftStarted)
	assert.True(t, ok)
}

func TestPauseOnDisconnect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(d *models.Draft) { d.Settings.PauseOnDisconnect = true })
	require.NoError(t, f.machine.Start(ctx))

	onClock := f.join(t, "a", "owner-1")
	other := f.join(t, "b", "owner-2")

	f.room.Leave(ctx, other)
	assert.Equal(t, models.DraftStatusInProgress, f.machine.Info().Status, "team not on the clock")

	f.room.Leave(ctx, onClock)
	f.room.Leave(ctx, onClock)
	snap := f.machine.Snapshot()
	assert.Equal(t, models.DraftStatusPaused, snap.Status)
	require.NotNil(t, snap.OpenPause())
	assert.Equal(t, ReasonDisconnect, snap.OpenPause().Reason)
	assert.Equal(t, engine.ActorSystem, snap.OpenPause().Actor)

	select {
	case id := <-f.emptied:
		assert.Equal(t, f.draft.ID, id)
	default:
		t.Fatal("empty room was not reported")
	}
}

func TestPresence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	a := f.join(t, "a", "owner-1")
	b1 := f.join(t, "b1", "owner-2")
	f.join(t, "b2", "owner-2")

	assert.Len(t, f.room.Members(), 2)
	assert.Equal(t, 3, f.room.SessionCount())

	f.room.Leave(ctx, b1)
	left, ok := a.last(t, events.TypeUserLeft)
	require.True(t, ok)
	assert.True(t, left.Data.(events.UserLeftPayload).Member.Online, "owner-2 still has a session")

	f.room.CloseAll("draft cancelled")
	assert.Equal(t, "draft cancelled", a.closedWith())
	assert.Equal(t, 0, f.room.SessionCount())
}

func TestJoinWindowEventsAreNotRepeated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	require.NoError(t, f.machine.Start(ctx))
	a := f.join(t, "a", "owner-1")

	player := uuid.New()
	f.room.beforeView = func() {
		f.room.Handle(ctx, a, frame(t, events.ChatMessage{Text: "on the clock"}))
		f.room.Handle(ctx, a, frame(t, events.MakePick{PlayerID: player}))
	}
	late := f.join(t, "b", "owner-2")
	f.room.beforeView = nil

	got := late.received(t)
	require.NotEmpty(t, got)
	require.Equal(t, events.TypeAuthenticated, got[0].Type)
	snap := got[0].Data.(events.AuthenticatedPayload).Snapshot
	require.Len(t, snap.Chat, 1)
	assert.Equal(t, "on the clock", snap.Chat[0].Text)
	require.Len(t, snap.RecentPicks, 1)
	assert.Equal(t, player, snap.RecentPicks[0].PlayerID)

	types := late.types(t)
	assert.NotContains(t, types, events.TypeChatMessage, "chat is already in the snapshot")
	assert.NotContains(t, types, events.TypePickMade, "pick is already in the snapshot")

	// the first session saw both live
	_, ok := a.last(t, events.TypeChatMessage)
	assert.True(t, ok)
	_, ok = a.last(t, events.TypePickMade)
	assert.True(t, ok)
}

func TestJoinBacklogOverflowClosesSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	a := f.join(t, "a", "owner-1")

	f.room.beforeView = func() {
		for i := 0; i <= maxBacklog; i++ {
			f.room.Handle(ctx, a, frame(t, events.ChatMessage{Text: fmt.Sprintf("msg %d", i)}))
		}
	}
	late := newSession("b")
	_, err := f.room.Join(ctx, late, "owner-2")
	f.room.beforeView = nil
	require.NoError(t, err)

	assert.Equal(t, "backlog full", late.closedWith())
	assert.Empty(t, a.closedWith())
}
