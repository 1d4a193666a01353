package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/dynasty/go/internal/draft/drafterr"
	"github.com/mcdev12/dynasty/go/internal/draft/engine"
	"github.com/mcdev12/dynasty/go/internal/draft/events"
	"github.com/mcdev12/dynasty/go/internal/draft/store"
	"github.com/mcdev12/dynasty/go/internal/draft/store/mocks"
	idmocks "github.com/mcdev12/dynasty/go/internal/identity/mocks"
	"github.com/mcdev12/dynasty/go/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var t0 = time.Date(2025, 8, 30, 19, 0, 0, 0, time.UTC)

// memStore is a map-backed store.Store that also acts as the engine's saver.
type memStore struct {
	mu     sync.Mutex
	drafts map[uuid.UUID]*models.Draft
	loads  atomic.Int32
}

func newMemStore() *memStore {
	return &memStore{drafts: make(map[uuid.UUID]*models.Draft)}
}

func (s *memStore) CreateDraft(_ context.Context, d *models.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.drafts[d.ID]; ok {
		return drafterr.ErrPreconditionFailed
	}
	s.drafts[d.ID] = d.Clone()
	return nil
}

func (s *memStore) LoadDraft(_ context.Context, id uuid.UUID) (*models.Draft, error) {
	s.loads.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[id]
	if !ok {
		return nil, drafterr.New(drafterr.CodeNotFound, "draft %s not found", id)
	}
	return d.Clone(), nil
}

func (s *memStore) SaveDraft(_ context.Context, d *models.Draft) error {
	s.Save(d)
	return nil
}

func (s *memStore) Save(d *models.Draft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.drafts[d.ID]; !ok || cur.Version < d.Version {
		s.drafts[d.ID] = d.Clone()
	}
}

func (s *memStore) DueScheduled(context.Context, time.Time) ([]uuid.UUID, error) { return nil, nil }

func (s *memStore) NextScheduled(context.Context) (time.Time, bool, error) {
	return time.Time{}, false, nil
}

func (s *memStore) get(id uuid.UUID) *models.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drafts[id].Clone()
}

type fixture struct {
	store    *memStore
	registry *Registry
	fc       *clockwork.FakeClock
	events   chan events.DraftEvent
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithSaver(t, func(s *memStore) engine.Saver { return s })
}

// newUnsavedFixture queues snapshots in a saver that never writes, as if the
// store were lagging behind.
func newUnsavedFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithSaver(t, func(s *memStore) engine.Saver {
		return store.NewSaver(s, store.DefaultSaverConfig())
	})
}

func newFixtureWithSaver(t *testing.T, saver func(*memStore) engine.Saver) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &fixture{
		store:  newMemStore(),
		fc:     clockwork.NewFakeClockAt(t0),
		events: make(chan events.DraftEvent, 64),
	}
	f.registry = New(Config{
		Store:     f.store,
		Saver:     saver(f.store),
		Identity:  idmocks.NewMockProvider(ctrl),
		Notifiers: []engine.Notifier{engine.NotifierFunc(func(ev events.DraftEvent) { f.events <- ev })},
		Clock:     f.fc,
	})
	return f
}

func teams(n int) []models.DraftTeam {
	out := make([]models.DraftTeam, n)
	for i := range out {
		out[i] = models.DraftTeam{ID: uuid.New(), Name: "Team", OwnerID: uuid.NewString()}
	}
	return out
}

func snakeRequest(n int) CreateRequest {
	return CreateRequest{
		LeagueID:       uuid.New(),
		CommissionerID: "commish",
		PlayerPool:     "nfl-2025",
		DraftType:      models.DraftTypeSnake,
		Settings:       models.DraftSettings{Rounds: 15, TimePerPickSec: 90},
		Teams:          teams(n),
	}
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.registry.Create(ctx, snakeRequest(10))
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusScheduled, d.Status)
	assert.Equal(t, models.ExpiryAutoPick, d.Settings.ExpiryPolicy)
	assert.Len(t, d.Order, 150)
	assert.Equal(t, d.Teams[9].ID, d.Order[10].TeamID, "round 2 starts with the last team")
	for i, team := range d.Teams {
		assert.Equal(t, i+1, team.Position)
	}

	stored := f.store.get(d.ID)
	require.NotNil(t, stored)
	assert.Equal(t, d.Order, stored.Order)
}

func TestCreateRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := map[string]struct {
		mutate func(*CreateRequest)
		code   drafterr.Code
	}{
		"too few teams": {
			mutate: func(r *CreateRequest) { r.Teams = r.Teams[:3] },
			code:   drafterr.CodePreconditionFailed,
		},
		"zero rounds": {
			mutate: func(r *CreateRequest) { r.Settings.Rounds = 0 },
			code:   drafterr.CodePreconditionFailed,
		},
		"unknown type": {
			mutate: func(r *CreateRequest) { r.DraftType = "keeper" },
			code:   drafterr.CodeInvalidRequest,
		},
		"no pick time": {
			mutate: func(r *CreateRequest) { r.Settings.TimePerPickSec = 0 },
			code:   drafterr.CodeInvalidRequest,
		},
		"gap in positions": {
			mutate: func(r *CreateRequest) {
				for i := range r.Teams {
					r.Teams[i].Position = i + 2
				}
			},
			code: drafterr.CodeInvalidRequest,
		},
		"auction without budget": {
			mutate: func(r *CreateRequest) { r.DraftType = models.DraftTypeAuction },
			code:   drafterr.CodeInvalidRequest,
		},
		"auction budget too small": {
			mutate: func(r *CreateRequest) {
				r.DraftType = models.DraftTypeAuction
				r.Settings.BudgetPerTeam = decimal.NewFromInt(10)
				r.Settings.MinBid = decimal.NewFromInt(1)
				r.Settings.TimePerBidSec = 10
			},
			code: drafterr.CodeInvalidRequest,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			req := snakeRequest(10)
			tc.mutate(&req)
			_, err := f.registry.Create(ctx, req)
			require.Error(t, err)
			assert.Equal(t, tc.code, drafterr.CodeOf(err))
		})
	}
}

func TestAcquireLoadsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d, err := f.registry.Create(ctx, snakeRequest(4))
	require.NoError(t, err)

	var wg sync.WaitGroup
	entries := make([]*Entry, 16)
	for i := range entries {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := f.registry.Acquire(ctx, d.ID)
			assert.NoError(t, err)
			entries[i] = e
		}(i)
	}
	wg.Wait()

	for _, e := range entries[1:] {
		assert.Same(t, entries[0], e)
	}
	assert.Equal(t, 1, f.registry.Len())
	assert.Equal(t, int32(1), f.store.loads.Load())
}

func TestAcquireSharesOneStoreRead(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	d := &models.Draft{ID: uuid.New(), Status: models.DraftStatusScheduled, Teams: teams(4)}

	release := make(chan struct{})
	st.EXPECT().LoadDraft(gomock.Any(), d.ID).DoAndReturn(func(context.Context, uuid.UUID) (*models.Draft, error) {
		<-release
		return d.Clone(), nil
	}).Times(1)

	r := New(Config{Store: st, Identity: idmocks.NewMockProvider(ctrl), Clock: clockwork.NewFakeClockAt(t0)})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Acquire(context.Background(), d.ID)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
}

func TestAcquireErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.registry.Acquire(ctx, uuid.New())
	assert.ErrorIs(t, err, drafterr.ErrNotFound)

	cancelled := &models.Draft{ID: uuid.New(), Status: models.DraftStatusCancelled}
	require.NoError(t, f.store.CreateDraft(ctx, cancelled))
	_, err = f.registry.Acquire(ctx, cancelled.ID)
	assert.ErrorIs(t, err, drafterr.ErrDraftTerminated)
	assert.Equal(t, 0, f.registry.Len())
}

func TestStartAndCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d, err := f.registry.Create(ctx, snakeRequest(4))
	require.NoError(t, err)

	require.NoError(t, f.registry.Start(ctx, d.ID))
	assert.Equal(t, events.TypeDraftStarted, (<-f.events).Type)

	live, err := f.registry.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusInProgress, live.Status)
	assert.Equal(t, models.DraftStatusInProgress, f.store.get(d.ID).Status, "saver sees the commit")

	err = f.registry.Start(ctx, d.ID)
	assert.Equal(t, drafterr.CodePreconditionFailed, drafterr.CodeOf(err))

	require.NoError(t, f.registry.Cancel(ctx, d.ID, "commish"))
	assert.Equal(t, events.TypeDraftCancelled, (<-f.events).Type)
	_, ok := f.registry.Lookup(d.ID)
	assert.False(t, ok, "cancelled drafts are evicted")

	_, err = f.registry.Acquire(ctx, d.ID)
	assert.ErrorIs(t, err, drafterr.ErrDraftTerminated)

	stored, err := f.registry.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusCancelled, stored.Status)
}

func TestFinishedDraftEvictedWhenEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	live, err := f.registry.Create(ctx, snakeRequest(4))
	require.NoError(t, err)
	done := &models.Draft{ID: uuid.New(), Status: models.DraftStatusCompleted, Teams: teams(4)}
	require.NoError(t, f.store.CreateDraft(ctx, done))

	for _, id := range []uuid.UUID{live.ID, done.ID} {
		_, err := f.registry.Acquire(ctx, id)
		require.NoError(t, err)
	}
	_, ok := f.registry.Lookup(done.ID)
	assert.False(t, ok, "completed drafts are not kept resident")

	f.registry.onEmpty(live.ID)
	_, ok = f.registry.Lookup(live.ID)
	assert.True(t, ok, "scheduled drafts stay loaded")
}

func TestCancelledDraftStaysCancelledBeforeSave(t *testing.T) {
	f := newUnsavedFixture(t)
	ctx := context.Background()
	d, err := f.registry.Create(ctx, snakeRequest(4))
	require.NoError(t, err)

	require.NoError(t, f.registry.Start(ctx, d.ID))
	require.NoError(t, f.registry.Cancel(ctx, d.ID, "commish"))
	require.Equal(t, models.DraftStatusScheduled, f.store.get(d.ID).Status, "nothing was written")

	_, err = f.registry.Acquire(ctx, d.ID)
	assert.ErrorIs(t, err, drafterr.ErrDraftTerminated)
	assert.ErrorIs(t, f.registry.Start(ctx, d.ID), drafterr.ErrDraftTerminated)
	assert.Equal(t, 0, f.registry.Len())

	got, err := f.registry.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusCancelled, got.Status)
}

func TestCompletedDraftEvictedWithoutSessions(t *testing.T) {
	f := newUnsavedFixture(t)
	ctx := context.Background()
	req := snakeRequest(4)
	req.Settings.Rounds = 1
	d, err := f.registry.Create(ctx, req)
	require.NoError(t, err)
	require.NoError(t, f.registry.Start(ctx, d.ID))

	e, ok := f.registry.Lookup(d.ID)
	require.True(t, ok)
	for _, slot := range d.Order {
		_, err := e.Machine.MakePick(ctx, slot.TeamID, uuid.New())
		require.NoError(t, err)
	}
	require.Equal(t, models.DraftStatusCompleted, e.Machine.Info().Status)

	assert.Eventually(t, func() bool { return f.registry.Len() == 0 }, time.Second, time.Millisecond)

	// the store still holds the scheduled draft; the final snapshot wins
	got, err := f.registry.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusCompleted, got.Status)
	assert.Len(t, got.Picks, 4)

	again, err := f.registry.Acquire(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusCompleted, again.Machine.Info().Status)
	assert.Equal(t, 0, f.registry.Len())
	assert.ErrorIs(t, again.Machine.Start(ctx), drafterr.ErrPreconditionFailed)
}

func TestShutdown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d, err := f.registry.Create(ctx, snakeRequest(4))
	require.NoError(t, err)
	require.NoError(t, f.registry.Start(ctx, d.ID))

	f.registry.Shutdown()
	assert.Equal(t, 0, f.registry.Len())

	// the stored draft is still in progress and comes back on the next acquire
	e, err := f.registry.Acquire(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusInProgress, e.Machine.Info().Status)
}
