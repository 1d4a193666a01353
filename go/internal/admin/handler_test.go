package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty/go/internal/draft/drafterr"
	"github.com/mcdev12/dynasty/go/internal/draft/outbox"
	"github.com/mcdev12/dynasty/go/internal/draft/registry"
	"github.com/mcdev12/dynasty/go/internal/models"
	"github.com/mcdev12/dynasty/go/internal/ranking"
	"github.com/mcdev12/dynasty/go/internal/ranking/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fakeDrafts struct {
	mu     sync.Mutex
	drafts map[uuid.UUID]*models.Draft
	err    error
}

func newFakeDrafts() *fakeDrafts {
	return &fakeDrafts{drafts: make(map[uuid.UUID]*models.Draft)}
}

func (f *fakeDrafts) Create(_ context.Context, req registry.CreateRequest) (*models.Draft, error) {
	if req.LeagueID == uuid.Nil {
		return nil, drafterr.New(drafterr.CodeInvalidRequest, "league_id is required")
	}
	d := &models.Draft{
		ID:          uuid.New(),
		LeagueID:    req.LeagueID,
		PlayerPool:  req.PlayerPool,
		DraftType:   req.DraftType,
		Status:      models.DraftStatusScheduled,
		Settings:    req.Settings,
		Teams:       req.Teams,
		ScheduledAt: req.ScheduledAt,
	}
	f.put(d)
	return d, nil
}

func (f *fakeDrafts) put(d *models.Draft) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts[d.ID] = d
}

func (f *fakeDrafts) Get(_ context.Context, id uuid.UUID) (*models.Draft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	d, ok := f.drafts[id]
	if !ok {
		return nil, drafterr.New(drafterr.CodeNotFound, "draft %s not found", id)
	}
	return d.Clone(), nil
}

func (f *fakeDrafts) Start(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drafts[id]
	if !ok {
		return drafterr.New(drafterr.CodeNotFound, "draft %s not found", id)
	}
	if d.Status != models.DraftStatusScheduled {
		return drafterr.New(drafterr.CodePreconditionFailed, "draft is %s", d.Status)
	}
	d.Status = models.DraftStatusInProgress
	return nil
}

func (f *fakeDrafts) Cancel(_ context.Context, id uuid.UUID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drafts[id]
	if !ok {
		return drafterr.New(drafterr.CodeNotFound, "draft %s not found", id)
	}
	d.Status = models.DraftStatusCancelled
	return nil
}

func (f *fakeDrafts) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.drafts)
}

type fakeEvents struct {
	healthy bool
}

func (f fakeEvents) Health(time.Duration) outbox.HealthStatus {
	return outbox.HealthStatus{Healthy: f.healthy, Stats: outbox.RelayStats{Published: 7}}
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestCreateDraft(t *testing.T) {
	drafts := newFakeDrafts()
	var scheduled []uuid.UUID
	h := NewHandler(Config{Drafts: drafts, Scheduled: func(id uuid.UUID) { scheduled = append(scheduled, id) }}).Routes()

	at := time.Date(2025, 9, 1, 18, 0, 0, 0, time.UTC)
	rec := do(t, h, http.MethodPost, "/drafts", registry.CreateRequest{
		LeagueID:    uuid.New(),
		DraftType:   models.DraftTypeSnake,
		Settings:    models.DraftSettings{Rounds: 15, TimePerPickSec: 90, AutoStart: true},
		ScheduledAt: &at,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var d models.Draft
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&d))
	assert.Equal(t, models.DraftStatusScheduled, d.Status)
	assert.Equal(t, []uuid.UUID{d.ID}, scheduled)

	rec = do(t, h, http.MethodPost, "/drafts", registry.CreateRequest{DraftType: models.DraftTypeSnake})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, drafterr.CodeInvalidRequest, decodeError(t, rec).Code)
	assert.Len(t, scheduled, 1)
}

func TestCreateDraftRejectsBadBody(t *testing.T) {
	h := NewHandler(Config{Drafts: newFakeDrafts()}).Routes()
	req := httptest.NewRequest(http.MethodPost, "/drafts", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, drafterr.CodeInvalidRequest, decodeError(t, rec).Code)
}

func TestDraftLifecycle(t *testing.T) {
	drafts := newFakeDrafts()
	h := NewHandler(Config{Drafts: drafts}).Routes()
	d := &models.Draft{ID: uuid.New(), Status: models.DraftStatusScheduled}
	drafts.put(d)
	base := "/drafts/" + d.ID.String()

	rec := do(t, h, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, base+"/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var started models.Draft
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&started))
	assert.Equal(t, models.DraftStatusInProgress, started.Status)

	rec = do(t, h, http.MethodPost, base+"/start", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, drafterr.CodePreconditionFailed, decodeError(t, rec).Code)

	rec = do(t, h, http.MethodPost, base+"/cancel", cancelRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, base+"/cancel", cancelRequest{Actor: "commish"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestDraftLookupErrors(t *testing.T) {
	drafts := newFakeDrafts()
	h := NewHandler(Config{Drafts: drafts}).Routes()

	rec := do(t, h, http.MethodGet, "/drafts/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/drafts/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, drafterr.CodeNotFound, decodeError(t, rec).Code)

	drafts.err = errors.New("connection refused")
	rec = do(t, h, http.MethodGet, "/drafts/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, drafterr.CodeInternal, resp.Code)
	assert.Equal(t, "internal error", resp.Message)
}

func TestSearchPlayersExcludesDrafted(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := mocks.NewMockSource(ctrl)
	pool := []models.RankedPlayer{
		{ID: uuid.New(), FullName: "Bijan Robinson", Position: "RB", Rank: 1},
		{ID: uuid.New(), FullName: "Ja'Marr Chase", Position: "WR", Rank: 2},
		{ID: uuid.New(), FullName: "Justin Jefferson", Position: "WR", Rank: 3},
		{ID: uuid.New(), FullName: "Josh Allen", Position: "QB", Rank: 4},
	}
	src.EXPECT().RankedPlayers(gomock.Any(), "nfl-2025").Return(pool, nil).Times(1)
	players, err := ranking.NewService(src, 4)
	require.NoError(t, err)

	drafts := newFakeDrafts()
	d := &models.Draft{
		ID:         uuid.New(),
		PlayerPool: "nfl-2025",
		Status:     models.DraftStatusInProgress,
		Picks:      []models.Pick{{PlayerID: pool[0].ID}},
	}
	drafts.put(d)
	h := NewHandler(Config{Drafts: drafts, Players: players}).Routes()
	base := "/drafts/" + d.ID.String() + "/players"

	rec := do(t, h, http.MethodGet, base+"?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got []models.RankedPlayer
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.Len(t, got, 2)
	assert.Equal(t, pool[1].ID, got[0].ID)
	assert.Equal(t, pool[2].ID, got[1].ID)

	rec = do(t, h, http.MethodGet, base+"?q=allen", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got = nil
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.NotEmpty(t, got)
	assert.Equal(t, pool[3].ID, got[0].ID)

	rec = do(t, h, http.MethodGet, base+"?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	drafts := newFakeDrafts()
	drafts.put(&models.Draft{ID: uuid.New()})
	h := NewHandler(Config{Drafts: drafts, Events: fakeEvents{healthy: true}}).Routes()

	rec := do(t, h, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.LiveDrafts)
	require.NotNil(t, resp.Events)
	assert.Equal(t, uint64(7), resp.Events.Stats.Published)
	assert.Nil(t, resp.Connections)

	h = NewHandler(Config{Drafts: drafts, Events: fakeEvents{}}).Routes()
	rec = do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServerAllowsCORS(t *testing.T) {
	drafts := newFakeDrafts()
	srv := NewServer(":0", NewHandler(Config{Drafts: drafts}).Routes(), nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://draft.example.com")
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
