// Package registry owns the live drafts of this process: one state machine
// and one room per draft, loaded on first use.
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/dynasty/go/internal/draft/drafterr"
	"github.com/mcdev12/dynasty/go/internal/draft/engine"
	"github.com/mcdev12/dynasty/go/internal/draft/events"
	"github.com/mcdev12/dynasty/go/internal/draft/order"
	"github.com/mcdev12/dynasty/go/internal/draft/room"
	"github.com/mcdev12/dynasty/go/internal/draft/store"
	"github.com/mcdev12/dynasty/go/internal/identity"
	"github.com/mcdev12/dynasty/go/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

const (
	// CloseCancelled is the close reason sent to sessions of a cancelled draft.
	CloseCancelled = "draft_cancelled"
	// CloseShutdown is sent to every session when the server stops.
	CloseShutdown = "server_shutdown"

	DefaultFinishedCacheSize = 1024
)

// Config holds the collaborators shared by every live draft.
type Config struct {
	Store    store.Store
	Saver    engine.Saver
	Selector engine.Selector
	Identity identity.Provider
	Players  room.PlayerLookup
	// Notifiers receive every committed event of every draft, after the room.
	Notifiers []engine.Notifier

	Clock        clockwork.Clock
	TickInterval time.Duration
	ChatHistory  int
	// FinishedCacheSize bounds the final snapshots kept for evicted drafts.
	// The store may lag behind them until the saver catches up.
	FinishedCacheSize int
}

// Entry is one live draft.
type Entry struct {
	Machine *engine.Machine
	Room    *room.Coordinator
}

// Registry is the DraftSessionRegistry.
type Registry struct {
	cfg Config

	mu       sync.Mutex
	entries  map[uuid.UUID]*Entry
	finished *lru.Cache
	loads    singleflight.Group
}

// New creates an empty registry.
func New(cfg Config) *Registry {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.FinishedCacheSize <= 0 {
		cfg.FinishedCacheSize = DefaultFinishedCacheSize
	}
	finished, err := lru.New(cfg.FinishedCacheSize)
	if err != nil {
		panic(err)
	}
	return &Registry{
		cfg:      cfg,
		entries:  make(map[uuid.UUID]*Entry),
		finished: finished,
	}
}

// CreateRequest describes a new draft.
type CreateRequest struct {
	LeagueID       uuid.UUID            `json:"league_id"`
	CommissionerID string               `json:"commissioner_id"`
	PlayerPool     string               `json:"player_pool"`
	DraftType      models.DraftType     `json:"draft_type"`
	Settings       models.DraftSettings `json:"settings"`
	// Teams may carry explicit 1-based positions; otherwise slice order is used.
	Teams       []models.DraftTeam `json:"teams"`
	ScheduledAt *time.Time         `json:"scheduled_at,omitempty"`
}

// Create validates req, generates the draft order and stores a scheduled draft.
func (r *Registry) Create(ctx context.Context, req CreateRequest) (*models.Draft, error) {
	if !req.DraftType.Valid() {
		return nil, drafterr.New(drafterr.CodeInvalidRequest, "unknown draft type %q", req.DraftType)
	}
	if req.LeagueID == uuid.Nil {
		return nil, drafterr.New(drafterr.CodeInvalidRequest, "league_id is required")
	}
	if req.Settings.TimePerPickSec <= 0 {
		return nil, drafterr.New(drafterr.CodeInvalidRequest, "time_per_pick_sec must be greater than 0")
	}
	if req.DraftType == models.DraftTypeAuction {
		if err := validateAuction(req.Settings); err != nil {
			return nil, err
		}
	}
	switch req.Settings.ExpiryPolicy {
	case "":
		req.Settings.ExpiryPolicy = models.ExpiryAutoPick
	case models.ExpiryAutoPick, models.ExpirySkip:
	default:
		return nil, drafterr.New(drafterr.CodeInvalidRequest, "unknown expiry policy %q", req.Settings.ExpiryPolicy)
	}

	teams := append([]models.DraftTeam(nil), req.Teams...)
	if err := assignPositions(teams); err != nil {
		return nil, err
	}
	ids := order.TeamsByPosition(teams)
	if err := order.Validate(ids, req.Settings.Rounds); err != nil {
		return nil, err
	}

	now := r.cfg.Clock.Now()
	d := &models.Draft{
		ID:             uuid.New(),
		LeagueID:       req.LeagueID,
		CommissionerID: req.CommissionerID,
		PlayerPool:     req.PlayerPool,
		DraftType:      req.DraftType,
		Status:         models.DraftStatusScheduled,
		Settings:       req.Settings,
		Teams:          teams,
		Order: order.Generate(req.DraftType, ids, req.Settings.Rounds, order.Options{
			ThirdRoundReversal: req.Settings.ThirdRoundReversal,
		}),
		ScheduledAt: req.ScheduledAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.cfg.Store.CreateDraft(ctx, d); err != nil {
		return nil, err
	}

	log.Info().
		Str("draft_id", d.ID.String()).
		Str("league_id", d.LeagueID.String()).
		Str("draft_type", string(d.DraftType)).
		Int("teams", len(d.Teams)).
		Int("rounds", d.Settings.Rounds).
		Msg("draft created")
	return d, nil
}

func validateAuction(s models.DraftSettings) error {
	if !s.BudgetPerTeam.IsPositive() {
		return drafterr.New(drafterr.CodeInvalidRequest, "budget_per_team must be greater than 0")
	}
	if !s.MinBid.IsPositive() {
		return drafterr.New(drafterr.CodeInvalidRequest, "min_bid must be greater than 0")
	}
	if s.MinBidIncrement.IsNegative() {
		return drafterr.New(drafterr.CodeInvalidRequest, "min_bid_increment cannot be negative")
	}
	if s.TimePerBidSec <= 0 {
		return drafterr.New(drafterr.CodeInvalidRequest, "time_per_bid_sec must be greater than 0")
	}
	if s.MinBid.Mul(decimal.NewFromInt(int64(s.Rounds))).GreaterThan(s.BudgetPerTeam) {
		return drafterr.New(drafterr.CodeInvalidRequest, "budget_per_team cannot fill %d roster spots at the minimum bid", s.Rounds)
	}
	return nil
}

// assignPositions fills missing positions from slice order and checks the
// result is 1..n without gaps.
func assignPositions(teams []models.DraftTeam) error {
	explicit := false
	for _, t := range teams {
		if t.Position != 0 {
			explicit = true
			break
		}
	}
	if !explicit {
		for i := range teams {
			teams[i].Position = i + 1
		}
		return nil
	}
	sort.SliceStable(teams, func(i, j int) bool { return teams[i].Position < teams[j].Position })
	for i, t := range teams {
		if t.Position != i+1 {
			return drafterr.New(drafterr.CodeInvalidRequest, "team positions must run from 1 to %d", len(teams))
		}
	}
	return nil
}

// Acquire returns the live entry of a draft, loading it from the store on
// first use. Concurrent loads of the same draft share one store read.
// Completed drafts are served from a fresh entry that is never kept resident.
func (r *Registry) Acquire(ctx context.Context, id uuid.UUID) (*Entry, error) {
	r.mu.Lock()
	e, ok := r.entries[id]
	r.mu.Unlock()
	if ok {
		return e, nil
	}

	v, err, _ := r.loads.Do(id.String(), func() (any, error) {
		r.mu.Lock()
		if e, ok := r.entries[id]; ok {
			r.mu.Unlock()
			return e, nil
		}
		r.mu.Unlock()

		d, err := r.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if d.Status == models.DraftStatusCancelled {
			return nil, drafterr.New(drafterr.CodeDraftTerminated, "draft %s was cancelled", id)
		}

		e := r.build(d)
		if d.Status.Terminal() {
			return e, nil
		}
		r.mu.Lock()
		r.entries[id] = e
		r.mu.Unlock()

		// the clock only runs once the entry is reachable
		e.Machine.Recover(ctx)

		log.Info().
			Str("draft_id", id.String()).
			Str("status", string(d.Status)).
			Int64("version", d.Version).
			Msg("draft loaded")
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

// load prefers the final snapshot of an evicted draft over the store, which
// may not have caught up with it yet.
func (r *Registry) load(ctx context.Context, id uuid.UUID) (*models.Draft, error) {
	if v, ok := r.finished.Get(id); ok {
		return v.(*models.Draft).Clone(), nil
	}
	return r.cfg.Store.LoadDraft(ctx, id)
}

func (r *Registry) build(d *models.Draft) *Entry {
	m := engine.New(d, engine.Config{
		Clock:        r.cfg.Clock,
		Selector:     r.cfg.Selector,
		Saver:        r.cfg.Saver,
		TickInterval: r.cfg.TickInterval,
	})
	rm := room.New(m, r.cfg.Identity, r.cfg.Players, room.Options{
		Clock:       r.cfg.Clock,
		ChatHistory: r.cfg.ChatHistory,
		OnEmpty:     r.onEmpty,
	})
	for _, n := range r.cfg.Notifiers {
		m.Subscribe(n)
	}
	id := d.ID
	m.Subscribe(engine.NotifierFunc(func(ev events.DraftEvent) {
		if ev.Type == events.TypeDraftCompleted {
			// the machine lock is held here
			go r.onEmpty(id)
		}
	}))
	return &Entry{Machine: m, Room: rm}
}

// Lookup returns the entry of a draft that is already live.
func (r *Registry) Lookup(id uuid.UUID) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	return e, ok
}

// Get returns the current state of a draft, live or stored.
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*models.Draft, error) {
	if e, ok := r.Lookup(id); ok {
		return e.Machine.Snapshot(), nil
	}
	return r.load(ctx, id)
}

// Start starts a scheduled draft.
func (r *Registry) Start(ctx context.Context, id uuid.UUID) error {
	e, err := r.Acquire(ctx, id)
	if err != nil {
		return err
	}
	return e.Machine.Start(ctx)
}

// Cancel cancels a draft, disconnects its sessions and evicts it.
func (r *Registry) Cancel(ctx context.Context, id uuid.UUID, actor string) error {
	e, err := r.Acquire(ctx, id)
	if err != nil {
		return err
	}
	if err := e.Machine.Cancel(ctx, actor); err != nil {
		return err
	}
	e.Room.CloseAll(CloseCancelled)
	r.evict(id, e)
	return nil
}

// onEmpty evicts a finished draft once nobody is watching it. It runs when
// the last session leaves and when the draft completes.
func (r *Registry) onEmpty(id uuid.UUID) {
	e, ok := r.Lookup(id)
	if !ok {
		return
	}
	if e.Machine.Info().Status.Terminal() && e.Room.SessionCount() == 0 {
		r.evict(id, e)
	}
}

// evict drops a live draft. A terminal draft leaves its final snapshot
// behind so a later Acquire or Get cannot see an older stored version.
func (r *Registry) evict(id uuid.UUID, e *Entry) {
	snap := e.Machine.Snapshot()
	r.mu.Lock()
	if snap.Status.Terminal() {
		r.finished.Add(id, snap)
	}
	if cur, ok := r.entries[id]; ok && cur == e {
		delete(r.entries, id)
	}
	r.mu.Unlock()
	e.Machine.Stop()

	log.Info().
		Str("draft_id", id.String()).
		Msg("draft evicted")
}

// Len is the number of live drafts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Shutdown stops every clock and disconnects every session. Draft state is
// left as is so the drafts recover on the next start.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	entries := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.entries = make(map[uuid.UUID]*Entry)
	r.mu.Unlock()

	for _, e := range entries {
		e.Machine.Stop()
		e.Room.CloseAll(CloseShutdown)
	}
	log.Info().Int("drafts", len(entries)).Msg("registry shut down")
}
