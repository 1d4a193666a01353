package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mcdev12/dynasty/go/internal/draft/drafterr"
	"github.com/mcdev12/dynasty/go/internal/models"
	"github.com/mcdev12/dynasty/go/internal/sqlutil"
	"github.com/rs/zerolog/log"
	"github.com/sqlc-dev/pqtype"
)

// ScheduledChannel is notified with the draft id whenever a draft with auto
// start is written in the scheduled state.
const ScheduledChannel = "draft_scheduled"

// Schema creates the tables used by Postgres. It is safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS drafts (
    id           UUID PRIMARY KEY,
    league_id    UUID NOT NULL,
    draft_type   TEXT NOT NULL,
    status       TEXT NOT NULL,
    version      BIGINT NOT NULL,
    auto_start   BOOLEAN NOT NULL DEFAULT FALSE,
    scheduled_at TIMESTAMPTZ,
    state        JSONB NOT NULL,
    auction      JSONB,
    updated_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS drafts_auto_start_idx
    ON drafts (scheduled_at) WHERE status = 'scheduled' AND auto_start;

CREATE TABLE IF NOT EXISTS draft_picks (
    id           UUID PRIMARY KEY,
    draft_id     UUID NOT NULL REFERENCES drafts (id) ON DELETE CASCADE,
    round        INT NOT NULL,
    pick         INT NOT NULL,
    overall_pick INT NOT NULL,
    team_id      UUID NOT NULL,
    player_id    UUID NOT NULL,
    is_auto_pick BOOLEAN NOT NULL,
    bid_amount   NUMERIC,
    picked_at    TIMESTAMPTZ NOT NULL,
    UNIQUE (draft_id, overall_pick)
);

CREATE OR REPLACE FUNCTION notify_draft_scheduled() RETURNS trigger AS $$
BEGIN
    IF NEW.status = 'scheduled' AND NEW.auto_start THEN
        PERFORM pg_notify('draft_scheduled', NEW.id::text);
    END IF;
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS drafts_scheduled_notify ON drafts;
CREATE TRIGGER drafts_scheduled_notify
    AFTER INSERT OR UPDATE OF status, scheduled_at, auto_start ON drafts
    FOR EACH ROW EXECUTE FUNCTION notify_draft_scheduled();
`

// DB is the part of pgxpool.Pool the store needs.
type DB interface {
	sqlutil.TxBeginner
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres keeps the aggregate as JSONB with the auction state in its own
// nullable column, and mirrors picks into draft_picks for reporting.
type Postgres struct {
	db DB
}

// NewPostgres creates a Postgres-backed store.
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate applies Schema.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply draft schema: %w", err)
	}
	return nil
}

type draftRow struct {
	ID          uuid.UUID
	LeagueID    uuid.UUID
	DraftType   string
	Status      string
	Version     int64
	AutoStart   bool
	ScheduledAt *time.Time
	State       []byte
	Auction     pqtype.NullRawMessage
	UpdatedAt   time.Time
}

func encodeDraft(d *models.Draft) (draftRow, error) {
	body := *d
	body.Auction = nil
	state, err := json.Marshal(&body)
	if err != nil {
		return draftRow{}, fmt.Errorf("marshal draft: %w", err)
	}
	var auction pqtype.NullRawMessage
	if d.Auction != nil {
		if auction, err = sqlutil.ToNullRawMessage(d.Auction); err != nil {
			return draftRow{}, err
		}
	}
	return draftRow{
		ID:          d.ID,
		LeagueID:    d.LeagueID,
		DraftType:   string(d.DraftType),
		Status:      string(d.Status),
		Version:     d.Version,
		AutoStart:   d.Settings.AutoStart,
		ScheduledAt: sqlutil.UTC(d.ScheduledAt),
		State:       state,
		Auction:     auction,
		UpdatedAt:   d.UpdatedAt.UTC(),
	}, nil
}

func decodeDraft(state []byte, auction pqtype.NullRawMessage) (*models.Draft, error) {
	var d models.Draft
	if err := json.Unmarshal(state, &d); err != nil {
		return nil, fmt.Errorf("unmarshal draft: %w", err)
	}
	var a models.AuctionState
	ok, err := sqlutil.FromNullRawMessage(auction, &a)
	if err != nil {
		return nil, err
	}
	if ok {
		d.Auction = &a
	}
	return &d, nil
}

const insertDraft = `
INSERT INTO drafts (id, league_id, draft_type, status, version, auto_start, scheduled_at, state, auction, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// CreateDraft implements Store.
func (p *Postgres) CreateDraft(ctx context.Context, d *models.Draft) error {
	row, err := encodeDraft(d)
	if err != nil {
		return err
	}
	tag, err := p.db.Exec(ctx, insertDraft+` ON CONFLICT (id) DO NOTHING`, row.args()...)
	if err != nil {
		return fmt.Errorf("failed to create draft: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return drafterr.New(drafterr.CodePreconditionFailed, "draft %s already exists", d.ID)
	}
	return nil
}

func (r draftRow) args() []any {
	return []any{r.ID, r.LeagueID, r.DraftType, r.Status, r.Version, r.AutoStart, r.ScheduledAt, r.State, r.Auction, r.UpdatedAt}
}

// LoadDraft implements Store.
func (p *Postgres) LoadDraft(ctx context.Context, id uuid.UUID) (*models.Draft, error) {
	var (
		state   []byte
		auction pqtype.NullRawMessage
	)
	err := p.db.QueryRow(ctx, `SELECT state, auction FROM drafts WHERE id = $1`, id).Scan(&state, &auction)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, drafterr.New(drafterr.CodeNotFound, "draft %s not found", id)
		}
		return nil, fmt.Errorf("failed to load draft: %w", err)
	}
	return decodeDraft(state, auction)
}

const upsertDraft = insertDraft + `
ON CONFLICT (id) DO UPDATE SET
    status       = EXCLUDED.status,
    version      = EXCLUDED.version,
    auto_start   = EXCLUDED.auto_start,
    scheduled_at = EXCLUDED.scheduled_at,
    state        = EXCLUDED.state,
    auction      = EXCLUDED.auction,
    updated_at   = EXCLUDED.updated_at
WHERE drafts.version < EXCLUDED.version`

const insertPick = `
INSERT INTO draft_picks (id, draft_id, round, pick, overall_pick, team_id, player_id, is_auto_pick, bid_amount, picked_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (draft_id, overall_pick) DO NOTHING`

// SaveDraft implements Store. The aggregate and its picks are written in one
// transaction; an older or equal version leaves both untouched.
func (p *Postgres) SaveDraft(ctx context.Context, d *models.Draft) error {
	row, err := encodeDraft(d)
	if err != nil {
		return err
	}

	return sqlutil.RunTx(ctx, p.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, upsertDraft, row.args()...)
		if err != nil {
			return fmt.Errorf("failed to upsert draft: %w", err)
		}
		if tag.RowsAffected() == 0 {
			log.Debug().
				Str("draft_id", d.ID.String()).
				Int64("version", d.Version).
				Msg("skipping stale draft snapshot")
			return nil
		}

		if len(d.Picks) == 0 {
			return nil
		}
		batch := &pgx.Batch{}
		for _, pk := range d.Picks {
			batch.Queue(insertPick, pk.ID, d.ID, pk.Round, pk.Pick, pk.OverallPick,
				pk.TeamID, pk.PlayerID, pk.IsAutoPick, pk.BidAmount, pk.PickedAt.UTC())
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to write picks: %w", err)
		}
		return nil
	})
}

const dueScheduled = `
SELECT id FROM drafts
WHERE status = 'scheduled' AND auto_start AND scheduled_at <= $1
ORDER BY scheduled_at`

// DueScheduled implements Store.
func (p *Postgres) DueScheduled(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := p.db.Query(ctx, dueScheduled, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled drafts: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to scan scheduled drafts: %w", err)
	}
	return ids, nil
}

// NextScheduled implements Store.
func (p *Postgres) NextScheduled(ctx context.Context) (time.Time, bool, error) {
	var at *time.Time
	err := p.db.QueryRow(ctx,
		`SELECT MIN(scheduled_at) FROM drafts WHERE status = 'scheduled' AND auto_start`).Scan(&at)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read next scheduled draft: %w", err)
	}
	if at == nil {
		return time.Time{}, false, nil
	}
	return *at, true, nil
}
