// Package store persists draft aggregates.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty/go/internal/models"
)

//go:generate mockgen -package=mocks -destination=mocks/mock_store.go github.com/mcdev12/dynasty/go/internal/draft/store Store

// Store is the persistence collaborator of the draft engine.
//
// SaveDraft is idempotent: a snapshot whose version is not newer than the
// stored one is ignored. LoadDraft returns drafterr.ErrNotFound for unknown ids.
type Store interface {
	CreateDraft(ctx context.Context, d *models.Draft) error
	LoadDraft(ctx context.Context, id uuid.UUID) (*models.Draft, error)
	SaveDraft(ctx context.Context, d *models.Draft) error
	// DueScheduled lists scheduled drafts with auto start whose start time is
	// at or before now.
	DueScheduled(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	// NextScheduled is the earliest pending auto start, if any.
	NextScheduled(ctx context.Context) (time.Time, bool, error)
}

func autoStartAt(d *models.Draft) (time.Time, bool) {
	if d.Status != models.DraftStatusScheduled || !d.Settings.AutoStart || d.ScheduledAt == nil {
		return time.Time{}, false
	}
	return *d.ScheduledAt, true
}
