package store

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty/go/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDraftSplitsAuctionColumn(t *testing.T) {
	at := time.Date(2025, 9, 1, 20, 0, 0, 0, time.FixedZone("EST", -5*3600))
	team := uuid.New()
	d := &models.Draft{
		ID:          uuid.New(),
		LeagueID:    uuid.New(),
		DraftType:   models.DraftTypeAuction,
		Status:      models.DraftStatusScheduled,
		Settings:    models.DraftSettings{Rounds: 1, AutoStart: true, MinBid: decimal.NewFromInt(1)},
		ScheduledAt: &at,
		Version:     4,
		Auction: &models.AuctionState{
			Phase:   models.AuctionPhaseBidding,
			Budgets: map[uuid.UUID]models.TeamBudget{team: {Remaining: decimal.NewFromInt(188)}},
		},
	}

	row, err := encodeDraft(d)
	require.NoError(t, err)
	assert.True(t, row.Auction.Valid)
	assert.True(t, row.AutoStart)
	assert.Equal(t, time.UTC, row.ScheduledAt.Location())
	assert.NotContains(t, string(row.State), `"auction"`)

	got, err := decodeDraft(row.State, row.Auction)
	require.NoError(t, err)
	require.NotNil(t, got.Auction)
	assert.True(t, decimal.NewFromInt(188).Equal(got.Auction.Budgets[team].Remaining))
	assert.Equal(t, int64(4), got.Version)

	d.Auction = nil
	row, err = encodeDraft(d)
	require.NoError(t, err)
	assert.False(t, row.Auction.Valid)
	got, err = decodeDraft(row.State, row.Auction)
	require.NoError(t, err)
	assert.Nil(t, got.Auction)
}
