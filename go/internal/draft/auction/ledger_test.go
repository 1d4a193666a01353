package auction

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty/go/internal/draft/drafterr"
	"github.com/mcdev12/dynasty/go/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dollars(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

type fixture struct {
	teams    []models.DraftTeam
	settings models.DraftSettings
	state    *models.AuctionState
	drafted  map[uuid.UUID]bool
	ledger   *Ledger
	now      time.Time
}

func newFixture(t *testing.T, mutate func(*models.DraftSettings)) *fixture {
	t.Helper()
	f := &fixture{
		settings: models.DraftSettings{
			Rounds:          3,
			BudgetPerTeam:   dollars(200),
			MinBid:          dollars(1),
			MinBidIncrement: dollars(1),
			TimePerBidSec:   10,
		},
		drafted: map[uuid.UUID]bool{},
		now:     time.Date(2025, 8, 30, 19, 0, 0, 0, time.UTC),
	}
	if mutate != nil {
		mutate(&f.settings)
	}
	for i := 1; i <= 4; i++ {
		f.teams = append(f.teams, models.DraftTeam{ID: uuid.New(), Position: i})
	}
	f.state = NewState(f.teams, f.settings)
	f.ledger = New(f.state, f.teams, f.settings, func(id uuid.UUID) bool { return f.drafted[id] })
	return f
}

func TestNominateRequiresQueueHead(t *testing.T) {
	f := newFixture(t, nil)
	player := uuid.New()

	_, err := f.ledger.Nominate(f.teams[1].ID, player, decimal.Zero, f.now)
	assert.ErrorIs(t, err, drafterr.ErrNotYourTurnToNominate)

	f.drafted[player] = true
	_, err = f.ledger.Nominate(f.teams[0].ID, player, decimal.Zero, f.now)
	assert.ErrorIs(t, err, drafterr.ErrPlayerAlreadyDrafted)

	n, err := f.ledger.Nominate(f.teams[0].ID, uuid.New(), decimal.Zero, f.now)
	require.NoError(t, err)
	assert.True(t, n.CurrentBid.Equal(dollars(1)), "zero opening bid is the minimum bid")
	assert.Equal(t, f.teams[0].ID, n.CurrentBidder)
	assert.Equal(t, models.AuctionPhaseBidding, f.state.Phase)
	assert.Equal(t, f.now.Add(10*time.Second), n.Deadline)

	_, err = f.ledger.Nominate(f.teams[0].ID, uuid.New(), decimal.Zero, f.now)
	assert.ErrorIs(t, err, drafterr.ErrInvalidState)
}

func TestBidRules(t *testing.T) {
	f := newFixture(t, nil)
	a, b, c := f.teams[0].ID, f.teams[1].ID, f.teams[2].ID

	_, err := f.ledger.Bid(b, dollars(5), f.now)
	assert.ErrorIs(t, err, drafterr.ErrInvalidState, "no nomination yet")

	_, err = f.ledger.Nominate(a, uuid.New(), dollars(10), f.now)
	require.NoError(t, err)

	_, err = f.ledger.Bid(b, dollars(10), f.now)
	assert.ErrorIs(t, err, drafterr.ErrBidTooLow)

	_, err = f.ledger.Bid(a, dollars(11), f.now)
	assert.ErrorIs(t, err, drafterr.ErrInvalidState, "cannot outbid yourself")

	// 200 budget, 3 slots, $1 reserved for each of the other 2 slots
	assert.True(t, f.ledger.MaxBid(b).Equal(dollars(198)))
	_, err = f.ledger.Bid(b, dollars(199), f.now)
	assert.ErrorIs(t, err, drafterr.ErrInsufficientBudget)

	deadline, err := f.ledger.Bid(b, dollars(12), f.now.Add(7*time.Second))
	require.NoError(t, err)
	assert.Equal(t, f.now.Add(17*time.Second), deadline, "bid restarts the countdown")

	_, err = f.ledger.Bid(c, dollars(12), f.now)
	assert.ErrorIs(t, err, drafterr.ErrBidTooLow)
}

func TestCloseDebitsWinnerAndAdvancesQueue(t *testing.T) {
	f := newFixture(t, nil)
	a, b := f.teams[0].ID, f.teams[1].ID
	player := uuid.New()

	_, err := f.ledger.Nominate(a, player, dollars(10), f.now)
	require.NoError(t, err)
	_, err = f.ledger.Bid(b, dollars(12), f.now.Add(time.Second))
	require.NoError(t, err)

	award, err := f.ledger.Close()
	require.NoError(t, err)
	assert.Equal(t, player, award.PlayerID)
	assert.Equal(t, b, award.TeamID)
	assert.True(t, award.Amount.Equal(dollars(12)))
	assert.Len(t, award.Bids, 2)

	budget := f.state.Budgets[b]
	assert.True(t, budget.Remaining.Equal(dollars(188)))
	assert.True(t, budget.Spent.Equal(dollars(12)))
	assert.Equal(t, 1, budget.RosterCount)
	assert.True(t, f.state.Budgets[a].Remaining.Equal(dollars(200)))

	assert.Nil(t, f.state.Nomination)
	assert.Equal(t, models.AuctionPhaseNominating, f.state.Phase)
	assert.Equal(t, b, f.ledger.Nominator())

	_, err = f.ledger.Close()
	assert.ErrorIs(t, err, drafterr.ErrInvalidState)
}

func TestQueueSkipsFullRosters(t *testing.T) {
	f := newFixture(t, func(s *models.DraftSettings) { s.Rounds = 1 })
	// team 2 already filled its only slot
	full := f.state.Budgets[f.teams[1].ID]
	full.RosterCount = 1
	f.state.Budgets[f.teams[1].ID] = full

	require.True(t, f.ledger.AdvanceQueue())
	assert.Equal(t, f.teams[2].ID, f.ledger.Nominator())

	for _, team := range f.teams {
		b := f.state.Budgets[team.ID]
		b.RosterCount = 1
		f.state.Budgets[team.ID] = b
	}
	assert.False(t, f.ledger.AdvanceQueue())
	assert.False(t, f.ledger.EnsureNominatorCanDraft())
}

func TestBidDeadlineIsBounded(t *testing.T) {
	f := newFixture(t, func(s *models.DraftSettings) { s.MaxNominationLengthSec = 25 })

	opened := f.now
	assert.Equal(t, opened.Add(10*time.Second), f.ledger.BidDeadline(opened, opened))
	assert.Equal(t, opened.Add(25*time.Second), f.ledger.BidDeadline(opened, opened.Add(20*time.Second)))
	late := opened.Add(30 * time.Second)
	assert.Equal(t, late, f.ledger.BidDeadline(opened, late))
}
