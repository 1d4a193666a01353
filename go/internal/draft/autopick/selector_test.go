package autopick

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty/go/internal/draft/autopick/mocks"
	"github.com/mcdev12/dynasty/go/internal/draft/drafterr"
	"github.com/mcdev12/dynasty/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestSelectBestAvailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	ranker := mocks.NewMockRanker(ctrl)

	best, next := uuid.New(), uuid.New()
	drafted := map[uuid.UUID]struct{}{uuid.New(): {}}
	ranker.EXPECT().
		RankedAvailablePlayers(gomock.Any(), "nfl", drafted).
		Return([]models.RankedPlayer{{ID: best, Rank: 1}, {ID: next, Rank: 2}}, nil)

	got, err := NewSelector(ranker).Select(context.Background(), Request{
		DraftID: uuid.New(),
		TeamID:  uuid.New(),
		Pool:    "nfl",
		Drafted: drafted,
	})
	require.NoError(t, err)
	assert.Equal(t, best, got)
}

func TestSelectSkipsStaleEntries(t *testing.T) {
	ctrl := gomock.NewController(t)
	ranker := mocks.NewMockRanker(ctrl)

	taken, free := uuid.New(), uuid.New()
	drafted := map[uuid.UUID]struct{}{taken: {}}
	ranker.EXPECT().
		RankedAvailablePlayers(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]models.RankedPlayer{{ID: taken, Rank: 1}, {ID: free, Rank: 2}}, nil)

	got, err := NewSelector(ranker).Select(context.Background(), Request{Pool: "nfl", Drafted: drafted})
	require.NoError(t, err)
	assert.Equal(t, free, got)
}

func TestSelectExhaustedPool(t *testing.T) {
	ctrl := gomock.NewController(t)
	ranker := mocks.NewMockRanker(ctrl)
	ranker.EXPECT().RankedAvailablePlayers(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)

	_, err := NewSelector(ranker).Select(context.Background(), Request{Pool: "nfl"})
	assert.ErrorIs(t, err, drafterr.ErrNoAvailablePlayers)
}

func TestSelectRankerFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	ranker := mocks.NewMockRanker(ctrl)
	ranker.EXPECT().RankedAvailablePlayers(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("timeout"))

	_, err := NewSelector(ranker).Select(context.Background(), Request{Pool: "nfl"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, drafterr.ErrNoAvailablePlayers)
}
