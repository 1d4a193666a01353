// Package autopick chooses players for teams that run out of time or have
// auto-pick switched on.
package autopick

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty/go/internal/draft/drafterr"
	"github.com/mcdev12/dynasty/go/internal/models"
	"github.com/rs/zerolog/log"
)

//go:generate mockgen -package=mocks -destination=mocks/mock_ranker.go github.com/mcdev12/dynasty/go/internal/draft/autopick Ranker

// Ranker is the ranking collaborator.
type Ranker interface {
	RankedAvailablePlayers(ctx context.Context, pool string, exclude map[uuid.UUID]struct{}) ([]models.RankedPlayer, error)
}

// Request describes the pick that needs a player.
type Request struct {
	DraftID uuid.UUID
	TeamID  uuid.UUID
	Pool    string
	Drafted map[uuid.UUID]struct{}
}

// Selector picks the best ranked available player. It has no roster
// awareness, so the result only depends on the drafted set.
type Selector struct {
	ranker Ranker
}

// NewSelector creates a Selector backed by ranker.
func NewSelector(ranker Ranker) *Selector {
	return &Selector{ranker: ranker}
}

// Select returns the player to draft for req.TeamID.
func (s *Selector) Select(ctx context.Context, req Request) (uuid.UUID, error) {
	players, err := s.ranker.RankedAvailablePlayers(ctx, req.Pool, req.Drafted)
	if err != nil {
		return uuid.Nil, fmt.Errorf("list available players: %w", err)
	}

	for _, p := range players {
		// ranker filters already, but a stale cache must never re-draft a player
		if _, taken := req.Drafted[p.ID]; taken {
			continue
		}
		log.Info().
			Str("draft_id", req.DraftID.String()).
			Str("team_id", req.TeamID.String()).
			Str("player_id", p.ID.String()).
			Int("rank", p.Rank).
			Msg("auto-pick selected player")
		return p.ID, nil
	}

	return uuid.Nil, drafterr.New(drafterr.CodeNoAvailablePlayers, "no available players left in pool %q", req.Pool)
}
