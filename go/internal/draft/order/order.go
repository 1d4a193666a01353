// Package order generates the full turn sequence of a draft.
package order

import (
	"github.com/google/uuid"
	"github.com/mcdev12/dynasty/go/internal/draft/drafterr"
	"github.com/mcdev12/dynasty/go/internal/models"
)

// MinTeams is the smallest league that can run a draft.
const MinTeams = 4

// Options tweak order generation.
type Options struct {
	// ThirdRoundReversal reverses round 3 as well as round 2, after which
	// the usual alternation continues.
	ThirdRoundReversal bool
}

// Validate checks the team and round counts a draft is created with.
func Validate(teams []uuid.UUID, rounds int) error {
	if len(teams) < MinTeams {
		return drafterr.New(drafterr.CodePreconditionFailed, "a draft needs at least %d teams, got %d", MinTeams, len(teams))
	}
	if rounds < 1 {
		return drafterr.New(drafterr.CodePreconditionFailed, "rounds must be greater than 0")
	}
	seen := make(map[uuid.UUID]struct{}, len(teams))
	for _, id := range teams {
		if _, dup := seen[id]; dup {
			return drafterr.New(drafterr.CodePreconditionFailed, "team %s appears twice in the draft order", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Generate returns len(teams) × rounds slots. teams is in position order,
// teams[0] holds position 1. Auction drafts use the linear order as their
// nomination rotation.
func Generate(draftType models.DraftType, teams []uuid.UUID, rounds int, opts Options) []models.OrderSlot {
	numTeams := len(teams)
	slots := make([]models.OrderSlot, 0, numTeams*rounds)

	overallPick := 1
	for round := 1; round <= rounds; round++ {
		reversed := draftType == models.DraftTypeSnake && isReversed(round, opts)

		for pick := 1; pick <= numTeams; pick++ {
			idx := pick - 1
			if reversed {
				idx = numTeams - pick
			}
			slots = append(slots, models.OrderSlot{
				Round:       round,
				Pick:        pick,
				OverallPick: overallPick,
				TeamID:      teams[idx],
			})
			overallPick++
		}
	}

	return slots
}

func isReversed(round int, opts Options) bool {
	if opts.ThirdRoundReversal && round >= 3 {
		// rounds 2 and 3 both run backwards, then odd rounds stay reversed
		return round%2 == 1
	}
	return round%2 == 0
}

// TeamsByPosition returns the team ids sorted by draft position.
func TeamsByPosition(teams []models.DraftTeam) []uuid.UUID {
	out := make([]uuid.UUID, len(teams))
	for _, t := range teams {
		if t.Position >= 1 && t.Position <= len(teams) {
			out[t.Position-1] = t.ID
		}
	}
	return out
}
