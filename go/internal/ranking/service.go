// Package ranking serves the ranked player pool that drives auto-pick and the
// "available players" queries.
package ranking

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/mcdev12/dynasty/go/internal/draft/drafterr"
	"github.com/mcdev12/dynasty/go/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/sahilm/fuzzy"
	"golang.org/x/sync/singleflight"
)

//go:generate mockgen -package=mocks -destination=mocks/mock_source.go github.com/mcdev12/dynasty/go/internal/ranking Source

// Source loads the full ranked list of a player pool.
type Source interface {
	RankedPlayers(ctx context.Context, pool string) ([]models.RankedPlayer, error)
}

const defaultCacheSize = 64

// Service caches pools in memory and answers availability queries.
type Service struct {
	source Source
	cache  *lru.Cache
	loads  singleflight.Group
}

// NewService wraps source with an LRU cache holding up to cacheSize pools.
func NewService(source Source, cacheSize int) (*Service, error) {
	if source == nil {
		return nil, fmt.Errorf("ranking source cannot be nil")
	}
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create ranking cache: %w", err)
	}
	return &Service{source: source, cache: cache}, nil
}

type rankedPool struct {
	players []models.RankedPlayer
	byID    map[uuid.UUID]int
}

func (s *Service) load(ctx context.Context, pool string) (*rankedPool, error) {
	if v, ok := s.cache.Get(pool); ok {
		return v.(*rankedPool), nil
	}

	v, err, _ := s.loads.Do(pool, func() (interface{}, error) {
		players, err := s.source.RankedPlayers(ctx, pool)
		if err != nil {
			return nil, fmt.Errorf("failed to load player pool %q: %w", pool, err)
		}

		sorted := append([]models.RankedPlayer(nil), players...)
		sort.SliceStable(sorted, func(i, j int) bool {
			if sorted[i].Rank != sorted[j].Rank {
				return sorted[i].Rank < sorted[j].Rank
			}
			return sorted[i].ID.String() < sorted[j].ID.String()
		})

		rp := &rankedPool{players: sorted, byID: make(map[uuid.UUID]int, len(sorted))}
		for i, p := range sorted {
			rp.byID[p.ID] = i
		}
		s.cache.Add(pool, rp)

		log.Debug().Str("pool", pool).Int("players", len(sorted)).Msg("loaded player pool")
		return rp, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*rankedPool), nil
}

// RankedAvailablePlayers returns the pool in rank order without the excluded ids.
func (s *Service) RankedAvailablePlayers(ctx context.Context, pool string, exclude map[uuid.UUID]struct{}) ([]models.RankedPlayer, error) {
	rp, err := s.load(ctx, pool)
	if err != nil {
		return nil, err
	}
	out := make([]models.RankedPlayer, 0, len(rp.players))
	for _, p := range rp.players {
		if _, drafted := exclude[p.ID]; drafted {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Lookup returns a single player of the pool.
func (s *Service) Lookup(ctx context.Context, pool string, playerID uuid.UUID) (models.RankedPlayer, error) {
	rp, err := s.load(ctx, pool)
	if err != nil {
		return models.RankedPlayer{}, err
	}
	idx, ok := rp.byID[playerID]
	if !ok {
		return models.RankedPlayer{}, drafterr.New(drafterr.CodeNotFound, "player %s is not in pool %s", playerID, pool)
	}
	return rp.players[idx], nil
}

// Invalidate drops a cached pool so the next query reloads it.
func (s *Service) Invalidate(pool string) {
	s.cache.Remove(pool)
}

type searchItems []models.RankedPlayer

func (items searchItems) Len() int { return len(items) }

func (items searchItems) String(i int) string {
	return strings.ToLower(items[i].FullName)
}

// Search fuzzy matches player names among available players. An empty query
// returns the best ranked players.
func (s *Service) Search(ctx context.Context, pool, query string, exclude map[uuid.UUID]struct{}, limit int) ([]models.RankedPlayer, error) {
	available, err := s.RankedAvailablePlayers(ctx, pool, exclude)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > len(available) {
		limit = len(available)
	}

	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return available[:limit], nil
	}

	matches := fuzzy.FindFrom(query, searchItems(available))
	out := make([]models.RankedPlayer, 0, limit)
	for _, m := range matches {
		if len(out) == limit {
			break
		}
		out = append(out, available[m.Index])
	}
	return out, nil
}
