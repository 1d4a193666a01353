package ranking

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/mcdev12/dynasty/go/internal/models"
	"gopkg.in/yaml.v3"
)

// FileSource serves pools from a YAML document of the form
//
//	pools:
//	  nfl-2025:
//	    - {id: ..., full_name: ..., position: QB, rank: 1}
type FileSource struct {
	pools map[string][]models.RankedPlayer
}

type rankingFile struct {
	Pools map[string][]models.RankedPlayer `yaml:"pools"`
}

// LoadFileSource reads and parses a rankings file.
func LoadFileSource(path string) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rankings file: %w", err)
	}
	return ParseFileSource(data)
}

// ParseFileSource parses rankings YAML.
func ParseFileSource(data []byte) (*FileSource, error) {
	var f rankingFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rankings: %w", err)
	}
	if f.Pools == nil {
		f.Pools = map[string][]models.RankedPlayer{}
	}
	return &FileSource{pools: f.Pools}, nil
}

// RankedPlayers implements Source.
func (s *FileSource) RankedPlayers(_ context.Context, pool string) ([]models.RankedPlayer, error) {
	players, ok := s.pools[pool]
	if !ok {
		return nil, fmt.Errorf("unknown player pool %q", pool)
	}
	return players, nil
}

// Querier is the part of pgxpool.Pool the Postgres source needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresSource reads rankings from the player_rankings table.
type PostgresSource struct {
	db Querier
}

// NewPostgresSource creates a source backed by db.
func NewPostgresSource(db Querier) *PostgresSource {
	return &PostgresSource{db: db}
}

const rankedPlayersQuery = `
SELECT p.id, p.full_name, COALESCE(r.position, ''), COALESCE(r.team, ''), r.rank
FROM player_rankings r
JOIN players p ON p.id = r.player_id
WHERE r.pool = $1
ORDER BY r.rank ASC`

// RankedPlayers implements Source.
func (s *PostgresSource) RankedPlayers(ctx context.Context, pool string) ([]models.RankedPlayer, error) {
	rows, err := s.db.Query(ctx, rankedPlayersQuery, pool)
	if err != nil {
		return nil, fmt.Errorf("query rankings: %w", err)
	}

	players, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.RankedPlayer, error) {
		var p models.RankedPlayer
		err := row.Scan(&p.ID, &p.FullName, &p.Position, &p.Team, &p.Rank)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan rankings: %w", err)
	}
	return players, nil
}
