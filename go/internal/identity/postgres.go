package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mcdev12/dynasty/go/internal/draft/drafterr"
)

// Querier is the part of pgxpool.Pool the Postgres provider needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres resolves tokens against user_sessions and teams against
// fantasy_teams.
type Postgres struct {
	db Querier
}

// NewPostgres creates a provider backed by db.
func NewPostgres(db Querier) *Postgres {
	return &Postgres{db: db}
}

const authenticateQuery = `
SELECT u.id::text, u.username
FROM user_sessions s
JOIN users u ON u.id = s.user_id
WHERE s.token = $1 AND s.expires_at > now()`

// Authenticate implements Authenticator.
func (p *Postgres) Authenticate(ctx context.Context, token string) (User, error) {
	var u User
	err := p.db.QueryRow(ctx, authenticateQuery, token).Scan(&u.ID, &u.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, drafterr.New(drafterr.CodeUnauthorized, "invalid token")
	}
	if err != nil {
		return User{}, fmt.Errorf("failed to authenticate token: %w", err)
	}
	return u, nil
}

const resolveTeamQuery = `
SELECT id
FROM fantasy_teams
WHERE league_id = $1 AND owner_id::text = $2`

// ResolveTeamForUser implements TeamResolver.
func (p *Postgres) ResolveTeamForUser(ctx context.Context, userID string, leagueID uuid.UUID) (uuid.UUID, error) {
	var teamID uuid.UUID
	err := p.db.QueryRow(ctx, resolveTeamQuery, leagueID, userID).Scan(&teamID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, drafterr.New(drafterr.CodeNotFound, "user %s has no team in league %s", userID, leagueID)
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to resolve team: %w", err)
	}
	return teamID, nil
}
