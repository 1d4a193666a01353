// Package identity resolves connection tokens to users and users to the
// fantasy team they own in a league.
package identity

import (
	"context"

	"github.com/google/uuid"
)

//go:generate mockgen -package=mocks -destination=mocks/mock_identity.go github.com/mcdev12/dynasty/go/internal/identity Provider

// User is an authenticated account.
type User struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// Authenticator validates a session token.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (User, error)
}

// TeamResolver maps a user to the team they own in a league. It returns a
// not_found draft error when the user owns no team there.
type TeamResolver interface {
	ResolveTeamForUser(ctx context.Context, userID string, leagueID uuid.UUID) (uuid.UUID, error)
}

// Provider is both halves of the identity collaborator.
type Provider interface {
	Authenticator
	TeamResolver
}

type provider struct {
	Authenticator
	TeamResolver
}

// Combine joins an authenticator and a team resolver from different backends.
func Combine(auth Authenticator, teams TeamResolver) Provider {
	return provider{Authenticator: auth, TeamResolver: teams}
}
