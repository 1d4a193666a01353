package identity

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty/go/internal/draft/drafterr"
	"gopkg.in/yaml.v3"
)

// Directory is a static identity provider loaded from YAML:
//
//	users:
//	  - id: u-1
//	    name: Alice
//	    tokens: [alice-token]
//	leagues:
//	  <league uuid>:
//	    u-1: <team uuid>
type Directory struct {
	tokens map[string]User
	teams  map[uuid.UUID]map[string]uuid.UUID
}

type directoryFile struct {
	Users []struct {
		User   `yaml:",inline"`
		Tokens []string `yaml:"tokens"`
	} `yaml:"users"`
	Leagues map[string]map[string]string `yaml:"leagues"`
}

// LoadDirectory reads a directory file from disk.
func LoadDirectory(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read identity file: %w", err)
	}
	return ParseDirectory(data)
}

// ParseDirectory parses directory YAML.
func ParseDirectory(data []byte) (*Directory, error) {
	var f directoryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse identity file: %w", err)
	}

	d := &Directory{
		tokens: make(map[string]User),
		teams:  make(map[uuid.UUID]map[string]uuid.UUID),
	}
	for _, u := range f.Users {
		if u.ID == "" {
			return nil, fmt.Errorf("user without id")
		}
		for _, tok := range u.Tokens {
			if _, dup := d.tokens[tok]; dup {
				return nil, fmt.Errorf("token assigned to more than one user")
			}
			d.tokens[tok] = u.User
		}
	}
	for rawLeague, owners := range f.Leagues {
		leagueID, err := uuid.Parse(rawLeague)
		if err != nil {
			return nil, fmt.Errorf("invalid league id %q: %w", rawLeague, err)
		}
		m := make(map[string]uuid.UUID, len(owners))
		for userID, rawTeam := range owners {
			teamID, err := uuid.Parse(rawTeam)
			if err != nil {
				return nil, fmt.Errorf("invalid team id %q for user %s: %w", rawTeam, userID, err)
			}
			m[userID] = teamID
		}
		d.teams[leagueID] = m
	}
	return d, nil
}

// Authenticate implements Authenticator.
func (d *Directory) Authenticate(_ context.Context, token string) (User, error) {
	u, ok := d.tokens[token]
	if !ok {
		return User{}, drafterr.New(drafterr.CodeUnauthorized, "invalid token")
	}
	return u, nil
}

// ResolveTeamForUser implements TeamResolver.
func (d *Directory) ResolveTeamForUser(_ context.Context, userID string, leagueID uuid.UUID) (uuid.UUID, error) {
	teamID, ok := d.teams[leagueID][userID]
	if !ok {
		return uuid.Nil, drafterr.New(drafterr.CodeNotFound, "user %s has no team in league %s", userID, leagueID)
	}
	return teamID, nil
}
