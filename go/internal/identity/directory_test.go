package identity

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty/go/internal/draft/drafterr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectory(t *testing.T) {
	ctx := context.Background()
	league := uuid.New()
	team := uuid.New()

	doc := `
users:
  - id: u-1
    name: Alice
    tokens: [alice-token, alice-mobile]
  - id: u-2
    name: Bob
    tokens: [bob-token]
leagues:
  ` + league.String() + `:
    u-1: ` + team.String() + `
`
	dir, err := ParseDirectory([]byte(doc))
	require.NoError(t, err)

	u, err := dir.Authenticate(ctx, "alice-mobile")
	require.NoError(t, err)
	assert.Equal(t, User{ID: "u-1", Name: "Alice"}, u)

	_, err = dir.Authenticate(ctx, "nope")
	assert.ErrorIs(t, err, drafterr.ErrUnauthorized)

	got, err := dir.ResolveTeamForUser(ctx, "u-1", league)
	require.NoError(t, err)
	assert.Equal(t, team, got)

	_, err = dir.ResolveTeamForUser(ctx, "u-2", league)
	assert.ErrorIs(t, err, drafterr.ErrNotFound)
	_, err = dir.ResolveTeamForUser(ctx, "u-1", uuid.New())
	assert.ErrorIs(t, err, drafterr.ErrNotFound)

	var p Provider = Combine(dir, dir)
	_, err = p.Authenticate(ctx, "bob-token")
	assert.NoError(t, err)
}

func TestParseDirectoryErrors(t *testing.T) {
	tests := map[string]string{
		"not yaml":        "users: [",
		"duplicate token": "users:\n  - {id: a, tokens: [x]}\n  - {id: b, tokens: [x]}\n",
		"missing id":      "users:\n  - {name: a}\n",
		"bad league":      "leagues:\n  nope: {}\n",
		"bad team":        "leagues:\n  " + uuid.NewString() + ":\n    u-1: nope\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDirectory([]byte(doc))
			assert.Error(t, err)
		})
	}
}
