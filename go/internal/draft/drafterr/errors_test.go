package drafterr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesByCode(t *testing.T) {
	err := New(CodeWrongTurn, "team %s is not on the clock", "abc")

	assert.ErrorIs(t, err, ErrWrongTurn)
	assert.NotErrorIs(t, err, ErrPlayerAlreadyDrafted)
	assert.Equal(t, "team abc is not on the clock", err.Error())

	wrapped := fmt.Errorf("make pick: %w", err)
	assert.ErrorIs(t, wrapped, ErrWrongTurn)
	assert.Equal(t, CodeWrongTurn, CodeOf(wrapped))
}

func TestCodeOfForeignError(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
}
