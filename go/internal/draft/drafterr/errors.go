// Package drafterr defines the error taxonomy shared by the draft engine and
// the real-time protocol.
package drafterr

import (
	"errors"
	"fmt"
)

// Code is the machine readable error code sent to clients.
type Code string

const (
	CodePreconditionFailed    Code = "precondition_failed"
	CodeInvalidState          Code = "invalid_state"
	CodeWrongTurn             Code = "wrong_turn"
	CodePlayerAlreadyDrafted  Code = "player_already_drafted"
	CodeNoAvailablePlayers    Code = "no_available_players"
	CodeInsufficientBudget    Code = "insufficient_budget"
	CodeBidTooLow             Code = "bid_too_low"
	CodeNotYourTurnToNominate Code = "not_your_turn_to_nominate"
	CodeUnauthorized          Code = "unauthorized"
	CodeDraftTerminated       Code = "draft_terminated"
	CodeInvalidRequest        Code = "invalid_request"
	CodeNotFound              Code = "not_found"
	CodeInternal              Code = "internal"
)

// Error is a draft error carrying a code. Two errors match under errors.Is
// when their codes are equal, so callers can compare against the sentinels
// below regardless of the message.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrPreconditionFailed    = &Error{Code: CodePreconditionFailed, Message: "precondition failed"}
	ErrInvalidState          = &Error{Code: CodeInvalidState, Message: "action not valid in current state"}
	ErrWrongTurn             = &Error{Code: CodeWrongTurn, Message: "it is not your turn"}
	ErrPlayerAlreadyDrafted  = &Error{Code: CodePlayerAlreadyDrafted, Message: "player already drafted"}
	ErrNoAvailablePlayers    = &Error{Code: CodeNoAvailablePlayers, Message: "no available players"}
	ErrInsufficientBudget    = &Error{Code: CodeInsufficientBudget, Message: "insufficient budget"}
	ErrBidTooLow             = &Error{Code: CodeBidTooLow, Message: "bid too low"}
	ErrNotYourTurnToNominate = &Error{Code: CodeNotYourTurnToNominate, Message: "not your turn to nominate"}
	ErrUnauthorized          = &Error{Code: CodeUnauthorized, Message: "unauthorized"}
	ErrDraftTerminated       = &Error{Code: CodeDraftTerminated, Message: "draft has been terminated"}
	ErrInvalidRequest        = &Error{Code: CodeInvalidRequest, Message: "invalid request"}
	ErrNotFound              = &Error{Code: CodeNotFound, Message: "not found"}
)

// New builds an error with the given code and a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the code of err, or CodeInternal when err is not a draft error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
