package events

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty/go/internal/draft/drafterr"
	"github.com/shopspring/decimal"
)

// CommandType is the type tag of an inbound client message.
type CommandType string

const (
	CmdAuthenticate   CommandType = "authenticate"
	CmdMakePick       CommandType = "make_pick"
	CmdNominate       CommandType = "nominate"
	CmdBid            CommandType = "bid"
	CmdToggleAutoPick CommandType = "toggle_autopick"
	CmdPause          CommandType = "pause"
	CmdResume         CommandType = "resume"
	CmdChatMessage    CommandType = "chat_message"
)

const (
	MaxChatLength   = 500
	MaxReasonLength = 200
)

// Command is a validated inbound message. The set of implementations is closed.
type Command interface {
	CommandType() CommandType
	validate() error
}

type Authenticate struct {
	Token string `json:"token"`
}

type MakePick struct {
	PlayerID uuid.UUID `json:"playerId"`
}

type Nominate struct {
	PlayerID uuid.UUID `json:"playerId"`
	// Amount is the optional opening bid; zero means the minimum bid.
	Amount decimal.Decimal `json:"amount"`
}

type Bid struct {
	Amount decimal.Decimal `json:"amount"`
}

type ToggleAutoPick struct {
	Enabled bool `json:"enabled"`
}

type Pause struct {
	Reason string `json:"reason,omitempty"`
}

type Resume struct{}

type ChatMessage struct {
	Text string `json:"text"`
}

func (Authenticate) CommandType() CommandType   { return CmdAuthenticate }
func (MakePick) CommandType() CommandType       { return CmdMakePick }
func (Nominate) CommandType() CommandType       { return CmdNominate }
func (Bid) CommandType() CommandType            { return CmdBid }
func (ToggleAutoPick) CommandType() CommandType { return CmdToggleAutoPick }
func (Pause) CommandType() CommandType          { return CmdPause }
func (Resume) CommandType() CommandType         { return CmdResume }
func (ChatMessage) CommandType() CommandType    { return CmdChatMessage }

func (c Authenticate) validate() error {
	if strings.TrimSpace(c.Token) == "" {
		return drafterr.New(drafterr.CodeInvalidRequest, "token is required")
	}
	return nil
}

func (c MakePick) validate() error {
	if c.PlayerID == uuid.Nil {
		return drafterr.New(drafterr.CodeInvalidRequest, "playerId is required")
	}
	return nil
}

func (c Nominate) validate() error {
	if c.PlayerID == uuid.Nil {
		return drafterr.New(drafterr.CodeInvalidRequest, "playerId is required")
	}
	if c.Amount.IsNegative() {
		return drafterr.New(drafterr.CodeInvalidRequest, "amount must not be negative")
	}
	return nil
}

func (c Bid) validate() error {
	if !c.Amount.IsPositive() {
		return drafterr.New(drafterr.CodeInvalidRequest, "amount must be positive")
	}
	return nil
}

func (ToggleAutoPick) validate() error { return nil }

func (c Pause) validate() error {
	if utf8.RuneCountInString(c.Reason) > MaxReasonLength {
		return drafterr.New(drafterr.CodeInvalidRequest, "reason exceeds %d characters", MaxReasonLength)
	}
	return nil
}

func (Resume) validate() error { return nil }

func (c ChatMessage) validate() error {
	text := strings.TrimSpace(c.Text)
	if text == "" {
		return drafterr.New(drafterr.CodeInvalidRequest, "text is required")
	}
	if utf8.RuneCountInString(text) > MaxChatLength {
		return drafterr.New(drafterr.CodeInvalidRequest, "text exceeds %d characters", MaxChatLength)
	}
	return nil
}

type envelope struct {
	Type CommandType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ParseCommand decodes and validates one inbound frame. Every failure is an
// invalid_request draft error so it can be returned to the sender as is.
func ParseCommand(frame []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, drafterr.New(drafterr.CodeInvalidRequest, "malformed message")
	}

	var cmd Command
	var err error
	switch env.Type {
	case CmdAuthenticate:
		cmd, err = decode[Authenticate](env.Data)
	case CmdMakePick:
		cmd, err = decode[MakePick](env.Data)
	case CmdNominate:
		cmd, err = decode[Nominate](env.Data)
	case CmdBid:
		cmd, err = decode[Bid](env.Data)
	case CmdToggleAutoPick:
		cmd, err = decode[ToggleAutoPick](env.Data)
	case CmdPause:
		cmd, err = decode[Pause](env.Data)
	case CmdResume:
		cmd, err = decode[Resume](env.Data)
	case CmdChatMessage:
		cmd, err = decode[ChatMessage](env.Data)
	case "":
		return nil, drafterr.New(drafterr.CodeInvalidRequest, "message type is required")
	default:
		return nil, drafterr.New(drafterr.CodeInvalidRequest, "unknown message type %q", env.Type)
	}
	if err != nil {
		return nil, drafterr.New(drafterr.CodeInvalidRequest, "malformed %s data", env.Type)
	}
	if err := cmd.validate(); err != nil {
		return nil, err
	}
	return cmd, nil
}

func decode[T Command](data json.RawMessage) (T, error) {
	var v T
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return v, nil
	}
	err := json.Unmarshal(data, &v)
	return v, err
}

// EncodeCommand builds the wire frame for cmd. Used by clients and tests.
func EncodeCommand(cmd Command) ([]byte, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: cmd.CommandType(), Data: data})
}
