// Package events defines the real-time draft protocol: the outbound events
// the engine emits and the inbound commands clients send.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of draft event
type EventType string

const (
	TypeAuthenticated   EventType = "authenticated"
	TypeDraftStarted    EventType = "draft_started"
	TypePickMade        EventType = "pick_made"
	TypeAutoPick        EventType = "auto_pick"
	TypePickSkipped     EventType = "pick_skipped"
	TypePickTimer       EventType = "pick_timer"
	TypePaused          EventType = "paused"
	TypeResumed         EventType = "resumed"
	TypeNominated       EventType = "nominated"
	TypeBidPlaced       EventType = "bid_placed"
	TypeAutoPickToggled EventType = "autopick_toggled"
	TypeDraftCompleted  EventType = "draft_completed"
	TypeDraftCancelled  EventType = "draft_cancelled"
	TypeUserJoined      EventType = "user_joined"
	TypeUserLeft        EventType = "user_left"
	TypeError           EventType = "error"
	TypeChatMessage     EventType = "chat_message"
)

// Persistent reports whether events of this type describe a committed state
// transition. Timer ticks, presence, chat and errors are room-only.
func (t EventType) Persistent() bool {
	switch t {
	case TypeDraftStarted, TypePickMade, TypeAutoPick, TypePickSkipped, TypePaused, TypeResumed,
		TypeNominated, TypeBidPlaced, TypeAutoPickToggled, TypeDraftCompleted, TypeDraftCancelled:
		return true
	}
	return false
}

// Payload is implemented by every outbound payload struct in this package.
type Payload interface {
	Type() EventType
	isPayload()
}

// DraftEvent represents the base structure for all draft events
type DraftEvent struct {
	ID        string    `json:"id"`
	DraftID   uuid.UUID `json:"draftId"`
	Type      EventType `json:"type"`
	Version   int64     `json:"version,omitempty"` // draft version that produced the event
	Timestamp time.Time `json:"timestamp"`
	Data      Payload   `json:"data"`
}

// New wraps payload into an event for draftID.
func New(draftID uuid.UUID, version int64, at time.Time, payload Payload) DraftEvent {
	return DraftEvent{
		ID:        uuid.NewString(),
		DraftID:   draftID,
		Type:      payload.Type(),
		Version:   version,
		Timestamp: at,
		Data:      payload,
	}
}

// Encode serializes the event for the wire.
func (e DraftEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// MustEncode is Encode for payloads that cannot fail to marshal.
func (e DraftEvent) MustEncode() []byte {
	b, err := e.Encode()
	if err != nil {
		panic(fmt.Sprintf("encode %s event: %v", e.Type, err))
	}
	return b
}

type rawEvent struct {
	ID        string          `json:"id"`
	DraftID   uuid.UUID       `json:"draftId"`
	Type      EventType       `json:"type"`
	Version   int64           `json:"version,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Decode parses a wire event back into its typed payload.
func Decode(b []byte) (DraftEvent, error) {
	var raw rawEvent
	if err := json.Unmarshal(b, &raw); err != nil {
		return DraftEvent{}, fmt.Errorf("unmarshal event: %w", err)
	}

	payload, err := newPayload(raw.Type)
	if err != nil {
		return DraftEvent{}, err
	}
	if len(raw.Data) > 0 {
		if err := json.Unmarshal(raw.Data, payload); err != nil {
			return DraftEvent{}, fmt.Errorf("unmarshal %s payload: %w", raw.Type, err)
		}
	}

	return DraftEvent{
		ID:        raw.ID,
		DraftID:   raw.DraftID,
		Type:      raw.Type,
		Version:   raw.Version,
		Timestamp: raw.Timestamp,
		Data:      deref(payload),
	}, nil
}

func newPayload(t EventType) (any, error) {
	switch t {
	case TypeAuthenticated:
		return &AuthenticatedPayload{}, nil
	case TypeDraftStarted:
		return &DraftStartedPayload{}, nil
	case TypePickMade:
		return &PickMadePayload{}, nil
	case TypeAutoPick:
		return &AutoPickPayload{}, nil
	case TypePickSkipped:
		return &PickSkippedPayload{}, nil
	case TypePickTimer:
		return &PickTimerPayload{}, nil
	case TypePaused:
		return &PausedPayload{}, nil
	case TypeResumed:
		return &ResumedPayload{}, nil
	case TypeNominated:
		return &NominatedPayload{}, nil
	case TypeBidPlaced:
		return &BidPlacedPayload{}, nil
	case TypeAutoPickToggled:
		return &AutoPickToggledPayload{}, nil
	case TypeDraftCompleted:
		return &DraftCompletedPayload{}, nil
	case TypeDraftCancelled:
		return &DraftCancelledPayload{}, nil
	case TypeUserJoined:
		return &UserJoinedPayload{}, nil
	case TypeUserLeft:
		return &UserLeftPayload{}, nil
	case TypeError:
		return &ErrorPayload{}, nil
	case TypeChatMessage:
		return &ChatMessagePayload{}, nil
	default:
		return nil, fmt.Errorf("unknown event type: %s", t)
	}
}

func deref(p any) Payload {
	switch v := p.(type) {
	case *AuthenticatedPayload:
		return *v
	case *DraftStartedPayload:
		return *v
	case *PickMadePayload:
		return *v
	case *AutoPickPayload:
		return *v
	case *PickSkippedPayload:
		return *v
	case *PickTimerPayload:
		return *v
	case *PausedPayload:
		return *v
	case *ResumedPayload:
		return *v
	case *NominatedPayload:
		return *v
	case *BidPlacedPayload:
		return *v
	case *AutoPickToggledPayload:
		return *v
	case *DraftCompletedPayload:
		return *v
	case *DraftCancelledPayload:
		return *v
	case *UserJoinedPayload:
		return *v
	case *UserLeftPayload:
		return *v
	case *ErrorPayload:
		return *v
	case *ChatMessagePayload:
		return *v
	}
	return nil
}
