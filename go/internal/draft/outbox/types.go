package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty/go/internal/draft/events"
)

// OutboxEvent is a committed draft event on its way to the message bus.
type OutboxEvent struct {
	ID        string          `json:"id"`
	DraftID   uuid.UUID       `json:"draft_id"`
	EventType string          `json:"event_type"`
	Version   int64           `json:"version"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// FromDraftEvent encodes ev's payload for publishing.
func FromDraftEvent(ev events.DraftEvent) (OutboxEvent, error) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return OutboxEvent{}, fmt.Errorf("marshal %s payload: %w", ev.Type, err)
	}
	return OutboxEvent{
		ID:        ev.ID,
		DraftID:   ev.DraftID,
		EventType: string(ev.Type),
		Version:   ev.Version,
		Payload:   payload,
		CreatedAt: ev.Timestamp,
	}, nil
}
