package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty/go/internal/draft/drafterr"
	"github.com/rs/zerolog/log"
)

// RoomFunc resolves the live room for a draft, loading it if needed.
type RoomFunc func(ctx context.Context, draftID uuid.UUID) (Room, error)

// WebSocketHandler handles WebSocket upgrade requests for draft connections
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	rooms             RoomFunc
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, rooms RoomFunc) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		rooms:             rooms,
	}
}

// HandleDraftConnection handles WebSocket connections for a specific draft.
// Authentication happens in-band with the first frame, so the upgrade only
// needs the draft id.
func (h *WebSocketHandler) HandleDraftConnection(w http.ResponseWriter, r *http.Request) {
	draftIDStr := r.URL.Query().Get("draft_id")
	if draftIDStr == "" {
		http.Error(w, "draft_id is required", http.StatusBadRequest)
		return
	}

	draftID, err := uuid.Parse(draftIDStr)
	if err != nil {
		http.Error(w, "invalid draft_id format", http.StatusBadRequest)
		return
	}

	rm, err := h.rooms(r.Context(), draftID)
	if err != nil {
		log.Warn().
			Err(err).
			Str("draft_id", draftID.String()).
			Msg("refusing WebSocket connection")
		http.Error(w, err.Error(), StatusFor(err))
		return
	}

	if _, err := h.connectionManager.UpgradeConnection(w, r, draftID, rm); err != nil {
		log.Error().
			Err(err).
			Str("draft_id", draftID.String()).
			Msg("failed to upgrade WebSocket connection")
		return
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(h.connectionManager.Stats())
}

// StatusFor maps a draft error to an HTTP status.
func StatusFor(err error) int {
	var derr *drafterr.Error
	if !errors.As(err, &derr) {
		return http.StatusInternalServerError
	}
	switch derr.Code {
	case drafterr.CodeNotFound:
		return http.StatusNotFound
	case drafterr.CodeDraftTerminated:
		return http.StatusGone
	case drafterr.CodeUnauthorized:
		return http.StatusUnauthorized
	case drafterr.CodeInvalidRequest:
		return http.StatusBadRequest
	case drafterr.CodePreconditionFailed, drafterr.CodeInvalidState:
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}
