// Package admin is the HTTP surface of the draft server: draft
// administration, available-player search, health, and the websocket
// upgrade endpoint.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mcdev12/dynasty/go/internal/draft/drafterr"
	"github.com/mcdev12/dynasty/go/internal/draft/gateway"
	"github.com/mcdev12/dynasty/go/internal/draft/outbox"
	"github.com/mcdev12/dynasty/go/internal/draft/registry"
	"github.com/mcdev12/dynasty/go/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	defaultPlayerLimit = 25
	maxPlayerLimit     = 200
)

// Drafts is the part of registry.Registry the handler drives.
type Drafts interface {
	Create(ctx context.Context, req registry.CreateRequest) (*models.Draft, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Draft, error)
	Start(ctx context.Context, id uuid.UUID) error
	Cancel(ctx context.Context, id uuid.UUID, actor string) error
	Len() int
}

// Players searches the ranked pool of a draft.
type Players interface {
	Search(ctx context.Context, pool, query string, exclude map[uuid.UUID]struct{}, limit int) ([]models.RankedPlayer, error)
}

// Events reports the health of the event stream.
type Events interface {
	Health(threshold time.Duration) outbox.HealthStatus
}

// Config wires the handler. Everything but Drafts and Players is optional.
type Config struct {
	Drafts      Drafts
	Players     Players
	WebSocket   *gateway.WebSocketHandler
	Connections *gateway.ConnectionManager
	Events      Events

	// EventsStaleAfter is how long queued events may wait before /health
	// reports the server unhealthy.
	EventsStaleAfter time.Duration
	// Scheduled is called after a draft with auto start is created.
	Scheduled        func(id uuid.UUID)
}

type Handler struct {
	cfg Config
}

func NewHandler(cfg Config) *Handler {
	if cfg.EventsStaleAfter <= 0 {
		cfg.EventsStaleAfter = time.Minute
	}
	return &Handler{cfg: cfg}
}

// Routes returns the router of every admin endpoint.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", h.health)

	r.Route("/drafts", func(r chi.Router) {
		r.Post("/", h.createDraft)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getDraft)
			r.Post("/start", h.startDraft)
			r.Post("/cancel", h.cancelDraft)
			r.Get("/players", h.searchPlayers)
		})
	})

	if h.cfg.WebSocket != nil {
		r.Get("/ws/draft", h.cfg.WebSocket.HandleDraftConnection)
		r.Get("/ws/stats", h.cfg.WebSocket.HandleConnectionStats)
	}
	return r
}

func (h *Handler) createDraft(w http.ResponseWriter, r *http.Request) {
	var req registry.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, drafterr.New(drafterr.CodeInvalidRequest, "invalid request body: %v", err))
		return
	}

	d, err := h.cfg.Drafts.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	if d.Settings.AutoStart && d.ScheduledAt != nil && h.cfg.Scheduled != nil {
		h.cfg.Scheduled(d.ID)
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *Handler) getDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := draftID(w, r)
	if !ok {
		return
	}
	d, err := h.cfg.Drafts.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) startDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := draftID(w, r)
	if !ok {
		return
	}
	if err := h.cfg.Drafts.Start(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	h.getDraft(w, r)
}

type cancelRequest struct {
	Actor string `json:"actor"`
}

func (h *Handler) cancelDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := draftID(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Actor == "" {
		writeError(w, drafterr.New(drafterr.CodeInvalidRequest, "actor is required"))
		return
	}
	if err := h.cfg.Drafts.Cancel(r.Context(), id, req.Actor); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// searchPlayers lists undrafted players of the draft's pool, best ranked
// first, optionally filtered by a fuzzy name query.
func (h *Handler) searchPlayers(w http.ResponseWriter, r *http.Request) {
	id, ok := draftID(w, r)
	if !ok {
		return
	}
	limit := defaultPlayerLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, drafterr.New(drafterr.CodeInvalidRequest, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxPlayerLimit)
	}

	d, err := h.cfg.Drafts.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	players, err := h.cfg.Players.Search(r.Context(), d.PlayerPool, r.URL.Query().Get("q"), d.Drafted(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, players)
}

type healthResponse struct {
	Status      string                   `json:"status"`
	LiveDrafts  int                      `json:"live_drafts"`
	Connections *gateway.ConnectionStats `json:"connections,omitempty"`
	Events      *outbox.HealthStatus     `json:"events,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", LiveDrafts: h.cfg.Drafts.Len()}
	status := http.StatusOK
	if h.cfg.Connections != nil {
		stats := h.cfg.Connections.Stats()
		resp.Connections = &stats
	}
	if h.cfg.Events != nil {
		events := h.cfg.Events.Health(h.cfg.EventsStaleAfter)
		resp.Events = &events
		if !events.Healthy {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}

func draftID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, drafterr.New(drafterr.CodeInvalidRequest, "invalid draft id format"))
		return uuid.Nil, false
	}
	return id, true
}

type errorResponse struct {
	Code    drafterr.Code `json:"code"`
	Message string        `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	status := gateway.StatusFor(err)
	resp := errorResponse{Code: drafterr.CodeOf(err), Message: err.Error()}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("admin request failed")
		resp.Message = "internal error"
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
