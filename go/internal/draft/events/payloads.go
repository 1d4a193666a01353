package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty/go/internal/models"
	"github.com/shopspring/decimal"
)

// Outbound payload types. Every payload belongs to exactly one EventType.

// TeamView is what a session learns about its own seat at join time.
type TeamView struct {
	DraftID        uuid.UUID  `json:"draftId"`
	UserID         string     `json:"userId"`
	TeamID         *uuid.UUID `json:"teamId,omitempty"`
	TeamName       string     `json:"teamName,omitempty"`
	Position       int        `json:"position,omitempty"`
	AutoPick       bool       `json:"autoPick"`
	IsCommissioner bool       `json:"isCommissioner"`
}

// Member is the presence entry of a connected user.
type Member struct {
	UserID   string     `json:"userId"`
	TeamID   *uuid.UUID `json:"teamId,omitempty"`
	Online   bool       `json:"online"`
	LastSeen time.Time  `json:"lastSeen"`
}

// Snapshot is the full state a joining client converges on.
type Snapshot struct {
	DraftID       uuid.UUID            `json:"draftId"`
	DraftType     models.DraftType     `json:"draftType"`
	Status        models.DraftStatus   `json:"status"`
	Teams         []models.DraftTeam   `json:"teams"`
	CurrentPick   *models.CurrentPick  `json:"currentPick,omitempty"`
	TimeRemaining int                  `json:"timeRemaining"`
	RecentPicks   []models.Pick        `json:"recentPicks"`
	UpcomingPicks []models.OrderSlot   `json:"upcomingPicks"`
	TotalPicks    int                  `json:"totalPicks"`
	Auction       *models.AuctionState `json:"auction,omitempty"`
	Stats         models.DraftStats    `json:"stats"`
	Chat          []ChatMessagePayload `json:"chat"`
	Members       []Member             `json:"members"`
	Version       int64                `json:"version"`
}

type AuthenticatedPayload struct {
	Team     TeamView `json:"team"`
	Snapshot Snapshot `json:"snapshot"`
}

type DraftStartedPayload struct {
	DraftType   models.DraftType    `json:"draftType"`
	StartedAt   time.Time           `json:"startedAt"`
	TotalRounds int                 `json:"totalRounds"`
	TotalPicks  int                 `json:"totalPicks"`
	CurrentPick *models.CurrentPick `json:"currentPick,omitempty"`
}

type PickMadePayload struct {
	Pick        models.Pick         `json:"pick"`
	CurrentPick *models.CurrentPick `json:"currentPick,omitempty"`
	IsComplete  bool                `json:"isComplete"`
}

type AutoPickPayload struct {
	Pick        models.Pick         `json:"pick"`
	CurrentPick *models.CurrentPick `json:"currentPick,omitempty"`
	IsComplete  bool                `json:"isComplete"`
	Reason      string              `json:"reason"`
}

type PickSkippedPayload struct {
	Reason      string              `json:"reason"`
	Skipped     models.SkippedPick  `json:"skipped"`
	CurrentPick *models.CurrentPick `json:"currentPick,omitempty"`
	IsComplete  bool                `json:"isComplete"`
}

type PickTimerPayload struct {
	TeamID        uuid.UUID `json:"teamId"`
	OverallPick   int       `json:"overallPick"`
	TimeRemaining int       `json:"timeRemaining"` // seconds
	Phase         string    `json:"phase,omitempty"`
}

type PausedPayload struct {
	Reason        string    `json:"reason"`
	By            string    `json:"by"`
	PausedAt      time.Time `json:"pausedAt"`
	TimeRemaining int       `json:"timeRemaining"`
}

type ResumedPayload struct {
	CurrentPick *models.CurrentPick `json:"currentPick,omitempty"`
	ResumedAt   time.Time           `json:"resumedAt"`
}

type NominatedPayload struct {
	Nomination  models.Nomination   `json:"nomination"`
	CurrentPick *models.CurrentPick `json:"currentPick,omitempty"`
	IsAuto      bool                `json:"isAuto"`
}

type BidPlacedPayload struct {
	PlayerID uuid.UUID       `json:"playerId"`
	TeamID   uuid.UUID       `json:"teamId"`
	Amount   decimal.Decimal `json:"amount"`
	Deadline time.Time       `json:"deadline"`
}

type AutoPickToggledPayload struct {
	TeamID  uuid.UUID `json:"teamId"`
	Enabled bool      `json:"enabled"`
}

type DraftCompletedPayload struct {
	CompletedAt time.Time         `json:"completedAt"`
	Duration    string            `json:"duration"`
	TotalPicks  int               `json:"totalPicks"`
	Stats       models.DraftStats `json:"stats"`
}

type DraftCancelledPayload struct {
	CancelledAt time.Time `json:"cancelledAt"`
	By          string    `json:"by"`
}

type UserJoinedPayload struct {
	Member Member `json:"member"`
}

type UserLeftPayload struct {
	Member Member `json:"member"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ChatMessagePayload struct {
	ID     string     `json:"id"`
	UserID string     `json:"userId"`
	TeamID *uuid.UUID `json:"teamId,omitempty"`
	Text   string     `json:"text"`
	SentAt time.Time  `json:"sentAt"`
}

func (AuthenticatedPayload) Type() EventType   { return TypeAuthenticated }
func (DraftStartedPayload) Type() EventType    { return TypeDraftStarted }
func (PickMadePayload) Type() EventType        { return TypePickMade }
func (AutoPickPayload) Type() EventType        { return TypeAutoPick }
func (PickSkippedPayload) Type() EventType     { return TypePickSkipped }
func (PickTimerPayload) Type() EventType       { return TypePickTimer }
func (PausedPayload) Type() EventType          { return TypePaused }
func (ResumedPayload) Type() EventType         { return TypeResumed }
func (NominatedPayload) Type() EventType       { return TypeNominated }
func (BidPlacedPayload) Type() EventType       { return TypeBidPlaced }
func (AutoPickToggledPayload) Type() EventType { return TypeAutoPickToggled }
func (DraftCompletedPayload) Type() EventType  { return TypeDraftCompleted }
func (DraftCancelledPayload) Type() EventType  { return TypeDraftCancelled }
func (UserJoinedPayload) Type() EventType      { return TypeUserJoined }
func (UserLeftPayload) Type() EventType        { return TypeUserLeft }
func (ErrorPayload) Type() EventType           { return TypeError }
func (ChatMessagePayload) Type() EventType     { return TypeChatMessage }

func (AuthenticatedPayload) isPayload()   {}
func (DraftStartedPayload) isPayload()    {}
func (PickMadePayload) isPayload()        {}
func (AutoPickPayload) isPayload()        {}
func (PickSkippedPayload) isPayload()     {}
func (PickTimerPayload) isPayload()       {}
func (PausedPayload) isPayload()          {}
func (ResumedPayload) isPayload()         {}
func (NominatedPayload) isPayload()       {}
func (BidPlacedPayload) isPayload()       {}
func (AutoPickToggledPayload) isPayload() {}
func (DraftCompletedPayload) isPayload()  {}
func (DraftCancelledPayload) isPayload()  {}
func (UserJoinedPayload) isPayload()      {}
func (UserLeftPayload) isPayload()        {}
func (ErrorPayload) isPayload()           {}
func (ChatMessagePayload) isPayload()     {}
