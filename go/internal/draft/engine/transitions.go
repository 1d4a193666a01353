package engine

import (
	"github.com/mcdev12/dynasty/go/internal/draft/drafterr"
	"github.com/mcdev12/dynasty/go/internal/models"
)

var allowedTransitions = map[models.DraftStatus][]models.DraftStatus{
	models.DraftStatusScheduled:  {models.DraftStatusInProgress, models.DraftStatusCancelled},
	models.DraftStatusInProgress: {models.DraftStatusPaused, models.DraftStatusCompleted, models.DraftStatusCancelled},
	models.DraftStatusPaused:     {models.DraftStatusInProgress, models.DraftStatusCancelled},
	models.DraftStatusCompleted:  {}, // No transitions allowed from completed
	models.DraftStatusCancelled:  {}, // No transitions allowed from cancelled
}

// validateStatusTransition validates if a status transition is allowed
func validateStatusTransition(current, next models.DraftStatus) error {
	if current == models.DraftStatusCancelled {
		return drafterr.ErrDraftTerminated
	}

	allowedNext, exists := allowedTransitions[current]
	if !exists {
		return drafterr.New(drafterr.CodeInvalidState, "unknown draft status: %s", current)
	}

	for _, allowed := range allowedNext {
		if next == allowed {
			return nil
		}
	}

	return drafterr.New(drafterr.CodeInvalidState, "transition from %s to %s is not allowed", current, next)
}

// requireActive is the common gate of every in-draft action.
func requireActive(status models.DraftStatus) error {
	switch status {
	case models.DraftStatusInProgress:
		return nil
	case models.DraftStatusCancelled:
		return drafterr.ErrDraftTerminated
	default:
		return drafterr.New(drafterr.CodeInvalidState, "draft is %s", status)
	}
}
