package models

import (
	"github.com/google/uuid"
)

// RankedPlayer is a draftable player as served by the ranking collaborator.
type RankedPlayer struct {
	ID       uuid.UUID `json:"id" yaml:"id"`
	FullName string    `json:"full_name" yaml:"full_name"`
	Position string    `json:"position" yaml:"position"`
	Team     string    `json:"team,omitempty" yaml:"team"`
	Rank     int       `json:"rank" yaml:"rank"`
}
