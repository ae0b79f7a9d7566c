package models

import (
	"time"

	"github.com/google/uuid"
)

// HistoryKind tags what a queued history record carries.
type HistoryKind string

const (
	HistoryMatch   HistoryKind = "match"
	HistoryPowerUp HistoryKind = "powerup"
)

// PowerUpUse is one consumed power-up.
type PowerUpUse struct {
	UserID  uuid.UUID `json:"user_id"`
	PowerUp string    `json:"powerup"`
	At      time.Time `json:"at"`
}

// HistoryRecord is the unit the game server queues and the historian persists.
type HistoryRecord struct {
	Kind    HistoryKind  `json:"kind"`
	Match   *MatchResult `json:"match,omitempty"`
	PowerUp *PowerUpUse  `json:"powerup,omitempty"`
}
