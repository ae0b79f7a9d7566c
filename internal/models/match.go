package models

import (
	"time"

	"github.com/google/uuid"
)

// PlayerResult is one player's line in a finished match.
type PlayerResult struct {
	UserID   uuid.UUID `json:"user_id"`
	Score    int       `json:"score"`
	Correct  int       `json:"correct"`
	Rank     int       `json:"rank"`
	IsWinner bool      `json:"is_winner"`
}

// MatchResult is handed to the persistence collaborator once a match finishes.
type MatchResult struct {
	MatchID    uuid.UUID      `json:"match_id"`
	LobbyID    uuid.UUID      `json:"lobby_id"`
	GameType   GameType       `json:"game_type"`
	Questions  int            `json:"questions"`
	TeamScore  int            `json:"team_score,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Players    []PlayerResult `json:"players"`
}
