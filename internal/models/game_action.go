package models

import "github.com/google/uuid"

// Action is a client request arriving over REST or the socket.
type Action struct {
	Type      string                 `json:"type"`
	LobbyID   uuid.UUID              `json:"lobby_id"`
	Payload   map[string]interface{} `json:"payload"`
	RequestID string                 `json:"request_id,omitempty"`
}
