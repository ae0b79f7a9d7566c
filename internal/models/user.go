package models

import "github.com/google/uuid"

// User is the slice of the profile service's user row that the lobby shows.
type User struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	IsEphemeral bool      `json:"is_ephemeral"`
}
