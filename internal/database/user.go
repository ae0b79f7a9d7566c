package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/trivia/internal/models"
)

// ErrUserNotFound is returned when no row matches.
var ErrUserNotFound = errors.New("user not found")

// GetUserByID loads the display fields of a user.
func (db *DB) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	q := `SELECT id, username, is_ephemeral FROM users WHERE id = $1`
	err := db.Pool.QueryRow(ctx, q, id).Scan(&u.ID, &u.Username, &u.IsEphemeral)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return &u, nil
}

// Username resolves a display name, for callers whose token carries none.
func (db *DB) Username(ctx context.Context, id uuid.UUID) (string, error) {
	u, err := db.GetUserByID(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Username, nil
}
