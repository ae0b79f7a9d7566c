// internal/database/history.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/trivia/internal/game"
	"github.com/jason-s-yu/trivia/internal/models"
)

// ApplyHistory writes a batch of history records in a single transaction.
// Match rows are upserted, so replaying a batch is harmless.
func (db *DB) ApplyHistory(ctx context.Context, records []models.HistoryRecord) error {
	if len(records) == 0 {
		return nil
	}
	err := pgx.BeginTxFunc(ctx, db.Pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range records {
			switch rec.Kind {
			case models.HistoryMatch:
				if rec.Match == nil {
					continue
				}
				if err := insertMatchTx(ctx, tx, *rec.Match); err != nil {
					return fmt.Errorf("match %s: %w", rec.Match.MatchID, err)
				}
			case models.HistoryPowerUp:
				if rec.PowerUp == nil {
					continue
				}
				if err := consumePowerUpTx(ctx, tx, *rec.PowerUp); err != nil {
					return fmt.Errorf("powerup for %s: %w", rec.PowerUp.UserID, err)
				}
			default:
				db.logger.Warnf("skipping history record of unknown kind %q", rec.Kind)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply history batch: %w", err)
	}
	return nil
}

// RecordMatch persists one finished match.
func (db *DB) RecordMatch(ctx context.Context, res models.MatchResult) error {
	return db.ApplyHistory(ctx, []models.HistoryRecord{{Kind: models.HistoryMatch, Match: &res}})
}

// ConsumePowerUp takes one unit of p from the user's inventory and logs the use.
func (db *DB) ConsumePowerUp(ctx context.Context, userID uuid.UUID, p game.PowerUp) error {
	use := models.PowerUpUse{UserID: userID, PowerUp: string(p), At: time.Now()}
	return db.ApplyHistory(ctx, []models.HistoryRecord{{Kind: models.HistoryPowerUp, PowerUp: &use}})
}

func insertMatchTx(ctx context.Context, tx pgx.Tx, res models.MatchResult) error {
	upsertMatch := `
		INSERT INTO matches (id, lobby_id, game_mode, game_kind, questions, team_score, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET team_score = EXCLUDED.team_score, end_time = EXCLUDED.end_time
	`
	if _, err := tx.Exec(ctx, upsertMatch,
		res.MatchID, res.LobbyID, string(res.GameType.Mode), string(res.GameType.Kind),
		res.Questions, res.TeamScore, res.StartedAt, res.FinishedAt,
	); err != nil {
		return err
	}

	for _, p := range res.Players {
		q := `
			INSERT INTO match_results (match_id, player_id, score, correct, rank, did_win)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (match_id, player_id)
			DO UPDATE SET score = $3, correct = $4, rank = $5, did_win = $6
		`
		if _, err := tx.Exec(ctx, q, res.MatchID, p.UserID, p.Score, p.Correct, p.Rank, p.IsWinner); err != nil {
			return err
		}
	}
	return nil
}

// consumePowerUpTx never drives the inventory below zero. Uses beyond the
// stock are still logged; the game already applied the effect.
func consumePowerUpTx(ctx context.Context, tx pgx.Tx, use models.PowerUpUse) error {
	dec := `
		UPDATE powerup_inventory
		SET quantity = quantity - 1
		WHERE user_id = $1 AND powerup = $2 AND quantity > 0
	`
	if _, err := tx.Exec(ctx, dec, use.UserID, use.PowerUp); err != nil {
		return err
	}
	logUse := `INSERT INTO powerup_usage (user_id, powerup, used_at) VALUES ($1, $2, $3)`
	_, err := tx.Exec(ctx, logUse, use.UserID, use.PowerUp, use.At)
	return err
}
