// internal/round/powerups.go
package round

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/trivia/internal/broadcast"
	"github.com/jason-s-yu/trivia/internal/game"
	"github.com/jason-s-yu/trivia/internal/lobby"
	"github.com/jason-s-yu/trivia/internal/models"
)

// UsePowerUp claims a power-up for the question in play. Two players racing
// for the same team-scoped claim: the first wins, the second gets Conflict.
func (e *Engine) UsePowerUp(lobbyID, userID uuid.UUID, name string) error {
	p, err := game.ParsePowerUp(name)
	if err != nil {
		return lobby.Errorf(lobby.KindInvalid, "unknown power-up %q", name)
	}
	return e.store.Mutate(lobbyID, func(l *lobby.Lobby) error {
		if !l.IsActive(userID) {
			return lobby.Errorf(lobby.KindUnauthorized, "not a member of this lobby")
		}
		r := l.Round
		if l.Status != lobby.StatusInProgress || r == nil || r.Revealed {
			return lobby.Errorf(lobby.KindInvalidState, "no question in play")
		}
		switch {
		case p == game.PowerUpTimeFreeze && l.Type.Mode == models.ModeVersus:
			return lobby.Errorf(lobby.KindInvalidState, "time freeze is not available in versus")
		case p == game.PowerUpHint && r.Question.Kind != models.KindClassic:
			return lobby.Errorf(lobby.KindInvalidState, "hints only work on multiple choice questions")
		}

		if err := r.Claim(p, game.ClaimKey(p, l.Type.Mode, userID), userID); err != nil {
			return lobby.Errorf(lobby.KindConflict, "already used")
		}

		payload := map[string]interface{}{
			"user_id": userID,
			"powerup": p,
			"index":   r.Index,
		}
		switch p {
		case game.PowerUpHint:
			l.Unicast(userID, broadcast.EventHint, map[string]interface{}{
				"lobby_id": l.ID,
				"index":    r.Index,
				"remove":   game.HintOptions(r.Question),
			})
		case game.PowerUpTimeFreeze:
			r.Extension += time.Duration(e.opts.FreezeTicks) * e.opts.Tick
			l.Schedule(lobby.QuestionTimerKey, r.Remaining(l.Now()), e.onDeadline)
			payload["deadline_at"] = r.Deadline().UnixMilli()
		}
		l.Broadcast(broadcast.EventPowerUpUsed, payload)

		e.persist(l, "consume power-up", func(ctx context.Context) error {
			return e.recorder.ConsumePowerUp(ctx, userID, p)
		})
		return nil
	})
}
