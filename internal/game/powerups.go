// internal/game/powerups.go
package game

import (
	"errors"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/jason-s-yu/trivia/internal/models"
)

var (
	ErrUnknownPowerUp = errors.New("unknown power-up")
	ErrPowerUpUsed    = errors.New("power-up already used this round")
)

// PowerUp names a consumable modifier.
type PowerUp string

const (
	PowerUpDoublePoints PowerUp = "double_points"
	PowerUpHint         PowerUp = "hint"
	PowerUpTimeFreeze   PowerUp = "time_freeze"
)

// Scope says who shares the one-claim-per-round limit.
type Scope int

const (
	ScopePlayer Scope = iota // each player may claim once
	ScopeTeam                // the whole team may claim once; first claim wins
)

// ParsePowerUp validates a client-supplied name.
func ParsePowerUp(name string) (PowerUp, error) {
	switch p := PowerUp(name); p {
	case PowerUpDoublePoints, PowerUpHint, PowerUpTimeFreeze:
		return p, nil
	}
	return "", ErrUnknownPowerUp
}

// Scope returns the exclusivity rule of the power-up.
func (p PowerUp) Scope() Scope {
	if p == PowerUpTimeFreeze {
		return ScopeTeam
	}
	return ScopePlayer
}

// ClaimKey is the key the round's claim table is indexed by. Team-scoped
// claims in co-op share one key; everything else is keyed by player.
func ClaimKey(p PowerUp, mode models.GameMode, userID uuid.UUID) string {
	if p.Scope() == ScopeTeam && mode == models.ModeCoop {
		return "team"
	}
	return userID.String()
}

// Claim records userID as the holder of p under key. A second claim under the
// same key is rejected and the first claim stands.
func (r *Round) Claim(p PowerUp, key string, userID uuid.UUID) error {
	holders, ok := r.Claims[p]
	if !ok {
		holders = make(map[string]uuid.UUID)
		r.Claims[p] = holders
	}
	if _, taken := holders[key]; taken {
		return ErrPowerUpUsed
	}
	holders[key] = userID
	return nil
}

// Claimed reports whether userID holds p this round.
func (r *Round) Claimed(p PowerUp, userID uuid.UUID) bool {
	for _, holder := range r.Claims[p] {
		if holder == userID {
			return true
		}
	}
	return false
}

// HintOptions picks up to two wrong options of a classic question for the client to hide.
func HintOptions(q models.Question) []int {
	wrong := make([]int, 0, len(q.Options))
	for i := range q.Options {
		if i != q.Correct {
			wrong = append(wrong, i)
		}
	}
	rand.Shuffle(len(wrong), func(i, j int) { wrong[i], wrong[j] = wrong[j], wrong[i] })
	if len(wrong) > 2 {
		wrong = wrong[:2]
	}
	return wrong
}
