package lobby

import (
	"time"

	"github.com/google/uuid"
)

// Timer keys.
const (
	QuestionTimerKey = "question"
	CooldownTimerKey = "cooldown"
)

// GraceTimerKey is the disconnect grace timer of one member.
func GraceTimerKey(userID uuid.UUID) string {
	return "grace:" + userID.String()
}

type lobbyTimer struct {
	timer *time.Timer
	gen   uint64
}

// Schedule runs fn under the lobby lock after d. Scheduling the same key again
// replaces the earlier timer. A timer that was cancelled or replaced after it
// already fired finds a newer generation and does nothing.
func (l *Lobby) Schedule(key string, d time.Duration, fn func(*Lobby)) {
	l.CancelTimer(key)
	l.timerGen++
	gen := l.timerGen
	store, id := l.store, l.ID

	t := time.AfterFunc(d, func() {
		err := store.Mutate(id, func(cur *Lobby) error {
			lt, ok := cur.timers[key]
			if !ok || lt.gen != gen {
				return nil
			}
			delete(cur.timers, key)
			fn(cur)
			return nil
		})
		if err != nil {
			store.logger.WithField("lobby", id).WithField("timer", key).Debugf("timer fired on gone lobby: %v", err)
		}
	})
	l.timers[key] = &lobbyTimer{timer: t, gen: gen}
}

// CancelTimer stops the timer under key, if any.
func (l *Lobby) CancelTimer(key string) {
	if lt, ok := l.timers[key]; ok {
		lt.timer.Stop()
		delete(l.timers, key)
	}
}

// HasTimer reports whether a timer is pending under key.
func (l *Lobby) HasTimer(key string) bool {
	_, ok := l.timers[key]
	return ok
}

func (l *Lobby) stopTimers() {
	for key, lt := range l.timers {
		lt.timer.Stop()
		delete(l.timers, key)
	}
}
