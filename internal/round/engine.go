// internal/round/engine.go
package round

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/trivia/internal/broadcast"
	"github.com/jason-s-yu/trivia/internal/game"
	"github.com/jason-s-yu/trivia/internal/lobby"
	"github.com/jason-s-yu/trivia/internal/models"
	"github.com/sirupsen/logrus"
)

// QuestionBank supplies the questions of a match.
type QuestionBank interface {
	Draw(ctx context.Context, kind models.GameKind, settings models.Settings) ([]models.Question, error)
}

// Recorder receives what persistence keeps. Calls happen outside the lobby
// lock and failures never affect play.
type Recorder interface {
	RecordMatch(ctx context.Context, res models.MatchResult) error
	ConsumePowerUp(ctx context.Context, userID uuid.UUID, p game.PowerUp) error
}

// Options tune engine timing.
type Options struct {
	// Tick is the length of one "second" of question time. Tests shrink it.
	Tick time.Duration
	// Cooldown is the pause before a solo match moves to the next question.
	Cooldown time.Duration
	// FreezeTicks is how much time_freeze adds to the deadline, in ticks.
	FreezeTicks int
	// PersistTimeout bounds every Recorder call.
	PersistTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Tick <= 0 {
		o.Tick = time.Second
	}
	if o.Cooldown <= 0 {
		o.Cooldown = 3 * o.Tick
	}
	if o.FreezeTicks <= 0 {
		o.FreezeTicks = 10
	}
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = 5 * time.Second
	}
	return o
}

// Engine drives question progression for every lobby:
// waiting -> in_progress(i) -> revealed(i) -> in_progress(i+1) -> ... -> finished.
type Engine struct {
	store    *lobby.Store
	bank     QuestionBank
	recorder Recorder
	logger   *logrus.Logger
	opts     Options
}

// New builds an engine. recorder may be nil, in which case nothing is persisted.
func New(store *lobby.Store, bank QuestionBank, recorder Recorder, logger *logrus.Logger, opts Options) *Engine {
	return &Engine{
		store:    store,
		bank:     bank,
		recorder: recorder,
		logger:   logger,
		opts:     opts.withDefaults(),
	}
}

func requireHost(l *lobby.Lobby, userID uuid.UUID, action string) error {
	if !l.IsHost(userID) {
		return lobby.Errorf(lobby.KindUnauthorized, "only the host may %s", action)
	}
	return nil
}

func readyToStart(l *lobby.Lobby) error {
	active := l.ActiveIDs()
	ready := 0
	for _, id := range active {
		if l.Players[id].Ready {
			ready++
		}
	}
	if l.Type.Mode == models.ModeVersus {
		if ready*2 < len(active) {
			return lobby.Errorf(lobby.KindInvalidState, "at least half of the players must be ready (%d/%d)", ready, len(active))
		}
		return nil
	}
	if ready < len(active) {
		return lobby.Errorf(lobby.KindInvalidState, "every player must be ready (%d/%d)", ready, len(active))
	}
	return nil
}

type startCheck struct {
	kind     models.GameKind
	settings models.Settings
	version  int
}

// Start begins a match. Questions are drawn before the lobby is locked.
func (e *Engine) Start(ctx context.Context, lobbyID, hostID uuid.UUID) error {
	var chk startCheck
	err := e.store.Mutate(lobbyID, func(l *lobby.Lobby) error {
		if err := requireHost(l, hostID, "start the match"); err != nil {
			return err
		}
		if l.Status == lobby.StatusInProgress {
			return lobby.Errorf(lobby.KindInvalidState, "match already in progress")
		}
		if err := readyToStart(l); err != nil {
			return err
		}
		chk = startCheck{kind: l.Type.Kind, settings: l.Settings, version: l.SettingsVersion}
		return nil
	})
	if err != nil {
		return err
	}

	questions, err := e.bank.Draw(ctx, chk.kind, chk.settings)
	if err != nil {
		e.logger.WithField("lobby", lobbyID).Warnf("question bank: %v", err)
		return lobby.Errorf(lobby.KindTransient, "question bank unavailable")
	}
	if len(questions) == 0 {
		return lobby.Errorf(lobby.KindInvalidState, "no questions match the lobby settings")
	}

	return e.store.Mutate(lobbyID, func(l *lobby.Lobby) error {
		if err := requireHost(l, hostID, "start the match"); err != nil {
			return err
		}
		if l.Status == lobby.StatusInProgress {
			return lobby.Errorf(lobby.KindInvalidState, "match already in progress")
		}
		if l.SettingsVersion != chk.version {
			return lobby.Errorf(lobby.KindConflict, "settings changed while starting, try again")
		}
		if err := readyToStart(l); err != nil {
			return err
		}

		for _, ps := range l.Players {
			ps.ResetForMatch()
			ps.Ready = false
		}
		l.Questions = questions
		l.MatchID = uuid.New()
		l.MatchStartedAt = l.Now()
		l.TeamScore = 0
		l.TeamStreak = 0
		l.Status = lobby.StatusInProgress

		e.logger.WithFields(logrus.Fields{
			"lobby":     l.ID,
			"match":     l.MatchID,
			"questions": len(questions),
		}).Info("match started")
		e.openQuestion(l, 1)
		return nil
	})
}

func (e *Engine) questionLimit(l *lobby.Lobby) time.Duration {
	return time.Duration(l.Settings.TimePerQuestionSec) * e.opts.Tick
}

// openQuestion replaces the round with question index and starts its countdown.
func (e *Engine) openQuestion(l *lobby.Lobby, index int) {
	r := game.NewRound(index, len(l.Questions), l.Questions[index-1], l.Now(), e.questionLimit(l))
	l.Round = r
	l.LastTeam = nil
	for _, ps := range l.Players {
		ps.ResetForQuestion()
	}
	l.Schedule(lobby.QuestionTimerKey, r.EffectiveLimit(), e.onDeadline)

	l.Broadcast(broadcast.EventRoundStarted, map[string]interface{}{
		"index":         r.Index,
		"total":         r.Total,
		"question":      r.Question.Public(),
		"started_at":    r.StartedAt.UnixMilli(),
		"deadline_at":   r.Deadline().UnixMilli(),
		"time_limit_ms": r.EffectiveLimit().Milliseconds(),
	})
}

func (e *Engine) onDeadline(l *lobby.Lobby) {
	e.reveal(l, "timer")
}

// Submit records the caller's answer to the question in play.
func (e *Engine) Submit(lobbyID, userID uuid.UUID, answer game.Answer) error {
	return e.store.Mutate(lobbyID, func(l *lobby.Lobby) error {
		if !l.IsActive(userID) {
			return lobby.Errorf(lobby.KindUnauthorized, "not a member of this lobby")
		}
		r := l.Round
		if l.Status != lobby.StatusInProgress || r == nil {
			return lobby.Errorf(lobby.KindInvalidState, "no question in play")
		}
		now := l.Now()
		if !r.Revealed && now.After(r.Deadline()) {
			return lobby.Errorf(lobby.KindInvalidState, "time is up")
		}
		if _, err := r.Submit(userID, answer, now); err != nil {
			switch err {
			case game.ErrRoundRevealed:
				return lobby.Errorf(lobby.KindInvalidState, "question already revealed")
			case game.ErrAlreadySubmitted:
				return lobby.Errorf(lobby.KindInvalidState, "already answered this question")
			default:
				return lobby.Errorf(lobby.KindInvalid, "%v", err)
			}
		}
		ps := l.Players[userID]
		ps.Submitted = true
		a := answer
		ps.LastAnswer = &a

		active := l.ActiveIDs()
		l.Broadcast(broadcast.EventSubmissionStatusChanged, map[string]interface{}{
			"index":     r.Index,
			"user_id":   userID,
			"submitted": r.SubmittedIDs(),
			"count":     len(r.Submissions),
			"total":     len(active),
		})
		if r.AllSubmitted(active) {
			e.reveal(l, "all_submitted")
		}
		return nil
	})
}

// MemberLeft reveals early when the departure leaves everyone remaining answered.
func (e *Engine) MemberLeft(l *lobby.Lobby, userID uuid.UUID) {
	r := l.Round
	if l.Status != lobby.StatusInProgress || r == nil || r.Revealed {
		return
	}
	if r.AllSubmitted(l.ActiveIDs()) {
		e.reveal(l, "member_left")
	}
}

// Advance moves past a revealed question. Host only.
func (e *Engine) Advance(lobbyID, hostID uuid.UUID) error {
	return e.store.Mutate(lobbyID, func(l *lobby.Lobby) error {
		if err := requireHost(l, hostID, "advance"); err != nil {
			return err
		}
		if l.Status != lobby.StatusInProgress || l.Round == nil {
			return lobby.Errorf(lobby.KindInvalidState, "no match in progress")
		}
		if !l.Round.Revealed {
			return lobby.Errorf(lobby.KindInvalidState, "question not revealed yet")
		}
		e.advance(l)
		return nil
	})
}

func (e *Engine) advance(l *lobby.Lobby) {
	l.CancelTimer(lobby.CooldownTimerKey)
	l.CancelTimer(lobby.QuestionTimerKey)
	r := l.Round
	if r.IsLast() {
		e.finish(l)
		return
	}
	next := r.Index + 1
	l.Broadcast(broadcast.EventRoundAdvanced, map[string]interface{}{
		"from":  r.Index,
		"index": next,
		"total": r.Total,
	})
	e.openQuestion(l, next)
}

// persist runs fn after the lobby lock is released with a bounded context.
func (e *Engine) persist(l *lobby.Lobby, what string, fn func(ctx context.Context) error) {
	if e.recorder == nil {
		return
	}
	lobbyID := l.ID
	l.AfterCommit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.opts.PersistTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			e.logger.WithFields(logrus.Fields{
				"lobby": lobbyID,
				"kind":  lobby.KindTransient.String(),
			}).Warnf("%s: %v", what, err)
		}
	})
}
