// internal/round/reveal.go
package round

import (
	"context"

	"github.com/google/uuid"
	"github.com/jason-s-yu/trivia/internal/broadcast"
	"github.com/jason-s-yu/trivia/internal/game"
	"github.com/jason-s-yu/trivia/internal/lobby"
	"github.com/jason-s-yu/trivia/internal/models"
	"github.com/sirupsen/logrus"
)

// ScoreLine is one row of scores_updated.
type ScoreLine struct {
	UserID  uuid.UUID `json:"user_id"`
	Score   int       `json:"score"`
	Streak  int       `json:"streak"`
	Correct int       `json:"correct"`
}

// reveal closes the question, scores it and tells everyone. Only the first
// call per question does anything.
func (e *Engine) reveal(l *lobby.Lobby, cause string) {
	r := l.Round
	if l.Status != lobby.StatusInProgress || r == nil || r.Revealed {
		return
	}
	r.Revealed = true
	l.CancelTimer(lobby.QuestionTimerKey)

	active := l.ActiveIDs()
	inputs := make([]game.PlayerInput, 0, len(active))
	for _, id := range active {
		inputs = append(inputs, game.PlayerInput{
			UserID:  id,
			Streak:  l.Players[id].Streak,
			Doubled: r.Claimed(game.PowerUpDoublePoints, id),
		})
	}

	var outcomes []game.Outcome
	if l.Type.Mode == models.ModeCoop {
		team, outs := game.ScoreTeam(r, inputs, l.TeamStreak)
		l.TeamStreak = team.Streak
		l.LastTeam = &team
		outcomes = outs
	} else {
		outcomes = game.ScoreIndividual(r, inputs)
	}

	for _, o := range outcomes {
		ps := l.Players[o.UserID]
		ps.Score += o.Delta
		ps.Streak = o.Streak
		if o.Mark == game.MarkCorrect {
			ps.Correct++
		}
		ps.Marks = append(ps.Marks, o.Mark)
		if l.Type.Mode == models.ModeCoop {
			l.TeamScore += o.Delta
		}
	}

	payload := map[string]interface{}{
		"index":    r.Index,
		"total":    r.Total,
		"cause":    cause,
		"outcomes": outcomes,
		"is_last":  r.IsLast(),
	}
	if r.Question.Kind == models.KindKnowledge {
		payload["answer"] = r.Question.Answer
	} else {
		payload["correct"] = r.Question.Correct
	}
	if l.LastTeam != nil {
		payload["team"] = l.LastTeam
	}
	l.Broadcast(broadcast.EventRoundRevealed, payload)
	l.Broadcast(broadcast.EventScoresUpdated, e.scores(l))

	e.logger.WithFields(logrus.Fields{
		"lobby": l.ID,
		"index": r.Index,
		"cause": cause,
	}).Debug("question revealed")

	if l.Type.Mode == models.ModeSolo {
		l.Schedule(lobby.CooldownTimerKey, e.opts.Cooldown, func(l *lobby.Lobby) {
			if l.Status == lobby.StatusInProgress && l.Round != nil && l.Round.Revealed {
				e.advance(l)
			}
		})
	}
}

func (e *Engine) scores(l *lobby.Lobby) map[string]interface{} {
	lines := make([]ScoreLine, 0, len(l.Players))
	for _, id := range l.ActiveIDs() {
		ps := l.Players[id]
		lines = append(lines, ScoreLine{UserID: id, Score: ps.Score, Streak: ps.Streak, Correct: ps.Correct})
	}
	out := map[string]interface{}{"scores": lines}
	if l.Type.Mode == models.ModeCoop {
		out["team_score"] = l.TeamScore
		out["team_streak"] = l.TeamStreak
	}
	return out
}

// finish ends the match, ranks players and hands the result to persistence.
func (e *Engine) finish(l *lobby.Lobby) {
	now := l.Now()
	standings := make([]game.Standing, 0, len(l.Players))
	for _, id := range l.ActiveIDs() {
		m, _ := l.Member(id)
		standings = append(standings, game.Standing{
			UserID:   id,
			Score:    l.Players[id].Score,
			JoinedAt: m.JoinedAt,
		})
	}
	ranked := game.RankStandings(standings)

	res := models.MatchResult{
		MatchID:    l.MatchID,
		LobbyID:    l.ID,
		GameType:   l.Type,
		Questions:  len(l.Questions),
		StartedAt:  l.MatchStartedAt,
		FinishedAt: now,
		Players:    make([]models.PlayerResult, 0, len(ranked)),
	}
	if l.Type.Mode == models.ModeCoop {
		res.TeamScore = l.TeamScore
	}
	for _, s := range ranked {
		res.Players = append(res.Players, models.PlayerResult{
			UserID:   s.UserID,
			Score:    s.Score,
			Correct:  l.Players[s.UserID].Correct,
			Rank:     s.Rank,
			IsWinner: l.Type.Mode == models.ModeVersus && s.IsWinner,
		})
	}

	l.Status = lobby.StatusFinished
	l.Round = nil
	l.LastTeam = nil
	l.Broadcast(broadcast.EventMatchFinished, res)

	e.logger.WithFields(logrus.Fields{
		"lobby": l.ID,
		"match": l.MatchID,
	}).Info("match finished")

	e.persist(l, "record match", func(ctx context.Context) error {
		return e.recorder.RecordMatch(ctx, res)
	})
}
