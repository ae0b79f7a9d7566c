package game

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Scoring constants for a single question.
const (
	BasePoints     = 100
	FloorPoints    = 40
	StreakStep     = 10
	MaxStreakBonus = 50
)

// TimePoints decays linearly from BasePoints at zero elapsed to FloorPoints at the limit.
func TimePoints(elapsed, limit time.Duration) int {
	if limit <= 0 {
		return BasePoints
	}
	frac := float64(elapsed) / float64(limit)
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	pts := BasePoints - int(math.Round(float64(BasePoints-FloorPoints)*frac))
	if pts < FloorPoints {
		return FloorPoints
	}
	return pts
}

// StreakBonus is paid from the second consecutive correct answer: 10, 20, ... up to 50.
func StreakBonus(streak int) int {
	if streak < 2 {
		return 0
	}
	bonus := StreakStep * (streak - 1)
	if bonus > MaxStreakBonus {
		return MaxStreakBonus
	}
	return bonus
}

// PlayerInput is what scoring needs to know about one active player.
type PlayerInput struct {
	UserID  uuid.UUID
	Streak  int  // streak before this question
	Doubled bool // double_points claimed this round
}

// Outcome is one player's result for a revealed question.
type Outcome struct {
	UserID  uuid.UUID   `json:"user_id"`
	Mark    Mark        `json:"mark"`
	Delta   int         `json:"delta"`
	Streak  int         `json:"streak"`
	Doubled bool        `json:"doubled,omitempty"`
	Answer  *Answer     `json:"answer,omitempty"`
	Elapsed int64       `json:"elapsed_ms,omitempty"`
	Vote    string      `json:"-"`
	Sub     *Submission `json:"-"`
}

// ScoreIndividual scores each player on their own answer (solo and versus).
func ScoreIndividual(r *Round, players []PlayerInput) []Outcome {
	out := make([]Outcome, 0, len(players))
	for _, p := range players {
		o := baseOutcome(r, p)
		if o.Mark == MarkCorrect {
			o.Streak = p.Streak + 1
			o.Delta = TimePoints(o.Sub.Elapsed, r.EffectiveLimit()) + StreakBonus(o.Streak)
			if p.Doubled {
				o.Delta *= 2
			}
		}
		out = append(out, o)
	}
	return out
}

func baseOutcome(r *Round, p PlayerInput) Outcome {
	o := Outcome{UserID: p.UserID, Mark: MarkMissing, Doubled: p.Doubled}
	sub, ok := r.Submissions[p.UserID]
	if !ok {
		return o
	}
	ans := sub.Answer
	o.Sub = sub
	o.Answer = &ans
	o.Elapsed = sub.Elapsed.Milliseconds()
	o.Vote = r.VoteKey(sub.Answer)
	if sub.Correct {
		o.Mark = MarkCorrect
	} else {
		o.Mark = MarkWrong
	}
	return o
}

// TeamResult is the co-op verdict for one question.
type TeamResult struct {
	Answer  string   `json:"answer,omitempty"` // empty on a tie or with no votes
	Tied    []string `json:"tied,omitempty"`
	Correct bool     `json:"correct"`
	Points  int      `json:"points"`
	Share   int      `json:"share"`
	Streak  int      `json:"streak"`
}

// Plurality resolves the team answer from the submitted vote keys.
//
// A single leader is the team answer. A tie between exactly two keys is
// correct when one of them is correct. A tie among three or more is wrong.
func Plurality(votes []string, isCorrect func(string) bool) (answer string, tied []string, correct bool) {
	counts := make(map[string]int)
	for _, v := range votes {
		if v == "" {
			continue
		}
		counts[v]++
	}
	if len(counts) == 0 {
		return "", nil, false
	}
	best := 0
	for _, c := range counts {
		if c > best {
			best = c
		}
	}
	var leaders []string
	for k, c := range counts {
		if c == best {
			leaders = append(leaders, k)
		}
	}
	sort.Strings(leaders)

	switch len(leaders) {
	case 1:
		return leaders[0], nil, isCorrect(leaders[0])
	case 2:
		return "", leaders, isCorrect(leaders[0]) || isCorrect(leaders[1])
	default:
		return "", leaders, false
	}
}

// ScoreTeam scores a co-op question. Team points come from the mean answer
// time of the correct voters and are split equally among the active players.
func ScoreTeam(r *Round, players []PlayerInput, teamStreak int) (TeamResult, []Outcome) {
	outcomes := make([]Outcome, 0, len(players))
	votes := make([]string, 0, len(players))
	var correctElapsed time.Duration
	correctVoters := 0
	for _, p := range players {
		o := baseOutcome(r, p)
		if o.Sub != nil {
			votes = append(votes, o.Vote)
			if o.Sub.Correct {
				correctElapsed += o.Sub.Elapsed
				correctVoters++
			}
		}
		outcomes = append(outcomes, o)
	}

	answer, tied, correct := Plurality(votes, r.KeyIsCorrect)
	res := TeamResult{Answer: answer, Tied: tied, Correct: correct}
	if !correct || len(players) == 0 {
		for i := range outcomes {
			outcomes[i].Streak = 0
		}
		return res, outcomes
	}

	res.Streak = teamStreak + 1
	mean := r.EffectiveLimit()
	if correctVoters > 0 {
		mean = correctElapsed / time.Duration(correctVoters)
	}
	res.Points = TimePoints(mean, r.EffectiveLimit()) + StreakBonus(res.Streak)
	res.Share = res.Points / len(players)
	for i := range outcomes {
		outcomes[i].Streak = res.Streak
		outcomes[i].Delta = res.Share
		if outcomes[i].Doubled {
			outcomes[i].Delta *= 2
		}
	}
	return res, outcomes
}

// Standing is one player's position at the end of a match.
type Standing struct {
	UserID   uuid.UUID `json:"user_id"`
	Score    int       `json:"score"`
	JoinedAt time.Time `json:"-"`
	Rank     int       `json:"rank"`
	IsWinner bool      `json:"is_winner"`
}

// WinnerCount is the number of versus winners for n players: ceil(n/2).
func WinnerCount(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + 1) / 2
}

// RankStandings orders by score (highest first), then earliest join, then
// identity, and flags the top WinnerCount entries as winners.
func RankStandings(in []Standing) []Standing {
	out := append([]Standing(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].UserID.String() < out[j].UserID.String()
	})
	winners := WinnerCount(len(out))
	for i := range out {
		out[i].Rank = i + 1
		out[i].IsWinner = i < winners
	}
	return out
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}
