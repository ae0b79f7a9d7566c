// internal/game/round.go
package game

import (
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/trivia/internal/models"
)

var (
	ErrRoundRevealed    = errors.New("round already revealed")
	ErrAlreadySubmitted = errors.New("answer already submitted for this question")
	ErrBadAnswer        = errors.New("answer does not fit the question")
)

// Mark is the per-player colour shown for a question once it is revealed.
type Mark string

const (
	MarkCorrect Mark = "green"
	MarkWrong   Mark = "red"
	MarkMissing Mark = "grey"
)

// Answer is what a client submits. Classic questions set Option, knowledge
// questions set Text.
type Answer struct {
	Option *int   `json:"option,omitempty"`
	Text   string `json:"text,omitempty"`
}

// Submission is the server's record of one player's answer.
type Submission struct {
	Answer  Answer        `json:"answer"`
	At      time.Time     `json:"at"`
	Elapsed time.Duration `json:"elapsed"`
	Correct bool          `json:"correct"`
}

// Round is the state of the question currently being played.
type Round struct {
	Index     int // 1-based
	Total     int
	Question  models.Question
	StartedAt time.Time
	Limit     time.Duration
	Extension time.Duration // added by time freezes
	Revealed  bool

	Submissions map[uuid.UUID]*Submission
	Claims      map[PowerUp]map[string]uuid.UUID
}

// NewRound opens question index (1-based) of total.
func NewRound(index, total int, q models.Question, startedAt time.Time, limit time.Duration) *Round {
	return &Round{
		Index:       index,
		Total:       total,
		Question:    q,
		StartedAt:   startedAt,
		Limit:       limit,
		Submissions: make(map[uuid.UUID]*Submission),
		Claims:      make(map[PowerUp]map[string]uuid.UUID),
	}
}

// EffectiveLimit is the time limit including any freezes.
func (r *Round) EffectiveLimit() time.Duration {
	return r.Limit + r.Extension
}

// Deadline is when the question closes.
func (r *Round) Deadline() time.Time {
	return r.StartedAt.Add(r.EffectiveLimit())
}

// Remaining returns how long is left at now, never negative.
func (r *Round) Remaining(now time.Time) time.Duration {
	left := r.Deadline().Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// IsLast reports whether this is the final question of the match.
func (r *Round) IsLast() bool {
	return r.Index >= r.Total
}

// Check decides correctness on the server; the client's opinion is never used.
func (r *Round) Check(a Answer) bool {
	switch r.Question.Kind {
	case models.KindKnowledge:
		return r.Question.Accepts(a.Text)
	default:
		return a.Option != nil && *a.Option == r.Question.Correct
	}
}

// Validate rejects answers that cannot belong to the current question.
func (r *Round) Validate(a Answer) error {
	switch r.Question.Kind {
	case models.KindKnowledge:
		if models.NormalizeAnswer(a.Text) == "" {
			return ErrBadAnswer
		}
	default:
		if a.Option == nil || *a.Option < 0 || *a.Option >= len(r.Question.Options) {
			return ErrBadAnswer
		}
	}
	return nil
}

// Submit records userID's answer at the given time.
func (r *Round) Submit(userID uuid.UUID, a Answer, at time.Time) (*Submission, error) {
	if r.Revealed {
		return nil, ErrRoundRevealed
	}
	if _, ok := r.Submissions[userID]; ok {
		return nil, ErrAlreadySubmitted
	}
	if err := r.Validate(a); err != nil {
		return nil, err
	}
	elapsed := at.Sub(r.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	sub := &Submission{
		Answer:  a,
		At:      at,
		Elapsed: elapsed,
		Correct: r.Check(a),
	}
	r.Submissions[userID] = sub
	return sub, nil
}

// AllSubmitted reports whether every id in active has answered.
func (r *Round) AllSubmitted(active []uuid.UUID) bool {
	if len(active) == 0 {
		return false
	}
	for _, id := range active {
		if _, ok := r.Submissions[id]; !ok {
			return false
		}
	}
	return true
}

// SubmittedIDs lists who has answered so far.
func (r *Round) SubmittedIDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(r.Submissions))
	for id := range r.Submissions {
		out = append(out, id)
	}
	sortIDs(out)
	return out
}

// VoteKey turns an answer into the key used for co-op plurality counting.
// Every accepted spelling of the true answer shares the correct key.
func (r *Round) VoteKey(a Answer) string {
	if r.Question.Kind == models.KindKnowledge {
		if r.Question.Accepts(a.Text) {
			return r.CorrectKey()
		}
		return models.NormalizeAnswer(a.Text)
	}
	if a.Option == nil {
		return ""
	}
	return strconv.Itoa(*a.Option)
}

// CorrectKey is the vote key of the true answer.
func (r *Round) CorrectKey() string {
	if r.Question.Kind == models.KindKnowledge {
		return models.NormalizeAnswer(r.Question.Answer)
	}
	return strconv.Itoa(r.Question.Correct)
}

// KeyIsCorrect reports whether a vote key stands for a correct answer.
func (r *Round) KeyIsCorrect(key string) bool {
	if r.Question.Kind == models.KindKnowledge {
		return r.Question.Accepts(key)
	}
	return key == r.CorrectKey()
}
