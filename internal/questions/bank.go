// Package questions supplies the questions of a match.
package questions

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"slices"
	"strings"

	"github.com/jason-s-yu/trivia/internal/models"
)

//go:embed questions.json
var builtin []byte

// Static is an in-memory bank, loaded once and read-only afterwards.
type Static struct {
	questions []models.Question
}

// Builtin returns the bank compiled into the binary.
func Builtin() (*Static, error) {
	return Parse(builtin)
}

// Load reads a JSON array of questions from path.
func Load(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a JSON array of questions.
func Parse(data []byte) (*Static, error) {
	var qs []models.Question
	if err := json.Unmarshal(data, &qs); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	seen := make(map[string]bool, len(qs))
	for i, q := range qs {
		if q.ID == "" {
			return nil, fmt.Errorf("question %d: missing id", i)
		}
		if seen[q.ID] {
			return nil, fmt.Errorf("question %s: duplicate id", q.ID)
		}
		seen[q.ID] = true
		if err := check(q); err != nil {
			return nil, fmt.Errorf("question %s: %w", q.ID, err)
		}
	}
	return &Static{questions: qs}, nil
}

func check(q models.Question) error {
	if strings.TrimSpace(q.Text) == "" {
		return errors.New("empty text")
	}
	switch q.Kind {
	case models.KindClassic:
		if len(q.Options) < 2 {
			return errors.New("needs at least two options")
		}
		if q.Correct < 0 || q.Correct >= len(q.Options) {
			return fmt.Errorf("correct index %d out of range", q.Correct)
		}
	case models.KindKnowledge:
		if strings.TrimSpace(q.Answer) == "" {
			return errors.New("missing answer")
		}
	default:
		return fmt.Errorf("unknown kind %q", q.Kind)
	}
	return nil
}

// All returns every question in the bank.
func (s *Static) All() []models.Question {
	return slices.Clone(s.questions)
}

// Len is the number of questions in the bank.
func (s *Static) Len() int {
	return len(s.questions)
}

// Draw picks up to settings.QuestionCount random questions of kind that
// match the difficulty and categories. Nothing matching is not an error.
func (s *Static) Draw(_ context.Context, kind models.GameKind, settings models.Settings) ([]models.Question, error) {
	var pool []models.Question
	for _, q := range s.questions {
		if matches(q, kind, settings) {
			pool = append(pool, q)
		}
	}
	rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if n := settings.QuestionCount; n > 0 && n < len(pool) {
		pool = pool[:n]
	}
	return pool, nil
}

func matches(q models.Question, kind models.GameKind, s models.Settings) bool {
	if q.Kind != kind {
		return false
	}
	if s.Difficulty != "" && s.Difficulty != "mixed" && !strings.EqualFold(q.Difficulty, s.Difficulty) {
		return false
	}
	if len(s.Categories) == 0 {
		return true
	}
	for _, c := range s.Categories {
		if strings.EqualFold(q.Category, c) {
			return true
		}
	}
	return false
}
