// internal/database/questions.go
package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/trivia/internal/models"
)

// buildQuestionQuery selects up to limit random questions of kind that fit
// the lobby's difficulty and categories.
func buildQuestionQuery(kind models.GameKind, s models.Settings, limit int) (string, []interface{}) {
	var sb strings.Builder
	args := []interface{}{string(kind)}
	sb.WriteString(`SELECT id, kind, text, category, difficulty, options, correct, answer, aliases
		FROM questions WHERE kind = $1`)

	if s.Difficulty != "" && s.Difficulty != "mixed" {
		args = append(args, s.Difficulty)
		fmt.Fprintf(&sb, " AND difficulty = $%d", len(args))
	}
	if len(s.Categories) > 0 {
		args = append(args, s.Categories)
		fmt.Fprintf(&sb, " AND category = ANY($%d)", len(args))
	}
	args = append(args, limit)
	fmt.Fprintf(&sb, " ORDER BY random() LIMIT $%d", len(args))
	return sb.String(), args
}

// QueryQuestions draws random questions from the questions table.
func (db *DB) QueryQuestions(ctx context.Context, kind models.GameKind, s models.Settings) ([]models.Question, error) {
	q, args := buildQuestionQuery(kind, s, s.QuestionCount)
	rows, err := db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Question, error) {
		var qu models.Question
		var kindStr string
		err := row.Scan(&qu.ID, &kindStr, &qu.Text, &qu.Category, &qu.Difficulty,
			&qu.Options, &qu.Correct, &qu.Answer, &qu.Aliases)
		qu.Kind = models.GameKind(kindStr)
		return qu, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan questions: %w", err)
	}
	return out, nil
}

// UpsertQuestions loads questions into the bank, replacing rows with the same id.
func (db *DB) UpsertQuestions(ctx context.Context, qs []models.Question) error {
	q := `
		INSERT INTO questions (id, kind, text, category, difficulty, options, correct, answer, aliases)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind, text = EXCLUDED.text, category = EXCLUDED.category,
			difficulty = EXCLUDED.difficulty, options = EXCLUDED.options, correct = EXCLUDED.correct,
			answer = EXCLUDED.answer, aliases = EXCLUDED.aliases
	`
	return pgx.BeginTxFunc(ctx, db.Pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, qu := range qs {
			if _, err := tx.Exec(ctx, q, qu.ID, string(qu.Kind), qu.Text, qu.Category, qu.Difficulty,
				qu.Options, qu.Correct, qu.Answer, qu.Aliases); err != nil {
				return fmt.Errorf("upsert question %s: %w", qu.ID, err)
			}
		}
		return nil
	})
}
