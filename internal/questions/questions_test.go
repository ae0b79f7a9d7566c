package questions

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/jason-s-yu/trivia/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinBankIsValid(t *testing.T) {
	bank, err := Builtin()
	require.NoError(t, err)
	assert.Greater(t, bank.Len(), 20)
}

func TestDrawFilters(t *testing.T) {
	bank, err := Builtin()
	require.NoError(t, err)

	s := models.DefaultSettings()
	s.QuestionCount = 50
	s.Difficulty = "easy"
	s.Categories = []string{"Science"}

	qs, err := bank.Draw(context.Background(), models.KindClassic, s)
	require.NoError(t, err)
	require.NotEmpty(t, qs)
	for _, q := range qs {
		assert.Equal(t, models.KindClassic, q.Kind)
		assert.Equal(t, "easy", q.Difficulty)
		assert.Equal(t, "science", q.Category)
	}
}

func TestDrawLimitsToQuestionCount(t *testing.T) {
	bank, err := Builtin()
	require.NoError(t, err)

	s := models.DefaultSettings()
	s.QuestionCount = 3
	qs, err := bank.Draw(context.Background(), models.KindKnowledge, s)
	require.NoError(t, err)
	assert.Len(t, qs, 3)

	seen := map[string]bool{}
	for _, q := range qs {
		assert.False(t, seen[q.ID], "drew %s twice", q.ID)
		seen[q.ID] = true
	}
}

func TestDrawNoMatchIsEmpty(t *testing.T) {
	bank, err := Builtin()
	require.NoError(t, err)

	s := models.DefaultSettings()
	s.Categories = []string{"underwater basket weaving"}
	qs, err := bank.Draw(context.Background(), models.KindClassic, s)
	require.NoError(t, err)
	assert.Empty(t, qs)
}

func TestParseRejectsBrokenQuestions(t *testing.T) {
	cases := map[string]string{
		"not json":     `{`,
		"missing id":   `[{"kind":"classic","text":"q","options":["a","b"],"correct":0}]`,
		"duplicate id": `[{"id":"a","kind":"knowledge","text":"q","answer":"x"},{"id":"a","kind":"knowledge","text":"q","answer":"x"}]`,
		"bad correct":  `[{"id":"a","kind":"classic","text":"q","options":["a","b"],"correct":2}]`,
		"one option":   `[{"id":"a","kind":"classic","text":"q","options":["a"],"correct":0}]`,
		"no answer":    `[{"id":"a","kind":"knowledge","text":"q"}]`,
		"unknown kind": `[{"id":"a","kind":"riddle","text":"q","answer":"x"}]`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"x","kind":"knowledge","text":"2+2?","answer":"4"}]`), 0o600))

	bank, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, bank.Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

type stubDrawer struct {
	qs  []models.Question
	err error
}

func (s stubDrawer) Draw(context.Context, models.GameKind, models.Settings) ([]models.Question, error) {
	return s.qs, s.err
}

func TestFallback(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	backup := stubDrawer{qs: []models.Question{{ID: "backup"}}}

	f := NewFallback(stubDrawer{err: errors.New("db down")}, backup, logger)
	qs, err := f.Draw(context.Background(), models.KindClassic, models.DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, "backup", qs[0].ID)

	f = NewFallback(stubDrawer{}, backup, logger)
	qs, err = f.Draw(context.Background(), models.KindClassic, models.DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, "backup", qs[0].ID)

	f = NewFallback(stubDrawer{qs: []models.Question{{ID: "primary"}}}, backup, logger)
	qs, err = f.Draw(context.Background(), models.KindClassic, models.DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, "primary", qs[0].ID)
}
