package questions

import (
	"context"

	"github.com/jason-s-yu/trivia/internal/models"
	"github.com/sirupsen/logrus"
)

// Querier is the slice of the database the Postgres bank needs.
type Querier interface {
	QueryQuestions(ctx context.Context, kind models.GameKind, s models.Settings) ([]models.Question, error)
}

// Postgres draws from the questions table.
type Postgres struct {
	db Querier
}

// NewPostgres wraps db.
func NewPostgres(db Querier) *Postgres {
	return &Postgres{db: db}
}

// Draw delegates to the database, which does the filtering and shuffling.
func (p *Postgres) Draw(ctx context.Context, kind models.GameKind, settings models.Settings) ([]models.Question, error) {
	return p.db.QueryQuestions(ctx, kind, settings)
}

// Drawer is anything that can supply a match's questions.
type Drawer interface {
	Draw(ctx context.Context, kind models.GameKind, settings models.Settings) ([]models.Question, error)
}

// Fallback tries primary first and uses secondary when primary fails or
// comes back empty.
type Fallback struct {
	primary   Drawer
	secondary Drawer
	logger    *logrus.Logger
}

// NewFallback chains two banks.
func NewFallback(primary, secondary Drawer, logger *logrus.Logger) *Fallback {
	return &Fallback{primary: primary, secondary: secondary, logger: logger}
}

func (f *Fallback) Draw(ctx context.Context, kind models.GameKind, settings models.Settings) ([]models.Question, error) {
	qs, err := f.primary.Draw(ctx, kind, settings)
	if err == nil && len(qs) > 0 {
		return qs, nil
	}
	if err != nil {
		f.logger.Warnf("primary question bank failed, using fallback: %v", err)
	}
	return f.secondary.Draw(ctx, kind, settings)
}
