// Package historian drains the history queue into Postgres in batches.
package historian

import (
	"context"
	"errors"
	"time"

	"github.com/jason-s-yu/trivia/internal/models"
	"github.com/sirupsen/logrus"
)

// Source yields queued records.
type Source interface {
	Pop(ctx context.Context, timeout time.Duration) (models.HistoryRecord, bool, error)
}

// Sink persists a batch atomically.
type Sink interface {
	ApplyHistory(ctx context.Context, records []models.HistoryRecord) error
}

// Options tune batching.
type Options struct {
	BatchSize  int
	FlushEvery time.Duration
	PopTimeout time.Duration
}

// Service pops history records, accumulates them, and flushes when the batch
// is full or FlushEvery has passed since the last flush.
type Service struct {
	source Source
	sink   Sink
	logger *logrus.Logger
	opts   Options

	batch     []models.HistoryRecord
	lastFlush time.Time
}

// New returns a service with defaults filled in.
func New(source Source, sink Sink, logger *logrus.Logger, opts Options) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.FlushEvery <= 0 {
		opts.FlushEvery = 500 * time.Millisecond
	}
	if opts.PopTimeout <= 0 || opts.PopTimeout > opts.FlushEvery {
		opts.PopTimeout = opts.FlushEvery
	}
	return &Service{
		source: source,
		sink:   sink,
		logger: logger,
		opts:   opts,
		batch:  make([]models.HistoryRecord, 0, opts.BatchSize),
	}
}

// Run blocks until ctx is cancelled, then flushes what is left.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("historian started")
	s.lastFlush = time.Now()
	for {
		if ctx.Err() != nil {
			// final flush gets its own deadline; ctx is already done
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			s.flush(flushCtx)
			cancel()
			s.logger.Info("historian stopped")
			return nil
		}

		rec, ok, err := s.source.Pop(ctx, s.opts.PopTimeout)
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			s.logger.Errorf("pop: %v", err)
			select {
			case <-ctx.Done():
			case <-time.After(s.opts.PopTimeout):
			}
		case ok:
			s.batch = append(s.batch, rec)
		}

		if len(s.batch) >= s.opts.BatchSize || time.Since(s.lastFlush) >= s.opts.FlushEvery {
			s.flush(ctx)
		}
	}
}

func (s *Service) flush(ctx context.Context) {
	s.lastFlush = time.Now()
	if len(s.batch) == 0 {
		return
	}
	if err := s.sink.ApplyHistory(ctx, s.batch); err != nil {
		// keep the batch; the next flush retries it
		s.logger.WithField("records", len(s.batch)).Errorf("flush: %v", err)
		return
	}
	s.logger.Debugf("flushed %d history records", len(s.batch))
	s.batch = s.batch[:0]
}
