// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/trivia/internal/game"
	"github.com/jason-s-yu/trivia/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list the historian drains.
const DefaultQueueName = "trivia_history"

// Connect returns a client for addr/db after a successful ping.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// Queue is a Redis list of history records. The game server pushes, the
// historian pops.
type Queue struct {
	rdb  *redis.Client
	name string
}

// NewQueue wraps the list called name.
func NewQueue(rdb *redis.Client, name string) *Queue {
	if name == "" {
		name = DefaultQueueName
	}
	return &Queue{rdb: rdb, name: name}
}

// Name is the list key.
func (q *Queue) Name() string {
	return q.name
}

// Push appends a record to the tail of the list.
func (q *Queue) Push(ctx context.Context, rec models.HistoryRecord) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if err := q.rdb.RPush(ctx, q.name, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", q.name, err)
	}
	return nil
}

// Pop waits up to timeout for the head of the list. ok is false when
// nothing arrived in time.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (rec models.HistoryRecord, ok bool, err error) {
	res, err := q.rdb.BLPop(ctx, timeout, q.name).Result()
	if errors.Is(err, redis.Nil) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, fmt.Errorf("BLPop %s: %w", q.name, err)
	}
	if len(res) < 2 {
		return rec, false, nil
	}
	// res[0] is the list name, res[1] the payload
	rec, err = decodeRecord([]byte(res[1]))
	if err != nil {
		return rec, false, err
	}
	return rec, true, nil
}

// Len reports how many records are waiting.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.name).Result()
}

func encodeRecord(rec models.HistoryRecord) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal history record: %w", err)
	}
	return data, nil
}

func decodeRecord(data []byte) (models.HistoryRecord, error) {
	var rec models.HistoryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("invalid history record: %w", err)
	}
	switch rec.Kind {
	case models.HistoryMatch:
		if rec.Match == nil {
			return rec, errors.New("match record without match")
		}
	case models.HistoryPowerUp:
		if rec.PowerUp == nil {
			return rec, errors.New("powerup record without powerup")
		}
	default:
		return rec, fmt.Errorf("unknown history kind %q", rec.Kind)
	}
	return rec, nil
}

// pusher is the part of Queue the recorder needs.
type pusher interface {
	Push(ctx context.Context, rec models.HistoryRecord) error
}

// QueueRecorder hands match results and power-up use to the historian
// through the queue instead of writing to Postgres on the game server.
type QueueRecorder struct {
	queue pusher
	now   func() time.Time
}

// NewQueueRecorder returns a recorder pushing to q.
func NewQueueRecorder(q *Queue) *QueueRecorder {
	return &QueueRecorder{queue: q, now: time.Now}
}

// RecordMatch queues a finished match.
func (r *QueueRecorder) RecordMatch(ctx context.Context, res models.MatchResult) error {
	return r.queue.Push(ctx, models.HistoryRecord{Kind: models.HistoryMatch, Match: &res})
}

// ConsumePowerUp queues an inventory decrement.
func (r *QueueRecorder) ConsumePowerUp(ctx context.Context, userID uuid.UUID, p game.PowerUp) error {
	return r.queue.Push(ctx, models.HistoryRecord{
		Kind:    models.HistoryPowerUp,
		PowerUp: &models.PowerUpUse{UserID: userID, PowerUp: string(p), At: r.now()},
	})
}
