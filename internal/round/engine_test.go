// internal/round/engine_test.go
package round

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/trivia/internal/broadcast"
	"github.com/jason-s-yu/trivia/internal/game"
	"github.com/jason-s-yu/trivia/internal/lobby"
	"github.com/jason-s-yu/trivia/internal/lobby/lobbytest"
	"github.com/jason-s-yu/trivia/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBank struct {
	questions []models.Question
	err       error
}

func (b *fakeBank) Draw(_ context.Context, _ models.GameKind, s models.Settings) ([]models.Question, error) {
	if b.err != nil {
		return nil, b.err
	}
	n := s.QuestionCount
	if n > len(b.questions) {
		n = len(b.questions)
	}
	return append([]models.Question(nil), b.questions[:n]...), nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	matches  []models.MatchResult
	consumed []game.PowerUp
	err      error
}

func (r *fakeRecorder) RecordMatch(_ context.Context, res models.MatchResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matches = append(r.matches, res)
	return r.err
}

func (r *fakeRecorder) ConsumePowerUp(_ context.Context, _ uuid.UUID, p game.PowerUp) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consumed = append(r.consumed, p)
	return r.err
}

func (r *fakeRecorder) Matches() []models.MatchResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.MatchResult(nil), r.matches...)
}

func classicQuestions(n int) []models.Question {
	out := make([]models.Question, n)
	for i := range out {
		out[i] = models.Question{
			ID:      uuid.NewString(),
			Kind:    models.KindClassic,
			Text:    "question",
			Options: []string{"A", "B", "C", "D"},
			Correct: 0,
		}
	}
	return out
}

type harness struct {
	store    *lobby.Store
	rec      *lobbytest.Recorder
	recorder *fakeRecorder
	engine   *Engine
}

func newHarness(t *testing.T, tick time.Duration) *harness {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	rec := lobbytest.NewRecorder()
	store := lobby.NewStore(rec, logger)
	recorder := &fakeRecorder{}
	eng := New(store, &fakeBank{questions: classicQuestions(10)}, recorder, logger, Options{
		Tick:     tick,
		Cooldown: 20 * time.Millisecond,
	})
	return &harness{store: store, rec: rec, recorder: recorder, engine: eng}
}

// lobby builds a lobby of the given mode with n active players, all ready.
// The first id is the host.
func (h *harness) lobby(t *testing.T, mode models.GameMode, n, questions int) (uuid.UUID, []uuid.UUID) {
	t.Helper()
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}
	settings := models.DefaultSettings()
	settings.QuestionCount = questions
	settings.TimePerQuestionSec = 5
	id, err := h.store.Create(lobby.CreateOptions{
		HostID:   ids[0],
		Type:     models.GameType{Mode: mode, Kind: models.KindClassic},
		Settings: &settings,
	})
	require.NoError(t, err)
	require.NoError(t, h.store.Mutate(id, func(l *lobby.Lobby) error {
		for _, uid := range ids[1:] {
			l.AddPending(uid, "p")
			l.Activate(uid)
			l.Members[uid].JoinedAt = l.Members[ids[0]].JoinedAt.Add(time.Duration(len(l.Members)) * time.Millisecond)
		}
		for _, uid := range ids {
			l.Players[uid].Ready = true
		}
		return nil
	}))
	return id, ids
}

func opt(i int) game.Answer { return game.Answer{Option: &i} }

func waitFor(t *testing.T, h *harness, ev broadcast.EventType, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.rec.Count(ev) >= n }, 2*time.Second, 5*time.Millisecond,
		"waiting for %d %s events", n, ev)
}

func TestStartRequiresHostAndReadiness(t *testing.T) {
	h := newHarness(t, time.Second)
	id, ids := h.lobby(t, models.ModeCoop, 3, 3)
	ctx := context.Background()

	assert.ErrorIs(t, h.engine.Start(ctx, id, ids[1]), lobby.ErrUnauthorized)

	require.NoError(t, h.store.Mutate(id, func(l *lobby.Lobby) error {
		l.Players[ids[2]].Ready = false
		return nil
	}))
	assert.ErrorIs(t, h.engine.Start(ctx, id, ids[0]), lobby.ErrInvalidState)
	assert.Zero(t, h.rec.Count(broadcast.EventRoundStarted))
}

func TestVersusStartsWithHalfReady(t *testing.T) {
	h := newHarness(t, time.Second)
	id, ids := h.lobby(t, models.ModeVersus, 4, 1)
	require.NoError(t, h.store.Mutate(id, func(l *lobby.Lobby) error {
		l.Players[ids[2]].Ready = false
		l.Players[ids[3]].Ready = false
		return nil
	}))
	require.NoError(t, h.engine.Start(context.Background(), id, ids[0]))
	assert.Equal(t, 1, h.rec.Count(broadcast.EventRoundStarted))
}

func TestStartFailsWhenBankIsDown(t *testing.T) {
	h := newHarness(t, time.Second)
	h.engine.bank = &fakeBank{err: errors.New("connection refused")}
	id, ids := h.lobby(t, models.ModeCoop, 1, 3)

	err := h.engine.Start(context.Background(), id, ids[0])
	assert.ErrorIs(t, err, lobby.ErrTransient)
	v, _ := h.store.Get(id)
	assert.Equal(t, lobby.StatusWaiting, v.Status)
}

func TestSubmitBroadcastsStatusOnly(t *testing.T) {
	h := newHarness(t, time.Second)
	id, ids := h.lobby(t, models.ModeVersus, 2, 1)
	require.NoError(t, h.engine.Start(context.Background(), id, ids[0]))

	require.NoError(t, h.engine.Submit(id, ids[0], opt(0)))
	ev, ok := h.rec.Last(broadcast.EventSubmissionStatusChanged)
	require.True(t, ok)
	payload := ev.Payload.(map[string]interface{})
	assert.Equal(t, ids[0], payload["user_id"])
	_, leaked := payload["correct"]
	assert.False(t, leaked)
	assert.Zero(t, h.rec.Count(broadcast.EventRoundRevealed))

	err := h.engine.Submit(id, ids[0], opt(1))
	assert.ErrorIs(t, err, lobby.ErrInvalidState)
}

func TestAllSubmittedRevealsOnce(t *testing.T) {
	h := newHarness(t, time.Second)
	id, ids := h.lobby(t, models.ModeVersus, 2, 2)
	require.NoError(t, h.engine.Start(context.Background(), id, ids[0]))

	require.NoError(t, h.engine.Submit(id, ids[0], opt(0)))
	require.NoError(t, h.engine.Submit(id, ids[1], opt(1)))
	assert.Equal(t, 1, h.rec.Count(broadcast.EventRoundRevealed))
	assert.Equal(t, 1, h.rec.Count(broadcast.EventScoresUpdated))

	err := h.engine.Submit(id, ids[1], opt(0))
	assert.ErrorIs(t, err, lobby.ErrInvalidState, "late submission after reveal")
}

func TestRevealExactlyOnceUnderRace(t *testing.T) {
	// 5 ticks of 4ms: the deadline lands while submissions are still arriving.
	h := newHarness(t, 4*time.Millisecond)
	id, ids := h.lobby(t, models.ModeVersus, 8, 1)
	require.NoError(t, h.engine.Start(context.Background(), id, ids[0]))

	var wg sync.WaitGroup
	for i, uid := range ids {
		wg.Add(1)
		go func(i int, uid uuid.UUID) {
			defer wg.Done()
			time.Sleep(time.Duration(i*3) * time.Millisecond)
			_ = h.engine.Submit(id, uid, opt(0))
		}(i, uid)
	}
	wg.Wait()
	waitFor(t, h, broadcast.EventRoundRevealed, 1)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 1, h.rec.Count(broadcast.EventRoundRevealed))
}

func TestNonHostCannotAdvance(t *testing.T) {
	h := newHarness(t, time.Second)
	id, ids := h.lobby(t, models.ModeVersus, 2, 2)
	require.NoError(t, h.engine.Start(context.Background(), id, ids[0]))

	assert.ErrorIs(t, h.engine.Advance(id, ids[0]), lobby.ErrInvalidState, "not revealed yet")
	require.NoError(t, h.engine.Submit(id, ids[0], opt(0)))
	require.NoError(t, h.engine.Submit(id, ids[1], opt(0)))

	before, _ := h.store.ViewFor(id, ids[0])
	assert.ErrorIs(t, h.engine.Advance(id, ids[1]), lobby.ErrUnauthorized)
	after, _ := h.store.ViewFor(id, ids[0])
	assert.Equal(t, before.Round.Index, after.Round.Index)
	assert.True(t, after.Round.Revealed)

	require.NoError(t, h.engine.Advance(id, ids[0]))
	assert.Equal(t, 1, h.rec.Count(broadcast.EventRoundAdvanced))
	assert.Equal(t, 2, h.rec.Count(broadcast.EventRoundStarted))
}

func TestCoopScenarioTimerRevealSplitsScore(t *testing.T) {
	h := newHarness(t, 10*time.Millisecond) // 5s question = 50ms
	id, ids := h.lobby(t, models.ModeCoop, 3, 3)
	require.NoError(t, h.engine.Start(context.Background(), id, ids[0]))

	require.NoError(t, h.engine.Submit(id, ids[0], opt(0)))
	require.NoError(t, h.engine.Submit(id, ids[1], opt(0)))
	assert.Zero(t, h.rec.Count(broadcast.EventRoundRevealed), "third player has not answered")

	waitFor(t, h, broadcast.EventRoundRevealed, 1)
	ev, _ := h.rec.Last(broadcast.EventRoundRevealed)
	payload := ev.Payload.(map[string]interface{})
	assert.Equal(t, "timer", payload["cause"])
	team := payload["team"].(*game.TeamResult)
	assert.True(t, team.Correct)
	assert.Equal(t, team.Points/3, team.Share)

	require.NoError(t, h.store.Mutate(id, func(l *lobby.Lobby) error {
		for _, uid := range ids {
			assert.Equal(t, team.Share, l.Players[uid].Score)
		}
		assert.Equal(t, []game.Mark{game.MarkCorrect}, l.Players[ids[0]].Marks)
		assert.Equal(t, []game.Mark{game.MarkMissing}, l.Players[ids[2]].Marks)
		assert.Equal(t, 3*team.Share, l.TeamScore)
		assert.Equal(t, 1, l.TeamStreak)
		return nil
	}))
}

func finishVersus(t *testing.T, players int) models.MatchResult {
	t.Helper()
	h := newHarness(t, time.Second)
	id, ids := h.lobby(t, models.ModeVersus, players, 1)
	require.NoError(t, h.engine.Start(context.Background(), id, ids[0]))
	for i, uid := range ids {
		answer := 1
		if i%2 == 0 {
			answer = 0
		}
		require.NoError(t, h.engine.Submit(id, uid, opt(answer)))
	}
	require.NoError(t, h.engine.Advance(id, ids[0]))
	waitFor(t, h, broadcast.EventMatchFinished, 1)

	matches := h.recorder.Matches()
	require.Len(t, matches, 1)
	return matches[0]
}

func countWinners(res models.MatchResult) int {
	n := 0
	for _, p := range res.Players {
		if p.IsWinner {
			n++
		}
	}
	return n
}

func TestVersusWinnerCounts(t *testing.T) {
	three := finishVersus(t, 3)
	assert.Equal(t, 2, countWinners(three))
	assert.Len(t, three.Players, 3)
	assert.Equal(t, 1, three.Players[0].Rank)

	four := finishVersus(t, 4)
	assert.Equal(t, 2, countWinners(four))
}

func TestExclusivePowerUp(t *testing.T) {
	h := newHarness(t, time.Second)
	id, ids := h.lobby(t, models.ModeCoop, 2, 1)
	require.NoError(t, h.engine.Start(context.Background(), id, ids[0]))

	before, _ := h.store.ViewFor(id, ids[0])
	require.NoError(t, h.engine.UsePowerUp(id, ids[0], "time_freeze"))
	err := h.engine.UsePowerUp(id, ids[1], "time_freeze")
	assert.ErrorIs(t, err, lobby.ErrConflict)

	after, _ := h.store.ViewFor(id, ids[0])
	assert.Equal(t, int64(10*time.Second/time.Millisecond), after.Round.DeadlineAt-before.Round.DeadlineAt,
		"the deadline moved exactly once")
	assert.Equal(t, 1, h.rec.Count(broadcast.EventPowerUpUsed))

	h.recorder.mu.Lock()
	assert.Equal(t, []game.PowerUp{game.PowerUpTimeFreeze}, h.recorder.consumed)
	h.recorder.mu.Unlock()
}

func TestTimeFreezeRejectedInVersus(t *testing.T) {
	h := newHarness(t, time.Second)
	id, ids := h.lobby(t, models.ModeVersus, 2, 1)
	require.NoError(t, h.engine.Start(context.Background(), id, ids[0]))
	assert.ErrorIs(t, h.engine.UsePowerUp(id, ids[0], "time_freeze"), lobby.ErrInvalidState)
	assert.ErrorIs(t, h.engine.UsePowerUp(id, ids[0], "shield"), lobby.ErrInvalid)
}

func TestDoublePointsAndHint(t *testing.T) {
	h := newHarness(t, time.Second)
	id, ids := h.lobby(t, models.ModeVersus, 2, 1)
	require.NoError(t, h.engine.Start(context.Background(), id, ids[0]))

	require.NoError(t, h.engine.UsePowerUp(id, ids[0], "double_points"))
	require.NoError(t, h.engine.UsePowerUp(id, ids[0], "hint"))
	hints := h.rec.UnicastsTo(ids[0])
	require.NotEmpty(t, hints)
	assert.Equal(t, broadcast.EventHint, hints[len(hints)-1].Type)

	require.NoError(t, h.engine.Submit(id, ids[0], opt(0)))
	require.NoError(t, h.engine.Submit(id, ids[1], opt(0)))
	require.NoError(t, h.store.Mutate(id, func(l *lobby.Lobby) error {
		assert.Greater(t, l.Players[ids[0]].Score, l.Players[ids[1]].Score)
		assert.GreaterOrEqual(t, l.Players[ids[0]].Score, 2*game.FloorPoints)
		return nil
	}))
}

func TestSoloAutoAdvancesToFinish(t *testing.T) {
	h := newHarness(t, time.Second)
	id, ids := h.lobby(t, models.ModeSolo, 1, 2)
	require.NoError(t, h.engine.Start(context.Background(), id, ids[0]))

	require.NoError(t, h.engine.Submit(id, ids[0], opt(0)))
	waitFor(t, h, broadcast.EventRoundAdvanced, 1)
	require.NoError(t, h.engine.Submit(id, ids[0], opt(0)))
	waitFor(t, h, broadcast.EventMatchFinished, 1)

	v, err := h.store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, lobby.StatusFinished, v.Status)
}

func TestRestartFromFinishedResetsScores(t *testing.T) {
	h := newHarness(t, time.Second)
	id, ids := h.lobby(t, models.ModeSolo, 1, 1)
	ctx := context.Background()
	require.NoError(t, h.engine.Start(ctx, id, ids[0]))
	require.NoError(t, h.engine.Submit(id, ids[0], opt(0)))
	waitFor(t, h, broadcast.EventMatchFinished, 1)

	require.NoError(t, h.store.Mutate(id, func(l *lobby.Lobby) error {
		assert.Positive(t, l.Players[ids[0]].Score)
		assert.False(t, l.Players[ids[0]].Ready, "ready flags clear when a match starts")
		l.Players[ids[0]].Ready = true
		return nil
	}))
	require.NoError(t, h.engine.Start(ctx, id, ids[0]))
	require.NoError(t, h.store.Mutate(id, func(l *lobby.Lobby) error {
		assert.Zero(t, l.Players[ids[0]].Score)
		assert.Empty(t, l.Players[ids[0]].Marks)
		return nil
	}))
}

func TestMemberLeavingTriggersReveal(t *testing.T) {
	h := newHarness(t, time.Second)
	id, ids := h.lobby(t, models.ModeVersus, 3, 1)
	require.NoError(t, h.engine.Start(context.Background(), id, ids[0]))
	require.NoError(t, h.engine.Submit(id, ids[0], opt(0)))
	require.NoError(t, h.engine.Submit(id, ids[1], opt(0)))

	require.NoError(t, h.store.Mutate(id, func(l *lobby.Lobby) error {
		l.Remove(ids[2])
		h.engine.MemberLeft(l, ids[2])
		return nil
	}))
	assert.Equal(t, 1, h.rec.Count(broadcast.EventRoundRevealed))
}
