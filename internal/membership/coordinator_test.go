// internal/membership/coordinator_test.go
package membership

import (
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/trivia/internal/broadcast"
	"github.com/jason-s-yu/trivia/internal/lobby"
	"github.com/jason-s-yu/trivia/internal/lobby/lobbytest"
	"github.com/jason-s-yu/trivia/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePresence struct {
	mu      sync.Mutex
	lobbies map[uuid.UUID]uuid.UUID
	online  map[uuid.UUID]bool
}

func newFakePresence() *fakePresence {
	return &fakePresence{lobbies: map[uuid.UUID]uuid.UUID{}, online: map[uuid.UUID]bool{}}
}

func (p *fakePresence) Associate(userID, lobbyID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lobbies[userID] = lobbyID
}

func (p *fakePresence) Dissociate(userID, lobbyID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lobbies[userID] == lobbyID {
		delete(p.lobbies, userID)
	}
}

func (p *fakePresence) LobbyOf(userID uuid.UUID) (uuid.UUID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.lobbies[userID]
	return id, ok
}

func (p *fakePresence) Online(userID uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[userID]
}

type fixture struct {
	store    *lobby.Store
	rec      *lobbytest.Recorder
	presence *fakePresence
	coord    *Coordinator
}

func newFixture(t *testing.T, grace time.Duration) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	rec := lobbytest.NewRecorder()
	store := lobby.NewStore(rec, logger)
	presence := newFakePresence()
	return &fixture{
		store:    store,
		rec:      rec,
		presence: presence,
		coord:    New(store, presence, logger, grace),
	}
}

var coopClassic = models.GameType{Mode: models.ModeCoop, Kind: models.KindClassic}

// lobbyWith creates a lobby hosted by host and approves every other id in order.
func (f *fixture) lobbyWith(t *testing.T, host uuid.UUID, others ...uuid.UUID) uuid.UUID {
	t.Helper()
	id, err := f.coord.Create(CreateRequest{HostID: host, HostName: "host", Type: coopClassic})
	require.NoError(t, err)
	for _, o := range others {
		_, err := f.coord.RequestJoin(id, o, "p-"+o.String()[:4], "")
		require.NoError(t, err)
		require.NoError(t, f.coord.Approve(id, host, o))
		time.Sleep(time.Millisecond) // distinct join times
	}
	return id
}

func TestJoinApproveFlow(t *testing.T) {
	f := newFixture(t, 0)
	host, guest := uuid.New(), uuid.New()
	id := f.lobbyWith(t, host)

	status, err := f.coord.RequestJoin(id, guest, "guest", "")
	require.NoError(t, err)
	assert.Equal(t, lobby.MemberPending, status)

	req, ok := f.rec.Last(broadcast.EventJoinRequested)
	require.True(t, ok)
	assert.Equal(t, host, req.To)

	require.NoError(t, f.coord.Approve(id, host, guest))
	v, err := f.store.ViewFor(id, guest)
	require.NoError(t, err)
	require.NotNil(t, v.You)
	assert.Equal(t, lobby.MemberActive, v.You.Status)
	assert.True(t, f.rec.Enrolled(id, guest))

	status, err = f.coord.RequestJoin(id, guest, "guest", "")
	require.NoError(t, err)
	assert.Equal(t, lobby.MemberActive, status, "already in lobby is idempotent")
}

func TestApproveRespectsMaxPlayers(t *testing.T) {
	f := newFixture(t, 0)
	host, a, b := uuid.New(), uuid.New(), uuid.New()
	id := f.lobbyWith(t, host, a)
	_, err := f.coord.UpdateSettings(id, host, map[string]interface{}{"maxPlayers": float64(2)})
	require.NoError(t, err)

	_, err = f.coord.RequestJoin(id, b, "b", "")
	require.NoError(t, err)
	err = f.coord.Approve(id, host, b)
	assert.ErrorIs(t, err, lobby.ErrInvalidState)
}

func TestNonHostActionsDoNotMutate(t *testing.T) {
	f := newFixture(t, 0)
	host, a, pending := uuid.New(), uuid.New(), uuid.New()
	id := f.lobbyWith(t, host, a)
	_, err := f.coord.RequestJoin(id, pending, "p", "")
	require.NoError(t, err)

	before, err := f.store.ViewFor(id, host)
	require.NoError(t, err)

	assert.ErrorIs(t, f.coord.Approve(id, a, pending), lobby.ErrUnauthorized)
	assert.ErrorIs(t, f.coord.Reject(id, a, pending), lobby.ErrUnauthorized)
	assert.ErrorIs(t, f.coord.Kick(id, a, host), lobby.ErrUnauthorized)
	assert.ErrorIs(t, f.coord.Invite(id, a, uuid.New()), lobby.ErrUnauthorized)
	assert.ErrorIs(t, f.coord.End(id, a), lobby.ErrUnauthorized)
	_, err = f.coord.UpdateSettings(id, a, map[string]interface{}{"name": "mine"})
	assert.ErrorIs(t, err, lobby.ErrUnauthorized)

	after, err := f.store.ViewFor(id, host)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestKickHostTransfersToEarliestJoiner(t *testing.T) {
	f := newFixture(t, 0)
	host, first, second := uuid.New(), uuid.New(), uuid.New()
	id := f.lobbyWith(t, host, first, second)

	require.NoError(t, f.coord.Kick(id, host, host))

	v, err := f.store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, first, v.HostID)
	ev, ok := f.rec.Last(broadcast.EventHostTransferred)
	require.True(t, ok)
	assert.Equal(t, first, ev.Payload.(map[string]interface{})["host_id"])

	kicked := f.rec.UnicastsTo(host)
	require.NotEmpty(t, kicked)
	assert.Equal(t, broadcast.EventKicked, kicked[len(kicked)-1].Type)
	_, stillThere := f.presence.LobbyOf(host)
	assert.False(t, stillThere)
}

func TestKickSoleMemberDeletesLobby(t *testing.T) {
	f := newFixture(t, 0)
	host := uuid.New()
	id := f.lobbyWith(t, host)

	require.NoError(t, f.coord.Kick(id, host, host))
	_, err := f.store.Get(id)
	assert.ErrorIs(t, err, lobby.ErrNotFound)
	assert.Zero(t, f.store.Len())
}

func TestLeaveLastActiveClosesForPending(t *testing.T) {
	f := newFixture(t, 0)
	host, pending := uuid.New(), uuid.New()
	id := f.lobbyWith(t, host)
	_, err := f.coord.RequestJoin(id, pending, "p", "")
	require.NoError(t, err)

	require.NoError(t, f.coord.Leave(id, host))
	closed := f.rec.UnicastsTo(pending)
	require.NotEmpty(t, closed)
	assert.Equal(t, broadcast.EventLobbyClosed, closed[len(closed)-1].Type)
	_, ok := f.presence.LobbyOf(pending)
	assert.False(t, ok)
}

func TestReconnectWithinGraceKeepsSeat(t *testing.T) {
	f := newFixture(t, 60*time.Millisecond)
	host, guest := uuid.New(), uuid.New()
	id := f.lobbyWith(t, host, guest)

	f.coord.Disconnected(host)
	time.Sleep(20 * time.Millisecond)
	f.rec.Reset()
	f.coord.Connected(host)
	time.Sleep(100 * time.Millisecond)

	v, err := f.store.ViewFor(id, host)
	require.NoError(t, err)
	assert.Equal(t, host, v.HostID, "no host transfer")
	assert.Len(t, v.Members, 2)
	assert.Zero(t, f.rec.Count(broadcast.EventKicked))
	assert.Zero(t, f.rec.Count(broadcast.EventHostTransferred))

	got := f.rec.UnicastsTo(host)
	require.NotEmpty(t, got)
	assert.Equal(t, broadcast.EventSyncState, got[len(got)-1].Type)
}

func TestGraceExpiryRemovesMember(t *testing.T) {
	f := newFixture(t, 30*time.Millisecond)
	host, guest := uuid.New(), uuid.New()
	id := f.lobbyWith(t, host, guest)

	f.coord.Disconnected(host)
	require.Eventually(t, func() bool {
		v, err := f.store.Get(id)
		return err == nil && v.HostID == guest
	}, time.Second, 5*time.Millisecond)

	v, _ := f.store.Get(id)
	assert.Len(t, v.Members, 1)
}

func TestLateDisconnectAfterReconnectIsIgnored(t *testing.T) {
	f := newFixture(t, 30*time.Millisecond)
	host, guest := uuid.New(), uuid.New()
	id := f.lobbyWith(t, host, guest)

	// the new socket registered before the old one's notice arrived
	f.presence.mu.Lock()
	f.presence.online[host] = true
	f.presence.mu.Unlock()
	f.coord.Connected(host)
	f.coord.Disconnected(host)
	time.Sleep(80 * time.Millisecond)

	v, err := f.store.ViewFor(id, host)
	require.NoError(t, err)
	assert.Equal(t, host, v.HostID)
	assert.Len(t, v.Members, 2)
	require.NotNil(t, v.You)
	assert.True(t, v.You.Connected)
	assert.Zero(t, f.rec.Count(broadcast.EventHostTransferred))
}

func TestGraceTimerSparesMemberBackOnline(t *testing.T) {
	f := newFixture(t, 30*time.Millisecond)
	host, guest := uuid.New(), uuid.New()
	id := f.lobbyWith(t, host, guest)

	f.coord.Disconnected(host)
	f.presence.mu.Lock()
	f.presence.online[host] = true
	f.presence.mu.Unlock()
	time.Sleep(80 * time.Millisecond)

	v, err := f.store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, host, v.HostID)
	assert.Len(t, v.Members, 2)
}

func TestPrivateLobbyNeedsInviteOrPasscode(t *testing.T) {
	f := newFixture(t, 0)
	host, stranger, friend, knows := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	settings := models.DefaultSettings()
	settings.Visibility = models.VisibilityPrivate
	id, err := f.coord.Create(CreateRequest{HostID: host, Type: coopClassic, Settings: &settings, Passcode: "hunter2"})
	require.NoError(t, err)

	_, err = f.coord.RequestJoin(id, stranger, "s", "")
	assert.ErrorIs(t, err, lobby.ErrUnauthorized)
	_, err = f.coord.RequestJoin(id, stranger, "s", "wrong")
	assert.ErrorIs(t, err, lobby.ErrUnauthorized)

	require.NoError(t, f.coord.Invite(id, host, friend))
	status, err := f.coord.RequestJoin(id, friend, "f", "")
	require.NoError(t, err)
	assert.Equal(t, lobby.MemberPending, status)

	status, err = f.coord.RequestJoin(id, knows, "k", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, lobby.MemberPending, status)
}

func TestSoloLobbyRejectsJoins(t *testing.T) {
	f := newFixture(t, 0)
	host := uuid.New()
	id, err := f.coord.Create(CreateRequest{HostID: host, Type: models.GameType{Mode: models.ModeSolo, Kind: models.KindClassic}})
	require.NoError(t, err)
	_, err = f.coord.RequestJoin(id, uuid.New(), "x", "")
	assert.ErrorIs(t, err, lobby.ErrInvalidState)
}

func TestOneLobbyPerIdentity(t *testing.T) {
	f := newFixture(t, 0)
	host, other, guest := uuid.New(), uuid.New(), uuid.New()
	first := f.lobbyWith(t, host, guest)
	second := f.lobbyWith(t, other)

	_, err := f.coord.RequestJoin(second, guest, "g", "")
	assert.ErrorIs(t, err, lobby.ErrInvalidState)

	require.NoError(t, f.coord.Leave(first, guest))
	_, err = f.coord.RequestJoin(second, guest, "g", "")
	assert.NoError(t, err)
}

func TestSendChat(t *testing.T) {
	f := newFixture(t, 0)
	host := uuid.New()
	id := f.lobbyWith(t, host)

	msg, err := f.coord.SendChat(id, host, "  hello  ")
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, 1, msg.Seq)

	_, err = f.coord.SendChat(id, host, "   ")
	assert.ErrorIs(t, err, lobby.ErrInvalid)
	_, err = f.coord.SendChat(id, host, strings.Repeat("x", MaxChatLength+1))
	assert.ErrorIs(t, err, lobby.ErrInvalid)
	_, err = f.coord.SendChat(id, uuid.New(), "hi")
	assert.ErrorIs(t, err, lobby.ErrUnauthorized)

	assert.Equal(t, 1, f.rec.Count(broadcast.EventChatAppended))
}

func TestUpdateSettingsBumpsVersion(t *testing.T) {
	f := newFixture(t, 0)
	host := uuid.New()
	id := f.lobbyWith(t, host)

	s, err := f.coord.UpdateSettings(id, host, map[string]interface{}{
		"questionCount": float64(5),
		"categories":    []interface{}{"science"},
	})
	require.NoError(t, err)
	assert.Equal(t, 5, s.QuestionCount)
	assert.Equal(t, []string{"science"}, s.Categories)

	_, err = f.coord.UpdateSettings(id, host, map[string]interface{}{"timePerQuestionSec": float64(2)})
	assert.ErrorIs(t, err, lobby.ErrInvalid)

	v, _ := f.store.Get(id)
	assert.Equal(t, 1, v.SettingsVersion)
	assert.Equal(t, 1, f.rec.Count(broadcast.EventSettingsChanged))
}

func TestSetReadyBlockedMidMatch(t *testing.T) {
	f := newFixture(t, 0)
	host := uuid.New()
	id := f.lobbyWith(t, host)

	require.NoError(t, f.coord.SetReady(id, host, true))
	require.NoError(t, f.store.Mutate(id, func(l *lobby.Lobby) error {
		assert.True(t, l.Players[host].Ready)
		l.Status = lobby.StatusInProgress
		return nil
	}))
	assert.ErrorIs(t, f.coord.SetReady(id, host, false), lobby.ErrInvalidState)
}
