// internal/lobby/lobby.go
package lobby

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/trivia/internal/broadcast"
	"github.com/jason-s-yu/trivia/internal/game"
	"github.com/jason-s-yu/trivia/internal/models"
)

// Status is the lifecycle state of a lobby.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in_progress"
	StatusFinished   Status = "finished"
)

// MemberStatus is where a player is in the join flow.
type MemberStatus string

const (
	MemberPending MemberStatus = "pending"
	MemberActive  MemberStatus = "active"
)

// Broadcaster is the subset of the gateway a lobby talks to.
type Broadcaster interface {
	Enroll(lobbyID, userID uuid.UUID)
	Withdraw(lobbyID, userID uuid.UUID)
	Drop(lobbyID uuid.UUID)
	Broadcast(lobbyID uuid.UUID, ev broadcast.EventType, payload interface{})
	Unicast(userID uuid.UUID, ev broadcast.EventType, payload interface{})
}

// Member is one entry of the lobby's membership table.
type Member struct {
	UserID      uuid.UUID    `json:"user_id"`
	Username    string       `json:"username"`
	Status      MemberStatus `json:"status"`
	RequestedAt time.Time    `json:"requested_at"`
	JoinedAt    time.Time    `json:"joined_at,omitempty"` // set on activation, drives host transfer
	Connected   bool         `json:"connected"`
}

// PlayerState is per-player game state. Score, Streak and Correct survive
// between questions; the rest is reset when a new question opens.
type PlayerState struct {
	Score      int          `json:"score"`
	Streak     int          `json:"streak"`
	Correct    int          `json:"correct"`
	Ready      bool         `json:"ready"`
	Submitted  bool         `json:"submitted"`
	LastAnswer *game.Answer `json:"last_answer,omitempty"`
	Marks      []game.Mark  `json:"marks"`
}

// ResetForQuestion clears the per-question fields.
func (p *PlayerState) ResetForQuestion() {
	p.Submitted = false
	p.LastAnswer = nil
}

// ResetForMatch clears everything scored in a previous match.
func (p *PlayerState) ResetForMatch() {
	p.Score = 0
	p.Streak = 0
	p.Correct = 0
	p.Marks = nil
	p.ResetForQuestion()
}

// ChatMessage is one entry of the append-only chat log.
type ChatMessage struct {
	Seq      int       `json:"seq"`
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Text     string    `json:"text"`
	At       time.Time `json:"at"`
}

// Lobby is the authoritative in-memory state of one lobby. Every field is
// guarded by the lobby's lock in the Store; methods assume it is held.
type Lobby struct {
	ID              uuid.UUID
	HostID          uuid.UUID
	Type            models.GameType
	Settings        models.Settings
	SettingsVersion int
	Status          Status
	CreatedAt       time.Time
	PasscodeHash    string

	Members map[uuid.UUID]*Member
	Players map[uuid.UUID]*PlayerState
	Invites map[uuid.UUID]bool
	Chat    []ChatMessage

	// Match state
	MatchID        uuid.UUID
	MatchStartedAt time.Time
	Questions      []models.Question
	Round          *game.Round
	TeamScore      int
	TeamStreak     int
	LastTeam       *game.TeamResult

	store       *Store
	gw          Broadcaster
	timers      map[string]*lobbyTimer
	timerGen    uint64
	afterCommit []func()
	ended       bool
}

func newLobby(store *Store, gw Broadcaster, typ models.GameType, settings models.Settings, now time.Time) *Lobby {
	return &Lobby{
		ID:        uuid.New(),
		Type:      typ,
		Settings:  settings,
		Status:    StatusWaiting,
		CreatedAt: now,
		Members:   make(map[uuid.UUID]*Member),
		Players:   make(map[uuid.UUID]*PlayerState),
		Invites:   make(map[uuid.UUID]bool),
		Chat:      []ChatMessage{},
		store:     store,
		gw:        gw,
		timers:    make(map[string]*lobbyTimer),
	}
}

// Now is the store's clock.
func (l *Lobby) Now() time.Time {
	return l.store.now()
}

// Member returns the membership entry for userID.
func (l *Lobby) Member(userID uuid.UUID) (*Member, bool) {
	m, ok := l.Members[userID]
	return m, ok
}

// IsHost reports whether userID currently holds the host role.
func (l *Lobby) IsHost(userID uuid.UUID) bool {
	return l.HostID == userID && l.IsActive(userID)
}

// IsActive reports whether userID is an approved member.
func (l *Lobby) IsActive(userID uuid.UUID) bool {
	m, ok := l.Members[userID]
	return ok && m.Status == MemberActive
}

// ActiveIDs lists active members in a stable order.
func (l *Lobby) ActiveIDs() []uuid.UUID {
	return l.idsWithStatus(MemberActive)
}

// PendingIDs lists members waiting for approval.
func (l *Lobby) PendingIDs() []uuid.UUID {
	return l.idsWithStatus(MemberPending)
}

func (l *Lobby) idsWithStatus(status MemberStatus) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(l.Members))
	for id, m := range l.Members {
		if m.Status == status {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		mi, mj := l.Members[out[i]], l.Members[out[j]]
		if !mi.JoinedAt.Equal(mj.JoinedAt) {
			return mi.JoinedAt.Before(mj.JoinedAt)
		}
		if !mi.RequestedAt.Equal(mj.RequestedAt) {
			return mi.RequestedAt.Before(mj.RequestedAt)
		}
		return out[i].String() < out[j].String()
	})
	return out
}

// ActiveCount is the number of approved members.
func (l *Lobby) ActiveCount() int {
	n := 0
	for _, m := range l.Members {
		if m.Status == MemberActive {
			n++
		}
	}
	return n
}

// AddPending creates a pending membership entry.
func (l *Lobby) AddPending(userID uuid.UUID, username string) *Member {
	m := &Member{
		UserID:      userID,
		Username:    username,
		Status:      MemberPending,
		RequestedAt: l.Now(),
		Connected:   true,
	}
	l.Members[userID] = m
	return m
}

// Activate promotes userID to an active member and starts delivering lobby events to them.
func (l *Lobby) Activate(userID uuid.UUID) *Member {
	m, ok := l.Members[userID]
	if !ok {
		return nil
	}
	m.Status = MemberActive
	m.JoinedAt = l.Now()
	if _, ok := l.Players[userID]; !ok {
		l.Players[userID] = &PlayerState{}
	}
	l.gw.Enroll(l.ID, userID)
	return m
}

// RemoveResult describes the side effects of removing a member.
type RemoveResult struct {
	Removed     bool
	WasActive   bool
	WasHost     bool
	NewHost     uuid.UUID // uuid.Nil when the host did not change
	LobbyClosed bool
}

// Remove deletes userID from the lobby. Removing the host hands the role to
// NextHost; removing the last active member ends the lobby.
func (l *Lobby) Remove(userID uuid.UUID) RemoveResult {
	m, ok := l.Members[userID]
	if !ok {
		return RemoveResult{}
	}
	res := RemoveResult{
		Removed:   true,
		WasActive: m.Status == MemberActive,
		WasHost:   l.HostID == userID,
	}
	delete(l.Members, userID)
	delete(l.Players, userID)
	l.CancelTimer(GraceTimerKey(userID))
	l.gw.Withdraw(l.ID, userID)

	if l.ActiveCount() == 0 {
		res.LobbyClosed = true
		l.End()
		return res
	}
	if res.WasHost {
		l.HostID = l.NextHost()
		res.NewHost = l.HostID
	}
	return res
}

// NextHost picks the active member with the earliest join time; ties go to
// the lexicographically smallest identity.
func (l *Lobby) NextHost() uuid.UUID {
	var best *Member
	for _, m := range l.Members {
		if m.Status != MemberActive {
			continue
		}
		if best == nil ||
			m.JoinedAt.Before(best.JoinedAt) ||
			(m.JoinedAt.Equal(best.JoinedAt) && m.UserID.String() < best.UserID.String()) {
			best = m
		}
	}
	if best == nil {
		return uuid.Nil
	}
	return best.UserID
}

// Broadcast sends an event to every active member. Call it only from inside
// the critical section so events keep commit order.
func (l *Lobby) Broadcast(ev broadcast.EventType, payload interface{}) {
	l.gw.Broadcast(l.ID, ev, payload)
}

// Unicast sends an event to one identity.
func (l *Lobby) Unicast(userID uuid.UUID, ev broadcast.EventType, payload interface{}) {
	l.gw.Unicast(userID, ev, payload)
}

// AfterCommit queues fn to run after the lock is released. Use it for I/O.
func (l *Lobby) AfterCommit(fn func()) {
	l.afterCommit = append(l.afterCommit, fn)
}

// End marks the lobby for deletion once the current mutation returns.
func (l *Lobby) End() {
	l.ended = true
}

// Ended reports whether End was called.
func (l *Lobby) Ended() bool {
	return l.ended
}

// MembersPayload is the membership snapshot broadcast on every change.
func (l *Lobby) MembersPayload() map[string]interface{} {
	members := make([]MemberView, 0, len(l.Members))
	for _, id := range append(l.ActiveIDs(), l.PendingIDs()...) {
		members = append(members, l.memberView(id))
	}
	return map[string]interface{}{
		"lobby_id": l.ID,
		"host_id":  l.HostID,
		"members":  members,
	}
}
