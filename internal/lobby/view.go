// internal/lobby/view.go
package lobby

import (
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/trivia/internal/game"
	"github.com/jason-s-yu/trivia/internal/models"
)

// MemberView is one roster line as clients see it.
type MemberView struct {
	UserID    uuid.UUID    `json:"user_id"`
	Username  string       `json:"username"`
	Status    MemberStatus `json:"status"`
	IsHost    bool         `json:"is_host"`
	Connected bool         `json:"connected"`
	Ready     bool         `json:"ready"`
	Score     int          `json:"score"`
	Streak    int          `json:"streak"`
	Submitted bool         `json:"submitted"`
	Marks     []game.Mark  `json:"marks,omitempty"`
}

// RoundView is the question in play. The answer is only filled in once the
// question has been revealed.
type RoundView struct {
	Index       int                   `json:"index"`
	Total       int                   `json:"total"`
	Question    models.PublicQuestion `json:"question"`
	StartedAt   int64                 `json:"started_at"`
	DeadlineAt  int64                 `json:"deadline_at"`
	RemainingMs int64                 `json:"remaining_ms"`
	Revealed    bool                  `json:"revealed"`
	Submitted   []uuid.UUID           `json:"submitted"`
	YourAnswer  *game.Answer          `json:"your_answer,omitempty"`
	Correct     *int                  `json:"correct,omitempty"`
	Answer      string                `json:"answer,omitempty"`
	Team        *game.TeamResult      `json:"team,omitempty"`
}

// View is a full snapshot of a lobby from one identity's point of view. It is
// the payload of sync_state and of GET /lobbies/{id}.
type View struct {
	ID              uuid.UUID       `json:"id"`
	HostID          uuid.UUID       `json:"host_id"`
	Type            models.GameType `json:"type"`
	Settings        models.Settings `json:"settings"`
	SettingsVersion int             `json:"settings_version"`
	Status          Status          `json:"status"`
	Private         bool            `json:"private"`
	HasPasscode     bool            `json:"has_passcode"`
	Members         []MemberView    `json:"members"`
	Chat            []ChatMessage   `json:"chat,omitempty"`
	Round           *RoundView      `json:"round,omitempty"`
	TeamScore       int             `json:"team_score,omitempty"`
	TeamStreak      int             `json:"team_streak,omitempty"`
	You             *MemberView     `json:"you,omitempty"`
}

// Summary is a lobby list entry.
type Summary struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	HostID     uuid.UUID       `json:"host_id"`
	Type       models.GameType `json:"type"`
	Players    int             `json:"players"`
	MaxPlayers int             `json:"max_players"`
	Status     Status          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (l *Lobby) memberView(userID uuid.UUID) MemberView {
	m := l.Members[userID]
	mv := MemberView{
		UserID:    userID,
		Username:  m.Username,
		Status:    m.Status,
		IsHost:    l.HostID == userID,
		Connected: m.Connected,
	}
	if ps, ok := l.Players[userID]; ok {
		mv.Ready = ps.Ready
		mv.Score = ps.Score
		mv.Streak = ps.Streak
		mv.Submitted = ps.Submitted
		mv.Marks = ps.Marks
	}
	return mv
}

// View builds the snapshot for forUser. Non-members get the public parts only.
func (l *Lobby) View(forUser uuid.UUID) View {
	v := View{
		ID:              l.ID,
		HostID:          l.HostID,
		Type:            l.Type,
		Settings:        l.Settings,
		SettingsVersion: l.SettingsVersion,
		Status:          l.Status,
		Private:         l.Settings.Visibility == models.VisibilityPrivate,
		HasPasscode:     l.PasscodeHash != "",
		Members:         make([]MemberView, 0, len(l.Members)),
		TeamScore:       l.TeamScore,
		TeamStreak:      l.TeamStreak,
	}
	for _, id := range l.ActiveIDs() {
		v.Members = append(v.Members, l.memberView(id))
	}

	m, isMember := l.Members[forUser]
	if !isMember {
		return v
	}
	you := l.memberView(forUser)
	v.You = &you
	if m.Status != MemberActive {
		return v
	}

	for _, id := range l.PendingIDs() {
		v.Members = append(v.Members, l.memberView(id))
	}
	v.Chat = append([]ChatMessage(nil), l.Chat...)
	if l.Round != nil && l.Status == StatusInProgress {
		v.Round = l.roundView(forUser)
	}
	return v
}

func (l *Lobby) roundView(forUser uuid.UUID) *RoundView {
	r := l.Round
	now := l.Now()
	rv := &RoundView{
		Index:       r.Index,
		Total:       r.Total,
		Question:    r.Question.Public(),
		StartedAt:   r.StartedAt.UnixMilli(),
		DeadlineAt:  r.Deadline().UnixMilli(),
		RemainingMs: r.Remaining(now).Milliseconds(),
		Revealed:    r.Revealed,
		Submitted:   r.SubmittedIDs(),
	}
	if sub, ok := r.Submissions[forUser]; ok {
		a := sub.Answer
		rv.YourAnswer = &a
	}
	if r.Revealed {
		rv.RemainingMs = 0
		if r.Question.Kind == models.KindKnowledge {
			rv.Answer = r.Question.Answer
		} else {
			c := r.Question.Correct
			rv.Correct = &c
		}
		rv.Team = l.LastTeam
	}
	return rv
}

// Summary is the list entry for the lobby.
func (l *Lobby) Summary() Summary {
	return Summary{
		ID:         l.ID,
		Name:       l.Settings.Name,
		HostID:     l.HostID,
		Type:       l.Type,
		Players:    l.ActiveCount(),
		MaxPlayers: l.Settings.MaxPlayers,
		Status:     l.Status,
		CreatedAt:  l.CreatedAt,
	}
}
