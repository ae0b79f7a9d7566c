// internal/membership/settings.go
package membership

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jason-s-yu/trivia/internal/broadcast"
	"github.com/jason-s-yu/trivia/internal/lobby"
	"github.com/jason-s-yu/trivia/internal/models"
)

// MaxChatLength is the longest chat message accepted, in characters.
const MaxChatLength = 500

// SetReady flips the caller's ready flag. Only allowed between matches.
func (c *Coordinator) SetReady(lobbyID, userID uuid.UUID, ready bool) error {
	return c.store.Mutate(lobbyID, func(l *lobby.Lobby) error {
		if !l.IsActive(userID) {
			return lobby.Errorf(lobby.KindUnauthorized, "not a member of this lobby")
		}
		if l.Status == lobby.StatusInProgress {
			return lobby.Errorf(lobby.KindInvalidState, "match already in progress")
		}
		ps := l.Players[userID]
		if ps.Ready == ready {
			return nil
		}
		ps.Ready = ready
		l.Broadcast(broadcast.EventMembershipChanged, l.MembersPayload())
		return nil
	})
}

// SendChat appends to the lobby's chat log.
func (c *Coordinator) SendChat(lobbyID, userID uuid.UUID, text string) (lobby.ChatMessage, error) {
	var msg lobby.ChatMessage
	text = strings.TrimSpace(text)
	if text == "" {
		return msg, lobby.Errorf(lobby.KindInvalid, "empty message")
	}
	if utf8.RuneCountInString(text) > MaxChatLength {
		return msg, lobby.Errorf(lobby.KindInvalid, "message longer than %d characters", MaxChatLength)
	}
	err := c.store.Mutate(lobbyID, func(l *lobby.Lobby) error {
		m, ok := l.Member(userID)
		if !ok || m.Status != lobby.MemberActive {
			return lobby.Errorf(lobby.KindUnauthorized, "not a member of this lobby")
		}
		msg = lobby.ChatMessage{
			Seq:      len(l.Chat) + 1,
			UserID:   userID,
			Username: m.Username,
			Text:     text,
			At:       l.Now(),
		}
		l.Chat = append(l.Chat, msg)
		l.Broadcast(broadcast.EventChatAppended, msg)
		return nil
	})
	return msg, err
}

// UpdateSettings applies a partial settings map. Host only, never mid-match.
func (c *Coordinator) UpdateSettings(lobbyID, hostID uuid.UUID, updates map[string]interface{}) (models.Settings, error) {
	var out models.Settings
	err := c.store.Mutate(lobbyID, func(l *lobby.Lobby) error {
		if err := requireHost(l, hostID, "change settings"); err != nil {
			return err
		}
		if l.Status == lobby.StatusInProgress {
			return lobby.Errorf(lobby.KindInvalidState, "cannot change settings during a match")
		}
		next, err := models.ParseSettings(updates, l.Settings)
		if err != nil {
			return lobby.Errorf(lobby.KindInvalid, "%v", err)
		}
		if next.MaxPlayers < l.ActiveCount() {
			return lobby.Errorf(lobby.KindInvalid, "maxPlayers below current member count")
		}
		l.Settings = next
		l.SettingsVersion++
		out = next
		l.Broadcast(broadcast.EventSettingsChanged, map[string]interface{}{
			"settings": next,
			"version":  l.SettingsVersion,
		})
		return nil
	})
	return out, err
}
