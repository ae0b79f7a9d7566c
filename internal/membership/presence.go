// internal/membership/presence.go
package membership

import (
	"github.com/google/uuid"
	"github.com/jason-s-yu/trivia/internal/broadcast"
	"github.com/jason-s-yu/trivia/internal/lobby"
	"github.com/sirupsen/logrus"
)

// Disconnected starts the grace window for userID. If the identity is not
// back before it runs out, it is removed as if it had left. A notice that
// arrives after a newer socket already registered is ignored.
func (c *Coordinator) Disconnected(userID uuid.UUID) {
	lobbyID, ok := c.presence.LobbyOf(userID)
	if !ok {
		return
	}
	err := c.store.Mutate(lobbyID, func(l *lobby.Lobby) error {
		m, ok := l.Member(userID)
		if !ok || c.presence.Online(userID) {
			return nil
		}
		m.Connected = false
		l.Schedule(lobby.GraceTimerKey(userID), c.grace, func(l *lobby.Lobby) {
			if c.presence.Online(userID) {
				return
			}
			if m, ok := l.Member(userID); ok && !m.Connected {
				c.remove(l, userID, "disconnected", false)
			}
		})
		if m.Status == lobby.MemberActive {
			l.Broadcast(broadcast.EventMembershipChanged, l.MembersPayload())
		}
		return nil
	})
	c.logStale(err, lobbyID, userID, "disconnect")
}

// Connected restores a member that came back, inside or outside its grace
// window, and sends it the full lobby state.
func (c *Coordinator) Connected(userID uuid.UUID) {
	lobbyID, ok := c.presence.LobbyOf(userID)
	if !ok {
		return
	}
	err := c.store.Mutate(lobbyID, func(l *lobby.Lobby) error {
		m, ok := l.Member(userID)
		if !ok {
			c.presence.Dissociate(userID, l.ID)
			return nil
		}
		l.CancelTimer(lobby.GraceTimerKey(userID))
		wasDown := !m.Connected
		m.Connected = true
		if wasDown && m.Status == lobby.MemberActive {
			l.Broadcast(broadcast.EventMembershipChanged, l.MembersPayload())
		}
		l.Unicast(userID, broadcast.EventSyncState, l.View(userID))
		return nil
	})
	c.logStale(err, lobbyID, userID, "reconnect")
}

func (c *Coordinator) logStale(err error, lobbyID, userID uuid.UUID, what string) {
	if err == nil {
		return
	}
	if lobby.KindOf(err) == lobby.KindNotFound {
		c.presence.Dissociate(userID, lobbyID)
		return
	}
	c.logger.WithFields(logrus.Fields{"lobby": lobbyID, "user": userID}).Warnf("%s: %v", what, err)
}
