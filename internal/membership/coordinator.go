// internal/membership/coordinator.go
package membership

import (
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/trivia/internal/auth"
	"github.com/jason-s-yu/trivia/internal/broadcast"
	"github.com/jason-s-yu/trivia/internal/lobby"
	"github.com/jason-s-yu/trivia/internal/models"
	"github.com/sirupsen/logrus"
)

// DefaultGrace is how long a disconnected member keeps their seat.
const DefaultGrace = 30 * time.Second

// Presence is the registry's view of who is online and where.
type Presence interface {
	Associate(userID, lobbyID uuid.UUID)
	Dissociate(userID, lobbyID uuid.UUID)
	LobbyOf(userID uuid.UUID) (uuid.UUID, bool)
	Online(userID uuid.UUID) bool
}

// RoundHooks lets the round engine react to roster changes. It is called with
// the lobby lock held.
type RoundHooks interface {
	MemberLeft(l *lobby.Lobby, userID uuid.UUID)
}

// Coordinator owns the membership state machine:
// none -> pending -> active -> (kicked | left | disconnected).
type Coordinator struct {
	store    *lobby.Store
	presence Presence
	rounds   RoundHooks
	logger   *logrus.Logger
	grace    time.Duration
}

// New returns a coordinator. A zero grace uses DefaultGrace.
func New(store *lobby.Store, presence Presence, logger *logrus.Logger, grace time.Duration) *Coordinator {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Coordinator{
		store:    store,
		presence: presence,
		logger:   logger,
		grace:    grace,
	}
}

// SetRoundHooks wires the round engine in. Call before serving traffic.
func (c *Coordinator) SetRoundHooks(h RoundHooks) {
	c.rounds = h
}

// CreateRequest describes a lobby to create.
type CreateRequest struct {
	HostID   uuid.UUID
	HostName string
	Type     models.GameType
	Settings *models.Settings
	Passcode string // optional, private lobbies only
}

// Create builds a lobby with the caller as host.
func (c *Coordinator) Create(req CreateRequest) (uuid.UUID, error) {
	if err := c.checkFree(req.HostID, uuid.Nil); err != nil {
		return uuid.Nil, err
	}
	var hash string
	if req.Passcode != "" {
		h, err := auth.HashPasscode(req.Passcode)
		if err != nil {
			return uuid.Nil, lobby.Errorf(lobby.KindInvalid, "%v", err)
		}
		hash = h
	}
	id, err := c.store.Create(lobby.CreateOptions{
		HostID:       req.HostID,
		HostName:     req.HostName,
		Type:         req.Type,
		Settings:     req.Settings,
		PasscodeHash: hash,
	})
	if err != nil {
		return uuid.Nil, err
	}
	c.presence.Associate(req.HostID, id)
	return id, nil
}

// checkFree rejects identities that already sit in another live lobby. A stale
// association to a lobby that no longer exists is cleared.
func (c *Coordinator) checkFree(userID, target uuid.UUID) error {
	cur, ok := c.presence.LobbyOf(userID)
	if !ok || cur == target {
		return nil
	}
	err := c.store.Mutate(cur, func(l *lobby.Lobby) error {
		if _, member := l.Member(userID); member {
			return lobby.Errorf(lobby.KindInvalidState, "already in lobby %s", cur)
		}
		return nil
	})
	if lobby.KindOf(err) == lobby.KindNotFound {
		c.presence.Dissociate(userID, cur)
		return nil
	}
	if err == nil {
		c.presence.Dissociate(userID, cur)
	}
	return err
}

type joinGate struct {
	status  lobby.MemberStatus
	private bool
	invited bool
	hash    string
	solo    bool
}

// RequestJoin files a join request. Public lobbies, invited identities and a
// matching passcode are let through to pending. An identity that is already a
// member gets its current status back.
func (c *Coordinator) RequestJoin(lobbyID, userID uuid.UUID, username, passcode string) (lobby.MemberStatus, error) {
	var gate joinGate
	err := c.store.Mutate(lobbyID, func(l *lobby.Lobby) error {
		if m, ok := l.Member(userID); ok {
			gate.status = m.Status
		}
		gate.private = l.Settings.Visibility == models.VisibilityPrivate
		gate.invited = l.Invites[userID]
		gate.hash = l.PasscodeHash
		gate.solo = l.Type.Mode == models.ModeSolo
		return nil
	})
	if err != nil {
		return "", err
	}
	if gate.status != "" {
		return gate.status, nil
	}
	if gate.solo {
		return "", lobby.Errorf(lobby.KindInvalidState, "solo lobbies take no other players")
	}
	if gate.private && !gate.invited {
		if gate.hash == "" || passcode == "" || !auth.VerifyPasscode(passcode, gate.hash) {
			return "", lobby.Errorf(lobby.KindUnauthorized, "private lobby requires an invite or the passcode")
		}
	}
	if err := c.checkFree(userID, lobbyID); err != nil {
		return "", err
	}

	var status lobby.MemberStatus
	err = c.store.Mutate(lobbyID, func(l *lobby.Lobby) error {
		if m, ok := l.Member(userID); ok {
			status = m.Status
			return nil
		}
		m := l.AddPending(userID, username)
		m.Connected = c.presence.Online(userID)
		status = m.Status
		c.presence.Associate(userID, l.ID)

		l.Unicast(l.HostID, broadcast.EventJoinRequested, map[string]interface{}{
			"lobby_id": l.ID,
			"user_id":  userID,
			"username": username,
		})
		l.Broadcast(broadcast.EventMembershipChanged, l.MembersPayload())
		return nil
	})
	if err == nil {
		c.logger.WithFields(logrus.Fields{"lobby": lobbyID, "user": userID}).Info("join requested")
	}
	return status, err
}

func requireHost(l *lobby.Lobby, userID uuid.UUID, action string) error {
	if !l.IsHost(userID) {
		return lobby.Errorf(lobby.KindUnauthorized, "only the host may %s", action)
	}
	return nil
}

// Approve moves a pending identity to active.
func (c *Coordinator) Approve(lobbyID, hostID, target uuid.UUID) error {
	return c.store.Mutate(lobbyID, func(l *lobby.Lobby) error {
		if err := requireHost(l, hostID, "approve"); err != nil {
			return err
		}
		m, ok := l.Member(target)
		if !ok {
			return lobby.Errorf(lobby.KindNotFound, "no join request from %s", target)
		}
		if m.Status == lobby.MemberActive {
			return lobby.Errorf(lobby.KindInvalidState, "%s is already a member", target)
		}
		if l.ActiveCount() >= l.Settings.MaxPlayers {
			return lobby.Errorf(lobby.KindInvalidState, "lobby is full")
		}
		l.Activate(target)
		m.Connected = c.presence.Online(target)
		c.presence.Associate(target, l.ID)

		l.Broadcast(broadcast.EventMembershipChanged, l.MembersPayload())
		l.Unicast(target, broadcast.EventSyncState, l.View(target))
		c.logger.WithFields(logrus.Fields{"lobby": l.ID, "user": target}).Info("member approved")
		return nil
	})
}

// Reject removes target whatever its state, the same way a kick does.
func (c *Coordinator) Reject(lobbyID, hostID, target uuid.UUID) error {
	return c.store.Mutate(lobbyID, func(l *lobby.Lobby) error {
		if err := requireHost(l, hostID, "reject"); err != nil {
			return err
		}
		if _, ok := l.Member(target); !ok {
			return lobby.Errorf(lobby.KindNotFound, "%s is not in the lobby", target)
		}
		c.remove(l, target, "join request rejected", true)
		return nil
	})
}

// Kick removes target. A host may kick themself; if they were alone the lobby closes.
func (c *Coordinator) Kick(lobbyID, hostID, target uuid.UUID) error {
	return c.store.Mutate(lobbyID, func(l *lobby.Lobby) error {
		if err := requireHost(l, hostID, "kick"); err != nil {
			return err
		}
		if _, ok := l.Member(target); !ok {
			return lobby.Errorf(lobby.KindNotFound, "%s is not in the lobby", target)
		}
		c.remove(l, target, "kicked by host", true)
		return nil
	})
}

// Leave removes the caller.
func (c *Coordinator) Leave(lobbyID, userID uuid.UUID) error {
	return c.store.Mutate(lobbyID, func(l *lobby.Lobby) error {
		if _, ok := l.Member(userID); !ok {
			return lobby.Errorf(lobby.KindNotFound, "not a member of this lobby")
		}
		c.remove(l, userID, "left", false)
		return nil
	})
}

// remove is the single removal path shared by reject, kick, leave and grace expiry.
func (c *Coordinator) remove(l *lobby.Lobby, userID uuid.UUID, reason string, notify bool) {
	res := l.Remove(userID)
	if !res.Removed {
		return
	}
	c.presence.Dissociate(userID, l.ID)
	if notify {
		l.Unicast(userID, broadcast.EventKicked, map[string]interface{}{
			"lobby_id": l.ID,
			"reason":   reason,
		})
	}
	c.logger.WithFields(logrus.Fields{"lobby": l.ID, "user": userID, "reason": reason}).Info("member removed")

	if res.LobbyClosed {
		c.close(l, "lobby is empty")
		return
	}
	if res.NewHost != uuid.Nil {
		l.Broadcast(broadcast.EventHostTransferred, map[string]interface{}{
			"previous_host_id": userID,
			"host_id":          res.NewHost,
		})
	}
	l.Broadcast(broadcast.EventMembershipChanged, l.MembersPayload())
	if res.WasActive && c.rounds != nil {
		c.rounds.MemberLeft(l, userID)
	}
}

// close notifies everyone still attached and ends the lobby.
func (c *Coordinator) close(l *lobby.Lobby, reason string) {
	payload := map[string]interface{}{"lobby_id": l.ID, "reason": reason}
	for id := range l.Members {
		l.Unicast(id, broadcast.EventLobbyClosed, payload)
		c.presence.Dissociate(id, l.ID)
	}
	l.End()
}

// End closes the lobby on the host's request.
func (c *Coordinator) End(lobbyID, hostID uuid.UUID) error {
	return c.store.Mutate(lobbyID, func(l *lobby.Lobby) error {
		if err := requireHost(l, hostID, "end the lobby"); err != nil {
			return err
		}
		c.close(l, "ended by host")
		return nil
	})
}

// Invite lets target into a private lobby without the passcode.
func (c *Coordinator) Invite(lobbyID, hostID, target uuid.UUID) error {
	return c.store.Mutate(lobbyID, func(l *lobby.Lobby) error {
		if err := requireHost(l, hostID, "invite"); err != nil {
			return err
		}
		if target == uuid.Nil {
			return lobby.Errorf(lobby.KindInvalid, "missing user_id")
		}
		l.Invites[target] = true
		l.Unicast(target, broadcast.EventInvited, map[string]interface{}{
			"lobby_id": l.ID,
			"host_id":  l.HostID,
			"name":     l.Settings.Name,
		})
		return nil
	})
}
