// internal/registry/registry.go
package registry

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Transport is a live connection to one client. Send must not block; it
// reports false when the message could not be queued.
type Transport interface {
	Send(msg interface{}) bool
	Close(reason string)
}

// Listener is told when an identity becomes reachable or unreachable.
type Listener interface {
	Connected(userID uuid.UUID)
	Disconnected(userID uuid.UUID)
}

// ForceDisconnectNotice is sent to a transport that lost its identity to a newer login.
type ForceDisconnectNotice struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// EventForceDisconnected is the notice type a replaced transport receives.
const EventForceDisconnected = "force_disconnected"

// Registry maps an identity to at most one live transport and remembers which
// lobby the identity currently belongs to.
type Registry struct {
	mu       sync.RWMutex
	conns    map[uuid.UUID]Transport
	owners   map[Transport]uuid.UUID
	lobbies  map[uuid.UUID]uuid.UUID
	listener Listener
	logger   *logrus.Logger
}

// New returns an empty registry.
func New(logger *logrus.Logger) *Registry {
	return &Registry{
		conns:   make(map[uuid.UUID]Transport),
		owners:  make(map[Transport]uuid.UUID),
		lobbies: make(map[uuid.UUID]uuid.UUID),
		logger:  logger,
	}
}

// SetListener installs the presence listener. Call before serving traffic.
func (r *Registry) SetListener(l Listener) {
	r.mu.Lock()
	r.listener = l
	r.mu.Unlock()
}

// Register makes t the transport for userID. A previous transport for the same
// identity is told it was replaced and then closed.
func (r *Registry) Register(userID uuid.UUID, t Transport) {
	r.mu.Lock()
	old, hadOld := r.conns[userID]
	if hadOld {
		delete(r.owners, old)
	}
	r.conns[userID] = t
	r.owners[t] = userID
	listener := r.listener
	r.mu.Unlock()

	if hadOld && old != t {
		r.logger.WithField("user", userID).Info("replacing stale connection")
		old.Send(ForceDisconnectNotice{
			Type:   EventForceDisconnected,
			Reason: "signed in from another session",
		})
		old.Close("replaced by a newer connection")
	}

	if listener != nil {
		listener.Connected(userID)
	}
}

// Unregister drops t. It is a no-op when t was already replaced, so a stale
// tab closing never marks the newer session unreachable. Returns whether the
// identity became unreachable.
func (r *Registry) Unregister(t Transport) bool {
	r.mu.Lock()
	userID, ok := r.owners[t]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.owners, t)
	delete(r.conns, userID)
	_, inLobby := r.lobbies[userID]
	listener := r.listener
	r.mu.Unlock()

	if inLobby && listener != nil {
		listener.Disconnected(userID)
	}
	return true
}

// Lookup returns the live transport for userID, if any.
func (r *Registry) Lookup(userID uuid.UUID) (Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.conns[userID]
	return t, ok
}

// Online reports whether userID has a live transport.
func (r *Registry) Online(userID uuid.UUID) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// Associate records that userID belongs to lobbyID, replacing any previous lobby.
func (r *Registry) Associate(userID, lobbyID uuid.UUID) {
	r.mu.Lock()
	r.lobbies[userID] = lobbyID
	r.mu.Unlock()
}

// Dissociate clears the association, but only if it still points at lobbyID.
func (r *Registry) Dissociate(userID, lobbyID uuid.UUID) {
	r.mu.Lock()
	if cur, ok := r.lobbies[userID]; ok && cur == lobbyID {
		delete(r.lobbies, userID)
	}
	r.mu.Unlock()
}

// LobbyOf returns the lobby userID currently belongs to.
func (r *Registry) LobbyOf(userID uuid.UUID) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.lobbies[userID]
	return id, ok
}

// Count returns the number of live transports.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
