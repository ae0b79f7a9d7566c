// internal/broadcast/gateway.go
package broadcast

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/trivia/internal/registry"
	"github.com/sirupsen/logrus"
)

// Connections resolves an identity to its live transport.
type Connections interface {
	Lookup(userID uuid.UUID) (registry.Transport, bool)
}

// Gateway fans events out to the active members of a lobby.
//
// Broadcast is meant to be called from inside the lobby's critical section;
// the per-lobby sequence number then follows commit order.
type Gateway struct {
	mu      sync.Mutex
	rosters map[uuid.UUID]map[uuid.UUID]struct{}
	seqs    map[uuid.UUID]uint64
	conns   Connections
	logger  *logrus.Logger
	now     func() time.Time
}

// NewGateway builds a gateway delivering through conns.
func NewGateway(conns Connections, logger *logrus.Logger) *Gateway {
	return &Gateway{
		rosters: make(map[uuid.UUID]map[uuid.UUID]struct{}),
		seqs:    make(map[uuid.UUID]uint64),
		conns:   conns,
		logger:  logger,
		now:     time.Now,
	}
}

// Enroll adds userID to the recipients of lobbyID.
func (g *Gateway) Enroll(lobbyID, userID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	roster, ok := g.rosters[lobbyID]
	if !ok {
		roster = make(map[uuid.UUID]struct{})
		g.rosters[lobbyID] = roster
	}
	roster[userID] = struct{}{}
}

// Withdraw removes userID from the recipients of lobbyID.
func (g *Gateway) Withdraw(lobbyID, userID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if roster, ok := g.rosters[lobbyID]; ok {
		delete(roster, userID)
	}
}

// Drop forgets the lobby entirely.
func (g *Gateway) Drop(lobbyID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.rosters, lobbyID)
	delete(g.seqs, lobbyID)
}

// Members returns the current recipients of lobbyID.
func (g *Gateway) Members(lobbyID uuid.UUID) []uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]uuid.UUID, 0, len(g.rosters[lobbyID]))
	for id := range g.rosters[lobbyID] {
		out = append(out, id)
	}
	return out
}

// Broadcast delivers the event to every enrolled member that has a live transport.
// Members without a transport (disconnected, in their grace window) miss it and
// get a state sync when they come back.
func (g *Gateway) Broadcast(lobbyID uuid.UUID, ev EventType, payload interface{}) {
	g.mu.Lock()
	g.seqs[lobbyID]++
	env := Envelope{
		Type:      ev,
		LobbyID:   lobbyID,
		Seq:       g.seqs[lobbyID],
		Timestamp: g.now().UnixMilli(),
		Payload:   payload,
	}
	recipients := make([]uuid.UUID, 0, len(g.rosters[lobbyID]))
	for id := range g.rosters[lobbyID] {
		recipients = append(recipients, id)
	}
	g.mu.Unlock()

	for _, userID := range recipients {
		g.deliver(userID, env)
	}
}

// Unicast delivers the event to a single identity.
func (g *Gateway) Unicast(userID uuid.UUID, ev EventType, payload interface{}) {
	g.deliver(userID, Envelope{
		Type:      ev,
		Timestamp: g.now().UnixMilli(),
		Payload:   payload,
	})
}

func (g *Gateway) deliver(userID uuid.UUID, env Envelope) {
	t, ok := g.conns.Lookup(userID)
	if !ok {
		return
	}
	if !t.Send(env) {
		g.logger.WithFields(logrus.Fields{
			"user":  userID,
			"lobby": env.LobbyID,
			"event": env.Type,
		}).Warn("dropped event, outbound buffer full or closed")
	}
}
