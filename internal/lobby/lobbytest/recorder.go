// Package lobbytest provides a recording Broadcaster for tests.
package lobbytest

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/trivia/internal/broadcast"
)

// Event is one recorded broadcast or unicast. To is uuid.Nil for broadcasts.
type Event struct {
	LobbyID uuid.UUID
	To      uuid.UUID
	Type    broadcast.EventType
	Payload interface{}
}

// Recorder implements lobby.Broadcaster and keeps everything it was asked to send.
type Recorder struct {
	mu      sync.Mutex
	events  []Event
	rosters map[uuid.UUID]map[uuid.UUID]bool
}

func NewRecorder() *Recorder {
	return &Recorder{rosters: make(map[uuid.UUID]map[uuid.UUID]bool)}
}

func (r *Recorder) Enroll(lobbyID, userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rosters[lobbyID] == nil {
		r.rosters[lobbyID] = make(map[uuid.UUID]bool)
	}
	r.rosters[lobbyID][userID] = true
}

func (r *Recorder) Withdraw(lobbyID, userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rosters[lobbyID], userID)
}

func (r *Recorder) Drop(lobbyID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rosters, lobbyID)
}

func (r *Recorder) Broadcast(lobbyID uuid.UUID, ev broadcast.EventType, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{LobbyID: lobbyID, Type: ev, Payload: payload})
}

func (r *Recorder) Unicast(userID uuid.UUID, ev broadcast.EventType, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{To: userID, Type: ev, Payload: payload})
}

// Enrolled reports whether userID currently receives broadcasts of lobbyID.
func (r *Recorder) Enrolled(lobbyID, userID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rosters[lobbyID][userID]
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count returns how many events of type ev were recorded.
func (r *Recorder) Count(ev broadcast.EventType) int {
	n := 0
	for _, e := range r.Events() {
		if e.Type == ev {
			n++
		}
	}
	return n
}

// Last returns the most recent event of type ev.
func (r *Recorder) Last(ev broadcast.EventType) (Event, bool) {
	events := r.Events()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == ev {
			return events[i], true
		}
	}
	return Event{}, false
}

// UnicastsTo returns the events sent directly to userID.
func (r *Recorder) UnicastsTo(userID uuid.UUID) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.To == userID {
			out = append(out, e)
		}
	}
	return out
}

// Reset forgets recorded events; rosters are kept.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
