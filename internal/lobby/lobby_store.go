// internal/lobby/lobby_store.go
package lobby

import (
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/trivia/internal/models"
	"github.com/sirupsen/logrus"
)

// CreateOptions describe a new lobby.
type CreateOptions struct {
	HostID       uuid.UUID
	HostName     string
	Type         models.GameType
	Settings     *models.Settings // nil means DefaultSettings
	PasscodeHash string
}

type entry struct {
	mu    sync.Mutex
	lobby *Lobby
	gone  bool
}

// Store holds every live lobby. Each lobby has its own lock, so work on
// different lobbies never contends. The map lock is only taken to find an
// entry, and after an entry lock only when deleting.
type Store struct {
	mu      sync.RWMutex
	lobbies map[uuid.UUID]*entry
	gw      Broadcaster
	logger  *logrus.Logger
	now     func() time.Time
}

// NewStore returns an empty store whose lobbies publish through gw.
func NewStore(gw Broadcaster, logger *logrus.Logger) *Store {
	return &Store{
		lobbies: make(map[uuid.UUID]*entry),
		gw:      gw,
		logger:  logger,
		now:     time.Now,
	}
}

// Create registers a new waiting lobby with the creator as its only active
// member and host.
func (s *Store) Create(opts CreateOptions) (uuid.UUID, error) {
	if opts.HostID == uuid.Nil {
		return uuid.Nil, Errorf(KindInvalid, "missing host")
	}
	if err := opts.Type.Validate(); err != nil {
		return uuid.Nil, Errorf(KindInvalid, "%v", err)
	}
	settings := models.DefaultSettings()
	if opts.Settings != nil {
		settings = *opts.Settings
	}
	if err := settings.Validate(); err != nil {
		return uuid.Nil, Errorf(KindInvalid, "%v", err)
	}

	l := newLobby(s, s.gw, opts.Type, settings, s.now())
	l.PasscodeHash = opts.PasscodeHash
	l.HostID = opts.HostID
	l.AddPending(opts.HostID, opts.HostName)
	l.Activate(opts.HostID)

	s.mu.Lock()
	s.lobbies[l.ID] = &entry{lobby: l}
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"lobby": l.ID,
		"host":  opts.HostID,
		"type":  opts.Type.String(),
	}).Info("lobby created")
	return l.ID, nil
}

func (s *Store) lookup(id uuid.UUID) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.lobbies[id]
	return e, ok
}

// Mutate runs fn with exclusive access to the lobby. Hooks queued with
// AfterCommit run once the lock is released, in order. If fn ends the
// lobby it is removed from the store and its timers stop.
func (s *Store) Mutate(id uuid.UUID, fn func(*Lobby) error) (err error) {
	e, ok := s.lookup(id)
	if !ok {
		return Errorf(KindNotFound, "lobby %s not found", id)
	}

	var hooks []func()
	func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.gone {
			err = errLobbyExpired
			return
		}
		l := e.lobby
		defer func() {
			if r := recover(); r != nil {
				s.logger.WithField("lobby", id).Errorf("panic in lobby mutation: %v\n%s", r, debug.Stack())
				err = Errorf(KindInvalidState, "internal error")
				// drop hooks queued by the half-applied mutation
				l.afterCommit = nil
			}
			hooks = l.afterCommit
			l.afterCommit = nil
			if l.ended {
				e.gone = true
				l.stopTimers()
				s.gw.Drop(id)
				s.mu.Lock()
				delete(s.lobbies, id)
				s.mu.Unlock()
				s.logger.WithField("lobby", id).Info("lobby closed")
			}
		}()
		err = fn(l)
	}()

	for _, h := range hooks {
		h()
	}
	return err
}

// Get returns a snapshot of the lobby as seen by a non-member.
func (s *Store) Get(id uuid.UUID) (View, error) {
	return s.ViewFor(id, uuid.Nil)
}

// ViewFor returns a snapshot of the lobby as seen by userID.
func (s *Store) ViewFor(id, userID uuid.UUID) (View, error) {
	var v View
	err := s.Mutate(id, func(l *Lobby) error {
		v = l.View(userID)
		return nil
	})
	return v, err
}

// Delete ends the lobby, running fn first so callers can notify members.
func (s *Store) Delete(id uuid.UUID, fn func(*Lobby)) error {
	return s.Mutate(id, func(l *Lobby) error {
		if fn != nil {
			fn(l)
		}
		l.End()
		return nil
	})
}

// List returns a summary of every public lobby that is still waiting for players.
func (s *Store) List() []Summary {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.lobbies))
	for _, e := range s.lobbies {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]Summary, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.gone && e.lobby.Settings.Visibility == models.VisibilityPublic && e.lobby.Status == StatusWaiting {
			out = append(out, e.lobby.Summary())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// Len is the number of live lobbies.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lobbies)
}

// Close ends every lobby. Used on shutdown.
func (s *Store) Close() {
	s.mu.RLock()
	ids := make([]uuid.UUID, 0, len(s.lobbies))
	for id := range s.lobbies {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	for _, id := range ids {
		if err := s.Delete(id, nil); err != nil {
			s.logger.Debugf("close lobby %s: %v", id, err)
		}
	}
}
