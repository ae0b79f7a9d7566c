// internal/handlers/server.go
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/jason-s-yu/trivia/internal/auth"
	"github.com/jason-s-yu/trivia/internal/lobby"
	"github.com/jason-s-yu/trivia/internal/membership"
	"github.com/jason-s-yu/trivia/internal/middleware"
	"github.com/jason-s-yu/trivia/internal/registry"
	"github.com/jason-s-yu/trivia/internal/round"
	"github.com/sirupsen/logrus"
)

// NameResolver looks up a display name when the token carries none.
type NameResolver interface {
	Username(ctx context.Context, userID uuid.UUID) (string, error)
}

// Deps are the components the transport layer drives.
type Deps struct {
	Store       *lobby.Store
	Coordinator *membership.Coordinator
	Engine      *round.Engine
	Registry    *registry.Registry
	Signer      *auth.Signer
	Names       NameResolver // optional
	Logger      *logrus.Logger
}

// Options tune the transport.
type Options struct {
	AllowedOrigins []string
	WriteBuffer    int
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	// IssueGuests enables POST /guest. Only makes sense when this process
	// holds the signing key.
	IssueGuests bool
	GuestTTL    time.Duration
}

func (o Options) withDefaults() Options {
	if len(o.AllowedOrigins) == 0 {
		o.AllowedOrigins = []string{"*"}
	}
	if o.WriteBuffer <= 0 {
		o.WriteBuffer = 64
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	return o
}

// Server exposes lobbies over REST and a WebSocket.
type Server struct {
	Deps
	opts    Options
	actions map[string]actionFunc
}

// NewServer wires the action table.
func NewServer(deps Deps, opts Options) *Server {
	s := &Server{Deps: deps, opts: opts.withDefaults()}
	s.actions = s.actionTable()
	return s
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.LogMiddleware(s.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Heartbeat("/healthz"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if s.opts.IssueGuests {
		r.Post("/guest", s.handleGuest)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireIdentity(s.Signer, s.Logger))

		r.Get("/ws", s.handleWS)

		r.Route("/lobbies", func(r chi.Router) {
			r.Get("/", s.handleList)
			r.Post("/", s.handleCreate)
			r.Route("/{lobbyID}", func(r chi.Router) {
				r.Get("/", s.handleGet)
				r.Delete("/", s.handleEnd)
				r.Post("/{action}", s.handleAction)
			})
		})
	})
	return r
}

// displayName picks the name shown to other players.
func (s *Server) displayName(ctx context.Context, id auth.Identity) string {
	if id.Username != "" {
		return id.Username
	}
	if s.Names != nil {
		if name, err := s.Names.Username(ctx, id.UserID); err == nil && name != "" {
			return name
		} else if err != nil {
			s.Logger.WithField("user", id.UserID).Debugf("username lookup: %v", err)
		}
	}
	return fmt.Sprintf("Player-%s", id.UserID.String()[:4])
}
