// internal/handlers/rest.go
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jason-s-yu/trivia/internal/auth"
	"github.com/jason-s-yu/trivia/internal/lobby"
	"github.com/jason-s-yu/trivia/internal/middleware"
	"github.com/jason-s-yu/trivia/internal/models"
)

// rejection is the body of every failed action.
type rejection struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

func statusFor(kind lobby.Kind) int {
	switch kind {
	case lobby.KindNotFound:
		return http.StatusNotFound
	case lobby.KindUnauthorized:
		return http.StatusForbidden
	case lobby.KindInvalidState, lobby.KindConflict:
		return http.StatusConflict
	case lobby.KindTransient:
		return http.StatusServiceUnavailable
	case lobby.KindInvalid:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// rejectionFor turns any error into what the client sees. Errors outside the
// taxonomy are not described.
func rejectionFor(err error) (int, rejection) {
	var le *lobby.Error
	if errors.As(err, &le) {
		return statusFor(le.Kind), rejection{Kind: le.Kind.String(), Reason: le.Reason}
	}
	return http.StatusInternalServerError, rejection{Kind: "internal", Reason: "internal error"}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := rejectionFor(err)
	if status == http.StatusInternalServerError {
		s.Logger.WithField("path", r.URL.Path).Errorf("unclassified error: %v", err)
	}
	writeJSON(w, status, body)
}

// decodePayload reads an optional JSON object body.
func decodePayload(r *http.Request) (payload, error) {
	p := payload{}
	err := json.NewDecoder(r.Body).Decode(&p)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, lobby.Errorf(lobby.KindInvalid, "bad request payload")
	}
	return p, nil
}

func lobbyIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "lobbyID"))
	if err != nil {
		return uuid.Nil, lobby.Errorf(lobby.KindInvalid, "invalid lobby id")
	}
	return id, nil
}

func caller(r *http.Request) auth.Identity {
	id, _ := middleware.IdentityFrom(r.Context())
	return id
}

func (s *Server) run(w http.ResponseWriter, r *http.Request, action models.Action, status int) {
	res, err := s.dispatch(r.Context(), caller(r), action)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, status, res)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, models.Action{Type: ActionList}, http.StatusOK)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	p, err := decodePayload(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.run(w, r, models.Action{Type: ActionCreate, Payload: p}, http.StatusCreated)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := lobbyIDParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.run(w, r, models.Action{Type: ActionGet, LobbyID: id}, http.StatusOK)
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	id, err := lobbyIDParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.run(w, r, models.Action{Type: ActionEnd, LobbyID: id}, http.StatusOK)
}

// restActions are the actions reachable as POST /lobbies/{id}/{action}.
var restActions = map[string]bool{
	ActionJoin: true, ActionApprove: true, ActionReject: true, ActionKick: true,
	ActionLeave: true, ActionReady: true, ActionStart: true, ActionAnswer: true,
	ActionSettings: true, ActionChat: true, ActionPowerUp: true, ActionAdvance: true,
	ActionInvite: true,
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	name := strings.ToLower(chi.URLParam(r, "action"))
	if !restActions[name] {
		http.NotFound(w, r)
		return
	}
	id, err := lobbyIDParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := decodePayload(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.run(w, r, models.Action{Type: name, LobbyID: id, Payload: p}, http.StatusOK)
}

type guestRequest struct {
	Username string `json:"username"`
}

// handleGuest issues a guest identity and sets the session cookie.
func (s *Server) handleGuest(w http.ResponseWriter, r *http.Request) {
	var req guestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, r, lobby.Errorf(lobby.KindInvalid, "bad request payload"))
		return
	}
	name := strings.TrimSpace(req.Username)
	if name == "" {
		name = "Guest"
	}
	if len(name) > 32 {
		s.writeError(w, r, lobby.Errorf(lobby.KindInvalid, "username longer than 32 characters"))
		return
	}
	userID := uuid.New()
	token, err := s.Signer.CreateJWT(userID, name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.CookieName,
		Value:    token,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"user_id":  userID,
		"username": name,
		"token":    token,
	})
}
