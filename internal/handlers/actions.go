// internal/handlers/actions.go
package handlers

import (
	"context"
	"math"

	"github.com/google/uuid"
	"github.com/jason-s-yu/trivia/internal/auth"
	"github.com/jason-s-yu/trivia/internal/game"
	"github.com/jason-s-yu/trivia/internal/lobby"
	"github.com/jason-s-yu/trivia/internal/membership"
	"github.com/jason-s-yu/trivia/internal/models"
)

// Action names shared by REST paths and socket frames.
const (
	ActionCreate   = "create"
	ActionList     = "list"
	ActionGet      = "get"
	ActionJoin     = "join"
	ActionApprove  = "approve"
	ActionReject   = "reject"
	ActionKick     = "kick"
	ActionLeave    = "leave"
	ActionInvite   = "invite"
	ActionEnd      = "end"
	ActionReady    = "ready"
	ActionStart    = "start"
	ActionAnswer   = "answer"
	ActionSettings = "settings"
	ActionChat     = "chat"
	ActionPowerUp  = "powerup"
	ActionAdvance  = "advance"
)

type actionFunc func(ctx context.Context, caller auth.Identity, lobbyID uuid.UUID, p payload) (interface{}, error)

type okResult struct {
	OK bool `json:"ok"`
}

var okReply = okResult{OK: true}

func (s *Server) actionTable() map[string]actionFunc {
	return map[string]actionFunc{
		ActionCreate: s.createLobby,
		ActionList: func(context.Context, auth.Identity, uuid.UUID, payload) (interface{}, error) {
			return s.Store.List(), nil
		},
		ActionGet: func(_ context.Context, caller auth.Identity, lobbyID uuid.UUID, _ payload) (interface{}, error) {
			return s.Store.ViewFor(lobbyID, caller.UserID)
		},
		ActionJoin: func(ctx context.Context, caller auth.Identity, lobbyID uuid.UUID, p payload) (interface{}, error) {
			passcode, err := p.optString("passcode")
			if err != nil {
				return nil, err
			}
			status, err := s.Coordinator.RequestJoin(lobbyID, caller.UserID, s.displayName(ctx, caller), passcode)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"status": status}, nil
		},
		ActionApprove: s.targeted(s.Coordinator.Approve),
		ActionReject:  s.targeted(s.Coordinator.Reject),
		ActionKick:    s.targeted(s.Coordinator.Kick),
		ActionInvite:  s.targeted(s.Coordinator.Invite),
		ActionLeave: func(_ context.Context, caller auth.Identity, lobbyID uuid.UUID, _ payload) (interface{}, error) {
			return okReply, s.Coordinator.Leave(lobbyID, caller.UserID)
		},
		ActionEnd: func(_ context.Context, caller auth.Identity, lobbyID uuid.UUID, _ payload) (interface{}, error) {
			return okReply, s.Coordinator.End(lobbyID, caller.UserID)
		},
		ActionReady: func(_ context.Context, caller auth.Identity, lobbyID uuid.UUID, p payload) (interface{}, error) {
			ready, err := p.optBool("ready", true)
			if err != nil {
				return nil, err
			}
			return okReply, s.Coordinator.SetReady(lobbyID, caller.UserID, ready)
		},
		ActionStart: func(ctx context.Context, caller auth.Identity, lobbyID uuid.UUID, _ payload) (interface{}, error) {
			return okReply, s.Engine.Start(ctx, lobbyID, caller.UserID)
		},
		ActionAnswer: func(_ context.Context, caller auth.Identity, lobbyID uuid.UUID, p payload) (interface{}, error) {
			answer, err := p.answer()
			if err != nil {
				return nil, err
			}
			return okReply, s.Engine.Submit(lobbyID, caller.UserID, answer)
		},
		ActionSettings: func(_ context.Context, caller auth.Identity, lobbyID uuid.UUID, p payload) (interface{}, error) {
			return s.Coordinator.UpdateSettings(lobbyID, caller.UserID, p)
		},
		ActionChat: func(_ context.Context, caller auth.Identity, lobbyID uuid.UUID, p payload) (interface{}, error) {
			text, err := p.optString("text")
			if err != nil {
				return nil, err
			}
			return s.Coordinator.SendChat(lobbyID, caller.UserID, text)
		},
		ActionPowerUp: func(_ context.Context, caller auth.Identity, lobbyID uuid.UUID, p payload) (interface{}, error) {
			name, err := p.optString("powerup")
			if err != nil {
				return nil, err
			}
			return okReply, s.Engine.UsePowerUp(lobbyID, caller.UserID, name)
		},
		ActionAdvance: func(_ context.Context, caller auth.Identity, lobbyID uuid.UUID, _ payload) (interface{}, error) {
			return okReply, s.Engine.Advance(lobbyID, caller.UserID)
		},
	}
}

// targeted adapts a host action on another member.
func (s *Server) targeted(fn func(lobbyID, hostID, target uuid.UUID) error) actionFunc {
	return func(_ context.Context, caller auth.Identity, lobbyID uuid.UUID, p payload) (interface{}, error) {
		target, err := p.uuid("user_id")
		if err != nil {
			return nil, err
		}
		return okReply, fn(lobbyID, caller.UserID, target)
	}
}

func (s *Server) createLobby(ctx context.Context, caller auth.Identity, _ uuid.UUID, p payload) (interface{}, error) {
	mode, err := p.optString("mode")
	if err != nil {
		return nil, err
	}
	kind, err := p.optString("kind")
	if err != nil {
		return nil, err
	}
	passcode, err := p.optString("passcode")
	if err != nil {
		return nil, err
	}
	gt := models.GameType{Mode: models.GameMode(mode), Kind: models.GameKind(kind)}
	if gt.Kind == "" {
		gt.Kind = models.KindClassic
	}

	settings := models.DefaultSettings()
	if raw, present := p["settings"]; present && raw != nil {
		updates, isMap := raw.(map[string]interface{})
		if !isMap {
			return nil, lobby.Errorf(lobby.KindInvalid, "settings must be an object")
		}
		if settings, err = models.ParseSettings(updates, settings); err != nil {
			return nil, lobby.Errorf(lobby.KindInvalid, "%v", err)
		}
	}

	id, err := s.Coordinator.Create(membership.CreateRequest{
		HostID:   caller.UserID,
		HostName: s.displayName(ctx, caller),
		Type:     gt,
		Settings: &settings,
		Passcode: passcode,
	})
	if err != nil {
		return nil, err
	}
	return s.Store.ViewFor(id, caller.UserID)
}

// dispatch runs one action on behalf of caller.
func (s *Server) dispatch(ctx context.Context, caller auth.Identity, action models.Action) (interface{}, error) {
	fn, found := s.actions[action.Type]
	if !found {
		return nil, lobby.Errorf(lobby.KindInvalid, "unknown action %q", action.Type)
	}
	if action.LobbyID == uuid.Nil && action.Type != ActionCreate && action.Type != ActionList {
		return nil, lobby.Errorf(lobby.KindInvalid, "missing lobby_id")
	}
	p := payload(action.Payload)
	if p == nil {
		p = payload{}
	}
	return fn(ctx, caller, action.LobbyID, p)
}

// payload is a decoded JSON object. Numbers arrive as float64.
type payload map[string]interface{}

func (p payload) optString(key string) (string, error) {
	v, present := p[key]
	if !present || v == nil {
		return "", nil
	}
	str, isStr := v.(string)
	if !isStr {
		return "", lobby.Errorf(lobby.KindInvalid, "%s must be a string", key)
	}
	return str, nil
}

func (p payload) optBool(key string, def bool) (bool, error) {
	v, present := p[key]
	if !present || v == nil {
		return def, nil
	}
	b, isBool := v.(bool)
	if !isBool {
		return false, lobby.Errorf(lobby.KindInvalid, "%s must be a boolean", key)
	}
	return b, nil
}

func (p payload) uuid(key string) (uuid.UUID, error) {
	str, err := p.optString(key)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(str)
	if err != nil {
		return uuid.Nil, lobby.Errorf(lobby.KindInvalid, "%s must be a uuid", key)
	}
	return id, nil
}

// answer reads {"option": n} or {"text": "..."}.
func (p payload) answer() (game.Answer, error) {
	var a game.Answer
	if v, present := p["option"]; present && v != nil {
		f, isNum := v.(float64)
		if !isNum || f != math.Trunc(f) {
			return a, lobby.Errorf(lobby.KindInvalid, "option must be a whole number")
		}
		n := int(f)
		a.Option = &n
	}
	text, err := p.optString("text")
	if err != nil {
		return a, err
	}
	a.Text = text
	if a.Option == nil && a.Text == "" {
		return a, lobby.Errorf(lobby.KindInvalid, "answer needs an option or text")
	}
	return a, nil
}
