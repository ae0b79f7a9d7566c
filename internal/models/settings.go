// internal/models/settings.go
package models

import (
	"fmt"
	"strings"
)

// GameMode decides how players relate to each other during a match.
type GameMode string

const (
	ModeSolo   GameMode = "solo"
	ModeCoop   GameMode = "coop"
	ModeVersus GameMode = "versus"
)

// GameKind decides what a question looks like.
type GameKind string

const (
	KindClassic   GameKind = "classic"   // multiple choice, one correct option
	KindKnowledge GameKind = "knowledge" // free-text answer
)

// GameType is the mode × kind pair chosen when the lobby is created.
type GameType struct {
	Mode GameMode `json:"mode"`
	Kind GameKind `json:"kind"`
}

func (t GameType) String() string {
	return string(t.Mode) + "-" + string(t.Kind)
}

// Validate checks that both halves of the type are known.
func (t GameType) Validate() error {
	switch t.Mode {
	case ModeSolo, ModeCoop, ModeVersus:
	default:
		return fmt.Errorf("invalid game mode %q", t.Mode)
	}
	switch t.Kind {
	case KindClassic, KindKnowledge:
	default:
		return fmt.Errorf("invalid game kind %q", t.Kind)
	}
	return nil
}

const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

var validDifficulties = map[string]bool{
	"easy":   true,
	"medium": true,
	"hard":   true,
	"mixed":  true,
}

// Settings are the host-editable lobby options.
type Settings struct {
	Name               string   `json:"name"`
	QuestionCount      int      `json:"questionCount"`      // 1..50
	TimePerQuestionSec int      `json:"timePerQuestionSec"` // 5..120
	Difficulty         string   `json:"difficulty"`         // easy, medium, hard or mixed
	Categories         []string `json:"categories"`         // empty means any category
	Visibility         string   `json:"visibility"`         // public or private
	MaxPlayers         int      `json:"maxPlayers"`         // 1..16
}

// DefaultSettings returns the settings a lobby gets when the creator omits them.
func DefaultSettings() Settings {
	return Settings{
		Name:               "Trivia Lobby",
		QuestionCount:      10,
		TimePerQuestionSec: 20,
		Difficulty:         "mixed",
		Categories:         []string{},
		Visibility:         VisibilityPublic,
		MaxPlayers:         8,
	}
}

// Validate checks every field against its allowed range.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.Name) == "" || len(s.Name) > 64 {
		return fmt.Errorf("name must be 1-64 characters")
	}
	if s.QuestionCount < 1 || s.QuestionCount > 50 {
		return fmt.Errorf("questionCount must be between 1 and 50")
	}
	if s.TimePerQuestionSec < 5 || s.TimePerQuestionSec > 120 {
		return fmt.Errorf("timePerQuestionSec must be between 5 and 120")
	}
	if !validDifficulties[s.Difficulty] {
		return fmt.Errorf("invalid difficulty %q", s.Difficulty)
	}
	if s.Visibility != VisibilityPublic && s.Visibility != VisibilityPrivate {
		return fmt.Errorf("invalid visibility %q", s.Visibility)
	}
	if s.MaxPlayers < 1 || s.MaxPlayers > 16 {
		return fmt.Errorf("maxPlayers must be between 1 and 16")
	}
	return nil
}

// Update applies the keys present in newSettings. Missing keys keep their old value.
// Values arrive decoded from JSON, so numbers are float64 and lists are []interface{}.
func (s *Settings) Update(newSettings map[string]interface{}) error {
	assignString := func(field *string, key string) error {
		if val, exists := newSettings[key]; exists && val != nil {
			str, ok := val.(string)
			if !ok {
				return fmt.Errorf("invalid type for %s", key)
			}
			*field = strings.TrimSpace(str)
		}
		return nil
	}

	assignInt := func(field *int, key string) error {
		if val, exists := newSettings[key]; exists && val != nil {
			switch v := val.(type) {
			case float64:
				if v != float64(int(v)) {
					return fmt.Errorf("%s must be a whole number", key)
				}
				*field = int(v)
			case int:
				*field = v
			default:
				return fmt.Errorf("invalid type for %s", key)
			}
		}
		return nil
	}

	if err := assignString(&s.Name, "name"); err != nil {
		return err
	}
	if err := assignInt(&s.QuestionCount, "questionCount"); err != nil {
		return err
	}
	if err := assignInt(&s.TimePerQuestionSec, "timePerQuestionSec"); err != nil {
		return err
	}
	if err := assignString(&s.Difficulty, "difficulty"); err != nil {
		return err
	}
	if err := assignString(&s.Visibility, "visibility"); err != nil {
		return err
	}
	if err := assignInt(&s.MaxPlayers, "maxPlayers"); err != nil {
		return err
	}
	if val, exists := newSettings["categories"]; exists && val != nil {
		raw, ok := val.([]interface{})
		if !ok {
			return fmt.Errorf("invalid type for categories")
		}
		cats := make([]string, 0, len(raw))
		for _, c := range raw {
			str, ok := c.(string)
			if !ok {
				return fmt.Errorf("categories must be strings")
			}
			cats = append(cats, strings.TrimSpace(str))
		}
		s.Categories = cats
	}

	return s.Validate()
}

// ParseSettings applies updates to a copy of current and returns it.
func ParseSettings(updates map[string]interface{}, current Settings) (Settings, error) {
	next := current
	next.Categories = append(make([]string, 0, len(current.Categories)), current.Categories...)
	err := next.Update(updates)
	return next, err
}
