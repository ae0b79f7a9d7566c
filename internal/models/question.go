package models

import "strings"

// Question is one entry of the question bank.
//
// Classic questions use Options and Correct. Knowledge questions use Answer
// and the optional Aliases.
type Question struct {
	ID         string   `json:"id"`
	Kind       GameKind `json:"kind"`
	Text       string   `json:"text"`
	Category   string   `json:"category"`
	Difficulty string   `json:"difficulty"`
	Options    []string `json:"options,omitempty"`
	Correct    int      `json:"correct"`
	Answer     string   `json:"answer,omitempty"`
	Aliases    []string `json:"aliases,omitempty"`
}

// PublicQuestion is what players see before the reveal.
type PublicQuestion struct {
	ID       string   `json:"id"`
	Kind     GameKind `json:"kind"`
	Text     string   `json:"text"`
	Category string   `json:"category"`
	Options  []string `json:"options,omitempty"`
}

// Public strips the answer from the question.
func (q Question) Public() PublicQuestion {
	return PublicQuestion{
		ID:       q.ID,
		Kind:     q.Kind,
		Text:     q.Text,
		Category: q.Category,
		Options:  q.Options,
	}
}

// NormalizeAnswer folds case and collapses whitespace so free-text answers compare loosely.
func NormalizeAnswer(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Accepts reports whether a free-text answer matches the answer or one of its aliases.
func (q Question) Accepts(text string) bool {
	given := NormalizeAnswer(text)
	if given == "" {
		return false
	}
	if given == NormalizeAnswer(q.Answer) {
		return true
	}
	for _, alias := range q.Aliases {
		if given == NormalizeAnswer(alias) {
			return true
		}
	}
	return false
}
