package lobby

import (
	"errors"
	"fmt"
)

// Kind classifies a rejected action.
type Kind int

const (
	KindNotFound     Kind = iota + 1 // lobby, member or question absent
	KindUnauthorized                 // host-only action by a non-host
	KindInvalidState                 // action not allowed in the current state
	KindConflict                     // lost a race for an exclusive resource
	KindTransient                    // collaborator failure, gameplay unaffected
	KindInvalid                      // malformed input
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalidState:
		return "invalid_state"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	case KindInvalid:
		return "invalid"
	}
	return "unknown"
}

// Error is the structured rejection returned to the requester.
type Error struct {
	Kind   Kind   `json:"-"`
	Reason string `json:"reason"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrInvalidState = &Error{Kind: KindInvalidState}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrTransient    = &Error{Kind: KindTransient}
	ErrInvalid      = &Error{Kind: KindInvalid}
)

// Errorf builds an *Error of the given kind.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

var errLobbyExpired = Errorf(KindNotFound, "lobby expired")
