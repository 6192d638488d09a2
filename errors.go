package drippler

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can decide on recovery without
// inspecting human-readable messages.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindConnectivity
	KindNotConnected
	KindAuthentication
	KindValidation
	KindNotFound
	KindChannelUnavailable
	KindLimitExceeded
)

var kindNames = map[Kind]string{
	KindUnknown:            "unknown",
	KindConfiguration:      "configuration",
	KindConnectivity:       "connectivity",
	KindNotConnected:       "not_connected",
	KindAuthentication:     "authentication",
	KindValidation:         "validation",
	KindNotFound:           "not_found",
	KindChannelUnavailable: "channel_unavailable",
	KindLimitExceeded:      "limit_exceeded",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return kindNames[KindUnknown]
}

// ParseKind is the inverse of Kind.String. Unrecognised names map to KindUnknown.
func ParseKind(s string) Kind {
	for k, name := range kindNames {
		if name == s {
			return k
		}
	}
	return KindUnknown
}

// Error is a classified failure. Msg is safe to show to a user; Err keeps the cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel errors of the same kind and message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Msg == e.Msg && t.Op == "" && t.Err == nil
}

// E builds a classified error with a user-facing message.
func E(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap classifies err under op. The message of err is kept as the user-facing message.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Msg: err.Error(), Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Common errors shared across components.
var (
	ErrNotConnected       = E(KindNotConnected, "Supabase not connected. Please connect first.")
	ErrAuthRequired       = E(KindAuthentication, "Authentication required")
	ErrIdentityRequired   = E(KindValidation, "Email or phone number is required")
	ErrUnknownAction      = E(KindValidation, "Unknown action")
	ErrChannelUnavailable = E(KindChannelUnavailable, "Could not establish connection")
	ErrConnectionLost     = E(KindChannelUnavailable, "Extension connection lost. Please refresh the page and try again.")
	ErrNotFound           = E(KindNotFound, "not found")
	ErrInvalidConfig      = E(KindConfiguration, "invalid configuration")
)
