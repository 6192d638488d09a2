package session

import "time"

// State is the connection state of the process.
type State int

const (
	StateUninitialized State = iota
	StateDisconnected
	StateConnectedNoSession
	StateConnectedAuthenticated
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnectedNoSession:
		return "CONNECTED_NO_SESSION"
	case StateConnectedAuthenticated:
		return "CONNECTED_AUTHENTICATED"
	default:
		return "UNINITIALIZED"
	}
}

// Connected reports whether the remote service was reached and initialized.
func (s State) Connected() bool {
	return s == StateConnectedNoSession || s == StateConnectedAuthenticated
}

// Status is a snapshot of the connection state. LastAttempt and LastError are
// read from the key-value store so they survive a restart.
type Status struct {
	State       State
	Connected   bool
	LastAttempt time.Time
	LastError   string
}
