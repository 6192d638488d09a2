package events

import "time"

// Broadcast actions sent from the background process to UI and page processes.
const (
	ActionAuthStateChanged     = "authStateChanged"
	ActionSupabaseStatusUpdate = "supabaseStatusUpdate"
	ActionNotification         = "notification"
	ActionOpenPopup            = "openPopup"
)

// Message is a broadcast to other processes.
type Message struct {
	Action string         `json:"action"`
	Target string         `json:"target,omitempty"` // empty means every process
	Data   map[string]any `json:"data,omitempty"`
	Time   time.Time      `json:"time"`
}

// Bus carries broadcast messages.
type Bus = Hub[Message]

// NewBus creates a broadcast bus.
func NewBus(onError func(error)) *Bus {
	return NewHub[Message](onError)
}
