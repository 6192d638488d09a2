package session

import (
	"context"

	"github.com/drippler/drippler/events"
	"github.com/drippler/drippler/supabase"
)

// onAuthChange mirrors every session change into the key-value store and
// then broadcasts it.
func (m *Manager) onAuthChange(ctx context.Context, change supabase.AuthChange) error {
	m.log.Debug().Str("event", string(change.Event)).Msg("auth state changed")

	switch {
	case change.Session != nil:
		if err := m.persistSession(ctx, change.Session); err != nil {
			m.log.Warn().Err(err).Msg("failed to persist session change")
		}
		m.setAuthenticated(true)
	case change.Event == supabase.EventSignedOut:
		m.clearSession(ctx)
		m.setAuthenticated(false)
	}

	data := map[string]any{
		"event":   string(change.Event),
		"user":    nil,
		"session": nil,
	}
	if change.Session != nil {
		data["user"] = change.Session.User.Clone()
		data["session"] = change.Session.Clone()
	}
	m.bus.Publish(ctx, events.Message{
		Action: events.ActionAuthStateChanged,
		Data:   data,
		Time:   m.now(),
	})
	return nil
}
