package session

import (
	"context"

	"github.com/drippler/drippler"
	"github.com/drippler/drippler/supabase"
)

// restoreExistingSession re-establishes a session from whatever survived the
// last process. It never fails: every error degrades to "no session" with the
// persisted fields cleared.
func (m *Manager) restoreExistingSession(ctx context.Context, backend supabase.Backend) {
	// A session the client already holds, e.g. one written by the web app
	// after email verification.
	if s, _ := backend.GetSession(ctx); s != nil {
		if user, err := backend.GetUser(ctx); err == nil && user != nil {
			s.User = *user
			if err := m.persistSession(ctx, s); err != nil {
				m.log.Warn().Err(err).Msg("failed to persist restored session")
			}
			m.log.Info().Str("user_id", user.ID).Msg("active session is valid")
			return
		}
		m.log.Info().Msg("active session is invalid, clearing")
		if err := backend.SignOut(ctx); err != nil {
			m.log.Warn().Err(err).Msg("failed to sign out invalid session")
		}
	}

	stored, err := m.loadStoredSession(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("failed to read stored session")
		m.clearSession(ctx)
		return
	}
	if stored == nil {
		m.log.Debug().Msg("no stored session found")
		return
	}
	if !stored.expiry.IsZero() && !stored.expiry.After(m.now()) {
		m.log.Info().Time("expiry", stored.expiry).Msg("stored session is expired, clearing")
		m.clearSession(ctx)
		return
	}

	s, err := backend.SetSession(ctx, stored.session.AccessToken, stored.session.RefreshToken)
	if err != nil || s == nil {
		m.log.Warn().Err(err).Msg("failed to restore stored session")
		m.clearSession(ctx)
		return
	}
	if err := m.persistSession(ctx, s); err != nil {
		m.log.Warn().Err(err).Msg("failed to persist restored session")
	}
	m.log.Info().Str("user_id", s.User.ID).Msg("session restored")
}

// RestoreExistingSession runs session restoration against the connected client.
func (m *Manager) RestoreExistingSession(ctx context.Context) error {
	backend, err := m.Backend()
	if err != nil {
		return err
	}
	m.restoreExistingSession(ctx, backend)
	s, _ := backend.GetSession(ctx)
	m.setAuthenticated(s != nil)
	return nil
}

// GetCurrentUser returns the validated current session, or nil if there is
// none. Absence of a session is not an error; a session the service rejects
// is cleared and reported as an authentication error.
func (m *Manager) GetCurrentUser(ctx context.Context) (*supabase.Session, error) {
	backend, err := m.Backend()
	if err != nil {
		return nil, err
	}

	s, err := backend.GetSession(ctx)
	if err != nil {
		m.clearSession(ctx)
		if drippler.KindOf(err) == drippler.KindAuthentication {
			m.setAuthenticated(false)
			return nil, nil
		}
		return nil, err
	}
	if s == nil {
		m.clearSession(ctx)
		m.setAuthenticated(false)
		return nil, nil
	}

	user, err := backend.GetUser(ctx)
	if err != nil {
		m.clearSession(ctx)
		if drippler.KindOf(err) == drippler.KindConnectivity {
			return nil, err
		}
		m.setAuthenticated(false)
		return nil, drippler.Wrap(drippler.KindAuthentication, "getCurrentUser", err)
	}

	s.User = *user
	if err := m.persistSession(ctx, s); err != nil {
		m.log.Warn().Err(err).Msg("failed to persist current session")
	}
	m.setAuthenticated(true)
	return s, nil
}

// RefreshSession forces token renewal. When renewal fails it falls back once
// to restoration and a current user lookup; the fallback never renews again.
func (m *Manager) RefreshSession(ctx context.Context) (*supabase.Session, error) {
	backend, err := m.Backend()
	if err != nil {
		return nil, err
	}

	s, err := m.refresh(ctx, backend)
	if err == nil && s != nil {
		if err := m.persistSession(ctx, s); err != nil {
			m.log.Warn().Err(err).Msg("failed to persist refreshed session")
		}
		m.setAuthenticated(true)
		return s, nil
	}
	if err != nil {
		m.log.Warn().Err(err).Msg("failed to refresh session, trying to recover")
	}

	m.restoreExistingSession(ctx, backend)
	return m.GetCurrentUser(ctx)
}

// refresh renews the session once. Concurrent callers share one renewal.
func (m *Manager) refresh(ctx context.Context, backend supabase.Backend) (*supabase.Session, error) {
	v, err, _ := m.refreshes.Do("refresh", func() (any, error) {
		return backend.RefreshSession(ctx)
	})
	if err != nil {
		return nil, err
	}
	s, _ := v.(*supabase.Session)
	return s.Clone(), nil
}
