package session

import (
	"context"
	"encoding/json"

	"github.com/drippler/drippler"
	"github.com/drippler/drippler/supabase"
)

// SignUp registers a new identity. Email sign-ups carry a verification link
// back to the web app; the session stays nil until the address is confirmed.
func (m *Manager) SignUp(ctx context.Context, creds supabase.Credentials) (*supabase.AuthResult, error) {
	if creds.Email == "" && creds.Phone == "" {
		return nil, drippler.ErrIdentityRequired
	}
	backend, err := m.Backend()
	if err != nil {
		return nil, err
	}

	redirectTo := ""
	if creds.Email != "" {
		redirectTo = m.webappURL + "/auth/verify"
	}
	res, err := backend.SignUp(ctx, creds, redirectTo)
	if err != nil {
		return nil, err
	}

	if res.Session != nil {
		if err := m.persistSession(ctx, res.Session); err != nil {
			m.log.Warn().Err(err).Msg("failed to persist session after sign-up")
		}
		m.setAuthenticated(true)
	} else if res.User != nil {
		m.persistUser(ctx, res.User)
	}
	return res, nil
}

// SignIn establishes a session for an email or phone identity.
func (m *Manager) SignIn(ctx context.Context, creds supabase.Credentials) (*supabase.AuthResult, error) {
	if creds.Email == "" && creds.Phone == "" {
		return nil, drippler.ErrIdentityRequired
	}
	backend, err := m.Backend()
	if err != nil {
		return nil, err
	}

	res, err := backend.SignInWithPassword(ctx, creds)
	if err != nil {
		return nil, err
	}
	if err := m.persistSession(ctx, res.Session); err != nil {
		m.log.Warn().Err(err).Msg("failed to persist session after sign-in")
	}
	m.setAuthenticated(true)
	m.log.Info().Str("user_id", res.User.ID).Msg("user signed in")
	return res, nil
}

// SignOut ends the session and clears every persisted session field. An
// unreachable service does not fail it; the session ends locally either way.
func (m *Manager) SignOut(ctx context.Context) error {
	backend, err := m.Backend()
	if err != nil {
		return err
	}
	err = backend.SignOut(ctx)
	m.clearSession(ctx)
	m.persist(ctx, map[string]string{KeyLastAuthAction: formatTime(m.now())})
	m.setAuthenticated(false)
	return err
}

// ResetPassword sends a recovery email. An empty redirectTo points at the web
// app's reset page.
func (m *Manager) ResetPassword(ctx context.Context, email, redirectTo string) error {
	if email == "" {
		return drippler.Errorf(drippler.KindValidation, "Email is required")
	}
	backend, err := m.Backend()
	if err != nil {
		return err
	}
	if redirectTo == "" {
		redirectTo = m.webappURL + "/auth/reset-password"
	}
	return backend.ResetPasswordForEmail(ctx, email, redirectTo)
}

// UpdatePassword changes the password of the signed-in user.
func (m *Manager) UpdatePassword(ctx context.Context, password string) (*supabase.User, error) {
	if password == "" {
		return nil, drippler.Errorf(drippler.KindValidation, "Password is required")
	}
	return m.updateUser(ctx, supabase.UserUpdate{Password: &password})
}

// UpdateUserMetadata merges data into the signed-in user's metadata.
func (m *Manager) UpdateUserMetadata(ctx context.Context, data map[string]any) (*supabase.User, error) {
	return m.updateUser(ctx, supabase.UserUpdate{Data: data})
}

func (m *Manager) updateUser(ctx context.Context, update supabase.UserUpdate) (*supabase.User, error) {
	backend, err := m.Backend()
	if err != nil {
		return nil, err
	}
	user, err := backend.UpdateUser(ctx, update)
	if err != nil {
		return nil, err
	}
	m.persistUser(ctx, user)
	return user, nil
}

// DeleteUser removes the identity of the signed-in user and ends the
// session. When the service refuses the deletion the session is still ended.
func (m *Manager) DeleteUser(ctx context.Context, userID string) error {
	backend, err := m.Backend()
	if err != nil {
		return err
	}
	if err := backend.DeleteUser(ctx, userID); err != nil {
		m.log.Error().Err(err).Str("user_id", userID).Msg("failed to delete user account, signing out instead")
	}
	if err := backend.SignOut(ctx); err != nil {
		m.log.Warn().Err(err).Msg("sign-out after account deletion failed")
	}
	m.clearSession(ctx)
	m.setAuthenticated(false)
	return nil
}

func (m *Manager) persistUser(ctx context.Context, user *supabase.User) {
	raw, err := json.Marshal(user)
	if err != nil {
		m.log.Warn().Err(err).Msg("failed to encode user")
		return
	}
	m.persist(ctx, map[string]string{
		KeyCurrentUser:    string(raw),
		KeyLastAuthAction: formatTime(m.now()),
	})
}
