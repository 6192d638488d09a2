package lifecycle

import (
	"context"

	"github.com/drippler/drippler"
	"github.com/drippler/drippler/supabase"
)

func (c *Controller) initSupabase(ctx context.Context, _ drippler.Request) (drippler.Fields, error) {
	st, err := c.sessions.Initialize(ctx)
	return drippler.Fields{"connected": st.Connected}, err
}

func (c *Controller) forceInitSupabase(ctx context.Context, _ drippler.Request) (drippler.Fields, error) {
	c.log.Info().Msg("force initializing supabase")
	ok := c.sessions.InitializeWithRetry(ctx)
	st := c.sessions.Status(ctx)
	fields := drippler.Fields{"connected": st.Connected}
	if !ok {
		msg := st.LastError
		if msg == "" {
			msg = "Failed to connect to Supabase"
		}
		return fields, drippler.E(drippler.KindConnectivity, msg)
	}
	return fields, nil
}

func (c *Controller) testSupabase(ctx context.Context, _ drippler.Request) (drippler.Fields, error) {
	backend, err := c.sessions.Backend()
	if err != nil {
		return nil, err
	}
	s, err := backend.GetSession(ctx)
	if err != nil && drippler.KindOf(err) != drippler.KindAuthentication {
		return nil, err
	}
	return drippler.Fields{
		"message":    "Supabase connection test successful",
		"hasSession": s != nil,
	}, nil
}

func (c *Controller) checkSupabaseStatus(ctx context.Context, _ drippler.Request) (drippler.Fields, error) {
	st := c.sessions.Status(ctx)
	fields := drippler.Fields{
		"connected":   st.Connected,
		"state":       st.State.String(),
		"lastAttempt": nil,
		"lastError":   nil,
	}
	if !st.LastAttempt.IsZero() {
		fields["lastAttempt"] = st.LastAttempt.UTC().Format(timeFormat)
	}
	if st.LastError != "" {
		fields["lastError"] = st.LastError
	}
	return fields, nil
}

func (c *Controller) getExtensionInfo(ctx context.Context, _ drippler.Request) (drippler.Fields, error) {
	info := c.info
	values, err := c.store.Get(ctx, KeyInstallDate)
	if err != nil {
		return nil, err
	}
	info.InstallDate = values[KeyInstallDate]
	return drippler.Fields{"info": info}, nil
}

func (c *Controller) signUp(ctx context.Context, req drippler.Request) (drippler.Fields, error) {
	var creds supabase.Credentials
	if err := req.Decode(&creds); err != nil {
		return nil, err
	}
	res, err := c.sessions.SignUp(ctx, creds)
	if err != nil {
		return nil, err
	}
	message := "Check your phone for verification code"
	if creds.Email != "" {
		message = "Check your email for verification link"
	}
	return authFields(res, message), nil
}

func (c *Controller) signIn(ctx context.Context, req drippler.Request) (drippler.Fields, error) {
	var creds supabase.Credentials
	if err := req.Decode(&creds); err != nil {
		return nil, err
	}
	res, err := c.sessions.SignIn(ctx, creds)
	if err != nil {
		return nil, err
	}
	return authFields(res, "Successfully signed in"), nil
}

func (c *Controller) signOut(ctx context.Context, _ drippler.Request) (drippler.Fields, error) {
	if err := c.sessions.SignOut(ctx); err != nil {
		return nil, err
	}
	return drippler.Fields{"message": "Successfully signed out"}, nil
}

type resetPasswordPayload struct {
	Email      string `json:"email"`
	RedirectTo string `json:"redirectTo,omitempty"`
}

func (c *Controller) resetPassword(ctx context.Context, req drippler.Request) (drippler.Fields, error) {
	var p resetPasswordPayload
	if err := req.Decode(&p); err != nil {
		return nil, err
	}
	if err := c.sessions.ResetPassword(ctx, p.Email, p.RedirectTo); err != nil {
		return nil, err
	}
	return drippler.Fields{"message": "Password reset email sent. Check your email for instructions."}, nil
}

type updatePasswordPayload struct {
	Password string `json:"password"`
}

func (c *Controller) updatePassword(ctx context.Context, req drippler.Request) (drippler.Fields, error) {
	var p updatePasswordPayload
	if err := req.Decode(&p); err != nil {
		return nil, err
	}
	user, err := c.sessions.UpdatePassword(ctx, p.Password)
	if err != nil {
		return nil, err
	}
	return drippler.Fields{"message": "Password updated successfully", "user": user}, nil
}

func (c *Controller) getCurrentUser(ctx context.Context, _ drippler.Request) (drippler.Fields, error) {
	s, err := c.sessions.GetCurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	return sessionFields(s), nil
}

func (c *Controller) refreshUserSession(ctx context.Context, _ drippler.Request) (drippler.Fields, error) {
	s, err := c.sessions.RefreshSession(ctx)
	if err != nil {
		return nil, err
	}
	return sessionFields(s), nil
}

func (c *Controller) deleteAccount(ctx context.Context, _ drippler.Request) (drippler.Fields, error) {
	sc, _, err := c.scope(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.wardrobe.Purge(ctx, sc); err != nil {
		return nil, err
	}
	if err := c.sessions.DeleteUser(ctx, sc.UserID); err != nil {
		return nil, err
	}
	c.log.Info().Str("user_id", sc.UserID).Msg("account deleted")
	return drippler.Fields{"message": "Account deleted successfully"}, nil
}

func authFields(res *supabase.AuthResult, message string) drippler.Fields {
	fields := drippler.Fields{"message": message, "user": nil, "session": nil}
	if res.User != nil {
		fields["user"] = res.User
	}
	if res.Session != nil {
		fields["session"] = res.Session
	}
	return fields
}

func sessionFields(s *supabase.Session) drippler.Fields {
	if s == nil {
		return drippler.Fields{"user": nil, "session": nil}
	}
	user := s.User
	return drippler.Fields{"user": &user, "session": s}
}
