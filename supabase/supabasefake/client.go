package supabasefake

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/drippler/drippler"
	"github.com/drippler/drippler/events"
	"github.com/drippler/drippler/supabase"
)

var _ supabase.Backend = (*Client)(nil)

// Client is the per-process view of a Server. Like the real client it keeps
// the current session in memory, mirrors it into its token storage and
// publishes auth changes.
type Client struct {
	srv    *Server
	tokens supabase.TokenStorage
	hub    *events.Hub[supabase.AuthChange]

	mu      sync.Mutex
	session *supabase.Session
	loaded  bool
}

func newClient(srv *Server, tokens supabase.TokenStorage) *Client {
	return &Client{
		srv:    srv,
		tokens: tokens,
		hub:    events.NewHub[supabase.AuthChange](nil),
	}
}

// OnAuthStateChange implements supabase.Auth.
func (c *Client) OnAuthStateChange(l events.Listener[supabase.AuthChange]) func() {
	return c.hub.Subscribe(l)
}

// Close implements supabase.Backend.
func (c *Client) Close() error { return nil }

// SignUp implements supabase.Auth.
func (c *Client) SignUp(ctx context.Context, creds supabase.Credentials, redirectTo string) (*supabase.AuthResult, error) {
	c.srv.mu.Lock()
	if err := c.srv.enter(OpSignUp); err != nil {
		c.srv.mu.Unlock()
		return nil, err
	}
	c.srv.redirects[OpSignUp] = redirectTo
	if creds.Email == "" && creds.Phone == "" {
		c.srv.mu.Unlock()
		return nil, drippler.ErrIdentityRequired
	}
	if _, exists := c.srv.lookupLocked(creds); exists {
		c.srv.mu.Unlock()
		return nil, drippler.Errorf(drippler.KindAuthentication, "User already registered")
	}
	a := c.srv.createLocked(creds)
	var s *supabase.Session
	if c.srv.AutoConfirm {
		a.confirmed = true
		s = c.srv.issueLocked(a)
	}
	user := a.user.Clone()
	c.srv.mu.Unlock()

	if s != nil {
		if err := c.install(ctx, s); err != nil {
			return nil, err
		}
		c.emit(ctx, supabase.EventSignedIn, s)
	}
	return &supabase.AuthResult{User: user, Session: s.Clone()}, nil
}

// SignInWithPassword implements supabase.Auth.
func (c *Client) SignInWithPassword(ctx context.Context, creds supabase.Credentials) (*supabase.AuthResult, error) {
	c.srv.mu.Lock()
	if err := c.srv.enter(OpSignIn); err != nil {
		c.srv.mu.Unlock()
		return nil, err
	}
	if creds.Email == "" && creds.Phone == "" {
		c.srv.mu.Unlock()
		return nil, drippler.ErrIdentityRequired
	}
	a, ok := c.srv.lookupLocked(creds)
	if !ok || a.password != creds.Password {
		c.srv.mu.Unlock()
		return nil, drippler.Errorf(drippler.KindAuthentication, "Invalid login credentials")
	}
	if !a.confirmed {
		c.srv.mu.Unlock()
		return nil, drippler.Errorf(drippler.KindAuthentication, "Email not confirmed")
	}
	s := c.srv.issueLocked(a)
	c.srv.mu.Unlock()

	if err := c.install(ctx, s); err != nil {
		return nil, err
	}
	c.emit(ctx, supabase.EventSignedIn, s)
	return &supabase.AuthResult{User: s.User.Clone(), Session: s.Clone()}, nil
}

// SignOut implements supabase.Auth.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	current := c.session.Clone()
	c.mu.Unlock()

	if current != nil {
		c.srv.mu.Lock()
		// A failed remote sign-out still ends the session locally.
		if err := c.srv.enter(OpSignOut); err == nil {
			c.srv.revokeUserLocked(current.User.ID)
		}
		c.srv.mu.Unlock()
	}

	if err := c.install(ctx, nil); err != nil {
		return err
	}
	c.emit(ctx, supabase.EventSignedOut, nil)
	return nil
}

// GetSession implements supabase.Auth.
func (c *Client) GetSession(ctx context.Context) (*supabase.Session, error) {
	current, err := c.current(ctx)
	if err != nil || current == nil {
		return nil, err
	}
	if !current.ExpiredAt(c.srv.Now()) {
		return current, nil
	}
	return c.refresh(ctx, current.RefreshToken)
}

// GetUser implements supabase.Auth.
func (c *Client) GetUser(ctx context.Context) (*supabase.User, error) {
	s, err := c.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, drippler.Errorf(drippler.KindAuthentication, "Auth session missing!")
	}

	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	if err := c.srv.enter(OpGetUser); err != nil {
		return nil, err
	}
	a, err := c.srv.userForLocked(s.AccessToken)
	if err != nil {
		return nil, err
	}
	return a.user.Clone(), nil
}

// RefreshSession implements supabase.Auth.
func (c *Client) RefreshSession(ctx context.Context) (*supabase.Session, error) {
	current, err := c.current(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, drippler.Errorf(drippler.KindAuthentication, "Auth session missing!")
	}
	return c.refresh(ctx, current.RefreshToken)
}

// SetSession implements supabase.Auth.
func (c *Client) SetSession(ctx context.Context, accessToken, refreshToken string) (*supabase.Session, error) {
	if accessToken == "" || refreshToken == "" {
		return nil, drippler.Errorf(drippler.KindAuthentication, "access and refresh tokens are required")
	}

	c.srv.mu.Lock()
	if err := c.srv.enter(OpGetUser); err != nil {
		c.srv.mu.Unlock()
		return nil, err
	}
	if a, err := c.srv.userForLocked(accessToken); err == nil {
		g := c.srv.access[accessToken]
		s := &supabase.Session{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			TokenType:    "bearer",
			ExpiresIn:    int(g.expiresAt.Sub(c.srv.clock).Seconds()),
			ExpiresAt:    g.expiresAt.Unix(),
			User:         *a.user.Clone(),
		}
		c.srv.mu.Unlock()

		if err := c.install(ctx, s); err != nil {
			return nil, err
		}
		c.emit(ctx, supabase.EventSignedIn, s)
		return s.Clone(), nil
	}
	c.srv.mu.Unlock()
	return c.refresh(ctx, refreshToken)
}

// ResetPasswordForEmail implements supabase.Auth.
func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	if err := c.srv.enter(OpRecover); err != nil {
		return err
	}
	if email == "" {
		return drippler.Errorf(drippler.KindValidation, "Email is required")
	}
	c.srv.redirects[OpRecover] = redirectTo
	c.srv.recovered = append(c.srv.recovered, email)
	return nil
}

// UpdateUser implements supabase.Auth.
func (c *Client) UpdateUser(ctx context.Context, update supabase.UserUpdate) (*supabase.User, error) {
	s, err := c.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, drippler.ErrAuthRequired
	}

	c.srv.mu.Lock()
	if err := c.srv.enter(OpUpdateUser); err != nil {
		c.srv.mu.Unlock()
		return nil, err
	}
	a, err := c.srv.userForLocked(s.AccessToken)
	if err != nil {
		c.srv.mu.Unlock()
		return nil, err
	}
	if update.Password != nil {
		a.password = *update.Password
	}
	if len(update.Data) > 0 {
		if a.user.UserMetadata == nil {
			a.user.UserMetadata = make(map[string]any)
		}
		maps.Copy(a.user.UserMetadata, update.Data)
	}
	user := a.user.Clone()
	c.srv.mu.Unlock()

	c.mu.Lock()
	if c.session != nil {
		c.session.User = *user.Clone()
		s = c.session.Clone()
	}
	c.mu.Unlock()
	if err := c.tokens.Save(ctx, s); err != nil {
		return nil, drippler.Wrap(drippler.KindConnectivity, "updateUser", err)
	}
	c.emit(ctx, supabase.EventUserUpdated, s)
	return user, nil
}

// DeleteUser implements supabase.Auth.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	if err := c.srv.enter(OpDeleteUser); err != nil {
		return err
	}
	a, ok := c.srv.accounts[userID]
	if !ok {
		return drippler.Errorf(drippler.KindNotFound, "User not found")
	}
	c.srv.revokeUserLocked(userID)
	delete(c.srv.emails, a.user.Email)
	delete(c.srv.phones, a.user.Phone)
	delete(c.srv.accounts, userID)
	return nil
}

func (c *Client) current(ctx context.Context) (*supabase.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		s, err := c.tokens.Load(ctx)
		if err != nil {
			return nil, drippler.Wrap(drippler.KindConnectivity, "loadSession", err)
		}
		c.loaded = true
		c.session = s
	}
	return c.session.Clone(), nil
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (*supabase.Session, error) {
	c.srv.mu.Lock()
	if err := c.srv.enter(OpRefresh); err != nil {
		c.srv.mu.Unlock()
		return nil, c.refreshFailed(ctx, err)
	}
	userID, ok := c.srv.refresh[refreshToken]
	if !ok {
		c.srv.mu.Unlock()
		return nil, c.refreshFailed(ctx, drippler.Errorf(drippler.KindAuthentication, "Invalid Refresh Token: Refresh Token Not Found"))
	}
	delete(c.srv.refresh, refreshToken)
	a, ok := c.srv.accounts[userID]
	if !ok {
		c.srv.mu.Unlock()
		return nil, c.refreshFailed(ctx, drippler.Errorf(drippler.KindAuthentication, "User not found"))
	}
	s := c.srv.issueLocked(a)
	c.srv.mu.Unlock()

	if err := c.install(ctx, s); err != nil {
		return nil, err
	}
	c.emit(ctx, supabase.EventTokenRefreshed, s)
	return s.Clone(), nil
}

func (c *Client) refreshFailed(ctx context.Context, err error) error {
	if drippler.KindOf(err) == drippler.KindAuthentication {
		if clearErr := c.install(ctx, nil); clearErr != nil {
			return errors.Join(err, clearErr)
		}
		c.emit(ctx, supabase.EventSignedOut, nil)
	}
	return err
}

func (c *Client) install(ctx context.Context, s *supabase.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.loaded = true
	c.session = s.Clone()
	if s == nil {
		return c.tokens.Clear(ctx)
	}
	return c.tokens.Save(ctx, s)
}

func (c *Client) emit(ctx context.Context, ev supabase.AuthEvent, s *supabase.Session) {
	c.hub.Publish(ctx, supabase.AuthChange{Event: ev, Session: s.Clone()})
}
