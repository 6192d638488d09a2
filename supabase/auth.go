package supabase

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/drippler/drippler"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/supabase-community/gotrue-go/types"
)

// SignUp implements Auth.
func (c *Client) SignUp(ctx context.Context, creds Credentials, redirectTo string) (*AuthResult, error) {
	res, err := c.signUp(ctx, creds, redirectTo)
	if err != nil {
		return nil, err
	}
	if res.Session != nil {
		if err := c.install(ctx, res.Session); err != nil {
			return nil, err
		}
		c.emit(ctx, EventSignedIn, res.Session)
	}
	return res, nil
}

// SignInWithPassword implements Auth.
func (c *Client) SignInWithPassword(ctx context.Context, creds Credentials) (*AuthResult, error) {
	var (
		resp *types.TokenResponse
		err  error
	)
	switch {
	case creds.Email != "":
		resp, err = c.client().Auth.SignInWithEmailPassword(creds.Email, creds.Password)
	case creds.Phone != "":
		resp, err = c.client().Auth.SignInWithPhonePassword(creds.Phone, creds.Password)
	default:
		return nil, drippler.ErrIdentityRequired
	}
	if err != nil {
		return nil, classify("signIn", err)
	}

	s := fromTypesSession(resp.Session)
	if err := c.install(ctx, s); err != nil {
		return nil, err
	}
	c.emit(ctx, EventSignedIn, s)
	return &AuthResult{User: s.User.Clone(), Session: s.Clone()}, nil
}

// SignOut implements Auth.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	current := c.session
	c.mu.Unlock()

	if current != nil {
		if err := c.client().Auth.WithToken(current.AccessToken).Logout(); err != nil {
			c.log.Warn().Err(classify("signOut", err)).Msg("remote sign-out failed, clearing local session")
		}
	}

	if err := c.install(ctx, nil); err != nil {
		return err
	}
	c.emit(ctx, EventSignedOut, nil)
	return nil
}

// GetSession implements Auth.
func (c *Client) GetSession(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	if err := c.loadLocked(ctx); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	current := c.session.Clone()
	c.mu.Unlock()

	if current == nil {
		return nil, nil
	}
	if !current.ExpiredAt(c.now()) {
		return current, nil
	}
	return c.refresh(ctx, current.RefreshToken)
}

// GetUser implements Auth.
func (c *Client) GetUser(ctx context.Context) (*User, error) {
	s, err := c.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, drippler.Errorf(drippler.KindAuthentication, "Auth session missing!")
	}
	resp, err := c.client().Auth.WithToken(s.AccessToken).GetUser()
	if err != nil {
		return nil, classify("getUser", err)
	}
	u := fromTypesUser(resp.User)
	return &u, nil
}

// RefreshSession implements Auth.
func (c *Client) RefreshSession(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	if err := c.loadLocked(ctx); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	current := c.session.Clone()
	c.mu.Unlock()

	if current == nil {
		return nil, drippler.Errorf(drippler.KindAuthentication, "Auth session missing!")
	}
	return c.refresh(ctx, current.RefreshToken)
}

// SetSession implements Auth.
func (c *Client) SetSession(ctx context.Context, accessToken, refreshToken string) (*Session, error) {
	if accessToken == "" || refreshToken == "" {
		return nil, drippler.Errorf(drippler.KindAuthentication, "access and refresh tokens are required")
	}

	if exp, err := tokenExpiry(accessToken); err == nil && exp.After(c.now()) {
		resp, err := c.client().Auth.WithToken(accessToken).GetUser()
		if err == nil {
			s := &Session{
				AccessToken:  accessToken,
				RefreshToken: refreshToken,
				TokenType:    "bearer",
				ExpiresIn:    int(exp.Sub(c.now()).Seconds()),
				ExpiresAt:    exp.Unix(),
				User:         fromTypesUser(resp.User),
			}
			if err := c.install(ctx, s); err != nil {
				return nil, err
			}
			c.emit(ctx, EventSignedIn, s)
			return s.Clone(), nil
		}
		if drippler.KindOf(classify("getUser", err)) == drippler.KindConnectivity {
			return nil, classify("setSession", err)
		}
	}
	return c.refresh(ctx, refreshToken)
}

// ResetPasswordForEmail implements Auth.
func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	return c.recover(ctx, email, redirectTo)
}

// UpdateUser implements Auth.
func (c *Client) UpdateUser(ctx context.Context, update UserUpdate) (*User, error) {
	s, err := c.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, drippler.ErrAuthRequired
	}

	resp, err := c.client().Auth.WithToken(s.AccessToken).UpdateUser(types.UpdateUserRequest{
		Password: update.Password,
		Data:     update.Data,
	})
	if err != nil {
		return nil, classify("updateUser", err)
	}
	u := fromTypesUser(resp.User)

	c.mu.Lock()
	if c.session != nil {
		c.session.User = *u.Clone()
		s = c.session.Clone()
	}
	c.mu.Unlock()
	if err := c.tokens.Save(ctx, s); err != nil {
		return nil, drippler.Wrap(drippler.KindConnectivity, "updateUser", err)
	}
	c.emit(ctx, EventUserUpdated, s)
	return &u, nil
}

// DeleteUser implements Auth.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	id, err := uuid.Parse(userID)
	if err != nil {
		return drippler.Errorf(drippler.KindValidation, "invalid user id %q", userID)
	}
	if err := c.client().Auth.AdminDeleteUser(types.AdminDeleteUserRequest{UserID: id}); err != nil {
		return classify("deleteUser", err)
	}
	return nil
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (*Session, error) {
	resp, err := c.client().Auth.RefreshToken(refreshToken)
	if err != nil {
		err = classify("refreshSession", err)
		if drippler.KindOf(err) == drippler.KindAuthentication {
			// The refresh token is spent or revoked; the stored session is useless.
			if clearErr := c.install(ctx, nil); clearErr != nil {
				c.log.Warn().Err(clearErr).Msg("failed to clear rejected session")
			}
			c.emit(ctx, EventSignedOut, nil)
		}
		return nil, err
	}

	s := fromTypesSession(resp.Session)
	if err := c.install(ctx, s); err != nil {
		return nil, err
	}
	c.emit(ctx, EventTokenRefreshed, s)
	return s.Clone(), nil
}

// install makes s the current session (nil clears it) and persists it.
func (c *Client) install(ctx context.Context, s *Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.loaded = true
	if s == nil {
		c.session = nil
		if err := c.bindSession(nil); err != nil {
			return err
		}
		if err := c.tokens.Clear(ctx); err != nil {
			return drippler.Wrap(drippler.KindConnectivity, "clearSession", err)
		}
		return nil
	}

	c.session = s.Clone()
	if err := c.bindSession(c.session); err != nil {
		return err
	}
	if err := c.tokens.Save(ctx, c.session); err != nil {
		return drippler.Wrap(drippler.KindConnectivity, "saveSession", err)
	}
	return nil
}

func (c *Client) loadLocked(ctx context.Context) error {
	if c.loaded {
		return nil
	}
	s, err := c.tokens.Load(ctx)
	if err != nil {
		return drippler.Wrap(drippler.KindConnectivity, "loadSession", err)
	}
	c.loaded = true
	c.session = s
	if s != nil {
		return c.bindSession(s)
	}
	return nil
}

func (c *Client) emit(ctx context.Context, ev AuthEvent, s *Session) {
	c.log.Debug().Str("event", string(ev)).Msg("auth state changed")
	c.hub.Publish(ctx, AuthChange{Event: ev, Session: s.Clone()})
}

// tokenExpiry reads the exp claim without verifying the signature; the
// service verifies the token on use.
func tokenExpiry(accessToken string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, errors.New("token has no exp claim")
	}
	return exp.Time, nil
}

// classify separates transport failures from rejections by the service.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		netErr net.Error
		urlErr *url.Error
	)
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return drippler.Wrap(drippler.KindConnectivity, op, err)
	}
	if drippler.KindOf(err) != drippler.KindUnknown {
		return err
	}
	if status, ok := responseStatus(err); ok {
		return drippler.Wrap(statusKind(status), op, err)
	}
	return drippler.Wrap(drippler.KindAuthentication, op, err)
}

// statusKind maps a status returned by the auth service to an error kind.
// Server failures and throttling say nothing about the credentials.
func statusKind(status int) drippler.Kind {
	if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
		return drippler.KindConnectivity
	}
	return drippler.KindAuthentication
}

const statusPrefix = "response status code "

// responseStatus reads the status gotrue-go puts in the text of its errors.
func responseStatus(err error) (int, bool) {
	msg := err.Error()
	i := strings.Index(msg, statusPrefix)
	if i < 0 {
		return 0, false
	}
	rest := msg[i+len(statusPrefix):]
	end := strings.IndexFunc(rest, func(r rune) bool { return r < '0' || r > '9' })
	if end < 0 {
		end = len(rest)
	}
	status, err := strconv.Atoi(rest[:end])
	if err != nil {
		return 0, false
	}
	return status, true
}

func fromTypesUser(u types.User) User {
	return User{
		ID:           u.ID.String(),
		Email:        u.Email,
		Phone:        u.Phone,
		Role:         u.Role,
		UserMetadata: u.UserMetadata,
	}
}

func fromTypesSession(s types.Session) *Session {
	return &Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		ExpiresIn:    s.ExpiresIn,
		ExpiresAt:    s.ExpiresAt,
		User:         fromTypesUser(s.User),
	}
}

func toTypesSession(s *Session) types.Session {
	return types.Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		ExpiresIn:    s.ExpiresIn,
		ExpiresAt:    s.ExpiresAt,
	}
}
