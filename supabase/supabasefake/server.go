// Package supabasefake is an in-memory stand-in for the remote auth and data
// service. One Server plays the hosted backend; every simulated process gets
// its own Client bound to its own token storage.
package supabasefake

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/drippler/drippler"
	"github.com/drippler/drippler/supabase"
	"github.com/google/uuid"
)

// Operation names accepted by Fail and Calls.
const (
	OpSignUp     = "signUp"
	OpSignIn     = "signIn"
	OpSignOut    = "signOut"
	OpGetUser    = "getUser"
	OpRefresh    = "refresh"
	OpRecover    = "recover"
	OpUpdateUser = "updateUser"
	OpDeleteUser = "deleteUser"
	OpTables     = "tables"
	OpStorage    = "storage"
)

// BaseURL is the endpoint public object URLs are built on.
const BaseURL = "https://fake.supabase.co"

type account struct {
	user      supabase.User
	password  string
	confirmed bool
}

type grant struct {
	userID    string
	expiresAt time.Time
}

// Server holds the backend state shared by every Client.
type Server struct {
	mu sync.Mutex

	clock    time.Time
	tokenTTL time.Duration

	// AutoConfirm issues a session at sign-up instead of waiting for email
	// verification.
	AutoConfirm bool

	accounts map[string]*account
	emails   map[string]string
	phones   map[string]string
	access   map[string]grant
	refresh  map[string]string
	seq      int

	clothing    []supabase.ClothingItem
	avatars     []supabase.Avatar
	profiles    map[string]supabase.Profile
	generations []supabase.Generation
	captures    []supabase.PageCapture
	objects     map[string][]byte

	offline   bool
	failures  map[string]error
	calls     map[string]int
	redirects map[string]string
	recovered []string
}

// NewServer creates an empty backend whose clock starts at a fixed instant.
func NewServer() *Server {
	return &Server{
		clock:     time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		tokenTTL:  time.Hour,
		accounts:  make(map[string]*account),
		emails:    make(map[string]string),
		phones:    make(map[string]string),
		access:    make(map[string]grant),
		refresh:   make(map[string]string),
		profiles:  make(map[string]supabase.Profile),
		objects:   make(map[string][]byte),
		failures:  make(map[string]error),
		calls:     make(map[string]int),
		redirects: make(map[string]string),
	}
}

// Now is the server clock. Pass it to the code under test so both sides agree on expiry.
func (s *Server) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock
}

// Advance moves the server clock forward.
func (s *Server) Advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = s.clock.Add(d)
}

// SetTokenTTL changes the lifetime of access tokens issued from now on.
func (s *Server) SetTokenTTL(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenTTL = d
}

// SetOffline makes every call fail with a connectivity error.
func (s *Server) SetOffline(offline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offline = offline
}

// Fail makes every call of op return err until Heal is called.
func (s *Server) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// Heal removes an injected failure.
func (s *Server) Heal(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, op)
}

// Calls returns how many times op reached the server.
func (s *Server) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// LastRedirect returns the redirect target of the most recent op call.
func (s *Server) LastRedirect(op string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.redirects[op]
}

// RecoveryEmails lists the addresses a password reset was requested for.
func (s *Server) RecoveryEmails() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.recovered)
}

// AddUser registers a confirmed account.
func (s *Server) AddUser(email, password string) supabase.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.createLocked(supabase.Credentials{Email: email, Password: password})
	a.confirmed = true
	return *a.user.Clone()
}

// ConfirmUser marks an account as verified.
func (s *Server) ConfirmUser(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.emails[email]; ok {
		s.accounts[id].confirmed = true
	}
}

// UserByEmail returns the account registered for email.
func (s *Server) UserByEmail(email string) (supabase.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.emails[email]
	if !ok {
		return supabase.User{}, false
	}
	return *s.accounts[id].user.Clone(), true
}

// ExpireAccessTokens invalidates every issued access token. Refresh tokens stay valid.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tok, g := range s.access {
		g.expiresAt = s.clock
		s.access[tok] = g
	}
}

// RevokeRefreshTokens invalidates every issued refresh token.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.refresh)
}

// Object returns a stored object.
func (s *Server) Object(bucket, path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[objectKey(bucket, path)]
	return b, ok
}

// ObjectCount returns the number of objects stored in bucket.
func (s *Server) ObjectCount(bucket string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	prefix := bucket + "/"
	for k := range s.objects {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

// PutObject stores an object directly, bypassing any client.
func (s *Server) PutObject(bucket, path string, data []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectKey(bucket, path)] = slices.Clone(data)
	return publicURL(bucket, path)
}

// AddGeneration inserts a try-on generation row, as the web app would.
func (s *Server) AddGeneration(g supabase.Generation) supabase.Generation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = s.stampLocked()
	}
	s.generations = append(s.generations, g)
	return g
}

// Captures returns the stored page captures.
func (s *Server) Captures() []supabase.PageCapture {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.captures)
}

// NewClient returns a client for one simulated process.
func (s *Server) NewClient(tokens supabase.TokenStorage) *Client {
	return newClient(s, tokens)
}

// Factory adapts the server to the constructor signature the session manager expects.
func (s *Server) Factory() func(supabase.Config, supabase.TokenStorage) (supabase.Backend, error) {
	return func(cfg supabase.Config, tokens supabase.TokenStorage) (supabase.Backend, error) {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if tokens == nil {
			return nil, fmt.Errorf("supabase token storage is required")
		}
		return s.NewClient(tokens), nil
	}
}

// enter records a call and returns the failure injected for it.
func (s *Server) enter(op string) error {
	s.calls[op]++
	if s.offline {
		return drippler.Wrap(drippler.KindConnectivity, op, errors.New("fetch failed"))
	}
	return s.failures[op]
}

// stampLocked returns a creation time that sorts after every earlier one.
func (s *Server) stampLocked() time.Time {
	s.seq++
	return s.clock.Add(time.Duration(s.seq) * time.Microsecond)
}

func (s *Server) createLocked(creds supabase.Credentials) *account {
	a := &account{
		user: supabase.User{
			ID:           uuid.NewString(),
			Email:        creds.Email,
			Phone:        creds.Phone,
			Role:         "authenticated",
			UserMetadata: maps.Clone(creds.Data),
		},
		password: creds.Password,
	}
	s.accounts[a.user.ID] = a
	if creds.Email != "" {
		s.emails[creds.Email] = a.user.ID
	}
	if creds.Phone != "" {
		s.phones[creds.Phone] = a.user.ID
	}
	return a
}

func (s *Server) lookupLocked(creds supabase.Credentials) (*account, bool) {
	var (
		id string
		ok bool
	)
	if creds.Email != "" {
		id, ok = s.emails[creds.Email]
	} else {
		id, ok = s.phones[creds.Phone]
	}
	if !ok {
		return nil, false
	}
	return s.accounts[id], true
}

func (s *Server) issueLocked(a *account) *supabase.Session {
	s.seq++
	access := fmt.Sprintf("access-%d-%s", s.seq, uuid.NewString())
	refresh := fmt.Sprintf("refresh-%d-%s", s.seq, uuid.NewString())
	exp := s.clock.Add(s.tokenTTL).Truncate(time.Second)

	s.access[access] = grant{userID: a.user.ID, expiresAt: exp}
	s.refresh[refresh] = a.user.ID
	return &supabase.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(exp.Sub(s.clock).Seconds()),
		ExpiresAt:    exp.Unix(),
		User:         *a.user.Clone(),
	}
}

// userForLocked validates an access token.
func (s *Server) userForLocked(access string) (*account, error) {
	g, ok := s.access[access]
	if !ok || !g.expiresAt.After(s.clock) {
		return nil, drippler.Errorf(drippler.KindAuthentication, "invalid JWT: token is expired or revoked")
	}
	a, ok := s.accounts[g.userID]
	if !ok {
		return nil, drippler.Errorf(drippler.KindAuthentication, "User from sub claim in JWT does not exist")
	}
	return a, nil
}

func (s *Server) revokeUserLocked(userID string) {
	for tok, g := range s.access {
		if g.userID == userID {
			delete(s.access, tok)
		}
	}
	for tok, id := range s.refresh {
		if id == userID {
			delete(s.refresh, tok)
		}
	}
}

func objectKey(bucket, path string) string {
	return bucket + "/" + path
}

func publicURL(bucket, path string) string {
	return BaseURL + "/storage/v1/object/public/" + bucket + "/" + path
}

// newestFirst returns the rows of userID ordered by creation time, newest first.
func newestFirst[T any](rows []T, userID string, owner func(T) string, created func(T) time.Time) []T {
	out := make([]T, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		if owner(rows[i]) == userID {
			out = append(out, rows[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return created(out[i]).After(created(out[j]))
	})
	return out
}
