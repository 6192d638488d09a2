// Package session owns the lifecycle of the authentication session: it
// connects to the remote service, restores and persists sessions across
// restarts, keeps them fresh and mirrors every change into the key-value
// store and onto the broadcast bus.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/drippler/drippler"
	"github.com/drippler/drippler/events"
	"github.com/drippler/drippler/kvstore"
	"github.com/drippler/drippler/supabase"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Manager is the single authority for session existence, validity and
// renewal within a process.
type Manager struct {
	cfg   supabase.Config
	store kvstore.Store
	bus   *events.Bus
	log   zerolog.Logger
	now   func() time.Time

	factory          Factory
	retry            RetryPolicy
	checkInterval    time.Duration
	refreshThreshold time.Duration
	webappURL        string

	// initMu serialises Initialize so two connects never interleave.
	initMu sync.Mutex

	mu          sync.RWMutex
	backend     supabase.Backend
	state       State
	unsubscribe func()
	stopMonitor func()

	refreshes singleflight.Group
}

// New creates a Manager. Nothing is contacted until Initialize.
func New(cfg supabase.Config, store kvstore.Store, opts ...Option) *Manager {
	m := &Manager{
		cfg:              cfg,
		store:            store,
		log:              zerolog.Nop(),
		now:              time.Now,
		retry:            DefaultRetryPolicy,
		checkInterval:    DefaultCheckInterval,
		refreshThreshold: DefaultRefreshThreshold,
		webappURL:        DefaultWebappURL,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.bus == nil {
		m.bus = events.NewBus(nil)
	}
	if m.factory == nil {
		m.factory = func(cfg supabase.Config, tokens supabase.TokenStorage) (supabase.Backend, error) {
			return supabase.New(cfg, tokens)
		}
	}
	m.webappURL = strings.TrimRight(m.webappURL, "/")
	return m
}

// Bus returns the bus auth changes are broadcast on.
func (m *Manager) Bus() *events.Bus { return m.bus }

// Store returns the key-value store the manager persists into.
func (m *Manager) Store() kvstore.Store { return m.store }

// Initialize connects to the remote service, restores any previous session
// and starts the background check. The returned status is valid even when
// err is not nil; a failure is also persisted as the last connection error.
func (m *Manager) Initialize(ctx context.Context) (Status, error) {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	attempt := m.now()
	if err := m.connect(ctx); err != nil {
		m.log.Error().Err(err).Msg("failed to initialize supabase")
		m.teardown(StateDisconnected)
		m.persist(ctx, map[string]string{
			KeySupabaseConnected:     "false",
			KeyLastConnectionError:   err.Error(),
			KeyLastConnectionAttempt: formatTime(attempt),
		})
		return m.Status(ctx), err
	}

	m.persist(ctx, map[string]string{
		KeySupabaseConnected:     "true",
		KeyLastConnectionAttempt: formatTime(attempt),
	})
	m.startMonitor(ctx)
	m.log.Info().Str("state", m.State().String()).Msg("supabase client initialized")
	return m.Status(ctx), nil
}

func (m *Manager) connect(ctx context.Context) error {
	cfg := m.cfg
	if err := cfg.Validate(); err != nil {
		return drippler.Wrap(drippler.KindConfiguration, "initialize", err)
	}
	if cfg.Now == nil {
		cfg.Now = m.now
	}
	cfg.Logger = m.log

	tokens := NewTokenStorage(m.store, supabase.StorageKey(cfg.URL))
	backend, err := m.factory(cfg, tokens)
	if err != nil {
		return drippler.Wrap(drippler.KindConfiguration, "initialize", err)
	}

	m.teardown(StateUninitialized)
	unsubscribe := backend.OnAuthStateChange(m.onAuthChange)

	m.mu.Lock()
	m.backend = backend
	m.unsubscribe = unsubscribe
	m.mu.Unlock()

	m.restoreExistingSession(ctx, backend)

	s, err := backend.GetSession(ctx)
	if err != nil && drippler.KindOf(err) != drippler.KindAuthentication {
		return drippler.Wrap(drippler.KindConnectivity, "initialize", err)
	}

	m.mu.Lock()
	m.state = StateConnectedNoSession
	if s != nil {
		m.state = StateConnectedAuthenticated
	}
	m.mu.Unlock()
	return nil
}

// teardown drops the current client and moves to state.
func (m *Manager) teardown(state State) {
	m.mu.Lock()
	backend, unsubscribe, stop := m.backend, m.unsubscribe, m.stopMonitor
	m.backend, m.unsubscribe, m.stopMonitor = nil, nil, nil
	m.state = state
	m.mu.Unlock()

	if stop != nil {
		stop()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	if backend != nil {
		if err := backend.Close(); err != nil {
			m.log.Warn().Err(err).Msg("failed to close supabase client")
		}
	}
}

// InitializeWithRetry calls Initialize until it succeeds or the retry policy
// is exhausted.
func (m *Manager) InitializeWithRetry(ctx context.Context) bool {
	attempts := max(m.retry.MaxAttempts, 1)
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(m.retry.Delay), uint64(attempts-1)),
		ctx,
	)

	n := 0
	err := backoff.RetryNotify(func() error {
		n++
		m.log.Info().Int("attempt", n).Int("max_attempts", attempts).Msg("supabase initialization attempt")
		_, err := m.Initialize(ctx)
		return err
	}, policy, func(err error, next time.Duration) {
		m.log.Warn().Err(err).Dur("retry_in", next).Msg("supabase initialization failed, retrying")
	})
	if err != nil {
		m.log.Error().Err(err).Int("attempts", n).Msg("failed to initialize supabase after all retries")
		return false
	}
	return true
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Status returns the connection state together with the persisted last
// attempt and error.
func (m *Manager) Status(ctx context.Context) Status {
	state := m.State()
	st := Status{State: state, Connected: state.Connected()}

	values, err := m.store.Get(ctx, KeyLastConnectionAttempt, KeyLastConnectionError)
	if err != nil {
		m.log.Warn().Err(err).Msg("failed to read connection status")
		return st
	}
	if t, err := time.Parse(time.RFC3339Nano, values[KeyLastConnectionAttempt]); err == nil {
		st.LastAttempt = t
	}
	st.LastError = values[KeyLastConnectionError]
	return st
}

// Backend returns the connected client.
func (m *Manager) Backend() (supabase.Backend, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.backend == nil || !m.state.Connected() {
		return nil, drippler.ErrNotConnected
	}
	return m.backend, nil
}

// RequireSession returns the connected client and its current session.
func (m *Manager) RequireSession(ctx context.Context) (supabase.Backend, *supabase.Session, error) {
	backend, err := m.Backend()
	if err != nil {
		return nil, nil, err
	}
	s, err := backend.GetSession(ctx)
	if err != nil || s == nil {
		return nil, nil, drippler.ErrAuthRequired
	}
	return backend, s, nil
}

// Close stops the background check and releases the client.
func (m *Manager) Close() error {
	m.teardown(StateUninitialized)
	return nil
}

// markDisconnected records a failure detected after initialization.
func (m *Manager) markDisconnected(ctx context.Context, err error) {
	m.mu.Lock()
	m.state = StateDisconnected
	m.mu.Unlock()

	m.persist(ctx, map[string]string{
		KeySupabaseConnected:     "false",
		KeyLastConnectionError:   err.Error(),
		KeyLastConnectionAttempt: formatTime(m.now()),
	})
}

// setAuthenticated moves between the two connected states.
func (m *Manager) setAuthenticated(authenticated bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.Connected() {
		return
	}
	if authenticated {
		m.state = StateConnectedAuthenticated
	} else {
		m.state = StateConnectedNoSession
	}
}

// persistSession writes the user, the session and its derived expiry.
func (m *Manager) persistSession(ctx context.Context, s *supabase.Session) error {
	user, err := json.Marshal(s.User)
	if err != nil {
		return err
	}
	session, err := json.Marshal(s)
	if err != nil {
		return err
	}
	values := map[string]string{
		KeyCurrentUser:    string(user),
		KeyUserSession:    string(session),
		KeyLastAuthAction: formatTime(m.now()),
	}
	if s.ExpiresAt > 0 {
		values[KeySessionExpiry] = formatTime(s.Expiry())
	}
	return m.store.Set(ctx, values)
}

// clearSession removes the persisted session fields.
func (m *Manager) clearSession(ctx context.Context) {
	if err := m.store.Remove(ctx, sessionKeys...); err != nil {
		m.log.Warn().Err(err).Msg("failed to clear persisted session")
	}
}

// persist writes values, logging instead of failing.
func (m *Manager) persist(ctx context.Context, values map[string]string) {
	if err := m.store.Set(ctx, values); err != nil {
		m.log.Warn().Err(err).Msg("failed to persist connection state")
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// storedSession is the session fields last persisted by this or a previous process.
type storedSession struct {
	session *supabase.Session
	expiry  time.Time
}

func (m *Manager) loadStoredSession(ctx context.Context) (*storedSession, error) {
	values, err := m.store.Get(ctx, KeyUserSession, KeySessionExpiry)
	if err != nil {
		return nil, err
	}
	raw, ok := values[KeyUserSession]
	if !ok || raw == "" || raw == "null" {
		return nil, nil
	}
	var s supabase.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, errors.Join(errors.New("corrupt stored session"), err)
	}
	if s.AccessToken == "" {
		return nil, nil
	}
	stored := &storedSession{session: &s}
	if v := values[KeySessionExpiry]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, errors.Join(errors.New("corrupt stored session expiry"), err)
		}
		stored.expiry = t
	}
	return stored, nil
}
