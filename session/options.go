package session

import (
	"time"

	"github.com/drippler/drippler/events"
	"github.com/drippler/drippler/supabase"
	"github.com/rs/zerolog"
)

// Factory builds the remote service client bound to a token storage.
type Factory func(cfg supabase.Config, tokens supabase.TokenStorage) (supabase.Backend, error)

// RetryPolicy bounds InitializeWithRetry.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy is three attempts one second apart.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, Delay: time.Second}

const (
	DefaultCheckInterval    = 5 * time.Minute
	DefaultRefreshThreshold = 10 * time.Minute
	DefaultWebappURL        = "https://drippler-web.vercel.app"
)

// Option is a functional option for configuring a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) {
		m.log = log.With().Str("component", "session").Logger()
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithFactory replaces the remote client constructor.
func WithFactory(f Factory) Option {
	return func(m *Manager) {
		m.factory = f
	}
}

// WithBus sets the bus auth changes are broadcast on.
func WithBus(bus *events.Bus) Option {
	return func(m *Manager) {
		m.bus = bus
	}
}

// WithRetryPolicy sets the bounds of InitializeWithRetry.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(m *Manager) {
		m.retry = p
	}
}

// WithCheckInterval sets how often the background check runs.
func WithCheckInterval(d time.Duration) Option {
	return func(m *Manager) {
		m.checkInterval = d
	}
}

// WithRefreshThreshold sets the remaining lifetime below which the background
// check renews the session.
func WithRefreshThreshold(d time.Duration) Option {
	return func(m *Manager) {
		m.refreshThreshold = d
	}
}

// WithWebappURL sets the base of the verification and password reset links.
func WithWebappURL(u string) Option {
	return func(m *Manager) {
		m.webappURL = u
	}
}
