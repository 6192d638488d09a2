package supabase

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/drippler/drippler/events"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/rs/zerolog"
	"github.com/supabase-community/supabase-go"
)

// Placeholder values shipped in unconfigured builds.
const (
	PlaceholderURL    = "YOUR_SUPABASE_URL"
	PlaceholderAPIKey = "YOUR_SUPABASE_ANON_KEY"
)

// Config holds Supabase connection configuration
type Config struct {
	URL    string
	APIKey string

	// HTTPClient is used for the auth endpoints the SDK does not expose.
	// Default: 15 second timeout.
	HTTPClient *http.Client
	// CacheTTL bounds how long profile rows are served from memory.
	// Default: 5 minutes. Negative disables the cache.
	CacheTTL time.Duration
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Validate reports missing or placeholder settings.
func (c Config) Validate() error {
	if c.URL == "" || c.URL == PlaceholderURL {
		return fmt.Errorf("supabase URL is required")
	}
	if c.APIKey == "" || c.APIKey == PlaceholderAPIKey {
		return fmt.Errorf("supabase API key is required")
	}
	return nil
}

// Client implements Backend using Supabase
type Client struct {
	cfg    Config
	tokens TokenStorage
	http   *http.Client
	hub    *events.Hub[AuthChange]
	log    zerolog.Logger
	now    func() time.Time

	profiles *cache[*Profile]

	apiMu sync.RWMutex
	api   *supabase.Client

	// mu serialises session transitions.
	mu      sync.Mutex
	session *Session
	loaded  bool
}

// New creates a new Supabase client whose session is persisted in tokens.
func New(cfg Config, tokens TokenStorage) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tokens == nil {
		return nil, fmt.Errorf("supabase token storage is required")
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = cleanhttp.DefaultPooledClient()
		cfg.HTTPClient.Timeout = 15 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	api, err := supabase.NewClient(cfg.URL, cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	log := cfg.Logger.With().Str("component", "supabase").Logger()
	return &Client{
		cfg:      cfg,
		tokens:   tokens,
		http:     cfg.HTTPClient,
		api:      api,
		log:      log,
		now:      cfg.Now,
		profiles: newCache[*Profile](cfg.CacheTTL, cfg.Now),
		hub: events.NewHub[AuthChange](func(err error) {
			log.Warn().Err(err).Msg("auth state listener failed")
		}),
	}, nil
}

// OnAuthStateChange implements Auth.
func (c *Client) OnAuthStateChange(l events.Listener[AuthChange]) func() {
	return c.hub.Subscribe(l)
}

// Close closes the Supabase client
func (c *Client) Close() error {
	// Supabase client doesn't require explicit close
	return nil
}

func (c *Client) client() *supabase.Client {
	c.apiMu.RLock()
	defer c.apiMu.RUnlock()
	return c.api
}

// bindSession points table and storage requests at the user's token, or back
// at the anonymous key when s is nil.
func (c *Client) bindSession(s *Session) error {
	c.apiMu.Lock()
	defer c.apiMu.Unlock()

	if s == nil {
		c.profiles.reset()
		api, err := supabase.NewClient(c.cfg.URL, c.cfg.APIKey, nil)
		if err != nil {
			return fmt.Errorf("failed to reset supabase client: %w", err)
		}
		c.api = api
		return nil
	}
	c.api.UpdateAuthSession(toTypesSession(s))
	return nil
}

// Compile-time check that Client implements Backend
var _ Backend = (*Client)(nil)
