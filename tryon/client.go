// Package tryon talks to the virtual try-on API of the companion web app.
package tryon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/drippler/drippler"
	"github.com/drippler/drippler/kvstore"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

const (
	// APIPath is the try-on endpoint relative to the web app.
	APIPath = "/api/virtual-try-on"
	// AuthHeader carries the caller's access token.
	AuthHeader = "X-Supabase-Auth"
	// KeyWebappURL overrides the web app base URL when set in the key-value store.
	KeyWebappURL = "webappUrl"
)

// ErrLimitExceeded is the kind of failure returned when the user has used up
// their generations.
var ErrLimitExceeded = drippler.E(drippler.KindLimitExceeded, "Generation limit exceeded")

// Request asks for one try-on image.
type Request struct {
	UserImageURL     string `json:"userImageUrl"`
	ClothingImageURL string `json:"clothingImageUrl"`
	ClothingName     string `json:"clothingName,omitempty"`
}

// Usage reports generation counters.
type Usage struct {
	GenerationCount      *int `json:"generationCount,omitempty"`
	MaxGenerations       *int `json:"maxGenerations,omitempty"`
	RemainingGenerations int  `json:"remainingGenerations"`
}

// LimitError is returned when the API refuses a generation for quota reasons.
type LimitError struct {
	Message string
	Usage   Usage
}

func (e *LimitError) Error() string { return ErrLimitExceeded.Msg }

func (e *LimitError) Unwrap() error { return ErrLimitExceeded }

// Client calls the try-on API.
type Client struct {
	baseURL string
	store   kvstore.Store
	http    *retryablehttp.Client
	log     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log.With().Str("component", "tryon").Logger()
	}
}

// WithStore lets the web app URL be overridden through KeyWebappURL.
func WithStore(store kvstore.Store) Option {
	return func(c *Client) {
		c.store = store
	}
}

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http.HTTPClient = hc
	}
}

// WithRetries sets how often idempotent reads are retried.
func WithRetries(n int, waitMin, waitMax time.Duration) Option {
	return func(c *Client) {
		c.http.RetryMax = n
		c.http.RetryWaitMin = waitMin
		c.http.RetryWaitMax = waitMax
	}
}

// New creates a client for the web app at baseURL.
func New(baseURL string, opts ...Option) *Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = cleanhttp.DefaultPooledClient()
	rc.HTTPClient.Timeout = 2 * time.Minute
	rc.RetryMax = 2
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    rc,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	rc.Logger = leveledLogger{c.log}
	return c
}

// Generate asks the web app to render the user wearing the clothing item. The
// returned value is the API's data member, passed through untouched.
func (c *Client) Generate(ctx context.Context, accessToken string, req Request) (any, error) {
	if req.UserImageURL == "" || req.ClothingImageURL == "" {
		return nil, drippler.E(drippler.KindValidation, "Both user image and clothing image URLs are required")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode try-on request: %w", err)
	}
	hreq, err := c.newRequest(ctx, http.MethodPost, accessToken, body)
	if err != nil {
		return nil, err
	}
	// Generations are not idempotent, so they bypass the retrying client.
	resp, err := c.http.HTTPClient.Do(hreq)
	if err != nil {
		return nil, drippler.Wrap(drippler.KindConnectivity, "generateVirtualTryOn", err)
	}
	return c.decode(resp)
}

// Generations lists the user's try-on results together with usage counters.
func (c *Client) Generations(ctx context.Context, accessToken string) (any, error) {
	hreq, err := c.newRequest(ctx, http.MethodGet, accessToken, nil)
	if err != nil {
		return nil, err
	}
	rreq, err := retryablehttp.FromRequest(hreq)
	if err != nil {
		return nil, fmt.Errorf("build try-on request: %w", err)
	}
	resp, err := c.http.Do(rreq)
	if err != nil {
		return nil, drippler.Wrap(drippler.KindConnectivity, "getTryOnGenerations", err)
	}
	return c.decode(resp)
}

// BaseURL returns the web app URL in effect, honouring a stored override.
func (c *Client) BaseURL(ctx context.Context) string {
	if c.store == nil {
		return c.baseURL
	}
	values, err := c.store.Get(ctx, KeyWebappURL)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to read web app URL, using default")
		return c.baseURL
	}
	if u := strings.TrimRight(values[KeyWebappURL], "/"); u != "" {
		return u
	}
	return c.baseURL
}

func (c *Client) newRequest(ctx context.Context, method, accessToken string, body []byte) (*http.Request, error) {
	if accessToken == "" {
		return nil, drippler.ErrAuthRequired
	}
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL(ctx)+APIPath, r)
	if err != nil {
		return nil, fmt.Errorf("build try-on request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(AuthHeader, accessToken)
	return req, nil
}

type apiResponse struct {
	Data                 any    `json:"data"`
	Error                string `json:"error"`
	Message              string `json:"message"`
	GenerationCount      *int   `json:"generationCount"`
	MaxGenerations       *int   `json:"maxGenerations"`
	RemainingGenerations *int   `json:"remainingGenerations"`
}

func (c *Client) decode(resp *http.Response) (any, error) {
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, drippler.Wrap(drippler.KindConnectivity, "tryon", err)
	}
	var out apiResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode == http.StatusPaymentRequired {
		le := &LimitError{
			Message: out.Message,
			Usage: Usage{
				GenerationCount: out.GenerationCount,
				MaxGenerations:  out.MaxGenerations,
			},
		}
		if le.Message == "" {
			le.Message = "You have reached the generation limit"
		}
		if out.RemainingGenerations != nil {
			le.Usage.RemainingGenerations = *out.RemainingGenerations
		}
		return nil, le
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := out.Error
		if msg == "" {
			msg = fmt.Sprintf("API request failed: %d", resp.StatusCode)
		}
		kind := drippler.KindUnknown
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			kind = drippler.KindAuthentication
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			kind = drippler.KindConnectivity
		}
		return nil, drippler.E(kind, msg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode try-on response: %w", decodeErr)
	}
	return out.Data, nil
}

// leveledLogger routes retryablehttp's logging into zerolog.
type leveledLogger struct {
	log zerolog.Logger
}

func (l leveledLogger) Error(msg string, kv ...any) { l.log.Error().Fields(kv).Msg(msg) }
func (l leveledLogger) Info(msg string, kv ...any)  { l.log.Debug().Fields(kv).Msg(msg) }
func (l leveledLogger) Debug(msg string, kv ...any) { l.log.Debug().Fields(kv).Msg(msg) }
func (l leveledLogger) Warn(msg string, kv ...any)  { l.log.Warn().Fields(kv).Msg(msg) }

var _ retryablehttp.LeveledLogger = leveledLogger{}
