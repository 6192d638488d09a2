// Package wardrobe implements the user's data operations on top of the
// remote tables and object storage: clothing items, avatars, the profile
// image, try-on generations, page captures and the account purge.
package wardrobe

import (
	"context"
	"strings"
	"time"

	"github.com/drippler/drippler"
	"github.com/drippler/drippler/supabase"
	"github.com/rs/zerolog"
)

const cleanupTimeout = 30 * time.Second

// Scope is a connected backend bound to the signed-in user. Every operation
// is confined to rows owned by UserID.
type Scope struct {
	Backend supabase.Backend
	UserID  string
	// Users receives changes to the signed-in user's metadata. When nil the
	// metadata is left alone.
	Users UserUpdater
}

// UserUpdater merges data into the signed-in user's metadata.
type UserUpdater interface {
	UpdateUserMetadata(ctx context.Context, data map[string]any) (*supabase.User, error)
}

// Service runs wardrobe operations.
type Service struct {
	log         zerolog.Logger
	now         func() time.Time
	extensionID string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) {
		s.log = log.With().Str("component", "wardrobe").Logger()
	}
}

// WithClock sets the clock used for object names and profile timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithExtensionID sets the id recorded on page captures.
func WithExtensionID(id string) Option {
	return func(s *Service) {
		s.extensionID = id
	}
}

// New creates a Service.
func New(opts ...Option) *Service {
	s := &Service{
		log:         zerolog.Nop(),
		now:         time.Now,
		extensionID: "drippler",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) millis() int64 {
	return s.now().UnixMilli()
}

// removeObjects deletes stored objects, logging instead of failing.
func (s *Service) removeObjects(ctx context.Context, sc Scope, bucket string, paths ...string) {
	if len(paths) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := sc.Backend.Remove(ctx, bucket, paths...); err != nil {
		s.log.Warn().Err(err).Str("bucket", bucket).Strs("paths", paths).Msg("failed to remove stored objects")
	}
}

// storedName returns the object name of an uploaded file referenced by url,
// or "" when url does not point into bucket with the given name prefix.
func storedName(url, bucket, prefix string) string {
	if url == "" || !strings.Contains(url, bucket+"/"+prefix) {
		return ""
	}
	return url[strings.LastIndex(url, "/")+1:]
}

// annotate prefixes the user-facing message of err while keeping its kind.
func annotate(op, prefix string, err error) error {
	return &drippler.Error{
		Kind: drippler.KindOf(err),
		Op:   op,
		Msg:  prefix + err.Error(),
		Err:  err,
	}
}
