package supabase

import (
	"context"
	"maps"
	"time"

	"github.com/drippler/drippler/events"
)

// Auth is the authentication half of the remote service. The implementation
// holds the current session of the process and mirrors it into its
// TokenStorage.
type Auth interface {
	// SignUp registers a new identity. The returned session is nil while the
	// email or phone is unconfirmed.
	SignUp(ctx context.Context, creds Credentials, redirectTo string) (*AuthResult, error)

	// SignInWithPassword establishes a session for an email or phone identity.
	SignInWithPassword(ctx context.Context, creds Credentials) (*AuthResult, error)

	// SignOut ends the current session. The local session is cleared even
	// when the service cannot be reached; only a failed local clear is an error.
	SignOut(ctx context.Context) error

	// GetSession returns the current session, refreshing it when expired.
	// Returns nil if there is no session (not an error).
	GetSession(ctx context.Context) (*Session, error)

	// GetUser validates the current access token against the service.
	GetUser(ctx context.Context) (*User, error)

	// RefreshSession forces token renewal.
	RefreshSession(ctx context.Context) (*Session, error)

	// SetSession re-establishes a session from a stored token pair. Tokens may
	// be rotated.
	SetSession(ctx context.Context, accessToken, refreshToken string) (*Session, error)

	// ResetPasswordForEmail sends a password recovery email.
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error

	// UpdateUser changes the password or the metadata of the current user.
	UpdateUser(ctx context.Context, update UserUpdate) (*User, error)

	// DeleteUser removes the identity. Requires elevated privileges.
	DeleteUser(ctx context.Context, userID string) error

	// OnAuthStateChange subscribes to session changes.
	OnAuthStateChange(l events.Listener[AuthChange]) (unsubscribe func())
}

// Tables provides access to the managed relational tables. Every query is
// scoped to a user id.
type Tables interface {
	InsertClothingItem(ctx context.Context, item ClothingItem) (*ClothingItem, error)
	// ListClothingItems returns the user's items, newest first.
	ListClothingItems(ctx context.Context, userID string) ([]ClothingItem, error)
	// GetClothingItem returns nil if the item does not exist or belongs to someone else.
	GetClothingItem(ctx context.Context, userID, id string) (*ClothingItem, error)
	DeleteClothingItem(ctx context.Context, userID, id string) error
	DeleteClothingItems(ctx context.Context, userID string) error

	InsertAvatar(ctx context.Context, avatar Avatar) (*Avatar, error)
	// ListAvatars returns the user's avatars, newest first.
	ListAvatars(ctx context.Context, userID string) ([]Avatar, error)
	GetAvatar(ctx context.Context, userID, id string) (*Avatar, error)
	GetActiveAvatar(ctx context.Context, userID string) (*Avatar, error)
	DeactivateAvatars(ctx context.Context, userID string) error
	// ActivateAvatar marks one avatar active and returns it, or nil if absent.
	ActivateAvatar(ctx context.Context, userID, id string) (*Avatar, error)
	DeleteAvatar(ctx context.Context, userID, id string) error
	DeleteAvatars(ctx context.Context, userID string) error

	GetProfile(ctx context.Context, userID string) (*Profile, error)
	UpsertProfile(ctx context.Context, profile Profile) error
	DeleteProfile(ctx context.Context, userID string) error

	ListGenerations(ctx context.Context, userID string) ([]Generation, error)
	GetGeneration(ctx context.Context, userID, id string) (*Generation, error)
	DeleteGeneration(ctx context.Context, userID, id string) error
	DeleteGenerations(ctx context.Context, userID string) error

	InsertPageCapture(ctx context.Context, capture PageCapture) (*PageCapture, error)
}

// Objects provides access to object storage buckets.
type Objects interface {
	Upload(ctx context.Context, bucket, path string, data []byte, opts UploadOptions) (*UploadResult, error)
	Remove(ctx context.Context, bucket string, paths ...string) error
	PublicURL(bucket, path string) string
}

// Backend is everything the extension needs from the remote service.
type Backend interface {
	Auth
	Tables
	Objects

	// Close releases the client.
	Close() error
}

// TokenStorage persists the session the auth client holds so it survives a
// process restart.
type TokenStorage interface {
	// Load returns nil if nothing is stored.
	Load(ctx context.Context) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Clear(ctx context.Context) error
}

// AuthEvent names a session change.
type AuthEvent string

const (
	EventSignedIn         AuthEvent = "SIGNED_IN"
	EventSignedOut        AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed   AuthEvent = "TOKEN_REFRESHED"
	EventUserUpdated      AuthEvent = "USER_UPDATED"
	EventPasswordRecovery AuthEvent = "PASSWORD_RECOVERY"
)

// AuthChange is delivered to OnAuthStateChange listeners. Session is nil on sign-out.
type AuthChange struct {
	Event   AuthEvent
	Session *Session
}

// User is the identity carried by a session.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email,omitempty"`
	Phone        string         `json:"phone,omitempty"`
	Role         string         `json:"role,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// Clone returns a deep copy.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.UserMetadata = maps.Clone(u.UserMetadata)
	return &c
}

// Session is an access and refresh token pair with its validity window.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	ExpiresAt    int64  `json:"expires_at"` // epoch seconds
	User         User   `json:"user"`
}

// Expiry returns ExpiresAt as a time.
func (s *Session) Expiry() time.Time {
	return time.Unix(s.ExpiresAt, 0).UTC()
}

// ExpiredAt reports whether the session is no longer valid at now. A session
// expiring exactly at now is expired.
func (s *Session) ExpiredAt(now time.Time) bool {
	return !s.Expiry().After(now)
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.User = *s.User.Clone()
	return &c
}

// Credentials identify a user by email or phone.
type Credentials struct {
	Email    string         `json:"email,omitempty"`
	Phone    string         `json:"phone,omitempty"`
	Password string         `json:"password"`
	Data     map[string]any `json:"data,omitempty"`
}

// AuthResult is returned by sign-up and sign-in.
type AuthResult struct {
	User    *User
	Session *Session
}

// UserUpdate changes fields of the current user. Nil / empty fields are untouched.
type UserUpdate struct {
	Password *string
	Data     map[string]any
}

// UploadOptions configure an object upload.
type UploadOptions struct {
	ContentType  string
	CacheControl string
	Upsert       bool
}

// UploadResult locates an uploaded object.
type UploadResult struct {
	Path      string `json:"path"`
	PublicURL string `json:"publicUrl"`
}

// ClothingItem is a row of clothing_items.
type ClothingItem struct {
	ID          string    `json:"id,omitempty"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	ImageURL    string    `json:"image_url"`
	ImagePath   string    `json:"image_path,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Source      string    `json:"source"`
	SourceURL   string    `json:"source_url,omitempty"`
	SourceTitle string    `json:"source_title,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
}

// Avatar is a row of user_avatars.
type Avatar struct {
	ID        string    `json:"id,omitempty"`
	UserID    string    `json:"user_id"`
	ImageURL  string    `json:"image_url"`
	FileName  string    `json:"file_name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// Profile is a row of profiles, keyed by the user id.
type Profile struct {
	ID              string    `json:"id"`
	ProfileImageURL string    `json:"profile_image_url,omitempty"`
	UpdatedAt       time.Time `json:"updated_at,omitzero"`
}

// Generation is a row of virtual_try_on_generations.
type Generation struct {
	ID                string    `json:"id,omitempty"`
	UserID            string    `json:"user_id"`
	GeneratedImageURL string    `json:"generated_image_url"`
	ClothingName      string    `json:"clothing_name,omitempty"`
	CreatedAt         time.Time `json:"created_at,omitzero"`
}

// PageCapture is a row of page_captures.
type PageCapture struct {
	ID          string    `json:"id,omitempty"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Timestamp   string    `json:"timestamp,omitempty"`
	ExtensionID string    `json:"extension_id"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
}
