// Package lifecycle runs the background process: it bootstraps the session
// manager on install and startup, routes every incoming action to its
// handler and owns the out-of-band capture paths (context menu, page loads).
package lifecycle

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/drippler/drippler"
	"github.com/drippler/drippler/events"
	"github.com/drippler/drippler/kvstore"
	"github.com/drippler/drippler/session"
	"github.com/drippler/drippler/tryon"
	"github.com/drippler/drippler/wardrobe"
	"github.com/rs/zerolog"
)

// Keys written by the controller.
const (
	KeyExtensionVersion = "extensionVersion"
	KeyInstallDate      = "installDate"
	CapturePrefix       = "capture_"
)

const timeFormat = time.RFC3339Nano

// Info describes the running extension.
type Info struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	InstallDate string   `json:"installDate,omitempty"`
	Permissions []string `json:"permissions"`
}

// DefaultInfo is used when no Info is configured.
var DefaultInfo = Info{
	ID:          "drippler",
	Name:        "Drippler",
	Version:     "1.0.0",
	Description: "Save clothes from anywhere and try them on virtually",
	Permissions: []string{"storage", "contextMenus", "notifications", "activeTab"},
}

// handler runs one action. Fields returned together with an error are
// attached to the failure response.
type handler func(ctx context.Context, req drippler.Request) (drippler.Fields, error)

// Controller is the background process.
type Controller struct {
	sessions  *session.Manager
	store     kvstore.Store
	bus       *events.Bus
	wardrobe  *wardrobe.Service
	tryon     *tryon.Client
	log       zerolog.Logger
	now       func() time.Time
	info      Info
	webappURL string

	handlers map[string]handler
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Controller) {
		c.log = log.With().Str("component", "lifecycle").Logger()
	}
}

// WithClock sets the clock.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithInfo describes the extension.
func WithInfo(info Info) Option {
	return func(c *Controller) {
		c.info = info
	}
}

// WithWardrobe replaces the wardrobe service.
func WithWardrobe(w *wardrobe.Service) Option {
	return func(c *Controller) {
		c.wardrobe = w
	}
}

// WithTryOn replaces the try-on client.
func WithTryOn(t *tryon.Client) Option {
	return func(c *Controller) {
		c.tryon = t
	}
}

// WithWebappURL sets the web app the default try-on client talks to.
func WithWebappURL(u string) Option {
	return func(c *Controller) {
		c.webappURL = u
	}
}

// New creates a Controller around a session manager.
func New(sessions *session.Manager, opts ...Option) *Controller {
	c := &Controller{
		sessions:  sessions,
		store:     sessions.Store(),
		bus:       sessions.Bus(),
		log:       zerolog.Nop(),
		now:       time.Now,
		info:      DefaultInfo,
		webappURL: session.DefaultWebappURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.wardrobe == nil {
		c.wardrobe = wardrobe.New(
			wardrobe.WithLogger(c.log),
			wardrobe.WithClock(c.now),
			wardrobe.WithExtensionID(c.info.ID),
		)
	}
	if c.tryon == nil {
		c.tryon = tryon.New(c.webappURL, tryon.WithStore(c.store), tryon.WithLogger(c.log))
	}
	c.handlers = c.routes()
	return c
}

func (c *Controller) routes() map[string]handler {
	return map[string]handler{
		drippler.ActionInitSupabase:          c.initSupabase,
		drippler.ActionForceInitSupabase:     c.forceInitSupabase,
		drippler.ActionTestSupabase:          c.testSupabase,
		drippler.ActionCheckSupabaseStatus:   c.checkSupabaseStatus,
		drippler.ActionGetExtensionInfo:      c.getExtensionInfo,
		drippler.ActionSaveToSupabase:        c.saveToSupabase,
		drippler.ActionCapturePageData:       c.capturePageData,
		drippler.ActionFloatingButtonClicked: c.floatingButtonClicked,
		drippler.ActionSignUp:                c.signUp,
		drippler.ActionSignIn:                c.signIn,
		drippler.ActionSignOut:               c.signOut,
		drippler.ActionResetPassword:         c.resetPassword,
		drippler.ActionUpdatePassword:        c.updatePassword,
		drippler.ActionGetCurrentUser:        c.getCurrentUser,
		drippler.ActionGetUserProfile:        c.getUserProfile,
		drippler.ActionRefreshUserSession:    c.refreshUserSession,
		drippler.ActionUploadProfileImage:    c.uploadProfileImage,
		drippler.ActionUploadClothingItem:    c.uploadClothingItem,
		drippler.ActionSaveImageAsClothing:   c.saveImageAsClothing,
		drippler.ActionGetClothingItems:      c.getClothingItems,
		drippler.ActionDeleteClothingItem:    c.deleteClothingItem,
		drippler.ActionGenerateVirtualTryOn:  c.generateVirtualTryOn,
		drippler.ActionGetTryOnGenerations:   c.getTryOnGenerations,
		drippler.ActionDeleteTryOnGeneration: c.deleteTryOnGeneration,
		drippler.ActionDeleteAccount:         c.deleteAccount,
		drippler.ActionUploadAvatar:          c.uploadAvatar,
		drippler.ActionGetAvatars:            c.getAvatars,
		drippler.ActionGetActiveAvatar:       c.getActiveAvatar,
		drippler.ActionSetActiveAvatar:       c.setActiveAvatar,
		drippler.ActionDeleteAvatar:          c.deleteAvatar,
		drippler.ActionAddAvatarFromURL:      c.addAvatarFromURL,
		drippler.ActionOpenPopup:             c.openPopup,
	}
}

// Actions lists the action names the controller understands.
func (c *Controller) Actions() []string {
	out := make([]string, 0, len(c.handlers))
	for name := range c.handlers {
		out = append(out, name)
	}
	return out
}

// Handle is the single dispatch point for incoming requests. It never
// panics and always returns a stamped response.
func (c *Controller) Handle(ctx context.Context, req drippler.Request) (resp drippler.Response) {
	h, ok := c.handlers[req.Action]
	if !ok {
		c.log.Warn().Str("action", req.Action).Msg("unknown action")
		return drippler.Fail(drippler.ErrUnknownAction)
	}

	defer func() {
		if r := recover(); r != nil {
			c.log.Error().
				Str("action", req.Action).
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("handler panicked")
			resp = drippler.Fail(drippler.E(drippler.KindUnknown, "Unknown error occurred"))
		}
	}()

	c.log.Debug().Str("action", req.Action).Msg("handling request")
	fields, err := h(ctx, req)
	if err != nil {
		c.log.Warn().Err(err).Str("action", req.Action).Str("kind", drippler.KindOf(err).String()).Msg("request failed")
		if fields == nil {
			return drippler.Fail(err)
		}
		return drippler.Fail(err, fields)
	}
	return drippler.OK(fields)
}

// OnInstall records install bookkeeping and connects. It reports whether the
// connection was established.
func (c *Controller) OnInstall(ctx context.Context) bool {
	if err := c.store.Set(ctx, map[string]string{
		KeyExtensionVersion:          c.info.Version,
		KeyInstallDate:               c.now().UTC().Format(timeFormat),
		session.KeySupabaseConnected: "false",
	}); err != nil {
		c.log.Warn().Err(err).Msg("failed to record install")
	}
	c.log.Info().Str("version", c.info.Version).Msg("extension installed")
	return c.start(ctx)
}

// OnStartup connects when the process starts.
func (c *Controller) OnStartup(ctx context.Context) bool {
	c.log.Info().Str("version", c.info.Version).Msg("extension starting up")
	return c.start(ctx)
}

func (c *Controller) start(ctx context.Context) bool {
	ok := c.sessions.InitializeWithRetry(ctx)
	c.log.Info().Strs("menus", menuIDs()).Msg("context menus registered")
	return ok
}

// Close stops the session manager.
func (c *Controller) Close() error {
	return c.sessions.Close()
}

// publish broadcasts a message to other processes.
func (c *Controller) publish(ctx context.Context, action, target string, data map[string]any) {
	c.bus.Publish(ctx, events.Message{
		Action: action,
		Target: target,
		Data:   data,
		Time:   c.now().UTC(),
	})
}
