package lifecycle_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/drippler/drippler"
	"github.com/drippler/drippler/dispatch"
	"github.com/drippler/drippler/events"
	"github.com/drippler/drippler/kvstore"
	"github.com/drippler/drippler/lifecycle"
	"github.com/drippler/drippler/session"
	"github.com/drippler/drippler/supabase"
	"github.com/drippler/drippler/supabase/supabasefake"
	"github.com/drippler/drippler/tryon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testURL    = "https://abcdefgh.supabase.co"
	testWebapp = "https://web.example"
	testEmail  = "a@example.com"
	testPass   = "secret1"
)

type harness struct {
	srv   *supabasefake.Server
	store *kvstore.MemoryStore
	mgr   *session.Manager
	ctl   *lifecycle.Controller
	msgs  <-chan events.Message
}

func newHarness(t *testing.T, opts ...lifecycle.Option) *harness {
	return newHarnessWithConfig(t, supabase.Config{URL: testURL, APIKey: "anon-key"}, opts...)
}

func newHarnessWithConfig(t *testing.T, cfg supabase.Config, opts ...lifecycle.Option) *harness {
	t.Helper()
	srv := supabasefake.NewServer()
	store := kvstore.NewMemoryStore()
	mgr := session.New(cfg, store,
		session.WithFactory(srv.Factory()),
		session.WithClock(srv.Now),
		session.WithWebappURL(testWebapp),
		session.WithRetryPolicy(session.RetryPolicy{MaxAttempts: 2}),
	)
	ctl := lifecycle.New(mgr, append([]lifecycle.Option{lifecycle.WithClock(srv.Now)}, opts...)...)
	msgs, unsubscribe := mgr.Bus().SubscribeChan(64)
	t.Cleanup(func() {
		unsubscribe()
		_ = ctl.Close()
	})
	return &harness{srv: srv, store: store, mgr: mgr, ctl: ctl, msgs: msgs}
}

func (h *harness) call(t *testing.T, action string, payload any) drippler.Response {
	t.Helper()
	req, err := drippler.NewRequest(action, payload)
	require.NoError(t, err)
	resp := h.ctl.Handle(context.Background(), req)
	assert.False(t, resp.Timestamp.IsZero(), "response must be stamped")
	if resp.Success {
		assert.Empty(t, resp.Error)
	} else {
		assert.NotEmpty(t, resp.Error)
	}
	return resp
}

func (h *harness) connect(t *testing.T) {
	t.Helper()
	require.True(t, h.ctl.OnStartup(context.Background()))
}

func (h *harness) signIn(t *testing.T) {
	t.Helper()
	h.connect(t)
	h.srv.AddUser(testEmail, testPass)
	resp := h.call(t, drippler.ActionSignIn, map[string]string{"email": testEmail, "password": testPass})
	require.True(t, resp.Success, resp.Error)
}

// broadcasts drains the bus and returns the messages for action.
func (h *harness) broadcasts(action string) []events.Message {
	var out []events.Message
	for {
		select {
		case m := <-h.msgs:
			if m.Action == action {
				out = append(out, m)
			}
		default:
			return out
		}
	}
}

func imagePayload() map[string]any {
	return map[string]any{
		"fileData": "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png-bytes")),
		"fileName": "me.png",
		"fileType": "image/png",
		"fileSize": 9,
		"encoding": "base64",
	}
}

func (h *harness) uploadAvatar(t *testing.T) *supabase.Avatar {
	t.Helper()
	h.srv.Advance(time.Millisecond)
	resp := h.call(t, drippler.ActionUploadAvatar, imagePayload())
	require.True(t, resp.Success, resp.Error)
	a, ok := resp.Get("avatar").(*supabase.Avatar)
	require.True(t, ok)
	return a
}

func TestUnknownAction(t *testing.T) {
	h := newHarness(t)
	resp := h.call(t, "launchRockets", nil)
	assert.False(t, resp.Success)
	assert.Equal(t, "Unknown action", resp.Error)
}

func TestEveryActionIsRouted(t *testing.T) {
	h := newHarness(t)
	actions := h.ctl.Actions()
	for _, a := range []string{
		drippler.ActionInitSupabase, drippler.ActionForceInitSupabase, drippler.ActionTestSupabase,
		drippler.ActionCheckSupabaseStatus, drippler.ActionGetExtensionInfo, drippler.ActionSaveToSupabase,
		drippler.ActionCapturePageData, drippler.ActionFloatingButtonClicked, drippler.ActionSignUp,
		drippler.ActionSignIn, drippler.ActionSignOut, drippler.ActionResetPassword,
		drippler.ActionUpdatePassword, drippler.ActionGetCurrentUser, drippler.ActionGetUserProfile,
		drippler.ActionRefreshUserSession, drippler.ActionUploadProfileImage, drippler.ActionUploadClothingItem,
		drippler.ActionSaveImageAsClothing, drippler.ActionGetClothingItems, drippler.ActionDeleteClothingItem,
		drippler.ActionGenerateVirtualTryOn, drippler.ActionGetTryOnGenerations, drippler.ActionDeleteTryOnGeneration,
		drippler.ActionDeleteAccount, drippler.ActionUploadAvatar, drippler.ActionGetAvatars,
		drippler.ActionGetActiveAvatar, drippler.ActionSetActiveAvatar, drippler.ActionDeleteAvatar,
		drippler.ActionAddAvatarFromURL, drippler.ActionOpenPopup,
	} {
		assert.Contains(t, actions, a)
	}
}

func TestOperationsRequireConnection(t *testing.T) {
	h := newHarness(t)
	resp := h.call(t, drippler.ActionGetAvatars, nil)
	assert.False(t, resp.Success)
	assert.Equal(t, drippler.KindNotConnected, resp.ErrorKind)
}

func TestOnInstall(t *testing.T) {
	h := newHarness(t, lifecycle.WithInfo(lifecycle.Info{ID: "ext-1", Name: "Drippler", Version: "2.1.0"}))
	require.True(t, h.ctl.OnInstall(context.Background()))

	values, err := h.store.Get(context.Background(), lifecycle.KeyExtensionVersion, lifecycle.KeyInstallDate, session.KeySupabaseConnected)
	require.NoError(t, err)
	assert.Equal(t, "2.1.0", values[lifecycle.KeyExtensionVersion])
	assert.Equal(t, h.srv.Now().UTC().Format(time.RFC3339Nano), values[lifecycle.KeyInstallDate])
	assert.Equal(t, "true", values[session.KeySupabaseConnected])

	resp := h.call(t, drippler.ActionGetExtensionInfo, nil)
	require.True(t, resp.Success)
	info := resp.Get("info").(lifecycle.Info)
	assert.Equal(t, "ext-1", info.ID)
	assert.Equal(t, "2.1.0", info.Version)
	assert.Equal(t, values[lifecycle.KeyInstallDate], info.InstallDate)
}

func TestInitFailureReportsStatus(t *testing.T) {
	h := newHarnessWithConfig(t, supabase.Config{URL: "YOUR_SUPABASE_URL", APIKey: "YOUR_SUPABASE_ANON_KEY"})
	assert.False(t, h.ctl.OnStartup(context.Background()))

	resp := h.call(t, drippler.ActionInitSupabase, nil)
	assert.False(t, resp.Success)
	assert.Equal(t, drippler.KindConfiguration, resp.ErrorKind)
	assert.Equal(t, false, resp.Get("connected"))

	resp = h.call(t, drippler.ActionForceInitSupabase, nil)
	assert.False(t, resp.Success)
	assert.Equal(t, false, resp.Get("connected"))

	status := h.call(t, drippler.ActionCheckSupabaseStatus, nil)
	assert.True(t, status.Success)
	assert.Equal(t, false, status.Get("connected"))
	assert.NotNil(t, status.Get("lastAttempt"))
	assert.NotEmpty(t, status.Get("lastError"))
}

func TestInitAndStatus(t *testing.T) {
	h := newHarness(t)
	resp := h.call(t, drippler.ActionInitSupabase, nil)
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, true, resp.Get("connected"))

	status := h.call(t, drippler.ActionCheckSupabaseStatus, nil)
	assert.Equal(t, true, status.Get("connected"))
	assert.Nil(t, status.Get("lastError"))

	test := h.call(t, drippler.ActionTestSupabase, nil)
	require.True(t, test.Success)
	assert.Equal(t, false, test.Get("hasSession"))
}

func TestSignUpAwaitsVerification(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	resp := h.call(t, drippler.ActionSignUp, map[string]string{"email": testEmail, "password": testPass})
	require.True(t, resp.Success, resp.Error)
	assert.Contains(t, resp.Get("message"), "Check your email for verification")
	assert.Nil(t, resp.Get("session"))
	assert.Equal(t, testWebapp+"/auth/verify", h.srv.LastRedirect(supabasefake.OpSignUp))
}

func TestSignUpRequiresIdentity(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	resp := h.call(t, drippler.ActionSignUp, map[string]string{"password": testPass})
	assert.False(t, resp.Success)
	assert.Equal(t, drippler.KindValidation, resp.ErrorKind)
	assert.Zero(t, h.srv.Calls(supabasefake.OpSignUp))
}

func TestSignInPersistsSession(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)

	resp := h.call(t, drippler.ActionGetCurrentUser, nil)
	require.True(t, resp.Success)
	user := resp.Get("user").(*supabase.User)
	assert.Equal(t, testEmail, user.Email)

	values, err := h.store.Get(context.Background(), session.KeyUserSession)
	require.NoError(t, err)
	assert.NotEmpty(t, values[session.KeyUserSession])

	test := h.call(t, drippler.ActionTestSupabase, nil)
	assert.Equal(t, true, test.Get("hasSession"))
}

func TestSignOutClearsSession(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)

	resp := h.call(t, drippler.ActionSignOut, nil)
	require.True(t, resp.Success)
	assert.Equal(t, "Successfully signed out", resp.Get("message"))

	values, err := h.store.Get(context.Background(), session.KeyCurrentUser, session.KeyUserSession, session.KeySessionExpiry)
	require.NoError(t, err)
	assert.Empty(t, values)

	current := h.call(t, drippler.ActionGetCurrentUser, nil)
	require.True(t, current.Success)
	assert.Nil(t, current.Get("user"))
	assert.Nil(t, current.Get("session"))
}

func TestRefreshUserSession(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)

	resp := h.call(t, drippler.ActionRefreshUserSession, nil)
	require.True(t, resp.Success, resp.Error)
	s := resp.Get("session").(*supabase.Session)
	assert.Equal(t, testEmail, s.User.Email)
}

func TestResetAndUpdatePassword(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)

	resp := h.call(t, drippler.ActionResetPassword, map[string]string{"email": testEmail})
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, []string{testEmail}, h.srv.RecoveryEmails())
	assert.Equal(t, testWebapp+"/auth/reset-password", h.srv.LastRedirect(supabasefake.OpRecover))

	resp = h.call(t, drippler.ActionUpdatePassword, map[string]string{"password": "secret2"})
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, "Password updated successfully", resp.Get("message"))
}

func TestAuthRequiredForWardrobe(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	resp := h.call(t, drippler.ActionGetClothingItems, nil)
	assert.False(t, resp.Success)
	assert.Equal(t, "Authentication required", resp.Error)
	assert.Equal(t, drippler.KindAuthentication, resp.ErrorKind)
}

func TestUploadAvatarActivation(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)

	h.srv.Advance(time.Millisecond)
	first := h.call(t, drippler.ActionUploadAvatar, imagePayload())
	require.True(t, first.Success, first.Error)
	assert.True(t, first.Get("avatar").(*supabase.Avatar).IsActive)
	assert.Equal(t, "Avatar uploaded and set as active!", first.Get("message"))

	second := h.uploadAvatar(t)
	assert.False(t, second.IsActive)

	list := h.call(t, drippler.ActionGetAvatars, nil)
	assert.Len(t, list.Get("avatars"), 2)
}

func TestDeleteActiveAvatarPromotesOther(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)
	active := h.uploadAvatar(t)
	other := h.uploadAvatar(t)

	resp := h.call(t, drippler.ActionDeleteAvatar, map[string]string{"avatarId": active.ID})
	require.True(t, resp.Success, resp.Error)

	got := h.call(t, drippler.ActionGetActiveAvatar, nil)
	require.True(t, got.Success)
	avatar := got.Get("avatar").(*supabase.Avatar)
	assert.Equal(t, other.ID, avatar.ID)
	assert.True(t, avatar.IsActive)
}

func TestSetActiveAvatarAndAddFromURL(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)
	h.uploadAvatar(t)

	added := h.call(t, drippler.ActionAddAvatarFromURL, map[string]string{"imageUrl": "https://cdn.example/tryon.jpg"})
	require.True(t, added.Success, added.Error)
	a := added.Get("avatar").(*supabase.Avatar)
	assert.False(t, a.IsActive)

	set := h.call(t, drippler.ActionSetActiveAvatar, map[string]string{"avatarId": a.ID})
	require.True(t, set.Success, set.Error)
	assert.True(t, set.Get("avatar").(*supabase.Avatar).IsActive)

	missing := h.call(t, drippler.ActionSetActiveAvatar, map[string]string{"avatarId": "nope"})
	assert.False(t, missing.Success)
	assert.Equal(t, drippler.KindNotFound, missing.ErrorKind)
}

func TestGetActiveAvatarNone(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)

	resp := h.call(t, drippler.ActionGetActiveAvatar, nil)
	require.True(t, resp.Success)
	assert.Nil(t, resp.Get("avatar"))
}

func TestClothingLifecycle(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)

	up := imagePayload()
	up["name"] = "Blue shirt"
	up["category"] = "tops"
	resp := h.call(t, drippler.ActionUploadClothingItem, up)
	require.True(t, resp.Success, resp.Error)
	item := resp.Get("data").(*supabase.ClothingItem)
	assert.Equal(t, "Blue shirt", item.Name)

	saved := h.call(t, drippler.ActionSaveImageAsClothing, map[string]string{
		"imageUrl": "https://shop.example/a.jpg",
		"pageUrl":  "https://shop.example/p/1",
	})
	require.True(t, saved.Success, saved.Error)

	list := h.call(t, drippler.ActionGetClothingItems, nil)
	assert.Len(t, list.Get("data"), 2)

	del := h.call(t, drippler.ActionDeleteClothingItem, map[string]string{"itemId": item.ID})
	require.True(t, del.Success, del.Error)

	again := h.call(t, drippler.ActionDeleteClothingItem, map[string]string{"itemId": item.ID})
	assert.False(t, again.Success)
	assert.Equal(t, "Item not found or access denied", again.Error)
}

func TestProfile(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)

	resp := h.call(t, drippler.ActionGetUserProfile, nil)
	require.True(t, resp.Success)
	assert.Nil(t, resp.Get("profile"))
	assert.Equal(t, "No profile found", resp.Get("message"))

	up := h.call(t, drippler.ActionUploadProfileImage, imagePayload())
	require.True(t, up.Success, up.Error)
	data := up.Get("data").(map[string]any)

	resp = h.call(t, drippler.ActionGetUserProfile, nil)
	require.True(t, resp.Success)
	profile := resp.Get("profile").(*supabase.Profile)
	assert.Equal(t, data["imageUrl"], profile.ProfileImageURL)

	user, ok := h.srv.UserByEmail(testEmail)
	require.True(t, ok)
	assert.Equal(t, data["imageUrl"], user.UserMetadata["avatar_url"])
	stored, err := h.store.Get(context.Background(), session.KeyCurrentUser)
	require.NoError(t, err)
	assert.Contains(t, stored[session.KeyCurrentUser], data["imageUrl"])
}

func TestUploadRejectsSizeMismatch(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)

	payload := imagePayload()
	payload["fileSize"] = 4096
	resp := h.call(t, drippler.ActionUploadProfileImage, payload)
	assert.False(t, resp.Success)
	assert.Equal(t, drippler.KindValidation, resp.ErrorKind)
	assert.Contains(t, resp.Error, "file size mismatch")
}

func TestGenerateVirtualTryOn(t *testing.T) {
	var gotToken string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get(tryon.AuthHeader)
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodGet {
			_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"generations": []any{}}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"generatedImageUrl": "https://cdn.example/out.png"}})
	}))
	defer api.Close()

	h := newHarness(t, lifecycle.WithWebappURL(api.URL))
	h.signIn(t)

	resp := h.call(t, drippler.ActionGenerateVirtualTryOn, map[string]string{
		"userImageUrl":     "https://cdn.example/me.png",
		"clothingImageUrl": "https://cdn.example/shirt.png",
		"clothingName":     "Shirt",
	})
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, "https://cdn.example/out.png", resp.Get("data").(map[string]any)["generatedImageUrl"])

	current := h.call(t, drippler.ActionGetCurrentUser, nil)
	assert.Equal(t, current.Get("session").(*supabase.Session).AccessToken, gotToken)

	list := h.call(t, drippler.ActionGetTryOnGenerations, nil)
	require.True(t, list.Success, list.Error)
}

func TestGenerateVirtualTryOnLimit(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "Limit reached", "generationCount": 3, "maxGenerations": 3})
	}))
	defer api.Close()

	h := newHarness(t, lifecycle.WithWebappURL(api.URL))
	h.signIn(t)

	resp := h.call(t, drippler.ActionGenerateVirtualTryOn, map[string]string{
		"userImageUrl": "u", "clothingImageUrl": "c",
	})
	assert.False(t, resp.Success)
	assert.Equal(t, "Generation limit exceeded", resp.Error)
	assert.Equal(t, drippler.KindLimitExceeded, resp.ErrorKind)
	assert.Equal(t, "Limit reached", resp.Get("message"))
	assert.Equal(t, 0, resp.Get("remainingGenerations"))
	assert.Equal(t, 3, *resp.Get("maxGenerations").(*int))
}

func TestDeleteTryOnGeneration(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)
	user, _ := h.srv.UserByEmail(testEmail)
	url := h.srv.PutObject(supabase.BucketGenerations, "gen.png", []byte("x"))
	g := h.srv.AddGeneration(supabase.Generation{UserID: user.ID, GeneratedImageURL: url})

	resp := h.call(t, drippler.ActionDeleteTryOnGeneration, map[string]string{"generationId": g.ID})
	require.True(t, resp.Success, resp.Error)
	assert.Zero(t, h.srv.ObjectCount(supabase.BucketGenerations))

	resp = h.call(t, drippler.ActionDeleteTryOnGeneration, map[string]string{})
	assert.Equal(t, "Generation ID is required", resp.Error)
}

func TestDeleteAccount(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)
	h.uploadAvatar(t)

	resp := h.call(t, drippler.ActionDeleteAccount, nil)
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, "Account deleted successfully", resp.Get("message"))

	_, exists := h.srv.UserByEmail(testEmail)
	assert.False(t, exists)
	assert.Zero(t, h.srv.ObjectCount(supabase.BucketAvatars))

	current := h.call(t, drippler.ActionGetCurrentUser, nil)
	require.True(t, current.Success)
	assert.Nil(t, current.Get("user"))
}

func TestCapturePageData(t *testing.T) {
	h := newHarness(t)
	page := map[string]string{"url": "https://shop.example", "title": "Shop", "timestamp": "2025-01-01T12:00:00Z"}

	resp := h.call(t, drippler.ActionCapturePageData, page)
	require.True(t, resp.Success, resp.Error)
	assert.Empty(t, h.srv.Captures())

	key := resp.Get("key").(string)
	assert.True(t, strings.HasPrefix(key, lifecycle.CapturePrefix))
	values, err := h.store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"url":"https://shop.example","title":"Shop","timestamp":"2025-01-01T12:00:00Z"}`, values[key])

	h.connect(t)
	h.srv.Advance(time.Millisecond)
	resp = h.call(t, drippler.ActionCapturePageData, page)
	require.True(t, resp.Success, resp.Error)
	require.Len(t, h.srv.Captures(), 1)
	assert.Equal(t, "https://shop.example", h.srv.Captures()[0].URL)
}

func TestSaveToSupabase(t *testing.T) {
	h := newHarness(t)
	page := map[string]string{"url": "https://shop.example", "title": "Shop"}

	resp := h.call(t, drippler.ActionSaveToSupabase, page)
	assert.Equal(t, drippler.KindNotConnected, resp.ErrorKind)

	h.connect(t)
	resp = h.call(t, drippler.ActionSaveToSupabase, page)
	require.True(t, resp.Success, resp.Error)
	assert.Len(t, h.srv.Captures(), 1)
}

func TestOpenPopupAndFloatingButton(t *testing.T) {
	h := newHarness(t)

	resp := h.call(t, drippler.ActionOpenPopup, nil)
	require.True(t, resp.Success)
	assert.Len(t, h.broadcasts(events.ActionOpenPopup), 1)

	resp = h.call(t, drippler.ActionFloatingButtonClicked, map[string]string{"url": "https://shop.example"})
	assert.True(t, resp.Success)
}

func TestContextMenuWithoutSessionOpensPopup(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	err := h.ctl.HandleContextMenuClick(context.Background(), lifecycle.MenuClick{
		MenuItemID: lifecycle.MenuSaveImage,
		SrcURL:     "https://shop.example/a.jpg",
		PageURL:    "https://shop.example/p",
	})
	require.NoError(t, err)
	assert.Len(t, h.broadcasts(events.ActionOpenPopup), 1)
}

func TestContextMenuSavesImage(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)
	h.broadcasts("")

	err := h.ctl.HandleContextMenuClick(context.Background(), lifecycle.MenuClick{
		MenuItemID: lifecycle.MenuSaveImage,
		SrcURL:     "https://shop.example/a.jpg",
		PageURL:    "https://shop.example/p",
		PageTitle:  "Coat",
	})
	require.NoError(t, err)

	notes := h.broadcasts(events.ActionNotification)
	require.Len(t, notes, 1)
	assert.Equal(t, "Clothing item added to your wardrobe!", notes[0].Data["message"])

	list := h.call(t, drippler.ActionGetClothingItems, nil)
	items := list.Get("data").([]supabase.ClothingItem)
	require.Len(t, items, 1)
	assert.Equal(t, "context_menu", items[0].Source)
	assert.Equal(t, "Item from shop.example", items[0].Name)
}

func TestContextMenuIgnoresOtherEntries(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctl.HandleContextMenuClick(context.Background(), lifecycle.MenuClick{MenuItemID: "other"}))
	assert.Empty(t, h.broadcasts(events.ActionOpenPopup))
}

func TestNotifyPageLoaded(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	h.ctl.NotifyPageLoaded(context.Background(), "https://shop.example/p")
	updates := h.broadcasts(events.ActionSupabaseStatusUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, "https://shop.example/p", updates[0].Target)
	assert.Equal(t, true, updates[0].Data["connected"])
}

func TestDispatcherRecoversThroughController(t *testing.T) {
	h := newHarness(t)
	var pauses []time.Duration
	d := dispatch.New(dispatch.NewLocalChannel(h.ctl), dispatch.WithSleep(func(_ context.Context, p time.Duration) error {
		pauses = append(pauses, p)
		return nil
	}))

	resp := d.Call(context.Background(), drippler.ActionGetCurrentUser, nil)
	require.True(t, resp.Success, resp.Error)
	assert.Nil(t, resp.Get("user"))
	assert.Equal(t, session.StateConnectedNoSession, h.mgr.State())
	assert.Equal(t, []time.Duration{dispatch.DefaultRecoveryPause}, pauses)
}
