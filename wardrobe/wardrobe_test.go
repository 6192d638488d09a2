package wardrobe_test

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/drippler/drippler"
	"github.com/drippler/drippler/kvstore"
	"github.com/drippler/drippler/session"
	"github.com/drippler/drippler/supabase"
	"github.com/drippler/drippler/supabase/supabasefake"
	"github.com/drippler/drippler/wardrobe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEmail = "a@example.com"
	testPass  = "secret1"
)

var pixel = []byte("\x89PNG\r\n\x1a\nfake-image")

type fixture struct {
	srv   *supabasefake.Server
	store kvstore.Store
	svc   *wardrobe.Service
	sc    wardrobe.Scope
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	srv := supabasefake.NewServer()
	srv.AddUser(testEmail, testPass)
	store := kvstore.NewMemoryStore()
	m := session.New(supabase.Config{URL: "https://abcdefgh.supabase.co", APIKey: "anon-key"}, store,
		session.WithFactory(srv.Factory()),
		session.WithClock(srv.Now),
	)
	t.Cleanup(func() { _ = m.Close() })
	_, err := m.Initialize(ctx)
	require.NoError(t, err)
	_, err = m.SignIn(ctx, supabase.Credentials{Email: testEmail, Password: testPass})
	require.NoError(t, err)
	backend, s, err := m.RequireSession(ctx)
	require.NoError(t, err)

	return &fixture{
		srv:   srv,
		store: store,
		svc:   wardrobe.New(wardrobe.WithClock(srv.Now), wardrobe.WithExtensionID("ext-test")),
		sc:    wardrobe.Scope{Backend: backend, UserID: s.User.ID, Users: m},
	}
}

func pngFile(name string) wardrobe.File {
	return wardrobe.File{
		Data:     base64.StdEncoding.EncodeToString(pixel),
		Name:     name,
		Type:     "image/png",
		Size:     int64(len(pixel)),
		Encoding: "base64",
	}
}

// uploadAvatar moves the clock so every upload gets its own object name.
func (f *fixture) uploadAvatar(t *testing.T) (*supabase.Avatar, bool) {
	t.Helper()
	f.srv.Advance(time.Millisecond)
	a, first, err := f.svc.UploadAvatar(context.Background(), f.sc, pngFile("me.png"))
	require.NoError(t, err)
	return a, first
}

func TestFileExtension(t *testing.T) {
	tests := []struct {
		name, fileName, fileType, want string
	}{
		{"from file name", "photo.PNG", "image/jpeg", "png"},
		{"from mime type", "", "image/webp", "webp"},
		{"name without extension", "photo", "image/gif", "gif"},
		{"unknown mime type", "", "application/pdf", "jpg"},
		{"nothing known", "", "", "jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := wardrobe.File{Name: tt.fileName, Type: tt.fileType}
			assert.Equal(t, tt.want, f.Extension())
		})
	}
}

func TestFileBytes(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString(pixel)

	b, err := wardrobe.File{Data: encoded}.Bytes()
	require.NoError(t, err)
	assert.Equal(t, pixel, b)

	b, err = wardrobe.File{Data: "data:image/png;base64," + encoded}.Bytes()
	require.NoError(t, err)
	assert.Equal(t, pixel, b)

	b, err = wardrobe.File{Data: encoded, Size: int64(len(pixel))}.Bytes()
	require.NoError(t, err)
	assert.Equal(t, pixel, b)

	for name, f := range map[string]wardrobe.File{
		"empty":          {},
		"not base64":     {Data: "%%%"},
		"binary form":    {Data: encoded, Encoding: "arraybuffer"},
		"truncated":      {Data: encoded, Size: int64(len(pixel)) + 1},
		"size too small": {Data: encoded, Size: 1},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.Bytes()
			require.Error(t, err)
			assert.Equal(t, drippler.KindValidation, drippler.KindOf(err))
		})
	}
}

func TestUploadAvatarFirstIsActive(t *testing.T) {
	f := newFixture(t)

	first, isFirst := f.uploadAvatar(t)
	assert.True(t, isFirst)
	assert.True(t, first.IsActive)
	assert.Contains(t, first.FileName, f.sc.UserID+"/avatar-")
	assert.Contains(t, first.FileName, ".png")

	second, isFirst := f.uploadAvatar(t)
	assert.False(t, isFirst)
	assert.False(t, second.IsActive)

	stored, ok := f.srv.Object(supabase.BucketAvatars, first.FileName)
	require.True(t, ok)
	assert.Equal(t, pixel, stored)
	assert.Equal(t, 2, f.srv.ObjectCount(supabase.BucketAvatars))
}

func TestDeleteActiveAvatarPromotesRemaining(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	active, _ := f.uploadAvatar(t)
	other, _ := f.uploadAvatar(t)

	require.NoError(t, f.svc.DeleteAvatar(ctx, f.sc, active.ID))

	avatars, err := f.svc.Avatars(ctx, f.sc)
	require.NoError(t, err)
	require.Len(t, avatars, 1)
	assert.Equal(t, other.ID, avatars[0].ID)
	assert.True(t, avatars[0].IsActive)

	_, ok := f.srv.Object(supabase.BucketAvatars, active.FileName)
	assert.False(t, ok)
}

func TestDeleteActiveAvatarPromotesNewest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	active, _ := f.uploadAvatar(t)
	f.uploadAvatar(t)
	newest, _ := f.uploadAvatar(t)

	require.NoError(t, f.svc.DeleteAvatar(ctx, f.sc, active.ID))

	got, err := f.svc.ActiveAvatar(ctx, f.sc)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, newest.ID, got.ID)
}

func TestDeleteInactiveAvatarKeepsActive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	active, _ := f.uploadAvatar(t)
	inactive, _ := f.uploadAvatar(t)

	require.NoError(t, f.svc.DeleteAvatar(ctx, f.sc, inactive.ID))

	got, err := f.svc.ActiveAvatar(ctx, f.sc)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, active.ID, got.ID)
}

func TestDeleteAvatarNotFound(t *testing.T) {
	f := newFixture(t)
	err := f.svc.DeleteAvatar(context.Background(), f.sc, "missing")
	assert.Equal(t, drippler.KindNotFound, drippler.KindOf(err))

	err = f.svc.DeleteAvatar(context.Background(), f.sc, "")
	assert.Equal(t, drippler.KindValidation, drippler.KindOf(err))
}

func TestSetActiveAvatar(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first, _ := f.uploadAvatar(t)
	second, _ := f.uploadAvatar(t)

	got, err := f.svc.SetActiveAvatar(ctx, f.sc, second.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
	assert.True(t, got.IsActive)

	avatars, err := f.svc.Avatars(ctx, f.sc)
	require.NoError(t, err)
	active := 0
	for _, a := range avatars {
		if a.IsActive {
			active++
			assert.Equal(t, second.ID, a.ID)
		} else {
			assert.Equal(t, first.ID, a.ID)
		}
	}
	assert.Equal(t, 1, active)

	_, err = f.svc.SetActiveAvatar(ctx, f.sc, "missing")
	assert.Equal(t, drippler.KindNotFound, drippler.KindOf(err))
	still, err := f.svc.ActiveAvatar(ctx, f.sc)
	require.NoError(t, err)
	assert.Equal(t, second.ID, still.ID)
}

func TestAddAvatarFromURL(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a, err := f.svc.AddAvatarFromURL(ctx, f.sc, "https://cdn.example/tryon.jpg")
	require.NoError(t, err)
	assert.False(t, a.IsActive)
	assert.Equal(t, "https://cdn.example/tryon.jpg", a.ImageURL)
	assert.Regexp(t, `^avatar-from-tryon-\d+\.jpg$`, a.FileName)

	_, err = f.svc.AddAvatarFromURL(ctx, f.sc, "")
	assert.Equal(t, drippler.KindValidation, drippler.KindOf(err))
}

func TestUploadAvatarStorageFailure(t *testing.T) {
	f := newFixture(t)
	f.srv.Fail(supabasefake.OpStorage, errors.New("bucket not found"))

	_, _, err := f.svc.UploadAvatar(context.Background(), f.sc, pngFile("me.png"))
	require.Error(t, err)
	assert.Equal(t, "Upload failed: bucket not found", err.Error())
}

func TestUploadAvatarRemovesObjectWhenRowFails(t *testing.T) {
	f := newFixture(t)
	f.srv.Fail(supabasefake.OpTables, errors.New("permission denied"))

	_, _, err := f.svc.UploadAvatar(context.Background(), f.sc, pngFile("me.png"))
	require.Error(t, err)
	assert.Equal(t, 0, f.srv.ObjectCount(supabase.BucketAvatars))
}

func TestUploadClothingItem(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	item, err := f.svc.UploadClothingItem(ctx, f.sc, wardrobe.ClothingUpload{File: pngFile("shirt.png")})
	require.NoError(t, err)
	assert.Equal(t, "Unnamed Item", item.Name)
	assert.Equal(t, "uncategorized", item.Category)
	assert.Equal(t, wardrobe.SourceUpload, item.Source)
	assert.Regexp(t, `^clothing-`+f.sc.UserID+`-\d+\.png$`, item.ImagePath)
	assert.Contains(t, item.ImageURL, supabase.BucketClothingItems+"/"+item.ImagePath)

	stored, ok := f.srv.Object(supabase.BucketClothingItems, item.ImagePath)
	require.True(t, ok)
	assert.Equal(t, pixel, stored)

	_, err = f.svc.UploadClothingItem(ctx, f.sc, wardrobe.ClothingUpload{})
	assert.Equal(t, drippler.KindValidation, drippler.KindOf(err))
}

func TestSaveImage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	item, err := f.svc.SaveImage(ctx, f.sc, wardrobe.WebImage{
		ImageURL:  "https://shop.example/img/jacket.jpg",
		PageURL:   "https://shop.example/jackets/1",
		PageTitle: "Jacket",
	})
	require.NoError(t, err)
	assert.Equal(t, "Item from shop.example", item.Name)
	assert.Equal(t, wardrobe.SourceWeb, item.Source)
	assert.Equal(t, "Jacket", item.SourceTitle)
	assert.Empty(t, item.ImagePath)

	_, err = f.svc.SaveImage(ctx, f.sc, wardrobe.WebImage{ImageURL: "https://shop.example/a.jpg", PageURL: "not a url"})
	assert.Equal(t, drippler.KindValidation, drippler.KindOf(err))
}

func TestDeleteClothingItem(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	item, err := f.svc.UploadClothingItem(ctx, f.sc, wardrobe.ClothingUpload{File: pngFile("shirt.png"), Name: "Shirt"})
	require.NoError(t, err)

	stranger := wardrobe.Scope{Backend: f.sc.Backend, UserID: "someone-else"}
	err = f.svc.DeleteClothingItem(ctx, stranger, item.ID)
	assert.Equal(t, drippler.KindNotFound, drippler.KindOf(err))
	assert.EqualError(t, err, "Item not found or access denied")

	require.NoError(t, f.svc.DeleteClothingItem(ctx, f.sc, item.ID))
	items, err := f.svc.ClothingItems(ctx, f.sc)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 0, f.srv.ObjectCount(supabase.BucketClothingItems))
}

func TestUploadProfileImageReplacesPrevious(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.svc.UploadProfileImage(ctx, f.sc, pngFile("me.png"))
	require.NoError(t, err)
	f.srv.Advance(time.Second)
	second, err := f.svc.UploadProfileImage(ctx, f.sc, pngFile("me.png"))
	require.NoError(t, err)

	_, ok := f.srv.Object(supabase.BucketProfileImages, first.Path)
	assert.False(t, ok)
	_, ok = f.srv.Object(supabase.BucketProfileImages, second.Path)
	assert.True(t, ok)

	profile, err := f.svc.Profile(ctx, f.sc)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, second.PublicURL, profile.ProfileImageURL)

	user, ok := f.srv.UserByEmail(testEmail)
	require.True(t, ok)
	assert.Equal(t, second.PublicURL, user.UserMetadata["avatar_url"])

	stored, err := f.store.Get(ctx, session.KeyCurrentUser)
	require.NoError(t, err)
	assert.Contains(t, stored[session.KeyCurrentUser], second.PublicURL)
}

func TestUploadProfileImageWithoutUserUpdater(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.sc.Users = nil

	up, err := f.svc.UploadProfileImage(ctx, f.sc, pngFile("me.png"))
	require.NoError(t, err)
	assert.Zero(t, f.srv.Calls(supabasefake.OpUpdateUser))

	profile, err := f.svc.Profile(ctx, f.sc)
	require.NoError(t, err)
	assert.Equal(t, up.PublicURL, profile.ProfileImageURL)
}

func TestUploadProfileImageIgnoresMetadataFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.srv.Fail(supabasefake.OpUpdateUser, errors.New("metadata unavailable"))

	up, err := f.svc.UploadProfileImage(ctx, f.sc, pngFile("me.jpg"))
	require.NoError(t, err)

	profile, err := f.svc.Profile(ctx, f.sc)
	require.NoError(t, err)
	assert.Equal(t, up.PublicURL, profile.ProfileImageURL)
}

func TestProfileAbsent(t *testing.T) {
	f := newFixture(t)
	profile, err := f.svc.Profile(context.Background(), f.sc)
	require.NoError(t, err)
	assert.Nil(t, profile)
}

func TestDeleteGeneration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	url := f.srv.PutObject(supabase.BucketGenerations, "gen-1.png", pixel)
	g := f.srv.AddGeneration(supabase.Generation{UserID: f.sc.UserID, GeneratedImageURL: url})

	err := f.svc.DeleteGeneration(ctx, f.sc, "")
	assert.EqualError(t, err, "Generation ID is required")

	err = f.svc.DeleteGeneration(ctx, wardrobe.Scope{Backend: f.sc.Backend, UserID: "other"}, g.ID)
	assert.Equal(t, drippler.KindNotFound, drippler.KindOf(err))

	require.NoError(t, f.svc.DeleteGeneration(ctx, f.sc, g.ID))
	_, ok := f.srv.Object(supabase.BucketGenerations, "gen-1.png")
	assert.False(t, ok)
	rows, err := f.sc.Backend.ListGenerations(ctx, f.sc.UserID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.UploadClothingItem(ctx, f.sc, wardrobe.ClothingUpload{File: pngFile("a.png")})
	require.NoError(t, err)
	f.uploadAvatar(t)
	_, err = f.svc.UploadProfileImage(ctx, f.sc, pngFile("me.png"))
	require.NoError(t, err)
	url := f.srv.PutObject(supabase.BucketGenerations, "gen-1.png", pixel)
	f.srv.AddGeneration(supabase.Generation{UserID: f.sc.UserID, GeneratedImageURL: url})

	other := wardrobe.Scope{Backend: f.sc.Backend, UserID: "other-user"}
	_, err = f.svc.SaveImage(ctx, other, wardrobe.WebImage{ImageURL: "https://x.example/a.jpg", PageURL: "https://x.example"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Purge(ctx, f.sc))

	items, err := f.svc.ClothingItems(ctx, f.sc)
	require.NoError(t, err)
	assert.Empty(t, items)
	avatars, err := f.svc.Avatars(ctx, f.sc)
	require.NoError(t, err)
	assert.Empty(t, avatars)
	profile, err := f.svc.Profile(ctx, f.sc)
	require.NoError(t, err)
	assert.Nil(t, profile)
	gens, err := f.sc.Backend.ListGenerations(ctx, f.sc.UserID)
	require.NoError(t, err)
	assert.Empty(t, gens)

	for _, bucket := range []string{
		supabase.BucketClothingItems, supabase.BucketAvatars,
		supabase.BucketProfileImages, supabase.BucketGenerations,
	} {
		assert.Zero(t, f.srv.ObjectCount(bucket), bucket)
	}

	kept, err := f.svc.ClothingItems(ctx, other)
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func TestPurgeContinuesWhenObjectsCannotBeRemoved(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.UploadClothingItem(ctx, f.sc, wardrobe.ClothingUpload{File: pngFile("a.png")})
	require.NoError(t, err)
	f.uploadAvatar(t)

	f.srv.Fail(supabasefake.OpStorage, errors.New("storage unavailable"))
	require.NoError(t, f.svc.Purge(ctx, f.sc))

	items, err := f.svc.ClothingItems(ctx, f.sc)
	require.NoError(t, err)
	assert.Empty(t, items)
	avatars, err := f.svc.Avatars(ctx, f.sc)
	require.NoError(t, err)
	assert.Empty(t, avatars)
}

func TestSaveCapture(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SaveCapture(context.Background(), f.sc.Backend, wardrobe.PageInfo{URL: "https://shop.example", Title: "Shop"})
	require.NoError(t, err)

	captures := f.srv.Captures()
	require.Len(t, captures, 1)
	assert.Equal(t, "ext-test", captures[0].ExtensionID)
	assert.Equal(t, "Shop", captures[0].Title)

	_, err = f.svc.SaveCapture(context.Background(), f.sc.Backend, wardrobe.PageInfo{})
	assert.Equal(t, drippler.KindValidation, drippler.KindOf(err))
}
