package supabasefake

import (
	"context"
	"slices"
	"time"

	"github.com/drippler/drippler/supabase"
	"github.com/google/uuid"
)

func (c *Client) tables() (*Server, func(), error) {
	c.srv.mu.Lock()
	if err := c.srv.enter(OpTables); err != nil {
		c.srv.mu.Unlock()
		return nil, nil, err
	}
	return c.srv, c.srv.mu.Unlock, nil
}

func clothingOwner(i supabase.ClothingItem) string      { return i.UserID }
func clothingCreated(i supabase.ClothingItem) time.Time { return i.CreatedAt }

// InsertClothingItem implements supabase.Tables.
func (c *Client) InsertClothingItem(ctx context.Context, item supabase.ClothingItem) (*supabase.ClothingItem, error) {
	srv, unlock, err := c.tables()
	if err != nil {
		return nil, err
	}
	defer unlock()

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = srv.stampLocked()
	}
	item.Tags = slices.Clone(item.Tags)
	srv.clothing = append(srv.clothing, item)
	return &item, nil
}

// ListClothingItems implements supabase.Tables.
func (c *Client) ListClothingItems(ctx context.Context, userID string) ([]supabase.ClothingItem, error) {
	srv, unlock, err := c.tables()
	if err != nil {
		return nil, err
	}
	defer unlock()
	return newestFirst(srv.clothing, userID, clothingOwner, clothingCreated), nil
}

// GetClothingItem implements supabase.Tables.
func (c *Client) GetClothingItem(ctx context.Context, userID, id string) (*supabase.ClothingItem, error) {
	srv, unlock, err := c.tables()
	if err != nil {
		return nil, err
	}
	defer unlock()
	for _, item := range srv.clothing {
		if item.ID == id && item.UserID == userID {
			return &item, nil
		}
	}
	return nil, nil
}

// DeleteClothingItem implements supabase.Tables.
func (c *Client) DeleteClothingItem(ctx context.Context, userID, id string) error {
	srv, unlock, err := c.tables()
	if err != nil {
		return err
	}
	defer unlock()
	srv.clothing = slices.DeleteFunc(srv.clothing, func(i supabase.ClothingItem) bool {
		return i.ID == id && i.UserID == userID
	})
	return nil
}

// DeleteClothingItems implements supabase.Tables.
func (c *Client) DeleteClothingItems(ctx context.Context, userID string) error {
	srv, unlock, err := c.tables()
	if err != nil {
		return err
	}
	defer unlock()
	srv.clothing = slices.DeleteFunc(srv.clothing, func(i supabase.ClothingItem) bool {
		return i.UserID == userID
	})
	return nil
}

func avatarOwner(a supabase.Avatar) string      { return a.UserID }
func avatarCreated(a supabase.Avatar) time.Time { return a.CreatedAt }

// InsertAvatar implements supabase.Tables.
func (c *Client) InsertAvatar(ctx context.Context, avatar supabase.Avatar) (*supabase.Avatar, error) {
	srv, unlock, err := c.tables()
	if err != nil {
		return nil, err
	}
	defer unlock()

	if avatar.ID == "" {
		avatar.ID = uuid.NewString()
	}
	if avatar.CreatedAt.IsZero() {
		avatar.CreatedAt = srv.stampLocked()
	}
	srv.avatars = append(srv.avatars, avatar)
	return &avatar, nil
}

// ListAvatars implements supabase.Tables.
func (c *Client) ListAvatars(ctx context.Context, userID string) ([]supabase.Avatar, error) {
	srv, unlock, err := c.tables()
	if err != nil {
		return nil, err
	}
	defer unlock()
	return newestFirst(srv.avatars, userID, avatarOwner, avatarCreated), nil
}

// GetAvatar implements supabase.Tables.
func (c *Client) GetAvatar(ctx context.Context, userID, id string) (*supabase.Avatar, error) {
	srv, unlock, err := c.tables()
	if err != nil {
		return nil, err
	}
	defer unlock()
	for _, a := range srv.avatars {
		if a.ID == id && a.UserID == userID {
			return &a, nil
		}
	}
	return nil, nil
}

// GetActiveAvatar implements supabase.Tables.
func (c *Client) GetActiveAvatar(ctx context.Context, userID string) (*supabase.Avatar, error) {
	srv, unlock, err := c.tables()
	if err != nil {
		return nil, err
	}
	defer unlock()
	for _, a := range newestFirst(srv.avatars, userID, avatarOwner, avatarCreated) {
		if a.IsActive {
			return &a, nil
		}
	}
	return nil, nil
}

// DeactivateAvatars implements supabase.Tables.
func (c *Client) DeactivateAvatars(ctx context.Context, userID string) error {
	srv, unlock, err := c.tables()
	if err != nil {
		return err
	}
	defer unlock()
	for i := range srv.avatars {
		if srv.avatars[i].UserID == userID {
			srv.avatars[i].IsActive = false
		}
	}
	return nil
}

// ActivateAvatar implements supabase.Tables.
func (c *Client) ActivateAvatar(ctx context.Context, userID, id string) (*supabase.Avatar, error) {
	srv, unlock, err := c.tables()
	if err != nil {
		return nil, err
	}
	defer unlock()
	for i := range srv.avatars {
		if srv.avatars[i].ID == id && srv.avatars[i].UserID == userID {
			srv.avatars[i].IsActive = true
			a := srv.avatars[i]
			return &a, nil
		}
	}
	return nil, nil
}

// DeleteAvatar implements supabase.Tables.
func (c *Client) DeleteAvatar(ctx context.Context, userID, id string) error {
	srv, unlock, err := c.tables()
	if err != nil {
		return err
	}
	defer unlock()
	srv.avatars = slices.DeleteFunc(srv.avatars, func(a supabase.Avatar) bool {
		return a.ID == id && a.UserID == userID
	})
	return nil
}

// DeleteAvatars implements supabase.Tables.
func (c *Client) DeleteAvatars(ctx context.Context, userID string) error {
	srv, unlock, err := c.tables()
	if err != nil {
		return err
	}
	defer unlock()
	srv.avatars = slices.DeleteFunc(srv.avatars, func(a supabase.Avatar) bool {
		return a.UserID == userID
	})
	return nil
}

// GetProfile implements supabase.Tables.
func (c *Client) GetProfile(ctx context.Context, userID string) (*supabase.Profile, error) {
	srv, unlock, err := c.tables()
	if err != nil {
		return nil, err
	}
	defer unlock()
	p, ok := srv.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// UpsertProfile implements supabase.Tables.
func (c *Client) UpsertProfile(ctx context.Context, profile supabase.Profile) error {
	srv, unlock, err := c.tables()
	if err != nil {
		return err
	}
	defer unlock()
	srv.profiles[profile.ID] = profile
	return nil
}

// DeleteProfile implements supabase.Tables.
func (c *Client) DeleteProfile(ctx context.Context, userID string) error {
	srv, unlock, err := c.tables()
	if err != nil {
		return err
	}
	defer unlock()
	delete(srv.profiles, userID)
	return nil
}

func generationOwner(g supabase.Generation) string      { return g.UserID }
func generationCreated(g supabase.Generation) time.Time { return g.CreatedAt }

// ListGenerations implements supabase.Tables.
func (c *Client) ListGenerations(ctx context.Context, userID string) ([]supabase.Generation, error) {
	srv, unlock, err := c.tables()
	if err != nil {
		return nil, err
	}
	defer unlock()
	return newestFirst(srv.generations, userID, generationOwner, generationCreated), nil
}

// GetGeneration implements supabase.Tables.
func (c *Client) GetGeneration(ctx context.Context, userID, id string) (*supabase.Generation, error) {
	srv, unlock, err := c.tables()
	if err != nil {
		return nil, err
	}
	defer unlock()
	for _, g := range srv.generations {
		if g.ID == id && g.UserID == userID {
			return &g, nil
		}
	}
	return nil, nil
}

// DeleteGeneration implements supabase.Tables.
func (c *Client) DeleteGeneration(ctx context.Context, userID, id string) error {
	srv, unlock, err := c.tables()
	if err != nil {
		return err
	}
	defer unlock()
	srv.generations = slices.DeleteFunc(srv.generations, func(g supabase.Generation) bool {
		return g.ID == id && g.UserID == userID
	})
	return nil
}

// DeleteGenerations implements supabase.Tables.
func (c *Client) DeleteGenerations(ctx context.Context, userID string) error {
	srv, unlock, err := c.tables()
	if err != nil {
		return err
	}
	defer unlock()
	srv.generations = slices.DeleteFunc(srv.generations, func(g supabase.Generation) bool {
		return g.UserID == userID
	})
	return nil
}

// InsertPageCapture implements supabase.Tables.
func (c *Client) InsertPageCapture(ctx context.Context, capture supabase.PageCapture) (*supabase.PageCapture, error) {
	srv, unlock, err := c.tables()
	if err != nil {
		return nil, err
	}
	defer unlock()
	if capture.ID == "" {
		capture.ID = uuid.NewString()
	}
	if capture.CreatedAt.IsZero() {
		capture.CreatedAt = srv.stampLocked()
	}
	srv.captures = append(srv.captures, capture)
	return &capture, nil
}
