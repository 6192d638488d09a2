package supabase

import (
	"context"
	"fmt"

	"github.com/supabase-community/postgrest-go"
)

const (
	tableClothingItems = "clothing_items"
	tableAvatars       = "user_avatars"
	tableProfiles      = "profiles"
	tableGenerations   = "virtual_try_on_generations"
	tablePageCaptures  = "page_captures"
)

var newestFirst = &postgrest.OrderOpts{Ascending: false}

// InsertClothingItem implements Tables.
func (c *Client) InsertClothingItem(ctx context.Context, item ClothingItem) (*ClothingItem, error) {
	var out ClothingItem
	_, err := c.client().From(tableClothingItems).
		Insert(item, false, "", "representation", "").
		Single().
		ExecuteTo(&out)
	if err != nil {
		return nil, fmt.Errorf("failed to insert clothing item: %w", err)
	}
	return &out, nil
}

// ListClothingItems implements Tables.
func (c *Client) ListClothingItems(ctx context.Context, userID string) ([]ClothingItem, error) {
	items := []ClothingItem{}
	_, err := c.client().From(tableClothingItems).
		Select("*", "", false).
		Eq("user_id", userID).
		Order("created_at", newestFirst).
		ExecuteTo(&items)
	if err != nil {
		return nil, fmt.Errorf("failed to get clothing items: %w", err)
	}
	return items, nil
}

// GetClothingItem implements Tables.
func (c *Client) GetClothingItem(ctx context.Context, userID, id string) (*ClothingItem, error) {
	var items []ClothingItem
	_, err := c.client().From(tableClothingItems).
		Select("*", "", false).
		Eq("id", id).
		Eq("user_id", userID).
		ExecuteTo(&items)
	if err != nil {
		return nil, fmt.Errorf("failed to get clothing item: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// DeleteClothingItem implements Tables.
func (c *Client) DeleteClothingItem(ctx context.Context, userID, id string) error {
	_, _, err := c.client().From(tableClothingItems).
		Delete("", "").
		Eq("id", id).
		Eq("user_id", userID).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to delete clothing item: %w", err)
	}
	return nil
}

// DeleteClothingItems implements Tables.
func (c *Client) DeleteClothingItems(ctx context.Context, userID string) error {
	_, _, err := c.client().From(tableClothingItems).
		Delete("", "").
		Eq("user_id", userID).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to delete clothing items: %w", err)
	}
	return nil
}

// InsertAvatar implements Tables.
func (c *Client) InsertAvatar(ctx context.Context, avatar Avatar) (*Avatar, error) {
	var out Avatar
	_, err := c.client().From(tableAvatars).
		Insert(avatar, false, "", "representation", "").
		Single().
		ExecuteTo(&out)
	if err != nil {
		return nil, fmt.Errorf("failed to insert avatar: %w", err)
	}
	return &out, nil
}

// ListAvatars implements Tables.
func (c *Client) ListAvatars(ctx context.Context, userID string) ([]Avatar, error) {
	avatars := []Avatar{}
	_, err := c.client().From(tableAvatars).
		Select("*", "", false).
		Eq("user_id", userID).
		Order("created_at", newestFirst).
		ExecuteTo(&avatars)
	if err != nil {
		return nil, fmt.Errorf("failed to get avatars: %w", err)
	}
	return avatars, nil
}

// GetAvatar implements Tables.
func (c *Client) GetAvatar(ctx context.Context, userID, id string) (*Avatar, error) {
	var avatars []Avatar
	_, err := c.client().From(tableAvatars).
		Select("*", "", false).
		Eq("id", id).
		Eq("user_id", userID).
		ExecuteTo(&avatars)
	if err != nil {
		return nil, fmt.Errorf("failed to get avatar: %w", err)
	}
	if len(avatars) == 0 {
		return nil, nil
	}
	return &avatars[0], nil
}

// GetActiveAvatar implements Tables.
func (c *Client) GetActiveAvatar(ctx context.Context, userID string) (*Avatar, error) {
	var avatars []Avatar
	_, err := c.client().From(tableAvatars).
		Select("*", "", false).
		Eq("user_id", userID).
		Eq("is_active", "true").
		ExecuteTo(&avatars)
	if err != nil {
		return nil, fmt.Errorf("failed to get active avatar: %w", err)
	}
	if len(avatars) == 0 {
		return nil, nil
	}
	return &avatars[0], nil
}

// DeactivateAvatars implements Tables.
func (c *Client) DeactivateAvatars(ctx context.Context, userID string) error {
	_, _, err := c.client().From(tableAvatars).
		Update(map[string]any{"is_active": false}, "", "").
		Eq("user_id", userID).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to deactivate avatars: %w", err)
	}
	return nil
}

// ActivateAvatar implements Tables.
func (c *Client) ActivateAvatar(ctx context.Context, userID, id string) (*Avatar, error) {
	var avatars []Avatar
	_, err := c.client().From(tableAvatars).
		Update(map[string]any{"is_active": true}, "representation", "").
		Eq("id", id).
		Eq("user_id", userID).
		ExecuteTo(&avatars)
	if err != nil {
		return nil, fmt.Errorf("failed to activate avatar: %w", err)
	}
	if len(avatars) == 0 {
		return nil, nil
	}
	return &avatars[0], nil
}

// DeleteAvatar implements Tables.
func (c *Client) DeleteAvatar(ctx context.Context, userID, id string) error {
	_, _, err := c.client().From(tableAvatars).
		Delete("", "").
		Eq("id", id).
		Eq("user_id", userID).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to delete avatar: %w", err)
	}
	return nil
}

// DeleteAvatars implements Tables.
func (c *Client) DeleteAvatars(ctx context.Context, userID string) error {
	_, _, err := c.client().From(tableAvatars).
		Delete("", "").
		Eq("user_id", userID).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to delete avatars: %w", err)
	}
	return nil
}

// GetProfile implements Tables.
func (c *Client) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	// Check cache first
	if cached, ok := c.profiles.get(userID); ok {
		return cached, nil
	}

	var profiles []Profile
	_, err := c.client().From(tableProfiles).
		Select("*", "", false).
		Eq("id", userID).
		ExecuteTo(&profiles)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if len(profiles) == 0 {
		return nil, nil
	}

	profile := &profiles[0]
	c.profiles.put(userID, profile)
	return profile, nil
}

// UpsertProfile implements Tables.
func (c *Client) UpsertProfile(ctx context.Context, profile Profile) error {
	c.profiles.drop(profile.ID)
	_, _, err := c.client().From(tableProfiles).
		Upsert(profile, "id", "", "").
		Execute()
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

// DeleteProfile implements Tables.
func (c *Client) DeleteProfile(ctx context.Context, userID string) error {
	c.profiles.drop(userID)
	_, _, err := c.client().From(tableProfiles).
		Delete("", "").
		Eq("id", userID).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	return nil
}

// ListGenerations implements Tables.
func (c *Client) ListGenerations(ctx context.Context, userID string) ([]Generation, error) {
	generations := []Generation{}
	_, err := c.client().From(tableGenerations).
		Select("*", "", false).
		Eq("user_id", userID).
		Order("created_at", newestFirst).
		ExecuteTo(&generations)
	if err != nil {
		return nil, fmt.Errorf("failed to get generations: %w", err)
	}
	return generations, nil
}

// GetGeneration implements Tables.
func (c *Client) GetGeneration(ctx context.Context, userID, id string) (*Generation, error) {
	var generations []Generation
	_, err := c.client().From(tableGenerations).
		Select("*", "", false).
		Eq("id", id).
		Eq("user_id", userID).
		ExecuteTo(&generations)
	if err != nil {
		return nil, fmt.Errorf("failed to get generation: %w", err)
	}
	if len(generations) == 0 {
		return nil, nil
	}
	return &generations[0], nil
}

// DeleteGeneration implements Tables.
func (c *Client) DeleteGeneration(ctx context.Context, userID, id string) error {
	_, _, err := c.client().From(tableGenerations).
		Delete("", "").
		Eq("id", id).
		Eq("user_id", userID).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to delete generation: %w", err)
	}
	return nil
}

// DeleteGenerations implements Tables.
func (c *Client) DeleteGenerations(ctx context.Context, userID string) error {
	_, _, err := c.client().From(tableGenerations).
		Delete("", "").
		Eq("user_id", userID).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to delete generations: %w", err)
	}
	return nil
}

// InsertPageCapture implements Tables.
func (c *Client) InsertPageCapture(ctx context.Context, capture PageCapture) (*PageCapture, error) {
	var out PageCapture
	_, err := c.client().From(tablePageCaptures).
		Insert(capture, false, "", "representation", "").
		Single().
		ExecuteTo(&out)
	if err != nil {
		return nil, fmt.Errorf("failed to insert page capture: %w", err)
	}
	return &out, nil
}
