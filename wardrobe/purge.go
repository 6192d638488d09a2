package wardrobe

import (
	"context"
	"fmt"

	"github.com/drippler/drippler/supabase"
)

// Purge deletes everything the user owns: generations, clothing items,
// avatars and the profile, each with its stored objects. Object removal
// failures are logged and the cascade continues; a failing table delete
// stops it so the account is never removed with data left behind.
func (s *Service) Purge(ctx context.Context, sc Scope) error {
	generations, err := sc.Backend.ListGenerations(ctx, sc.UserID)
	if err != nil {
		return fmt.Errorf("list generations: %w", err)
	}
	var names []string
	for _, g := range generations {
		if name := generationObject(g); name != "" {
			names = append(names, name)
		}
	}
	s.removeObjects(ctx, sc, supabase.BucketGenerations, names...)
	if err := sc.Backend.DeleteGenerations(ctx, sc.UserID); err != nil {
		return fmt.Errorf("delete generations: %w", err)
	}

	items, err := sc.Backend.ListClothingItems(ctx, sc.UserID)
	if err != nil {
		return fmt.Errorf("list clothing items: %w", err)
	}
	names = names[:0]
	for _, item := range items {
		if name := clothingObject(item); name != "" {
			names = append(names, name)
		}
	}
	s.removeObjects(ctx, sc, supabase.BucketClothingItems, names...)
	if err := sc.Backend.DeleteClothingItems(ctx, sc.UserID); err != nil {
		return fmt.Errorf("delete clothing items: %w", err)
	}

	avatars, err := sc.Backend.ListAvatars(ctx, sc.UserID)
	if err != nil {
		return fmt.Errorf("list avatars: %w", err)
	}
	names = names[:0]
	for _, a := range avatars {
		if a.FileName != "" {
			names = append(names, a.FileName)
		}
	}
	s.removeObjects(ctx, sc, supabase.BucketAvatars, names...)
	if err := sc.Backend.DeleteAvatars(ctx, sc.UserID); err != nil {
		return fmt.Errorf("delete avatars: %w", err)
	}

	profile, err := sc.Backend.GetProfile(ctx, sc.UserID)
	if err != nil {
		return fmt.Errorf("get profile: %w", err)
	}
	if profile != nil {
		if name := profileObject(profile); name != "" {
			s.removeObjects(ctx, sc, supabase.BucketProfileImages, name)
		}
	}
	if err := sc.Backend.DeleteProfile(ctx, sc.UserID); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}

	s.log.Info().Str("user_id", sc.UserID).
		Int("generations", len(generations)).
		Int("clothing_items", len(items)).
		Int("avatars", len(avatars)).
		Msg("user data purged")
	return nil
}
