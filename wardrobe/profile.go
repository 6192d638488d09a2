package wardrobe

import (
	"context"
	"fmt"

	"github.com/drippler/drippler/supabase"
)

// Profile returns the user's profile, or nil if none was created yet.
func (s *Service) Profile(ctx context.Context, sc Scope) (*supabase.Profile, error) {
	return sc.Backend.GetProfile(ctx, sc.UserID)
}

// UploadProfileImage stores a new profile picture, points the profile at it
// and drops the previous upload. The user's avatar_url metadata follows the
// profile on a best effort basis.
func (s *Service) UploadProfileImage(ctx context.Context, sc Scope, f File) (*supabase.UploadResult, error) {
	data, err := f.Bytes()
	if err != nil {
		return nil, err
	}
	name := fmt.Sprintf("profile-%s-%d.%s", sc.UserID, s.millis(), f.Extension())
	up, err := sc.Backend.Upload(ctx, supabase.BucketProfileImages, name, data, supabase.UploadOptions{
		ContentType: f.ContentType(),
		Upsert:      true,
	})
	if err != nil {
		return nil, err
	}

	existing, err := sc.Backend.GetProfile(ctx, sc.UserID)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", sc.UserID).Msg("failed to read existing profile")
	} else if existing != nil {
		if old := profileObject(existing); old != "" && old != name {
			s.removeObjects(ctx, sc, supabase.BucketProfileImages, old)
		}
	}

	if err := sc.Backend.UpsertProfile(ctx, supabase.Profile{
		ID:              sc.UserID,
		ProfileImageURL: up.PublicURL,
		UpdatedAt:       s.now().UTC(),
	}); err != nil {
		return nil, err
	}

	if sc.Users != nil {
		if _, err := sc.Users.UpdateUserMetadata(ctx, map[string]any{"avatar_url": up.PublicURL}); err != nil {
			s.log.Warn().Err(err).Str("user_id", sc.UserID).Msg("failed to update user metadata")
		}
	}
	return up, nil
}

func profileObject(p *supabase.Profile) string {
	return storedName(p.ProfileImageURL, supabase.BucketProfileImages, "profile-")
}
