package wardrobe

import (
	"context"
	"fmt"

	"github.com/drippler/drippler"
	"github.com/drippler/drippler/supabase"
)

// UploadAvatar stores a photo of the user. The first avatar becomes active;
// later ones are inactive until selected. first reports which case applied.
func (s *Service) UploadAvatar(ctx context.Context, sc Scope, f File) (avatar *supabase.Avatar, first bool, err error) {
	data, err := f.Bytes()
	if err != nil {
		return nil, false, err
	}
	name := fmt.Sprintf("%s/avatar-%d.%s", sc.UserID, s.millis(), f.Extension())
	up, err := sc.Backend.Upload(ctx, supabase.BucketAvatars, name, data, supabase.UploadOptions{
		ContentType: f.ContentType(),
	})
	if err != nil {
		return nil, false, annotate("uploadAvatar", "Upload failed: ", err)
	}
	if up.PublicURL == "" {
		s.removeObjects(ctx, sc, supabase.BucketAvatars, name)
		return nil, false, drippler.E(drippler.KindUnknown, "Failed to get public URL")
	}

	existing, err := sc.Backend.ListAvatars(ctx, sc.UserID)
	if err != nil {
		s.removeObjects(ctx, sc, supabase.BucketAvatars, name)
		return nil, false, err
	}
	first = len(existing) == 0

	avatar, err = sc.Backend.InsertAvatar(ctx, supabase.Avatar{
		UserID:   sc.UserID,
		ImageURL: up.PublicURL,
		FileName: name,
		IsActive: first,
	})
	if err != nil {
		s.removeObjects(ctx, sc, supabase.BucketAvatars, name)
		return nil, false, annotate("uploadAvatar", "Database error: ", err)
	}
	s.log.Info().Str("user_id", sc.UserID).Str("avatar_id", avatar.ID).Bool("active", first).Msg("avatar uploaded")
	return avatar, first, nil
}

// AddAvatarFromURL records an already hosted image, typically a try-on
// result, as an inactive avatar.
func (s *Service) AddAvatarFromURL(ctx context.Context, sc Scope, imageURL string) (*supabase.Avatar, error) {
	if imageURL == "" {
		return nil, drippler.E(drippler.KindValidation, "Image URL is required")
	}
	return sc.Backend.InsertAvatar(ctx, supabase.Avatar{
		UserID:   sc.UserID,
		ImageURL: imageURL,
		FileName: fmt.Sprintf("avatar-from-tryon-%d.jpg", s.millis()),
	})
}

// Avatars lists the user's avatars, newest first.
func (s *Service) Avatars(ctx context.Context, sc Scope) ([]supabase.Avatar, error) {
	avatars, err := sc.Backend.ListAvatars(ctx, sc.UserID)
	if err != nil {
		return nil, err
	}
	if avatars == nil {
		avatars = []supabase.Avatar{}
	}
	return avatars, nil
}

// ActiveAvatar returns the active avatar, or nil if there is none.
func (s *Service) ActiveAvatar(ctx context.Context, sc Scope) (*supabase.Avatar, error) {
	return sc.Backend.GetActiveAvatar(ctx, sc.UserID)
}

// SetActiveAvatar makes id the only active avatar.
func (s *Service) SetActiveAvatar(ctx context.Context, sc Scope, id string) (*supabase.Avatar, error) {
	if id == "" {
		return nil, drippler.E(drippler.KindValidation, "Avatar ID is required")
	}
	current, err := sc.Backend.GetAvatar(ctx, sc.UserID, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, drippler.E(drippler.KindNotFound, "Avatar not found")
	}
	if err := sc.Backend.DeactivateAvatars(ctx, sc.UserID); err != nil {
		return nil, err
	}
	avatar, err := sc.Backend.ActivateAvatar(ctx, sc.UserID, id)
	if err != nil {
		return nil, err
	}
	if avatar == nil {
		return nil, drippler.E(drippler.KindNotFound, "Avatar not found")
	}
	return avatar, nil
}

// DeleteAvatar removes an avatar and its stored photo. Deleting the active
// avatar promotes the most recent remaining one.
func (s *Service) DeleteAvatar(ctx context.Context, sc Scope, id string) error {
	if id == "" {
		return drippler.E(drippler.KindValidation, "Avatar ID is required")
	}
	avatar, err := sc.Backend.GetAvatar(ctx, sc.UserID, id)
	if err != nil {
		return err
	}
	if avatar == nil {
		return drippler.E(drippler.KindNotFound, "Avatar not found")
	}

	s.removeObjects(ctx, sc, supabase.BucketAvatars, avatar.FileName)
	if err := sc.Backend.DeleteAvatar(ctx, sc.UserID, id); err != nil {
		return err
	}
	if !avatar.IsActive {
		return nil
	}

	remaining, err := sc.Backend.ListAvatars(ctx, sc.UserID)
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		return nil
	}
	if _, err := sc.Backend.ActivateAvatar(ctx, sc.UserID, remaining[0].ID); err != nil {
		return err
	}
	s.log.Info().Str("user_id", sc.UserID).Str("avatar_id", remaining[0].ID).Msg("promoted avatar to active")
	return nil
}
