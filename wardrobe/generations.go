package wardrobe

import (
	"context"

	"github.com/drippler/drippler"
	"github.com/drippler/drippler/supabase"
)

// DeleteGeneration removes a try-on result the user owns and its image.
func (s *Service) DeleteGeneration(ctx context.Context, sc Scope, id string) error {
	if id == "" {
		return drippler.E(drippler.KindValidation, "Generation ID is required")
	}
	g, err := sc.Backend.GetGeneration(ctx, sc.UserID, id)
	if err != nil {
		return err
	}
	if g == nil {
		return drippler.E(drippler.KindNotFound, "Generation not found")
	}
	if name := generationObject(*g); name != "" {
		s.removeObjects(ctx, sc, supabase.BucketGenerations, name)
	}
	return sc.Backend.DeleteGeneration(ctx, sc.UserID, id)
}

func generationObject(g supabase.Generation) string {
	return storedName(g.GeneratedImageURL, supabase.BucketGenerations, "")
}
