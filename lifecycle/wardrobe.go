package lifecycle

import (
	"context"
	"errors"

	"github.com/drippler/drippler"
	"github.com/drippler/drippler/supabase"
	"github.com/drippler/drippler/tryon"
	"github.com/drippler/drippler/wardrobe"
)

// scope resolves the signed-in user the wardrobe operations run for.
func (c *Controller) scope(ctx context.Context) (wardrobe.Scope, *supabase.Session, error) {
	backend, s, err := c.sessions.RequireSession(ctx)
	if err != nil {
		return wardrobe.Scope{}, nil, err
	}
	return wardrobe.Scope{Backend: backend, UserID: s.User.ID, Users: c.sessions}, s, nil
}

func (c *Controller) getUserProfile(ctx context.Context, _ drippler.Request) (drippler.Fields, error) {
	sc, _, err := c.scope(ctx)
	if err != nil {
		return nil, err
	}
	profile, err := c.wardrobe.Profile(ctx, sc)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return drippler.Fields{"profile": nil, "message": "No profile found"}, nil
	}
	return drippler.Fields{"profile": profile, "message": "Profile found"}, nil
}

func (c *Controller) uploadProfileImage(ctx context.Context, req drippler.Request) (drippler.Fields, error) {
	var f wardrobe.File
	if err := req.Decode(&f); err != nil {
		return nil, err
	}
	sc, _, err := c.scope(ctx)
	if err != nil {
		return nil, err
	}
	up, err := c.wardrobe.UploadProfileImage(ctx, sc, f)
	if err != nil {
		return nil, err
	}
	return drippler.Fields{
		"data":    map[string]any{"imageUrl": up.PublicURL, "path": up.Path},
		"message": "Profile image uploaded successfully",
	}, nil
}

func (c *Controller) uploadClothingItem(ctx context.Context, req drippler.Request) (drippler.Fields, error) {
	var in wardrobe.ClothingUpload
	if err := req.Decode(&in); err != nil {
		return nil, err
	}
	sc, _, err := c.scope(ctx)
	if err != nil {
		return nil, err
	}
	item, err := c.wardrobe.UploadClothingItem(ctx, sc, in)
	if err != nil {
		return nil, err
	}
	return drippler.Fields{"data": item, "message": "Clothing item uploaded successfully"}, nil
}

func (c *Controller) saveImageAsClothing(ctx context.Context, req drippler.Request) (drippler.Fields, error) {
	var in wardrobe.WebImage
	if err := req.Decode(&in); err != nil {
		return nil, err
	}
	sc, _, err := c.scope(ctx)
	if err != nil {
		return nil, err
	}
	item, err := c.wardrobe.SaveImage(ctx, sc, in)
	if err != nil {
		return nil, err
	}
	return drippler.Fields{"data": item, "message": "Image added to wardrobe successfully"}, nil
}

func (c *Controller) getClothingItems(ctx context.Context, _ drippler.Request) (drippler.Fields, error) {
	sc, _, err := c.scope(ctx)
	if err != nil {
		return nil, err
	}
	items, err := c.wardrobe.ClothingItems(ctx, sc)
	if err != nil {
		return nil, err
	}
	return drippler.Fields{"data": items}, nil
}

type itemPayload struct {
	ItemID string `json:"itemId"`
}

func (c *Controller) deleteClothingItem(ctx context.Context, req drippler.Request) (drippler.Fields, error) {
	var p itemPayload
	if err := req.Decode(&p); err != nil {
		return nil, err
	}
	sc, _, err := c.scope(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.wardrobe.DeleteClothingItem(ctx, sc, p.ItemID); err != nil {
		return nil, err
	}
	return drippler.Fields{"message": "Clothing item deleted successfully"}, nil
}

func (c *Controller) generateVirtualTryOn(ctx context.Context, req drippler.Request) (drippler.Fields, error) {
	var in tryon.Request
	if err := req.Decode(&in); err != nil {
		return nil, err
	}
	_, s, err := c.scope(ctx)
	if err != nil {
		return nil, err
	}
	data, err := c.tryon.Generate(ctx, s.AccessToken, in)
	if err != nil {
		var limit *tryon.LimitError
		if errors.As(err, &limit) {
			return drippler.Fields{
				"message":              limit.Message,
				"generationCount":      limit.Usage.GenerationCount,
				"maxGenerations":       limit.Usage.MaxGenerations,
				"remainingGenerations": limit.Usage.RemainingGenerations,
			}, err
		}
		return nil, err
	}
	return drippler.Fields{"data": data, "message": "Virtual try-on generated successfully"}, nil
}

func (c *Controller) getTryOnGenerations(ctx context.Context, _ drippler.Request) (drippler.Fields, error) {
	_, s, err := c.scope(ctx)
	if err != nil {
		return nil, err
	}
	data, err := c.tryon.Generations(ctx, s.AccessToken)
	if err != nil {
		return nil, err
	}
	return drippler.Fields{"data": data, "message": "Try-on generations retrieved successfully"}, nil
}

type generationPayload struct {
	GenerationID string `json:"generationId"`
}

func (c *Controller) deleteTryOnGeneration(ctx context.Context, req drippler.Request) (drippler.Fields, error) {
	var p generationPayload
	if err := req.Decode(&p); err != nil {
		return nil, err
	}
	sc, _, err := c.scope(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.wardrobe.DeleteGeneration(ctx, sc, p.GenerationID); err != nil {
		return nil, err
	}
	return drippler.Fields{"message": "Try-on generation deleted successfully"}, nil
}

func (c *Controller) uploadAvatar(ctx context.Context, req drippler.Request) (drippler.Fields, error) {
	var f wardrobe.File
	if err := req.Decode(&f); err != nil {
		return nil, err
	}
	sc, _, err := c.scope(ctx)
	if err != nil {
		return nil, err
	}
	avatar, first, err := c.wardrobe.UploadAvatar(ctx, sc, f)
	if err != nil {
		return nil, err
	}
	message := "Avatar uploaded successfully!"
	if first {
		message = "Avatar uploaded and set as active!"
	}
	return drippler.Fields{"avatar": avatar, "message": message}, nil
}

func (c *Controller) getAvatars(ctx context.Context, _ drippler.Request) (drippler.Fields, error) {
	sc, _, err := c.scope(ctx)
	if err != nil {
		return nil, err
	}
	avatars, err := c.wardrobe.Avatars(ctx, sc)
	if err != nil {
		return nil, err
	}
	return drippler.Fields{"avatars": avatars}, nil
}

func (c *Controller) getActiveAvatar(ctx context.Context, _ drippler.Request) (drippler.Fields, error) {
	sc, _, err := c.scope(ctx)
	if err != nil {
		return nil, err
	}
	avatar, err := c.wardrobe.ActiveAvatar(ctx, sc)
	if err != nil {
		return nil, err
	}
	if avatar == nil {
		return drippler.Fields{"avatar": nil}, nil
	}
	return drippler.Fields{"avatar": avatar}, nil
}

type avatarPayload struct {
	AvatarID string `json:"avatarId"`
	ImageURL string `json:"imageUrl"`
}

func (c *Controller) setActiveAvatar(ctx context.Context, req drippler.Request) (drippler.Fields, error) {
	var p avatarPayload
	if err := req.Decode(&p); err != nil {
		return nil, err
	}
	sc, _, err := c.scope(ctx)
	if err != nil {
		return nil, err
	}
	avatar, err := c.wardrobe.SetActiveAvatar(ctx, sc, p.AvatarID)
	if err != nil {
		return nil, err
	}
	return drippler.Fields{"avatar": avatar}, nil
}

func (c *Controller) deleteAvatar(ctx context.Context, req drippler.Request) (drippler.Fields, error) {
	var p avatarPayload
	if err := req.Decode(&p); err != nil {
		return nil, err
	}
	sc, _, err := c.scope(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.wardrobe.DeleteAvatar(ctx, sc, p.AvatarID); err != nil {
		return nil, err
	}
	return drippler.Fields{}, nil
}

func (c *Controller) addAvatarFromURL(ctx context.Context, req drippler.Request) (drippler.Fields, error) {
	var p avatarPayload
	if err := req.Decode(&p); err != nil {
		return nil, err
	}
	sc, _, err := c.scope(ctx)
	if err != nil {
		return nil, err
	}
	avatar, err := c.wardrobe.AddAvatarFromURL(ctx, sc, p.ImageURL)
	if err != nil {
		return nil, err
	}
	return drippler.Fields{"avatar": avatar}, nil
}
