package wardrobe

import (
	"context"
	"fmt"
	"net/url"

	"github.com/drippler/drippler"
	"github.com/drippler/drippler/supabase"
)

// Clothing item sources.
const (
	SourceUpload      = "upload"
	SourceWeb         = "web"
	SourceContextMenu = "context_menu"
)

// ClothingUpload is a clothing photo uploaded from the user's device.
type ClothingUpload struct {
	File
	Name     string   `json:"name,omitempty"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// WebImage is an image found on a page, saved by reference.
type WebImage struct {
	ImageURL  string `json:"imageUrl"`
	PageURL   string `json:"pageUrl"`
	PageTitle string `json:"pageTitle,omitempty"`
	Source    string `json:"source,omitempty"`
}

// UploadClothingItem stores the photo and records it as a clothing item.
func (s *Service) UploadClothingItem(ctx context.Context, sc Scope, in ClothingUpload) (*supabase.ClothingItem, error) {
	data, err := in.Bytes()
	if err != nil {
		return nil, err
	}
	name := fmt.Sprintf("clothing-%s-%d.%s", sc.UserID, s.millis(), in.Extension())
	up, err := sc.Backend.Upload(ctx, supabase.BucketClothingItems, name, data, supabase.UploadOptions{
		ContentType: in.ContentType(),
		Upsert:      true,
	})
	if err != nil {
		return nil, err
	}

	item := supabase.ClothingItem{
		UserID:    sc.UserID,
		Name:      in.Name,
		Category:  in.Category,
		ImageURL:  up.PublicURL,
		ImagePath: up.Path,
		Tags:      in.Tags,
		Source:    SourceUpload,
	}
	if item.Name == "" {
		item.Name = "Unnamed Item"
	}
	if item.Category == "" {
		item.Category = "uncategorized"
	}
	if item.Tags == nil {
		item.Tags = []string{}
	}
	saved, err := sc.Backend.InsertClothingItem(ctx, item)
	if err != nil {
		s.removeObjects(ctx, sc, supabase.BucketClothingItems, up.Path)
		return nil, err
	}
	s.log.Info().Str("user_id", sc.UserID).Str("item_id", saved.ID).Msg("clothing item uploaded")
	return saved, nil
}

// SaveImage records an image from the web as a clothing item without copying it.
func (s *Service) SaveImage(ctx context.Context, sc Scope, in WebImage) (*supabase.ClothingItem, error) {
	if in.ImageURL == "" {
		return nil, drippler.E(drippler.KindValidation, "Image URL is required")
	}
	page, err := url.Parse(in.PageURL)
	if err != nil || page.Hostname() == "" {
		return nil, drippler.Errorf(drippler.KindValidation, "Invalid page URL: %s", in.PageURL)
	}
	source := in.Source
	if source == "" {
		source = SourceWeb
	}
	return sc.Backend.InsertClothingItem(ctx, supabase.ClothingItem{
		UserID:      sc.UserID,
		Name:        "Item from " + page.Hostname(),
		Category:    "uncategorized",
		ImageURL:    in.ImageURL,
		SourceURL:   in.PageURL,
		SourceTitle: in.PageTitle,
		Source:      source,
	})
}

// ClothingItems lists the user's items, newest first.
func (s *Service) ClothingItems(ctx context.Context, sc Scope) ([]supabase.ClothingItem, error) {
	items, err := sc.Backend.ListClothingItems(ctx, sc.UserID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []supabase.ClothingItem{}
	}
	return items, nil
}

// DeleteClothingItem removes an item the user owns together with its
// uploaded photo.
func (s *Service) DeleteClothingItem(ctx context.Context, sc Scope, id string) error {
	if id == "" {
		return drippler.E(drippler.KindValidation, "Item ID is required")
	}
	item, err := sc.Backend.GetClothingItem(ctx, sc.UserID, id)
	if err != nil {
		return err
	}
	if item == nil {
		return drippler.E(drippler.KindNotFound, "Item not found or access denied")
	}
	if err := sc.Backend.DeleteClothingItem(ctx, sc.UserID, id); err != nil {
		return err
	}
	if item.ImagePath != "" {
		s.removeObjects(ctx, sc, supabase.BucketClothingItems, item.ImagePath)
	}
	return nil
}

// clothingObject returns the stored object of an item, if it was uploaded.
func clothingObject(item supabase.ClothingItem) string {
	if item.ImagePath != "" {
		return item.ImagePath
	}
	return storedName(item.ImageURL, supabase.BucketClothingItems, "clothing-")
}
