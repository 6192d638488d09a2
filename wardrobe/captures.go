package wardrobe

import (
	"context"

	"github.com/drippler/drippler"
	"github.com/drippler/drippler/supabase"
)

// PageInfo describes a page visited by the user.
type PageInfo struct {
	URL       string `json:"url"`
	Title     string `json:"title,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// SaveCapture records a visited page. Captures are not tied to a user.
func (s *Service) SaveCapture(ctx context.Context, backend supabase.Backend, page PageInfo) (*supabase.PageCapture, error) {
	if page.URL == "" {
		return nil, drippler.E(drippler.KindValidation, "Page URL is required")
	}
	return backend.InsertPageCapture(ctx, supabase.PageCapture{
		URL:         page.URL,
		Title:       page.Title,
		Timestamp:   page.Timestamp,
		ExtensionID: s.extensionID,
	})
}
