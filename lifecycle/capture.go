package lifecycle

import (
	"context"
	"strconv"

	"github.com/drippler/drippler"
	"github.com/drippler/drippler/events"
	"github.com/drippler/drippler/wardrobe"
)

// MenuSaveImage is the context menu entry that saves an image to the wardrobe.
const MenuSaveImage = "save-image-as-clothing"

// MenuItem is a context menu entry offered on web pages.
type MenuItem struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Contexts []string `json:"contexts"`
	Patterns []string `json:"documentUrlPatterns"`
}

// Menus are the context menu entries the extension registers.
var Menus = []MenuItem{{
	ID:       MenuSaveImage,
	Title:    "Add to Drippler Wardrobe",
	Contexts: []string{"image"},
	Patterns: []string{"http://*/*", "https://*/*"},
}}

func menuIDs() []string {
	ids := make([]string, len(Menus))
	for i, m := range Menus {
		ids[i] = m.ID
	}
	return ids
}

// MenuClick is a click on a context menu entry.
type MenuClick struct {
	MenuItemID string `json:"menuItemId"`
	SrcURL     string `json:"srcUrl"`
	PageURL    string `json:"pageUrl"`
	PageTitle  string `json:"pageTitle,omitempty"`
}

// HandleContextMenuClick saves the clicked image as a clothing item. Without
// a session it asks the UI to open instead, so the user can sign in.
func (c *Controller) HandleContextMenuClick(ctx context.Context, click MenuClick) error {
	if click.MenuItemID != MenuSaveImage {
		return nil
	}
	sc, _, err := c.scope(ctx)
	if err != nil {
		c.log.Info().Err(err).Msg("no session for context menu capture, opening popup")
		c.publish(ctx, events.ActionOpenPopup, "", nil)
		return nil
	}

	item, err := c.wardrobe.SaveImage(ctx, sc, wardrobe.WebImage{
		ImageURL:  click.SrcURL,
		PageURL:   click.PageURL,
		PageTitle: click.PageTitle,
		Source:    wardrobe.SourceContextMenu,
	})
	if err != nil {
		c.log.Error().Err(err).Str("image_url", click.SrcURL).Msg("failed to save clothing item")
		return err
	}
	c.log.Info().Str("item_id", item.ID).Msg("clothing item saved from context menu")
	c.publish(ctx, events.ActionNotification, "", map[string]any{
		"title":   "Drippler",
		"message": "Clothing item added to your wardrobe!",
	})
	return nil
}

// NotifyPageLoaded tells the page at url whether the service is connected.
func (c *Controller) NotifyPageLoaded(ctx context.Context, url string) {
	if url == "" {
		return
	}
	c.publish(ctx, events.ActionSupabaseStatusUpdate, url, map[string]any{
		"connected": c.sessions.State().Connected(),
	})
}

func (c *Controller) saveToSupabase(ctx context.Context, req drippler.Request) (drippler.Fields, error) {
	var page wardrobe.PageInfo
	if err := req.Decode(&page); err != nil {
		return nil, err
	}
	backend, err := c.sessions.Backend()
	if err != nil {
		return nil, err
	}
	saved, err := c.wardrobe.SaveCapture(ctx, backend, page)
	if err != nil {
		return nil, err
	}
	return drippler.Fields{"message": "Data saved to Supabase successfully", "data": saved}, nil
}

// capturePageData keeps the capture locally and also sends it to the service
// when connected. A failed remote save does not fail the capture.
func (c *Controller) capturePageData(ctx context.Context, req drippler.Request) (drippler.Fields, error) {
	var page wardrobe.PageInfo
	if err := req.Decode(&page); err != nil {
		return nil, err
	}
	raw := string(req.Payload)
	if raw == "" {
		raw = "{}"
	}
	key := CapturePrefix + strconv.FormatInt(c.now().UnixMilli(), 10)
	if err := c.store.Set(ctx, map[string]string{key: raw}); err != nil {
		return nil, err
	}

	if backend, err := c.sessions.Backend(); err == nil {
		if _, err := c.wardrobe.SaveCapture(ctx, backend, page); err != nil {
			c.log.Warn().Err(err).Str("url", page.URL).Msg("failed to save capture remotely")
		}
	}
	return drippler.Fields{"message": "Page data captured successfully", "key": key}, nil
}

type floatingButtonPayload struct {
	URL string `json:"url"`
}

func (c *Controller) floatingButtonClicked(ctx context.Context, req drippler.Request) (drippler.Fields, error) {
	var p floatingButtonPayload
	if err := req.Decode(&p); err != nil {
		return nil, err
	}
	c.log.Info().Str("url", p.URL).Msg("floating button clicked")
	return drippler.Fields{}, nil
}

func (c *Controller) openPopup(ctx context.Context, _ drippler.Request) (drippler.Fields, error) {
	c.publish(ctx, events.ActionOpenPopup, "", nil)
	return drippler.Fields{}, nil
}
