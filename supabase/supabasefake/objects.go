package supabasefake

import (
	"context"
	"slices"

	"github.com/drippler/drippler"
	"github.com/drippler/drippler/supabase"
)

// Upload implements supabase.Objects.
func (c *Client) Upload(ctx context.Context, bucket, path string, data []byte, opts supabase.UploadOptions) (*supabase.UploadResult, error) {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	if err := c.srv.enter(OpStorage); err != nil {
		return nil, err
	}
	key := objectKey(bucket, path)
	if _, exists := c.srv.objects[key]; exists && !opts.Upsert {
		return nil, drippler.Errorf(drippler.KindValidation, "The resource already exists")
	}
	c.srv.objects[key] = slices.Clone(data)
	return &supabase.UploadResult{Path: path, PublicURL: publicURL(bucket, path)}, nil
}

// Remove implements supabase.Objects.
func (c *Client) Remove(ctx context.Context, bucket string, paths ...string) error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	if err := c.srv.enter(OpStorage); err != nil {
		return err
	}
	for _, p := range paths {
		delete(c.srv.objects, objectKey(bucket, p))
	}
	return nil
}

// PublicURL implements supabase.Objects.
func (c *Client) PublicURL(bucket, path string) string {
	return publicURL(bucket, path)
}
