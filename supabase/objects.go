package supabase

import (
	"bytes"
	"context"
	"fmt"

	storage_go "github.com/supabase-community/storage-go"
)

// Storage buckets.
const (
	BucketProfileImages = "profile-images"
	BucketClothingItems = "clothing-items"
	BucketAvatars       = "avatars"
	BucketGenerations   = "virtual-try-on-generations"
)

const defaultCacheControl = "3600"

// Upload implements Objects.
func (c *Client) Upload(ctx context.Context, bucket, path string, data []byte, opts UploadOptions) (*UploadResult, error) {
	cacheControl := opts.CacheControl
	if cacheControl == "" {
		cacheControl = defaultCacheControl
	}
	contentType := opts.ContentType
	upsert := opts.Upsert

	api := c.client()
	_, err := api.Storage.UploadFile(bucket, path, bytes.NewReader(data), storage_go.FileOptions{
		CacheControl: &cacheControl,
		ContentType:  &contentType,
		Upsert:       &upsert,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s/%s: %w", bucket, path, err)
	}
	return &UploadResult{
		Path:      path,
		PublicURL: api.Storage.GetPublicUrl(bucket, path).SignedURL,
	}, nil
}

// Remove implements Objects.
func (c *Client) Remove(ctx context.Context, bucket string, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	if _, err := c.client().Storage.RemoveFile(bucket, paths); err != nil {
		return fmt.Errorf("failed to remove from %s: %w", bucket, err)
	}
	return nil
}

// PublicURL implements Objects.
func (c *Client) PublicURL(bucket, path string) string {
	return c.client().Storage.GetPublicUrl(bucket, path).SignedURL
}
