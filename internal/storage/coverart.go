// Package storage uploads publishing assets to Supabase Storage.
package storage

import (
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"sync"

	supabase "github.com/supabase-community/storage-go"
)

const cacheControl = "3600"

type uploadFunc func(bucket, path string, data io.Reader, opts supabase.FileOptions) error

// CoverArtStore keeps one cover image per episode, overwriting earlier
// uploads.
type CoverArtStore struct {
	baseURL string
	bucket  string
	upload  uploadFunc
}

func NewCoverArtStore(supabaseURL, key, bucket string) *CoverArtStore {
	baseURL := strings.TrimRight(supabaseURL, "/")
	client := supabase.NewClient(baseURL+"/storage/v1", key, nil)
	// the client keeps file options in headers shared by every request
	var mu sync.Mutex
	return &CoverArtStore{
		baseURL: baseURL,
		bucket:  bucket,
		upload: func(bucket, path string, data io.Reader, opts supabase.FileOptions) error {
			mu.Lock()
			defer mu.Unlock()
			_, err := client.UploadFile(bucket, path, data, opts)
			return err
		},
	}
}

// CoverArtKey is the object key for an episode's cover art:
// {episodeId}_cover_art.{ext}. The extension comes from the uploaded
// file name, else from its content type.
func CoverArtKey(episodeID, filename, contentType string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" {
		if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
			ext = strings.TrimPrefix(exts[0], ".")
		}
	}
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("%s_cover_art.%s", episodeID, ext)
}

// PublicURL is the public object URL for key.
func (s *CoverArtStore) PublicURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, key)
}

// Upload stores the cover art and returns its public URL.
func (s *CoverArtStore) Upload(episodeID, filename, contentType string, data io.Reader) (string, error) {
	key := CoverArtKey(episodeID, filename, contentType)
	upsert := true
	cc := cacheControl
	opts := supabase.FileOptions{CacheControl: &cc, Upsert: &upsert}
	if contentType != "" {
		opts.ContentType = &contentType
	}
	if err := s.upload(s.bucket, key, data, opts); err != nil {
		return "", fmt.Errorf("failed to upload cover art %s: %w", key, err)
	}
	return s.PublicURL(key), nil
}
