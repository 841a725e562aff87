package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"

	storage "github.com/supabase-community/storage-go"

	"github.com/Reality-Reimagined/voiceai/internal/core"
)

var _ core.ObjectStore = (*SupabaseStore)(nil)

const (
	supabaseStoragePath = "/storage/v1"
	publicURLMarker     = "k"
	contentTypeOctet    = "application/octet-stream"
	contentTypeWAV      = "audio/wav"
)

// ErrSupabaseStorage wraps every failed Supabase Storage call other than a
// missing object.
var ErrSupabaseStorage = errors.New("supabase storage request failed")

// SupabaseStore implements core.ObjectStore on a Supabase Storage bucket.
type SupabaseStore struct {
	client       *storage.Client
	bucket       string
	publicPrefix string
}

// NewSupabaseStore creates a store for bucket on the project at baseURL,
// authenticating with the service role key.
func NewSupabaseStore(baseURL, serviceKey, bucket string) *SupabaseStore {
	client := storage.NewClient(
		strings.TrimRight(baseURL, "/")+supabaseStoragePath,
		serviceKey,
		map[string]string{"apikey": serviceKey},
	)

	marked := client.GetPublicUrl(bucket, publicURLMarker).SignedURL

	return &SupabaseStore{
		client:       client,
		bucket:       bucket,
		publicPrefix: strings.TrimSuffix(marked, publicURLMarker),
	}
}

// Upload stores data under key, overwriting an existing object.
func (s *SupabaseStore) Upload(ctx context.Context, key string, data []byte) error {
	err := ctx.Err()
	if err != nil {
		return err
	}

	contentType := contentTypeFor(key)
	upsert := true

	_, err = s.client.UploadFile(s.bucket, escapeKey(key), bytes.NewReader(data), storage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return s.classify(err, "upload", key)
	}

	return nil
}

// Download fetches key. A missing object wraps core.ErrNotFound.
func (s *SupabaseStore) Download(ctx context.Context, key string) ([]byte, error) {
	err := ctx.Err()
	if err != nil {
		return nil, err
	}

	data, err := s.client.DownloadFile(s.bucket, escapeKey(key))
	if err != nil {
		return nil, s.classify(err, "download", key)
	}

	return data, nil
}

// PublicURL returns the public bucket URL for key.
func (s *SupabaseStore) PublicURL(key string) string {
	return s.publicPrefix + escapeKey(key)
}

// KeyFromURL accepts a URL produced by PublicURL or a bare object key.
func (s *SupabaseStore) KeyFromURL(rawURL string) (string, error) {
	return keyFromURL(s.publicPrefix, rawURL)
}

// Ping reports whether the bucket exists and the key is accepted.
func (s *SupabaseStore) Ping(ctx context.Context) error {
	err := ctx.Err()
	if err != nil {
		return err
	}

	_, err = s.client.GetBucket(s.bucket)
	if err != nil {
		return s.classify(err, "inspect bucket", s.bucket)
	}

	return nil
}

// classify maps a storage client failure. Supabase answers a missing object
// with either 404 or a 400 whose message names the condition.
func (s *SupabaseStore) classify(err error, op, key string) error {
	if strings.Contains(strings.ToLower(err.Error()), "not found") {
		return fmt.Errorf("object '%s' in bucket '%s': %w", key, s.bucket, core.ErrNotFound)
	}

	return fmt.Errorf("%w: %s '%s': %w", ErrSupabaseStorage, op, key, err)
}

func contentTypeFor(key string) string {
	ext := path.Ext(key)
	if strings.EqualFold(ext, ".wav") {
		return contentTypeWAV
	}

	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		return contentTypeOctet
	}

	return contentType
}
