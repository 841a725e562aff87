// Package objectstore holds the ObjectStore implementations: a NATS JetStream
// object store for self-hosted deployments and Supabase Storage for hosted ones.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Reality-Reimagined/voiceai/internal/core"
)

var _ core.ObjectStore = (*NatsObjectStore)(nil)

// AudioRoutePrefix is the HTTP path under which NATS-stored objects are served.
const AudioRoutePrefix = "/audio/"

// NatsObjectStore implements core.ObjectStore on a JetStream object store
// bucket. Public URLs point at the service's own audio route.
type NatsObjectStore struct {
	bucket    string
	store     nats.ObjectStore
	urlPrefix string
}

// NewNatsObjectStore creates the bucket, or binds to it when it already exists.
func NewNatsObjectStore(
	jetstreamContext nats.JetStreamContext,
	bucketName, publicBaseURL string,
) (*NatsObjectStore, error) {
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Generated and reference audio for %s.", bucketName),
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucketName, err)
		}

		store, err = jetstreamContext.ObjectStore(bucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucketName, err)
		}
	}

	return &NatsObjectStore{
		bucket:    bucketName,
		store:     store,
		urlPrefix: strings.TrimRight(publicBaseURL, "/") + AudioRoutePrefix,
	}, nil
}

// Download retrieves an object. A missing key wraps core.ErrNotFound.
func (n *NatsObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	obj, err := n.store.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrObjectNotFound) {
			return nil, fmt.Errorf("object '%s' in bucket '%s': %w", key, n.bucket, core.ErrNotFound)
		}

		return nil, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", key, n.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf("failed to close object '%s': %w", key, closeErr)
	}

	return data, nil
}

// Upload saves an object, replacing any existing one with the same key.
func (n *NatsObjectStore) Upload(_ context.Context, key string, data []byte) error {
	_, err := n.store.Put(&nats.ObjectMeta{Name: key}, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to put object '%s' to bucket '%s': %w", key, n.bucket, err)
	}

	return nil
}

// PublicURL returns the service URL that serves key.
func (n *NatsObjectStore) PublicURL(key string) string {
	return n.urlPrefix + escapeKey(key)
}

// KeyFromURL accepts a URL produced by PublicURL or a bare object key.
func (n *NatsObjectStore) KeyFromURL(rawURL string) (string, error) {
	return keyFromURL(n.urlPrefix, rawURL)
}

// Ping reports whether the bucket is reachable.
func (n *NatsObjectStore) Ping(_ context.Context) error {
	_, err := n.store.Status()
	if err != nil {
		return fmt.Errorf("object store bucket '%s' unavailable: %w", n.bucket, err)
	}

	return nil
}
