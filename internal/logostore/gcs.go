package logostore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
)

// GCSStore keeps logo assets in a Google Cloud Storage bucket. Assumes
// Application Default Credentials are configured.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore connects to the given bucket.
func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

func (s *GCSStore) object(id string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object("logos/" + id + ".png")
}

// Exists reports whether a logo is already stored for id.
func (s *GCSStore) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.object(id).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("logo attrs %q: %w", id, err)
	}
	return true, nil
}

// Put stores the logo bytes for id.
func (s *GCSStore) Put(ctx context.Context, id string, data []byte, contentType string) error {
	w := s.object(id).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write logo %q: %w", id, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize logo %q: %w", id, err)
	}
	return nil
}

// URL returns the public object address for id.
func (s *GCSStore) URL(id string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/logos/%s.png", s.bucket, id)
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
