package services

import (
	"context"
	"fmt"
	"log"
	"net/url"

	"cloud.google.com/go/storage"
)

// GCSImageStore hosts photos in a Cloud Storage bucket under issues/.
type GCSImageStore struct {
	gcs    *storage.Client
	bucket string
}

// NewGCSImageStore creates a storage client once at server startup using
// Application Default Credentials.
func NewGCSImageStore(ctx context.Context, bucket string) (*GCSImageStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("images: GCS_BUCKET is required for the gcs image store")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("images: storage client: %w", err)
	}
	return &GCSImageStore{gcs: client, bucket: bucket}, nil
}

func (s *GCSImageStore) Save(ctx context.Context, data []byte, contentType string) (*StoredImage, error) {
	name := "issues/" + newImageName(contentType)
	w := s.gcs.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{"source": "issue-report"}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("images: upload %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("images: finalize %s: %w", name, err)
	}

	log.Printf("[images] uploaded gs://%s/%s (%d bytes)", s.bucket, name, len(data))
	return &StoredImage{Key: name, URL: publicObjectURL(s.bucket, name)}, nil
}

func (s *GCSImageStore) Delete(ctx context.Context, key string) error {
	err := s.gcs.Bucket(s.bucket).Object(key).Delete(ctx)
	if err == storage.ErrObjectNotExist {
		return nil
	}
	return err
}

func (s *GCSImageStore) Close() error {
	return s.gcs.Close()
}

func publicObjectURL(bucket, name string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, (&url.URL{Path: name}).EscapedPath())
}
