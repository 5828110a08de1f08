package services

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// StoredImage identifies a saved photo. Key is what Delete takes.
type StoredImage struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// ImageStore hosts issue photos.
type ImageStore interface {
	Save(ctx context.Context, data []byte, contentType string) (*StoredImage, error)
	Delete(ctx context.Context, key string) error
}

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// SniffImage returns the content type of data if it is a supported photo.
func SniffImage(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrImageRequired
	}
	ct := http.DetectContentType(data)
	if _, ok := imageExtensions[ct]; !ok {
		return "", fmt.Errorf("unsupported image type %q", ct)
	}
	return ct, nil
}

func newImageName(contentType string) string {
	ext, ok := imageExtensions[contentType]
	if !ok {
		ext = ".jpg"
	}
	return uuid.New().String() + ext
}

// LocalImageStore writes photos under a directory served at urlPrefix.
type LocalImageStore struct {
	dir       string
	urlPrefix string
}

func NewLocalImageStore(dir, urlPrefix string) (*LocalImageStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("images: create upload dir: %w", err)
	}
	if !strings.HasSuffix(urlPrefix, "/") {
		urlPrefix += "/"
	}
	return &LocalImageStore{dir: dir, urlPrefix: urlPrefix}, nil
}

func (s *LocalImageStore) Save(ctx context.Context, data []byte, contentType string) (*StoredImage, error) {
	name := newImageName(contentType)
	path := filepath.Join(s.dir, name)

	if err := os.WriteFile(path, data, 0644); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("images: save file: %w", err)
	}
	return &StoredImage{Key: name, URL: s.urlPrefix + name}, nil
}

func (s *LocalImageStore) Delete(ctx context.Context, key string) error {
	// Keys are bare file names; refuse anything that could escape dir.
	if key == "" || key != filepath.Base(key) {
		return fmt.Errorf("images: invalid key %q", key)
	}
	if err := os.Remove(filepath.Join(s.dir, key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("images: delete file: %w", err)
	}
	return nil
}
