package receipts

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"

	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"
)

// GCSConfig configures the Google Cloud Storage store. Without explicit
// credentials the application default credentials are used.
type GCSConfig struct {
	Bucket          string
	CredentialsJSON string
	CredentialsFile string
	// ClientOptions are appended after the credential options.
	ClientOptions []option.ClientOption
}

// GCSStore uploads receipts to a GCS bucket.
type GCSStore struct {
	bucket  string
	service *storage.Service
}

// NewGCSStore creates a storage API client for cfg.
func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	var opts []option.ClientOption
	switch {
	case cfg.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	opts = append(opts, option.WithScopes(storage.DevstorageReadWriteScope))
	opts = append(opts, cfg.ClientOptions...)

	svc, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage service: %w", err)
	}

	return &GCSStore{bucket: cfg.Bucket, service: svc}, nil
}

// Backend implements Store.
func (s *GCSStore) Backend() string { return "gcs" }

// Store uploads r as object key and returns the object's public URL.
func (s *GCSStore) Store(ctx context.Context, r io.Reader, key string) (string, error) {
	obj := &storage.Object{Name: key}
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		obj.ContentType = ct
	}

	if _, err := s.service.Objects.Insert(s.bucket, obj).Media(r).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("%w: gcs insert object: %v", ErrStorage, err)
	}

	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, key), nil
}
