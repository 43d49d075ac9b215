package receipts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"
	"unicode"

	"spendwise/internal/config"
	"spendwise/internal/metrics"
)

// Directory is the key prefix every receipt is stored under.
const Directory = "receipts"

// ErrStorage wraps every failure to persist a receipt.
var ErrStorage = errors.New("receipt storage failed")

// Store persists a receipt under key and returns the reference recorded on
// the expense (a relative path for local storage, a URL for remote storage).
type Store interface {
	Store(ctx context.Context, r io.Reader, key string) (string, error)
	// Backend names the storage variant for logs and metrics.
	Backend() string
}

// Key builds the storage key for an upload made by userID at t.
func Key(userID int64, t time.Time, filename string) string {
	name := strconv.FormatInt(userID, 10) + "_" + t.Format("20060102150405") + "_" + SanitizeFilename(filename)
	return path.Join(Directory, name)
}

// SanitizeFilename reduces name to a safe single path segment made of ASCII
// letters, digits, dots, dashes and underscores.
func SanitizeFilename(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	var b strings.Builder
	for _, r := range strings.Join(strings.Fields(name), "_") {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "._")
}

// New selects the store named by the configuration. Remote stores are
// wrapped so that failures fall back to the local store.
func New(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*Fallback, error) {
	local := NewLocalStore(cfg.UploadDir)

	switch cfg.StorageType {
	case config.StorageS3:
		s3, err := NewS3Store(ctx, S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create s3 store: %w", err)
		}
		return NewFallback(s3, local, m), nil
	case config.StorageGCS:
		gcs, err := NewGCSStore(ctx, GCSConfig{
			Bucket:          cfg.GCSBucket,
			CredentialsJSON: cfg.GCSCredentialsJSON,
			CredentialsFile: cfg.GCSCredentialsFile,
		})
		if err != nil {
			return nil, fmt.Errorf("create gcs store: %w", err)
		}
		return NewFallback(gcs, local, m), nil
	default:
		return NewFallback(nil, local, m), nil
	}
}
