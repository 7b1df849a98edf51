package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/databanana-backend/internal/domain"
	"github.com/yungbote/databanana-backend/internal/platform/envutil"
	"github.com/yungbote/databanana-backend/internal/platform/logger"
)

// V4 signatures cannot outlive seven days.
const maxSignedURLTTL = 7 * 24 * time.Hour

type StorageMode string

const (
	StorageModeGCS         StorageMode = "gcs"
	StorageModeGCSEmulator StorageMode = "gcs_emulator"
)

type StorageConfig struct {
	Bucket       string
	Mode         StorageMode
	EmulatorHost string
}

// LoadStorageConfig reads GCS_BUCKET_NAME and OBJECT_STORAGE_MODE. An unset
// mode with STORAGE_EMULATOR_HOST present selects the emulator.
func LoadStorageConfig() (StorageConfig, error) {
	cfg := StorageConfig{
		Bucket:       envutil.String("GCS_BUCKET_NAME", ""),
		Mode:         StorageMode(strings.ToLower(envutil.String("OBJECT_STORAGE_MODE", ""))),
		EmulatorHost: strings.TrimRight(envutil.String("STORAGE_EMULATOR_HOST", ""), "/"),
	}
	if cfg.Mode == "" {
		cfg.Mode = StorageModeGCS
		if cfg.EmulatorHost != "" {
			cfg.Mode = StorageModeGCSEmulator
		}
	}
	return cfg, cfg.Validate()
}

func (c StorageConfig) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("missing env var GCS_BUCKET_NAME")
	}
	switch c.Mode {
	case StorageModeGCS:
		return nil
	case StorageModeGCSEmulator:
		u, err := url.Parse(c.EmulatorHost)
		if c.EmulatorHost == "" || err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("OBJECT_STORAGE_MODE=%q requires STORAGE_EMULATOR_HOST as an absolute URL, got %q", c.Mode, c.EmulatorHost)
		}
		return nil
	default:
		return fmt.Errorf("invalid OBJECT_STORAGE_MODE=%q (allowed: %q, %q)", c.Mode, StorageModeGCS, StorageModeGCSEmulator)
	}
}

// Bucket stores generated items in one GCS bucket.
type Bucket struct {
	log    *logger.Logger
	client *storage.Client
	cfg    StorageConfig
}

func NewBucket(ctx context.Context, log *logger.Logger, cfg StorageConfig) (*Bucket, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var opts []option.ClientOption
	if cfg.Mode == StorageModeGCSEmulator {
		opts = append(opts, option.WithoutAuthentication(), option.WithEndpoint(cfg.EmulatorHost+"/storage/v1/"))
	} else {
		opts = append(ClientOptionsFromEnv(), option.WithScopes(storage.ScopeReadWrite))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	log = log.With("service", "gcp.Bucket")
	log.Info("Object storage initialized", "mode", cfg.Mode, "bucket", cfg.Bucket, "emulator_host", cfg.EmulatorHost)
	return &Bucket{log: log, client: client, cfg: cfg}, nil
}

func (b *Bucket) Put(ctx context.Context, key string, data []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := b.client.Bucket(b.cfg.Bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "private, max-age=86400"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write gs://%s/%s: %w", b.cfg.Bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close gs://%s/%s: %w", b.cfg.Bucket, key, err)
	}
	return nil
}

func (b *Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := b.client.Bucket(b.cfg.Bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("object %s: %w", key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("open gs://%s/%s: %w", b.cfg.Bucket, key, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

// SignedURL issues a V4 GET URL. The emulator cannot verify signatures, so
// there the plain media URL is returned.
func (b *Bucket) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if b.cfg.Mode == StorageModeGCSEmulator {
		return emulatorMediaURL(b.cfg.EmulatorHost, b.cfg.Bucket, key), nil
	}
	if ttl <= 0 || ttl > maxSignedURLTTL {
		ttl = maxSignedURLTTL
	}
	u, err := b.client.Bucket(b.cfg.Bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("sign gs://%s/%s: %w", b.cfg.Bucket, key, err)
	}
	return u, nil
}

func (b *Bucket) Close() error {
	return b.client.Close()
}

func emulatorMediaURL(host, bucket, key string) string {
	return fmt.Sprintf("%s/download/storage/v1/b/%s/o/%s?alt=media",
		strings.TrimRight(host, "/"), url.PathEscape(bucket), url.PathEscape(key))
}
