package app

import (
	"context"
	"fmt"

	"github.com/yungbote/databanana-backend/internal/pipeline"
	"github.com/yungbote/databanana-backend/internal/platform/gcp"
	"github.com/yungbote/databanana-backend/internal/platform/logger"
	"github.com/yungbote/databanana-backend/internal/platform/mockai"
	"github.com/yungbote/databanana-backend/internal/platform/s3"
)

const (
	StorageProviderGCS    = "gcs"
	StorageProviderS3     = "s3"
	StorageProviderMemory = "memory"
)

var (
	newGCSBucket = gcp.NewBucket
	newS3Store   = s3.New
)

type StorageProviderErrorCode string

const (
	StorageProviderErrorInvalidProvider StorageProviderErrorCode = "invalid_provider"
	StorageProviderErrorInvalidConfig   StorageProviderErrorCode = "invalid_config"
	StorageProviderErrorConnectFailed   StorageProviderErrorCode = "connect_failed"
)

type StorageProviderError struct {
	Code     StorageProviderErrorCode
	Provider string
	Cause    error
}

func (e *StorageProviderError) Error() string {
	if e == nil {
		return "object storage bootstrap failed"
	}
	return fmt.Sprintf("object storage bootstrap failed (code=%s provider=%q): %v", e.Code, e.Provider, e.Cause)
}

func (e *StorageProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// blobStore is the selected object store. memory is set only for the
// in-memory provider, which the API serves under /blobs.
type blobStore struct {
	store  pipeline.BlobStore
	memory *mockai.Blobs
	close  func() error
}

func resolveBlobStore(ctx context.Context, log *logger.Logger, cfg Config) (*blobStore, error) {
	log.Info("Selecting object storage provider", "provider", cfg.StorageProvider)

	switch cfg.StorageProvider {
	case StorageProviderMemory:
		mem := mockai.NewBlobs(cfg.PublicBaseURL + "/blobs")
		log.Warn("Using in-memory object storage; objects do not survive restarts")
		return &blobStore{store: mem, memory: mem, close: func() error { return nil }}, nil

	case StorageProviderGCS:
		storageCfg, err := gcp.LoadStorageConfig()
		if err != nil {
			return nil, storageError(log, cfg.StorageProvider, StorageProviderErrorInvalidConfig, err)
		}
		bucket, err := newGCSBucket(ctx, log, storageCfg)
		if err != nil {
			return nil, storageError(log, cfg.StorageProvider, StorageProviderErrorConnectFailed, err)
		}
		return &blobStore{store: bucket, close: bucket.Close}, nil

	case StorageProviderS3:
		store, err := newS3Store(log, s3.LoadConfig())
		if err != nil {
			return nil, storageError(log, cfg.StorageProvider, StorageProviderErrorInvalidConfig, err)
		}
		return &blobStore{store: store, close: func() error { return nil }}, nil
	}

	return nil, storageError(log, cfg.StorageProvider, StorageProviderErrorInvalidProvider,
		fmt.Errorf("unsupported storage provider %q", cfg.StorageProvider))
}

func storageError(log *logger.Logger, provider string, code StorageProviderErrorCode, cause error) error {
	err := &StorageProviderError{Code: code, Provider: provider, Cause: cause}
	log.Error("Object storage provider bootstrap failed", "provider", provider, "error_code", code, "error", cause)
	return err
}
