package blob

import (
	"context"
	"fmt"

	"heritagestore/internal/config"
	"heritagestore/internal/infra/blob/fs"
	"heritagestore/internal/infra/blob/memory"
	"heritagestore/internal/infra/blob/s3"
)

// Open builds the driver named by cfg.Driver. An empty driver means fs.
func Open(ctx context.Context, cfg config.Blob) (Store, error) {
	switch Driver(cfg.Driver) {
	case "", DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, s3.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			PathStyle:       cfg.S3.PathStyle,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// NewFilesystem opens a filesystem store rooted at root.
func NewFilesystem(root string) (Store, error) {
	st, err := fs.New(root)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// NewMemory returns an empty in-process store.
func NewMemory() Store { return memory.New() }

// NewS3 opens a store over one S3 bucket.
func NewS3(ctx context.Context, cfg s3.Config) (Store, error) {
	st, err := s3.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return st, nil
}
