package store

import (
	"context"
	"fmt"

	"photopool/internal/config"
	"photopool/internal/pool"
)

// NewStoreFromConfig creates a Store implementation based on the store config type.
func NewStoreFromConfig(ctx context.Context, cfg config.StoreConfig, idgen pool.IDGenerator) (pool.Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(cfg.Name, cfg.PublicBaseURL, idgen), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem store requires fs_root to be set")
		}
		s, err := NewFileSystemStore(cfg.Name, cfg.FSRoot, cfg.PublicBaseURL, idgen)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "s3":
		s, err := NewS3Store(ctx, cfg.Name, S3Settings{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			Bucket:        cfg.S3Bucket,
			Prefix:        cfg.S3Prefix,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			PathStyle:     cfg.S3PathStyle,
			URLPolicy:     cfg.URLPolicy,
			PublicBaseURL: cfg.PublicBaseURL,
			PresignExpiry: cfg.PresignExpiry.Duration,
		}, idgen)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}
