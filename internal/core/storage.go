package core

import (
	"context"
	"fmt"

	"doccore/internal/config"
	"doccore/internal/infra/persistence/memory"
	"doccore/internal/infra/persistence/postgres"
	"doccore/internal/infra/persistence/s3"
	"doccore/internal/infra/persistence/sqlite"
	"doccore/pkg/domain"
)

// StorageDriver identifies a concrete document store implementation.
type StorageDriver = config.Driver

const (
	StorageMemory   = config.DriverMemory
	StorageSQLite   = config.DriverSQLite
	StoragePostgres = config.DriverPostgres
	StorageS3       = config.DriverS3
)

// OpenDocumentStore constructs the backend selected by cfg.Driver. An empty
// driver selects sqlite.
func OpenDocumentStore(ctx context.Context, cfg config.Storage) (domain.DocumentStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath)
	case StoragePostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN)
	case StorageS3:
		return s3.New(ctx, s3.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			Prefix:          cfg.S3.Prefix,
			PathStyle:       cfg.S3.PathStyle,
			PageSize:        cfg.S3.PageSize,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// OpenService opens the configured store and wraps it in a Service honouring
// the session settings of cfg.
func OpenService(ctx context.Context, cfg config.Config, opts ...ServiceOption) (*Service, error) {
	store, err := OpenDocumentStore(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	base := []ServiceOption{WithLoadConcurrency(cfg.Session.LoadConcurrency)}
	if cfg.Session.ExactlyOnceLoads {
		base = append(base, WithExactlyOnceSessionLoads())
	}
	return NewService(store, append(base, opts...)...), nil
}
