// Package drivers opens the kv.Store named by configuration.
package drivers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/schoolscreen/internal/config"
	"github.com/roach88/schoolscreen/internal/kv"
	"github.com/roach88/schoolscreen/internal/kv/file"
	"github.com/roach88/schoolscreen/internal/kv/memory"
	"github.com/roach88/schoolscreen/internal/kv/postgres"
	"github.com/roach88/schoolscreen/internal/kv/redis"
	"github.com/roach88/schoolscreen/internal/kv/s3"
	"github.com/roach88/schoolscreen/internal/kv/sqlite"
)

// Open constructs the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.Store) (kv.Store, error) {
	slog.Debug("opening store", "driver", cfg.Driver)
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.New(memory.WithQuota(cfg.QuotaBytes)), nil
	case config.DriverFile:
		return wrap(file.New(cfg.Path))
	case config.DriverSQLite:
		var opts []sqlite.Option
		if cfg.QuotaBytes > 0 {
			opts = append(opts, sqlite.WithMaxBytes(cfg.QuotaBytes))
		}
		return wrap(sqlite.Open(cfg.Path, opts...))
	case config.DriverRedis:
		return wrap(redis.New(ctx, redis.Options{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Namespace: cfg.Redis.Namespace,
		}))
	case config.DriverS3:
		return wrap(s3.New(ctx, s3.Config{
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PathStyle:       cfg.S3.PathStyle,
		}))
	case config.DriverPostgres:
		return wrap(postgres.Open(ctx, cfg.Postgres.DSN))
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// wrap keeps a failed constructor's typed nil out of the interface.
func wrap[S kv.Store](s S, err error) (kv.Store, error) {
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return s, nil
}
