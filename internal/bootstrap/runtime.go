// Package bootstrap connects the backing services a process runs against.
package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"threads/internal/cache"
	"threads/internal/config"
	"threads/internal/database"
	"threads/internal/media"
	"threads/internal/middleware"
	"threads/internal/models"
	"threads/internal/seed"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SeedEmptyDatabase fills a development database that has no users.
	SeedEmptyDatabase bool
	SkipStorage       bool
}

// Runtime is the set of connected backends. Redis and Storage are nil when
// unavailable.
type Runtime struct {
	DB      *gorm.DB
	Redis   *redis.Client
	Storage media.ObjectStorage
}

// InitRuntime connects to the database, Redis and object storage.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	rt := &Runtime{DB: db, Redis: cache.Connect(ctx, cfg.RedisURL)}

	if !opts.SkipStorage {
		rt.Storage, err = initStorage(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	if opts.SeedEmptyDatabase {
		if err := seedIfEmpty(cfg, db); err != nil {
			return nil, fmt.Errorf("failed to seed development data: %w", err)
		}
	}

	return rt, nil
}

func initStorage(ctx context.Context, cfg *config.Config) (media.ObjectStorage, error) {
	if cfg.MinIOEndpoint == "" {
		middleware.Logger.Warn("MINIO_ENDPOINT not set; media uploads and storage references are disabled")
		return nil, nil
	}
	store, err := media.NewMinIOStorage(ctx, media.MinIOConfig{
		Endpoint:  cfg.MinIOEndpoint,
		AccessKey: cfg.MinIOAccessKey,
		SecretKey: cfg.MinIOSecretKey,
		Bucket:    cfg.MinIOBucket,
		UseSSL:    cfg.MinIOUseSSL,
		Region:    cfg.MinIORegion,
	})
	if err != nil {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("object storage init failed: %w", err)
		}
		middleware.Logger.Warn("object storage unavailable; continuing without media", "error", err)
		return nil, nil
	}
	return store, nil
}

func seedIfEmpty(cfg *config.Config, db *gorm.DB) error {
	if !strings.EqualFold(cfg.Env, "development") {
		return nil
	}
	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	_, err := seed.NewSeeder(db, 0).Run(seed.DefaultOptions())
	return err
}

// Close releases every backend held by rt.
func (rt *Runtime) Close() {
	if rt == nil {
		return
	}
	if rt.DB != nil {
		if sqlDB, err := rt.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if rt.Redis != nil {
		_ = rt.Redis.Close()
	}
}
