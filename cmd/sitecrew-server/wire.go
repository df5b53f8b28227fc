package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kazz187/sitecrew/internal/assignment"
	assignmentrepo "github.com/kazz187/sitecrew/internal/assignment/repositoryimpl"
	"github.com/kazz187/sitecrew/internal/config"
	"github.com/kazz187/sitecrew/internal/lock"
	"github.com/kazz187/sitecrew/pkg/storage"
)

func openStorage(ctx context.Context, env *config.StorageEnv) (storage.Storage, error) {
	switch env.Type {
	case "s3":
		store, err := storage.NewS3Storage(ctx, env.S3Bucket, env.S3Prefix, env.S3Region)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 storage: %w", err)
		}
		return store, nil
	case "dynamodb":
		store, err := storage.NewDynamoStorage(ctx, env.DynamoTable, env.DynamoRegion, env.DynamoEndpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to create DynamoDB storage: %w", err)
		}
		return store, nil
	case "local", "":
		store, err := storage.NewLocalStorage(env.BaseDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create local storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", env.Type)
	}
}

func openAssignmentRepository(ctx context.Context, env *config.Env, store storage.Storage) (assignment.Repository, func(), error) {
	switch env.Backend {
	case "postgres":
		if env.DSN == "" {
			return nil, nil, fmt.Errorf("SITECREW_POSTGRES_DSN is required for the postgres backend")
		}
		db, err := gorm.Open(postgres.Open(env.DSN), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get postgres pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(env.MaxOpenConns)
		repo := assignmentrepo.NewGormRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, nil, err
		}
		slog.Info("assignment store: postgres")
		return repo, func() { _ = sqlDB.Close() }, nil
	case "storage", "":
		slog.Info("assignment store: blob storage")
		return assignmentrepo.NewYAMLRepository(store), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown assignment backend %q", env.Backend)
	}
}

func openLocker(ctx context.Context, env *config.RedisEnv) (lock.Locker, func(), error) {
	if env.Addr == "" {
		return lock.NewKeyed(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     env.Addr,
		Password: env.Password,
		DB:       env.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis %s: %w", env.Addr, err)
	}
	slog.Info("worker/day lock: redis", "addr", env.Addr)
	return lock.NewRedis(client, env.LockTTL), func() { _ = client.Close() }, nil
}
