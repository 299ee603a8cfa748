// Package db opens the postgres and redis clients used by the scheduler.
package db

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/go-redis/redis"
	"github.com/pressly/goose/v3"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// InitPostgresDatabase opens the gorm connection pool and verifies it with a ping.
func InitPostgresDatabase(dsn string) (*gorm.DB, error) {
	gormClient, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("gorm open: %w", err)
	}

	sqlDB, err := gormClient.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return gormClient, nil
}

// InitRedis connects to redis and verifies the connection.
func InitRedis(host, password string, database int) (*redis.Client, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     host,
		Password: password,
		DB:       database,
	})
	if _, err := redisClient.Ping().Result(); err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("redis ping %s: %w", host, err)
	}
	return redisClient, nil
}

// Migrate applies the embedded goose migrations.
func Migrate(ctx context.Context, gormClient *gorm.DB) error {
	sqlDB, err := gormClient.DB()
	if err != nil {
		return fmt.Errorf("gorm sql handle: %w", err)
	}
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, sqlDB, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}
