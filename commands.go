package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/containerd/log"
	"github.com/go-redis/redis"
	"github.com/ping-42/device-scheduler/api"
	"github.com/ping-42/device-scheduler/config"
	"github.com/ping-42/device-scheduler/db"
	"github.com/ping-42/device-scheduler/devicecloud"
	"github.com/ping-42/device-scheduler/executor"
	"github.com/ping-42/device-scheduler/logger"
	"github.com/ping-42/device-scheduler/reaper"
	"github.com/ping-42/device-scheduler/scheduler"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

var skipMigrations bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler loop, the stale claim reaper and the admin API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Execute the due actions a single time and print the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		gormClient, err := db.InitPostgresDatabase(cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("InitPostgresDatabase: %w", err)
		}
		defer closeDB(gormClient)
		if err := db.Migrate(cmd.Context(), gormClient); err != nil {
			return err
		}
		schedulerLogger.Info("migrations applied")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "device-scheduler %s (commit %s, built %s)\n", version, commit, date)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply migrations on startup")
}

func loadConfig() (config.Configuration, error) {
	cfg, err := config.GetConfig(cfgFile)
	if err != nil {
		return cfg, err
	}
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return cfg, fmt.Errorf("log_level: %w", err)
	}
	return cfg, nil
}

func schedulerConfig(cfg config.Configuration) scheduler.Config {
	return scheduler.Config{
		Interval:         cfg.Scheduler.Interval(),
		StopTimeout:      cfg.Scheduler.StopTimeout(),
		RestartPause:     cfg.Scheduler.RestartPause(),
		ErrorBackoff:     cfg.Scheduler.ErrorBackoff(),
		ExecutionTimeout: cfg.Scheduler.ExecutionTimeout(),
	}
}

// resources are the long lived clients shared by serve and once.
type resources struct {
	gormClient  *gorm.DB
	redisClient *redis.Client
	deps        executor.Deps
}

func (r resources) Close() {
	if r.redisClient != nil {
		_ = r.redisClient.Close()
	}
	closeDB(r.gormClient)
}

func initResources(ctx context.Context, cfg config.Configuration, migrate bool) (res resources, err error) {
	res.gormClient, err = db.InitPostgresDatabase(cfg.PostgresDSN)
	if err != nil {
		err = fmt.Errorf("InitPostgresDatabase: %w", err)
		return
	}
	if migrate {
		if err = db.Migrate(ctx, res.gormClient); err != nil {
			res.Close()
			return
		}
	}

	res.deps = executor.Deps{
		DB:  res.gormClient,
		Log: schedulerLogger.WithField("unit", "executor"),
		Options: executor.Options{
			BatchSize: cfg.Scheduler.BatchSize,
		},
	}

	if cfg.RedisHost != "" {
		res.redisClient, err = db.InitRedis(cfg.RedisHost, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			res.Close()
			err = fmt.Errorf("InitRedis: %w", err)
			return
		}
		res.deps.Broker = executor.NewRedisBroker(res.redisClient)
	}

	if cfg.DeviceCloud.BaseURL == "" {
		schedulerLogger.Warn("device cloud is not configured, executions will fail until it is")
		return
	}
	devices, er := devicecloud.NewClient(devicecloud.Options{
		BaseURL:           cfg.DeviceCloud.BaseURL,
		ClientID:          cfg.DeviceCloud.ClientID,
		ClientSecret:      cfg.DeviceCloud.ClientSecret,
		RequestsPerSecond: cfg.DeviceCloud.RequestsPerSecond,
		Timeout:           cfg.DeviceCloud.Timeout(),
	})
	if er != nil {
		res.Close()
		err = fmt.Errorf("devicecloud.NewClient: %w", er)
		return
	}
	res.deps.Devices = devices
	return
}

func serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	schedulerLogger.WithFields(log.Fields{
		"version":   version,
		"commit":    commit,
		"buildDate": date,
	}).Info("Starting Device Scheduler Service ...")

	res, err := initResources(ctx, cfg, !skipMigrations)
	if err != nil {
		return err
	}
	defer res.Close()

	controller := scheduler.New(schedulerConfig(cfg), schedulerLogger.WithField("unit", "scheduler"))
	controller.SetScope(executor.NewScopeFunc(res.deps))

	stopReaper := make(chan struct{})
	go reaper.Work(cfg.Reaper.Interval(), cfg.Reaper.StaleAfter(), res.gormClient, schedulerLogger.WithField("unit", "reaper"), stopReaper)

	server := api.New(cfg.HTTPAddr, cfg.AdminToken, controller, schedulerLogger.WithField("unit", "api"))
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	if cfg.Scheduler.Autostart {
		controller.Start()
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		schedulerLogger.Info("shutdown signal received")
	case err = <-serverErr:
		if err != nil {
			logger.LogError(err, "admin api failed", schedulerLogger)
		}
	}

	close(stopReaper)
	controller.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if er := server.Shutdown(shutdownCtx); er != nil {
		logger.LogError(er, "admin api shutdown failed", schedulerLogger)
	}
	return err
}

func runOnce(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	res, err := initResources(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer res.Close()

	if t := cfg.Scheduler.ExecutionTimeout(); t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	scope := executor.NewScope(ctx, res.deps)
	defer scope.Release()
	ex, err := scope.Executor()
	if err != nil {
		return err
	}

	result := ex.ExecutePendingActions(ctx)
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	if !result.Success {
		return errors.New(result.Error)
	}
	return nil
}

func closeDB(gormClient *gorm.DB) {
	if gormClient == nil {
		return
	}
	if sqlDB, err := gormClient.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
