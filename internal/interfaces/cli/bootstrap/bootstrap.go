// Package bootstrap loads configuration and opens the shared resources every
// CLI command needs.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/iscoin/purchase/internal/infrastructure/config"
	"github.com/iscoin/purchase/internal/infrastructure/database"
	"github.com/iscoin/purchase/internal/shared/biztime"
	"github.com/iscoin/purchase/internal/shared/constants"
	"github.com/iscoin/purchase/internal/shared/logger"
)

// ResolveEnv lets the ENV variable override the --env flag.
func ResolveEnv(flagValue string) string {
	if envVar := os.Getenv("ENV"); envVar != "" {
		return envVar
	}
	return flagValue
}

// IsDebug reports whether env runs with verbose logging and gin debug mode.
func IsDebug(env string) bool {
	switch strings.ToLower(env) {
	case constants.EnvDevelopment, "dev", "debug":
		return true
	default:
		return false
	}
}

// Init loads configuration, then initializes the logger, the business
// timezone and the database connection returned by database.Get.
func Init(env, configPath string) (*config.Config, logger.Interface, error) {
	cfg, err := config.Load(env, configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(&cfg.Logger, IsDebug(env)); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.NewLogger()

	if err := biztime.Init(cfg.Server.Timezone); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize business timezone: %w", err)
	}

	if err := database.Init(&cfg.Database); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return cfg, log, nil
}

// OpenRedis connects to Redis when it is enabled. A nil client means Redis is
// disabled and callers skip caching.
func OpenRedis(cfg *config.Config, log logger.Interface) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		log.Infow("redis disabled, exchange rates are read from the database")
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.GetAddr(), err)
	}
	log.Infow("redis connection established", "address", cfg.Redis.GetAddr())
	return client, nil
}
