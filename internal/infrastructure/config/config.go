package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"

	sharedConfig "github.com/iscoin/purchase/internal/shared/config"
)

const envPrefix = "PURCHASE"

type Config struct {
	Server    sharedConfig.ServerConfig    `mapstructure:"server"`
	Database  sharedConfig.DatabaseConfig  `mapstructure:"database"`
	Logger    sharedConfig.LoggerConfig    `mapstructure:"logger"`
	Redis     sharedConfig.RedisConfig     `mapstructure:"redis"`
	Purchase  sharedConfig.PurchaseConfig  `mapstructure:"purchase"`
	Rates     sharedConfig.RatesConfig     `mapstructure:"rates"`
	RateLimit sharedConfig.RateLimitConfig `mapstructure:"rate_limit"`
}

var (
	appConfig   *Config
	appConfigMu sync.RWMutex
)

// Load reads configs/config.yaml, or configPath when set, and overlays
// PURCHASE_* environment variables (PURCHASE_DATABASE_HOST overrides
// database.host). A missing config file is not an error when configPath is
// empty; defaults and the environment are then the only source.
func Load(env, configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if env != "" && env != "default" {
		v.Set("server.mode", env)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	appConfigMu.Lock()
	appConfig = &config
	appConfigMu.Unlock()

	return &config, nil
}

// Get returns the loaded configuration
func Get() *Config {
	appConfigMu.RLock()
	defer appConfigMu.RUnlock()
	return appConfig
}

// setDefaults registers every key so that environment overrides apply even
// when the file omits it.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.timezone", "UTC")

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/purchase.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.username", "root")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "purchase")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.conn_max_lifetime", 60)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.output_path", "stdout")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Purchase defaults
	v.SetDefault("purchase.time_limit", "30m")
	v.SetDefault("purchase.update_interval", "1m")
	v.SetDefault("purchase.concurrency", 4)
	v.SetDefault("purchase.call_timeout", "15s")
	v.SetDefault("purchase.token_code", "ISC")
	v.SetDefault("purchase.token_decimals", 4)
	v.SetDefault("purchase.utxo.currency_code", "BTC")
	v.SetDefault("purchase.utxo.network", "mainnet")
	v.SetDefault("purchase.utxo.xpubs", []string{})
	v.SetDefault("purchase.utxo.current_key_group", 0)
	v.SetDefault("purchase.utxo.insight_api", "https://insight.bitpay.com/api")
	v.SetDefault("purchase.account.currency_code", "EOS")
	v.SetDefault("purchase.account.deposit_account", "")
	v.SetDefault("purchase.account.history_api", "https://eos.hyperion.eosrio.io")
	v.SetDefault("purchase.settlement.issuer_url", "http://localhost:8888")
	v.SetDefault("purchase.settlement.issuer_account", "")
	v.SetDefault("purchase.settlement.api_key", "")

	// Rates defaults
	v.SetDefault("rates.cache_ttl", "5m")

	// Rate limit defaults
	v.SetDefault("rate_limit.requests_per_minute", 30)
}
