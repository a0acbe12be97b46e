package config

import (
	"fmt"
	"time"
)

type ServerConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Mode     string `mapstructure:"mode"`
	Timezone string `mapstructure:"timezone"`
}

func (s *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	// Driver selects the gorm dialector: "sqlite" or "mysql".
	Driver          string `mapstructure:"driver"`
	Path            string `mapstructure:"path"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

func (d *DatabaseConfig) GetDSN() string {
	if d.Driver == "mysql" {
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			d.Username, d.Password, d.Host, d.Port, d.Database)
	}
	return fmt.Sprintf("%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", d.Path)
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// UtxoChainConfig describes the Bitcoin-style chain and the extended public keys
// receiving addresses are derived from.
type UtxoChainConfig struct {
	CurrencyCode    string   `mapstructure:"currency_code"`
	Network         string   `mapstructure:"network"`
	Xpubs           []string `mapstructure:"xpubs"`
	CurrentKeyGroup int      `mapstructure:"current_key_group"`
	InsightAPI      string   `mapstructure:"insight_api"`
}

type AccountChainConfig struct {
	CurrencyCode   string `mapstructure:"currency_code"`
	DepositAccount string `mapstructure:"deposit_account"`
	HistoryAPI     string `mapstructure:"history_api"`
}

type SettlementConfig struct {
	IssuerURL     string `mapstructure:"issuer_url"`
	IssuerAccount string `mapstructure:"issuer_account"`
	APIKey        string `mapstructure:"api_key"`
}

type PurchaseConfig struct {
	TimeLimit      time.Duration      `mapstructure:"time_limit"`
	UpdateInterval time.Duration      `mapstructure:"update_interval"`
	Concurrency    int                `mapstructure:"concurrency"`
	CallTimeout    time.Duration      `mapstructure:"call_timeout"`
	TokenCode      string             `mapstructure:"token_code"`
	TokenDecimals  int32              `mapstructure:"token_decimals"`
	Utxo           UtxoChainConfig    `mapstructure:"utxo"`
	Account        AccountChainConfig `mapstructure:"account"`
	Settlement     SettlementConfig   `mapstructure:"settlement"`
}

// Validate checks the values the purchase flow cannot run without.
func (p *PurchaseConfig) Validate() error {
	if p.TimeLimit <= 0 {
		return fmt.Errorf("purchase.time_limit must be positive")
	}
	if p.UpdateInterval <= 0 {
		return fmt.Errorf("purchase.update_interval must be positive")
	}
	if p.CallTimeout <= 0 {
		return fmt.Errorf("purchase.call_timeout must be positive")
	}
	if p.TokenCode == "" {
		return fmt.Errorf("purchase.token_code is required")
	}
	if len(p.Utxo.Xpubs) == 0 {
		return fmt.Errorf("purchase.utxo.xpubs must contain at least one extended public key")
	}
	if p.Utxo.CurrentKeyGroup < 0 || p.Utxo.CurrentKeyGroup >= len(p.Utxo.Xpubs) {
		return fmt.Errorf("purchase.utxo.current_key_group %d out of range [0,%d)", p.Utxo.CurrentKeyGroup, len(p.Utxo.Xpubs))
	}
	if p.Account.DepositAccount == "" {
		return fmt.Errorf("purchase.account.deposit_account is required")
	}
	return nil
}

type RatesConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
}
