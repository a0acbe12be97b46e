package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  port: 9090
database:
  driver: mysql
  host: db.internal
purchase:
  time_limit: 45m
  utxo:
    xpubs:
      - xpubA
      - xpubB
    current_key_group: 1
  account:
    deposit_account: iscdeposit11
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	cfg, err := Load("", writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Host)

	assert.Equal(t, 45*time.Minute, cfg.Purchase.TimeLimit)
	assert.Equal(t, time.Minute, cfg.Purchase.UpdateInterval)
	assert.Equal(t, 15*time.Second, cfg.Purchase.CallTimeout)
	assert.Equal(t, []string{"xpubA", "xpubB"}, cfg.Purchase.Utxo.Xpubs)
	assert.Equal(t, 1, cfg.Purchase.Utxo.CurrentKeyGroup)
	assert.Equal(t, "BTC", cfg.Purchase.Utxo.CurrencyCode)
	assert.Equal(t, "EOS", cfg.Purchase.Account.CurrencyCode)
	assert.Equal(t, int32(4), cfg.Purchase.TokenDecimals)
	assert.Equal(t, 5*time.Minute, cfg.Rates.CacheTTL)
	require.NoError(t, cfg.Purchase.Validate())

	assert.Same(t, cfg, Get())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PURCHASE_DATABASE_HOST", "override.internal")
	t.Setenv("PURCHASE_PURCHASE_UPDATE_INTERVAL", "10s")

	cfg, err := Load("release", writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "override.internal", cfg.Database.Host)
	assert.Equal(t, 10*time.Second, cfg.Purchase.UpdateInterval)
	assert.Equal(t, "release", cfg.Server.Mode)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load("", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidPurchaseConfig(t *testing.T) {
	cfg, err := Load("", writeConfig(t, "server:\n  port: 1\n"))
	require.NoError(t, err)
	assert.Error(t, cfg.Purchase.Validate(), "xpubs are required")
}
