package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  host: localhost
  port: 3306
  user: club
  password: secret
  dbname: builda
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)

	assert.Equal(t, 7, cfg.Governance.VotingWindowDays)
	assert.Equal(t, float64(10), cfg.Governance.ExitFeePct)
	assert.Equal(t, float64(5), cfg.Governance.Safeguards.MaxOwnershipPct)
	assert.Equal(t, 2.0, cfg.Governance.Safeguards.MaxPriceIncreaseMultiplier)
	assert.Equal(t, 0.5, cfg.Governance.Safeguards.MaxPriceDecreaseMultiplier)
	assert.Equal(t, 30, cfg.Governance.Safeguards.VotingCooldownDays)
	assert.Equal(t, float64(51), cfg.Governance.Safeguards.QuorumPct)
	assert.Equal(t, float64(66), cfg.Governance.Safeguards.ThresholdPct)
	assert.Equal(t, float64(20), cfg.Governance.Safeguards.CircuitBreakerExitPct)

	assert.Equal(t, int64(100), cfg.Governance.Minting.MaxTokensPerMemberPerDay)
	assert.Equal(t, int64(2000), cfg.Governance.Minting.MaxTokensPerMemberPerMonth)
	assert.Equal(t, 0.20, cfg.Governance.Minting.MaxWorkTokenRatioOfCapital)
	assert.Equal(t, 3, cfg.Governance.Minting.RequiredApprovals)

	assert.True(t, cfg.Backup.Enabled)
	assert.Equal(t, 30, cfg.Backup.RetentionDays)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
governance:
  voting_window_days: 14
  safeguards:
    max_ownership_pct: 10
  minting:
    required_approvals: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 14, cfg.Governance.VotingWindowDays)
	assert.Equal(t, float64(10), cfg.Governance.Safeguards.MaxOwnershipPct)
	assert.Equal(t, 5, cfg.Governance.Minting.RequiredApprovals)

	// Keys not overridden keep their defaults.
	assert.Equal(t, float64(66), cfg.Governance.Safeguards.ThresholdPct)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{
		Host: "db.internal", Port: 3307,
		User: "club", Password: "secret", DBName: "builda",
	}
	assert.Equal(t,
		"club:secret@tcp(db.internal:3307)/builda?charset=utf8mb4&parseTime=True&loc=Local",
		d.DSN())
}
