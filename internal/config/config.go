package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Server     ServerConfig     `mapstructure:"server"`
	Governance GovernanceConfig `mapstructure:"governance"`
	Backup     BackupConfig     `mapstructure:"backup"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.User, d.Password, d.Host, d.Port, d.DBName)
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

// GovernanceConfig carries the engine-wide defaults applied to newly
// created clubs; each club gets its own admin-editable copy.
type GovernanceConfig struct {
	VotingWindowDays int     `mapstructure:"voting_window_days"`
	ExitFeePct       float64 `mapstructure:"exit_fee_pct"`
	SweepCron        string  `mapstructure:"sweep_cron"`

	Safeguards SafeguardDefaults `mapstructure:"safeguards"`
	Minting    MintingDefaults   `mapstructure:"minting"`
}

type SafeguardDefaults struct {
	MaxOwnershipPct            float64 `mapstructure:"max_ownership_pct"`
	MaxPriceIncreaseMultiplier float64 `mapstructure:"max_price_increase_multiplier"`
	MaxPriceDecreaseMultiplier float64 `mapstructure:"max_price_decrease_multiplier"`
	MinPriceFloor              float64 `mapstructure:"min_price_floor"`
	VotingCooldownDays         int     `mapstructure:"voting_cooldown_days"`
	QuorumPct                  float64 `mapstructure:"quorum_pct"`
	ThresholdPct               float64 `mapstructure:"threshold_pct"`
	CircuitBreakerExitPct      float64 `mapstructure:"circuit_breaker_exit_pct"`
}

type MintingDefaults struct {
	MaxTokensPerMemberPerDay   int64   `mapstructure:"max_tokens_per_member_per_day"`
	MaxTokensPerMemberPerMonth int64   `mapstructure:"max_tokens_per_member_per_month"`
	MaxWorkTokenRatioOfCapital float64 `mapstructure:"max_work_token_ratio_of_capital"`
	RequiredApprovals          int     `mapstructure:"required_approvals"`
}

type BackupConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Cron          string `mapstructure:"cron"`
	RetentionDays int    `mapstructure:"retention_days"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15)
	v.SetDefault("server.write_timeout", 15)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("governance.voting_window_days", 7)
	v.SetDefault("governance.exit_fee_pct", 10)
	v.SetDefault("governance.sweep_cron", "0 */5 * * * *")

	v.SetDefault("governance.safeguards.max_ownership_pct", 5)
	v.SetDefault("governance.safeguards.max_price_increase_multiplier", 2.0)
	v.SetDefault("governance.safeguards.max_price_decrease_multiplier", 0.5)
	v.SetDefault("governance.safeguards.min_price_floor", 10)
	v.SetDefault("governance.safeguards.voting_cooldown_days", 30)
	v.SetDefault("governance.safeguards.quorum_pct", 51)
	v.SetDefault("governance.safeguards.threshold_pct", 66)
	v.SetDefault("governance.safeguards.circuit_breaker_exit_pct", 20)

	v.SetDefault("governance.minting.max_tokens_per_member_per_day", 100)
	v.SetDefault("governance.minting.max_tokens_per_member_per_month", 2000)
	v.SetDefault("governance.minting.max_work_token_ratio_of_capital", 0.20)
	v.SetDefault("governance.minting.required_approvals", 3)

	v.SetDefault("backup.enabled", true)
	v.SetDefault("backup.cron", "0 0 3 * * *")
	v.SetDefault("backup.retention_days", 30)
}
