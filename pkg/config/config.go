package config

// Package config provides a reusable loader for fomolt3d node configuration
// files and environment variables.
//
// Version: v0.1.0

import (
	"fmt"

	"github.com/spf13/viper"

	"fomolt3d/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified configuration for a fomolt3d node process: where its
// ledger persists, what it listens on, and how it logs.
type Config struct {
	Ledger struct {
		WALPath          string `mapstructure:"wal_path" json:"wal_path"`
		SnapshotPath     string `mapstructure:"snapshot_path" json:"snapshot_path"`
		SnapshotInterval int    `mapstructure:"snapshot_interval" json:"snapshot_interval"`
	} `mapstructure:"ledger" json:"ledger"`

	Game struct {
		BasePrice          uint64 `mapstructure:"base_price" json:"base_price"`
		PriceIncrement     uint64 `mapstructure:"price_increment" json:"price_increment"`
		TimerExtensionSecs int64  `mapstructure:"timer_extension_secs" json:"timer_extension_secs"`
		MaxTimerSecs       int64  `mapstructure:"max_timer_secs" json:"max_timer_secs"`
		WinnerBps          uint64 `mapstructure:"winner_bps" json:"winner_bps"`
		DividendBps        uint64 `mapstructure:"dividend_bps" json:"dividend_bps"`
		NextRoundBps       uint64 `mapstructure:"next_round_bps" json:"next_round_bps"`
		ProtocolFeeBps     uint64 `mapstructure:"protocol_fee_bps" json:"protocol_fee_bps"`
		ReferralBonusBps   uint64 `mapstructure:"referral_bonus_bps" json:"referral_bonus_bps"`
	} `mapstructure:"game" json:"game"`

	Server struct {
		ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	} `mapstructure:"server" json:"server"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("ledger.snapshot_interval", 1000)

	// A node with no config/default.yaml on disk still runs on the defaults
	// above plus whatever environment overrides the caller layers on top —
	// config is optional here the same way it is in the CLI subcommands.
	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, utils.Wrap(err, "load config")
		}
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
			}
		}
	}

	viper.AutomaticEnv() // picks up from .env

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the FOMOLT_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("FOMOLT_ENV", ""))
}
