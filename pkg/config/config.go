// Package config provides a reusable loader for statecore configuration
// files and environment variables. It is versioned so that applications can
// depend on a stable API contract.
//
// Version: v0.1.0
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/meridianchain/statecore/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config represents the unified configuration for a statecore node. It
// mirrors the structure of the YAML files under cmd/config.
type Config struct {
	Chain struct {
		ID                 string `mapstructure:"id" json:"id"`
		GenesisFile        string `mapstructure:"genesis_file" json:"genesis_file"`
		EpochDurationMS    int64  `mapstructure:"epoch_duration_ms" json:"epoch_duration_ms"`
		EpochsPerYear      int    `mapstructure:"epochs_per_year" json:"epochs_per_year"`
		ForwardEpochWindow int    `mapstructure:"forward_epoch_window" json:"forward_epoch_window"`
		ProposersPerCall   int    `mapstructure:"proposers_per_call" json:"proposers_per_call"`
	} `mapstructure:"chain" json:"chain"`

	Store struct {
		DataDir          string `mapstructure:"data_dir" json:"data_dir"`
		WALFile          string `mapstructure:"wal_file" json:"wal_file"`
		SnapshotFile     string `mapstructure:"snapshot_file" json:"snapshot_file"`
		SnapshotInterval int    `mapstructure:"snapshot_interval" json:"snapshot_interval"`
	} `mapstructure:"store" json:"store"`

	Metrics struct {
		Enabled bool   `mapstructure:"enabled" json:"enabled"`
		Addr    string `mapstructure:"addr" json:"addr"`
	} `mapstructure:"metrics" json:"metrics"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and
// returned.
//
// The function uses the provided environment name to merge additional
// config files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // env vars named after the upper-cased keys override them; no prefix is set

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the STATECORE_ENV environment
// variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("STATECORE_ENV", ""))
}
