// Package config loads the ambient application configuration: the handful
// of process-wide knobs (data directories, network tuning, log level) that
// sit above the per-user audio settings owned by audiosettings.Store.
package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/freely-audio/core/internal/platform"
)

type Config struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`

	Storage struct {
		CacheDir    string `mapstructure:"cache_dir"`
		HistoryPath string `mapstructure:"history_path"`
	} `mapstructure:"storage"`

	Network struct {
		RequestsPerSecond float64 `mapstructure:"requests_per_second"`
		BurstSize         int     `mapstructure:"burst_size"`
		TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
		Retries           int     `mapstructure:"retries"`
		UserAgent         string  `mapstructure:"user_agent"`
	} `mapstructure:"network"`

	Torrent struct {
		DataDir          string `mapstructure:"data_dir"`
		MaxConnsPerTorrent int  `mapstructure:"max_conns_per_torrent"`
	} `mapstructure:"torrent"`
}

// Load reads config.yaml from configPath (if set) or the platform config
// directory, falling back to defaults when no file is present.
func Load(configPath string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		configDir, err := platform.GetConfigDir()
		if err != nil {
			return nil, err
		}
		viper.AddConfigPath(configDir)
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("FREELY")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := ensureDirectories(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("debug", false)
	viper.SetDefault("log_level", "info")

	cacheDir, _ := platform.GetCacheDir()
	dataDir, _ := platform.GetDataDir()

	viper.SetDefault("storage.cache_dir", cacheDir)
	viper.SetDefault("storage.history_path", filepath.Join(dataDir, "history.db"))

	viper.SetDefault("network.requests_per_second", 5.0)
	viper.SetDefault("network.burst_size", 10)
	viper.SetDefault("network.timeout_seconds", 30)
	viper.SetDefault("network.retries", 3)
	viper.SetDefault("network.user_agent", "freely-core/1.0")

	viper.SetDefault("torrent.data_dir", filepath.Join(dataDir, "torrents"))
	viper.SetDefault("torrent.max_conns_per_torrent", 80)
}

func ensureDirectories(cfg *Config) error {
	dirs := []string{
		cfg.Storage.CacheDir,
		filepath.Dir(cfg.Storage.HistoryPath),
		cfg.Torrent.DataDir,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// Save persists the current viper state back to config.yaml in the
// platform config directory.
func (c *Config) Save() error {
	configDir, err := platform.GetConfigDir()
	if err != nil {
		return err
	}
	return viper.WriteConfigAs(filepath.Join(configDir, "config.yaml"))
}
