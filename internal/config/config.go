package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

type Config struct {
	Region                 string `mapstructure:"region"`
	DataDir                string `mapstructure:"data_dir"`
	DownloadDir            string `mapstructure:"download_dir"`
	MaxConcurrentDownloads int    `mapstructure:"max_concurrent_downloads"`
	DownloadQueueSize      int    `mapstructure:"download_queue_size"`
	HTTPTimeoutSeconds     int    `mapstructure:"http_timeout_seconds"`
	InstallTimeoutSeconds  int    `mapstructure:"install_timeout_seconds"`
	ListenAddr             string `mapstructure:"listen_addr"`
	KeyringBackend         string `mapstructure:"keyring_backend"`
	GUID                   string `mapstructure:"guid"`
	LogLevel               string `mapstructure:"log_level"`
	LogFormat              string `mapstructure:"log_format"`
	LogFile                string `mapstructure:"log_file"`
}

func Default() *Config {
	return &Config{
		Region:                 "US",
		DataDir:                defaultDataDir(),
		DownloadDir:            ".",
		MaxConcurrentDownloads: 3,
		DownloadQueueSize:      64,
		HTTPTimeoutSeconds:     30,
		InstallTimeoutSeconds:  300,
		ListenAddr:             "127.0.0.1:0",
		KeyringBackend:         "auto",
		LogLevel:               "info",
		LogFormat:              "text",
	}
}

func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("APPFLIGHT")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func Save(cfg *Config) error {
	return SaveTo(cfg, "")
}

func SaveTo(cfg *Config, cfgFile string) error {
	viper.Set("region", cfg.Region)
	viper.Set("data_dir", cfg.DataDir)
	viper.Set("download_dir", cfg.DownloadDir)
	viper.Set("max_concurrent_downloads", cfg.MaxConcurrentDownloads)
	viper.Set("download_queue_size", cfg.DownloadQueueSize)
	viper.Set("http_timeout_seconds", cfg.HTTPTimeoutSeconds)
	viper.Set("install_timeout_seconds", cfg.InstallTimeoutSeconds)
	viper.Set("listen_addr", cfg.ListenAddr)
	viper.Set("keyring_backend", cfg.KeyringBackend)
	viper.Set("guid", cfg.GUID)
	viper.Set("log_level", cfg.LogLevel)
	viper.Set("log_format", cfg.LogFormat)
	viper.Set("log_file", cfg.LogFile)

	var cfgPath string
	if cfgFile != "" {
		cfgPath = cfgFile
		dir := filepath.Dir(cfgPath)
		if dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return err
			}
		}
	} else {
		cfgPath = filepath.Join(configDir(), "config.yaml")
		if err := os.MkdirAll(configDir(), 0700); err != nil {
			return err
		}
	}

	if err := viper.WriteConfigAs(cfgPath); err != nil {
		return err
	}

	// Restrict config file to owner-only access
	return os.Chmod(cfgPath, 0600)
}

func configDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "appflight")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".appflight")
}

func defaultDataDir() string {
	if runtime.GOOS == "windows" {
		if dir, err := os.UserCacheDir(); err == nil {
			return filepath.Join(dir, "AppFlight")
		}
	}
	return filepath.Join(configDir(), "data")
}
