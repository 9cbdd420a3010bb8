package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config is the server configuration, loaded from yaml with env overrides.
type Config struct {
	Addr           string        `mapstructure:"addr"`
	DBPath         string        `mapstructure:"db_path"`
	ServerName     string        `mapstructure:"server_name"`
	SlowModeWindow time.Duration `mapstructure:"slow_mode_window"`
	Blocklist      []string      `mapstructure:"blocklist"`
	Debug          bool          `mapstructure:"debug"`
}

// Load reads config/config.<env>.yaml (env from CONFIG_ENV, default "dev"),
// falling back to defaults when the file is absent.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	v.SetConfigFile(fmt.Sprintf("config/config.%s.yaml", env))
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("addr", ":8080")
	v.SetDefault("db_path", "quickchat.db")
	v.SetDefault("server_name", "quickchat")
	v.SetDefault("slow_mode_window", "3s")
	v.SetDefault("blocklist", []string{})
	v.SetDefault("debug", false)

	v.SetEnvPrefix("QUICKCHAT")
	v.AutomaticEnv()

	// A missing config file is fine: defaults plus env are a complete
	// configuration on their own.
	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}
