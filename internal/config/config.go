package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode        string        `mapstructure:"mode"`
	Port        int           `mapstructure:"port"`
	ReadLimit   int64         `mapstructure:"read_limit"`
	PingPeriod  time.Duration `mapstructure:"ping_period"`
	Secret      string        `mapstructure:"secret"`
	UnlockToken string        `mapstructure:"unlock_token"`

	FreeMessageLimit int           `mapstructure:"free_message_limit"`
	RoomBuffer       int           `mapstructure:"room_buffer"`
	RingTimeout      time.Duration `mapstructure:"ring_timeout"`
	IdleTTL          time.Duration `mapstructure:"idle_ttl"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	RateLimit        int           `mapstructure:"rate_limit"`
	RateInterval     time.Duration `mapstructure:"rate_interval"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("free_message_limit", 5)
	v.SetDefault("room_buffer", 256)
	v.SetDefault("ring_timeout", "45s")
	v.SetDefault("idle_ttl", "10m")
	v.SetDefault("sweep_interval", "1m")
	v.SetDefault("rate_limit", 10)
	v.SetDefault("rate_interval", "10s")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Free limit: %d\n", cfg.Mode, cfg.Port, cfg.FreeMessageLimit)
	return &cfg, nil
}
