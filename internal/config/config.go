package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type TenantConfig struct {
	AppID         string `mapstructure:"app_id"`
	Name          string `mapstructure:"name"`
	SigningSecret string `mapstructure:"signing_secret"`
	EncryptionKey string `mapstructure:"encryption_key"` // 32 bytes, hex
	WebhookURL    string `mapstructure:"webhook_url"`
	WakeURL       string `mapstructure:"wake_url"`
	ServerURL     string `mapstructure:"server_url"`
	MediaURL      string `mapstructure:"media_url"`
	MediaKey      string `mapstructure:"media_key"`
	MediaSecret   string `mapstructure:"media_secret"`
	RedisDB       int    `mapstructure:"redis_db"`
}

type Config struct {
	Mode      string `mapstructure:"mode"`
	Port      int    `mapstructure:"port"`
	RedisAddr string `mapstructure:"redis_addr"`

	BillingInterval time.Duration `mapstructure:"billing_interval"`
	WebhookTimeout  time.Duration `mapstructure:"webhook_timeout"`
	BillingFailOpen bool          `mapstructure:"billing_fail_open"`

	RoomTokenTTL   time.Duration `mapstructure:"room_token_ttl"`
	SignalTokenTTL time.Duration `mapstructure:"signal_token_ttl"`
	RingTimeout    time.Duration `mapstructure:"ring_timeout"`

	CallAttemptLimit  int           `mapstructure:"call_attempt_limit"`
	CallAttemptWindow time.Duration `mapstructure:"call_attempt_window"`

	Tenants []TenantConfig `mapstructure:"tenants"`
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
	v.SetDefault("billing_interval", "60s")
	v.SetDefault("webhook_timeout", "10s")
	v.SetDefault("billing_fail_open", true)
	v.SetDefault("room_token_ttl", "24h")
	v.SetDefault("signal_token_ttl", "12h")
	v.SetDefault("ring_timeout", "60s")
	v.SetDefault("call_attempt_limit", 10)
	v.SetDefault("call_attempt_window", "1m")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Tenants: %d\n", cfg.Mode, cfg.Port, len(cfg.Tenants))
	return &cfg, nil
}
