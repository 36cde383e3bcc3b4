package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gomoncli/zadarma-bridge/internal/dialplan"
)

type Config struct {
	Listen   string         `yaml:"listen"`
	LogLevel string         `yaml:"log_level"`
	Zadarma  ZadarmaConfig  `yaml:"zadarma"`
	Tracking TrackingConfig `yaml:"tracking"`
	Dialplan dialplan.Table `yaml:"dialplan"`
	SMS      SMSConfig      `yaml:"sms"`
	Telegram TelegramConfig `yaml:"telegram"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
}

type ZadarmaConfig struct {
	APIURL    string `yaml:"api_url"`
	Key       string `yaml:"key"`
	Secret    string `yaml:"secret"`
	MainPhone string `yaml:"main_phone"`
}

type TrackingConfig struct {
	Path               string `yaml:"path"`
	TTLSeconds         int    `yaml:"ttl_seconds"`
	MaxAgeSeconds      int    `yaml:"max_age_seconds"`
	LockTimeoutSeconds int    `yaml:"lock_timeout_seconds"`
}

func (c *TrackingConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

func (c *TrackingConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeSeconds) * time.Second
}

func (c *TrackingConfig) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutSeconds) * time.Second
}

type SMSConfig struct {
	APIURL  string `yaml:"api_url"`
	Key     string `yaml:"key"`
	Source  string `yaml:"source"`
	Message string `yaml:"message"`
}

type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID string `yaml:"chat_id"`
}

// Enabled reports whether operator notifications are configured.
func (c *TelegramConfig) Enabled() bool {
	return c.Token != "" && c.ChatID != ""
}

type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
}

// Enabled reports whether MQTT fan-out is configured.
func (c *MQTTConfig) Enabled() bool {
	return c.Broker != ""
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{
		Listen:   ":8088",
		LogLevel: "info",
		Zadarma: ZadarmaConfig{
			APIURL: "https://api.zadarma.com",
		},
		Tracking: TrackingConfig{
			Path:               "/var/lib/zadarma-bridge/pending.json",
			TTLSeconds:         120,
			MaxAgeSeconds:      300,
			LockTimeoutSeconds: 3,
		},
		SMS: SMSConfig{
			APIURL: "https://sms-fly.ua/api/v2/api.php",
		},
		MQTT: MQTTConfig{
			ClientID:    "zadarma-bridge",
			TopicPrefix: "zadarma",
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv fills secrets from the environment when the file leaves them
// empty, so credentials can stay out of the config file.
func (c *Config) applyEnv() {
	if c.Zadarma.Key == "" {
		c.Zadarma.Key = os.Getenv("ZADARMA_API_KEY")
	}
	if c.Zadarma.Secret == "" {
		c.Zadarma.Secret = os.Getenv("ZADARMA_API_SECRET")
	}
	if c.SMS.Key == "" {
		c.SMS.Key = os.Getenv("SMSFLY_API_KEY")
	}
	if c.Telegram.Token == "" {
		c.Telegram.Token = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
}

func (c *Config) validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if c.Zadarma.Key == "" {
		return fmt.Errorf("zadarma.key is required")
	}
	if c.Zadarma.Secret == "" {
		return fmt.Errorf("zadarma.secret is required")
	}
	if c.Zadarma.MainPhone == "" {
		return fmt.Errorf("zadarma.main_phone is required")
	}
	if c.Tracking.Path == "" {
		return fmt.Errorf("tracking.path is required")
	}
	if c.Tracking.TTLSeconds < 1 {
		return fmt.Errorf("tracking.ttl_seconds must be positive, got %d", c.Tracking.TTLSeconds)
	}
	if c.Tracking.MaxAgeSeconds < c.Tracking.TTLSeconds {
		return fmt.Errorf("tracking.max_age_seconds must be >= tracking.ttl_seconds, got %d < %d",
			c.Tracking.MaxAgeSeconds, c.Tracking.TTLSeconds)
	}
	if c.Tracking.LockTimeoutSeconds < 1 {
		return fmt.Errorf("tracking.lock_timeout_seconds must be positive, got %d", c.Tracking.LockTimeoutSeconds)
	}
	if len(c.Dialplan) == 0 {
		return fmt.Errorf("dialplan must define at least one code")
	}
	for code, entry := range c.Dialplan {
		if !entry.Action.Valid() {
			return fmt.Errorf("dialplan.%s: unknown action %q", code, entry.Action)
		}
		if entry.Action.Relay() && entry.Target == "" {
			return fmt.Errorf("dialplan.%s: target is required for action %s", code, entry.Action)
		}
		if entry.Action == dialplan.ActionSendSMS && c.SMS.Key == "" {
			return fmt.Errorf("dialplan.%s: sms.key is required for action send_sms", code)
		}
	}
	if (c.Telegram.Token == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.token and telegram.chat_id must be set together")
	}
	return nil
}
