package app

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/m3rciful/crewbot/bot/sms"
	coreconfig "github.com/m3rciful/crewbot/core/config"
	coredatabase "github.com/m3rciful/crewbot/core/database"
)

// AuthConfig bounds the authentication dialogue.
type AuthConfig struct {
	SessionTTLMinutes    int `yaml:"session_ttl_minutes" envconfig:"AUTH_SESSION_TTL_MINUTES" validate:"omitempty,min=1"`
	MaxCodeAttempts      int `yaml:"max_code_attempts" envconfig:"AUTH_MAX_CODE_ATTEMPTS" validate:"omitempty,min=1"`
	ResendWindowMinutes  int `yaml:"resend_window_minutes" envconfig:"AUTH_RESEND_WINDOW_MINUTES" validate:"omitempty,min=1"`
	SMSCooldownMinutes   int `yaml:"sms_cooldown_minutes" envconfig:"AUTH_SMS_COOLDOWN_MINUTES" validate:"omitempty,min=1"`
	SweepIntervalMinutes int `yaml:"sweep_interval_minutes" envconfig:"AUTH_SWEEP_INTERVAL_MINUTES" validate:"omitempty,min=1"`
}

// CourierConfig bounds the problem-order dialogue.
type CourierConfig struct {
	SessionTTLMinutes int `yaml:"session_ttl_minutes" envconfig:"COURIER_SESSION_TTL_MINUTES" validate:"omitempty,min=1"`
}

// BlobConfig locates photo storage.
type BlobConfig struct {
	Dir string `yaml:"dir" envconfig:"BLOB_DIR"`
}

// DedupConfig sets the duplicate-event suppression window.
type DedupConfig struct {
	WindowSeconds int `yaml:"window_seconds" envconfig:"DEDUP_WINDOW_SECONDS" validate:"omitempty,min=1"`
}

// Config aggregates the core bot configuration with the crewbot domain
// sections.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config `yaml:"database"`
	Auth     AuthConfig          `yaml:"auth"`
	Courier  CourierConfig       `yaml:"courier"`
	SMS      sms.Config          `yaml:"sms"`
	Blob     BlobConfig          `yaml:"blob"`
	Dedup    DedupConfig         `yaml:"dedup"`
}

// CoreConfig satisfies the runner's ConfigCarrier.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Config
}

// AuthTTL returns the auth session timeout.
func (c *Config) AuthTTL() time.Duration {
	return time.Duration(c.Auth.SessionTTLMinutes) * time.Minute
}

// CourierTTL returns the courier session timeout.
func (c *Config) CourierTTL() time.Duration {
	return time.Duration(c.Courier.SessionTTLMinutes) * time.Minute
}

// DedupWindow returns the duplicate suppression window.
func (c *Config) DedupWindow() time.Duration {
	return time.Duration(c.Dedup.WindowSeconds) * time.Second
}

// LoadConfig reads the YAML file, applies environment overrides, normalizes
// the core section, and validates the domain sections.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Auth.SessionTTLMinutes <= 0 {
		cfg.Auth.SessionTTLMinutes = 10
	}
	if cfg.Auth.MaxCodeAttempts <= 0 {
		cfg.Auth.MaxCodeAttempts = 10
	}
	if cfg.Auth.ResendWindowMinutes <= 0 {
		cfg.Auth.ResendWindowMinutes = 5
	}
	if cfg.Auth.SMSCooldownMinutes <= 0 {
		cfg.Auth.SMSCooldownMinutes = 30
	}
	if cfg.Auth.SweepIntervalMinutes <= 0 {
		cfg.Auth.SweepIntervalMinutes = 15
	}
	if cfg.Courier.SessionTTLMinutes <= 0 {
		cfg.Courier.SessionTTLMinutes = 30
	}
	if cfg.Dedup.WindowSeconds <= 0 {
		cfg.Dedup.WindowSeconds = 60
	}
	if cfg.Blob.Dir == "" {
		cfg.Blob.Dir = "data/photos"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxConnections <= 0 {
		cfg.Database.MaxConnections = 4
	}
}
