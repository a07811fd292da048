// Package config loads the service configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"heartify/ml"
)

const (
	ReloadPerRequest = "request"
	ReloadAtStartup  = "startup"
	ReloadOnChange   = "watch"

	defaultJWTSecret = "your-secret-key"
)

// Config mirrors config.yaml.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
}

type HTTPConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Timeout        time.Duration `yaml:"timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Console    bool   `yaml:"console"`
}

// ArtifactsConfig points at the fitted classifier and encoder. Reload is
// one of request, startup or watch.
type ArtifactsConfig struct {
	ModelPath   string `yaml:"model_path"`
	EncoderPath string `yaml:"encoder_path"`
	ModelType   string `yaml:"model_type"`
	Reload      string `yaml:"reload"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type AuthConfig struct {
	JWTSecret    string        `yaml:"jwt_secret"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
	CookieSecure bool          `yaml:"cookie_secure"`
	BcryptCost   int           `yaml:"bcrypt_cost"`
}

// MonitorConfig tunes the heart-rate monitor. A zero alert bound turns
// that alert off.
type MonitorConfig struct {
	LatestCacheSize   int           `yaml:"latest_cache_size"`
	RetentionDays     int           `yaml:"retention_days"`
	RetentionSchedule string        `yaml:"retention_schedule"`
	AlertHighBPM      float64       `yaml:"alert_high_bpm"`
	AlertLowBPM       float64       `yaml:"alert_low_bpm"`
	AlertCooldown     time.Duration `yaml:"alert_cooldown"`
	AlertWebhook      string        `yaml:"alert_webhook"`
}

// MQTTConfig enables device ingest when Broker is set.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	QoS      byte   `yaml:"qos"`
}

func Defaults() Config {
	return Config{
		HTTP: HTTPConfig{
			Host:           "0.0.0.0",
			Port:           5100,
			Timeout:        30 * time.Second,
			AllowedOrigins: []string{"*"},
			MaxBodyBytes:   1 << 20,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Console:    true,
		},
		Artifacts: ArtifactsConfig{
			ModelPath:   "rf_model.json",
			EncoderPath: "encoder.json",
			ModelType:   ml.ModelTypeRandomForest,
			Reload:      ReloadPerRequest,
		},
		Database: DatabaseConfig{
			Path: "heartify.db",
		},
		Auth: AuthConfig{
			JWTSecret: defaultJWTSecret,
			TokenTTL:  24 * time.Hour,
		},
		Monitor: MonitorConfig{
			LatestCacheSize:   128,
			RetentionSchedule: "@daily",
			AlertCooldown:     10 * time.Minute,
		},
		MQTT: MQTTConfig{
			Topic: "heartify/+/heart-rate",
			QoS:   1,
		},
	}
}

// Load reads path over the defaults. HEARTIFY_CONFIG overrides path;
// JWT_SECRET and HEARTIFY_DB override their settings.
func Load(path string) (*Config, error) {
	if envPath := os.Getenv("HEARTIFY_CONFIG"); envPath != "" {
		path = envPath
	}

	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if dbPath := os.Getenv("HEARTIFY_DB"); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	if c.HTTP.Timeout <= 0 {
		return errors.New("http.timeout must be positive")
	}
	if c.Artifacts.ModelPath == "" || c.Artifacts.EncoderPath == "" {
		return errors.New("artifacts.model_path and artifacts.encoder_path are required")
	}
	if !ml.SupportedModelType(c.Artifacts.ModelType) {
		return fmt.Errorf("artifacts.model_type %q is not supported", c.Artifacts.ModelType)
	}
	switch c.Artifacts.Reload {
	case ReloadPerRequest, ReloadAtStartup, ReloadOnChange:
	default:
		return fmt.Errorf("artifacts.reload %q must be request, startup or watch", c.Artifacts.Reload)
	}
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.token_ttl must be positive")
	}
	if c.Monitor.RetentionDays < 0 {
		return errors.New("monitor.retention_days cannot be negative")
	}
	if c.Monitor.AlertHighBPM < 0 || c.Monitor.AlertLowBPM < 0 {
		return errors.New("monitor alert bounds cannot be negative")
	}
	if c.Monitor.AlertHighBPM > 0 && c.Monitor.AlertLowBPM >= c.Monitor.AlertHighBPM {
		return errors.New("monitor.alert_low_bpm must be below monitor.alert_high_bpm")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos %d must be 0, 1 or 2", c.MQTT.QoS)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// DefaultSecret reports whether the JWT secret was never changed.
func (c *Config) DefaultSecret() bool {
	return c.Auth.JWTSecret == defaultJWTSecret
}
