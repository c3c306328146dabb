// Package config loads and validates the tracksrv configuration. Settings
// come from a TOML file; a small set of secrets and deployment overrides can
// come from the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

const Version = "1.0"

// TrackingConfig holds session lifecycle configuration
type TrackingConfig struct {
	HeartbeatTimeout string `toml:"heartbeat_timeout" env:"TRACKSRV_HEARTBEAT_TIMEOUT"` // Max silence before an active session is interrupted
	SweepInterval    string `toml:"sweep_interval" env:"TRACKSRV_SWEEP_INTERVAL"`       // How often the timeout sweep runs
	RoundingMinutes  int    `toml:"rounding_minutes"`                                   // Billing rounding block in minutes; 0 disables
	MaxMetaKeys      int    `toml:"max_meta_keys"`                                      // Maximum number of keys in the session meta bag
}

// GetHeartbeatTimeout returns the heartbeat timeout as time.Duration
func (t *TrackingConfig) GetHeartbeatTimeout() (time.Duration, error) {
	return time.ParseDuration(t.HeartbeatTimeout)
}

// GetHeartbeatTimeoutOrDefault returns the heartbeat timeout as time.Duration
// or panics if the value is invalid
func (t *TrackingConfig) GetHeartbeatTimeoutOrDefault() time.Duration {
	duration, err := t.GetHeartbeatTimeout()
	if err != nil {
		panic(fmt.Sprintf("invalid heartbeat timeout: %v", err))
	}
	return duration
}

// GetSweepInterval returns the sweep interval as time.Duration
func (t *TrackingConfig) GetSweepInterval() (time.Duration, error) {
	return time.ParseDuration(t.SweepInterval)
}

// GetSweepIntervalOrDefault returns the sweep interval as time.Duration
// or panics if the value is invalid
func (t *TrackingConfig) GetSweepIntervalOrDefault() time.Duration {
	duration, err := t.GetSweepInterval()
	if err != nil {
		panic(fmt.Sprintf("invalid sweep interval: %v", err))
	}
	return duration
}

// DBConfig holds database configuration. The driver selects the store
// implementation: "postgres" for production, "memory" for single-node
// evaluation.
type DBConfig struct {
	Driver   string `toml:"driver"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	DBName   string `toml:"dbname"`
	User     string `toml:"user"`
	Password string `toml:"-" env:"TRACKSRV_DB_PASSWORD"`
	SSLMode  string `toml:"sslmode"`
}

// ConfigParam holds all configuration parameters for the tracking service
type ConfigParam struct {
	FormatVersion string `toml:"format_version"` // Version of this configuration file format

	ServerHostName string `toml:"server_hostname"`
	ServerPort     string `toml:"server_port" env:"TRACKSRV_PORT"`
	HandleCORS     bool   `toml:"handle_cors"`

	Tracking TrackingConfig `toml:"tracking"`

	DB DBConfig `toml:"db"`
}

var cfg *ConfigParam

// Config returns the current configuration
func Config() *ConfigParam {
	return cfg
}

// DSN returns the database connection string
func (c *ConfigParam) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.DBName, c.DB.SSLMode)
}

// ValidateConfig checks if all required configuration values are present and valid
func ValidateConfig(cfg *ConfigParam) error {
	if err := validateConfigFormatVersion(cfg); err != nil {
		return err
	}
	if err := validateServerConfig(cfg); err != nil {
		return err
	}
	if err := validateTrackingConfig(cfg); err != nil {
		return err
	}
	if err := validateDBConfig(cfg); err != nil {
		return err
	}
	return nil
}

func validateConfigFormatVersion(cfg *ConfigParam) error {
	if cfg.FormatVersion != Version {
		return fmt.Errorf("unsupported config file format version: %s", cfg.FormatVersion)
	}
	return nil
}

func validateServerConfig(cfg *ConfigParam) error {
	if cfg.ServerPort == "" {
		return fmt.Errorf("server_port is required")
	}
	return nil
}

func validateTrackingConfig(cfg *ConfigParam) error {
	if cfg.Tracking.HeartbeatTimeout == "" {
		return fmt.Errorf("tracking.heartbeat_timeout is required")
	}
	if d, err := cfg.Tracking.GetHeartbeatTimeout(); err != nil || d <= 0 {
		return fmt.Errorf("invalid tracking.heartbeat_timeout: %s", cfg.Tracking.HeartbeatTimeout)
	}
	if cfg.Tracking.SweepInterval == "" {
		return fmt.Errorf("tracking.sweep_interval is required")
	}
	if d, err := cfg.Tracking.GetSweepInterval(); err != nil || d <= 0 {
		return fmt.Errorf("invalid tracking.sweep_interval: %s", cfg.Tracking.SweepInterval)
	}
	if cfg.Tracking.RoundingMinutes < 0 {
		return fmt.Errorf("tracking.rounding_minutes must not be negative")
	}
	if cfg.Tracking.MaxMetaKeys <= 0 {
		return fmt.Errorf("tracking.max_meta_keys must be positive")
	}
	return nil
}

func validateDBConfig(cfg *ConfigParam) error {
	switch cfg.DB.Driver {
	case "memory":
		return nil
	case "postgres":
	default:
		return fmt.Errorf("unknown db.driver: %s", cfg.DB.Driver)
	}
	if cfg.DB.Host == "" {
		return fmt.Errorf("db.host is required")
	}
	if cfg.DB.Port <= 0 {
		return fmt.Errorf("db.port must be positive")
	}
	if cfg.DB.DBName == "" {
		return fmt.Errorf("db.dbname is required")
	}
	if cfg.DB.User == "" {
		return fmt.Errorf("db.user is required")
	}
	return nil
}

// LoadConfig loads configuration from a file, then applies environment
// overrides.
func LoadConfig(filename string) error {
	if filename == "" {
		return fmt.Errorf("config filename is required")
	}

	content, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	cfg = &ConfigParam{}
	if _, err := toml.Decode(string(content), cfg); err != nil {
		return fmt.Errorf("error parsing config file: %v", err)
	}

	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("error applying environment overrides: %v", err)
	}

	if err := ValidateConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %v", err)
	}

	return nil
}

// TestInit installs an in-memory configuration for test suites.
func TestInit() {
	cfg = &ConfigParam{
		FormatVersion: Version,
		ServerPort:    "8195",
		Tracking: TrackingConfig{
			HeartbeatTimeout: "90s",
			SweepInterval:    "30s",
			RoundingMinutes:  15,
			MaxMetaKeys:      16,
		},
		DB: DBConfig{
			Driver: "memory",
		},
	}
}
