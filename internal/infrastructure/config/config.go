package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file used when NVDISPLAY_CONFIG is unset.
const DefaultPath = "configs/config.yaml"

// minJWTSecretLength is the shortest accepted JWT secret.
const minJWTSecretLength = 32

// Config is the root configuration structure for nvdisplay.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Fallback  FallbackConfig  `yaml:"fallback"`
	Cache     CacheConfig     `yaml:"cache"`
	Hotplug   HotplugConfig   `yaml:"hotplug"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// DeviceConfig contains NVKMS device session settings.
type DeviceConfig struct {
	// Path is the device node. Default: /dev/nvidia-modeset.
	Path string `yaml:"path"`

	// DriverVersion is sent with the device allocation and must match the
	// loaded kernel module. Empty reads it from DriverInfoPath.
	DriverVersion string `yaml:"driver_version"`

	// DriverInfoPath is the kernel module version file.
	DriverInfoPath string `yaml:"driver_info_path"`

	// DeviceID selects the GPU.
	DeviceID uint32 `yaml:"device_id"`

	// OpTimeout bounds each session operation; expiry is a transient error.
	OpTimeout time.Duration `yaml:"op_timeout"`

	// RetryBackoff is the pause before retrying a transient failure.
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// Emulate replaces the device node with an in-memory emulator.
	Emulate bool `yaml:"emulate"`
}

// FallbackConfig contains nvidia-settings fallback settings.
type FallbackConfig struct {
	Enabled bool   `yaml:"enabled"`
	Binary  string `yaml:"binary"`

	// CtrlDisplay is passed as --ctrl-display when set (e.g. ":0").
	CtrlDisplay string `yaml:"ctrl_display"`

	// Timeout bounds one tool invocation.
	Timeout time.Duration `yaml:"timeout"`
}

// CacheConfig contains attribute cache settings.
type CacheConfig struct {
	MaxAge time.Duration `yaml:"max_age"`
}

// HotplugConfig contains availability tracking settings.
type HotplugConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Debounce     time.Duration `yaml:"debounce"`
}

// DatabaseConfig contains SQLite database settings for the audit trail.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// StatusInterval is how often the retained status is republished.
	StatusInterval time.Duration `yaml:"status_interval"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains the secret that signs tokens accepted by write endpoints.
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// Load reads configuration from a YAML file and applies environment
// variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern NVDISPLAY_SECTION_KEY, for
// example NVDISPLAY_DEVICE_PATH or NVDISPLAY_API_PORT.
//
// Parameters:
//   - path: YAML configuration file
//
// Returns:
//   - *Config: loaded and validated configuration
//   - error: if the file cannot be read or parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults
// with environment overrides. One-shot commands work without a file.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	cfg = defaultConfig()
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// PathFromEnv returns NVDISPLAY_CONFIG or DefaultPath.
func PathFromEnv() string {
	if v := os.Getenv("NVDISPLAY_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Path:           "/dev/nvidia-modeset",
			DriverInfoPath: "/proc/driver/nvidia/version",
			OpTimeout:      2 * time.Second,
			RetryBackoff:   50 * time.Millisecond,
		},
		Fallback: FallbackConfig{
			Enabled: true,
			Binary:  "nvidia-settings",
			Timeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			MaxAge: 5 * time.Second,
		},
		Hotplug: HotplugConfig{
			PollInterval: time.Second,
			Debounce:     2 * time.Second,
		},
		Database: DatabaseConfig{
			Path:        "./data/nvdisplay.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "nvdisplay",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			StatusInterval: 30 * time.Second,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8095,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/api/v1/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "nvdisplay",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: NVDISPLAY_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// Device
	if v := os.Getenv("NVDISPLAY_DEVICE_PATH"); v != "" {
		cfg.Device.Path = v
	}
	if v := os.Getenv("NVDISPLAY_DEVICE_DRIVER_VERSION"); v != "" {
		cfg.Device.DriverVersion = v
	}
	if v := os.Getenv("NVDISPLAY_DEVICE_EMULATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("NVDISPLAY_DEVICE_EMULATE: %w", err)
		}
		cfg.Device.Emulate = b
	}

	// Fallback
	if v := os.Getenv("NVDISPLAY_FALLBACK_BINARY"); v != "" {
		cfg.Fallback.Binary = v
	}
	if v := os.Getenv("NVDISPLAY_FALLBACK_CTRL_DISPLAY"); v != "" {
		cfg.Fallback.CtrlDisplay = v
	}

	// Database
	if v := os.Getenv("NVDISPLAY_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("NVDISPLAY_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("NVDISPLAY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("NVDISPLAY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("NVDISPLAY_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("NVDISPLAY_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("NVDISPLAY_API_PORT: %w", err)
		}
		cfg.API.Port = port
	}

	// InfluxDB
	if v := os.Getenv("NVDISPLAY_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("NVDISPLAY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Security - JWT secret (always set via the environment in production)
	if v := os.Getenv("NVDISPLAY_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Device.Path == "" && !c.Device.Emulate {
		errs = append(errs, "device.path is required")
	}
	if c.Device.OpTimeout < 0 {
		errs = append(errs, "device.op_timeout must not be negative")
	}
	if c.Fallback.Enabled && c.Fallback.Binary == "" {
		errs = append(errs, "fallback.binary is required when the fallback is enabled")
	}
	if c.Cache.MaxAge < 0 {
		errs = append(errs, "cache.max_age must not be negative")
	}
	if c.Hotplug.PollInterval <= 0 {
		errs = append(errs, "hotplug.poll_interval must be positive")
	}
	if c.Hotplug.Debounce < 0 {
		errs = append(errs, "hotplug.debounce must not be negative")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the audit trail is enabled")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Security.JWT.Secret != "" && len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ValidateServe checks what the API server needs on top of Validate.
// Write endpoints are authenticated, so a JWT secret is required.
func (c *Config) ValidateServe() error {
	if c.Security.JWT.Secret == "" {
		return errors.New("security.jwt.secret is required to serve the API (set NVDISPLAY_JWT_SECRET)")
	}
	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
