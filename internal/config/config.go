package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Link backends for joining the network
const (
	BackendNMCLI     = "nmcli"
	BackendInterface = "interface"
)

// Config holds all configuration for the device agent
type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	Sensor  SensorConfig  `yaml:"sensor"`
	WiFi    WiFiConfig    `yaml:"wifi"`
	Server  ServerConfig  `yaml:"server"`
	GPIO    GPIOConfig    `yaml:"gpio"`
	Logging LoggingConfig `yaml:"logging"`
}

// DeviceConfig contains control loop timing
type DeviceConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	SendInterval time.Duration `yaml:"send_interval"`
	GracePeriod  time.Duration `yaml:"grace_period"`
}

// SensorConfig contains sensor-specific settings
type SensorConfig struct {
	GPIOPin      int           `yaml:"gpio_pin"`
	ReadInterval time.Duration `yaml:"read_interval"`
	MaxRetries   int           `yaml:"max_retries"`
}

// WiFiConfig contains the network credentials and how to join
type WiFiConfig struct {
	Backend   string `yaml:"backend"`
	Interface string `yaml:"interface"`
	SSID      string `yaml:"ssid"`
	Password  string `yaml:"password"`
}

// ServerConfig contains connection settings for the report server.
// A negative ConnectTimeout waits for the network forever.
type ServerConfig struct {
	Host                 string        `yaml:"host"`
	Port                 int           `yaml:"port"`
	Fingerprint          string        `yaml:"fingerprint"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	MaxReconnectInterval time.Duration `yaml:"max_reconnect_interval"`
	RequestTimeout       time.Duration `yaml:"request_timeout"`
}

// GPIOConfig contains the switch and indicator lines (BCM offsets on Chip)
type GPIOConfig struct {
	Chip        string `yaml:"chip"`
	SwitchPin   int    `yaml:"switch_pin"`
	PowerLEDPin int    `yaml:"power_led_pin"`
	WifiLEDPin  int    `yaml:"wifi_led_pin"`
}

// LoadEnvFile loads KEY=value pairs from path into the process environment.
// A missing file is not an error; variables already set are left alone.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	yamlData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(yamlData, &config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	config.ApplyDefaults()
	config.OverrideFromEnv()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// ApplyDefaults sets default values for any unset fields
func (c *Config) ApplyDefaults() {
	if c.Device.PollInterval == 0 {
		c.Device.PollInterval = 100 * time.Millisecond
	}
	if c.Device.SendInterval == 0 {
		c.Device.SendInterval = 60 * time.Second
	}
	if c.Device.GracePeriod == 0 {
		c.Device.GracePeriod = 1 * time.Second
	}
	if c.Sensor.ReadInterval == 0 {
		c.Sensor.ReadInterval = 60 * time.Second
	}
	if c.Sensor.MaxRetries == 0 {
		c.Sensor.MaxRetries = 3
	}
	if c.WiFi.Backend == "" {
		c.WiFi.Backend = BackendNMCLI
	}
	if c.WiFi.Interface == "" {
		c.WiFi.Interface = "wlan0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 443
	}
	if c.Server.ConnectTimeout == 0 {
		c.Server.ConnectTimeout = 30 * time.Second
	}
	if c.Server.ReconnectInterval == 0 {
		c.Server.ReconnectInterval = 1 * time.Second
	}
	if c.Server.MaxReconnectInterval == 0 {
		c.Server.MaxReconnectInterval = 30 * time.Second
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 10 * time.Second
	}
	if c.GPIO.Chip == "" {
		c.GPIO.Chip = "gpiochip0"
	}
	c.Logging.applyDefaults()
}

// OverrideFromEnv overrides config values from environment variables
func (c *Config) OverrideFromEnv() {
	if v := os.Getenv("WIFI_SSID"); v != "" {
		c.WiFi.SSID = v
	}
	if v := os.Getenv("WIFI_PASSWORD"); v != "" {
		c.WiFi.Password = v
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("SERVER_FINGERPRINT"); v != "" {
		c.Server.Fingerprint = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.WiFi.Backend {
	case BackendNMCLI:
		if c.WiFi.SSID == "" {
			return fmt.Errorf("wifi ssid is required for the %s backend", BackendNMCLI)
		}
	case BackendInterface:
	default:
		return fmt.Errorf("unknown wifi backend %q", c.WiFi.Backend)
	}
	if c.WiFi.Interface == "" {
		return fmt.Errorf("wifi interface is required")
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}
	if err := checkFingerprint(c.Server.Fingerprint); err != nil {
		return err
	}
	if c.Server.ReconnectInterval <= 0 {
		return fmt.Errorf("reconnect interval must be positive")
	}
	if c.Server.MaxReconnectInterval < c.Server.ReconnectInterval {
		return fmt.Errorf("max reconnect interval must not be below reconnect interval")
	}
	if c.Sensor.GPIOPin <= 0 {
		return fmt.Errorf("sensor GPIO pin must be greater than 0")
	}
	if c.Sensor.ReadInterval < 1*time.Second {
		return fmt.Errorf("read interval must be at least 1 second")
	}
	if c.Device.SendInterval < 1*time.Second {
		return fmt.Errorf("send interval must be at least 1 second")
	}
	if c.Device.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.GPIO.SwitchPin <= 0 || c.GPIO.PowerLEDPin <= 0 || c.GPIO.WifiLEDPin <= 0 {
		return fmt.Errorf("switch and LED pins must be greater than 0")
	}
	if c.GPIO.SwitchPin == c.GPIO.PowerLEDPin || c.GPIO.SwitchPin == c.GPIO.WifiLEDPin || c.GPIO.PowerLEDPin == c.GPIO.WifiLEDPin {
		return fmt.Errorf("switch and LED pins must be distinct")
	}
	return c.Logging.validate()
}

// String returns a safe string representation (hides the wifi password)
func (c *Config) String() string {
	return fmt.Sprintf("Config{Device: %+v, Sensor: %+v, WiFi: [Backend=%s, Interface=%s, SSID=%s, Password=%s], Server: %+v, GPIO: %+v, Logging: %+v}",
		c.Device,
		c.Sensor,
		c.WiFi.Backend,
		c.WiFi.Interface,
		c.WiFi.SSID,
		maskToken(c.WiFi.Password),
		c.Server,
		c.GPIO,
		c.Logging,
	)
}

// checkFingerprint accepts a SHA-1 or SHA-256 digest in hex, with or without colons
func checkFingerprint(fp string) error {
	if fp == "" {
		return fmt.Errorf("server fingerprint is required")
	}
	raw, err := hex.DecodeString(strings.NewReplacer(":", "", " ", "").Replace(fp))
	if err != nil {
		return fmt.Errorf("server fingerprint is not hex: %w", err)
	}
	if len(raw) != 20 && len(raw) != 32 {
		return fmt.Errorf("server fingerprint must be a SHA-1 or SHA-256 digest, got %d bytes", len(raw))
	}
	return nil
}

// maskToken masks all but first 4 characters of a secret
func maskToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}
