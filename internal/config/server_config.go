package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds ingest server configuration
type AppConfig struct {
	Server   ServerSettings   `yaml:"server"`
	Database DatabaseSettings `yaml:"database"`
	MQTT     MQTTSettings     `yaml:"mqtt"`
	Logging  LoggingConfig    `yaml:"logging"`
}

// ServerSettings contains HTTP server configuration
type ServerSettings struct {
	Port           int           `yaml:"port"`
	Host           string        `yaml:"host"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	CertFile       string        `yaml:"cert_file"`
	KeyFile        string        `yaml:"key_file"`
}

// DatabaseSettings contains storage configuration.
// With Enabled false the server keeps MemoryCapacity records in memory.
type DatabaseSettings struct {
	Enabled        bool          `yaml:"enabled"`
	Path           string        `yaml:"path"`
	BatchSize      int           `yaml:"batch_size"`
	FlushPeriod    time.Duration `yaml:"flush_period"`
	ChannelSize    int           `yaml:"channel_size"`
	RetentionDays  int           `yaml:"retention_days"`
	CleanupPeriod  time.Duration `yaml:"cleanup_period"`
	MemoryCapacity int           `yaml:"memory_capacity"`
}

// MQTTSettings configures the optional status mirror; empty Broker disables it
type MQTTSettings struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// TLSEnabled reports whether the server should serve HTTPS
func (s ServerSettings) TLSEnabled() bool {
	return s.CertFile != "" && s.KeyFile != ""
}

// Addr returns the listen address
func (s ServerSettings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoadAppConfig loads server configuration from YAML file
func LoadAppConfig(path string) (*AppConfig, error) {
	yamlData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var config AppConfig
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

// ApplyDefaults sets default values for server config
func (ac *AppConfig) ApplyDefaults() {
	if ac.Server.Port == 0 {
		ac.Server.Port = 8000
	}
	if ac.Server.ReadTimeout == 0 {
		ac.Server.ReadTimeout = 60 * time.Second
	}
	if ac.Server.WriteTimeout == 0 {
		ac.Server.WriteTimeout = 10 * time.Second
	}
	if ac.Database.Path == "" {
		ac.Database.Path = "./data/climate-node.db"
	}
	if ac.Database.BatchSize == 0 {
		ac.Database.BatchSize = 50
	}
	if ac.Database.FlushPeriod == 0 {
		ac.Database.FlushPeriod = 5 * time.Second
	}
	if ac.Database.ChannelSize == 0 {
		ac.Database.ChannelSize = 1000
	}
	if ac.Database.RetentionDays == 0 {
		ac.Database.RetentionDays = 30
	}
	if ac.Database.CleanupPeriod == 0 {
		ac.Database.CleanupPeriod = 1 * time.Hour
	}
	if ac.Database.MemoryCapacity == 0 {
		ac.Database.MemoryCapacity = 1440
	}
	if ac.MQTT.ClientID == "" {
		ac.MQTT.ClientID = "climate-node-server"
	}
	if ac.MQTT.TopicPrefix == "" {
		ac.MQTT.TopicPrefix = "climate-node"
	}
	ac.Logging.applyDefaults()
}

// OverrideFromEnv overrides config from environment variables
func (ac *AppConfig) OverrideFromEnv() {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			ac.Server.Port = port
		}
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		ac.Server.Host = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		ac.Database.Path = v
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		ac.MQTT.Broker = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		ac.Logging.Level = v
	}
}

// Validate checks if server configuration is valid
func (ac *AppConfig) Validate() error {
	if ac.Server.Port < 1 || ac.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if (ac.Server.CertFile == "") != (ac.Server.KeyFile == "") {
		return fmt.Errorf("cert_file and key_file must be set together")
	}
	if ac.Database.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1")
	}
	if ac.Database.RetentionDays < 1 {
		return fmt.Errorf("retention days must be at least 1")
	}
	if ac.Database.MemoryCapacity < 10 {
		return fmt.Errorf("memory capacity must be at least 10")
	}
	return ac.Logging.validate()
}

func (ac *AppConfig) String() string {
	return fmt.Sprintf("AppConfig{Server: %+v, Database: %+v, MQTT: %+v, Logging: %+v}",
		ac.Server,
		ac.Database,
		ac.MQTT,
		ac.Logging,
	)
}
