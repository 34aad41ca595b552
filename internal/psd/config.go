package psd

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the top-level configuration for psd.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Modules ModulesConfig `toml:"modules"`
}

// ServerConfig defines shared server settings.
type ServerConfig struct {
	Broker    string     `toml:"broker"`
	TopicBase string     `toml:"topic_base"`
	LogLevel  string     `toml:"log_level"`
	LogFormat string     `toml:"log_format"`
	LogOutput string     `toml:"log_output"`
	LogSource bool       `toml:"log_source"`
	LogUTC    bool       `toml:"log_utc"`
	LogColor  bool       `toml:"log_color"`
	TLS       TLSConfig  `toml:"tls"`
	Auth      AuthConfig `toml:"auth"`
}

// TLSConfig holds TLS paths for MQTT.
type TLSConfig struct {
	CA   string `toml:"ca"`
	Cert string `toml:"cert"`
	Key  string `toml:"key"`
}

// AuthConfig holds MQTT auth credentials.
type AuthConfig struct {
	User string `toml:"user"`
	Pass string `toml:"pass"`
}

// ModulesConfig holds module configurations.
type ModulesConfig struct {
	EmbeddedMQTT EmbeddedMQTTConfig `toml:"embedded_mqtt"`
	Hub          HubConfig          `toml:"hub"`
	HubMQTT      HubMQTTConfig      `toml:"hub_mqtt"`
	HubWS        HubWSConfig        `toml:"hub_ws"`
	Store        StoreConfig        `toml:"store"`
}

// EmbeddedMQTTConfig configures the embedded MQTT broker.
type EmbeddedMQTTConfig struct {
	Enabled        bool         `toml:"enabled"`
	Listen         string       `toml:"listen"`
	AllowAnonymous bool         `toml:"allow_anonymous"`
	Devices        []AuthConfig `toml:"devices"`
	TLSCA          string       `toml:"tls_ca"`
	TLSCert        string       `toml:"tls_cert"`
	TLSKey         string       `toml:"tls_key"`
}

// HubConfig tunes the session hub.
type HubConfig struct {
	HandoffTimeoutMS int64 `toml:"handoff_timeout_ms"`
	ReclaimGraceMS   int64 `toml:"reclaim_grace_ms"`
	StaleTimeoutMS   int64 `toml:"stale_timeout_ms"`
	MaxQueue         int   `toml:"max_queue"`
}

// HubMQTTConfig enables the MQTT device binding.
type HubMQTTConfig struct {
	Enabled bool `toml:"enabled"`
}

// HubWSConfig configures the WebSocket device binding.
type HubWSConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
	Path    string `toml:"path"`
}

// StoreConfig configures session persistence.
type StoreConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// HandoffTimeout returns the configured hub handoff timeout.
func (c HubConfig) HandoffTimeout() time.Duration {
	return time.Duration(c.HandoffTimeoutMS) * time.Millisecond
}

// ReclaimGrace returns the configured audio device grace period.
func (c HubConfig) ReclaimGrace() time.Duration {
	return time.Duration(c.ReclaimGraceMS) * time.Millisecond
}

// StaleTimeout returns how long an audio device may go without a state
// report before its session ends.
func (c HubConfig) StaleTimeout() time.Duration {
	return time.Duration(c.StaleTimeoutMS) * time.Millisecond
}

// LoadConfig loads a config file from path.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Config{}, err
	}
	if info.IsDir() {
		return Config{}, errors.New("config path is a directory")
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultConfigPath returns the default config location.
func DefaultConfigPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "ps", "psd.toml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ps", "psd.toml"), nil
}
