package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds CLI configuration from config.toml.
type Config struct {
	Transport  string `toml:"transport"`
	Broker     string `toml:"broker"`
	WSURL      string `toml:"ws_url"`
	TopicBase  string `toml:"topic_base"`
	User       string `toml:"user"`
	DeviceName string `toml:"device_name"`
	Username   string `toml:"username"`
	Password   string `toml:"password"`
	TLS        TLS    `toml:"tls"`
	Player     Player `toml:"player"`
}

// TLS holds client certificate paths.
type TLS struct {
	CA   string `toml:"ca"`
	Cert string `toml:"cert"`
	Key  string `toml:"key"`
}

// Player configures the simulated player used by ps run.
type Player struct {
	TrackDuration float64 `toml:"track_duration"`
}

// Load loads config.toml if present. Missing file returns an empty config.
func Load() (Config, error) {
	path, err := Path()
	if err != nil {
		return Config{}, err
	}
	return LoadFile(path)
}

// LoadFile loads config from path. Missing file returns an empty config.
func LoadFile(path string) (Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
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

// Path returns the config file location under XDG_CONFIG_HOME or
// ~/.config.
func Path() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "ps", "config.toml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ps", "config.toml"), nil
}
