// Package config holds the persisted runtime configuration. Network filter
// settings live here so they survive restarts.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the configuration file structure.
type Config struct {
	Version string `yaml:"version"`

	// DevToolsURL is the browser debugging endpoint the agent attaches to.
	DevToolsURL string `yaml:"devToolsURL"`

	// Listen is the aggregator's local query address. BridgeURL is the
	// websocket endpoint producers dial.
	Listen    string `yaml:"listen"`
	BridgeURL string `yaml:"bridgeURL"`

	Log struct {
		Level  string   `yaml:"level"`
		Writer []string `yaml:"writer"`
		File   string   `yaml:"file"`
	} `yaml:"log"`

	Sqlite struct {
		Dsn    string `yaml:"dsn"`
		Prefix string `yaml:"prefix"`
	} `yaml:"sqlite"`

	// Buffers are soft defaults, not load-bearing constants.
	Buffers struct {
		ConsoleCap     int `yaml:"consoleCap"`
		NetworkCap     int `yaml:"networkCap"`
		ProvisionalCap int `yaml:"provisionalCap"`
		DedupWindowMS  int `yaml:"dedupWindowMS"`
		DedupPrefix    int `yaml:"dedupPrefix"`
	} `yaml:"buffers"`

	Network struct {
		ExcludeResourceTypes []string `yaml:"excludeResourceTypes"`
		ExcludeURLPatterns   []string `yaml:"excludeURLPatterns"`
		BodyLimit            int      `yaml:"bodyLimit"`
	} `yaml:"network"`

	Bridge struct {
		ReconnectMS int `yaml:"reconnectMS"`
	} `yaml:"bridge"`

	Summary struct {
		Limit int `yaml:"limit"`
	} `yaml:"summary"`

	Symbols struct {
		Engine string `yaml:"engine"`
	} `yaml:"symbols"`
}

// NewConfig returns the default configuration.
func NewConfig() *Config {
	c := &Config{Version: "1.0.0"}
	c.DevToolsURL = "http://127.0.0.1:9222"
	c.Listen = "127.0.0.1:7223"
	c.BridgeURL = "ws://127.0.0.1:7223/bridge"
	c.Log.Level = "info"
	c.Log.Writer = []string{"console"}
	c.Sqlite.Dsn = "events.sqlite3"
	c.Sqlite.Prefix = "webtap_"
	c.Buffers.ConsoleCap = 100
	c.Buffers.NetworkCap = 200
	c.Buffers.ProvisionalCap = 50
	c.Buffers.DedupWindowMS = 1000
	c.Buffers.DedupPrefix = 100
	c.Network.ExcludeResourceTypes = []string{"Font", "Image", "Media"}
	c.Network.ExcludeURLPatterns = []string{
		"^data:",
		`\.(woff2?|ttf|otf|eot)(\?|$)`,
		`\.(png|jpe?g|gif|svg|ico|webp|avif)(\?|$)`,
		`\.map(\?|$)`,
	}
	c.Network.BodyLimit = 5000
	c.Bridge.ReconnectMS = 5000
	c.Summary.Limit = 10
	return c
}

// DefaultPath returns the per-user config file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "webtap", "config.yaml"), nil
}

// Load reads path, falling back to defaults when the file does not exist.
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path, creating parent directories as needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
