// Package config loads the server's startup configuration from a YAML
// file, with environment variable overrides for deployment knobs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Repo is one tracked source directory of work effort records.
type Repo struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// Config models effortsync.yml.
type Config struct {
	Server struct {
		Port int    `yaml:"port"`
		Host string `yaml:"host"`
	} `yaml:"server"`
	Repos []Repo `yaml:"repos"`
	Watch struct {
		DebounceMs int `yaml:"debounce_ms"`
	} `yaml:"watch"`
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
}

// DefaultPath is where Load looks when no path is given.
const DefaultPath = "effortsync.yml"

// Load reads and validates configuration from path. Environment
// variables EFFORTSYNC_PORT and EFFORTSYNC_LOG_LEVEL override the file.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		// A missing default file is fine: repos can be added at runtime.
		if os.IsNotExist(err) && path == DefaultPath {
			return FromYAML(nil)
		}
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses, applies defaults and env overrides, and validates.
func FromYAML(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Watch.DebounceMs == 0 {
		c.Watch.DebounceMs = 300
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("EFFORTSYNC_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("EFFORTSYNC_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Repos))
	for i, r := range c.Repos {
		if r.Name == "" {
			return fmt.Errorf("config.repos[%d].name is required", i)
		}
		if r.Path == "" {
			return fmt.Errorf("config.repos[%d].path is required", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("config.repos has duplicate name %q", r.Name)
		}
		seen[r.Name] = true
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config.server.port %d out of range", c.Server.Port)
	}
	if c.Watch.DebounceMs < 0 {
		return fmt.Errorf("config.watch.debounce_ms must not be negative")
	}
	return nil
}

// Debounce returns the watch debounce as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Watch.DebounceMs) * time.Millisecond
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
