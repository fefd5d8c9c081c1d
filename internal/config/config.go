// Package config loads sheetsync configuration from a YAML file with
// environment overrides. File values beat defaults; SHEETSYNC_
// environment variables beat the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// FileName is the name of the config file.
const FileName = "sheetsync.yaml"

// FileNameAlt is the alternate name of the config file.
const FileNameAlt = "sheetsync.yml"

const envPrefix = "SHEETSYNC_"

// ServerConfig configures the sheet service.
type ServerConfig struct {
	Addr     string `koanf:"addr"`
	Database string `koanf:"database"`
	Schema   string `koanf:"schema"`
	Token    string `koanf:"token"`
}

// ClientConfig configures commands that talk to a running service.
type ClientConfig struct {
	BaseURL string `koanf:"base_url"`
	Project string `koanf:"project"`
	Token   string `koanf:"token"`
}

// Config is the full sheetsync configuration.
type Config struct {
	Server ServerConfig `koanf:"server"`
	Client ClientConfig `koanf:"client"`
}

// ApplyDefaults fills zero-valued fields with defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8712"
	}
	if c.Server.Database == "" {
		c.Server.Database = "sheetsync.db"
	}
	if c.Client.BaseURL == "" {
		c.Client.BaseURL = "http://" + c.Server.Addr
	}
}

// Load reads configuration from path. An empty path searches the given
// directory (or the working directory) for sheetsync.yaml, and a missing
// file is not an error: defaults plus environment still apply.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		path = findConfigFile(".")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	}

	// SHEETSYNC_SERVER_ADDR overrides server.addr and so on. Only the
	// first underscore separates the section, so CLIENT_BASE_URL maps to
	// client.base_url.
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".", 1)
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

func findConfigFile(dir string) string {
	for _, name := range []string{FileName, FileNameAlt} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
