package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `toml:"server" yaml:"server"`
	Exchange ExchangeConfig `toml:"exchange" yaml:"exchange"`
	Log      LogConfig      `toml:"log" yaml:"log"`

	// Runtime flags (not from the config file)
	Dev bool `toml:"-" yaml:"-"`
}

type ServerConfig struct {
	Listen          string        `toml:"listen" yaml:"listen"`
	ReadTimeout     time.Duration `toml:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `toml:"idle_timeout" yaml:"idle_timeout"`
	MaxPayloadBytes int64         `toml:"max_payload_bytes" yaml:"max_payload_bytes"`
}

type ExchangeConfig struct {
	PollTimeout   time.Duration `toml:"poll_timeout" yaml:"poll_timeout"`
	IdleTimeout   time.Duration `toml:"idle_timeout" yaml:"idle_timeout"`
	SweepInterval time.Duration `toml:"sweep_interval" yaml:"sweep_interval"`
}

type LogConfig struct {
	File       string `toml:"file" yaml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `toml:"compress" yaml:"compress"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			MaxPayloadBytes: 1 << 20,
		},
		Exchange: ExchangeConfig{
			PollTimeout:   25 * time.Second,
			IdleTimeout:   30 * time.Minute,
			SweepInterval: 5 * time.Second,
		},
		Log: LogConfig{
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}

func DefaultDev() *Config {
	cfg := defaults()
	cfg.Dev = true
	cfg.Server.Listen = "localhost:8080"
	return cfg
}

func DefaultProd() *Config {
	cfg := defaults()
	cfg.Server.Listen = "0.0.0.0:8080"
	cfg.Log.File = "/var/log/objex/objex.log"
	cfg.Log.Compress = true
	return cfg
}

// Load starts from the dev or prod defaults and overlays the file at path,
// if it exists. Files ending in .yaml or .yml are read as YAML, anything
// else as TOML.
func Load(path string, dev bool) (*Config, error) {
	var cfg *Config
	if dev {
		cfg = DefaultDev()
	} else {
		cfg = DefaultProd()
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := decodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return yaml.Unmarshal(data, cfg)
	default:
		_, err := toml.DecodeFile(path, cfg)
		return err
	}
}

func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("config: server.listen is required")
	}
	durations := map[string]time.Duration{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.idle_timeout":     c.Server.IdleTimeout,
		"exchange.poll_timeout":   c.Exchange.PollTimeout,
		"exchange.idle_timeout":   c.Exchange.IdleTimeout,
		"exchange.sweep_interval": c.Exchange.SweepInterval,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive, got %s", name, d)
		}
	}
	if c.Server.WriteTimeout <= c.Exchange.PollTimeout {
		return fmt.Errorf("config: server.write_timeout (%s) must exceed exchange.poll_timeout (%s)",
			c.Server.WriteTimeout, c.Exchange.PollTimeout)
	}
	if c.Server.MaxPayloadBytes <= 0 {
		return fmt.Errorf("config: server.max_payload_bytes must be positive")
	}
	return nil
}
