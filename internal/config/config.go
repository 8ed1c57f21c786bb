package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is loaded once at startup and treated as read-only afterwards;
// sessions share it without locking.
type Config struct {
	Listen   AddrConfig    `yaml:"listen" toml:"listen"`
	Upstream AddrConfig    `yaml:"upstream" toml:"upstream"`
	Relay    RelayConfig   `yaml:"relay" toml:"relay"`
	Logging  LoggingConfig `yaml:"logging" toml:"logging"`
}

type AddrConfig struct {
	Host string `yaml:"host" toml:"host"`
	Port int    `yaml:"port" toml:"port"`
}

type RelayConfig struct {
	// MaxFrameSize caps the length field (id + payload) in bytes.
	MaxFrameSize int      `yaml:"max_frame_size" toml:"max_frame_size"`
	DialTimeout  Duration `yaml:"dial_timeout" toml:"dial_timeout"`
	// IdleTimeout closes a session after no frame has moved in either
	// direction for this long. 0 disables it.
	IdleTimeout Duration `yaml:"idle_timeout" toml:"idle_timeout"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" toml:"level"`
	Format   string `yaml:"format" toml:"format"`
	File     string `yaml:"file" toml:"file"`
	HexDump  bool   `yaml:"hex_dump" toml:"hex_dump"`
	HexLimit int    `yaml:"hex_limit" toml:"hex_limit"`
}

// Duration accepts "5s"-style strings in both YAML and TOML.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}

func Default() *Config {
	return &Config{
		Listen:   AddrConfig{Host: "127.0.0.1", Port: 6410},
		Upstream: AddrConfig{Host: "127.0.0.1", Port: 6411},
		Relay: RelayConfig{
			MaxFrameSize: 16 << 20,
			DialTimeout:  Duration(5 * time.Second),
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "console",
			HexDump:  true,
			HexLimit: 256,
		},
	}
}

// Load reads path on top of Default(). Files ending in .toml are parsed as
// TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("toml: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if err := c.Listen.validate("listen"); err != nil {
		errs = append(errs, err)
	}
	if err := c.Upstream.validate("upstream"); err != nil {
		errs = append(errs, err)
	}
	if c.Relay.MaxFrameSize <= 0 {
		errs = append(errs, fmt.Errorf("relay.max_frame_size must be positive, got %d", c.Relay.MaxFrameSize))
	}
	if c.Relay.DialTimeout < 0 {
		errs = append(errs, fmt.Errorf("relay.dial_timeout must not be negative, got %s", c.Relay.DialTimeout))
	}
	if c.Relay.IdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("relay.idle_timeout must not be negative, got %s", c.Relay.IdleTimeout))
	}
	if c.Logging.HexLimit < 0 {
		errs = append(errs, fmt.Errorf("logging.hex_limit must not be negative, got %d", c.Logging.HexLimit))
	}
	return errors.Join(errs...)
}

func (c *Config) ListenAddr() string { return c.Listen.String() }

func (c *Config) UpstreamAddr() string { return c.Upstream.String() }

func (a AddrConfig) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// ParseAddr splits "host:port" into an AddrConfig.
func ParseAddr(s string) (AddrConfig, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return AddrConfig{}, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return AddrConfig{}, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return AddrConfig{Host: host, Port: port}, nil
}

func (a AddrConfig) validate(section string) error {
	if a.Host == "" {
		return fmt.Errorf("%s.host must not be empty", section)
	}
	if a.Port < 1 || a.Port > 65535 {
		return fmt.Errorf("%s.port must be in 1..65535, got %d", section, a.Port)
	}
	return nil
}
