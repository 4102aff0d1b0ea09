// Package config holds the daemon's settings, loaded from an optional YAML
// file on top of built-in defaults.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/die-net/socks6d/internal/observe"
)

type Config struct {
	SOCKS6Listen string `yaml:"socks6_listen"`
	SOCKS5Listen string `yaml:"socks5_listen"`
	DebugListen  string `yaml:"debug_listen"`

	DialTimeout        time.Duration `yaml:"dial_timeout"`
	NegotiationTimeout time.Duration `yaml:"negotiation_timeout"`
	IdleTimeout        time.Duration `yaml:"idle_timeout"`

	// TCPKeepAlive is on, off or keepidle:keepintvl:keepcnt in seconds.
	TCPKeepAlive string `yaml:"tcp_keepalive"`
	ReusePort    bool   `yaml:"reuse_port"`

	Observe ObserveConfig `yaml:"observe"`
	Log     LogConfig     `yaml:"log"`
}

// ObserveConfig names the built-in observer units applied to each
// direction, in order.
type ObserveConfig struct {
	Upstream   []string `yaml:"upstream"`
	Downstream []string `yaml:"downstream"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() *Config {
	return &Config{
		SOCKS6Listen:       "127.0.0.1:1080",
		DialTimeout:        10 * time.Second,
		NegotiationTimeout: 10 * time.Second,
		TCPKeepAlive:       "45:45:3",
		Log:                LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads the YAML file at path over the defaults. Keys missing from the
// file keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks settings that can be checked without opening sockets.
func (c *Config) Validate() error {
	if c.SOCKS6Listen == "" && c.SOCKS5Listen == "" {
		return errors.New("no listeners enabled (set at least one of socks6_listen, socks5_listen)")
	}
	for name, d := range map[string]time.Duration{
		"dial_timeout":        c.DialTimeout,
		"negotiation_timeout": c.NegotiationTimeout,
		"idle_timeout":        c.IdleTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("%s: must not be negative", name)
		}
	}
	if _, err := c.KeepAlive(); err != nil {
		return err
	}
	if _, err := c.Pipeline(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "console", "text", "json", "":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	return nil
}

// KeepAlive parses TCPKeepAlive.
func (c *Config) KeepAlive() (net.KeepAliveConfig, error) {
	ka, err := ParseTCPKeepAlive(c.TCPKeepAlive)
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("tcp_keepalive: %w", err)
	}
	return ka, nil
}

// Pipeline resolves the configured observer names.
func (c *Config) Pipeline() (observe.Pipeline, error) {
	up, err := observe.LookupAll(c.Observe.Upstream)
	if err != nil {
		return observe.Pipeline{}, fmt.Errorf("observe.upstream: %w", err)
	}
	down, err := observe.LookupAll(c.Observe.Downstream)
	if err != nil {
		return observe.Pipeline{}, fmt.Errorf("observe.downstream: %w", err)
	}
	return observe.Pipeline{Upstream: up, Downstream: down}, nil
}

// ParseTCPKeepAlive accepts on, off or keepidle:keepintvl:keepcnt.
func ParseTCPKeepAlive(s string) (net.KeepAliveConfig, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "":
		return net.KeepAliveConfig{}, errors.New("empty")
	case "on":
		return net.KeepAliveConfig{Enable: true}, nil
	case "off":
		return net.KeepAliveConfig{Enable: false}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return net.KeepAliveConfig{}, errors.New("expected on|off|keepidle:keepintvl:keepcnt")
	}
	keepIdle, err := parsePositive(parts[0])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepidle: %w", err)
	}
	keepIntvl, err := parsePositive(parts[1])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepintvl: %w", err)
	}
	keepCnt, err := parsePositive(parts[2])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepcnt: %w", err)
	}

	return net.KeepAliveConfig{
		Enable:   true,
		Idle:     time.Duration(keepIdle) * time.Second,
		Interval: time.Duration(keepIntvl) * time.Second,
		Count:    keepCnt,
	}, nil
}

func parsePositive(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return n, nil
}
