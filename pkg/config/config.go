// Package config loads ntbridge daemon configuration from YAML.
//
// Values are resolved in three layers: Default, then the YAML file, then
// command-line flags applied by the caller. Durations use Go syntax
// ("250ms", "3s").
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ntbridge/ntbridge-go/pkg/connection"
	"github.com/ntbridge/ntbridge-go/pkg/session"
	"github.com/ntbridge/ntbridge-go/pkg/transport"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the daemon configuration.
type Config struct {
	// Server is the host:port to connect to at startup. Empty waits for a
	// start_client command.
	Server string `yaml:"server"`

	// Listen is the HTTP address of the bridge (WebSocket, metrics, health).
	Listen string `yaml:"listen"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// LogLevel is one of debug, info, warn, error or trace.
	LogLevel string `yaml:"log_level"`

	// CaptureFile records every protocol frame when set.
	CaptureFile string `yaml:"capture_file"`

	Interactive bool `yaml:"interactive"`

	// Discover browses for servers via mDNS at startup and connects to the
	// first one found when Server is empty.
	Discover bool `yaml:"discover"`

	Router    connection.BackoffConfig  `yaml:"router"`
	KeepAlive transport.KeepAliveConfig `yaml:"keepalive"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:         "127.0.0.1:8765",
		ConnectTimeout: 3 * time.Second,
		LogLevel:       "info",
		Router: connection.BackoffConfig{
			Initial:     connection.InitialBackoff,
			Max:         connection.MaxBackoff,
			Multiplier:  connection.BackoffMultiplier,
			Jitter:      connection.JitterFactor,
			MaxAttempts: connection.DefaultMaxAttempts,
		},
		KeepAlive: transport.DefaultKeepAliveConfig(),
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, leaving absent keys untouched. Unknown keys
// are rejected.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// Validate checks addresses, durations and the log level.
func (c *Config) Validate() error {
	var errs []error

	if c.Server != "" {
		if err := checkHostPort(c.Server); err != nil {
			errs = append(errs, fmt.Errorf("server: %w", err))
		}
	}
	if c.Listen == "" {
		errs = append(errs, errors.New("listen: must not be empty"))
	} else if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		errs = append(errs, fmt.Errorf("listen: %w", err))
	}
	if c.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("connect_timeout: must be positive"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.Router.Initial <= 0 || c.Router.Max < c.Router.Initial {
		errs = append(errs, errors.New("router: backoff_max must be at least backoff_initial and both positive"))
	}
	if c.Router.MaxAttempts < 0 {
		errs = append(errs, errors.New("router: max_attempts must not be negative"))
	}
	if c.KeepAlive.PingInterval < 0 || c.KeepAlive.PongTimeout < 0 || c.KeepAlive.MaxMissedPongs < 0 {
		errs = append(errs, errors.New("keepalive: values must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "trace":
		return session.LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log_level: unknown level %q", s)
	}
}

func checkHostPort(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if host == "" {
		return errors.New("missing host")
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("invalid port %q", port)
	}
	return nil
}
