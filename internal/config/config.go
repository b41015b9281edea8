// Package config reads server settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	ErrSamePort   = errors.New("http and websocket ports must differ")
	ErrBadPort    = errors.New("port out of range")
	ErrBadOutbox  = errors.New("outbox size must be positive")
	ErrBadReadCap = errors.New("max message bytes must be positive")
)

type Config struct {
	Host           string        `env:"RELAY_HOST" envDefault:"0.0.0.0"`
	HTTPPort       int           `env:"RELAY_HTTP_PORT" envDefault:"8080"`
	WSPort         int           `env:"RELAY_WS_PORT" envDefault:"8081"`
	StaticDir      string        `env:"RELAY_STATIC_DIR" envDefault:"."`
	AdvertiseIP    string        `env:"RELAY_ADVERTISE_IP"`
	OutboxSize     int           `env:"RELAY_OUTBOX_SIZE" envDefault:"64"`
	MaxMessage     int64         `env:"RELAY_MAX_MESSAGE_BYTES" envDefault:"1048576"`
	OriginPatterns []string      `env:"RELAY_ORIGIN_PATTERNS" envDefault:"*" envSeparator:","`
	LogLevel       string        `env:"RELAY_LOG_LEVEL" envDefault:"info"`
	LogFormat      string        `env:"RELAY_LOG_FORMAT" envDefault:"console"`
	ShutdownGrace  time.Duration `env:"RELAY_SHUTDOWN_GRACE" envDefault:"5s"`
}

// Load applies any .env files that exist, then parses and validates the
// environment. Variables already set win over file values.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	for _, p := range []int{c.HTTPPort, c.WSPort} {
		if p < 1 || p > 65535 {
			return fmt.Errorf("%w: %d", ErrBadPort, p)
		}
	}
	if c.HTTPPort == c.WSPort {
		return fmt.Errorf("%w: both %d", ErrSamePort, c.HTTPPort)
	}
	if c.OutboxSize <= 0 {
		return ErrBadOutbox
	}
	if c.MaxMessage <= 0 {
		return ErrBadReadCap
	}
	return nil
}

func (c Config) HTTPAddr() string { return net.JoinHostPort(c.Host, strconv.Itoa(c.HTTPPort)) }

func (c Config) WSAddr() string { return net.JoinHostPort(c.Host, strconv.Itoa(c.WSPort)) }
