package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/randalmurphal/nostrchess/pkg/nostrchess/codec"
	chesserrors "github.com/randalmurphal/nostrchess/pkg/nostrchess/errors"
	"github.com/randalmurphal/nostrchess/pkg/nostrchess/relay"
	"github.com/randalmurphal/nostrchess/pkg/nostrchess/store"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "NOSTRCHESS_"

// MemoryDatabase selects the in-memory backend.
const MemoryDatabase = ":memory:"

// ErrInvalid indicates settings that cannot run a client.
var ErrInvalid = errors.New("invalid config")

// Client holds everything needed to run a client.
type Client struct {
	RelayURL string `env:"RELAY_URL"`

	// PrivateKey is hex. Empty means read-only: nothing can be published.
	PrivateKey string `env:"PRIVATE_KEY"`

	// DatabasePath is a SQLite file. Empty or ":memory:" keeps state in memory.
	DatabasePath string `env:"DATABASE"`

	GameKind int `env:"GAME_KIND"`
	ChatKind int `env:"CHAT_KIND"`

	BackoffStep    time.Duration `env:"BACKOFF_STEP"`
	BackoffMax     time.Duration `env:"BACKOFF_MAX"`
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT"`
	HealthyDwell   time.Duration `env:"HEALTHY_DWELL"`
	Keepalive      time.Duration `env:"KEEPALIVE"`
	WriteTimeout   time.Duration `env:"WRITE_TIMEOUT"`

	LogLevel string `env:"LOG_LEVEL"`

	// OTelEndpoint enables trace export when set.
	OTelEndpoint string `env:"OTEL_ENDPOINT"`

	// OTelEnabled turns trace export off without clearing the endpoint.
	OTelEnabled bool `env:"OTEL_ENABLED"`
}

// Default returns the built-in settings. RelayURL is left empty.
func Default() Client {
	return Client{
		GameKind:       store.DefaultGameKind,
		ChatKind:       store.DefaultChatKind,
		BackoffStep:    chesserrors.DefaultBackoff.Step,
		BackoffMax:     chesserrors.DefaultBackoff.MaxDelay,
		ConnectTimeout: relay.DefaultConfig.ConnectTimeout,
		HealthyDwell:   relay.DefaultConfig.HealthyDwell,
		Keepalive:      relay.DefaultConfig.Keepalive,
		WriteTimeout:   relay.DefaultConfig.WriteTimeout,
		LogLevel:       "info",
		OTelEnabled:    true,
	}
}

// Load layers defaults, the file at path (skipped when path is empty) and
// the environment, then validates the result.
func Load(path string) (Client, error) {
	cfg := Default()

	if path != "" {
		v, err := FromFile(path)
		if err != nil {
			return Client{}, err
		}
		cfg.Apply(v)
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Client{}, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Client{}, err
	}
	return cfg, nil
}

// Apply overlays file values onto c. Missing keys keep their current value.
func (c *Client) Apply(v Values) {
	c.RelayURL = v.String("relay_url", c.RelayURL)
	c.PrivateKey = v.String("private_key", c.PrivateKey)
	c.DatabasePath = v.String("database", c.DatabasePath)
	c.GameKind = v.Int("game_kind", c.GameKind)
	c.ChatKind = v.Int("chat_kind", c.ChatKind)

	backoff := v.Sub("backoff")
	c.BackoffStep = backoff.Duration("step", c.BackoffStep)
	c.BackoffMax = backoff.Duration("max", c.BackoffMax)

	c.ConnectTimeout = v.Duration("connect_timeout", c.ConnectTimeout)
	c.HealthyDwell = v.Duration("healthy_dwell", c.HealthyDwell)
	c.Keepalive = v.Duration("keepalive", c.Keepalive)
	c.WriteTimeout = v.Duration("write_timeout", c.WriteTimeout)
	c.LogLevel = v.String("log_level", c.LogLevel)

	if v.Has("otel") {
		otel := v.Sub("otel")
		c.OTelEnabled = otel.Bool("enabled", c.OTelEnabled)
		c.OTelEndpoint = otel.String("endpoint", c.OTelEndpoint)
	} else {
		c.OTelEndpoint = v.String("otel_endpoint", c.OTelEndpoint)
	}
}

// Tracing returns the OTLP endpoint to export to, or "" when export is off.
func (c Client) Tracing() string {
	if !c.OTelEnabled {
		return ""
	}
	return c.OTelEndpoint
}

// Validate reports every problem at once.
func (c Client) Validate() error {
	var errs []error
	if c.RelayURL == "" {
		errs = append(errs, fmt.Errorf("%w: relay url is required", ErrInvalid))
	}
	if c.PrivateKey != "" {
		if _, err := codec.PublicKey(c.PrivateKey); err != nil {
			errs = append(errs, fmt.Errorf("%w: private key: %v", ErrInvalid, err))
		}
	}
	for _, k := range []struct {
		name string
		kind int
	}{{"game kind", c.GameKind}, {"chat kind", c.ChatKind}} {
		if k.kind < 0 || k.kind > 65535 {
			errs = append(errs, fmt.Errorf("%w: %s %d out of range", ErrInvalid, k.name, k.kind))
		}
	}
	if c.GameKind == c.ChatKind {
		errs = append(errs, fmt.Errorf("%w: game and chat kinds must differ", ErrInvalid))
	}
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"backoff step", c.BackoffStep},
		{"backoff max", c.BackoffMax},
		{"connect timeout", c.ConnectTimeout},
		{"healthy dwell", c.HealthyDwell},
		{"keepalive", c.Keepalive},
		{"write timeout", c.WriteTimeout},
	} {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%w: %s must be positive", ErrInvalid, d.name))
		}
	}
	if c.BackoffMax > 0 && c.BackoffMax < c.BackoffStep {
		errs = append(errs, fmt.Errorf("%w: backoff max below step", ErrInvalid))
	}
	return errors.Join(errs...)
}

// InMemory reports whether the in-memory backend is selected.
func (c Client) InMemory() bool {
	return c.DatabasePath == "" || c.DatabasePath == MemoryDatabase
}

// Relay returns the link timing.
func (c Client) Relay() relay.Config {
	return relay.Config{
		Backoff:        chesserrors.BackoffConfig{Step: c.BackoffStep, MaxDelay: c.BackoffMax},
		ConnectTimeout: c.ConnectTimeout,
		HealthyDwell:   c.HealthyDwell,
		Keepalive:      c.Keepalive,
		WriteTimeout:   c.WriteTimeout,
	}
}
