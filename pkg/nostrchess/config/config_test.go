package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/nostrchess/pkg/nostrchess/codec"
	"github.com/randalmurphal/nostrchess/pkg/nostrchess/config"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// TestValuesDuration verifies duration extraction with various input types.
func TestValuesDuration(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		want time.Duration
	}{
		{"string", map[string]any{"d": "1m30s"}, 90 * time.Second},
		{"int seconds", map[string]any{"d": 5}, 5 * time.Second},
		{"int64 seconds", map[string]any{"d": int64(2)}, 2 * time.Second},
		{"float seconds", map[string]any{"d": 0.5}, 500 * time.Millisecond},
		{"bad string", map[string]any{"d": "soon"}, time.Minute},
		{"wrong type", map[string]any{"d": true}, time.Minute},
		{"missing", nil, time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := config.NewValues(tt.data)
			assert.Equal(t, tt.want, v.Duration("d", time.Minute))
		})
	}
}

func TestValuesAccessors(t *testing.T) {
	v := config.NewValues(map[string]any{
		"name":    "alice",
		"count":   float64(3),
		"frac":    2.5,
		"enabled": true,
		"nested":  map[string]any{"inner": "x"},
	})

	assert.Equal(t, "alice", v.String("name", "d"))
	assert.Equal(t, "d", v.String("count", "d"))
	assert.Equal(t, 3, v.Int("count", 0))
	assert.Equal(t, 7, v.Int("frac", 7))
	assert.True(t, v.Bool("enabled", false))
	assert.False(t, v.Bool("name", false))
	assert.Equal(t, "x", v.Sub("nested").String("inner", ""))
	assert.False(t, v.Sub("name").Has("inner"))
	assert.True(t, v.Has("name"))
	assert.False(t, v.Has("missing"))
}

func TestFromFile(t *testing.T) {
	yamlPath := writeFile(t, "c.yaml", "relay_url: wss://a\nbackoff:\n  step: 2s\n")
	v, err := config.FromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "wss://a", v.String("relay_url", ""))
	assert.Equal(t, 2*time.Second, v.Sub("backoff").Duration("step", 0))

	jsonPath := writeFile(t, "c.json", `{"game_kind": 64}`)
	v, err = config.FromFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, 64, v.Int("game_kind", 0))

	_, err = config.FromFile(writeFile(t, "c.toml", "x = 1"))
	assert.ErrorContains(t, err, "unsupported")

	_, err = config.FromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = config.FromYAML([]byte("a: [unclosed"))
	assert.Error(t, err)
	_, err = config.FromJSON([]byte("{"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, 30, cfg.GameKind)
	assert.Equal(t, 1, cfg.ChatKind)
	assert.Equal(t, time.Second, cfg.BackoffStep)
	assert.Equal(t, 30*time.Second, cfg.BackoffMax)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 3*time.Second, cfg.HealthyDwell)
	assert.Equal(t, 30*time.Second, cfg.Keepalive)
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
	assert.True(t, cfg.InMemory())
	assert.True(t, cfg.OTelEnabled)

	// Only the relay url is missing.
	err := cfg.Validate()
	assert.ErrorIs(t, err, config.ErrInvalid)
	assert.ErrorContains(t, err, "relay url")
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, "client.yaml", `
relay_url: wss://file.example
database: ./games.db
backoff:
  step: 2s
  max: 20s
keepalive: 15
`)
	t.Setenv("NOSTRCHESS_RELAY_URL", "wss://env.example")
	t.Setenv("NOSTRCHESS_HEALTHY_DWELL", "5s")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://env.example", cfg.RelayURL)
	assert.Equal(t, "./games.db", cfg.DatabasePath)
	assert.False(t, cfg.InMemory())
	assert.Equal(t, 2*time.Second, cfg.BackoffStep)
	assert.Equal(t, 20*time.Second, cfg.BackoffMax)
	assert.Equal(t, 15*time.Second, cfg.Keepalive)
	assert.Equal(t, 5*time.Second, cfg.HealthyDwell)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)

	rc := cfg.Relay()
	assert.Equal(t, 2*time.Second, rc.Backoff.Step)
	assert.Equal(t, 20*time.Second, rc.Backoff.MaxDelay)
	assert.Equal(t, 5*time.Second, rc.HealthyDwell)
}

func TestApply_Tracing(t *testing.T) {
	tests := []struct {
		name    string
		values  map[string]any
		enabled bool
		want    string
	}{
		{"absent", map[string]any{}, true, ""},
		{"flat endpoint", map[string]any{"otel_endpoint": "http://flat:4318"}, true, "http://flat:4318"},
		{"section", map[string]any{"otel": map[string]any{"endpoint": "http://sec:4318"}}, true, "http://sec:4318"},
		{"section disabled", map[string]any{"otel": map[string]any{"enabled": false, "endpoint": "http://sec:4318"}}, false, ""},
		{"section wins over flat", map[string]any{
			"otel_endpoint": "http://flat:4318",
			"otel":          map[string]any{"endpoint": "http://sec:4318"},
		}, true, "http://sec:4318"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Apply(config.NewValues(tt.values))
			assert.Equal(t, tt.enabled, cfg.OTelEnabled)
			assert.Equal(t, tt.want, cfg.Tracing())
		})
	}
}

func TestLoad_TracingDisabledByEnv(t *testing.T) {
	path := writeFile(t, "client.yaml", `
relay_url: wss://file.example
otel:
  endpoint: http://collector:4318
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://collector:4318", cfg.Tracing())

	t.Setenv("NOSTRCHESS_OTEL_ENABLED", "false")
	cfg, err = config.Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Tracing())
	assert.Equal(t, "http://collector:4318", cfg.OTelEndpoint)
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("NOSTRCHESS_RELAY_URL", "wss://env.example")
	t.Setenv("NOSTRCHESS_GAME_KIND", "64")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.GameKind)
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("NOSTRCHESS_RELAY_URL", "wss://env.example")
	t.Setenv("NOSTRCHESS_KEEPALIVE", "often")

	_, err := config.Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	key, err := codec.GeneratePrivateKey()
	require.NoError(t, err)

	valid := config.Default()
	valid.RelayURL = "wss://relay"
	valid.PrivateKey = key
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(c *config.Client)
		want   string
	}{
		{"bad key", func(c *config.Client) { c.PrivateKey = "zz" }, "private key"},
		{"kind range", func(c *config.Client) { c.GameKind = 70000 }, "game kind"},
		{"same kinds", func(c *config.Client) { c.ChatKind = c.GameKind }, "must differ"},
		{"zero dwell", func(c *config.Client) { c.HealthyDwell = 0 }, "healthy dwell"},
		{"negative keepalive", func(c *config.Client) { c.Keepalive = -time.Second }, "keepalive"},
		{"max below step", func(c *config.Client) { c.BackoffMax = c.BackoffStep / 2 }, "backoff max below step"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			assert.ErrorIs(t, err, config.ErrInvalid)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
