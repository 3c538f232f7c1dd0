package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/degraphmalizer/internal/ir"
)

func TestDefaultEngine_IsValid(t *testing.T) {
	cfg := DefaultEngine()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8, cfg.PoolSize)
	assert.Equal(t, 32, cfg.MaxDepth)
	assert.Equal(t, 10000, cfg.MaxNodes)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.Base)
}

func TestParseEngine_OverridesDefaults(t *testing.T) {
	cfg, err := ParseEngine([]byte(`
pool_size: 2
backpressure_delay: 10ms
retry:
  base: 1s
  max_attempts: 0
`))
	require.NoError(t, err)

	want := DefaultEngine()
	want.PoolSize = 2
	want.BackpressureDelay = 10 * time.Millisecond
	want.Retry.Base = time.Second
	want.Retry.MaxAttempts = 0
	assert.Equal(t, want, cfg)
}

func TestParseEngine_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"zero pool", "pool_size: 0", "pool_size"},
		{"negative depth", "max_depth: -1", "max_depth"},
		{"max below base", "retry: {base: 2s, max: 1s}", "retry.max"},
		{"multiplier", "retry: {multiplier: 0.5}", "retry.multiplier"},
		{"bad duration", "backpressure_delay: soon", "parse engine config"},
		{"unknown type", "pool_size: [1]", "parse engine config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEngine([]byte(tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, ir.ErrConfigurationInvalid)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadEngine(t *testing.T) {
	cfg, err := LoadEngine("")
	require.NoError(t, err)
	assert.Equal(t, DefaultEngine(), cfg)

	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_in_flight: 3\n"), 0o644))
	cfg, err = LoadEngine(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxInFlight)

	_, err = LoadEngine(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
