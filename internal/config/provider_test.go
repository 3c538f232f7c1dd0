package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const oneType = `package degraphmalizer

index: out: types: doc: {source_index: "in", source_type: "doc"}
`

const twoTypes = `package degraphmalizer

index: out: types: {
	doc: {source_index: "in", source_type: "doc"}
	other: {source_index: "in", source_type: "doc"}
}
`

func writeConfig(t *testing.T, dir, src string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.cue"), []byte(src), 0o644))
}

func TestNewProvider_FailsOnInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `index: {`)

	_, err := NewProvider(dir)
	assert.Error(t, err)
}

func TestProvider_Reload(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, oneType)

	p, err := NewProvider(dir)
	require.NoError(t, err)
	assert.Len(t, p.ConfigurationsFor("in", "doc"), 1)

	var changes atomic.Int32
	p.OnChange(func(*Configuration) { changes.Add(1) })

	writeConfig(t, dir, twoTypes)
	require.NoError(t, p.Reload())
	assert.Len(t, p.ConfigurationsFor("in", "doc"), 2)
	assert.Equal(t, int32(1), changes.Load())
}

func TestProvider_ReloadFailureServesStale(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, oneType)

	p, err := NewProvider(dir)
	require.NoError(t, err)
	before := p.Current()

	var changes atomic.Int32
	p.OnChange(func(*Configuration) { changes.Add(1) })

	writeConfig(t, dir, "package degraphmalizer\n\nindex: out: types: doc: {source_index: 42}\n")
	assert.Error(t, p.Reload())
	assert.Same(t, before, p.Current())
	assert.Len(t, p.ConfigurationsFor("in", "doc"), 1)
	assert.Zero(t, changes.Load())
}

func TestProvider_ReloadUnreadableDirKeepsFingerprint(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	writeConfig(t, dir, oneType)

	p, err := NewProvider(dir)
	require.NoError(t, err)
	before := p.Current()
	fp := p.fingerprint

	require.NoError(t, os.RemoveAll(dir))
	err = p.Reload()
	require.Error(t, err)
	var cfgErr *Error
	assert.ErrorAs(t, err, &cfgErr)
	assert.Same(t, before, p.Current())
	assert.Equal(t, fp, p.fingerprint)
}

func TestProvider_Watch(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, oneType)

	p, err := NewProvider(dir)
	require.NoError(t, err)

	reloaded := make(chan *Configuration, 1)
	p.OnChange(func(c *Configuration) { reloaded <- c })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Watch(ctx, 10*time.Millisecond) }()

	writeConfig(t, dir, twoTypes)
	select {
	case c := <-reloaded:
		assert.Len(t, c.ConfigurationsFor("in", "doc"), 2)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not reload")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestStaticProvider(t *testing.T) {
	cfg, err := Parse("inline.cue", []byte(`index: out: types: doc: {source_index: "in", source_type: "doc"}`))
	require.NoError(t, err)

	p := StaticProvider(cfg)
	assert.NoError(t, p.Reload())
	assert.Same(t, cfg, p.Current())
	assert.Len(t, p.ConfigurationsFor("in", "doc"), 1)
}
