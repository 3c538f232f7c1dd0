package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/degraphmalizer/internal/ir"
)

// DefaultWatchInterval is how often Watch polls the config directory.
const DefaultWatchInterval = 200 * time.Millisecond

// Provider serves the current Configuration of a directory and swaps it
// atomically on reload. Readers never block and always see a complete
// configuration.
//
// Thread-safety: all methods are safe for concurrent use.
type Provider struct {
	dir     string
	current atomic.Pointer[Configuration]

	// mu serializes reloads and guards fingerprint and onChange.
	mu          sync.Mutex
	fingerprint string
	onChange    []func(*Configuration)
}

// NewProvider loads dir. A configuration that fails to load here is fatal.
func NewProvider(dir string) (*Provider, error) {
	p := &Provider{dir: dir}
	fp, err := fingerprint(dir)
	if err != nil {
		return nil, &Error{Path: dir, Message: err.Error()}
	}
	cfg, err := Load(dir)
	if err != nil {
		return nil, err
	}
	p.current.Store(cfg)
	p.fingerprint = fp
	return p, nil
}

// StaticProvider serves a fixed configuration. Reload is a no-op.
func StaticProvider(cfg *Configuration) *Provider {
	p := &Provider{}
	p.current.Store(cfg)
	return p
}

// Current returns the configuration being served.
func (p *Provider) Current() *Configuration {
	return p.current.Load()
}

// ConfigurationsFor implements the engine's ConfigProvider.
func (p *Provider) ConfigurationsFor(index, typ string) []ir.TypeConfig {
	return p.Current().ConfigurationsFor(index, typ)
}

// OnChange registers fn to run after every successful reload.
func (p *Provider) OnChange(fn func(*Configuration)) {
	p.mu.Lock()
	p.onChange = append(p.onChange, fn)
	p.mu.Unlock()
}

// Reload loads the directory again. On failure the previous configuration
// keeps being served and the error is returned.
func (p *Provider) Reload() error {
	if p.dir == "" {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fp, err := fingerprint(p.dir)
	if err != nil {
		slog.Warn("config reload failed, serving previous configuration",
			"dir", p.dir,
			"error", err,
		)
		return &Error{Path: p.dir, Message: err.Error()}
	}
	return p.reloadLocked(fp)
}

func (p *Provider) reloadLocked(fp string) error {
	cfg, err := Load(p.dir)
	// Remember the fingerprint even on failure so a broken file is
	// reported once, not on every poll.
	p.fingerprint = fp
	if err != nil {
		slog.Warn("config reload failed, serving previous configuration",
			"dir", p.dir,
			"error", err,
		)
		return err
	}
	p.current.Store(cfg)
	slog.Info("config reloaded",
		"dir", p.dir,
		"target_indexes", len(cfg.indices),
	)
	for _, fn := range p.onChange {
		fn(cfg)
	}
	return nil
}

// Watch polls the directory every interval (DefaultWatchInterval if zero)
// and reloads when any CUE file changes. It returns when ctx is done.
func (p *Provider) Watch(ctx context.Context, interval time.Duration) error {
	if p.dir == "" {
		<-ctx.Done()
		return ctx.Err()
	}
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fp, err := fingerprint(p.dir)
			if err != nil {
				slog.Debug("config fingerprint failed", "dir", p.dir, "error", err)
				continue
			}
			p.mu.Lock()
			if fp != p.fingerprint {
				_ = p.reloadLocked(fp)
			}
			p.mu.Unlock()
		}
	}
}

// fingerprint hashes the names and contents of the CUE files in dir.
func fingerprint(dir string) (string, error) {
	files, err := cueFiles(dir)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return "", err
		}
		h.Write([]byte(f))
		h.Write([]byte{0x00})
		h.Write(b)
		h.Write([]byte{0x00})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
