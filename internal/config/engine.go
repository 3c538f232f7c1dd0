package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/degraphmalizer/internal/ir"
	"github.com/roach88/degraphmalizer/internal/trees"
	"github.com/roach88/degraphmalizer/internal/workpool"
)

// Engine is the engine configuration file:
//
//	pool_size: 8
//	max_in_flight: 32
//	max_depth: 32
//	max_nodes: 10000
//	backpressure_delay: 50ms
//	retry:
//	  base: 500ms
//	  max: 30s
//	  multiplier: 2
//	  max_attempts: 5
//
// Omitted fields keep their defaults. MaxInFlight 0 means four times the
// pool size; MaxDepth, MaxNodes and Retry.MaxAttempts 0 mean unlimited.
type Engine struct {
	PoolSize          int           `yaml:"pool_size"`
	MaxInFlight       int           `yaml:"max_in_flight"`
	MaxDepth          int           `yaml:"max_depth"`
	MaxNodes          int           `yaml:"max_nodes"`
	BackpressureDelay time.Duration `yaml:"backpressure_delay"`
	Retry             Retry         `yaml:"retry"`
}

// Retry configures store-unavailable retries.
type Retry struct {
	Base        time.Duration `yaml:"base"`
	Max         time.Duration `yaml:"max"`
	Multiplier  float64       `yaml:"multiplier"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// DefaultEngine returns the configuration used when no file is given.
func DefaultEngine() Engine {
	return Engine{
		PoolSize:          workpool.DefaultSize,
		MaxDepth:          trees.DefaultMaxDepth,
		MaxNodes:          trees.DefaultMaxNodes,
		BackpressureDelay: 50 * time.Millisecond,
		Retry: Retry{
			Base:        500 * time.Millisecond,
			Max:         30 * time.Second,
			Multiplier:  2,
			MaxAttempts: 5,
		},
	}
}

// Validate rejects negative or inconsistent settings.
func (e Engine) Validate() error {
	var errs []error
	if e.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("pool_size must be at least 1, got %d", e.PoolSize))
	}
	if e.MaxInFlight < 0 {
		errs = append(errs, fmt.Errorf("max_in_flight must not be negative, got %d", e.MaxInFlight))
	}
	if e.MaxDepth < 0 {
		errs = append(errs, fmt.Errorf("max_depth must not be negative, got %d", e.MaxDepth))
	}
	if e.MaxNodes < 0 {
		errs = append(errs, fmt.Errorf("max_nodes must not be negative, got %d", e.MaxNodes))
	}
	if e.BackpressureDelay < 0 {
		errs = append(errs, fmt.Errorf("backpressure_delay must not be negative, got %s", e.BackpressureDelay))
	}
	if e.Retry.Base <= 0 {
		errs = append(errs, fmt.Errorf("retry.base must be positive, got %s", e.Retry.Base))
	}
	if e.Retry.Max < e.Retry.Base {
		errs = append(errs, fmt.Errorf("retry.max %s is below retry.base %s", e.Retry.Max, e.Retry.Base))
	}
	if e.Retry.Multiplier < 1 {
		errs = append(errs, fmt.Errorf("retry.multiplier must be at least 1, got %g", e.Retry.Multiplier))
	}
	if e.Retry.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must not be negative, got %d", e.Retry.MaxAttempts))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ir.ErrConfigurationInvalid, errors.Join(errs...))
	}
	return nil
}

// ParseEngine decodes YAML over the defaults and validates the result.
func ParseEngine(data []byte) (Engine, error) {
	cfg := DefaultEngine()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Engine{}, fmt.Errorf("%w: parse engine config: %w", ir.ErrConfigurationInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return Engine{}, err
	}
	return cfg, nil
}

// LoadEngine reads an engine config file. An empty path returns the
// defaults.
func LoadEngine(path string) (Engine, error) {
	if path == "" {
		return DefaultEngine(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Engine{}, fmt.Errorf("read engine config: %w", err)
	}
	return ParseEngine(data)
}
