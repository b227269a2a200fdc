package virt

import (
	"fmt"
	"math"
)

const (
	defaultOverdrawFactor          = 1.0
	defaultMinOverdraw             = 16
	defaultMaxOverdraw             = 4096
	defaultCullFraction            = 1.5
	defaultMinCullAmount           = 32
	defaultMaxSimultaneousMeasures = 16
	defaultPoolCapacity            = 50
)

// Config tunes how far beyond the viewport the engine renders and culls.
type Config struct {
	// Overdraw is clamp(viewport*OverdrawFactor, MinOverdraw, MaxOverdraw).
	OverdrawFactor float64
	MinOverdraw    int
	MaxOverdraw    int

	// Cull margin is max(viewport*CullFraction, MinCullAmount). It must
	// always exceed the overdraw so growth and culling never fight.
	CullFraction  float64
	MinCullAmount int

	// MaxSimultaneousMeasures caps how many unmeasured cells may be
	// materialized at once.
	MaxSimultaneousMeasures int

	// PoolCapacity is the number of detached cells kept for reuse.
	PoolCapacity int

	// Strict turns invariant violations into panics.
	Strict bool
}

func DefaultConfig() Config {
	return Config{
		OverdrawFactor:          defaultOverdrawFactor,
		MinOverdraw:             defaultMinOverdraw,
		MaxOverdraw:             defaultMaxOverdraw,
		CullFraction:            defaultCullFraction,
		MinCullAmount:           defaultMinCullAmount,
		MaxSimultaneousMeasures: defaultMaxSimultaneousMeasures,
		PoolCapacity:            defaultPoolCapacity,
	}
}

// Validate checks the tuning values, including that the cull margin is
// larger than the overdraw for every viewport size.
func (c Config) Validate() error {
	switch {
	case c.OverdrawFactor < 0 || math.IsNaN(c.OverdrawFactor):
		return fmt.Errorf("overdraw factor must be non-negative, got %v", c.OverdrawFactor)
	case c.MinOverdraw < 0:
		return fmt.Errorf("min overdraw must be non-negative, got %d", c.MinOverdraw)
	case c.MaxOverdraw < c.MinOverdraw:
		return fmt.Errorf("max overdraw %d is below min overdraw %d", c.MaxOverdraw, c.MinOverdraw)
	case c.CullFraction <= c.OverdrawFactor:
		return fmt.Errorf("cull fraction %v must exceed overdraw factor %v", c.CullFraction, c.OverdrawFactor)
	case c.MinCullAmount <= c.MinOverdraw:
		return fmt.Errorf("min cull amount %d must exceed min overdraw %d", c.MinCullAmount, c.MinOverdraw)
	case c.MaxSimultaneousMeasures < 1:
		return fmt.Errorf("max simultaneous measures must be at least 1, got %d", c.MaxSimultaneousMeasures)
	case c.PoolCapacity < 0:
		return fmt.Errorf("pool capacity must be non-negative, got %d", c.PoolCapacity)
	}
	return nil
}

func (c Config) overdraw(viewport int) int {
	amount := int(float64(viewport) * c.OverdrawFactor)
	return min(max(amount, c.MinOverdraw), c.MaxOverdraw)
}

func (c Config) cullMargin(viewport int) int {
	return max(int(float64(viewport)*c.CullFraction), c.MinCullAmount)
}

// Option configures an Engine.
type Option func(*Config)

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg
	}
}

// WithPoolCapacity sets how many detached cells are kept for reuse.
func WithPoolCapacity(n int) Option {
	return func(c *Config) {
		c.PoolCapacity = n
	}
}

// WithMaxSimultaneousMeasures sets the outstanding measurement ceiling.
func WithMaxSimultaneousMeasures(n int) Option {
	return func(c *Config) {
		c.MaxSimultaneousMeasures = n
	}
}

// WithOverdraw sets the overdraw factor and bounds.
func WithOverdraw(factor float64, minAmount, maxAmount int) Option {
	return func(c *Config) {
		c.OverdrawFactor = factor
		c.MinOverdraw = minAmount
		c.MaxOverdraw = maxAmount
	}
}

// WithCull sets the cull fraction and minimum.
func WithCull(fraction float64, minAmount int) Option {
	return func(c *Config) {
		c.CullFraction = fraction
		c.MinCullAmount = minAmount
	}
}

func WithStrict() Option {
	return func(c *Config) {
		c.Strict = true
	}
}
