package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/charmbracelet/vlist/internal/virt"
	"github.com/tidwall/sjson"
)

const (
	appName              = "vlist"
	defaultDataDirectory = ".vlist"
	defaultLogLevel      = "info"

	defaultDemoItems      = 10000
	defaultMouseWheelStep = 2
)

// EngineOptions mirrors virt.Config. Zero values keep the engine defaults.
type EngineOptions struct {
	OverdrawFactor          float64 `json:"overdraw_factor,omitempty"`
	MinOverdraw             int     `json:"min_overdraw,omitempty"`
	MaxOverdraw             int     `json:"max_overdraw,omitempty"`
	CullFraction            float64 `json:"cull_fraction,omitempty"`
	MinCullAmount           int     `json:"min_cull_amount,omitempty"`
	MaxSimultaneousMeasures int     `json:"max_simultaneous_measures,omitempty"`
	// PoolCapacity is a pointer since zero disables recycling.
	PoolCapacity *int `json:"pool_capacity,omitempty"`
	Strict       bool `json:"strict,omitempty"`
}

type DemoOptions struct {
	Items          int    `json:"items,omitempty"`
	Seed           uint64 `json:"seed,omitempty"`
	MouseWheelStep int    `json:"mouse_wheel_step,omitempty"`
	Accessibility  bool   `json:"accessibility,omitempty"`
}

type Options struct {
	Debug         bool   `json:"debug,omitempty"`
	LogLevel      string `json:"log_level,omitempty"`
	DataDirectory string `json:"data_directory,omitempty"` // Relative to the cwd
}

// Level is the level logs are written at. Debug wins over LogLevel.
func (o *Options) Level() slog.Level {
	if o.Debug {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Config holds the configuration for vlist.
type Config struct {
	Engine  *EngineOptions `json:"engine,omitempty"`
	Demo    *DemoOptions   `json:"demo,omitempty"`
	Options *Options       `json:"options,omitempty"`

	// Internal
	workingDir     string   `json:"-"`
	dataConfigPath string   `json:"-"`
	loadedFrom     []string `json:"-"`
}

// LoadedFrom lists the files that contributed to the configuration, in the
// order they were applied.
func (c *Config) LoadedFrom() []string {
	return c.loadedFrom
}

// EngineConfig converts the engine section into an engine configuration.
func (c *Config) EngineConfig() virt.Config {
	cfg := virt.DefaultConfig()
	e := c.Engine
	if e == nil {
		return cfg
	}
	if e.OverdrawFactor > 0 {
		cfg.OverdrawFactor = e.OverdrawFactor
	}
	if e.MinOverdraw > 0 {
		cfg.MinOverdraw = e.MinOverdraw
	}
	if e.MaxOverdraw > 0 {
		cfg.MaxOverdraw = e.MaxOverdraw
	}
	if e.CullFraction > 0 {
		cfg.CullFraction = e.CullFraction
	}
	if e.MinCullAmount > 0 {
		cfg.MinCullAmount = e.MinCullAmount
	}
	if e.MaxSimultaneousMeasures > 0 {
		cfg.MaxSimultaneousMeasures = e.MaxSimultaneousMeasures
	}
	if e.PoolCapacity != nil {
		cfg.PoolCapacity = *e.PoolCapacity
	}
	cfg.Strict = e.Strict
	return cfg
}

func (c *Config) LogFile() string {
	return filepath.Join(c.Options.DataDirectory, "logs", appName+".log")
}

func (c *Config) SetAccessibility(enabled bool) error {
	if c.Demo == nil {
		c.Demo = &DemoOptions{}
	}
	c.Demo.Accessibility = enabled
	return c.SetConfigField("demo.accessibility", enabled)
}

// SetConfigField writes a single dotted key to the user's data config file.
func (c *Config) SetConfigField(key string, value any) error {
	// read the data
	data, err := os.ReadFile(c.dataConfigPath)
	if err != nil {
		if os.IsNotExist(err) {
			data = []byte("{}")
		} else {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	newValue, err := sjson.Set(string(data), key, value)
	if err != nil {
		return fmt.Errorf("failed to set config field %s: %w", key, err)
	}
	if err := os.MkdirAll(filepath.Dir(c.dataConfigPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(c.dataConfigPath, []byte(newValue), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
