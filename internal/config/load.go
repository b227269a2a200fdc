package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// Load reads the global, data and project configuration files in that order,
// applies VLIST_* environment overrides and fills in defaults.
func Load(workingDir string, debug bool) (*Config, error) {
	cfg := &Config{
		workingDir:     workingDir,
		dataConfigPath: GlobalConfigData(),
	}
	for _, path := range configPaths(workingDir) {
		if err := cfg.merge(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	cfg.setDefaults(workingDir)
	if debug {
		cfg.Options.Debug = true
	}

	if err := cfg.EngineConfig().Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine configuration: %w", err)
	}
	return cfg, nil
}

func configPaths(workingDir string) []string {
	return []string{
		GlobalConfig(),
		GlobalConfigData(),
		filepath.Join(workingDir, "."+appName+".json"),
	}
}

func (c *Config) merge(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.loadedFrom = append(c.loadedFrom, path)
	return nil
}

func (c *Config) applyEnv() {
	if c.Options == nil {
		c.Options = &Options{}
	}
	if v := os.Getenv("VLIST_DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			slog.Warn("Ignoring invalid VLIST_DEBUG", "value", v)
		} else {
			c.Options.Debug = debug
		}
	}
	if v := os.Getenv("VLIST_LOG_LEVEL"); v != "" {
		c.Options.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("VLIST_DATA_DIR"); v != "" {
		c.Options.DataDirectory = v
	}
}

func (c *Config) setDefaults(workingDir string) {
	if c.Options == nil {
		c.Options = &Options{}
	}
	if c.Options.DataDirectory == "" {
		c.Options.DataDirectory = defaultDataDirectory
	}
	if !filepath.IsAbs(c.Options.DataDirectory) {
		c.Options.DataDirectory = filepath.Join(workingDir, c.Options.DataDirectory)
	}
	if c.Options.LogLevel == "" {
		c.Options.LogLevel = defaultLogLevel
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Options.LogLevel)); err != nil {
		slog.Warn("Ignoring invalid log level", "value", c.Options.LogLevel)
		c.Options.LogLevel = defaultLogLevel
	}
	if c.Options.LogLevel == "debug" {
		c.Options.Debug = true
	}

	if c.Demo == nil {
		c.Demo = &DemoOptions{}
	}
	if c.Demo.Items <= 0 {
		c.Demo.Items = defaultDemoItems
	}
	if c.Demo.MouseWheelStep <= 0 {
		c.Demo.MouseWheelStep = defaultMouseWheelStep
	}
}

// GlobalConfig returns the path to the user's main configuration file.
func GlobalConfig() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName, appName+".json")
	}
	return filepath.Join(homeDir(), ".config", appName, appName+".json")
}

// GlobalConfigData returns the path to the configuration file vlist writes
// to, kept apart from the one users edit by hand.
func GlobalConfigData() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appName, appName+".json")
	}

	// return the path to the main data directory
	// for windows, it should be in `%LOCALAPPDATA%/vlist/`
	// for linux and macOS, it should be in `$HOME/.local/share/vlist/`
	if runtime.GOOS == "windows" {
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			localAppData = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Local")
		}
		return filepath.Join(localAppData, appName, appName+".json")
	}

	return filepath.Join(homeDir(), ".local", "share", appName, appName+".json")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
