package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/blockberries/pollberry/engine"
)

// daemonConfig is the on-disk configuration of pollberryd
type daemonConfig struct {
	Engine    *engine.Config `yaml:"engine"`
	Listen    string         `yaml:"listen"`
	LogLevel  string         `yaml:"log_level"`
	LogFormat string         `yaml:"log_format"` // text or json
}

func defaultDaemonConfig() *daemonConfig {
	return &daemonConfig{
		Engine:    engine.DefaultConfig(),
		Listen:    ":8080",
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// loadDaemonConfig reads path over the defaults. An empty path returns the
// defaults.
func loadDaemonConfig(path string) (*daemonConfig, error) {
	cfg := defaultDaemonConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.UnmarshalStrict(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}
	if cfg.Engine == nil {
		cfg.Engine = engine.DefaultConfig()
	}
	if cfg.Listen == "" {
		return nil, fmt.Errorf("listen address is required")
	}
	if err := cfg.Engine.ValidateBasic(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the daemon logger. A non-empty levelOverride wins over
// the configured level.
func newLogger(cfg *daemonConfig, levelOverride string) (*log.Logger, error) {
	logger := log.New()
	logger.SetOutput(os.Stderr)

	switch cfg.LogFormat {
	case "", "text":
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&log.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.LogFormat)
	}

	name := cfg.LogLevel
	if levelOverride != "" {
		name = levelOverride
	}
	level, err := log.ParseLevel(name)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)
	return logger, nil
}
