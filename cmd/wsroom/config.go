package main

import (
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type listenConfig struct {
	Endpoint             string        `yaml:"endpoint"`
	Origin               string        `yaml:"origin"`
	Rooms                []string      `yaml:"rooms"`
	MaxReconnectAttempts int           `yaml:"maxReconnectAttempts"`
	WriteTimeout         time.Duration `yaml:"writeTimeout"`
}

type serveConfig struct {
	Address string `yaml:"address"`
	Metrics bool   `yaml:"metrics"`
}

type config struct {
	LogLevel string       `yaml:"logLevel"`
	Listen   listenConfig `yaml:"listen"`
	Serve    serveConfig  `yaml:"serve"`
	Trace    traceConfig  `yaml:"trace"`
}

func defaultConfig() *config {
	return &config{
		LogLevel: "info",
		Serve: serveConfig{
			Address: "localhost:8080",
			Metrics: true,
		},
	}
}

// readConfig loads path over the defaults. An empty path yields the defaults.
func readConfig(path string) (*config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *config) logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: c.Level()}))
}
