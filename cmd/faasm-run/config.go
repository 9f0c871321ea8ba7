package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap/zapcore"
)

// faasm-run config.toml key mapping to runner settings.
type fileConfig struct {
	Wasm          string `toml:"wasm"`
	Entrypoint    string `toml:"entrypoint"`
	WorldSize     int    `toml:"world_size"`
	ProcessorName string `toml:"processor_name"`
	LogLevel      string `toml:"log_level"`
	MetricsAddr   string `toml:"metrics_listen_addr"`
}

type runConfig struct {
	WasmPath      string
	Entrypoint    string
	WorldSize     int
	ProcessorName string
	LogLevel      zapcore.Level
	MetricsAddr   string
}

func defaultRunConfig() runConfig {
	host, _ := os.Hostname()
	return runConfig{
		Entrypoint:    "_start",
		WorldSize:     1,
		ProcessorName: host,
		LogLevel:      zapcore.InfoLevel,
	}
}

// loadRunConfig reads the TOML runner config with a default overlay.
func loadRunConfig(path string) (runConfig, error) {
	cfg := defaultRunConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return runConfig{}, fmt.Errorf("load runner config: %w", err)
	}

	if meta.IsDefined("wasm") {
		cfg.WasmPath = strings.TrimSpace(raw.Wasm)
	}
	if meta.IsDefined("entrypoint") {
		cfg.Entrypoint = strings.TrimSpace(raw.Entrypoint)
	}
	if meta.IsDefined("world_size") {
		cfg.WorldSize = raw.WorldSize
	}
	if meta.IsDefined("processor_name") {
		cfg.ProcessorName = strings.TrimSpace(raw.ProcessorName)
	}
	if meta.IsDefined("log_level") {
		level, err := zapcore.ParseLevel(strings.TrimSpace(raw.LogLevel))
		if err != nil {
			return runConfig{}, fmt.Errorf("load runner config: log level %q: %w", raw.LogLevel, err)
		}
		cfg.LogLevel = level
	}
	if meta.IsDefined("metrics_listen_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}

	if cfg.WasmPath == "" {
		return runConfig{}, fmt.Errorf("load runner config: wasm module path is required")
	}
	if cfg.WorldSize < 1 {
		return runConfig{}, fmt.Errorf("load runner config: world_size %d below 1", cfg.WorldSize)
	}
	if cfg.Entrypoint == "" {
		return runConfig{}, fmt.Errorf("load runner config: entrypoint must not be empty")
	}
	return cfg, nil
}
