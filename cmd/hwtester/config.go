// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the config.yaml schema. Every field has a default, so a
// missing file or a partial file both work.
type Config struct {
	Server struct {
		Port            int   `yaml:"port"`
		OpsPort         int   `yaml:"ops_port"`
		MaxConcurrent   int   `yaml:"max_concurrent"`
		ScratchBudgetMB int64 `yaml:"scratch_budget_mb"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level"`
		Dir    string `yaml:"dir"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
	Tracing struct {
		Enabled      bool   `yaml:"enabled"`
		OTLPEndpoint string `yaml:"otlp_endpoint"`
	} `yaml:"tracing"`
}

func defaultConfig() Config {
	var cfg Config
	cfg.Server.Port = 8765
	cfg.Server.OpsPort = 9105
	cfg.Server.MaxConcurrent = 4
	cfg.Logging.Level = "info"
	return cfg
}

// loadConfig reads path on top of the defaults and then applies
// environment overrides. A missing file is not an error; found
// reports whether one was read.
func loadConfig(path string) (cfg Config, found bool, err error) {
	cfg = defaultConfig()

	data, readErr := os.ReadFile(path)
	switch {
	case readErr == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, true, fmt.Errorf("parsing %s: %w", path, err)
		}
		found = true
	case os.IsNotExist(readErr):
		// Defaults and environment only.
	default:
		return cfg, false, fmt.Errorf("reading %s: %w", path, readErr)
	}

	applyEnvOverrides(&cfg)
	return cfg, found, nil
}

// applyEnvOverrides lets deployment environments adjust the config
// without editing the file. OTEL_EXPORTER_OTLP_ENDPOINT keeps its
// standard name so collector setups need no translation.
func applyEnvOverrides(cfg *Config) {
	cfg.Server.Port = envInt("HWTESTER_PORT", cfg.Server.Port)
	cfg.Server.OpsPort = envInt("HWTESTER_OPS_PORT", cfg.Server.OpsPort)
	cfg.Server.MaxConcurrent = envInt("HWTESTER_MAX_CONCURRENT", cfg.Server.MaxConcurrent)
	cfg.Logging.Level = envString("HWTESTER_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Dir = envString("HWTESTER_LOG_DIR", cfg.Logging.Dir)
	cfg.Tracing.Enabled = envBool("HWTESTER_TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.OTLPEndpoint = envString("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Tracing.OTLPEndpoint)
}

func envString(key, cur string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return cur
}

func envInt(key string, cur int) int {
	v := os.Getenv(key)
	if v == "" {
		return cur
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("ignoring non-numeric environment override", "key", key, "value", v)
		return cur
	}
	return n
}

func envBool(key string, cur bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return cur
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("ignoring non-boolean environment override", "key", key, "value", v)
		return cur
	}
	return b
}
