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
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, found, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if found {
		t.Error("found = true for a missing file")
	}
	if cfg.Server.Port != 8765 || cfg.Server.OpsPort != 9105 {
		t.Errorf("ports = %d/%d, want 8765/9105", cfg.Server.Port, cfg.Server.OpsPort)
	}
	if cfg.Server.MaxConcurrent != 4 {
		t.Errorf("MaxConcurrent = %d, want 4", cfg.Server.MaxConcurrent)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `server:
  port: 9999
  scratch_budget_mb: 512
logging:
  level: debug
tracing:
  enabled: true
  otlp_endpoint: collector:4317
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, found, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if !found {
		t.Error("found = false for an existing file")
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Server.OpsPort != 9105 {
		t.Errorf("OpsPort = %d, want the 9105 default for an unset key", cfg.Server.OpsPort)
	}
	if cfg.Server.ScratchBudgetMB != 512 {
		t.Errorf("ScratchBudgetMB = %d, want 512", cfg.Server.ScratchBudgetMB)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Logging.Level)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.OTLPEndpoint != "collector:4317" {
		t.Errorf("tracing = %+v, want enabled with collector:4317", cfg.Tracing)
	}
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: ["), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if _, _, err := loadConfig(path); err == nil {
		t.Error("expected an error for malformed YAML")
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("HWTESTER_PORT", "7070")
	t.Setenv("HWTESTER_LOG_LEVEL", "warn")
	t.Setenv("HWTESTER_TRACING_ENABLED", "true")

	cfg, _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Port = %d, want the 7070 env override", cfg.Server.Port)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Level = %q, want warn", cfg.Logging.Level)
	}
	if !cfg.Tracing.Enabled {
		t.Error("Tracing.Enabled = false, want the env override")
	}
}

func TestEnvHelpers_IgnoreBadValues(t *testing.T) {
	t.Setenv("HWTESTER_PORT", "not-a-number")
	t.Setenv("HWTESTER_TRACING_ENABLED", "perhaps")

	cfg, _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Server.Port != 8765 {
		t.Errorf("Port = %d, want the 8765 default after a bad override", cfg.Server.Port)
	}
	if cfg.Tracing.Enabled {
		t.Error("Tracing.Enabled = true, want default false after a bad override")
	}
}
