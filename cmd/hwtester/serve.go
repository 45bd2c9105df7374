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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/hwtester/pkg/logging"
	"github.com/AleutianAI/hwtester/pkg/ux"
	"github.com/AleutianAI/hwtester/services/tester"
	"github.com/AleutianAI/hwtester/services/tester/datatypes"
	"github.com/AleutianAI/hwtester/services/tester/observability"
)

func runServe(cmd *cobra.Command, args []string) {
	cfg, found, err := loadConfig(configPath)
	if err != nil {
		ux.Error(fmt.Sprintf("loading configuration: %v", err))
		os.Exit(1)
	}

	// Flags win over both the file and the environment.
	if portFlag != 0 {
		cfg.Server.Port = portFlag
	}
	if opsPortFlag != 0 {
		cfg.Server.OpsPort = opsPortFlag
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	level, levelErr := logging.ParseLevel(cfg.Logging.Level)
	logger := logging.Initialize(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "hwtester",
		Format:  cfg.Logging.Format,
	})
	defer logger.Close()

	if levelErr != nil {
		logger.Warn("unknown log level, using info", "level", cfg.Logging.Level)
	}
	if !found {
		logger.Info("no config file found, using defaults", "path", configPath)
	}

	ux.Banner(datatypes.ServerName, datatypes.ServerVersion,
		cfg.Server.Port, cfg.Server.OpsPort)

	svcLog := logging.GetLogger("tester")
	svcLog.Info("starting hardware tester",
		"version", datatypes.ServerVersion,
		"port", cfg.Server.Port,
		"opsPort", cfg.Server.OpsPort,
		"tracing", cfg.Tracing.Enabled)

	metrics := observability.InitMetrics()
	svc := tester.New(tester.Config{
		Port:               cfg.Server.Port,
		OpsPort:            cfg.Server.OpsPort,
		MaxConcurrent:      cfg.Server.MaxConcurrent,
		ScratchBudgetBytes: cfg.Server.ScratchBudgetMB << 20,
		TracingEnabled:     cfg.Tracing.Enabled,
		OTLPEndpoint:       cfg.Tracing.OTLPEndpoint,
	}, svcLog, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.Run(ctx); err != nil {
		svcLog.Error("server exited", "error", err)
		logger.Close()
		os.Exit(1)
	}
}
