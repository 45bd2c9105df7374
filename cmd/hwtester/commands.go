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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath  string
	portFlag    int
	opsPortFlag int
	logLevel    string

	rootCmd = &cobra.Command{
		Use:   "hwtester",
		Short: "A memory hierarchy measurement server",
		Long: `hwtester serves remotely invokable latency experiments over a
websocket command protocol, so notebook clients can plot cache and
memory behavior of the machine it runs on.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the measurement server",
		Run:   runServe, // Defined in serve.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml",
		"Path to the YAML configuration file")

	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&portFlag, "port", 0,
		"Websocket command port (overrides config and environment)")
	serveCmd.Flags().IntVar(&opsPortFlag, "ops-port", 0,
		"Metrics and probe port (overrides config and environment)")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, or error (overrides config)")
}
