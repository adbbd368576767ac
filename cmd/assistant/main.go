// Copyright (C) 2025 Quay Market (engineering@quaymarket.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command assistant starts the Quay conversational assistant server.
//
// # Environment Variables
//
//   - QUAY_AUTH_TOKEN: static bearer secret; empty disables auth
//   - OPENAI_API_KEY: required for the openai backend
//   - OLLAMA_BASE_URL: Ollama server URL (default: http://localhost:11434)
//   - SEARCH_API_URL / SEARCH_API_KEY: web search backend (optional)
//
// A .env file in the working directory is loaded if present.
//
// # Usage
//
//	# Run with defaults (local Ollama backend, port 12310)
//	assistant serve
//
//	# Run against a config file
//	assistant serve --config quay.yaml
package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/quaymarket/quay/pkg/logging"
	"github.com/quaymarket/quay/services/assistant"
)

var (
	configPath string
	port       int
	backend    string
	logDir     string
	verbose    bool

	rootCmd = &cobra.Command{
		Use:   "assistant",
		Short: "The Quay marketplace conversational assistant",
		Long: `Quay assistant routes buyer and seller conversations through a typed
intent graph: chat, search, crawling, file work, image generation, and
sandboxed code execution behind a single WebSocket endpoint.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the assistant HTTP server",
		Run:   runServe,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("error executing command: %v", err)
	}
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	serveCmd.Flags().IntVar(&port, "port", 0, "HTTP server port (overrides config)")
	serveCmd.Flags().StringVar(&backend, "backend", "", "LLM backend: openai or ollama (overrides config)")
	serveCmd.Flags().StringVar(&logDir, "log-dir", "", "directory for JSON log files")
	serveCmd.Flags().BoolVar(&verbose, "verbose", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	// Local development convenience; absence is not an error.
	if err := godotenv.Load(); err == nil {
		log.Println("loaded environment from .env")
	}

	level := logging.LevelInfo
	if verbose {
		level = logging.LevelDebug
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  logDir,
		Service: "assistant",
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	var cfg assistant.Config
	if configPath != "" {
		loaded, err := assistant.LoadConfig(configPath)
		if err != nil {
			logger.Error("failed to load config", "path", configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if port != 0 {
		cfg.Port = port
	}
	if backend != "" {
		cfg.LLMBackend = backend
	}

	svc, err := assistant.New(cfg)
	if err != nil {
		logger.Error("failed to create assistant service", "error", err)
		os.Exit(1)
	}

	if err := svc.Run(); err != nil {
		logger.Error("assistant server error", "error", err)
		os.Exit(1)
	}
}
