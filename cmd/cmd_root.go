// Copyright 2025 The Mapies Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/massimahiou/mapies-sub001/config"
	"github.com/spf13/cobra"
)

type logWriter struct {
	writer io.Writer
}

func (w *logWriter) Write(bytes []byte) (int, error) {
	return fmt.Fprintf(w.writer, "%s %s", time.Now().Format("2006-01-02 15:04:05"), string(bytes))
}

func init() {
	log.SetFlags(0)
	log.SetOutput(&logWriter{writer: os.Stderr})

	rootCmd.PersistentFlags().StringVar(&rootOptions.configPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&rootOptions.dbPath, "db-path", "", "DuckDB database file (default db/mapies.duckdb)")
	rootCmd.PersistentFlags().BoolVar(&rootOptions.traceHTTP, "trace-http", false, "Dump geocoding HTTP requests and responses to stderr")
	rootCmd.PersistentFlags().BoolVar(&rootOptions.traceHTTPBody, "trace-http-body", false, "Include response bodies in the HTTP trace")
}

var rootCmd = &cobra.Command{
	Use:   "mapies",
	Short: "bulk address import and geocoding for maps",
	Long: `
mapies turns spreadsheets of named addresses into map markers. Addresses are
geocoded with OpenStreetMap Nominatim and, when a token is configured, with
Mapbox as a fallback. Imports run as jobs whose progress can be polled.
`,
	SilenceUsage: true,
}

var Version = "dev"

// rootOptions are the flags shared by every command.
var rootOptions struct {
	configPath    string
	dbPath        string
	traceHTTP     bool
	traceHTTPBody bool
}

// loadConfig reads the configuration and applies the global flags on top.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(rootOptions.configPath)
	if err != nil {
		return config.Config{}, err
	}

	if rootOptions.dbPath != "" {
		cfg.Storage.DBPath = rootOptions.dbPath
	}

	return cfg, nil
}

func Execute(version string) {
	Version = version

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
