// Copyright 2025 The Mapies Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/massimahiou/mapies-sub001/server"
	"github.com/spf13/cobra"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the import HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if serveListen != "" {
			cfg.Server.Listen = serveListen
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p, err := newPipeline(ctx, cfg)
		if err != nil {
			return err
		}

		srv := server.NewServer(p.jobs, p.ingestor, p.markers, p.mirror)
		runErr := srv.Run(ctx, cfg.Server.Listen)

		log.Print("Waiting for running imports to finish…")

		if err := p.Close(); err != nil {
			log.Printf("Closing: %v", err)
		}

		if runErr != nil {
			return fmt.Errorf("serving: %w", runErr)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Address to listen on (default localhost:8080)")
}
