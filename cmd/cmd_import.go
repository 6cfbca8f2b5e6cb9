// Copyright 2025 The Mapies Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/massimahiou/mapies-sub001/extract"
	"github.com/massimahiou/mapies-sub001/ingest"
	"github.com/massimahiou/mapies-sub001/utils/textutils"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var importOptions struct {
	userID  string
	mapID   string
	mapping extract.ColumnMapping
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a CSV or XLSX file into a map and wait for the job to finish",
	Long: `Reads a CSV (comma, semicolon or tab separated) or XLSX file, geocodes
every row lacking coordinates and writes the markers to the given map.

$ mapies import stores.csv --user u1 --map m1 --name-col Name --address-col Address
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		raw, err := extract.ReadFile(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()

		p, err := newPipeline(ctx, cfg)
		if err != nil {
			return err
		}
		defer p.Close()

		jobID, err := p.ingestor.Submit(ctx, ingest.SubmitRequest{
			UserID:   importOptions.userID,
			MapID:    importOptions.mapID,
			FileName: filepath.Base(args[0]),
			RawText:  raw,
			Mapping:  importOptions.mapping,
		})
		if err != nil {
			return err
		}

		job, err := waitForJob(ctx, p.jobs, jobID)
		if err != nil {
			return err
		}

		printSummary(job)

		if job.Status == ingest.StatusFailed {
			return fmt.Errorf("job %s failed", job.ID)
		}

		return nil
	},
}

// waitForJob polls the job until it reaches a terminal status, drawing a
// progress bar when stderr is a terminal.
func waitForJob(ctx context.Context, jobs ingest.JobStore, jobID string) (*ingest.Job, error) {
	var (
		bar           *progressbar.ProgressBar
		lastProcessed = -1
	)

	interactive := isatty.IsTerminal(os.Stderr.Fd())
	ticker := time.NewTicker(250 * time.Millisecond)

	defer ticker.Stop()

	for {
		job, err := jobs.Get(ctx, jobID)
		if err != nil {
			return nil, err
		}

		p := job.Progress

		if job.Status == ingest.StatusProcessing && p.Total > 0 && p.Processed != lastProcessed {
			lastProcessed = p.Processed

			switch {
			case !interactive:
				log.Printf("[%d/%d] %s", p.Processed, p.Total, p.CurrentStep)
			case bar == nil:
				bar = progressbar.NewOptions(p.Total,
					progressbar.OptionSetDescription("Geocoding "+job.FileName),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)

				fallthrough
			default:
				if err := bar.Set(p.Processed); err != nil {
					return nil, fmt.Errorf("updating progress bar: %w", err)
				}
			}
		}

		if job.Status.IsTerminal() {
			if bar != nil {
				_ = bar.Finish()
			}

			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func printSummary(job *ingest.Job) {
	p := job.Progress
	fmt.Printf("Job %s %s\n", job.ID, job.Status)
	fmt.Printf("  rows:               %s (skipped %s)\n", textutils.FormatInt(int64(p.Total)), textutils.FormatInt(int64(p.Skipped)))
	fmt.Printf("  markers added:      %s\n", textutils.FormatInt(int64(job.Results.MarkersAdded)))
	fmt.Printf("  geocoding failures: %s\n", textutils.FormatInt(int64(p.GeocodingFailures)))
	fmt.Printf("  duplicates:         %s\n", textutils.FormatInt(int64(p.Duplicates)))
	fmt.Printf("  time:               %s\n", time.Duration(job.Results.ProcessingTimeMs)*time.Millisecond)

	for _, e := range job.Results.Errors {
		fmt.Printf("  error: %s\n", e)
	}
}

func addMappingFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&importOptions.mapping.Name, "name-col", "Name", "Header of the name column")
	cmd.Flags().StringVar(&importOptions.mapping.Address, "address-col", "", "Header of the address column")
	cmd.Flags().StringVar(&importOptions.mapping.Lat, "lat-col", "", "Header of the latitude column")
	cmd.Flags().StringVar(&importOptions.mapping.Lng, "lng-col", "", "Header of the longitude column")
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringVar(&importOptions.userID, "user", "", "Owner of the map")
	importCmd.Flags().StringVar(&importOptions.mapID, "map", "", "Map receiving the markers")
	addMappingFlags(importCmd)

	_ = importCmd.MarkFlagRequired("user")
	_ = importCmd.MarkFlagRequired("map")
}
