// Copyright 2025 The Mapies Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/massimahiou/mapies-sub001/extract"
	"github.com/massimahiou/mapies-sub001/store"
	"github.com/spf13/cobra"
)

var jobsOptions struct {
	userID    string
	limit     int
	retryFile string
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and retry import jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the most recent import jobs of a user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		db, err := store.Open(cmd.Context(), cfg.Storage.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		jobs, err := store.NewJobRepository(db).List(cmd.Context(), jobsOptions.userID, jobsOptions.limit)
		if err != nil {
			return err
		}

		a, b, c, d := strings.Repeat("─", 36), strings.Repeat("─", 10), strings.Repeat("─", 11), strings.Repeat("─", 30)
		fmt.Printf("╭─%-36s─┬─%-10s─┬─%-11s─┬─%-30s╮\n", a, b, c, d)
		fmt.Printf("│ %-36s │ %-10s │ %-11s │ %-30s│\n", "Id", "Status", "Processed", "File")
		fmt.Printf("├─%-36s─┼─%-10s─┼─%-11s─┼─%-30s┤\n", a, b, c, d)

		for _, job := range jobs {
			processed := fmt.Sprintf("%d/%d", job.Progress.Processed, job.Progress.Total)
			fmt.Printf("│ %-36s │ %-10s │ %11s │ %-30s│\n", job.ID, job.Status, processed, truncate(job.FileName, 30))
		}

		fmt.Printf("╰─%-36s─┴─%-10s─┴─%-11s─┴─%-30s╯\n", a, b, c, d)

		return nil
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Print a job as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		db, err := store.Open(cmd.Context(), cfg.Storage.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		job, err := store.NewJobRepository(db).Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(job)
	},
}

var jobsRetryCmd = &cobra.Command{
	Use:   "retry <job-id>",
	Short: "Retry a failed job with the original file",
	Long: `The job record does not keep the uploaded content, so the same file must be
given again.

$ mapies jobs retry 6f1c… --file stores.csv
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		raw, err := extract.ReadFile(jobsOptions.retryFile)
		if err != nil {
			return err
		}

		ctx := cmd.Context()

		p, err := newPipeline(ctx, cfg)
		if err != nil {
			return err
		}
		defer p.Close()

		if err := p.ingestor.Retry(ctx, args[0], raw); err != nil {
			return err
		}

		job, err := waitForJob(ctx, p.jobs, args[0])
		if err != nil {
			return err
		}

		printSummary(job)

		return nil
	},
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}

	return string(r[:n-1]) + "…"
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsShowCmd)
	jobsCmd.AddCommand(jobsRetryCmd)

	jobsListCmd.Flags().StringVar(&jobsOptions.userID, "user", "", "Owner of the jobs")
	jobsListCmd.Flags().IntVar(&jobsOptions.limit, "limit", 20, "Maximum number of jobs")
	_ = jobsListCmd.MarkFlagRequired("user")

	jobsRetryCmd.Flags().StringVar(&jobsOptions.retryFile, "file", "", "CSV or XLSX file to import again")
	_ = jobsRetryCmd.MarkFlagRequired("file")
}
