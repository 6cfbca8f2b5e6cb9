// Copyright 2025 The Mapies Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bufio"
	"fmt"
	"os"

	"github.com/massimahiou/mapies-sub001/geocoding"
	"github.com/spf13/cobra"
)

// isTerminal reports whether f is a character device. When in doubt
// we say that it isn't.
func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}

	return (info.Mode() & os.ModeCharDevice) != 0
}

var debugMaxVariations int

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Dev tools",
}

var debugVariationsCmd = &cobra.Command{
	Use:   "variations",
	Short: "Print the fallback query variations of each address",
	Long: `Reads an address per line and prints the variations the fallback provider
would be queried with, in order.

$ echo "201-1234 Rue Saint-Denis, Montréal, QC H2X 3K4, Canada" | mapies debug variations
201-1234 Rue Saint-Denis, Montréal, QC H2X 3K4, Canada
	0	201-1234 Rue Saint-Denis, Montréal, QC H2X 3K4, Canada
	1	201-1234 Rue Saint-Denis, Montréal, QC
	2	1234 Rue Saint-Denis, Montréal, QC
	3	Montréal, QC
`,
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		input := os.Stdin
		if isTerminal(input) {
			fmt.Fprintln(os.Stderr, "Enter addresses to analyze, one per line…")
		}

		scanner := bufio.NewScanner(input)
		for scanner.Scan() {
			address := scanner.Text()
			fmt.Println(address)

			for i, v := range geocoding.Variations(address, debugMaxVariations) {
				fmt.Printf("\t%d\t%s\n", i, v)
			}
		}

		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(debugCmd)
	debugCmd.AddCommand(debugVariationsCmd)
	debugVariationsCmd.Flags().IntVar(&debugMaxVariations, "max", geocoding.DefaultMaxVariations, "Maximum number of variations")
}
