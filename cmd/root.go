// Package cmd implements the fsminer CLI surface from §6, a cobra command
// tree grounded on the teacher's cmd/root.go (a rootCmd, an Execute() entry
// point, subcommands attached via init()/AddCommand).
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:     "fsminer",
	Short:   "fsminer - filesystem indexing engine",
	Version: "v0.1.0",
	Long: `fsminer crawls configured roots, watches them for live changes, and feeds
normalized create/update/delete/move events to a metadata store under
bounded concurrency.`,
}

// Execute runs the CLI, exiting 1 on error per §6's exit code contract.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}
