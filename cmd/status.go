package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"syscall"

	"github.com/atomicobject/fsminer/pkg/lockfile"
	"github.com/atomicobject/fsminer/pkg/store/sqlite"
	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether an instance is running and how many entries are indexed",
	Long: `status has no channel into a running instance's live state (§6's
Non-goals exclude durable cross-process IPC), so it reports only what is
observable from outside: whether the lock is held, the PID that holds it
(probed with signal 0), and the store's current row count.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "emit the report as JSON")
	rootCmd.AddCommand(statusCmd)
}

type statusReport struct {
	Running bool `json:"running"`
	PID     int  `json:"pid,omitempty"`
	Entries int  `json:"entries"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	report := statusReport{}

	if pid, err := lockfile.ReadPID(); err == nil {
		if proc, err := os.FindProcess(pid); err == nil {
			if proc.Signal(syscall.Signal(0)) == nil {
				report.Running = true
				report.PID = pid
			}
		}
	}

	_, cliConfigFile, err := resolveOptions()
	if err == nil {
		if store, err := sqlite.Open(storePath(cliConfigFile)); err == nil {
			defer store.Close()
			if n, err := store.Count(context.Background()); err == nil {
				report.Entries = n
			}
		}
	}

	if statusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	if report.Running {
		fmt.Printf("fsminer: running (pid %d), %d entries indexed\n", report.PID, report.Entries)
	} else {
		fmt.Printf("fsminer: not running, %d entries indexed\n", report.Entries)
	}
	return nil
}
