package cmd

import (
	"syscall"

	"github.com/atomicobject/fsminer/pkg/lockfile"
	"github.com/spf13/cobra"
)

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause a running instance",
	Long: `pause signals SIGUSR1 to the PID recorded in the lockfile, the same
signal a running "start" instance's signal loop already handles.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := lockfile.Signal(syscall.SIGUSR1); err != nil {
			fatalf("fsminer: %v", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pauseCmd)
}
