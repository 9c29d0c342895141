package cmd

import (
	"syscall"

	"github.com/atomicobject/fsminer/pkg/lockfile"
	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused instance",
	Long:  `resume signals SIGUSR2 to the PID recorded in the lockfile.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := lockfile.Signal(syscall.SIGUSR2); err != nil {
			fatalf("fsminer: %v", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}
