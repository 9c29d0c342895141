package cmd

import (
	"fmt"

	"github.com/atomicobject/fsminer/pkg/config"
	"github.com/spf13/cobra"
)

var addRootCmd = &cobra.Command{
	Use:   "add-root <path>",
	Short: "Add a crawl root to the persisted configuration",
	Long: `add-root only mutates the persisted option file (§6); it takes effect
the next time "start" is run, since there is no durable queue or IPC to
hand a new root to a running instance.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, cliConfigFile, err := resolveOptions()
		if err != nil {
			return err
		}
		root := args[0]
		for _, existing := range opts.CrawlRoots {
			if existing == root {
				fmt.Printf("fsminer: %s is already a crawl root\n", root)
				return nil
			}
		}
		opts.CrawlRoots = append(opts.CrawlRoots, root)
		opts.Normalize()
		if err := config.Save(cliConfigFile, opts); err != nil {
			return err
		}
		fmt.Printf("fsminer: added crawl root %s\n", root)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(addRootCmd)
}
