package cmd

import (
	"fmt"

	"github.com/atomicobject/fsminer/pkg/config"
	"github.com/spf13/cobra"
)

var removeRootCmd = &cobra.Command{
	Use:   "remove-root <path>",
	Short: "Remove a crawl root from the persisted configuration",
	Long: `remove-root only mutates the persisted option file (§6); it takes
effect the next time "start" is run.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, cliConfigFile, err := resolveOptions()
		if err != nil {
			return err
		}
		root := args[0]
		kept := opts.CrawlRoots[:0]
		found := false
		for _, existing := range opts.CrawlRoots {
			if existing == root {
				found = true
				continue
			}
			kept = append(kept, existing)
		}
		if !found {
			fmt.Printf("fsminer: %s is not a configured crawl root\n", root)
			return nil
		}
		opts.CrawlRoots = kept
		opts.Normalize()
		if err := config.Save(cliConfigFile, opts); err != nil {
			return err
		}
		fmt.Printf("fsminer: removed crawl root %s\n", root)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(removeRootCmd)
}
