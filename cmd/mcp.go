package cmd

import (
	"context"

	"github.com/atomicobject/fsminer/pkg/lockfile"
	"github.com/atomicobject/fsminer/pkg/mcpserver"
	"github.com/atomicobject/fsminer/pkg/miner"
	"github.com/atomicobject/fsminer/pkg/uri"
	"github.com/spf13/cobra"
)

var mcpCrawlRoots []string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP control surface over stdio against a fresh engine instance",
	Long: `mcp builds its own engine instance and serves it over stdio, mirroring
the teacher's cmd/mcp.go building a fresh cache service per invocation. It
acquires the same single-instance lock as "start", so it cannot run
alongside a "start" instance (use "start --mcp" for that).`,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringSliceVarP(&mcpCrawlRoots, "crawl-roots", "c", nil, "paths to crawl and monitor; defaults to the persisted option")
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	lock, err := lockfile.Acquire()
	if err != nil {
		if err == lockfile.ErrHeld {
			fatalf("fsminer: another instance already holds the lock at %s", lockfile.Path())
		}
		return err
	}
	defer lock.Release()

	opts, cliConfigFile, err := resolveOptions()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("crawl-roots") {
		opts.CrawlRoots = mcpCrawlRoots
	}
	opts.Normalize()

	ctl, store, p, err := buildEngine(opts, cliConfigFile)
	if err != nil {
		return err
	}
	defer store.Close()
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctl.Start(ctx)
	for _, root := range opts.CrawlRoots {
		ctl.AddRoot(miner.Root{URI: uri.New(root), Recurse: true, Flags: miner.RootFlags{Monitor: true}})
	}

	return mcpserver.Serve(ctl)
}
