package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atomicobject/fsminer/pkg/config"
	"github.com/atomicobject/fsminer/pkg/lockfile"
	"github.com/atomicobject/fsminer/pkg/mcpserver"
	"github.com/atomicobject/fsminer/pkg/miner"
	"github.com/atomicobject/fsminer/pkg/uri"
	"github.com/spf13/cobra"
)

var (
	startInitialSleep    int
	startForceReindex    bool
	startDisableIndexing bool
	startLanguage        string
	startMonitorExclude  []string
	startMonitorInclude  []string
	startCrawlRoots      []string
	startDisabledModules []string
	startThrottle        float64
	startPoolLimit       int
	startLowMemory       bool
	startServeMCP        bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Crawl and monitor the configured roots until signaled",
	Long: `start acquires the single-instance lock, crawls every configured root,
installs live filesystem watches, and drains change events into the
metadata store until SIGINT/SIGTERM. SIGUSR1 pauses a running instance and
SIGUSR2 resumes it -- the same signals the pause/resume subcommands send.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().IntVarP(&startInitialSleep, "initial-sleep", "s", 0, "seconds to wait before the first crawl")
	startCmd.Flags().BoolVarP(&startForceReindex, "force-reindex", "r", false, "wipe the store's recorded mtimes before crawling")
	startCmd.Flags().BoolVarP(&startDisableIndexing, "disable-indexing", "n", false, "run read-only: crawl and monitor but never write to the store")
	startCmd.Flags().StringVarP(&startLanguage, "language", "l", "", "ISO-639-1 language code, saved with the options; the shipped extractor does not read it")
	startCmd.Flags().StringSliceVarP(&startMonitorExclude, "exclude", "e", nil, "paths to exclude from monitoring")
	startCmd.Flags().StringSliceVarP(&startMonitorInclude, "include", "i", nil, "paths to include in monitoring")
	startCmd.Flags().StringSliceVarP(&startCrawlRoots, "crawl-roots", "c", nil, "paths to crawl and monitor (repeatable/comma-separated)")
	startCmd.Flags().StringSliceVarP(&startDisabledModules, "disable-module", "d", nil, "disabled modules (accepted for CLI parity; this engine has no optional modules yet)")
	startCmd.Flags().Float64Var(&startThrottle, "throttle", -1, "0..1, higher is slower; defaults to the persisted option")
	startCmd.Flags().IntVar(&startPoolLimit, "pool-limit", 0, "max concurrent extractions; defaults to the persisted option")
	startCmd.Flags().BoolVar(&startLowMemory, "low-memory", false, "force pool-limit to 1; internal buffer sizes are not changed")
	startCmd.Flags().BoolVar(&startServeMCP, "mcp", false, "also serve the MCP control surface over stdio while running")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
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
	applyStartFlags(cmd, &opts)
	opts.Normalize()
	if err := config.Save(cliConfigFile, opts); err != nil {
		logf("fsminer: warning: failed to persist options: %v", err)
	}
	if len(startDisabledModules) > 0 {
		logf("fsminer: disabled modules: %v", startDisabledModules)
	}

	ctl, store, p, err := buildEngine(opts, cliConfigFile)
	if err != nil {
		return err
	}
	defer store.Close()
	defer p.Close()
	if startForceReindex {
		if err := store.Reset(context.Background()); err != nil {
			return err
		}
	}

	ctl.OnFinished = func(elapsed time.Duration, stats miner.Stats) {
		log.Printf("fsminer: crawl finished in %s: %+v", elapsed, stats)
	}
	ctl.OnProgress = func(progress float64) {
		logf("fsminer: progress %.0f%%", progress*100)
	}
	ctl.SetThrottle(opts.Throttle)

	if startInitialSleep > 0 {
		time.Sleep(time.Duration(startInitialSleep) * time.Second)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctl.Start(ctx)

	for _, root := range opts.CrawlRoots {
		ctl.AddRoot(miner.Root{URI: uri.New(root), Recurse: true, Flags: miner.RootFlags{Monitor: true}})
	}

	if startServeMCP {
		go func() {
			if err := mcpserver.Serve(ctl); err != nil {
				log.Printf("fsminer: mcp server error: %v", err)
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	for s := range sig {
		switch s {
		case syscall.SIGUSR1:
			ctl.Pause()
			log.Printf("fsminer: paused")
		case syscall.SIGUSR2:
			ctl.Resume()
			log.Printf("fsminer: resumed")
		default:
			ctl.Stop()
			return nil
		}
	}
	return nil
}

func applyStartFlags(cmd *cobra.Command, opts *config.Options) {
	if cmd.Flags().Changed("language") {
		opts.Language = startLanguage
	}
	if cmd.Flags().Changed("exclude") {
		opts.MonitorExclude = startMonitorExclude
	}
	if cmd.Flags().Changed("include") {
		opts.MonitorInclude = startMonitorInclude
	}
	if cmd.Flags().Changed("crawl-roots") {
		opts.CrawlRoots = startCrawlRoots
	}
	if cmd.Flags().Changed("disable-indexing") {
		opts.DisableIndexing = startDisableIndexing
	}
	if cmd.Flags().Changed("throttle") && startThrottle >= 0 {
		opts.Throttle = startThrottle
	}
	if cmd.Flags().Changed("pool-limit") && startPoolLimit > 0 {
		opts.ProcessPoolLimit = startPoolLimit
	}
	if cmd.Flags().Changed("low-memory") {
		opts.LowMemory = startLowMemory
	}
}

// monitorPredicate implements monitor_include/monitor_exclude (§6) as a
// Policy.MonitorChecks predicate: exclude wins over include, and an empty
// include list means "everything not excluded".
func monitorPredicate(include, exclude []string) miner.Predicate {
	return func(u uri.URI) bool {
		path := u.Path()
		for _, ex := range exclude {
			if ex != "" && pathUnder(path, ex) {
				return false
			}
		}
		if len(include) == 0 {
			return true
		}
		for _, in := range include {
			if in != "" && pathUnder(path, in) {
				return true
			}
		}
		return false
	}
}

func pathUnder(path, prefix string) bool {
	return path == prefix || (len(path) > len(prefix) && path[len(prefix)] == '/' && path[:len(prefix)] == prefix)
}
