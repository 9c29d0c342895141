package cmd

import (
	"context"

	"github.com/atomicobject/fsminer/pkg/config"
	"github.com/atomicobject/fsminer/pkg/miner"
	"github.com/atomicobject/fsminer/pkg/miner/engine"
	"github.com/atomicobject/fsminer/pkg/miner/provider"
	"github.com/atomicobject/fsminer/pkg/store/sqlite"
	"github.com/atomicobject/fsminer/pkg/uri"
)

// buildEngine wires a fresh store, provider, and policy into a Controller
// from opts, the same assembly "start" and "mcp" both need. The caller owns
// closing the returned store/provider and starting/stopping the controller.
func buildEngine(opts config.Options, cliConfigFile string) (*engine.Controller, *sqlite.Store, *provider.Local, error) {
	store, err := sqlite.Open(storePath(cliConfigFile))
	if err != nil {
		return nil, nil, nil, err
	}

	var minerStore miner.Store = store
	if opts.DisableIndexing {
		minerStore = miner.ReadOnlyStore{Store: store}
	}

	p, err := provider.NewLocal()
	if err != nil {
		store.Close()
		return nil, nil, nil, err
	}

	policy := &miner.Policy{
		FSMTime:    provider.StatModTime,
		StoreMTime: minerStore.MTime,
	}
	if len(opts.MonitorInclude) > 0 || len(opts.MonitorExclude) > 0 {
		policy.MonitorChecks = []miner.Predicate{monitorPredicate(opts.MonitorInclude, opts.MonitorExclude)}
	}

	var ctl *engine.Controller
	extractor := miner.NewStatExtractor(func(u uri.URI, notifyErr error) {
		ctl.NotifyFile(context.Background(), u, notifyErr)
	})
	ctl = engine.New(p, policy, minerStore, opts.ProcessPoolLimit, extractor)
	return ctl, store, p, nil
}
