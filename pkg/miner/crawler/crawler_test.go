package crawler_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/atomicobject/fsminer/pkg/miner"
	"github.com/atomicobject/fsminer/pkg/miner/crawler"
	"github.com/atomicobject/fsminer/pkg/miner/provider"
	"github.com/atomicobject/fsminer/pkg/uri"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alwaysNew() *miner.Policy {
	return &miner.Policy{
		FSMTime: provider.StatModTime,
		StoreMTime: func(ctx context.Context, u uri.URI) (time.Time, bool, error) {
			return time.Time{}, false, nil
		},
	}
}

func TestCrawlColdRootS1(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("b"), 0o644))

	p, err := provider.NewLocal()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	c := crawler.New(p, alwaysNew())
	res, err := c.Start(context.Background(), miner.Root{URI: uri.New(root), Recurse: true})
	require.NoError(t, err)

	assert.Equal(t, 2, res.FilesFound)
	assert.Equal(t, 1, res.DirsFound)
	assert.False(t, res.WasInterrupted)

	var fileOrder []string
	for _, it := range res.Items {
		if it.URI.Name() == "a.txt" || it.URI.Name() == "b.txt" {
			fileOrder = append(fileOrder, it.URI.Name())
		}
	}
	assert.Equal(t, []string{"a.txt", "b.txt"}, fileOrder)
}

func TestCrawlIncrementalUpdateS2(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("b"), 0o644))

	p, err := provider.NewLocal()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	aMTime, err := provider.StatModTime(uri.New(filepath.Join(root, "sub", "b.txt")))
	require.NoError(t, err)

	policy := &miner.Policy{
		FSMTime: provider.StatModTime,
		StoreMTime: func(ctx context.Context, u uri.URI) (time.Time, bool, error) {
			if u.Name() == "b.txt" {
				return aMTime, true, nil
			}
			return time.Time{}, false, nil
		},
	}

	c := crawler.New(p, policy)
	res, err := c.Start(context.Background(), miner.Root{URI: uri.New(root), Recurse: true})
	require.NoError(t, err)

	assert.Equal(t, 0, res.FilesFound)
	assert.Equal(t, 1, res.FilesIgnored)
	assert.Equal(t, 1, res.DirsFound) // the dir itself still walked/enqueued
}

func TestCrawlStopInterruptsWalk(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644))

	p, err := provider.NewLocal()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	policy := alwaysNew()
	c := crawler.New(p, policy)
	// Start clears any earlier Stop, so stop from inside the walk itself.
	policy.FileChecks = []miner.Predicate{func(u uri.URI) bool {
		c.Stop()
		return true
	}}
	res, err := c.Start(context.Background(), miner.Root{URI: uri.New(root), Recurse: true})
	require.NoError(t, err)
	assert.True(t, res.WasInterrupted)
}
