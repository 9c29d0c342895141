package config_test

import (
	"path/filepath"
	"testing"

	"github.com/atomicobject/fsminer/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	opts, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, config.Defaults(), opts)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "options.yaml")
	want := config.Options{
		Throttle:         0.5,
		ProcessPoolLimit: 4,
		CrawlRoots:       []string{"/data"},
		Language:         "fr",
	}
	require.NoError(t, config.Save(path, want))

	got, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestNormalizeClampsThrottleAndPoolLimit(t *testing.T) {
	opts := config.Options{Throttle: 5, ProcessPoolLimit: 0}
	opts.Normalize()
	assert.Equal(t, 1.0, opts.Throttle)
	assert.Equal(t, 1, opts.ProcessPoolLimit)

	opts = config.Options{Throttle: -1, ProcessPoolLimit: 8, LowMemory: true}
	opts.Normalize()
	assert.Equal(t, 0.0, opts.Throttle)
	assert.Equal(t, 1, opts.ProcessPoolLimit)
}
