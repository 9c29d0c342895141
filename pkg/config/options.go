package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Options holds the recognized configuration keys from §6. It is persisted
// as YAML at the path CliPath resolves, the way the teacher persists its own
// preferences file, and may be overridden by CLI flags.
type Options struct {
	Throttle            float64  `yaml:"throttle"`
	ProcessPoolLimit    int      `yaml:"process_pool_limit"`
	InitialSleepSeconds int      `yaml:"initial_sleep_seconds"`
	LowMemory           bool     `yaml:"low_memory"`
	MonitorInclude      []string `yaml:"monitor_include,omitempty"`
	MonitorExclude      []string `yaml:"monitor_exclude,omitempty"`
	CrawlRoots          []string `yaml:"crawl_roots,omitempty"`
	DisableIndexing     bool     `yaml:"disable_indexing"`
	Language            string   `yaml:"language"`
}

// Defaults returns the option set a fresh install runs with.
func Defaults() Options {
	return Options{
		Throttle:            0,
		ProcessPoolLimit:    1,
		InitialSleepSeconds: 0,
		Language:            "en",
	}
}

// Normalize clamps and derives fields the way the controller and pool
// expect them (throttle in [0,1], pool_limit >= 1, low_memory forcing a
// single concurrent extraction per §6).
func (o *Options) Normalize() {
	if o.Throttle < 0 {
		o.Throttle = 0
	}
	if o.Throttle > 1 {
		o.Throttle = 1
	}
	if o.ProcessPoolLimit < 1 {
		o.ProcessPoolLimit = 1
	}
	if o.LowMemory {
		o.ProcessPoolLimit = 1
	}
}

// Load reads options from path, falling back to Defaults() when the file
// does not exist yet.
func Load(path string) (Options, error) {
	opts := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return opts, nil
		}
		return opts, err
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, err
	}
	opts.Normalize()
	return opts, nil
}

// Save persists opts as YAML at path, creating parent directories as needed.
func Save(path string, opts Options) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(opts)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
