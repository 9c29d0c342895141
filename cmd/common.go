package cmd

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/atomicobject/fsminer/pkg/config"
)

var verbose bool

// logf logs only when -v/--verbose is set, the CLI surface's verbosity
// knob from §6.
func logf(format string, args ...any) {
	if verbose {
		log.Printf(format, args...)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// resolveOptions loads the persisted option file (§6), falling back to
// Defaults() when it does not exist yet, and returns the path it lives (or
// would be saved) at.
func resolveOptions() (config.Options, string, error) {
	_, cliConfigFile, err := config.CliPath()
	if err != nil {
		return config.Options{}, "", err
	}
	opts, err := config.Load(cliConfigFile)
	if err != nil {
		return config.Options{}, "", err
	}
	return opts, cliConfigFile, nil
}

// storePath places the SQLite store sink alongside the option file.
func storePath(cliConfigFile string) string {
	return filepath.Join(filepath.Dir(cliConfigFile), "index.sqlite")
}
