package home

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultDirName is the default name for the threadtag home directory.
	DefaultDirName = ".threadtag"

	// TracesDirName is the subdirectory for model call traces.
	TracesDirName = "traces"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
)

// Dir represents the threadtag home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.threadtag).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// TracesPath returns the path to the traces directory.
func (d *Dir) TracesPath() string {
	return filepath.Join(d.path, TracesDirName)
}

// TracePath returns a timestamped trace file path for a run started at t.
func (d *Dir) TracePath(t time.Time) string {
	return filepath.Join(d.TracesPath(), fmt.Sprintf("run_%s.jsonl", t.UTC().Format("20060102T150405Z")))
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	// Create traces directory (this also creates the parent)
	if err := os.MkdirAll(d.TracesPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create traces directory: %w", err)
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
