// Package paths names the files guardiancord keeps in its data directory.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Data directory file names.
const (
	PIDFile             = "daemon.pid"
	ConfigFile          = "config.toml"
	LogFile             = "daemon.log"
	MembershipCacheFile = "membership-cache.json"
)

const (
	BinaryName = "guardiancord"
	DataDirRel = ".guardiancord" // relative to $HOME
)

// ///////////////////////////////////////////////
// DataDir
// ///////////////////////////////////////////////

// DataDir is the directory holding the config, PID file, log and cache.
type DataDir struct {
	Root string
}

// Default returns ~/.guardiancord, or ./.guardiancord when the home
// directory cannot be determined.
func Default() DataDir {
	home, err := os.UserHomeDir()
	if err != nil {
		return DataDir{Root: filepath.Join(".", DataDirRel)}
	}
	return DataDir{Root: filepath.Join(home, DataDirRel)}
}

// Ensure creates the directory if it does not exist.
func (d DataDir) Ensure() error {
	if err := os.MkdirAll(d.Root, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}

func (d DataDir) PID() string    { return filepath.Join(d.Root, PIDFile) }
func (d DataDir) Config() string { return filepath.Join(d.Root, ConfigFile) }
func (d DataDir) Log() string    { return filepath.Join(d.Root, LogFile) }

// MembershipCache is where the resolved player membership is kept between
// runs.
func (d DataDir) MembershipCache() string { return filepath.Join(d.Root, MembershipCacheFile) }
