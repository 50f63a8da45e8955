package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// ConfigDirEnv points fedwire at a state directory other than ~/.config/fedwire.
const ConfigDirEnv = "FEDWIRE_CONFIG_DIR"

// ConfigDir returns the directory holding the config file, the database and
// the keys/ subdirectory. It is created on first use.
func ConfigDir() (string, error) {
	dir := os.Getenv(ConfigDirEnv)
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("locating home directory: %w", err)
		}
		dir = filepath.Join(home, ".config", Name)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	return dir, nil
}

// StatePath locates a state file. Absolute paths are kept, a file already in
// the working directory wins, and everything else lives in ConfigDir.
func StatePath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	if _, err := os.Stat(name); err == nil {
		return name
	}
	dir, err := ConfigDir()
	if err != nil {
		return name
	}
	return filepath.Join(dir, name)
}

// KeyPath returns where the actor key is read from or written to. Relative
// key paths resolve under keys/, next to the other state files, and the
// containing directory is created so a fresh key can be written.
func KeyPath(conf *AppConfig) string {
	path := conf.Conf.KeyPath
	if !filepath.IsAbs(path) {
		path = StatePath(filepath.Join("keys", path))
	}
	_ = os.MkdirAll(filepath.Dir(path), 0700)
	return path
}
