package paths

import (
	"os"
	"path/filepath"
)

// GetConfigDir returns the user's config directory for parley.
//
// If the home directory cannot be determined, it falls back to a directory
// under the system temporary directory. This is a best-effort fallback and
// not intended to be a security boundary.
func GetConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Clean(filepath.Join(os.TempDir(), ".parley-config"))
	}
	return filepath.Clean(filepath.Join(homeDir, ".config", "parley"))
}

// GetDataDir returns the user's data directory for parley (caches and logs).
//
// If the home directory cannot be determined, it falls back to a directory
// under the system temporary directory.
func GetDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Clean(filepath.Join(os.TempDir(), ".parley"))
	}
	return filepath.Clean(filepath.Join(homeDir, ".parley"))
}
