package paths

import (
	"os"
	"path/filepath"
)

// GetConfigDir returns the user's config directory for panini.
//
// If the home directory cannot be determined, it falls back to a
// directory under the system temporary directory. This is a
// best-effort fallback and not intended to be a security boundary.
func GetConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Clean(filepath.Join(os.TempDir(), ".panini-config"))
	}
	return filepath.Clean(filepath.Join(homeDir, ".config", "panini"))
}

// GetDataDir returns the user's data directory for panini (the store,
// IP records, logs).
func GetDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Clean(filepath.Join(os.TempDir(), ".panini"))
	}
	return filepath.Clean(filepath.Join(homeDir, ".panini"))
}

// GetStoreRoot resolves the content-addressed store root, honoring the
// PANINI_STORE_ROOT override.
func GetStoreRoot() string {
	if root := os.Getenv("PANINI_STORE_ROOT"); root != "" {
		return filepath.Clean(root)
	}
	return filepath.Join(GetDataDir(), "store")
}
