package store

import (
	"os"
	"path/filepath"
)

// DBFile is the database file name inside a profile directory.
const DBFile = "sprout.db"

// DefaultProfileRoot returns the directory holding every device profile.
// Defaults to ~/.sprout/profiles, or ./.sprout/profiles when no home directory is known.
func DefaultProfileRoot() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		cwd, _ := os.Getwd()
		return filepath.Join(cwd, ".sprout", "profiles")
	}
	return filepath.Join(home, ".sprout", "profiles")
}

// ProfileDir returns the directory of one profile under root.
func ProfileDir(root, profileID string) string {
	return filepath.Join(root, profileID)
}

// ProfileDBPath returns the database path for a profile under the default root.
// Example: ProfileDBPath("kitchen-tablet") -> ~/.sprout/profiles/kitchen-tablet/sprout.db
func ProfileDBPath(profileID string) string {
	return filepath.Join(ProfileDir(DefaultProfileRoot(), profileID), DBFile)
}

// EnsureDir creates the parent directory of a database path.
func EnsureDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// ListProfiles returns the profile ids that already have a database under root.
func ListProfiles(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() || ValidateID(e.Name()) != nil {
			continue
		}
		if _, err := os.Stat(filepath.Join(root, e.Name(), DBFile)); err == nil {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}
