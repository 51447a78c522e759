package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/iambrandonn/vtask/internal/config"
)

// RequiredDirectories returns the directories a configured deployment writes into
func RequiredDirectories(cfg *config.Config) []string {
	var dirs []string
	seen := make(map[string]bool)
	add := func(dir string) {
		if dir == "" || dir == "." || seen[dir] {
			return
		}
		seen[dir] = true
		dirs = append(dirs, dir)
	}

	add(filepath.Dir(cfg.Store.Path)) // sqlite database and its WAL files
	if cfg.Audit.Path != "" {
		add(filepath.Dir(cfg.Audit.Path)) // NDJSON audit trail
	}
	add(cfg.Calls.RecordDir) // one JSON record per ended call
	return dirs
}

// Initialize creates the required directories with 0700 permissions.
// It is idempotent.
func Initialize(cfg *config.Config) error {
	for _, dir := range RequiredDirectories(cfg) {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// IsInitialized checks that every required directory exists
func IsInitialized(cfg *config.Config) (bool, error) {
	for _, dir := range RequiredDirectories(cfg) {
		info, err := os.Stat(dir)
		if os.IsNotExist(err) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to check directory %s: %w", dir, err)
		}
		if !info.IsDir() {
			return false, nil
		}
	}
	return true, nil
}
