package scaffold

import (
	"fmt"
	"os"
	"path/filepath"
)

// CheckExisting returns an error if dir already holds a glimpse.yml
func CheckExisting(dir string) error {
	path := filepath.Join(dir, ConfigFile)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("session config already exists\n\nFound existing: %s\n\nUse 'glimpse init --force' to reinitialize (this will overwrite existing configuration)", path)
	}
	return nil
}
