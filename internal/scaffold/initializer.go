package scaffold

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/glimpse/internal/config"
)

//go:embed templates/*
var templatesFS embed.FS

// ConfigFile is the file written by glimpse init.
const ConfigFile = "glimpse.yml"

// Template returns the default glimpse.yml content.
func Template() ([]byte, error) {
	content, err := templatesFS.ReadFile("templates/glimpse.yml.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read glimpse.yml template: %w", err)
	}
	return content, nil
}

// Initialize writes glimpse.yml into dir and returns its path.
// If force is true, an existing glimpse.yml is replaced.
func Initialize(dir string, force bool) (string, error) {
	path := filepath.Join(dir, ConfigFile)

	if force {
		if err := handleForce(path); err != nil {
			return "", err
		}
	}

	content, err := Template()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	// The template must load with the same rules as a user-edited file
	if _, err := config.Load(path); err != nil {
		return "", fmt.Errorf("created %s is invalid: %w", ConfigFile, err)
	}

	return path, nil
}

// handleForce removes an existing config if --force was specified
func handleForce(path string) error {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("⚠️  Removing existing %s...\n", ConfigFile)
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", ConfigFile, err)
		}
	}
	return nil
}

// PrintSuccess prints the success message with next steps
func PrintSuccess(path string) {
	fmt.Println("\n✅ Successfully initialized glimpse session config!")
	fmt.Println("\nCreated:")
	fmt.Printf("  ✓ %s\n", path)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Set the subject, trial count and timing in glimpse.yml")
	fmt.Println("  2. Optionally put GLIMPSE_REDIS_URL in .env to stream events to Redis")
	fmt.Println("  3. Run 'glimpse run' to start a session")
}
