package commands

import (
	"fmt"
	"os"

	"github.com/dyluth/glimpse/internal/config"
	"github.com/dyluth/glimpse/internal/printer"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// defaultRedisURL is used when neither --redis nor GLIMPSE_REDIS_URL is set
const defaultRedisURL = "redis://localhost:6379/0"

var (
	version string
	commit  string
	date    string

	configPath string
	envFile    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "glimpse",
	Short: "Glimpse - stimulus generation and trial control for detection tasks",
	Long: `Glimpse drives a visual detection task: it generates reproducible
binary-tile noise frames locked to the display refresh, embeds a coherent
target after a randomized onset, classifies subject responses, and logs
every frame seed so each stimulus can be reconstructed offline.

Events are written to CSV, XLSX and/or Redis streams for live monitoring.`,
	Version: version,
	// Prevent silent success when unknown flags are passed to root command
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	// Enable strict flag parsing - unknown flags will cause an error
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// Silence Cobra's default error and usage printing
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "f", "glimpse.yml", "Session configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file with GLIMPSE_* overrides (optional)")
}

// resolveRedisURL picks the Redis URL: flag, then GLIMPSE_REDIS_URL (from
// the environment or the env file), then the local default.
func resolveRedisURL(flag string) string {
	if flag != "" {
		return flag
	}
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				printer.Warning("Failed to load %s: %v\n", envFile, err)
			}
		}
	}
	if v := os.Getenv(config.EnvRedisURL); v != "" {
		return v
	}
	return defaultRedisURL
}
