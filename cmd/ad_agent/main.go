// Package main provides the entry point for the ad dashboard CLI and server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	apiURL     string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "ad_agent",
	Short: "Video ad generation dashboard",
	Long: `ad_agent creates video ads from a product brief, follows their generation through
the five production stages and serves the progress dashboard over HTTP.

Settings are read from --config, then AD_* environment variables, then flags.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.json file (values can be overridden by env vars and flags)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Base URL of the ad generation API (overrides AD_API_BASE_URL)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print debug logs")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
