// Package commands implements the hydrogate CLI.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/hydronet-io/hydrogate/pkg/apiclient"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
	apiURL  string
)

var rootCmd = &cobra.Command{
	Use:   "hydrogate",
	Short: "Hydrogate - SL651 telemetry gateway",
	Long: `Hydrogate is a protocol gateway for hydrological telemetry stations.
It terminates SL651 links over TCP, decodes station reports into
structured records, and exposes a management API for links, devices
and telemetry queries.

Use "hydrogate [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/hydrogate/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "management API base URL")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(deviceCmd)
	rootCmd.AddCommand(recordsCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}

// newClient builds an API client for the configured endpoint.
func newClient() *apiclient.Client {
	return apiclient.New(apiURL)
}
