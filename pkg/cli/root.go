// Package cli implements the httpmocker command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// EnvURL overrides the default controller URL of client commands.
const EnvURL = "HTTP_MOCKER_URL"

// EnvToken supplies the bearer token of client commands.
const EnvToken = "HTTP_MOCKER_TOKEN"

const defaultURL = "http://localhost:8080"

var (
	// Persistent flags available to all client subcommands
	controllerURL string
	token         string
	jsonOutput    bool

	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "httpmocker",
	Short: "httpmocker runs mock HTTP apps whose handlers are uploaded at runtime",
	Long: `httpmocker runs a controller that starts mock HTTP apps on demand. Each app
accepts handler modules (Go source or YAML) and per-route JSON data over HTTP
and serves them without a restart.

Configuration can be provided via flags, environment variables (HTTP_MOCKER_*),
or a YAML configuration file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func init() {
	url := os.Getenv(EnvURL)
	if url == "" {
		url = defaultURL
	}
	rootCmd.PersistentFlags().StringVar(&controllerURL, "url", url, "Controller base URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv(EnvToken), "Bearer token for the controller")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output command results in JSON format")
}
