// Package commands implements the filemq command line.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Persistent flags
var (
	configFile string
	logLevel   string
)

// SetVersion sets the version info for --version and the version command.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = versionString()
}

func versionString() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}

var rootCmd = &cobra.Command{
	Use:   "filemq",
	Short: "Publish directories and mirror them into subscriber inboxes",
	Long: `FileMQ distributes files from published directories to subscribed
clients over a credit-based chunked protocol.

Run "filemq init" to write a sample configuration, then start a server and
one or more clients from it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate("filemq version {{.Version}}\n")

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to config file (default: $XDG_CONFIG_HOME/filemq/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (DEBUG, INFO, WARN, ERROR)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
