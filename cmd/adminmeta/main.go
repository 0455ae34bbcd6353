// Package main is the entry point of the adminmeta server and its tooling.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pitabwire/adminmeta/internal/config"
	"github.com/pitabwire/adminmeta/internal/observability"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	observability.Version = version
	observability.Commit = commit

	rootCmd := &cobra.Command{
		Use:   "adminmeta",
		Short: "Metadata driven admin API for GraphQL content backends",
		Long: `adminmeta reads the admin metadata of a GraphQL content API and serves
list pages, item forms and relationship pickers built from it.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringP("config", "c", "config.yaml", "path to configuration file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}
