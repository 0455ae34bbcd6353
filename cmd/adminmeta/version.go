package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "adminmeta version: %s\n", version)
		fmt.Fprintf(out, "Git commit: %s\n", commit)
		fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
	},
}
