package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version information - accessed via cli package
var (
	version   = "dev"
	buildTime = "unknown"
	commit    = "none"
)

// SetVersionInfo allows setting version info from outside
func SetVersionInfo(v, bt, c string) {
	version = v
	buildTime = bt
	commit = c
}

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print detailed version information about clipbridge.`,
		Args:  cobra.NoArgs,

		PersistentPreRunE: skipSetup,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "clipbridge\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Build Time: %s\n", buildTime)
			fmt.Fprintf(out, "Commit:     %s\n", commit)
		},
	}
}
