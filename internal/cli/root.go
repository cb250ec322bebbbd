// Package cli implements the command-line interface for clipbridge
package cli

import (
	"fmt"
	"os"

	cmdpkg "github.com/berrythewa/clipbridge/internal/cli/cmd"
)

// SetVersionInfo records build information for the version command
func SetVersionInfo(version, buildTime, commit string) {
	cmdpkg.SetVersionInfo(version, buildTime, commit)
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := cmdpkg.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
