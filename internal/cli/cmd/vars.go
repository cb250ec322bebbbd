package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/berrythewa/clipbridge/internal/config"
)

// Shared variables across all commands
var (
	cfg       *config.Config
	zapLogger *zap.Logger

	cfgFile  string
	logLevel string
)

// skipSetup replaces the root PersistentPreRunE for commands that must work
// without a loadable configuration.
func skipSetup(*cobra.Command, []string) error { return nil }
