package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/berrythewa/clipbridge/internal/common"
	"github.com/berrythewa/clipbridge/internal/config"
)

// NewRootCmd builds the clipbridge command tree. Running it without a
// subcommand starts the bridge.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "clipbridge",
		Short: "Bridge the clipboard between X11 and Wayland",
		Long: `clipbridge keeps the X11 and Wayland clipboards in sync:
  • text copied in an X11 application can be pasted in Wayland, and back
  • both the clipboard and the primary selection are bridged
  • runs in the foreground until interrupted`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBridge(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/clipbridge/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config and "+config.EnvLogLevel+")")

	rootCmd.AddCommand(
		newRunCmd(),
		newWatchCmd(),
		newSetCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// setup loads configuration and builds the logger shared by all commands
func setup() error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	zapLogger, err = common.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}
