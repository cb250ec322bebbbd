package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/berrythewa/clipbridge/internal/bridge"
)

// newRunCmd creates the run command
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the clipboard bridge in the foreground",
		Long: `Connect to the X server and the Wayland compositor and keep their
selections in sync until interrupted with SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBridge(cmd.Context())
		},
	}
}

func runBridge(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	zapLogger.Info("Starting clipbridge", zap.String("version", version))
	defer zapLogger.Sync()

	if err := bridge.Run(ctx, cfg, zapLogger); err != nil {
		zapLogger.Error("Bridge stopped with error", zap.Error(err))
		return err
	}
	zapLogger.Info("Bridge stopped")
	return nil
}
