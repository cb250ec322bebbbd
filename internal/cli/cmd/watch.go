package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/berrythewa/clipbridge/internal/bridge"
	"github.com/berrythewa/clipbridge/internal/mailbox"
	"github.com/berrythewa/clipbridge/internal/types"
	"github.com/berrythewa/clipbridge/pkg/format"
)

const defaultWatchPreviewLen = 80

// newWatchCmd creates the watch command
func newWatchCmd() *cobra.Command {
	var maxLen int
	cmd := &cobra.Command{
		Use:   "watch x11|wayland",
		Short: "Print the selection changes one side reports",
		Long: `Run a single watcher without bridging and print one line per selection
change it reports: the kind, the size and a preview of the text.
Useful to check that clipbridge can read a display server.`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{types.OriginX11.String(), types.OriginWayland.String()},
		RunE: func(cmd *cobra.Command, args []string) error {
			origin, err := types.ParseOrigin(args[0])
			if err != nil {
				return err
			}
			return runSide(cmd.Context(), origin, nil, cmd.OutOrStdout(), maxLen)
		},
	}
	cmd.Flags().IntVar(&maxLen, "max-len", defaultWatchPreviewLen, "truncate previews to this many characters (0 for no limit)")
	return cmd
}

// runSide opens one side, publishes initial if set, and prints what the side
// reports until interrupted.
func runSide(parent context.Context, origin types.Origin, initial *types.ClipboardContent, out io.Writer, maxLen int) (err error) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer zapLogger.Sync()

	opts := bridge.SideOptions{}
	if initial != nil {
		opts.Kinds = []types.SelectionKind{initial.Kind}
	}
	inbox := mailbox.ForUpdates(cfg.Sync.QueueDepth)
	side, err := bridge.Open(origin, cfg, opts, inbox, zapLogger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, side.Close()) }()

	if initial != nil {
		// nothing seen on this side may override an explicit request
		side.Write(initial, types.SeqAny)
		zapLogger.Info("Publishing selection",
			zap.Stringer("side", origin),
			zap.Stringer("content", initial))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return side.Run(gctx) })
	g.Go(func() error {
		for {
			u, err := inbox.Recv(gctx)
			if err != nil {
				return nil
			}
			fmt.Fprintln(out, updateLine(u, maxLen))
		}
	})
	return g.Wait()
}

// updateLine renders an update as "kind<TAB>size<TAB>preview".
func updateLine(u types.Update, maxLen int) string {
	size := "-"
	if !u.Content.Cleared {
		size = format.FormatSize(int64(u.Content.Len()))
	}
	return fmt.Sprintf("%s\t%s\t%s", u.Kind, size, format.Preview(u.Content, maxLen))
}
