package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/berrythewa/clipbridge/internal/types"
)

// newSetCmd creates the set command
func newSetCmd() *cobra.Command {
	var toX11, toWayland, primary bool
	cmd := &cobra.Command{
		Use:   "set TEXT",
		Short: "Publish text as the selection of one side",
		Long: `Take the clipboard (or, with --primary, the primary selection) of one display
server and serve TEXT to paste requests until interrupted. Changes made by
other clients meanwhile are printed as by the watch command.`,
		Example: `  clipbridge set --wayland "hello from the bridge"
  clipbridge set --x11 --primary "selected text"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			origin := types.OriginX11
			if toWayland {
				origin = types.OriginWayland
			}
			kind := types.Clipboard
			if primary {
				kind = types.Primary
			}
			content, err := setContent(kind, args[0], cfg.Sync.MaxContentBytes)
			if err != nil {
				return err
			}
			return runSide(cmd.Context(), origin, content, cmd.OutOrStdout(), defaultWatchPreviewLen)
		},
	}
	cmd.Flags().BoolVar(&toX11, "x11", false, "set the X11 selection")
	cmd.Flags().BoolVar(&toWayland, "wayland", false, "set the Wayland selection")
	cmd.Flags().BoolVar(&primary, "primary", false, "set the primary selection instead of the clipboard")
	cmd.MarkFlagsOneRequired("x11", "wayland")
	cmd.MarkFlagsMutuallyExclusive("x11", "wayland")
	return cmd
}

func setContent(kind types.SelectionKind, text string, limit int) (*types.ClipboardContent, error) {
	if len(text) > limit {
		return nil, fmt.Errorf("text of %d bytes exceeds sync.max_content_bytes (%d)", len(text), limit)
	}
	return types.NewText(kind, []byte(text))
}
