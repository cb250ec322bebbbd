package x11

import (
	"context"

	"github.com/BurntSushi/xgb/xproto"

	"github.com/berrythewa/clipbridge/internal/types"
)

// Display is the part of an X server connection the watcher drives.
// Owner, Fetch, Claim and Release are only ever called from the watcher
// goroutine; serving other clients' requests happens behind the interface.
type Display interface {
	// Self is the hidden window the bridge owns selections with.
	Self() xproto.Window
	// Owner returns the current owner window of a selection, or xproto.WindowNone.
	Owner(kind types.SelectionKind) (xproto.Window, error)
	// Fetch converts the selection to text, trying targets in preference order.
	Fetch(ctx context.Context, kind types.SelectionKind) ([]byte, error)
	// Claim takes ownership of the selection and serves data until another client claims it.
	Claim(kind types.SelectionKind, data []byte) error
	// Release gives up ownership of the selection.
	Release(kind types.SelectionKind) error
	// OwnerChanges delivers selection owner notifications, or nil if unsupported.
	OwnerChanges() <-chan types.SelectionKind
	// Closed is closed once the server connection is gone.
	Closed() <-chan struct{}
	Close() error
}
