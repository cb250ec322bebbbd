package bridge

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/berrythewa/clipbridge/internal/cache"
	"github.com/berrythewa/clipbridge/internal/mailbox"
	"github.com/berrythewa/clipbridge/internal/types"
	"github.com/berrythewa/clipbridge/pkg/format"
)

// Writer is the only thing the coordinator needs from a watcher.
// Write must not block on protocol I/O. seen is the Seq of the latest update
// from the writer's own side the coordinator had handled for the kind; the
// writer drops the write if it has reported a newer change since.
type Writer interface {
	Write(content *types.ClipboardContent, seen uint64)
}

// Coordinator decides whether an observed change propagates and where to.
// It is the only goroutine that touches the content cache.
type Coordinator struct {
	inbox   *mailbox.Mailbox[types.Update]
	cache   *cache.ContentCache
	writers map[types.Origin]Writer
	logger  *zap.Logger

	// latest Seq handled per origin and kind
	seen [2][2]uint64
}

// NewCoordinator wires the inbound mailbox to the writer of each side.
func NewCoordinator(inbox *mailbox.Mailbox[types.Update], x11, wayland Writer, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		inbox: inbox,
		cache: cache.New(),
		writers: map[types.Origin]Writer{
			types.OriginX11:     x11,
			types.OriginWayland: wayland,
		},
		logger: logger,
	}
}

// Run consumes updates until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info("Sync loop started")
	for {
		u, err := c.inbox.Recv(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				c.logger.Info("Sync loop stopped", zap.Uint64("dropped_updates", c.inbox.Dropped()))
				return nil
			}
			return err
		}
		c.handle(u)
	}
}

// handle applies one update and reports whether it was propagated.
func (c *Coordinator) handle(u types.Update) bool {
	if u.Content == nil || u.Content.Kind != u.Kind || !u.Kind.Valid() || !u.Origin.Valid() {
		c.logger.Warn("Dropping malformed update",
			zap.Stringer("kind", u.Kind),
			zap.Stringer("origin", u.Origin),
			zap.Stringer("content", u.Content))
		return false
	}

	if u.Seq > c.seen[u.Origin][u.Kind] {
		c.seen[u.Origin][u.Kind] = u.Seq
	}

	if c.cache.Matches(u.Kind, u.Content) {
		c.logger.Info("Duplicate content, skipping",
			zap.Stringer("kind", u.Kind),
			zap.Stringer("origin", u.Origin),
			zap.Stringer("content", u.Content))
		return false
	}

	target := u.Origin.Opposite()
	w, ok := c.writers[target]
	if !ok || w == nil {
		c.logger.Error("No writer for target side", zap.Stringer("target", target))
		return false
	}

	// The cache must hold the value before the opposite side can observe its
	// own write, otherwise that observation would bounce back.
	c.cache.Set(u.Kind, u.Content)
	w.Write(u.Content, c.seen[target][u.Kind])

	c.logger.Info("Propagating content",
		zap.Stringer("kind", u.Kind),
		zap.Stringer("from", u.Origin),
		zap.Stringer("to", target),
		zap.Stringer("content", u.Content))
	if ce := c.logger.Check(zap.DebugLevel, "Propagated content preview"); ce != nil {
		ce.Write(
			zap.Stringer("kind", u.Kind),
			zap.String("size", format.FormatSize(int64(u.Content.Len()))),
			zap.String("preview", format.Preview(u.Content, format.DefaultPreviewLen)))
	}
	return true
}
