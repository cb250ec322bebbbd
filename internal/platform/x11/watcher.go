// Package x11 watches and serves the CLIPBOARD and PRIMARY selections of an X
// server.
package x11

import (
	"context"
	"time"

	"github.com/BurntSushi/xgb/xproto"
	"go.uber.org/zap"

	"github.com/berrythewa/clipbridge/internal/mailbox"
	"github.com/berrythewa/clipbridge/internal/types"
)

const (
	DefaultPollInterval = 200 * time.Millisecond
	maxFetchAttempts    = 3
)

// WatcherConfig holds the watcher's loop settings.
type WatcherConfig struct {
	PollInterval time.Duration
	Kinds        []types.SelectionKind
	QueueDepth   int
}

type writeRequest struct {
	content *types.ClipboardContent
	// latest local change of the kind the coordinator had seen
	seen uint64
}

// Watcher polls selection ownership, reports foreign changes and applies
// writes coming from the other side. All Display calls happen on the Run
// goroutine.
type Watcher struct {
	display  Display
	out      *mailbox.Mailbox[types.Update]
	writes   *mailbox.Mailbox[writeRequest]
	kinds    []types.SelectionKind
	interval time.Duration
	logger   *zap.Logger

	owners   map[types.SelectionKind]xproto.Window
	failures map[types.SelectionKind]int
	seq      types.Sequence
}

// NewWatcher creates a watcher that reports to out.
func NewWatcher(display Display, out *mailbox.Mailbox[types.Update], cfg WatcherConfig, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if len(cfg.Kinds) == 0 {
		cfg.Kinds = types.Kinds
	}
	return &Watcher{
		display: display,
		out:     out,
		writes: mailbox.New(cfg.QueueDepth, func(r writeRequest) types.SelectionKind {
			return r.content.Kind
		}),
		kinds:    cfg.Kinds,
		interval: cfg.PollInterval,
		logger:   logger.Named("x11"),
		owners:   make(map[types.SelectionKind]xproto.Window),
		failures: make(map[types.SelectionKind]int),
	}
}

// Write queues content to be published on the X side. It never blocks.
// seen is the Seq of the latest X11 update the caller had processed for the
// kind; the write is dropped if a later local change has been reported.
func (w *Watcher) Write(content *types.ClipboardContent, seen uint64) {
	if content == nil || !content.Kind.Valid() {
		return
	}
	req := writeRequest{content: content, seen: seen}
	if w.writes.Push(req) {
		w.logger.Debug("Dropped stale pending write", zap.Stringer("kind", content.Kind))
	}
}

// Run polls until ctx is cancelled or the display connection is lost.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("X11 watcher started",
		zap.Duration("poll_interval", w.interval),
		zap.Bool("xfixes", w.display.OwnerChanges() != nil))

	w.pollAll(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("X11 watcher stopped")
			return nil
		case <-w.display.Closed():
			return ErrDisplayClosed
		case <-ticker.C:
			w.pollAll(ctx)
		case kind := <-w.display.OwnerChanges():
			if w.enabled(kind) {
				w.poll(ctx, kind, true)
			}
		case <-w.writes.Ready():
			w.drainWrites()
		}
	}
}

func (w *Watcher) enabled(kind types.SelectionKind) bool {
	for _, k := range w.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (w *Watcher) pollAll(ctx context.Context) {
	for _, kind := range w.kinds {
		w.poll(ctx, kind, false)
	}
}

// poll compares the current owner with the last one seen. force refetches
// even if the owner window is unchanged, since an XFixes notification means
// the owner re-asserted the selection.
func (w *Watcher) poll(ctx context.Context, kind types.SelectionKind, force bool) {
	owner, err := w.display.Owner(kind)
	if err != nil {
		w.logger.Warn("Failed to query selection owner", zap.Stringer("kind", kind), zap.Error(err))
		return
	}

	prev, known := w.owners[kind]
	if known && owner == prev && !force {
		return
	}

	switch owner {
	case w.display.Self():
		w.owners[kind] = owner
		return
	case xproto.WindowNone:
		w.owners[kind] = owner
		if !known {
			w.logger.Debug("Selection empty at startup", zap.Stringer("kind", kind))
			return
		}
		if prev == xproto.WindowNone {
			return
		}
		w.emit(types.NewCleared(kind))
		return
	}

	data, err := w.display.Fetch(ctx, kind)
	if err != nil {
		w.failures[kind]++
		if permanent(err) || w.failures[kind] >= maxFetchAttempts {
			// give up on this owner until it changes
			w.owners[kind] = owner
			w.failures[kind] = 0
		}
		w.logger.Warn("Failed to fetch selection",
			zap.Stringer("kind", kind),
			zap.Uint32("owner", uint32(owner)),
			zap.Error(err))
		return
	}
	w.owners[kind] = owner
	w.failures[kind] = 0

	content, err := types.NewText(kind, data)
	if err != nil {
		w.logger.Warn("Dropping non-text selection", zap.Stringer("kind", kind), zap.Error(err))
		return
	}
	w.emit(content)
}

func (w *Watcher) emit(content *types.ClipboardContent) {
	seq := w.seq.Next(content.Kind)
	w.logger.Debug("Selection changed", zap.Stringer("content", content), zap.Uint64("seq", seq))
	if w.out.Push(types.NewUpdate(content, types.OriginX11, seq)) {
		w.logger.Debug("Dropped stale pending update", zap.Stringer("kind", content.Kind))
	}
}

func (w *Watcher) drainWrites() {
	for {
		req, ok := w.writes.Pop()
		if !ok {
			return
		}
		w.apply(req)
	}
}

// apply publishes one write unless a local change was reported that the
// coordinator had not seen when it decided on the write. That change is on
// its way to the other side and wins.
func (w *Watcher) apply(req writeRequest) {
	kind := req.content.Kind
	if w.seq.Superseded(kind, req.seen) {
		w.logger.Info("Skipping write superseded by local change", zap.Stringer("content", req.content))
		return
	}

	if req.content.Cleared {
		owner, err := w.display.Owner(kind)
		if err != nil {
			w.logger.Warn("Failed to query selection owner", zap.Stringer("kind", kind), zap.Error(err))
			return
		}
		if owner != w.display.Self() && owner != xproto.WindowNone {
			w.logger.Info("Not clearing selection owned by another client",
				zap.Stringer("kind", kind),
				zap.Uint32("owner", uint32(owner)))
			return
		}
		if owner == w.display.Self() {
			if err := w.display.Release(kind); err != nil {
				w.logger.Warn("Failed to release selection", zap.Stringer("kind", kind), zap.Error(err))
				return
			}
		}
		w.owners[kind] = xproto.WindowNone
		w.logger.Debug("Cleared selection", zap.Stringer("kind", kind))
		return
	}

	if err := w.display.Claim(kind, req.content.Data); err != nil {
		w.logger.Warn("Failed to publish selection", zap.Stringer("kind", kind), zap.Error(err))
		return
	}
	w.owners[kind] = w.display.Self()
	w.logger.Debug("Published selection", zap.Stringer("content", req.content))
}
