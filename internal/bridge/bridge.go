// Package bridge routes selection changes between the X11 and Wayland
// watchers.
package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/berrythewa/clipbridge/internal/config"
	"github.com/berrythewa/clipbridge/internal/mailbox"
	"github.com/berrythewa/clipbridge/internal/platform/wayland"
	"github.com/berrythewa/clipbridge/internal/platform/x11"
	"github.com/berrythewa/clipbridge/internal/types"
)

// task is one supervised loop.
type task struct {
	name string
	run  func(context.Context) error
}

// SideOptions are the settings of one side that do not come from the config.
type SideOptions struct {
	// Kinds defaults to the kinds enabled in the config.
	Kinds []types.SelectionKind
	// Session defaults to a fresh UUID.
	Session string
}

// Side is one display server connection with its watcher.
type Side struct {
	Writer
	Origin types.Origin
	run    func(context.Context) error
	close  func() error
}

// Run runs the watcher until ctx is cancelled or the connection fails.
func (s *Side) Run(ctx context.Context) error { return s.run(ctx) }

// Close tears down the connection.
func (s *Side) Close() error { return s.close() }

// Open connects to the display server of origin. The watcher reports to inbox.
func Open(origin types.Origin, cfg *config.Config, opts SideOptions, inbox *mailbox.Mailbox[types.Update], logger *zap.Logger) (*Side, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(opts.Kinds) == 0 {
		opts.Kinds = cfg.Kinds()
	}
	if opts.Session == "" {
		opts.Session = uuid.NewString()
	}

	switch origin {
	case types.OriginX11:
		display, err := x11.Open(x11.Options{
			Display:         cfg.X11.Display,
			FetchTimeout:    cfg.X11.FetchTimeout,
			MaxContentBytes: cfg.Sync.MaxContentBytes,
			XFixes:          cfg.X11.XFixes,
		}, logger.Named("x11"))
		if err != nil {
			return nil, fmt.Errorf("failed to open X11 display: %w", err)
		}
		w := x11.NewWatcher(display, inbox, x11.WatcherConfig{
			PollInterval: cfg.X11.PollInterval,
			Kinds:        opts.Kinds,
			QueueDepth:   cfg.Sync.QueueDepth,
		}, logger)
		return &Side{Writer: w, Origin: origin, run: w.Run, close: display.Close}, nil

	case types.OriginWayland:
		w, err := wayland.Connect(wayland.Options{
			Display:         cfg.Wayland.Display,
			ReadTimeout:     cfg.Wayland.ReadTimeout,
			WriteTimeout:    cfg.Wayland.WriteTimeout,
			MaxContentBytes: cfg.Sync.MaxContentBytes,
			Kinds:           opts.Kinds,
			QueueDepth:      cfg.Sync.QueueDepth,
			Session:         opts.Session,
		}, inbox, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Wayland compositor: %w", err)
		}
		return &Side{Writer: w, Origin: origin, run: w.Run, close: w.Close}, nil
	}
	return nil, fmt.Errorf("unknown side %s", origin)
}

// Run connects to both display servers and bridges selections until ctx is
// cancelled or one side fails. Connection failures are returned before any
// loop starts.
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) (err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	session := uuid.NewString()
	logger = logger.With(zap.String("session", session))
	opts := SideOptions{Kinds: cfg.Kinds(), Session: session}

	inbox := mailbox.ForUpdates(cfg.Sync.QueueDepth)

	xs, err := Open(types.OriginX11, cfg, opts, inbox, logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, xs.Close()) }()

	ws, err := Open(types.OriginWayland, cfg, opts, inbox, logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, ws.Close()) }()

	coord := NewCoordinator(inbox, xs, ws, logger.Named("sync"))

	logger.Info("Bridge started",
		zap.Stringers("kinds", opts.Kinds),
		zap.Int("max_content_bytes", cfg.Sync.MaxContentBytes))

	return supervise(ctx, logger,
		task{name: "x11", run: xs.Run},
		task{name: "wayland", run: ws.Run},
		task{name: "sync", run: coord.Run},
	)
}

// supervise runs all tasks until one fails or ctx is cancelled. The first
// failure cancels the rest and is returned.
func supervise(ctx context.Context, logger *zap.Logger, tasks ...task) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		g.Go(func() error {
			if err := t.run(gctx); err != nil {
				logger.Error("Task failed", zap.String("task", t.name), zap.Error(err))
				return fmt.Errorf("%s: %w", t.name, err)
			}
			return nil
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}
