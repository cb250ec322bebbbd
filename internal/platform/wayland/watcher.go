// Package wayland watches and sets the regular and primary selections through
// the wlr data-control protocol.
package wayland

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/berrythewa/clipbridge/internal/mailbox"
	"github.com/berrythewa/clipbridge/internal/types"
)

const (
	DefaultReadTimeout  = 2 * time.Second
	DefaultWriteTimeout = 2 * time.Second
	handshakeTimeout    = 5 * time.Second
)

var (
	// ErrNoDataControl means the compositor does not offer zwlr_data_control_manager_v1.
	ErrNoDataControl = errors.New("compositor does not support wlr-data-control")
	// ErrNoSeat means the compositor advertised no wl_seat.
	ErrNoSeat = errors.New("no wl_seat advertised")
	// ErrTooLarge means an offer exceeded the configured maximum size.
	ErrTooLarge = errors.New("selection content too large")
	// ErrProtocol wraps a fatal wl_display.error.
	ErrProtocol = errors.New("wayland protocol error")
	// ErrDeviceFinished means the compositor invalidated the data device.
	ErrDeviceFinished = errors.New("data device finished")
)

// Options configures the connection and the watcher.
type Options struct {
	// Display is a socket name under $XDG_RUNTIME_DIR or an absolute path.
	// Empty means $WAYLAND_DISPLAY, then wayland-0.
	Display         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxContentBytes int
	Kinds           []types.SelectionKind
	QueueDepth      int
	// Session is embedded in the marker MIME type of our own data sources.
	Session string
}

// SocketPath resolves where the compositor socket lives.
func SocketPath(display string) (string, error) {
	if display == "" {
		display = os.Getenv("WAYLAND_DISPLAY")
	}
	if display == "" {
		display = "wayland-0"
	}
	if filepath.IsAbs(display) {
		return display, nil
	}
	runtime := os.Getenv("XDG_RUNTIME_DIR")
	if runtime == "" {
		return "", errors.New("XDG_RUNTIME_DIR not set")
	}
	return filepath.Join(runtime, display), nil
}

type offer struct {
	mimes []string
}

type readResult struct {
	kind types.SelectionKind
	gen  uint64
	data []byte
	err  error
}

type writeRequest struct {
	content *types.ClipboardContent
	seen    uint64
}

// Watcher owns one compositor connection. Protocol state is only touched by
// the Run goroutine; a reader goroutine feeds it decoded messages.
type Watcher struct {
	conn    *conn
	opts    Options
	out     *mailbox.Mailbox[types.Update]
	writes  *mailbox.Mailbox[writeRequest]
	logger  *zap.Logger
	marker  string
	primary bool

	registry uint32
	seat     uint32
	seatName uint32
	manager  uint32
	mgrName  uint32
	device   uint32

	offers   map[uint32]*offer
	current  map[types.SelectionKind]uint32
	seen     map[types.SelectionKind]bool
	cleared  map[types.SelectionKind]bool
	gen      map[types.SelectionKind]uint64
	sources  map[types.SelectionKind]uint32
	payloads map[uint32][]byte

	seq   types.Sequence
	reads chan readResult
	done  chan struct{}
}

// Connect dials the compositor and binds the seat and data-control manager.
func Connect(opts Options, out *mailbox.Mailbox[types.Update], logger *zap.Logger) (*Watcher, error) {
	path, err := SocketPath(opts.Display)
	if err != nil {
		return nil, fmt.Errorf("failed to locate wayland socket: %w", err)
	}
	c, err := dial(path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", path, err)
	}
	w, err := newWatcher(c, opts, out, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	w.logger.Info("Connected to compositor", zap.String("socket", path))
	return w, nil
}

func newWatcher(c *conn, opts Options, out *mailbox.Mailbox[types.Update], logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if len(opts.Kinds) == 0 {
		opts.Kinds = types.Kinds
	}
	w := &Watcher{
		conn: c,
		opts: opts,
		out:  out,
		writes: mailbox.New(opts.QueueDepth, func(r writeRequest) types.SelectionKind {
			return r.content.Kind
		}),
		logger:   logger.Named("wayland"),
		marker:   markerPrefix + opts.Session,
		offers:   make(map[uint32]*offer),
		current:  make(map[types.SelectionKind]uint32),
		seen:     make(map[types.SelectionKind]bool),
		cleared:  make(map[types.SelectionKind]bool),
		gen:      make(map[types.SelectionKind]uint64),
		sources:  make(map[types.SelectionKind]uint32),
		payloads: make(map[uint32][]byte),
		reads:    make(chan readResult, 4),
		done:     make(chan struct{}),
	}
	if err := w.handshake(); err != nil {
		return nil, err
	}
	return w, nil
}

// handshake collects globals with one roundtrip, then binds what it needs.
func (w *Watcher) handshake() error {
	c := w.conn
	if err := c.setReadDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return err
	}
	defer c.setReadDeadline(time.Time{})

	w.registry = c.newObject(ifaceRegistry)
	if err := c.send(displayID, opDisplayGetRegistry, args{}.uint(w.registry)); err != nil {
		return err
	}
	callback := c.newObject(ifaceCallback)
	if err := c.send(displayID, opDisplaySync, args{}.uint(callback)); err != nil {
		return err
	}

	var seatVersion, mgrVersion uint32
	for done := false; !done; {
		m, err := c.next()
		if err != nil {
			return fmt.Errorf("failed to read globals: %w", err)
		}
		switch {
		case m.Sender() == w.registry && m.Op() == evRegistryGlobal:
			name, ifc, version := m.ReadUint(), m.str(), m.ReadUint()
			if m.Err() != nil {
				continue
			}
			switch {
			case ifc == ifaceNameSeat && w.seatName == 0:
				w.seatName, seatVersion = name, version
			case ifc == ifaceNameManager:
				w.mgrName, mgrVersion = name, version
			}
		case m.Sender() == callback && m.Op() == evCallbackDone:
			done = true
		default:
			if err := w.handleDisplay(m); err != nil {
				return err
			}
		}
	}

	if w.seatName == 0 {
		return ErrNoSeat
	}
	if w.mgrName == 0 {
		return ErrNoDataControl
	}

	seatVersion = min(seatVersion, maxSeatVersion)
	mgrVersion = min(mgrVersion, maxManagerVersion)
	w.primary = mgrVersion >= 2

	w.seat = c.newObject(ifaceSeat)
	if err := w.bind(w.seatName, ifaceNameSeat, seatVersion, w.seat); err != nil {
		return err
	}
	w.manager = c.newObject(ifaceManager)
	if err := w.bind(w.mgrName, ifaceNameManager, mgrVersion, w.manager); err != nil {
		return err
	}
	w.device = c.newObject(ifaceDevice)
	if err := c.send(w.manager, opManagerGetDataDevice, args{}.uint(w.device).uint(w.seat)); err != nil {
		return err
	}

	if !w.primary && w.configured(types.Primary) {
		w.logger.Warn("Compositor data-control is v1, primary selection disabled on Wayland")
	}
	return nil
}

func (w *Watcher) bind(name uint32, ifc string, version, id uint32) error {
	return w.conn.send(w.registry, opRegistryBind, args{}.uint(name).str(ifc).uint(version).uint(id))
}

func (w *Watcher) wants(kind types.SelectionKind) bool {
	if kind == types.Primary && !w.primary {
		return false
	}
	return w.configured(kind)
}

func (w *Watcher) configured(kind types.SelectionKind) bool {
	for _, k := range w.opts.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Write queues content to become the Wayland selection. It never blocks.
// seen is the Seq of the latest Wayland update the caller had processed for
// the kind; the write is dropped if a later local change has been reported.
func (w *Watcher) Write(content *types.ClipboardContent, seen uint64) {
	if content == nil || !content.Kind.Valid() {
		return
	}
	req := writeRequest{content: content, seen: seen}
	if w.writes.Push(req) {
		w.logger.Debug("Dropped stale pending write", zap.Stringer("kind", content.Kind))
	}
}

// Close tears down the connection.
func (w *Watcher) Close() error {
	return w.conn.Close()
}

// Run processes compositor events and queued writes until ctx is cancelled
// or the connection fails.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.done)

	msgs := make(chan message, 32)
	errc := make(chan error, 1)
	go func() {
		for {
			m, err := w.conn.next()
			if err != nil {
				errc <- err
				return
			}
			select {
			case msgs <- m:
			case <-w.done:
				if m.file != nil {
					m.file.Close()
				}
				return
			}
		}
	}()

	w.logger.Info("Wayland watcher started", zap.Bool("primary", w.primary))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Wayland watcher stopped")
			return nil
		case err := <-errc:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("compositor connection lost: %w", err)
		case m := <-msgs:
			if err := w.dispatch(m); err != nil {
				return err
			}
		case r := <-w.reads:
			w.onRead(r)
		case <-w.writes.Ready():
			for {
				req, ok := w.writes.Pop()
				if !ok {
					break
				}
				if err := w.apply(req); err != nil {
					return err
				}
			}
		}
	}
}

func (w *Watcher) dispatch(m message) error {
	switch w.conn.lookup(m.Sender()) {
	case ifaceDisplay:
		return w.handleDisplay(m)
	case ifaceRegistry:
		if m.Op() == evRegistryGlobalRemove {
			name := m.ReadUint()
			if name == w.seatName {
				return fmt.Errorf("%w: seat removed", ErrNoSeat)
			}
			if name == w.mgrName {
				return fmt.Errorf("%w: manager removed", ErrNoDataControl)
			}
		}
	case ifaceDevice:
		return w.handleDevice(m)
	case ifaceOffer:
		if m.Op() == evOfferOffer {
			mime := m.str()
			if o, ok := w.offers[m.Sender()]; ok && m.Err() == nil {
				o.mimes = append(o.mimes, mime)
			}
		}
	case ifaceSource:
		w.handleSource(m)
	default:
		if m.file != nil {
			m.file.Close()
		}
	}
	return nil
}

func (w *Watcher) handleDisplay(m message) error {
	if m.Sender() != displayID {
		return nil
	}
	switch m.Op() {
	case evDisplayError:
		object, code, msg := m.ReadUint(), m.ReadUint(), m.str()
		return fmt.Errorf("%w: object %d code %d: %s", ErrProtocol, object, code, msg)
	case evDisplayDeleteID:
		id := m.ReadUint()
		if m.Err() == nil {
			w.conn.release(id)
		}
	}
	return nil
}

func (w *Watcher) handleDevice(m message) error {
	switch m.Op() {
	case evDeviceDataOffer:
		id := m.ReadUint()
		if m.Err() != nil {
			return nil
		}
		w.conn.register(id, ifaceOffer)
		w.offers[id] = &offer{}
	case evDeviceSelection:
		w.onSelection(types.Clipboard, m.ReadUint())
	case evDevicePrimarySelection:
		w.onSelection(types.Primary, m.ReadUint())
	case evDeviceFinished:
		return ErrDeviceFinished
	}
	return nil
}

func (w *Watcher) destroyOffer(id uint32) {
	if id == 0 {
		return
	}
	delete(w.offers, id)
	if err := w.conn.send(id, opOfferDestroy, args{}); err != nil {
		w.logger.Debug("Failed to destroy offer", zap.Error(err))
	}
	if id >= serverIDBase {
		w.conn.release(id)
	}
}

// onSelection handles a new selection; id 0 means the selection is empty.
func (w *Watcher) onSelection(kind types.SelectionKind, id uint32) {
	if prev := w.current[kind]; prev != 0 && prev != id {
		w.destroyOffer(prev)
	}
	w.current[kind] = id
	w.gen[kind]++

	if !w.wants(kind) {
		w.destroyOffer(id)
		w.current[kind] = 0
		return
	}

	first := !w.seen[kind]
	w.seen[kind] = true

	if id == 0 {
		switch {
		case first:
			w.logger.Debug("Selection empty at startup", zap.Stringer("kind", kind))
		case w.cleared[kind]:
			// already empty, or emptied by our own write
		default:
			w.emit(types.NewCleared(kind))
		}
		w.cleared[kind] = true
		return
	}
	w.cleared[kind] = false

	o, ok := w.offers[id]
	if !ok {
		return
	}
	for _, m := range o.mimes {
		if m == w.marker {
			w.logger.Debug("Ignoring own selection", zap.Stringer("kind", kind))
			return
		}
	}
	mime := pickMIME(o.mimes)
	if mime == "" {
		w.logger.Debug("Ignoring selection without text", zap.Stringer("kind", kind), zap.Strings("mimes", o.mimes))
		return
	}
	if err := w.receive(kind, id, mime); err != nil {
		w.logger.Warn("Failed to request selection data", zap.Stringer("kind", kind), zap.Error(err))
	}
}

// receive asks the offer's owner to write into a pipe and reads it off the
// Run goroutine.
func (w *Watcher) receive(kind types.SelectionKind, id uint32, mime string) error {
	r, wr, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("failed to create pipe: %w", err)
	}
	err = w.conn.send(id, opOfferReceive, args{}.str(mime).file(wr))
	wr.Close()
	if err != nil {
		r.Close()
		return err
	}

	gen := w.gen[kind]
	limit := w.opts.MaxContentBytes
	timeout := w.opts.ReadTimeout
	go func() {
		defer r.Close()
		res := readResult{kind: kind, gen: gen}
		r.SetReadDeadline(time.Now().Add(timeout))
		res.data, res.err = io.ReadAll(io.LimitReader(r, int64(limit)+1))
		if res.err == nil && len(res.data) > limit {
			res.data, res.err = nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
		}
		select {
		case w.reads <- res:
		case <-w.done:
		}
	}()
	return nil
}

func (w *Watcher) onRead(r readResult) {
	if r.gen != w.gen[r.kind] {
		w.logger.Debug("Discarding read of replaced selection", zap.Stringer("kind", r.kind))
		return
	}
	if r.err != nil {
		w.logger.Warn("Failed to read selection", zap.Stringer("kind", r.kind), zap.Error(r.err))
		return
	}
	content, err := types.NewText(r.kind, r.data)
	if err != nil {
		w.logger.Warn("Dropping non-text selection", zap.Stringer("kind", r.kind), zap.Error(err))
		return
	}
	w.emit(content)
}

func (w *Watcher) emit(content *types.ClipboardContent) {
	seq := w.seq.Next(content.Kind)
	w.logger.Debug("Selection changed", zap.Stringer("content", content), zap.Uint64("seq", seq))
	if w.out.Push(types.NewUpdate(content, types.OriginWayland, seq)) {
		w.logger.Debug("Dropped stale pending update", zap.Stringer("kind", content.Kind))
	}
}

// apply sets the selection unless a local change was reported that the
// coordinator had not seen when it decided on the write.
func (w *Watcher) apply(req writeRequest) error {
	c := req.content
	kind := c.Kind
	if !w.wants(kind) {
		return nil
	}
	if w.seq.Superseded(kind, req.seen) {
		w.logger.Info("Skipping write superseded by local change", zap.Stringer("content", c))
		return nil
	}

	if c.Cleared {
		if w.cleared[kind] {
			return nil
		}
		if err := w.setSelection(kind, 0); err != nil {
			return err
		}
		w.destroySource(kind)
		// the compositor echoes an empty selection, which must not be reported
		w.cleared[kind] = true
		w.logger.Debug("Cleared selection", zap.Stringer("kind", kind))
		return nil
	}

	id := w.conn.newObject(ifaceSource)
	if err := w.conn.send(w.manager, opManagerCreateDataSource, args{}.uint(id)); err != nil {
		return err
	}
	mimes := append(append([]string(nil), textMIMEs...), w.marker)
	for _, mime := range mimes {
		if err := w.conn.send(id, opSourceOffer, args{}.str(mime)); err != nil {
			return err
		}
	}
	if err := w.setSelection(kind, id); err != nil {
		return err
	}
	w.cleared[kind] = false
	w.destroySource(kind)
	w.sources[kind] = id
	w.payloads[id] = c.Data
	w.logger.Debug("Published selection", zap.Stringer("content", c))
	return nil
}

func (w *Watcher) setSelection(kind types.SelectionKind, source uint32) error {
	op := opDeviceSetSelection
	if kind == types.Primary {
		op = opDeviceSetPrimarySelection
	}
	return w.conn.send(w.device, op, args{}.uint(source))
}

// destroySource drops the source currently published for kind, if any.
// Its id stays in the object table until the compositor confirms deletion.
func (w *Watcher) destroySource(kind types.SelectionKind) {
	id, ok := w.sources[kind]
	if !ok {
		return
	}
	delete(w.sources, kind)
	w.dropSource(id)
}

func (w *Watcher) dropSource(id uint32) {
	delete(w.payloads, id)
	if err := w.conn.send(id, opSourceDestroy, args{}); err != nil {
		w.logger.Debug("Failed to destroy source", zap.Error(err))
	}
}

func (w *Watcher) handleSource(m message) {
	switch m.Op() {
	case evSourceSend:
		mime := m.str()
		data, ok := w.payloads[m.Sender()]
		if !ok {
			m.file.Close()
			return
		}
		if mime == w.marker {
			data = []byte(w.opts.Session)
		}
		go w.serve(m.file, mime, data)
	case evSourceCancelled:
		for kind, id := range w.sources {
			if id == m.Sender() {
				delete(w.sources, kind)
			}
		}
		if _, live := w.payloads[m.Sender()]; live {
			w.dropSource(m.Sender())
		}
	}
}

// serve writes a payload to a paste target's pipe with a deadline.
func (w *Watcher) serve(target *os.File, mime string, data []byte) {
	f, err := pollable(target)
	if err != nil {
		w.logger.Debug("Failed to prepare send pipe", zap.String("mime", mime), zap.Error(err))
		return
	}
	defer f.Close()
	f.SetWriteDeadline(time.Now().Add(w.opts.WriteTimeout))
	if _, err := f.Write(data); err != nil {
		w.logger.Debug("Failed to send selection data", zap.String("mime", mime), zap.Error(err))
	}
}

// pollable takes over a received descriptor as a non-blocking file, so that
// deadlines apply to it. f is closed.
func pollable(f *os.File) (*os.File, error) {
	defer f.Close()
	fd, err := unix.FcntlInt(f.Fd(), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return os.NewFile(uintptr(fd), "wayland-send"), nil
}
