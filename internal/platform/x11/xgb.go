package x11

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xfixes"
	"github.com/BurntSushi/xgb/xproto"
	"go.uber.org/zap"

	"github.com/berrythewa/clipbridge/internal/types"
)

const (
	atomClipboard = "CLIPBOARD"
	atomTargets   = "TARGETS"
	atomMultiple  = "MULTIPLE"
	atomIncr      = "INCR"
	atomAtomPair  = "ATOM_PAIR"
	// property on our own window that conversions are delivered to
	atomTransfer = "CLIPBRIDGE_TRANSFER"

	incrTransferTTL = 30 * time.Second
	maxChunkBytes   = 256 * 1024
)

// Options configures a server connection.
type Options struct {
	// Display is the X display name; empty means $DISPLAY.
	Display string
	// FetchTimeout bounds one Fetch across all targets and INCR chunks.
	FetchTimeout time.Duration
	// MaxContentBytes caps both fetched and served payloads.
	MaxContentBytes int
	// XFixes enables owner change notifications when the server supports them.
	XFixes bool
}

type incrKey struct {
	window   xproto.Window
	property xproto.Atom
}

// xgbDisplay implements Display on a pure Go X protocol connection.
type xgbDisplay struct {
	conn     *xgb.Conn
	window   xproto.Window
	opts     Options
	logger   *zap.Logger
	maxChunk int

	atoms map[string]xproto.Atom
	names map[xproto.Atom]string

	mu    sync.Mutex
	owned map[types.SelectionKind][]byte

	// touched only by the event pump
	incr map[incrKey]*incrSend

	notify    chan xproto.SelectionNotifyEvent
	props     chan struct{}
	hints     chan types.SelectionKind
	closed    chan struct{}
	closeOnce sync.Once
}

// Open connects to the X server, creates the hidden window and starts the
// event pump.
func Open(opts Options, logger *zap.Logger) (Display, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := xgb.NewConnDisplay(opts.Display)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X display %q: %w", opts.Display, err)
	}

	d := &xgbDisplay{
		conn:   conn,
		opts:   opts,
		logger: logger,
		atoms:  make(map[string]xproto.Atom),
		names:  make(map[xproto.Atom]string),
		owned:  make(map[types.SelectionKind][]byte),
		incr:   make(map[incrKey]*incrSend),
		notify: make(chan xproto.SelectionNotifyEvent, 4),
		props:  make(chan struct{}, 64),
		closed: make(chan struct{}),
	}
	if err := d.setup(); err != nil {
		conn.Close()
		return nil, err
	}
	go d.pump()
	return d, nil
}

func (d *xgbDisplay) setup() error {
	setup := xproto.Setup(d.conn)
	screen := setup.DefaultScreen(d.conn)

	// MaximumRequestLength is in 4-byte units and includes the request header.
	d.maxChunk = int(setup.MaximumRequestLength)*4 - 64
	if d.maxChunk > maxChunkBytes || d.maxChunk <= 0 {
		d.maxChunk = maxChunkBytes
	}

	wid, err := xproto.NewWindowId(d.conn)
	if err != nil {
		return fmt.Errorf("failed to allocate window id: %w", err)
	}
	err = xproto.CreateWindowChecked(d.conn, screen.RootDepth, wid, screen.Root,
		-10, -10, 1, 1, 0, xproto.WindowClassInputOutput, screen.RootVisual,
		xproto.CwEventMask, []uint32{xproto.EventMaskPropertyChange}).Check()
	if err != nil {
		return fmt.Errorf("failed to create selection window: %w", err)
	}
	d.window = wid

	names := []string{atomClipboard, atomTargets, atomMultiple, atomIncr, atomAtomPair, atomTransfer}
	names = append(names, servedTargets...)
	for _, name := range names {
		reply, err := xproto.InternAtom(d.conn, false, uint16(len(name)), name).Reply()
		if err != nil {
			return fmt.Errorf("failed to intern atom %s: %w", name, err)
		}
		d.atoms[name] = reply.Atom
		d.names[reply.Atom] = name
	}

	if d.opts.XFixes {
		d.hints = d.selectOwnerEvents()
	}
	return nil
}

// selectOwnerEvents subscribes to XFixes selection notifications. It returns
// nil when the extension is missing so the watcher falls back to polling.
func (d *xgbDisplay) selectOwnerEvents() chan types.SelectionKind {
	if err := xfixes.Init(d.conn); err != nil {
		d.logger.Info("XFixes not available, polling only", zap.Error(err))
		return nil
	}
	if _, err := xfixes.QueryVersion(d.conn, 5, 0).Reply(); err != nil {
		d.logger.Info("XFixes version query failed, polling only", zap.Error(err))
		return nil
	}
	mask := uint32(xfixes.SelectionEventMaskSetSelectionOwner |
		xfixes.SelectionEventMaskSelectionWindowDestroy |
		xfixes.SelectionEventMaskSelectionClientClose)
	for _, kind := range types.Kinds {
		xfixes.SelectSelectionInput(d.conn, d.window, d.selection(kind), mask)
	}
	return make(chan types.SelectionKind, len(types.Kinds))
}

func (d *xgbDisplay) selection(kind types.SelectionKind) xproto.Atom {
	if kind == types.Primary {
		return xproto.AtomPrimary
	}
	return d.atoms[atomClipboard]
}

func (d *xgbDisplay) kindOf(selection xproto.Atom) (types.SelectionKind, bool) {
	switch selection {
	case xproto.AtomPrimary:
		return types.Primary, true
	case d.atoms[atomClipboard]:
		return types.Clipboard, true
	}
	return 0, false
}

func (d *xgbDisplay) Self() xproto.Window { return d.window }

func (d *xgbDisplay) OwnerChanges() <-chan types.SelectionKind {
	if d.hints == nil {
		return nil
	}
	return d.hints
}

func (d *xgbDisplay) Closed() <-chan struct{} { return d.closed }

func (d *xgbDisplay) Close() error {
	xproto.DestroyWindow(d.conn, d.window)
	d.conn.Close()
	return nil
}

func (d *xgbDisplay) Owner(kind types.SelectionKind) (xproto.Window, error) {
	reply, err := xproto.GetSelectionOwner(d.conn, d.selection(kind)).Reply()
	if err != nil {
		return xproto.WindowNone, fmt.Errorf("failed to query %s owner: %w", kind, err)
	}
	return reply.Owner, nil
}

func (d *xgbDisplay) Claim(kind types.SelectionKind, data []byte) error {
	d.mu.Lock()
	d.owned[kind] = data
	d.mu.Unlock()

	sel := d.selection(kind)
	if err := xproto.SetSelectionOwnerChecked(d.conn, d.window, sel, xproto.TimeCurrentTime).Check(); err != nil {
		return fmt.Errorf("failed to set %s owner: %w", kind, err)
	}
	owner, err := d.Owner(kind)
	if err != nil {
		return err
	}
	if owner != d.window {
		d.mu.Lock()
		delete(d.owned, kind)
		d.mu.Unlock()
		return fmt.Errorf("%w: %s held by window 0x%x", ErrClaimFailed, kind, owner)
	}
	return nil
}

func (d *xgbDisplay) Release(kind types.SelectionKind) error {
	d.mu.Lock()
	delete(d.owned, kind)
	d.mu.Unlock()

	err := xproto.SetSelectionOwnerChecked(d.conn, xproto.WindowNone, d.selection(kind), xproto.TimeCurrentTime).Check()
	if err != nil {
		return fmt.Errorf("failed to release %s: %w", kind, err)
	}
	return nil
}

// Fetch asks the current owner for each text target in turn. The whole call
// shares one FetchTimeout budget.
func (d *xgbDisplay) Fetch(ctx context.Context, kind types.SelectionKind) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.FetchTimeout)
	defer cancel()

	sel := d.selection(kind)
	return fetchFirst(fetchTargets, func(target string) (string, []byte, error) {
		typ, value, err := d.convert(ctx, sel, d.atoms[target])
		return d.names[typ], value, err
	})
}

// convert runs one ConvertSelection round trip and returns the property type
// and value, reassembling INCR transfers.
func (d *xgbDisplay) convert(ctx context.Context, sel, target xproto.Atom) (xproto.Atom, []byte, error) {
	d.drain()
	prop := d.atoms[atomTransfer]
	xproto.DeleteProperty(d.conn, d.window, prop)
	xproto.ConvertSelection(d.conn, d.window, sel, target, prop, xproto.TimeCurrentTime)

	for {
		select {
		case ev := <-d.notify:
			if ev.Selection != sel || ev.Target != target {
				continue
			}
			if ev.Property == xproto.AtomNone {
				return 0, nil, fmt.Errorf("%w: target %s", ErrConversionRefused, d.names[target])
			}
			return d.readProperty(ctx, ev.Property)
		case <-ctx.Done():
			return 0, nil, fmt.Errorf("%w: target %s", ErrFetchTimeout, d.names[target])
		case <-d.closed:
			return 0, nil, ErrDisplayClosed
		}
	}
}

func (d *xgbDisplay) drain() {
	for {
		select {
		case <-d.notify:
		case <-d.props:
		default:
			return
		}
	}
}

func (d *xgbDisplay) readProperty(ctx context.Context, prop xproto.Atom) (xproto.Atom, []byte, error) {
	reply, err := d.getProperty(prop)
	if err != nil {
		return 0, nil, err
	}
	if reply.Type == d.atoms[atomIncr] {
		return d.readIncr(ctx, prop)
	}
	return reply.Type, reply.Value, nil
}

// getProperty reads and deletes prop on our window, refusing oversized values.
func (d *xgbDisplay) getProperty(prop xproto.Atom) (*xproto.GetPropertyReply, error) {
	longs := uint32(d.opts.MaxContentBytes/4 + 1)
	reply, err := xproto.GetProperty(d.conn, true, d.window, prop, xproto.GetPropertyTypeAny, 0, longs).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to read selection property: %w", err)
	}
	if reply.BytesAfter > 0 || len(reply.Value) > d.opts.MaxContentBytes {
		xproto.DeleteProperty(d.conn, d.window, prop)
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, d.opts.MaxContentBytes)
	}
	return reply, nil
}

// readIncr collects INCR chunks until the owner writes an empty one. The
// initial INCR property is already deleted, which tells the owner to start.
func (d *xgbDisplay) readIncr(ctx context.Context, prop xproto.Atom) (xproto.Atom, []byte, error) {
	in := incrBuffer{limit: d.opts.MaxContentBytes}
	for {
		select {
		case <-d.props:
			reply, err := d.getProperty(prop)
			if err != nil {
				return 0, nil, err
			}
			done, err := in.add(reply.Type, reply.Value)
			if err != nil {
				return 0, nil, err
			}
			if done {
				return in.typ, in.buf.Bytes(), nil
			}
		case <-ctx.Done():
			return 0, nil, fmt.Errorf("%w: INCR transfer stalled after %d bytes", ErrFetchTimeout, in.buf.Len())
		case <-d.closed:
			return 0, nil, ErrDisplayClosed
		}
	}
}

// pump dispatches server events until the connection closes.
func (d *xgbDisplay) pump() {
	defer d.closeOnce.Do(func() { close(d.closed) })
	for {
		ev, xerr := d.conn.WaitForEvent()
		if ev == nil && xerr == nil {
			d.logger.Info("X connection closed")
			return
		}
		if xerr != nil {
			d.logger.Debug("X protocol error", zap.String("error", xerr.Error()))
			continue
		}

		switch e := ev.(type) {
		case xproto.SelectionRequestEvent:
			d.serve(e)
		case xproto.SelectionClearEvent:
			if kind, ok := d.kindOf(e.Selection); ok {
				d.mu.Lock()
				delete(d.owned, kind)
				d.mu.Unlock()
				d.logger.Debug("Lost selection ownership", zap.Stringer("kind", kind))
			}
		case xproto.SelectionNotifyEvent:
			if e.Requestor == d.window {
				select {
				case d.notify <- e:
				default:
				}
			}
		case xproto.PropertyNotifyEvent:
			d.onPropertyNotify(e)
		case xfixes.SelectionNotifyEvent:
			if kind, ok := d.kindOf(e.Selection); ok && d.hints != nil {
				select {
				case d.hints <- kind:
				default:
				}
			}
		}
	}
}

func (d *xgbDisplay) onPropertyNotify(e xproto.PropertyNotifyEvent) {
	if e.Window == d.window {
		if e.Atom == d.atoms[atomTransfer] && e.State == xproto.PropertyNewValue {
			select {
			case d.props <- struct{}{}:
			default:
			}
		}
		return
	}
	if e.State == xproto.PropertyDelete {
		d.continueIncr(incrKey{window: e.Window, property: e.Atom})
	}
}

// serve answers a SelectionRequest from another client.
func (d *xgbDisplay) serve(e xproto.SelectionRequestEvent) {
	property := e.Property
	if property == xproto.AtomNone {
		// obsolete clients leave the property empty
		property = e.Target
	}

	kind, ok := d.kindOf(e.Selection)
	d.mu.Lock()
	data, owned := d.owned[kind]
	d.mu.Unlock()

	if !ok || !owned {
		property = xproto.AtomNone
	} else if e.Target == d.atoms[atomMultiple] {
		if !d.serveMultiple(e.Requestor, property, data) {
			property = xproto.AtomNone
		}
	} else if !d.serveTarget(e.Requestor, property, e.Target, data) {
		property = xproto.AtomNone
	}

	d.logger.Debug("Served selection request",
		zap.Stringer("kind", kind),
		zap.String("target", d.atomName(e.Target)),
		zap.Bool("refused", property == xproto.AtomNone))

	notify := xproto.SelectionNotifyEvent{
		Time:      e.Time,
		Requestor: e.Requestor,
		Selection: e.Selection,
		Target:    e.Target,
		Property:  property,
	}
	xproto.SendEvent(d.conn, false, e.Requestor, xproto.EventMaskNoEvent, string(notify.Bytes()))
}

// serveTarget writes one conversion to the requestor and reports success.
func (d *xgbDisplay) serveTarget(requestor xproto.Window, property, target xproto.Atom, data []byte) bool {
	if target == d.atoms[atomTargets] {
		list := []xproto.Atom{d.atoms[atomTargets], d.atoms[atomMultiple]}
		for _, name := range servedTargets {
			list = append(list, d.atoms[name])
		}
		buf := make([]byte, 4*len(list))
		for i, a := range list {
			xgb.Put32(buf[i*4:], uint32(a))
		}
		xproto.ChangeProperty(d.conn, xproto.PropModeReplace, requestor, property,
			xproto.AtomAtom, 32, uint32(len(list)), buf)
		return true
	}

	name, known := d.names[target]
	if !known {
		return false
	}
	payload, typeName, err := encodeTarget(name, data)
	if err != nil {
		return false
	}
	typ := d.atoms[typeName]

	if len(payload) > d.maxChunk {
		d.startIncr(requestor, property, typ, payload)
		return true
	}
	xproto.ChangeProperty(d.conn, xproto.PropModeReplace, requestor, property,
		typ, 8, uint32(len(payload)), payload)
	return true
}

// serveMultiple handles a MULTIPLE request: the property holds (target,
// property) atom pairs, and failed pairs get their property replaced by None.
func (d *xgbDisplay) serveMultiple(requestor xproto.Window, property xproto.Atom, data []byte) bool {
	reply, err := xproto.GetProperty(d.conn, false, requestor, property,
		d.atoms[atomAtomPair], 0, 1024).Reply()
	if err != nil || reply.Format != 32 || len(reply.Value) < 8 {
		return false
	}
	pairs := reply.Value
	changed := answerPairs(pairs, d.atoms[atomMultiple], func(target, prop xproto.Atom) bool {
		return d.serveTarget(requestor, prop, target, data)
	})
	if changed {
		xproto.ChangeProperty(d.conn, xproto.PropModeReplace, requestor, property,
			d.atoms[atomAtomPair], 32, uint32(len(pairs)/4), pairs)
	}
	return true
}

func (d *xgbDisplay) startIncr(requestor xproto.Window, property, typ xproto.Atom, payload []byte) {
	d.pruneIncr()
	xproto.ChangeWindowAttributes(d.conn, requestor, xproto.CwEventMask,
		[]uint32{xproto.EventMaskPropertyChange})
	size := make([]byte, 4)
	xgb.Put32(size, uint32(len(payload)))
	xproto.ChangeProperty(d.conn, xproto.PropModeReplace, requestor, property,
		d.atoms[atomIncr], 32, 1, size)
	d.incr[incrKey{window: requestor, property: property}] = &incrSend{
		typ:     typ,
		data:    payload,
		started: time.Now(),
	}
	d.logger.Debug("Started INCR transfer",
		zap.Uint32("requestor", uint32(requestor)),
		zap.Int("bytes", len(payload)))
}

// continueIncr sends the next chunk once the requestor deleted the previous one.
func (d *xgbDisplay) continueIncr(key incrKey) {
	t, ok := d.incr[key]
	if !ok {
		return
	}
	chunk, more := t.next(d.maxChunk)
	if !more {
		delete(d.incr, key)
		xproto.ChangeWindowAttributes(d.conn, key.window, xproto.CwEventMask, []uint32{xproto.EventMaskNoEvent})
		return
	}
	xproto.ChangeProperty(d.conn, xproto.PropModeReplace, key.window, key.property,
		t.typ, 8, uint32(len(chunk)), chunk)
}

func (d *xgbDisplay) pruneIncr() {
	for key, t := range d.incr {
		if time.Since(t.started) > incrTransferTTL {
			delete(d.incr, key)
		}
	}
}

func (d *xgbDisplay) atomName(a xproto.Atom) string {
	if name, ok := d.names[a]; ok {
		return name
	}
	reply, err := xproto.GetAtomName(d.conn, a).Reply()
	if err != nil {
		return fmt.Sprintf("atom(%d)", a)
	}
	return reply.Name
}
