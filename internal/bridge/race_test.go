package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/berrythewa/clipbridge/internal/mailbox"
	"github.com/berrythewa/clipbridge/internal/platform/x11"
	"github.com/berrythewa/clipbridge/internal/types"
)

const bridgeWindow xproto.Window = 0x100

// memoryDisplay is an X server holding one owner per selection.
type memoryDisplay struct {
	mu     sync.Mutex
	owner  map[types.SelectionKind]xproto.Window
	data   map[xproto.Window][]byte
	hints  chan types.SelectionKind
	closed chan struct{}
}

func newMemoryDisplay() *memoryDisplay {
	return &memoryDisplay{
		owner:  make(map[types.SelectionKind]xproto.Window),
		data:   make(map[xproto.Window][]byte),
		hints:  make(chan types.SelectionKind, 1),
		closed: make(chan struct{}),
	}
}

// copy simulates an X client taking the selection and notifies the watcher.
func (d *memoryDisplay) copy(kind types.SelectionKind, win xproto.Window, s string) {
	d.mu.Lock()
	d.owner[kind] = win
	d.data[win] = []byte(s)
	d.mu.Unlock()
	d.hints <- kind
}

func (d *memoryDisplay) current(kind types.SelectionKind) (xproto.Window, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w := d.owner[kind]
	if w == bridgeWindow {
		return w, string(d.data[bridgeWindow+xproto.Window(kind)])
	}
	return w, string(d.data[w])
}

func (d *memoryDisplay) Self() xproto.Window { return bridgeWindow }

func (d *memoryDisplay) Owner(kind types.SelectionKind) (xproto.Window, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.owner[kind], nil
}

func (d *memoryDisplay) Fetch(_ context.Context, kind types.SelectionKind) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.data[d.owner[kind]], nil
}

func (d *memoryDisplay) Claim(kind types.SelectionKind, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.owner[kind] = bridgeWindow
	d.data[bridgeWindow+xproto.Window(kind)] = data
	return nil
}

func (d *memoryDisplay) Release(kind types.SelectionKind) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.owner[kind] = xproto.WindowNone
	return nil
}

func (d *memoryDisplay) OwnerChanges() <-chan types.SelectionKind { return d.hints }
func (d *memoryDisplay) Closed() <-chan struct{}                  { return d.closed }
func (d *memoryDisplay) Close() error                             { return nil }

// An X11 copy lands while a Wayland change is still waiting for the
// coordinator. Both sides must end up holding the X11 value.
func TestBridgeConcurrentCopiesConverge(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	inbox := mailbox.ForUpdates(8)

	display := newMemoryDisplay()
	xw := x11.NewWatcher(display, inbox, x11.WatcherConfig{
		PollInterval: time.Hour,
		Kinds:        []types.SelectionKind{types.Clipboard},
	}, logger)
	wl := &fakeSide{origin: types.OriginWayland, inbox: inbox, quiet: true}
	coord := NewCoordinator(inbox, xw, wl, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go xw.Run(ctx)
	require.Eventually(t, func() bool {
		return logs.FilterMessage("Selection empty at startup").Len() == 1
	}, 2*time.Second, 5*time.Millisecond)

	wl.observe(text(t, types.Clipboard, "remote"))
	display.copy(types.Clipboard, 0x200, "local")
	require.Eventually(t, func() bool { return inbox.Len() == 2 }, 2*time.Second, 5*time.Millisecond)

	for inbox.Len() > 0 {
		u, _ := inbox.Pop()
		coord.handle(u)
	}
	require.Eventually(t, func() bool {
		return logs.FilterMessage("Skipping write superseded by local change").Len() == 1
	}, 2*time.Second, 5*time.Millisecond)

	owner, held := display.current(types.Clipboard)
	assert.Equal(t, xproto.Window(0x200), owner)
	assert.Equal(t, "local", held)
	assert.Equal(t, "local", wl.held(types.Clipboard))
	require.Len(t, wl.written(), 1)
	assert.Equal(t, "local", wl.written()[0].Text())

	cached, ok := coord.cache.Get(types.Clipboard)
	require.True(t, ok)
	assert.Equal(t, "local", cached.Text())
}
