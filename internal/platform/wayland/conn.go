package wayland

import (
	"fmt"
	"net"
	"os"
	"runtime"
	"sync"
	"time"

	"deedles.dev/wl/wire"
)

// message is one wire message. Arguments are read off the embedded buffer in
// order; file is set when the message carries a descriptor.
type message struct {
	*wire.MessageBuffer
	file *os.File
}

// str reads a string argument. The null string reads as "".
func (m message) str() (s string) {
	defer func() {
		// ReadString indexes the terminator of a zero-length string
		if recover() != nil {
			s = ""
		}
	}()
	return m.ReadString()
}

// proxy is a bare object id. The watcher dispatches by interface itself, so
// the wire.Object hooks are no-ops.
type proxy uint32

func (p proxy) ID() uint32                       { return uint32(p) }
func (proxy) SetID(uint32)                       {}
func (proxy) Dispatch(*wire.MessageBuffer) error { return nil }
func (proxy) Delete()                            {}

var _ wire.Object = proxy(0)

// conn wraps a wire connection with the object table. One goroutine may read
// while another writes.
type conn struct {
	sock  *net.UnixConn
	wire  *wire.Conn
	fdArg func(iface, uint16) bool

	wmu sync.Mutex

	mu      sync.Mutex
	objects map[uint32]iface
	nextID  uint32
	free    []uint32
}

func dial(path string) (*conn, error) {
	sock, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, err
	}
	return newConn(sock, clientFDArg), nil
}

func newConn(sock *net.UnixConn, fdArg func(iface, uint16) bool) *conn {
	return &conn{
		sock:    sock,
		wire:    wire.NewConn(sock),
		fdArg:   fdArg,
		objects: map[uint32]iface{displayID: ifaceDisplay},
		nextID:  displayID + 1,
	}
}

func (c *conn) Close() error {
	return c.wire.Close()
}

// newObject allocates a client-side id, reusing ids the server has released.
func (c *conn) newObject(i iface) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var id uint32
	if n := len(c.free); n > 0 {
		id = c.free[n-1]
		c.free = c.free[:n-1]
	} else {
		id = c.nextID
		c.nextID++
	}
	c.objects[id] = i
	return id
}

// register records an object created by the other end.
func (c *conn) register(id uint32, i iface) {
	c.mu.Lock()
	c.objects[id] = i
	c.mu.Unlock()
}

func (c *conn) lookup(id uint32) iface {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.objects[id]
}

// release drops an id from the table. Client ids become reusable; it is called
// for them on delete_id, and for server ids as soon as they are destroyed.
func (c *conn) release(id uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.objects[id]; !ok {
		return
	}
	delete(c.objects, id)
	if id < serverIDBase {
		c.free = append(c.free, id)
	}
}

// send writes one request.
func (c *conn) send(object uint32, opcode uint16, a args) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.build(object, opcode, a); err != nil {
		return fmt.Errorf("wayland: write: %w", err)
	}
	if a.files > 0 {
		// The builder holds duplicates of the passed descriptors until it
		// is finalized; the read end of a pipe sees EOF only after that.
		runtime.GC()
	}
	return nil
}

func (c *conn) build(object uint32, opcode uint16, a args) error {
	mb := wire.NewMessage(proxy(object), opcode)
	for _, put := range a.fields {
		put(mb)
	}
	return mb.Build(c.wire)
}

func (c *conn) setReadDeadline(t time.Time) error {
	return c.sock.SetReadDeadline(t)
}

// next blocks until a complete message is read. Descriptors are queued on the
// wire connection, so next must only be called from one goroutine.
func (c *conn) next() (message, error) {
	buf, err := wire.ReadMessage(c.wire)
	if err != nil {
		return message{}, fmt.Errorf("wayland: read: %w", err)
	}
	m := message{MessageBuffer: buf}
	if c.fdArg != nil && c.fdArg(c.lookup(buf.Sender()), buf.Op()) {
		if m.file = buf.ReadFile(); m.file == nil {
			return message{}, fmt.Errorf("wayland: object %d opcode %d is missing its fd", buf.Sender(), buf.Op())
		}
	}
	return m, nil
}

// args builds a request body.
type args struct {
	fields []func(*wire.MessageBuilder)
	files  int
}

func (a args) put(f func(*wire.MessageBuilder)) args {
	a.fields = append(a.fields[:len(a.fields):len(a.fields)], f)
	return a
}

func (a args) uint(v uint32) args {
	return a.put(func(mb *wire.MessageBuilder) { mb.WriteUint(v) })
}

func (a args) str(s string) args {
	return a.put(func(mb *wire.MessageBuilder) { mb.WriteString(s) })
}

// file passes f alongside the message. The caller keeps ownership of f.
func (a args) file(f *os.File) args {
	a.files++
	return a.put(func(mb *wire.MessageBuilder) { mb.WriteFile(f) })
}
