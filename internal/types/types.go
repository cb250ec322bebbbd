package types

import "fmt"

// SelectionKind identifies which selection buffer a value belongs to.
type SelectionKind int

const (
	Clipboard SelectionKind = iota
	Primary
)

// Kinds lists every selection kind in a stable order.
var Kinds = []SelectionKind{Clipboard, Primary}

func (k SelectionKind) String() string {
	switch k {
	case Clipboard:
		return "clipboard"
	case Primary:
		return "primary"
	default:
		return "unknown"
	}
}

// Valid reports whether k is one of the known kinds.
func (k SelectionKind) Valid() bool {
	return k == Clipboard || k == Primary
}

// Origin identifies the display protocol that produced an observation.
type Origin int

const (
	OriginX11 Origin = iota
	OriginWayland
)

func (o Origin) String() string {
	switch o {
	case OriginX11:
		return "x11"
	case OriginWayland:
		return "wayland"
	default:
		return "unknown"
	}
}

// ParseOrigin maps "x11" or "wayland" to its Origin.
func ParseOrigin(s string) (Origin, error) {
	switch s {
	case "x11":
		return OriginX11, nil
	case "wayland":
		return OriginWayland, nil
	default:
		return 0, fmt.Errorf("unknown side %q: want x11 or wayland", s)
	}
}

// Valid reports whether o is one of the two sides.
func (o Origin) Valid() bool {
	return o == OriginX11 || o == OriginWayland
}

// Opposite returns the side a change from o must be written to.
func (o Origin) Opposite() Origin {
	if o == OriginX11 {
		return OriginWayland
	}
	return OriginX11
}

// Update is the message a watcher emits when it observes new content.
type Update struct {
	Kind    SelectionKind
	Content *ClipboardContent
	Origin  Origin
	// Seq is the origin watcher's change count for Kind, see Sequence.
	Seq uint64
}

// NewUpdate builds an Update whose Kind is taken from the content.
func NewUpdate(content *ClipboardContent, origin Origin, seq uint64) Update {
	return Update{Kind: content.Kind, Content: content, Origin: origin, Seq: seq}
}
