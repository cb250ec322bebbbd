package types

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrInvalidUTF8 is returned when a payload offered as text is not well-formed UTF-8.
var ErrInvalidUTF8 = errors.New("content is not valid UTF-8")

// ClipboardContent is one observed or written value of a selection.
// It is never mutated after construction.
type ClipboardContent struct {
	Kind    SelectionKind
	Data    []byte
	Cleared bool
}

// NewText validates data as UTF-8 and wraps a private copy of it.
func NewText(kind SelectionKind, data []byte) (*ClipboardContent, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%s selection: %w", kind, ErrInvalidUTF8)
	}
	return &ClipboardContent{
		Kind: kind,
		Data: bytes.Clone(data),
	}, nil
}

// NewCleared returns the "no owner / no offer" state for kind.
func NewCleared(kind SelectionKind) *ClipboardContent {
	return &ClipboardContent{Kind: kind, Cleared: true}
}

// Text returns the payload as a string. Cleared content yields "".
func (c *ClipboardContent) Text() string {
	if c == nil {
		return ""
	}
	return string(c.Data)
}

// Len returns the payload size in bytes.
func (c *ClipboardContent) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Data)
}

// Equal compares two contents byte-exactly. A cleared value never equals text,
// not even the empty string.
func (c1 *ClipboardContent) Equal(c2 *ClipboardContent) bool {
	if c1 == nil || c2 == nil {
		return c1 == c2
	}
	if c1.Kind != c2.Kind || c1.Cleared != c2.Cleared {
		return false
	}
	return c1.Cleared || bytes.Equal(c1.Data, c2.Data)
}

// String is used in log fields; it never prints the payload itself.
func (c *ClipboardContent) String() string {
	switch {
	case c == nil:
		return "<nil>"
	case c.Cleared:
		return fmt.Sprintf("%s:cleared", c.Kind)
	default:
		return fmt.Sprintf("%s:%d bytes", c.Kind, len(c.Data))
	}
}
