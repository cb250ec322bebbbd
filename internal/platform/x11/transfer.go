package x11

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
)

// convertFunc runs one selection conversion for a target and returns the
// name of the property type the owner replied with.
type convertFunc func(target string) (typeName string, value []byte, err error)

// fetchFirst converts targets in order and returns the first one that decodes
// as text. Refusals and non-text answers fall through to the next target;
// any other failure ends the fetch.
func fetchFirst(targets []string, convert convertFunc) ([]byte, error) {
	var lastErr error = ErrConversionRefused
	for _, target := range targets {
		typeName, value, err := convert(target)
		if err != nil {
			if errors.Is(err, ErrConversionRefused) || errors.Is(err, ErrUnsupportedType) {
				lastErr = err
				continue
			}
			return nil, err
		}
		out, err := decodeTarget(typeName, value)
		if err != nil {
			lastErr = err
			continue
		}
		return out, nil
	}
	return nil, lastErr
}

// incrBuffer reassembles an incoming INCR transfer.
type incrBuffer struct {
	limit int
	typ   xproto.Atom
	buf   bytes.Buffer
}

// add takes the property read after one PropertyNotify and reports whether
// the transfer is complete. A None type is a deletion or an unrelated change
// and is ignored.
func (b *incrBuffer) add(typ xproto.Atom, chunk []byte) (bool, error) {
	if typ == xproto.AtomNone {
		return false, nil
	}
	b.typ = typ
	if len(chunk) == 0 {
		return true, nil
	}
	if b.buf.Len()+len(chunk) > b.limit {
		return false, fmt.Errorf("%w: INCR transfer above %d bytes", ErrTooLarge, b.limit)
	}
	b.buf.Write(chunk)
	return false, nil
}

// incrSend is an outgoing INCR transfer to one requestor.
type incrSend struct {
	typ     xproto.Atom
	data    []byte
	offset  int
	done    bool
	started time.Time
}

// next returns the chunk to write once the requestor deleted the previous
// one. ok is false after the terminating zero-length chunk went out.
func (t *incrSend) next(maxChunk int) (chunk []byte, ok bool) {
	if t.done {
		return nil, false
	}
	end := min(t.offset+maxChunk, len(t.data))
	chunk = t.data[t.offset:end]
	t.offset = end
	// the zero-length chunk that ends the transfer is itself a chunk
	t.done = len(chunk) == 0
	return chunk, true
}

// answerPairs serves the (target, property) atom pairs of a MULTIPLE request
// in place. Pairs that fail, including nested MULTIPLE targets, get their
// property replaced by None. It reports whether pairs was modified.
func answerPairs(pairs []byte, multiple xproto.Atom, serve func(target, property xproto.Atom) bool) bool {
	changed := false
	for i := 0; i+8 <= len(pairs); i += 8 {
		target := xproto.Atom(xgb.Get32(pairs[i:]))
		prop := xproto.Atom(xgb.Get32(pairs[i+4:]))
		if target == multiple || !serve(target, prop) {
			xgb.Put32(pairs[i+4:], uint32(xproto.AtomNone))
			changed = true
		}
	}
	return changed
}
