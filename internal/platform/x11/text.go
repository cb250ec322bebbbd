package x11

import (
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Target names, in the order the watcher asks an owner for them.
const (
	targetUTF8String  = "UTF8_STRING"
	targetTextPlainU8 = "text/plain;charset=utf-8"
	targetTextPlain   = "text/plain"
	targetString      = "STRING"
	targetText        = "TEXT"
)

// fetchTargets is the preference order used when converting a foreign selection.
var fetchTargets = []string{targetUTF8String, targetTextPlainU8, targetTextPlain, targetString}

// servedTargets is what the bridge advertises in TARGETS while it owns a selection.
var servedTargets = []string{targetUTF8String, targetTextPlainU8, targetTextPlain, targetText, targetString}

// decodeTarget turns a converted property value into UTF-8 bytes.
// typeName is the name of the property type the owner replied with.
func decodeTarget(typeName string, value []byte) ([]byte, error) {
	switch typeName {
	case targetUTF8String, targetTextPlainU8, targetTextPlain:
		return value, nil
	case targetString:
		out, err := charmap.ISO8859_1.NewDecoder().Bytes(value)
		if err != nil {
			return nil, fmt.Errorf("failed to decode STRING property: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, typeName)
	}
}

// encodeTarget renders UTF-8 content for a requested target and returns the
// property type name to reply with.
func encodeTarget(target string, data []byte) ([]byte, string, error) {
	switch target {
	case targetUTF8String, targetText:
		return data, targetUTF8String, nil
	case targetTextPlainU8, targetTextPlain:
		return data, target, nil
	case targetString:
		enc := encoding.ReplaceUnsupported(charmap.ISO8859_1.NewEncoder())
		out, err := enc.Bytes(data)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode STRING property: %w", err)
		}
		return out, targetString, nil
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedType, target)
	}
}
