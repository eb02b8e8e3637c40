package core

import (
	"strings"

	"github.com/pkg/errors"
)

// Encoding is the wire profile used by a connection after the handshake.
type Encoding uint8

// All encodings
const (
	EncodingBinary Encoding = iota + 1
	EncodingText
)

// SupportedEncodings lists encodings in default preference order.
var SupportedEncodings = []Encoding{EncodingBinary, EncodingText}

func (e Encoding) String() string {
	switch e {
	case EncodingBinary:
		return "binary"
	case EncodingText:
		return "text"
	default:
		return "unknown"
	}
}

// ParseEncoding converts a profile name to an Encoding.
// Accepted names are "binary" (alias "borsh") and "text" (aliases "json", "serde-json").
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "binary", "borsh":
		return EncodingBinary, nil
	case "text", "json", "serde-json":
		return EncodingText, nil
	default:
		return 0, errors.Errorf("unknown encoding %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (e Encoding) MarshalText() ([]byte, error) {
	if e != EncodingBinary && e != EncodingText {
		return nil, errors.Errorf("invalid encoding %d", e)
	}
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Encoding) UnmarshalText(text []byte) error {
	v, err := ParseEncoding(string(text))
	if err != nil {
		return err
	}
	*e = v
	return nil
}
