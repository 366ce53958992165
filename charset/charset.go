// Package charset resolves character encodings for partition reads and writes,
// detects byte-order marks, and checks attribute values against a target encoding.
package charset

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-sif/geopart/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Charset is a resolved character encoding. BOM holds the byte-order mark
// which prefixes data in this encoding, if any.
type Charset struct {
	Name     string
	BOM      []byte
	encoding encoding.Encoding // nil for UTF-8, which is passed through untouched
}

// UTF8 returns the default charset, UTF-8 without a byte-order mark
func UTF8() *Charset {
	return &Charset{Name: "UTF-8"}
}

func utf16Charset(order unicode.Endianness) *Charset {
	cs := &Charset{encoding: unicode.UTF16(order, unicode.IgnoreBOM)}
	if order == unicode.LittleEndian {
		cs.Name = "UTF-16LE"
		cs.BOM = bomUTF16LE
	} else {
		cs.Name = "UTF-16BE"
		cs.BOM = bomUTF16BE
	}
	return cs
}

// Sniff inspects the leading bytes of a source for a byte-order mark.
// ok is false when no recognised mark is present.
func Sniff(prefix []byte) (cs *Charset, ok bool) {
	switch {
	case bytes.HasPrefix(prefix, bomUTF8):
		return &Charset{Name: "UTF-8", BOM: bomUTF8}, true
	case bytes.HasPrefix(prefix, bomUTF16LE):
		return utf16Charset(unicode.LittleEndian), true
	case bytes.HasPrefix(prefix, bomUTF16BE):
		return utf16Charset(unicode.BigEndian), true
	}
	return nil, false
}

// Lookup resolves an encoding name (IANA or WHATWG label) to a Charset
func Lookup(name string) (*Charset, error) {
	norm := strings.ToLower(strings.TrimSpace(name))
	switch strings.NewReplacer("-", "", "_", "").Replace(norm) {
	case "utf8":
		return UTF8(), nil
	case "utf8sig", "utf8bom":
		return &Charset{Name: "UTF-8", BOM: bomUTF8}, nil
	case "utf16le":
		return utf16Charset(unicode.LittleEndian), nil
	case "utf16be", "utf16":
		return utf16Charset(unicode.BigEndian), nil
	}
	enc, err := ianaindex.IANA.Encoding(norm)
	if err != nil || enc == nil {
		enc, err = htmlindex.Get(norm)
		if err != nil || enc == nil {
			return nil, errors.ConfigError{Field: "encoding", Reason: fmt.Sprintf("unknown or unsupported encoding %q", name)}
		}
	}
	// MIME names are the labels other tools expect in a .cpg, e.g. ISO-8859-1
	canonical, err := ianaindex.MIME.Name(enc)
	if err != nil || canonical == "" {
		canonical, err = ianaindex.IANA.Name(enc)
		if err != nil || canonical == "" {
			canonical = name
		}
	}
	if canonical == "UTF-8" {
		return UTF8(), nil
	}
	return &Charset{Name: canonical, encoding: enc}, nil
}

// Resolve picks the charset for a source: the requested name when given, otherwise
// whatever the byte-order mark announces. fallback is true when neither was available
// and UTF-8 was assumed.
func Resolve(requested string, prefix []byte) (cs *Charset, fallback bool, err error) {
	sniffed, hasBOM := Sniff(prefix)
	if requested != "" {
		cs, err = Lookup(requested)
		if err != nil {
			return nil, false, err
		}
		// keep the mark when it agrees with what was asked for
		if hasBOM && sniffed.Name == cs.Name {
			return sniffed, false, nil
		}
		return cs, false, nil
	}
	if hasBOM {
		return sniffed, false, nil
	}
	return UTF8(), true, nil
}

// IsUTF8 returns true iff data in this charset needs no transcoding
func (c *Charset) IsUTF8() bool {
	return c.encoding == nil
}

// HasBOM returns true iff this charset prefixes its data with a byte-order mark
func (c *Charset) HasBOM() bool {
	return len(c.BOM) > 0
}

// Encoding returns the underlying x/text encoding. UTF-8 is reported as encoding.Nop.
func (c *Charset) Encoding() encoding.Encoding {
	if c.encoding == nil {
		return encoding.Nop
	}
	return c.encoding
}

// Decode converts bytes in this charset to a UTF-8 string
func (c *Charset) Decode(b []byte) (string, error) {
	if c.encoding == nil {
		return string(b), nil
	}
	out, err := c.encoding.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Encode converts a UTF-8 string to bytes in this charset
func (c *Charset) Encode(s string) ([]byte, error) {
	if c.encoding == nil {
		return []byte(s), nil
	}
	return c.encoding.NewEncoder().Bytes([]byte(s))
}

// FirstUnencodable returns the byte offset of the first character of s which cannot be
// represented in this charset, or -1 if every character can be.
func (c *Charset) FirstUnencodable(s string) int {
	enc := c.Encoding().NewEncoder()
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		if c.encoding != nil {
			if _, err := enc.String(s[i : i+size]); err != nil {
				return i
			}
		}
		i += size
	}
	return -1
}
