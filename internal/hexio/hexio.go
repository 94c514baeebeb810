// Package hexio implements the line-oriented hex terminal boundary: reading
// an ASCII-hex line from the operator and rendering byte buffers back as
// formatted hex text.
package hexio

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
)

const (
	// CR terminates one input line, matching serial-terminal behavior.
	CR byte = 0x0D

	// MaxLineChars caps one input line at 64 hex characters (32 bytes).
	MaxLineChars = 64

	// BytesPerRow is the display width when rendering long buffers.
	BytesPerRow = 16
)

var ErrNotHexDigit = errors.New("hexio: not a hex digit")

// ReadHexLine consumes raw bytes from r until a carriage return or the
// MaxLineChars cap and returns the accepted hex characters. LF is tolerated
// as a terminator too, for cooked-mode terminals.
func ReadHexLine(r *bufio.Reader) ([]byte, error) {
	line := make([]byte, 0, MaxLineChars)
	for len(line) < MaxLineChars {
		c, err := r.ReadByte()
		if err != nil {
			if len(line) > 0 {
				return line, nil
			}
			return nil, err
		}
		if c == CR || c == '\n' {
			break
		}
		line = append(line, c)
	}
	return line, nil
}

// Decode converts ASCII hex characters to bytes, two digits per byte,
// case-insensitively. A trailing unpaired digit is dropped. Any non-hex
// character is rejected rather than silently mapped to a stray nibble.
func Decode(line []byte) ([]byte, error) {
	out := make([]byte, 0, len(line)/2)
	for i := 0; i+1 < len(line); i += 2 {
		hi, err := nibble(line[i])
		if err != nil {
			return nil, err
		}
		lo, err := nibble(line[i+1])
		if err != nil {
			return nil, err
		}
		out = append(out, hi<<4|lo)
	}
	return out, nil
}

func nibble(c byte) (uint8, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'a' && c <= 'f':
		return 10 + c - 'a', nil
	case c >= 'A' && c <= 'F':
		return 10 + c - 'A', nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrNotHexDigit, c)
	}
}

// Format renders buf as space-separated two-digit hex, BytesPerRow bytes per
// line once the buffer is longer than one row. An empty buffer renders as an
// explicit placeholder so an empty send stays visible.
func Format(buf []byte) string {
	if len(buf) == 0 {
		return "<no data present>"
	}
	var b strings.Builder
	for i, c := range buf {
		if i > 0 {
			if i%BytesPerRow == 0 {
				b.WriteByte('\n')
			} else {
				b.WriteByte(' ')
			}
		}
		fmt.Fprintf(&b, "%02x", c)
	}
	return b.String()
}
