package hexio

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func readerFor(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}

func TestReadHexLineCRTerminated(t *testing.T) {
	line, err := ReadHexLine(readerFor("deadBEEF\rtrailing"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(line) != "deadBEEF" {
		t.Fatalf("unexpected line: %q", line)
	}
}

func TestReadHexLineLFTerminated(t *testing.T) {
	line, err := ReadHexLine(readerFor("0102\n"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(line) != "0102" {
		t.Fatalf("unexpected line: %q", line)
	}
}

func TestReadHexLineCap(t *testing.T) {
	long := strings.Repeat("a", MaxLineChars+10)
	line, err := ReadHexLine(readerFor(long))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(line) != MaxLineChars {
		t.Fatalf("cap not applied: got %d chars", len(line))
	}
}

func TestReadHexLineEOF(t *testing.T) {
	line, err := ReadHexLine(readerFor("ab"))
	if err != nil {
		t.Fatalf("read with pending bytes: %v", err)
	}
	if string(line) != "ab" {
		t.Fatalf("unexpected line: %q", line)
	}

	if _, err := ReadHexLine(readerFor("")); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestDecode(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []byte
	}{
		{name: "empty", in: "", want: []byte{}},
		{name: "lowercase", in: "deadbeef", want: []byte{0xDE, 0xAD, 0xBE, 0xEF}},
		{name: "uppercase", in: "DEADBEEF", want: []byte{0xDE, 0xAD, 0xBE, 0xEF}},
		{name: "mixed case", in: "aAbB09", want: []byte{0xAA, 0xBB, 0x09}},
		{name: "trailing odd digit dropped", in: "0102f", want: []byte{0x01, 0x02}},
		{name: "single digit dropped", in: "f", want: []byte{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode([]byte(tc.in))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !bytes.Equal(got, tc.want) {
				t.Fatalf("decode mismatch: got %x want %x", got, tc.want)
			}
		})
	}
}

func TestDecodeRejectsNonHex(t *testing.T) {
	if _, err := Decode([]byte("12g4")); !errors.Is(err, ErrNotHexDigit) {
		t.Fatalf("expected ErrNotHexDigit, got %v", err)
	}
}

func TestFormat(t *testing.T) {
	if got := Format(nil); got != "<no data present>" {
		t.Fatalf("empty format: %q", got)
	}

	if got := Format([]byte{0x01, 0xAB}); got != "01 ab" {
		t.Fatalf("short format: %q", got)
	}

	buf := make([]byte, 20)
	for i := range buf {
		buf[i] = byte(i)
	}
	got := Format(buf)
	lines := strings.Split(got, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 rows, got %d: %q", len(lines), got)
	}
	if fields := strings.Fields(lines[0]); len(fields) != BytesPerRow {
		t.Fatalf("first row has %d bytes", len(fields))
	}
	if fields := strings.Fields(lines[1]); len(fields) != 4 {
		t.Fatalf("second row has %d bytes", len(fields))
	}
}
