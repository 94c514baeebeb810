// Package canmsg chunks variable-length terminal messages into CAN data
// frames and reassembles received frames for display.
//
// A message is at most MaxMessageLen bytes. Packetize splits it into frames
// of exactly canwire.MaxDataLen bytes with the remainder in the final frame;
// an empty message still produces one zero-length frame so that "send with no
// data" stays an observable event on the link. Frames carry no sequence
// numbers: ordering is positional, a property of the link this mirrors.
package canmsg

import (
	"errors"
	"fmt"

	"github.com/danmuck/canterm/internal/canwire"
)

// MaxMessageLen bounds one terminal message: 64 hex characters decode to at
// most 32 bytes.
const MaxMessageLen = 32

var (
	ErrMessageTooLong = errors.New("canmsg: message exceeds max length")
	ErrMalformedFrame = errors.New("canmsg: frame length exceeds data field")
)

// ChunkCount reports the number of frames a message of n bytes packetizes
// into. An empty message still takes one frame.
func ChunkCount(n int) int {
	if n <= 0 {
		return 1
	}
	return (n + canwire.MaxDataLen - 1) / canwire.MaxDataLen
}

// Packetize splits msg into ordered frames addressed to id. Every frame
// before the last carries exactly canwire.MaxDataLen bytes; only the last may
// be shorter. Packetize does not mutate msg and holds no state across calls.
func Packetize(id uint32, msg []byte) ([]canwire.Frame, error) {
	if len(msg) > MaxMessageLen {
		return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLong, len(msg), MaxMessageLen)
	}

	frames := make([]canwire.Frame, 0, ChunkCount(len(msg)))
	rest := msg
	for {
		chunk := rest
		if len(chunk) > canwire.MaxDataLen {
			chunk = chunk[:canwire.MaxDataLen]
		}
		f, err := canwire.NewFrame(id, chunk)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
		rest = rest[len(chunk):]
		if len(rest) == 0 {
			return frames, nil
		}
	}
}

// Reassemble copies one received frame's payload into a fresh buffer in the
// same positional order Packetize used. A frame declaring more data than the
// link allows is rejected rather than indexed past the data field.
func Reassemble(f canwire.Frame) ([]byte, error) {
	if f.Len > canwire.MaxDataLen {
		return nil, fmt.Errorf("%w: %d", ErrMalformedFrame, f.Len)
	}
	out := make([]byte, f.Len)
	copy(out, f.Data[:f.Len])
	return out, nil
}

// ReassembleAll concatenates the payloads of an ordered frame sequence,
// inverting Packetize.
func ReassembleAll(frames []canwire.Frame) ([]byte, error) {
	out := make([]byte, 0, len(frames)*canwire.MaxDataLen)
	for _, f := range frames {
		part, err := Reassemble(f)
		if err != nil {
			return nil, err
		}
		out = append(out, part...)
	}
	return out, nil
}
