package canwire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// MaxDataLen is the classical CAN data field limit. Fixed by the link,
	// not configurable.
	MaxDataLen = 8

	// WireLen is the marshalled frame size used on the virtual bus.
	WireLen = 13

	MaxStandardID uint32 = 0x7FF
	MaxExtendedID uint32 = 0x1FFFFFFF
)

// Header byte layout: 0x80 | flags | DLC.
const (
	headerValid    uint8 = 0x80
	headerRemote   uint8 = 0x10
	headerExtended uint8 = 0x20
	headerDLCMask  uint8 = 0x0F
)

var (
	ErrInvalidID      = errors.New("canwire: invalid identifier")
	ErrInvalidDataLen = errors.New("canwire: invalid data length")
	ErrShortFrame     = errors.New("canwire: short wire frame")
	ErrInvalidHeader  = errors.New("canwire: invalid wire header")
)

// Frame is one classical CAN 2.0 data-link frame.
type Frame struct {
	ID       uint32
	Extended bool
	Remote   bool
	Len      uint8
	Data     [MaxDataLen]byte
}

// NewFrame builds a data frame from a payload of at most MaxDataLen bytes.
func NewFrame(id uint32, data []byte) (Frame, error) {
	if len(data) > MaxDataLen {
		return Frame{}, fmt.Errorf("%w: %d", ErrInvalidDataLen, len(data))
	}
	f := Frame{ID: id, Extended: id > MaxStandardID, Len: uint8(len(data))}
	copy(f.Data[:], data)
	if err := f.Validate(); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Validate checks the frame against classical CAN limits.
func (f Frame) Validate() error {
	if f.Len > MaxDataLen {
		return fmt.Errorf("%w: %d", ErrInvalidDataLen, f.Len)
	}
	limit := MaxStandardID
	if f.Extended {
		limit = MaxExtendedID
	}
	if f.ID > limit {
		return fmt.Errorf("%w: 0x%X", ErrInvalidID, f.ID)
	}
	return nil
}

// Payload returns the live data bytes of the frame.
func (f Frame) Payload() []byte {
	return f.Data[:f.Len]
}

// Marshal encodes the frame into the fixed 13-byte bus layout:
// header byte, big-endian 32-bit identifier, 8 data bytes.
func Marshal(f Frame) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, WireLen)
	header := headerValid | (f.Len & headerDLCMask)
	if f.Remote {
		header |= headerRemote
	}
	if f.Extended {
		header |= headerExtended
	}
	buf[0] = header
	binary.BigEndian.PutUint32(buf[1:5], f.ID)
	copy(buf[5:], f.Data[:])
	return buf, nil
}

// Unmarshal decodes one 13-byte bus frame.
func Unmarshal(raw []byte) (Frame, error) {
	if len(raw) != WireLen {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(raw))
	}
	header := raw[0]
	if header&headerValid == 0 {
		return Frame{}, fmt.Errorf("%w: 0x%02x", ErrInvalidHeader, header)
	}
	f := Frame{
		Len:      header & headerDLCMask,
		Remote:   header&headerRemote != 0,
		Extended: header&headerExtended != 0,
		ID:       binary.BigEndian.Uint32(raw[1:5]),
	}
	copy(f.Data[:], raw[5:])
	if err := f.Validate(); err != nil {
		return Frame{}, err
	}
	return f, nil
}
