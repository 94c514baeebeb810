// Package bus provides the send/poll boundary between the terminal control
// loop and a CAN link. Implementations cover an in-memory loopback segment
// and a TCP client for the canbusd virtual bus.
package bus

import (
	"errors"

	"github.com/danmuck/canterm/internal/canwire"
)

var (
	ErrBusClosed = errors.New("bus: closed")
	ErrBusFull   = errors.New("bus: transmit buffer busy")
)

// Bus is one attached CAN link. Send either accepts the frame for
// transmission or rejects it; Poll is non-blocking and reports at most one
// pending received frame per call.
type Bus interface {
	Send(canwire.Frame) error
	Poll() (canwire.Frame, bool)
	Close() error
}
