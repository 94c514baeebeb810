package bus

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/canterm/internal/canwire"
)

// Dialer opens the underlying stream to a canbusd endpoint. net.Dialer
// satisfies it directly; SSHDialer tunnels it through a jump host.
type Dialer interface {
	Dial(network, addr string) (net.Conn, error)
}

// TCPBus is a client attachment to one canbusd virtual segment. Frames are
// carried as fixed 13-byte canwire records. A background reader feeds a
// bounded channel so Poll never blocks the control loop.
type TCPBus struct {
	addr string
	conn net.Conn
	rx   chan canwire.Frame

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// DialTCP attaches to the virtual bus at addr using the default dialer.
func DialTCP(addr string, depth int) (*TCPBus, error) {
	return DialTCPVia(&net.Dialer{Timeout: 5 * time.Second}, addr, depth)
}

// DialTCPVia attaches through an explicit dialer (plain TCP or SSH tunnel).
func DialTCPVia(d Dialer, addr string, depth int) (*TCPBus, error) {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	conn, err := d.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bus: dial %s: %w", addr, err)
	}
	b := &TCPBus{
		addr: addr,
		conn: conn,
		rx:   make(chan canwire.Frame, depth),
		done: make(chan struct{}),
	}
	go b.readLoop()
	return b, nil
}

func (b *TCPBus) Addr() string {
	return b.addr
}

func (b *TCPBus) Send(f canwire.Frame) error {
	raw, err := canwire.Marshal(f)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	if _, err := b.conn.Write(raw); err != nil {
		return fmt.Errorf("bus: send to %s: %w", b.addr, err)
	}
	return nil
}

func (b *TCPBus) Poll() (canwire.Frame, bool) {
	select {
	case f, ok := <-b.rx:
		if !ok {
			return canwire.Frame{}, false
		}
		return f, true
	default:
		return canwire.Frame{}, false
	}
}

func (b *TCPBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()
	err := b.conn.Close()
	<-b.done
	return err
}

func (b *TCPBus) readLoop() {
	defer close(b.done)
	raw := make([]byte, canwire.WireLen)
	for {
		if _, err := io.ReadFull(b.conn, raw); err != nil {
			b.mu.Lock()
			closed := b.closed
			b.mu.Unlock()
			if !closed {
				log.Warn().Str("addr", b.addr).Err(err).Msg("bus_read_closed")
			}
			close(b.rx)
			return
		}
		f, err := canwire.Unmarshal(raw)
		if err != nil {
			// A malformed record desynchronizes the stream; drop the
			// attachment rather than guess at framing.
			log.Error().Str("addr", b.addr).Err(err).Msg("bus_malformed_frame")
			close(b.rx)
			return
		}
		select {
		case b.rx <- f:
		default:
			// Receive window full: the oldest unread frame is lost, as on
			// a controller reporting rx_msg_lost.
			select {
			case <-b.rx:
			default:
			}
			b.rx <- f
		}
	}
}

var _ Bus = (*TCPBus)(nil)
