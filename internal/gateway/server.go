// Package gateway implements the canbusd virtual CAN segment: a TCP hub that
// rebroadcasts every well-formed frame to all other attached clients, plus an
// admin HTTP surface for health, status and metrics.
package gateway

import (
	"context"
	"errors"
	"io"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/danmuck/canterm/internal/canwire"
	"github.com/danmuck/canterm/internal/config"
	"github.com/danmuck/canterm/internal/observability"
)

var ErrServerClosed = errors.New("gateway: server closed")

// client is one attached bus connection. Outbound frames pass through a
// bounded queue with a dedicated writer so one slow client cannot stall the
// segment.
type client struct {
	conn     net.Conn
	remote   string
	out      chan canwire.Frame
	attached time.Time
	dropped  atomic.Uint64
}

// Server is one virtual bus segment.
type Server struct {
	cfg    config.DaemonConfig
	logger zerolog.Logger

	mu      sync.Mutex
	clients map[string]*client

	busLn   net.Listener
	adminLn net.Listener
	group   *errgroup.Group

	started   time.Time
	forwarded atomic.Uint64
	rejected  atomic.Uint64
}

func NewServer(cfg config.DaemonConfig, logger zerolog.Logger) *Server {
	observability.RegisterMetrics()
	return &Server{
		cfg:     cfg,
		logger:  logger.With().Str("bus", cfg.BusName).Logger(),
		clients: make(map[string]*client),
		started: time.Now(),
	}
}

// Run serves the bus and admin listeners until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	return s.Wait()
}

// Start binds both listeners and launches the serving goroutines. BusAddr
// and AdminAddr report the bound endpoints afterwards.
func (s *Server) Start(ctx context.Context) error {
	busLn, err := net.Listen("tcp", s.cfg.BusAddr)
	if err != nil {
		return err
	}
	adminLn, err := net.Listen("tcp", s.cfg.AdminAddr)
	if err != nil {
		busLn.Close()
		return err
	}
	s.busLn = busLn
	s.adminLn = adminLn

	s.logger.Info().
		Str("bus_addr", busLn.Addr().String()).
		Str("admin_addr", adminLn.Addr().String()).
		Msg("canbusd_up")

	g, ctx := errgroup.WithContext(ctx)
	s.group = g
	g.Go(func() error {
		return s.acceptLoop(ctx, busLn)
	})
	g.Go(func() error {
		return s.serveAdmin(ctx, adminLn)
	})
	g.Go(func() error {
		<-ctx.Done()
		busLn.Close()
		adminLn.Close()
		s.closeClients()
		return ctx.Err()
	})
	return nil
}

// Wait blocks until the serving goroutines finish.
func (s *Server) Wait() error {
	err := s.group.Wait()
	if errors.Is(err, context.Canceled) {
		return ErrServerClosed
	}
	return err
}

// BusAddr reports the bound bus endpoint; valid after Start.
func (s *Server) BusAddr() string {
	if s.busLn == nil {
		return s.cfg.BusAddr
	}
	return s.busLn.Addr().String()
}

// AdminAddr reports the bound admin endpoint; valid after Start.
func (s *Server) AdminAddr() string {
	if s.adminLn == nil {
		return s.cfg.AdminAddr
	}
	return s.adminLn.Addr().String()
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		c := &client{
			conn:     conn,
			remote:   conn.RemoteAddr().String(),
			out:      make(chan canwire.Frame, s.cfg.QueueDepth),
			attached: time.Now(),
		}
		s.attach(c)
		go s.readLoop(c)
		go s.writeLoop(c)
	}
}

func (s *Server) attach(c *client) {
	s.mu.Lock()
	s.clients[c.remote] = c
	n := len(s.clients)
	s.mu.Unlock()
	observability.SetAttachedClients(s.cfg.BusName, n)
	s.logger.Info().Str("remote", c.remote).Int("clients", n).Msg("bus_client_attached")
}

func (s *Server) detach(c *client) {
	s.mu.Lock()
	existing, ok := s.clients[c.remote]
	if ok && existing == c {
		delete(s.clients, c.remote)
		// Closed under the same lock broadcast sends under, so a send can
		// never race the close.
		close(c.out)
	}
	n := len(s.clients)
	s.mu.Unlock()
	if !ok || existing != c {
		return
	}
	c.conn.Close()
	observability.SetAttachedClients(s.cfg.BusName, n)
	s.logger.Info().Str("remote", c.remote).Int("clients", n).Msg("bus_client_detached")
}

func (s *Server) closeClients() {
	s.mu.Lock()
	all := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		all = append(all, c)
	}
	s.mu.Unlock()
	for _, c := range all {
		s.detach(c)
	}
}

func (s *Server) readLoop(c *client) {
	defer s.detach(c)
	raw := make([]byte, canwire.WireLen)
	for {
		if _, err := io.ReadFull(c.conn, raw); err != nil {
			return
		}
		f, err := canwire.Unmarshal(raw)
		if err != nil {
			// One malformed record means the stream is desynchronized;
			// drop the attachment.
			s.rejected.Add(1)
			observability.RecordBusReject(s.cfg.BusName, "malformed")
			s.logger.Warn().Str("remote", c.remote).Err(err).Msg("bus_malformed_frame")
			return
		}
		observability.RecordBusFrame(s.cfg.BusName, "rx")
		s.broadcast(c, f)
	}
}

func (s *Server) writeLoop(c *client) {
	for f := range c.out {
		raw, err := canwire.Marshal(f)
		if err != nil {
			continue
		}
		if _, err := c.conn.Write(raw); err != nil {
			s.detach(c)
			return
		}
		observability.RecordBusFrame(s.cfg.BusName, "tx")
	}
}

// broadcast forwards one frame to every attached client except the origin.
// A client with a full queue loses the frame, like a controller reporting
// rx_msg_lost; the segment never blocks on a slow peer.
func (s *Server) broadcast(origin *client, f canwire.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, peer := range s.clients {
		if peer == origin {
			continue
		}
		select {
		case peer.out <- f:
			s.forwarded.Add(1)
		default:
			peer.dropped.Add(1)
			observability.RecordBusReject(s.cfg.BusName, "rx_queue_full")
		}
	}
}

// ClientStatus describes one attached client in the status snapshot.
type ClientStatus struct {
	Remote        string    `json:"remote"`
	Attached      time.Time `json:"attached"`
	DroppedFrames uint64    `json:"dropped_frames"`
}

// StatusSnapshot is the admin /status payload.
type StatusSnapshot struct {
	BusName         string         `json:"bus_name"`
	Uptime          string         `json:"uptime"`
	Clients         []ClientStatus `json:"clients"`
	ForwardedFrames uint64         `json:"forwarded_frames"`
	RejectedFrames  uint64         `json:"rejected_frames"`
}

func (s *Server) Status() StatusSnapshot {
	s.mu.Lock()
	clients := make([]ClientStatus, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, ClientStatus{
			Remote:        c.remote,
			Attached:      c.attached,
			DroppedFrames: c.dropped.Load(),
		})
	}
	s.mu.Unlock()
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].Remote < clients[j].Remote
	})
	return StatusSnapshot{
		BusName:         s.cfg.BusName,
		Uptime:          time.Since(s.started).Truncate(time.Millisecond).String(),
		Clients:         clients,
		ForwardedFrames: s.forwarded.Load(),
		RejectedFrames:  s.rejected.Load(),
	}
}
