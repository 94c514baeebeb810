package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/canterm/internal/bus"
	"github.com/danmuck/canterm/internal/canwire"
	"github.com/danmuck/canterm/internal/config"
	"github.com/danmuck/canterm/internal/testutil/testlog"
)

func startTestServer(t *testing.T) (*Server, context.CancelFunc) {
	t.Helper()
	cfg := config.DaemonConfig{
		BusName:    "can.test",
		BusAddr:    "127.0.0.1:0",
		AdminAddr:  "127.0.0.1:0",
		QueueDepth: 8,
	}
	srv := NewServer(cfg, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	if err := srv.Start(ctx); err != nil {
		cancel()
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		_ = srv.Wait()
	})
	return srv, cancel
}

func attachClient(t *testing.T, srv *Server) *bus.TCPBus {
	t.Helper()
	b, err := bus.DialTCP(srv.BusAddr(), 8)
	if err != nil {
		t.Fatalf("dial bus: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func waitForClients(t *testing.T, srv *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(srv.Status().Clients) >= n {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("only %d clients attached, want %d", len(srv.Status().Clients), n)
}

func pollWithin(t *testing.T, b bus.Bus, d time.Duration) (canwire.Frame, bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if f, ok := b.Poll(); ok {
			return f, true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return canwire.Frame{}, false
}

func TestGatewayBroadcastsBetweenClients(t *testing.T) {
	testlog.Start(t)

	srv, _ := startTestServer(t)
	sender := attachClient(t, srv)
	receiver := attachClient(t, srv)
	waitForClients(t, srv, 2)

	frame, err := canwire.NewFrame(120, []byte{0x55, 0x55, 0x55, 0x55})
	if err != nil {
		t.Fatalf("new frame: %v", err)
	}
	if err := sender.Send(frame); err != nil {
		t.Fatalf("send: %v", err)
	}

	got, ok := pollWithin(t, receiver, time.Second)
	if !ok {
		t.Fatalf("receiver saw no frame")
	}
	if got != frame {
		t.Fatalf("forward mismatch:\n got %+v\nwant %+v", got, frame)
	}

	// The origin must not hear its own transmission back.
	if f, ok := pollWithin(t, sender, 50*time.Millisecond); ok {
		t.Fatalf("sender echoed its own frame: %+v", f)
	}
}

func TestGatewayStatusSnapshot(t *testing.T) {
	testlog.Start(t)

	srv, _ := startTestServer(t)
	a := attachClient(t, srv)
	b := attachClient(t, srv)
	waitForClients(t, srv, 2)

	frame, err := canwire.NewFrame(7, []byte{1})
	if err != nil {
		t.Fatalf("new frame: %v", err)
	}
	if err := a.Send(frame); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, ok := pollWithin(t, b, time.Second); !ok {
		t.Fatalf("frame not forwarded")
	}

	status := srv.Status()
	if status.BusName != "can.test" {
		t.Fatalf("unexpected bus name: %q", status.BusName)
	}
	if len(status.Clients) != 2 {
		t.Fatalf("unexpected client count: %d", len(status.Clients))
	}
	if status.ForwardedFrames == 0 {
		t.Fatalf("expected forwarded frames in snapshot")
	}
}

func TestGatewayAdminEndpoints(t *testing.T) {
	testlog.Start(t)

	srv, _ := startTestServer(t)
	_ = attachClient(t, srv)

	base := "http://" + srv.AdminAddr()
	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status: %d", resp.StatusCode)
	}

	resp, err = http.Get(base + "/status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	defer resp.Body.Close()
	var snapshot StatusSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if snapshot.BusName != "can.test" {
		t.Fatalf("unexpected bus name: %q", snapshot.BusName)
	}

	resp, err = http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status: %d", resp.StatusCode)
	}
}

func TestGatewayShutdown(t *testing.T) {
	testlog.Start(t)

	cfg := config.DaemonConfig{
		BusName:    "can.test",
		BusAddr:    "127.0.0.1:0",
		AdminAddr:  "127.0.0.1:0",
		QueueDepth: 8,
	}
	srv := NewServer(cfg, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()
	if err := srv.Wait(); !errors.Is(err, ErrServerClosed) {
		t.Fatalf("expected ErrServerClosed, got %v", err)
	}
}

func TestGatewayDropsMalformedClient(t *testing.T) {
	testlog.Start(t)

	srv, _ := startTestServer(t)

	// Attach with a raw stream that never sets the wire header bit.
	conn, err := net.Dial("tcp", srv.BusAddr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write(make([]byte, canwire.WireLen)); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		status := srv.Status()
		if len(status.Clients) == 0 && status.RejectedFrames > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("malformed client still attached: %+v", srv.Status())
}
