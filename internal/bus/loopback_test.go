package bus

import (
	"errors"
	"testing"

	"github.com/danmuck/canterm/internal/canwire"
	"github.com/danmuck/canterm/internal/testutil/testlog"
)

func mustFrame(t *testing.T, id uint32, data []byte) canwire.Frame {
	t.Helper()
	f, err := canwire.NewFrame(id, data)
	if err != nil {
		t.Fatalf("new frame: %v", err)
	}
	return f
}

func TestLoopbackDeliversInOrder(t *testing.T) {
	testlog.Start(t)

	l := NewLoopback(4)
	defer l.Close()

	first := mustFrame(t, 120, []byte{1, 2, 3})
	second := mustFrame(t, 121, []byte{4})
	if err := l.Send(first); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := l.Send(second); err != nil {
		t.Fatalf("send: %v", err)
	}

	got, ok := l.Poll()
	if !ok || got != first {
		t.Fatalf("first poll: ok=%v frame=%+v", ok, got)
	}
	got, ok = l.Poll()
	if !ok || got != second {
		t.Fatalf("second poll: ok=%v frame=%+v", ok, got)
	}
	if _, ok := l.Poll(); ok {
		t.Fatalf("poll on empty queue reported a frame")
	}
}

func TestLoopbackQueueBound(t *testing.T) {
	testlog.Start(t)

	l := NewLoopback(1)
	defer l.Close()

	if err := l.Send(mustFrame(t, 1, nil)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := l.Send(mustFrame(t, 2, nil)); !errors.Is(err, ErrBusFull) {
		t.Fatalf("expected ErrBusFull, got %v", err)
	}

	// Draining frees the single outstanding slot.
	if _, ok := l.Poll(); !ok {
		t.Fatalf("expected queued frame")
	}
	if err := l.Send(mustFrame(t, 3, nil)); err != nil {
		t.Fatalf("send after drain: %v", err)
	}
}

func TestLoopbackClosed(t *testing.T) {
	testlog.Start(t)

	l := NewLoopback(0)
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := l.Send(mustFrame(t, 1, nil)); !errors.Is(err, ErrBusClosed) {
		t.Fatalf("expected ErrBusClosed, got %v", err)
	}
	if _, ok := l.Poll(); ok {
		t.Fatalf("poll after close reported a frame")
	}
}

func TestLoopbackRejectsInvalidFrame(t *testing.T) {
	testlog.Start(t)

	l := NewLoopback(0)
	defer l.Close()
	bad := canwire.Frame{ID: 1, Len: 9}
	if err := l.Send(bad); !errors.Is(err, canwire.ErrInvalidDataLen) {
		t.Fatalf("expected ErrInvalidDataLen, got %v", err)
	}
}
